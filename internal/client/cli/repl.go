package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/orangecat/internal/client/services"
	"github.com/dmitrijs2005/orangecat/internal/common"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	state() services.State

	Setup(ctx context.Context) error
	Acknowledge(ctx context.Context) error
	Login(ctx context.Context) error
	Recover(ctx context.Context) error
	Lock(ctx context.Context) error
	Nuke(ctx context.Context) error

	NewChat(ctx context.Context, title string) error
	List(ctx context.Context) error
	Open(ctx context.Context, ref string) error
	Say(ctx context.Context, text string) error
	Show(ctx context.Context) error
	Rename(ctx context.Context, title string) error
	Delete(ctx context.Context, ref string) error
	ClearAll(ctx context.Context) error

	SetAPIKey(ctx context.Context) error
	RemoveAPIKey(ctx context.Context) error
	Backup(ctx context.Context) error
	Restore(ctx context.Context, path string) error
}

// commands lists what each vault state accepts, in help order.
var commands = map[services.State][]string{
	services.StateNoAccount:           {"setup", "restore", "help", "exit"},
	services.StateAwaitingRecoveryAck: {"ack", "help", "exit"},
	services.StateLocked:              {"login", "recover", "nuke", "restore", "help", "exit"},
	services.StateUnlocked: {
		"new", "list", "open", "say", "show", "rename", "delete", "clear",
		"apikey", "rmapikey", "backup", "lock", "nuke", "help", "exit",
	},
}

func allowed(st services.State, cmd string) bool {
	switch cmd {
	case "quit":
		cmd = "exit"
	case "l":
		cmd = "list"
	}
	for _, c := range commands[st] {
		if c == cmd {
			return true
		}
	}
	return false
}

// runREPL starts a read–eval–print loop for the OrangeCat client.
//
// It reads a line from the provided scanner, parses the first token as the
// command and dispatches to methods on 'a'. Commands that the current vault
// state does not accept are refused. Handler errors are printed through
// common.UserMessage. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("cat %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		if cmd == "exit" || cmd == "quit" {
			printlnFn("Bye!")
			return
		}
		if cmd == "help" {
			printlnFn("Available commands:", strings.Join(commands[a.state()], ", "))
			continue
		}
		if !allowed(a.state(), cmd) {
			if _, known := dispatch[cmd]; known {
				printlnFn(common.UserMessage(common.ErrInvalidState))
			} else {
				printlnFn("Unknown command:", cmd)
			}
			continue
		}

		if err := dispatch[cmd](ctx, a, rest); err != nil {
			printlnFn(common.UserMessage(err))
		}
	}
}

type handler func(ctx context.Context, a execIface, arg string) error

var dispatch = map[string]handler{
	"setup":   func(ctx context.Context, a execIface, _ string) error { return a.Setup(ctx) },
	"ack":     func(ctx context.Context, a execIface, _ string) error { return a.Acknowledge(ctx) },
	"login":   func(ctx context.Context, a execIface, _ string) error { return a.Login(ctx) },
	"recover": func(ctx context.Context, a execIface, _ string) error { return a.Recover(ctx) },
	"lock":    func(ctx context.Context, a execIface, _ string) error { return a.Lock(ctx) },
	"nuke":    func(ctx context.Context, a execIface, _ string) error { return a.Nuke(ctx) },

	"new":    func(ctx context.Context, a execIface, arg string) error { return a.NewChat(ctx, arg) },
	"l":      func(ctx context.Context, a execIface, _ string) error { return a.List(ctx) },
	"list":   func(ctx context.Context, a execIface, _ string) error { return a.List(ctx) },
	"open":   func(ctx context.Context, a execIface, arg string) error { return a.Open(ctx, arg) },
	"say":    func(ctx context.Context, a execIface, arg string) error { return a.Say(ctx, arg) },
	"show":   func(ctx context.Context, a execIface, _ string) error { return a.Show(ctx) },
	"rename": func(ctx context.Context, a execIface, arg string) error { return a.Rename(ctx, arg) },
	"delete": func(ctx context.Context, a execIface, arg string) error { return a.Delete(ctx, arg) },
	"clear":  func(ctx context.Context, a execIface, _ string) error { return a.ClearAll(ctx) },

	"apikey":   func(ctx context.Context, a execIface, _ string) error { return a.SetAPIKey(ctx) },
	"rmapikey": func(ctx context.Context, a execIface, _ string) error { return a.RemoveAPIKey(ctx) },
	"backup":   func(ctx context.Context, a execIface, _ string) error { return a.Backup(ctx) },
	"restore":  func(ctx context.Context, a execIface, arg string) error { return a.Restore(ctx, arg) },
}
