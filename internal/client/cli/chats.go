package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/orangecat/internal/client/models"
	"github.com/dmitrijs2005/orangecat/internal/client/services"
	"github.com/dmitrijs2005/orangecat/internal/common"
)

// NewChat creates a session and makes it current.
func (a *App) NewChat(ctx context.Context, title string) error {
	s := a.chats.NewSession(title)
	if err := a.chats.AddSession(s); err != nil {
		return err
	}
	a.current = s.ID
	fmt.Fprintf(a.out, "Started %q\n", s.Title)
	return nil
}

// List prints sessions, newest first as stored, marking the current one.
func (a *App) List(ctx context.Context) error {
	sessions, err := a.chats.Sessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(a.out, "No chats yet. Type 'new' to start one.")
		return nil
	}
	for i, s := range sessions {
		mark := " "
		if s.ID == a.current {
			mark = "*"
		}
		fmt.Fprintf(a.out, "%s %2d. %s  (%d messages, %s)\n",
			mark, i+1, s.Title, len(s.Messages), formatStamp(s.UpdatedAt))
	}
	return nil
}

// Open makes the session with the given list index or id current.
func (a *App) Open(ctx context.Context, ref string) error {
	s, err := a.resolve(ref)
	if err != nil {
		return err
	}
	a.current = s.ID
	return a.printSession(s)
}

// Say records a user message in the current session, starting one if needed.
func (a *App) Say(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("message is empty: %w", common.ErrValidation)
	}
	if a.current == "" {
		if err := a.NewChat(ctx, ""); err != nil {
			return err
		}
	}

	msg := models.NewMessage(models.RoleUser, text)
	if err := a.chats.AppendMessage(a.current, msg); err != nil {
		return err
	}
	if _, ok := a.credentials.Get(); !ok {
		fmt.Fprintln(a.out, "Saved. Set an API key with 'apikey' to get replies.")
	}
	return nil
}

func (a *App) Show(ctx context.Context) error {
	s, err := a.currentSession()
	if err != nil {
		return err
	}
	return a.printSession(s)
}

func (a *App) Rename(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("title is empty: %w", common.ErrValidation)
	}
	s, err := a.currentSession()
	if err != nil {
		return err
	}
	return a.chats.UpdateSession(s.ID, sessionTitle(title))
}

// Delete removes a session by index or id, or the current one.
func (a *App) Delete(ctx context.Context, ref string) error {
	var (
		s   models.ChatSession
		err error
	)
	if ref == "" {
		s, err = a.currentSession()
	} else {
		s, err = a.resolve(ref)
	}
	if err != nil {
		return err
	}

	ok, err := confirm(a.reader, fmt.Sprintf("Delete %q?", s.Title), a.out)
	if err != nil || !ok {
		return err
	}
	if err := a.chats.DeleteSession(s.ID); err != nil {
		return err
	}
	if a.current == s.ID {
		a.current = ""
	}
	fmt.Fprintln(a.out, "Deleted.")
	return nil
}

// ClearAll removes every session after confirmation.
func (a *App) ClearAll(ctx context.Context) error {
	ok, err := confirm(a.reader, "Delete all chats?", a.out)
	if err != nil || !ok {
		return err
	}
	if err := a.chats.ClearAll(ctx); err != nil {
		return err
	}
	a.current = ""
	fmt.Fprintln(a.out, "All chats deleted.")
	return nil
}

// openMostRecent selects the last updated session, if there is one.
func (a *App) openMostRecent() {
	s, err := a.chats.MostRecent()
	if err != nil {
		return
	}
	a.current = s.ID
	fmt.Fprintf(a.out, "Opened %q\n", s.Title)
}

func (a *App) currentSession() (models.ChatSession, error) {
	if a.current == "" {
		return models.ChatSession{}, fmt.Errorf("no chat open: %w", common.ErrNotFound)
	}
	return a.chats.Session(a.current)
}

// resolve finds a session by 1-based list index or by id.
func (a *App) resolve(ref string) (models.ChatSession, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return models.ChatSession{}, fmt.Errorf("chat number or id is required: %w", common.ErrValidation)
	}

	if n, err := strconv.Atoi(ref); err == nil {
		sessions, err := a.chats.Sessions()
		if err != nil {
			return models.ChatSession{}, err
		}
		if n < 1 || n > len(sessions) {
			return models.ChatSession{}, fmt.Errorf("chat %d: %w", n, common.ErrNotFound)
		}
		return sessions[n-1], nil
	}

	s, err := a.chats.Session(ref)
	if errors.Is(err, common.ErrNotFound) {
		return models.ChatSession{}, fmt.Errorf("chat %s: %w", ref, common.ErrNotFound)
	}
	return s, err
}

func (a *App) printSession(s models.ChatSession) error {
	fmt.Fprintf(a.out, "== %s ==\n", s.Title)
	if len(s.Messages) == 0 {
		fmt.Fprintln(a.out, "(empty)")
		return nil
	}
	for _, m := range s.Messages {
		who := "you"
		if m.Role == models.RoleModel {
			who = "cat"
		}
		if m.IsError {
			who += " (error)"
		}
		fmt.Fprintf(a.out, "[%s] %s: %s\n", formatStamp(m.Timestamp), who, m.Text)
		for _, src := range m.Sources {
			fmt.Fprintf(a.out, "    source: %s <%s>\n", src.Title, src.URI)
		}
	}
	return nil
}

func formatStamp(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

func sessionTitle(title string) services.SessionPatch {
	return services.SessionPatch{Title: &title}
}
