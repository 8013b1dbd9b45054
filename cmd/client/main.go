package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
	"github.com/dmitrijs2005/orangecat/internal/buildinfo"
	"github.com/dmitrijs2005/orangecat/internal/client/cli"
	"github.com/dmitrijs2005/orangecat/internal/client/config"
)

func main() {
	defer memguard.Purge()

	buildinfo.PrintBuildData(os.Stdout)

	// Ctrl-C cancels ctx so Run can flush pending chats before exit.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		memguard.Purge()
		log.Fatalf("%v", err)
	}

	app.Run(ctx)
}
