package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/orangecat/internal/client/config"
	"github.com/dmitrijs2005/orangecat/internal/client/models"
	"github.com/dmitrijs2005/orangecat/internal/client/repositories/blobs"
	"github.com/dmitrijs2005/orangecat/internal/client/services"
	"github.com/dmitrijs2005/orangecat/internal/client/storage"
	"github.com/dmitrijs2005/orangecat/internal/logging"
)

// chatStore is the part of services.ChatStore the commands use.
type chatStore interface {
	NewSession(title string) models.ChatSession
	AddSession(s models.ChatSession) error
	UpdateSession(id string, patch services.SessionPatch) error
	AppendMessage(sessionID string, msg models.Message) error
	DeleteSession(id string) error
	ClearAll(ctx context.Context) error
	Sessions() ([]models.ChatSession, error)
	Session(id string) (models.ChatSession, error)
	MostRecent() (models.ChatSession, error)
	Flush(ctx context.Context) error
}

// credentialStore is the part of services.CredentialStore the commands use.
type credentialStore interface {
	Set(ctx context.Context, raw string) error
	Remove(ctx context.Context) error
	Get() (string, bool)
}

type App struct {
	config      *config.Config
	db          *sql.DB
	repo        blobs.Repository
	authService services.AuthService
	chats       chatStore
	credentials credentialStore
	log         logging.Logger

	reader *bufio.Reader
	out    io.Writer
	now    func() time.Time

	// current is the id of the open chat session.
	current string
}

// NewApp opens the vault database and restores the auth state. An empty
// DSN keeps the vault in memory only; nothing survives exit.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log := logging.New(c.LogFormat, c.LogLevel, os.Stderr)

	if c.DatabaseDSN == "" {
		log.Warn(ctx, "no database configured, vault is ephemeral")
		app := newApp(c, blobs.NewMemoryRepository(), log)
		if err := app.authService.Resume(ctx); err != nil {
			return nil, fmt.Errorf("restore auth state: %w", err)
		}
		return app, nil
	}

	db, err := storage.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		log.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	repo := blobs.NewSQLiteRepository(db)
	app := newApp(c, repo, log)
	app.db = db

	if err := app.authService.Resume(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("restore auth state: %w", err)
	}
	return app, nil
}

// newApp wires the services around repo without touching the database.
func newApp(c *config.Config, repo blobs.Repository, log logging.Logger) *App {
	chats := services.NewChatStore(repo, c.SaveDebounce, log)
	creds := services.NewCredentialStore(repo, log)

	return &App{
		config:      c,
		repo:        repo,
		authService: services.NewAuthService(repo, log, chats, creds),
		chats:       chats,
		credentials: creds,
		log:         log,
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		now:         time.Now,
	}
}

// Run starts the REPL and blocks until the user exits, stdin closes or ctx
// is cancelled. Pending chat edits are flushed before it returns.
func (a *App) Run(ctx context.Context) {
	defer a.Close(ctx)

	fmt.Fprintln(a.out, "OrangeCat vault (type 'help' for commands)")
	a.greet(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		runREPL(ctx, a, a.getStatus, bufio.NewScanner(lineReader{a.reader}))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// The REPL goroutine stays blocked on stdin until the process exits.
		fmt.Fprintln(a.out)
		a.log.Info(ctx, "interrupted, saving and exiting")
	}
}

// Close flushes pending chat changes and closes the database. It still
// writes when ctx is already cancelled.
func (a *App) Close(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if a.authService.State() == services.StateUnlocked {
		if err := a.chats.Flush(ctx); err != nil {
			a.log.Error(ctx, "failed to flush chats on exit", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error(ctx, "failed to close database", "error", err)
		}
	}
}

func (a *App) state() services.State {
	return a.authService.State()
}

func (a *App) greet(ctx context.Context) {
	switch a.state() {
	case services.StateNoAccount:
		fmt.Fprintln(a.out, "No vault on this device yet. Type 'setup' to create one or 'restore <file>' to load a backup.")
	case services.StateLocked:
		fmt.Fprintln(a.out, "Vault is locked. Type 'login' to unlock.")
	case services.StateUnlocked:
		fmt.Fprintln(a.out, "Vault unlocked from a remembered session.")
		a.openMostRecent()
	}
}

func (a *App) getStatus() string {
	s := a.state().String()
	if a.state() == services.StateUnlocked && a.current != "" {
		if sess, err := a.chats.Session(a.current); err == nil {
			s += " | " + sess.Title
		}
	}
	return fmt.Sprintf("(%s)", s)
}
