package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/orangecat/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Only the flags handled here are kept from os.Args (see flagx.FilterArgs),
// so the -c/-config flag does not trip the parser.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-b", "-l", "-f", "-o"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "SQLite database path")
	debounce := fs.Int("b", int(cfg.SaveDebounce.Milliseconds()), "chat save debounce (in milliseconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "f", cfg.LogFormat, "log format (text, json, zerolog)")
	fs.StringVar(&cfg.BackupDir, "o", cfg.BackupDir, "directory for backup files")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SaveDebounce = time.Duration(*debounce) * time.Millisecond
}
