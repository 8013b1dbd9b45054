package config

import (
	"time"

	"github.com/dmitrijs2005/orangecat/internal/logging"
)

// Config holds runtime settings for the OrangeCat client.
type Config struct {
	DatabaseDSN  string
	SaveDebounce time.Duration
	LogLevel     string
	LogFormat    string
	BackupDir    string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "orangecat.db"
	c.SaveDebounce = 500 * time.Millisecond
	c.LogLevel = "warn"
	c.LogFormat = logging.FormatText
	c.BackupDir = "backups"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the config file (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
