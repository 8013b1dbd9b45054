package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/orangecat/internal/flagx"
	"github.com/dmitrijs2005/orangecat/internal/timex"
	"gopkg.in/yaml.v3"
)

// fileConfig is a DTO used only for decoding. Pointer fields tell "absent"
// apart from zero values.
type fileConfig struct {
	DatabaseDSN  *string         `json:"database_dsn" yaml:"database_dsn"`
	SaveDebounce *timex.Duration `json:"save_debounce" yaml:"save_debounce"`
	LogLevel     *string         `json:"log_level" yaml:"log_level"`
	LogFormat    *string         `json:"log_format" yaml:"log_format"`
	BackupDir    *string         `json:"backup_dir" yaml:"backup_dir"`
}

// parseFile overlays cfg with the file named by -c/-config. It panics on
// read or decode errors.
func parseFile(cfg *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		panic(err)
	}

	fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) {
	if fc.DatabaseDSN != nil {
		cfg.DatabaseDSN = *fc.DatabaseDSN
	}
	if fc.SaveDebounce != nil {
		cfg.SaveDebounce = fc.SaveDebounce.Duration
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.LogFormat != nil {
		cfg.LogFormat = *fc.LogFormat
	}
	if fc.BackupDir != nil {
		cfg.BackupDir = *fc.BackupDir
	}
}
