// Package config loads runtime configuration for the OrangeCat client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c or -config. Files ending in
//     .yaml or .yml are read as YAML, anything else as JSON.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-d string   SQLite database path
//	-b int      chat save debounce (milliseconds)
//	-l string   log level: debug, info, warn, error
//	-f string   log format: text, json, zerolog
//	-o string   directory for backup files
//
// # File schema
//
// Durations use timex.Duration, so they can be strings like "500ms" or
// integer nanoseconds:
//
//	{
//	  "database_dsn": "orangecat.db",
//	  "save_debounce": "500ms",
//	  "log_level": "info",
//	  "log_format": "text",
//	  "backup_dir": "backups"
//	}
//
// Fields missing from the file keep their previous value.
package config
