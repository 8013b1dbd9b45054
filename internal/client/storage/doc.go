// Package storage opens the local SQLite database and applies the embedded
// goose migrations before any repository touches it.
package storage
