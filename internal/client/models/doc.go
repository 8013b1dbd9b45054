// Package models defines the chat types stored in the encrypted vault.
// JSON field names are part of the stored format and of backup files.
package models
