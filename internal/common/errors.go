// Package common defines shared constants and sentinel errors used across
// the vault, the stores and the terminal client. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Input errors.
	ErrValidation    = errors.New("validation error")
	ErrAccountExists = errors.New("account already exists")

	// Credential errors.
	ErrCredentialRejected = errors.New("credential rejected")
	ErrNoAccount          = errors.New("no account found")

	// Session errors.
	ErrLocked       = errors.New("vault is locked")
	ErrInvalidState = errors.New("operation not allowed in current state")

	// Storage errors.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrCorruptedData      = errors.New("corrupted data")
	ErrNotFound           = errors.New("not found")
	ErrInvalidBackup      = errors.New("invalid backup")
)

// UserMessage converts an error returned by the vault into a message that is
// safe to show to the user. Cryptographic details never reach this level, so
// unknown errors collapse into a generic message.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "Invalid input: " + validationDetail(err)
	case errors.Is(err, ErrAccountExists):
		return "An account already exists on this device."
	case errors.Is(err, ErrNoAccount):
		return "No account found on this device. Set up a new one or restore a backup."
	case errors.Is(err, ErrCredentialRejected):
		return "Incorrect PIN or recovery code."
	case errors.Is(err, ErrLocked):
		return "The vault is locked."
	case errors.Is(err, ErrInvalidState):
		return "That action is not available right now."
	case errors.Is(err, ErrStorageUnavailable):
		return "Could not save data. Storage might be full or disabled."
	case errors.Is(err, ErrNotFound):
		return "Not found."
	case errors.Is(err, ErrInvalidBackup):
		return "Invalid or incompatible backup file."
	default:
		return "Something went wrong."
	}
}

// validationDetail strips the sentinel suffix from a wrapped validation error,
// leaving the human-written part ("PIN must be at least 4 characters").
func validationDetail(err error) string {
	msg := err.Error()
	suffix := ": " + ErrValidation.Error()
	if len(msg) > len(suffix) && msg[len(msg)-len(suffix):] == suffix {
		return msg[:len(msg)-len(suffix)]
	}
	return msg
}
