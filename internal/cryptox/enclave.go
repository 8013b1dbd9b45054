package cryptox

import (
	"errors"

	"github.com/awnumar/memguard"
)

var ErrEmptySecret = errors.New("empty secret")

// SealSecret moves s into an encrypted memguard enclave.
func SealSecret(s string) (*memguard.Enclave, error) {
	if s == "" {
		return nil, ErrEmptySecret
	}
	// NewEnclave wipes its argument, so hand it a private copy.
	return memguard.NewEnclave([]byte(s)), nil
}

// WithSecret opens the enclave for the duration of fn. The locked buffer is
// destroyed when fn returns; fn must not retain the string.
func WithSecret(e *memguard.Enclave, fn func(secret string) error) error {
	if e == nil {
		return ErrEmptySecret
	}
	buffer, err := e.Open()
	if err != nil {
		return err
	}
	defer buffer.Destroy()

	return fn(string(buffer.Bytes()))
}
