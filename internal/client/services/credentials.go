package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/dmitrijs2005/orangecat/internal/client/repositories/blobs"
	"github.com/dmitrijs2005/orangecat/internal/common"
	"github.com/dmitrijs2005/orangecat/internal/cryptox"
	"github.com/dmitrijs2005/orangecat/internal/logging"
)

// CredentialStore keeps the user's AI provider key encrypted under the
// master key. Unlike the chat history it is written immediately.
type CredentialStore struct {
	repo blobs.Repository
	log  logging.Logger

	mu     sync.Mutex
	master *memguard.Enclave
	value  *memguard.Enclave
	loaded bool
}

var _ SessionListener = (*CredentialStore)(nil)

func NewCredentialStore(repo blobs.Repository, log logging.Logger) *CredentialStore {
	return &CredentialStore{repo: repo, log: log.With("blob", common.BlobAPIKey)}
}

// Load decrypts the stored key. A blob that does not open is logged and
// treated as absent.
func (c *CredentialStore) Load(ctx context.Context, masterKey string) error {
	master, err := cryptox.SealSecret(masterKey)
	if err != nil {
		return err
	}

	raw, err := c.repo.Get(ctx, common.BlobAPIKey)
	if err != nil {
		return fmt.Errorf("load api key: %w: %v", common.ErrStorageUnavailable, err)
	}

	var value *memguard.Enclave
	if len(raw) > 0 {
		value = c.decode(ctx, raw, masterKey)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.master, c.value, c.loaded = master, value, true
	return nil
}

func (c *CredentialStore) decode(ctx context.Context, raw []byte, masterKey string) *memguard.Enclave {
	b, err := cryptox.ParseBundle(raw)
	var plaintext []byte
	if err == nil {
		plaintext, err = cryptox.Decrypt(b, masterKey)
	}
	if err == nil && len(plaintext) == 0 {
		err = cryptox.ErrEmptySecret
	}
	if err != nil {
		c.log.Warn(ctx, "stored api key is unreadable, ignoring it",
			"error", fmt.Errorf("%w: %v", common.ErrCorruptedData, err))
		return nil
	}
	// NewEnclave wipes plaintext.
	return memguard.NewEnclave(plaintext)
}

// Set cleans raw, encrypts it and stores it.
func (c *CredentialStore) Set(ctx context.Context, raw string) error {
	key := CleanAPIKey(raw)
	if key == "" {
		return fmt.Errorf("API key must not be empty: %w", common.ErrValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		return common.ErrLocked
	}

	var bundle *cryptox.Bundle
	err := cryptox.WithSecret(c.master, func(masterKey string) error {
		var err error
		bundle, err = cryptox.Encrypt([]byte(key), masterKey)
		return err
	})
	if err != nil {
		return fmt.Errorf("encrypt api key: %w", err)
	}
	data, err := bundle.Marshal()
	if err != nil {
		return fmt.Errorf("encode api key: %w", err)
	}
	if err := c.repo.Set(ctx, common.BlobAPIKey, data); err != nil {
		c.log.Error(ctx, "failed to save api key", "error", err)
		return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}

	value, err := cryptox.SealSecret(key)
	if err != nil {
		return err
	}
	c.value = value
	return nil
}

// Remove deletes the stored key.
func (c *CredentialStore) Remove(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		return common.ErrLocked
	}
	if err := c.repo.Delete(ctx, common.BlobAPIKey); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	c.value = nil
	return nil
}

// Get returns the plaintext key for the provider client.
func (c *CredentialStore) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.value == nil {
		return "", false
	}
	var out string
	err := cryptox.WithSecret(c.value, func(s string) error {
		out = strings.Clone(s)
		return nil
	})
	if err != nil {
		return "", false
	}
	return out, true
}

func (c *CredentialStore) OnUnlock(ctx context.Context, masterKey string) error {
	return c.Load(ctx, masterKey)
}

func (c *CredentialStore) OnLock(ctx context.Context) error {
	c.drop()
	return nil
}

func (c *CredentialStore) OnReset(ctx context.Context) error {
	c.drop()
	if err := c.repo.Delete(ctx, common.BlobAPIKey); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	return nil
}

func (c *CredentialStore) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.master, c.value, c.loaded = nil, nil, false
}

// CleanAPIKey drops characters outside printable ASCII and trims spaces.
// Keys pasted from web pages often carry zero-width or non-breaking spaces.
func CleanAPIKey(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= 0x20 && r <= 0x7e {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
