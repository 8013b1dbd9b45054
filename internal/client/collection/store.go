package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/dmitrijs2005/orangecat/internal/client/repositories/blobs"
	"github.com/dmitrijs2005/orangecat/internal/common"
	"github.com/dmitrijs2005/orangecat/internal/cryptox"
	"github.com/dmitrijs2005/orangecat/internal/logging"
)

// DefaultDebounce is the quiet period after the last mutation before the
// collection is written.
const DefaultDebounce = 500 * time.Millisecond

var ErrNotLoaded = fmt.Errorf("collection not loaded: %w", common.ErrLocked)

type Store[T any] struct {
	repo     blobs.Repository
	key      string
	debounce time.Duration
	log      logging.Logger

	mu     sync.Mutex
	items  []T
	secret *memguard.Enclave
	loaded bool
	dirty  bool
	timer  *time.Timer
	// epoch changes whenever the in-memory state is dropped or replaced;
	// a save started under an older epoch is discarded.
	epoch uint64

	saveMu sync.Mutex
}

func New[T any](repo blobs.Repository, key string, debounce time.Duration, log logging.Logger) *Store[T] {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Store[T]{
		repo:     repo,
		key:      key,
		debounce: debounce,
		log:      log.With("blob", key),
	}
}

// Load decrypts the stored blob with masterKey and makes the store writable.
// A missing blob yields an empty list. A blob that fails to decrypt or decode
// is logged and also yields an empty list.
func (s *Store[T]) Load(ctx context.Context, masterKey string) ([]T, error) {
	secret, err := cryptox.SealSecret(masterKey)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.key, err)
	}

	raw, err := s.repo.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w: %v", s.key, common.ErrStorageUnavailable, err)
	}

	items := s.decode(ctx, raw, masterKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimer()
	s.epoch++
	s.items = items
	s.secret = secret
	s.loaded = true
	s.dirty = false

	s.log.Debug(ctx, "collection loaded", "count", len(items))
	return append([]T(nil), items...), nil
}

func (s *Store[T]) decode(ctx context.Context, raw []byte, masterKey string) []T {
	items := []T{}
	if len(raw) == 0 {
		return items
	}

	bundle, err := cryptox.ParseBundle(raw)
	if err == nil {
		err = cryptox.OpenJSON(bundle, masterKey, &items)
	}
	if err != nil {
		s.log.Warn(ctx, "stored collection is unreadable, starting empty",
			"error", fmt.Errorf("%w: %v", common.ErrCorruptedData, err))
		return []T{}
	}
	if items == nil {
		items = []T{}
	}
	return items
}

// Loaded reports whether Load has completed and the store accepts updates.
func (s *Store[T]) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Update replaces the in-memory list with fn(current) and reschedules the
// save. fn runs under the store lock and must not call back into the store.
func (s *Store[T]) Update(fn func([]T) []T) error {
	return s.TryUpdate(func(items []T) ([]T, error) {
		return fn(items), nil
	})
}

// TryUpdate is Update for changes that can fail. When fn returns an error
// the list is left untouched and no save is scheduled.
func (s *Store[T]) TryUpdate(fn func([]T) ([]T, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ErrNotLoaded
	}
	items, err := fn(s.items)
	if err != nil {
		return err
	}
	s.items = items
	s.dirty = true
	s.schedule()
	return nil
}

// View runs fn over the current list under the store lock. fn must copy
// anything it keeps.
func (s *Store[T]) View(fn func([]T)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ErrNotLoaded
	}
	fn(s.items)
	return nil
}

// schedule must be called with s.mu held.
func (s *Store[T]) schedule() {
	s.stopTimer()
	epoch := s.epoch
	s.timer = time.AfterFunc(s.debounce, func() {
		_ = s.save(context.Background(), epoch)
	})
}

// stopTimer must be called with s.mu held.
func (s *Store[T]) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Store[T]) save(ctx context.Context, epoch uint64) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if epoch != s.epoch || !s.loaded || !s.dirty {
		s.mu.Unlock()
		return nil
	}
	plaintext, err := json.Marshal(s.items)
	secret := s.secret
	s.dirty = false
	s.mu.Unlock()

	if err != nil {
		s.log.Error(ctx, "failed to encode collection", "error", err)
		return fmt.Errorf("save %s: %w", s.key, err)
	}
	defer common.WipeByteArray(plaintext)

	var bundle *cryptox.Bundle
	err = cryptox.WithSecret(secret, func(masterKey string) error {
		var err error
		bundle, err = cryptox.Encrypt(plaintext, masterKey)
		return err
	})
	if err == nil {
		var raw []byte
		if raw, err = bundle.Marshal(); err == nil {
			err = s.repo.Set(ctx, s.key, raw)
		}
	}
	if err != nil {
		s.mu.Lock()
		if epoch == s.epoch {
			s.dirty = true
		}
		s.mu.Unlock()

		err = fmt.Errorf("save %s: %w: %v", s.key, common.ErrStorageUnavailable, err)
		s.log.Error(ctx, "failed to save collection", "error", err)
		return err
	}

	s.log.Debug(ctx, "collection saved", "bytes", len(plaintext))
	return nil
}

// Flush writes a pending change now instead of waiting for the debounce.
func (s *Store[T]) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.stopTimer()
	epoch := s.epoch
	s.mu.Unlock()

	return s.save(ctx, epoch)
}

// Close flushes pending changes and then forgets the plaintext and the key.
func (s *Store[T]) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.drop()
	return err
}

// Clear empties the collection and deletes its blob. The store stays loaded.
func (s *Store[T]) Clear(ctx context.Context) error {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	s.stopTimer()
	s.epoch++
	s.items = []T{}
	s.dirty = false
	s.mu.Unlock()

	return s.deleteBlob(ctx)
}

// Reset drops everything without saving and deletes the blob.
func (s *Store[T]) Reset(ctx context.Context) error {
	s.drop()
	return s.deleteBlob(ctx)
}

func (s *Store[T]) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimer()
	s.epoch++
	s.items = nil
	s.secret = nil
	s.loaded = false
	s.dirty = false
}

func (s *Store[T]) deleteBlob(ctx context.Context) error {
	// Waits for an in-flight save so it cannot land after the delete.
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := s.repo.Delete(ctx, s.key); err != nil {
		err = fmt.Errorf("delete %s: %w: %v", s.key, common.ErrStorageUnavailable, err)
		s.log.Error(ctx, "failed to delete collection", "error", err)
		return err
	}
	return nil
}

// OnUnlock loads the collection with the freshly unlocked master key.
func (s *Store[T]) OnUnlock(ctx context.Context, masterKey string) error {
	_, err := s.Load(ctx, masterKey)
	return err
}

func (s *Store[T]) OnLock(ctx context.Context) error {
	return s.Close(ctx)
}

func (s *Store[T]) OnReset(ctx context.Context) error {
	return s.Reset(ctx)
}
