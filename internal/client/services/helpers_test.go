package services

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/orangecat/internal/client/repositories/blobs"
)

// faultyRepo wraps a repository and injects failures.
type faultyRepo struct {
	blobs.Repository

	mu         sync.Mutex
	setManyErr error
	deleteErr  error
	// corruptReads makes Get return different bytes than were written.
	corruptReads bool
}

func newFaultyRepo() *faultyRepo {
	return &faultyRepo{Repository: blobs.NewMemoryRepository()}
}

func (r *faultyRepo) Get(ctx context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	corrupt := r.corruptReads
	r.mu.Unlock()

	v, err := r.Repository.Get(ctx, key)
	if corrupt && v != nil {
		return append(v, '!'), err
	}
	return v, err
}

func (r *faultyRepo) SetMany(ctx context.Context, values map[string][]byte) error {
	r.mu.Lock()
	err := r.setManyErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.Repository.SetMany(ctx, values)
}

func (r *faultyRepo) DeleteMany(ctx context.Context, keys ...string) error {
	r.mu.Lock()
	err := r.deleteErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.Repository.DeleteMany(ctx, keys...)
}

// recordingListener records session hooks in order.
type recordingListener struct {
	mu     sync.Mutex
	events []string
	keys   []string
}

func (l *recordingListener) OnUnlock(ctx context.Context, masterKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "unlock")
	l.keys = append(l.keys, masterKey)
	return nil
}

func (l *recordingListener) OnLock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "lock")
	return nil
}

func (l *recordingListener) OnReset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "reset")
	return nil
}

func (l *recordingListener) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// countingRepo counts single-blob writes.
type countingRepo struct {
	blobs.Repository

	mu   sync.Mutex
	sets map[string]int
}

func newCountingRepo() *countingRepo {
	return &countingRepo{Repository: blobs.NewMemoryRepository(), sets: map[string]int{}}
}

func (r *countingRepo) Set(ctx context.Context, key string, value []byte) error {
	r.mu.Lock()
	r.sets[key]++
	r.mu.Unlock()
	return r.Repository.Set(ctx, key, value)
}

func (r *countingRepo) writes(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sets[key]
}
