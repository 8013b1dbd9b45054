package collection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/orangecat/internal/client/repositories/blobs"
	"github.com/dmitrijs2005/orangecat/internal/common"
	"github.com/dmitrijs2005/orangecat/internal/cryptox"
	"github.com/dmitrijs2005/orangecat/internal/logging"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const (
	testKey   = "notes"
	masterKey = "0b6f1a4e-2f1c-4d55-9a3e-7c2d9e8f1a2b"
)

type note struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// countingRepo records writes and can be told to fail.
type countingRepo struct {
	blobs.Repository

	mu      sync.Mutex
	sets    int
	getErr  error
	setErr  error
	lastSet []byte
}

func newCountingRepo() *countingRepo {
	return &countingRepo{Repository: blobs.NewMemoryRepository()}
}

func (r *countingRepo) Get(ctx context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	err := r.getErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.Repository.Get(ctx, key)
}

func (r *countingRepo) Set(ctx context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setErr != nil {
		return r.setErr
	}
	r.sets++
	r.lastSet = value
	return r.Repository.Set(ctx, key, value)
}

func (r *countingRepo) setCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sets
}

func (r *countingRepo) failWrites(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setErr = err
}

func newStore(repo blobs.Repository, debounce time.Duration) *Store[note] {
	return New[note](repo, testKey, debounce, logging.Discard())
}

func appendNote(n note) func([]note) []note {
	return func(items []note) []note { return append(items, n) }
}

func TestLoad_MissingBlobIsEmpty(t *testing.T) {
	s := newStore(newCountingRepo(), time.Hour)

	items, err := s.Load(context.Background(), masterKey)
	require.NoError(t, err)
	require.Empty(t, items)
	require.True(t, s.Loaded())
}

func TestLoad_EmptyMasterKey(t *testing.T) {
	s := newStore(newCountingRepo(), time.Hour)

	_, err := s.Load(context.Background(), "")
	require.Error(t, err)
	require.False(t, s.Loaded())
}

func TestUpdate_BeforeLoad(t *testing.T) {
	s := newStore(newCountingRepo(), time.Hour)

	err := s.Update(appendNote(note{ID: "1"}))
	require.ErrorIs(t, err, ErrNotLoaded)
	require.ErrorIs(t, err, common.ErrLocked)
	require.ErrorIs(t, s.View(func([]note) {}), ErrNotLoaded)
}

func TestRoundtrip_PreservesOrder(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()

	s := newStore(repo, time.Hour)
	_, err := s.Load(ctx, masterKey)
	require.NoError(t, err)

	want := []note{{ID: "1", Text: "first"}, {ID: "2", Text: "second"}, {ID: "3", Text: "third"}}
	for _, n := range want {
		require.NoError(t, s.Update(appendNote(n)))
	}
	require.NoError(t, s.Flush(ctx))

	// The blob holds ciphertext only.
	raw, err := repo.Get(ctx, testKey)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "first")

	reloaded := newStore(repo, time.Hour)
	got, err := reloaded.Load(ctx, masterKey)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("reloaded collection mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_WrongKeyYieldsEmptyAndKeepsBlob(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()

	s := newStore(repo, time.Hour)
	_, err := s.Load(ctx, masterKey)
	require.NoError(t, err)
	require.NoError(t, s.Update(appendNote(note{ID: "1"})))
	require.NoError(t, s.Flush(ctx))

	before, err := repo.Get(ctx, testKey)
	require.NoError(t, err)

	other := newStore(repo, time.Hour)
	items, err := other.Load(ctx, "another-key")
	require.NoError(t, err)
	require.Empty(t, items)

	// Loading alone never writes.
	require.NoError(t, other.Flush(ctx))
	after, err := repo.Get(ctx, testKey)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestLoad_CorruptBlobs(t *testing.T) {
	ctx := context.Background()

	notJSON, err := cryptox.Encrypt([]byte("not json"), masterKey)
	require.NoError(t, err)
	notJSONRaw, err := notJSON.Marshal()
	require.NoError(t, err)

	for name, raw := range map[string][]byte{
		"garbage":    []byte("\x00\x01garbage"),
		"bad bundle": []byte(`{"s":"AAAA","iv":"AAAA","d":"AAAA"}`),
		"not json":   notJSONRaw,
	} {
		t.Run(name, func(t *testing.T) {
			repo := blobs.NewMemoryRepository()
			require.NoError(t, repo.Set(ctx, testKey, raw))

			items, err := newStore(repo, time.Hour).Load(ctx, masterKey)
			require.NoError(t, err)
			require.Empty(t, items)
		})
	}
}

func TestLoad_ReadFailure(t *testing.T) {
	repo := newCountingRepo()
	repo.getErr = errors.New("disk gone")

	s := newStore(repo, time.Hour)
	_, err := s.Load(context.Background(), masterKey)
	require.ErrorIs(t, err, common.ErrStorageUnavailable)
	require.False(t, s.Loaded())
}

func TestDebounce_BurstProducesSingleWrite(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	debounce := 50 * time.Millisecond

	s := newStore(repo, debounce)
	_, err := s.Load(ctx, masterKey)
	require.NoError(t, err)

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, s.Update(appendNote(note{ID: id})))
	}

	require.Eventually(t, func() bool { return repo.setCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(3 * debounce)
	require.Equal(t, 1, repo.setCount())

	got, err := newStore(repo, time.Hour).Load(ctx, masterKey)
	require.NoError(t, err)
	require.Equal(t, []note{{ID: "1"}, {ID: "2"}, {ID: "3"}}, got)
}

func TestFlush_NothingPendingDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()

	s := newStore(repo, time.Hour)
	_, err := s.Load(ctx, masterKey)
	require.NoError(t, err)

	require.NoError(t, s.Flush(ctx))
	require.Equal(t, 0, repo.setCount())
}

func TestFlush_WriteFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()

	s := newStore(repo, time.Hour)
	_, err := s.Load(ctx, masterKey)
	require.NoError(t, err)
	require.NoError(t, s.Update(appendNote(note{ID: "1"})))

	repo.failWrites(errors.New("quota exceeded"))
	require.ErrorIs(t, s.Flush(ctx), common.ErrStorageUnavailable)

	repo.failWrites(nil)
	require.NoError(t, s.Flush(ctx))
	require.Equal(t, 1, repo.setCount())
}

func TestClose_FlushesAndLocks(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()

	s := newStore(repo, time.Hour)
	_, err := s.Load(ctx, masterKey)
	require.NoError(t, err)
	require.NoError(t, s.Update(appendNote(note{ID: "1"})))

	require.NoError(t, s.Close(ctx))
	require.Equal(t, 1, repo.setCount())
	require.False(t, s.Loaded())
	require.ErrorIs(t, s.Update(appendNote(note{ID: "2"})), ErrNotLoaded)
}

func TestReset_DiscardsPendingSave(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	debounce := 20 * time.Millisecond

	s := newStore(repo, debounce)
	_, err := s.Load(ctx, masterKey)
	require.NoError(t, err)
	require.NoError(t, s.Update(appendNote(note{ID: "1"})))
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Update(appendNote(note{ID: "2"})))

	require.NoError(t, s.Reset(ctx))
	time.Sleep(5 * debounce)

	require.Equal(t, 1, repo.setCount())
	raw, err := repo.Get(ctx, testKey)
	require.NoError(t, err)
	require.Nil(t, raw)
	require.False(t, s.Loaded())
}

func TestClear_DeletesBlobAndStaysLoaded(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()

	s := newStore(repo, time.Hour)
	_, err := s.Load(ctx, masterKey)
	require.NoError(t, err)
	require.NoError(t, s.Update(appendNote(note{ID: "1"})))
	require.NoError(t, s.Flush(ctx))

	require.NoError(t, s.Clear(ctx))
	raw, err := repo.Get(ctx, testKey)
	require.NoError(t, err)
	require.Nil(t, raw)

	require.True(t, s.Loaded())
	require.NoError(t, s.View(func(items []note) { require.Empty(t, items) }))
	require.NoError(t, s.Update(appendNote(note{ID: "2"})))
}

func TestClear_BeforeLoad(t *testing.T) {
	s := newStore(newCountingRepo(), time.Hour)
	require.ErrorIs(t, s.Clear(context.Background()), ErrNotLoaded)
}

func TestSessionHooks(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()

	s := newStore(repo, time.Hour)
	require.NoError(t, s.OnUnlock(ctx, masterKey))
	require.True(t, s.Loaded())
	require.NoError(t, s.Update(appendNote(note{ID: "1"})))

	require.NoError(t, s.OnLock(ctx))
	require.False(t, s.Loaded())
	require.Equal(t, 1, repo.setCount())

	require.NoError(t, s.OnUnlock(ctx, masterKey))
	require.NoError(t, s.View(func(items []note) { require.Len(t, items, 1) }))

	require.NoError(t, s.OnReset(ctx))
	raw, err := repo.Get(ctx, testKey)
	require.NoError(t, err)
	require.Nil(t, raw)
}
