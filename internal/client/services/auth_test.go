package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/orangecat/internal/client/repositories/blobs"
	"github.com/dmitrijs2005/orangecat/internal/client/vault"
	"github.com/dmitrijs2005/orangecat/internal/common"
	"github.com/dmitrijs2005/orangecat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEmail = "cat@example.com"

func newAuth(t *testing.T, repo blobs.Repository, listeners ...SessionListener) AuthService {
	t.Helper()
	a := NewAuthService(repo, logging.Discard(), listeners...)
	require.NoError(t, a.Resume(context.Background()))
	return a
}

// setupUnlocked creates an account with pin and acknowledges the recovery code.
func setupUnlocked(t *testing.T, a AuthService, pin string) string {
	t.Helper()
	ctx := context.Background()

	code, err := a.Setup(ctx, testEmail, pin)
	require.NoError(t, err)
	require.NoError(t, a.Acknowledge(ctx, false))
	return code
}

func storedRecord(t *testing.T, repo blobs.Repository) *vault.AuthRecord {
	t.Helper()
	raw, err := repo.Get(context.Background(), common.BlobAuth)
	require.NoError(t, err)
	rec, err := vault.ParseRecord(raw)
	require.NoError(t, err)
	return rec
}

func TestResume_NoAccount(t *testing.T) {
	a := newAuth(t, blobs.NewMemoryRepository())
	assert.Equal(t, StateNoAccount, a.State())

	has, err := a.HasAccount(context.Background())
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSetup_AwaitingAckThenUnlocked(t *testing.T) {
	ctx := context.Background()
	repo := blobs.NewMemoryRepository()
	l := &recordingListener{}
	a := newAuth(t, repo, l)

	code, err := a.Setup(ctx, "  "+testEmail+" ", "1234")
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9A-F]{8}-[0-9A-F]{4}-[0-9A-F]{4}$`, code)
	assert.Equal(t, StateAwaitingRecoveryAck, a.State())

	shown, ok := a.RecoveryCode()
	require.True(t, ok)
	assert.Equal(t, code, shown)

	// Not unlocked yet: dependents have not been told.
	_, err = a.MasterKey()
	require.ErrorIs(t, err, common.ErrLocked)
	assert.Empty(t, l.Events())

	require.NoError(t, a.Acknowledge(ctx, false))
	assert.Equal(t, StateUnlocked, a.State())
	_, ok = a.RecoveryCode()
	assert.False(t, ok)

	key, err := a.MasterKey()
	require.NoError(t, err)
	assert.NotEmpty(t, key)
	assert.Equal(t, []string{"unlock"}, l.Events())
	assert.Equal(t, []string{key}, l.keys)

	email, err := a.Email(ctx)
	require.NoError(t, err)
	assert.Equal(t, testEmail, email)

	// Both envelopes of the persisted record open to the same key.
	rec := storedRecord(t, repo)
	byPin, ok := vault.UnlockByPin(rec, "1234")
	require.True(t, ok)
	byCode, ok := vault.UnlockByRecovery(rec, code)
	require.True(t, ok)
	assert.Equal(t, key, byPin)
	assert.Equal(t, key, byCode)
}

func TestSetup_Validation(t *testing.T) {
	repo := blobs.NewMemoryRepository()
	a := newAuth(t, repo)

	_, err := a.Setup(context.Background(), testEmail, "")
	require.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, StateNoAccount, a.State())

	has, err := a.HasAccount(context.Background())
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSetup_AccountExists(t *testing.T) {
	ctx := context.Background()
	repo := blobs.NewMemoryRepository()
	a := newAuth(t, repo)
	setupUnlocked(t, a, "1234")

	_, err := a.Setup(ctx, testEmail, "5678")
	require.ErrorIs(t, err, common.ErrAccountExists)

	// A fresh instance that skipped Resume still refuses to overwrite.
	b := NewAuthService(repo, logging.Discard())
	_, err = b.Setup(ctx, testEmail, "5678")
	require.ErrorIs(t, err, common.ErrAccountExists)
}

func TestSetup_StorageFailure(t *testing.T) {
	repo := newFaultyRepo()
	repo.setManyErr = errors.New("quota exceeded")
	a := newAuth(t, repo)

	_, err := a.Setup(context.Background(), testEmail, "1234")
	require.ErrorIs(t, err, common.ErrStorageUnavailable)
	assert.Equal(t, StateNoAccount, a.State())
	_, ok := a.RecoveryCode()
	assert.False(t, ok)
}

func TestSetup_VerificationFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := newFaultyRepo()
	a := newAuth(t, repo)
	repo.corruptReads = true

	_, err := a.Setup(ctx, testEmail, "1234")
	require.ErrorIs(t, err, common.ErrStorageUnavailable)
	assert.Equal(t, StateNoAccount, a.State())

	raw, err := repo.Repository.Get(ctx, common.BlobAuth)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestLoginRecoverScenario(t *testing.T) {
	ctx := context.Background()
	repo := blobs.NewMemoryRepository()
	a := newAuth(t, repo)

	code := setupUnlocked(t, a, "1234")
	original, err := a.MasterKey()
	require.NoError(t, err)
	require.NoError(t, a.Lock(ctx))

	require.NoError(t, a.Login(ctx, "1234", false))
	require.NoError(t, a.Lock(ctx))

	require.ErrorIs(t, a.Login(ctx, "9999", false), common.ErrCredentialRejected)
	assert.Equal(t, StateLocked, a.State())

	require.NoError(t, a.Recover(ctx, testEmail, code, "5678"))
	assert.Equal(t, StateUnlocked, a.State())
	key, err := a.MasterKey()
	require.NoError(t, err)
	assert.Equal(t, original, key)
	require.NoError(t, a.Lock(ctx))

	require.NoError(t, a.Login(ctx, "5678", false))
	require.NoError(t, a.Lock(ctx))
	require.ErrorIs(t, a.Login(ctx, "1234", false), common.ErrCredentialRejected)

	// The recovery envelope was not rotated.
	byCode, ok := vault.UnlockByRecovery(storedRecord(t, repo), code)
	require.True(t, ok)
	assert.Equal(t, original, byCode)
}

func TestRecover_EmailChecks(t *testing.T) {
	ctx := context.Background()
	repo := blobs.NewMemoryRepository()
	a := newAuth(t, repo)
	code := setupUnlocked(t, a, "1234")
	require.NoError(t, a.Lock(ctx))

	require.ErrorIs(t, a.Recover(ctx, "other@example.com", code, "5678"), common.ErrCredentialRejected)
	assert.Equal(t, StateLocked, a.State())

	require.NoError(t, a.Recover(ctx, "  CAT@Example.COM ", code, "5678"))
	email, err := a.Email(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CAT@Example.COM", email)
}

func TestRecover_NoStoredEmailAcceptsAny(t *testing.T) {
	ctx := context.Background()
	repo := blobs.NewMemoryRepository()
	a := newAuth(t, repo)
	code := setupUnlocked(t, a, "1234")
	require.NoError(t, a.Lock(ctx))
	require.NoError(t, repo.Delete(ctx, common.BlobEmail))

	require.NoError(t, a.Recover(ctx, "new@example.com", code, "5678"))
	email, err := a.Email(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", email)
}

func TestRecover_Rejections(t *testing.T) {
	ctx := context.Background()
	a := newAuth(t, blobs.NewMemoryRepository())
	code := setupUnlocked(t, a, "1234")
	require.NoError(t, a.Lock(ctx))

	require.ErrorIs(t, a.Recover(ctx, testEmail, "AAAAAAAA-BBBB-CCCC", "5678"), common.ErrCredentialRejected)
	require.ErrorIs(t, a.Recover(ctx, testEmail, code, ""), common.ErrValidation)
	assert.Equal(t, StateLocked, a.State())

	// Lower-case input is normalized.
	require.NoError(t, a.Recover(ctx, testEmail, " "+strings.ToLower(code)+" ", "5678"))
}

func TestLogin_CorruptRecordIsRejected(t *testing.T) {
	ctx := context.Background()
	repo := blobs.NewMemoryRepository()
	require.NoError(t, repo.Set(ctx, common.BlobAuth, []byte("{broken")))

	a := newAuth(t, repo)
	assert.Equal(t, StateLocked, a.State())
	require.ErrorIs(t, a.Login(ctx, "1234", false), common.ErrCredentialRejected)
}

func TestRememberMe(t *testing.T) {
	ctx := context.Background()
	repo := blobs.NewMemoryRepository()
	a := newAuth(t, repo)
	setupUnlocked(t, a, "1234")
	require.NoError(t, a.Lock(ctx))

	require.NoError(t, a.Login(ctx, "1234", true))
	key, err := a.MasterKey()
	require.NoError(t, err)

	token, err := repo.Get(ctx, common.BlobSession)
	require.NoError(t, err)
	assert.Equal(t, key, string(token))

	// Restart: the token unlocks without a PIN.
	l := &recordingListener{}
	b := newAuth(t, repo, l)
	assert.Equal(t, StateUnlocked, b.State())
	resumed, err := b.MasterKey()
	require.NoError(t, err)
	assert.Equal(t, key, resumed)
	assert.Equal(t, []string{"unlock"}, l.Events())

	// Lock forgets the token.
	require.NoError(t, b.Lock(ctx))
	token, err = repo.Get(ctx, common.BlobSession)
	require.NoError(t, err)
	assert.Nil(t, token)
	assert.Equal(t, []string{"unlock", "lock"}, l.Events())

	c := newAuth(t, repo)
	assert.Equal(t, StateLocked, c.State())
}

func TestUnlockWithoutRememberDropsStaleToken(t *testing.T) {
	ctx := context.Background()
	repo := blobs.NewMemoryRepository()
	a := newAuth(t, repo)
	code := setupUnlocked(t, a, "1234")
	require.NoError(t, a.Lock(ctx))

	assertNoToken := func() {
		t.Helper()
		token, err := repo.Get(ctx, common.BlobSession)
		require.NoError(t, err)
		assert.Nil(t, token)
	}

	require.NoError(t, repo.Set(ctx, common.BlobSession, []byte("stale")))
	require.NoError(t, a.Login(ctx, "1234", false))
	assertNoToken()
	require.NoError(t, a.Lock(ctx))

	require.NoError(t, repo.Set(ctx, common.BlobSession, []byte("stale")))
	require.NoError(t, a.Recover(ctx, testEmail, code, "5678"))
	assertNoToken()
}

func TestAcknowledge_Remember(t *testing.T) {
	ctx := context.Background()
	repo := blobs.NewMemoryRepository()
	a := newAuth(t, repo)

	_, err := a.Setup(ctx, testEmail, "1234")
	require.NoError(t, err)
	require.NoError(t, a.Acknowledge(ctx, true))

	token, err := repo.Get(ctx, common.BlobSession)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestLock_StorageFailureStillLocksMemory(t *testing.T) {
	ctx := context.Background()
	repo := newFaultyRepo()
	a := newAuth(t, repo)
	setupUnlocked(t, a, "1234")

	repo.deleteErr = errors.New("io error")
	require.ErrorIs(t, a.Lock(ctx), common.ErrStorageUnavailable)
	assert.Equal(t, StateLocked, a.State())
	_, err := a.MasterKey()
	require.ErrorIs(t, err, common.ErrLocked)
}

func TestNuke(t *testing.T) {
	ctx := context.Background()
	repo := blobs.NewMemoryRepository()
	l := &recordingListener{}
	a := newAuth(t, repo, l)
	code := setupUnlocked(t, a, "1234")

	require.NoError(t, a.Nuke(ctx))
	assert.Equal(t, StateNoAccount, a.State())
	_, err := a.MasterKey()
	require.ErrorIs(t, err, common.ErrLocked)
	assert.Equal(t, []string{"unlock", "reset"}, l.Events())

	for _, k := range []string{common.BlobAuth, common.BlobEmail, common.BlobSession} {
		v, err := repo.Get(ctx, k)
		require.NoError(t, err)
		assert.Nil(t, v, k)
	}

	require.ErrorIs(t, a.Login(ctx, "1234", false), common.ErrNoAccount)
	require.ErrorIs(t, a.Recover(ctx, testEmail, code, "5678"), common.ErrNoAccount)

	newCode, err := a.Setup(ctx, testEmail, "4321")
	require.NoError(t, err)
	assert.NotEqual(t, code, newCode)
	require.NoError(t, a.Acknowledge(ctx, false))
	require.NoError(t, a.Lock(ctx))
	require.NoError(t, a.Login(ctx, "4321", false))
}

func TestNuke_FromLocked(t *testing.T) {
	ctx := context.Background()
	a := newAuth(t, blobs.NewMemoryRepository())
	setupUnlocked(t, a, "1234")
	require.NoError(t, a.Lock(ctx))

	require.NoError(t, a.Nuke(ctx))
	assert.Equal(t, StateNoAccount, a.State())
}

func TestNuke_StorageFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	repo := newFaultyRepo()
	a := newAuth(t, repo)
	setupUnlocked(t, a, "1234")

	repo.deleteErr = errors.New("io error")
	require.ErrorIs(t, a.Nuke(ctx), common.ErrStorageUnavailable)
	assert.Equal(t, StateUnlocked, a.State())
}

func TestInvalidStateTransitions(t *testing.T) {
	ctx := context.Background()
	a := newAuth(t, blobs.NewMemoryRepository())

	require.ErrorIs(t, a.Acknowledge(ctx, false), common.ErrInvalidState)
	require.ErrorIs(t, a.Lock(ctx), common.ErrInvalidState)
	require.ErrorIs(t, a.Login(ctx, "1234", false), common.ErrNoAccount)

	setupUnlocked(t, a, "1234")
	require.ErrorIs(t, a.Login(ctx, "1234", false), common.ErrInvalidState)
	require.ErrorIs(t, a.Recover(ctx, testEmail, "X", "5678"), common.ErrInvalidState)
	require.ErrorIs(t, a.Resume(ctx), common.ErrInvalidState)
	require.ErrorIs(t, a.Acknowledge(ctx, false), common.ErrInvalidState)

	require.NoError(t, a.Lock(ctx))
	require.ErrorIs(t, a.Lock(ctx), common.ErrInvalidState)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "no-account", StateNoAccount.String())
	assert.Equal(t, "locked", StateLocked.String())
	assert.Equal(t, "unlocked", StateUnlocked.String())
	assert.Equal(t, "awaiting-recovery-ack", StateAwaitingRecoveryAck.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestValidatePIN(t *testing.T) {
	tests := []struct {
		name    string
		pin     string
		confirm string
		wantErr bool
	}{
		{"ok", "1234", "1234", false},
		{"too short", "123", "123", true},
		{"mismatch", "1234", "1235", true},
		{"unicode counted by rune", "ключ", "ключ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePIN(tt.pin, tt.confirm)
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrValidation)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateEmail(t *testing.T) {
	require.NoError(t, ValidateEmail("cat@example.com"))
	require.NoError(t, ValidateEmail(" cat@example.com "))
	for _, bad := range []string{"", "   ", "cat", "Cat <cat@example.com>", "@example.com"} {
		assert.ErrorIs(t, ValidateEmail(bad), common.ErrValidation, bad)
	}
}
