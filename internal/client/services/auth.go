// Package services contains the application services of the OrangeCat client.
// This file defines the authentication state machine: setup, login, recovery,
// lock, remember-me resume and full reset of the local vault.
package services

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/awnumar/memguard"
	"github.com/dmitrijs2005/orangecat/internal/client/repositories/blobs"
	"github.com/dmitrijs2005/orangecat/internal/client/vault"
	"github.com/dmitrijs2005/orangecat/internal/common"
	"github.com/dmitrijs2005/orangecat/internal/cryptox"
	"github.com/dmitrijs2005/orangecat/internal/logging"
)

// MinPINLength is enforced by ValidatePIN. The state machine itself only
// rejects an empty PIN.
const MinPINLength = 4

type State int

const (
	StateNoAccount State = iota
	StateLocked
	StateUnlocked
	StateAwaitingRecoveryAck
)

func (s State) String() string {
	switch s {
	case StateNoAccount:
		return "no-account"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	case StateAwaitingRecoveryAck:
		return "awaiting-recovery-ack"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionListener is implemented by stores that depend on the master key.
// Hooks run after a transition is committed; their errors are logged and do
// not undo the transition.
type SessionListener interface {
	OnUnlock(ctx context.Context, masterKey string) error
	OnLock(ctx context.Context) error
	OnReset(ctx context.Context) error
}

// AuthService owns the auth, email and session blobs and exposes the master
// key only while unlocked.
//
// Contract:
//   - Resume: restore the state from storage at startup.
//   - Setup / Acknowledge: create the account and confirm the recovery code.
//   - Login / Recover: unlock by PIN or by recovery code.
//   - Lock / Nuke: forget the key, or erase the account entirely.
//
// Operations invoked in the wrong state return common.ErrInvalidState.
type AuthService interface {
	Resume(ctx context.Context) error
	Setup(ctx context.Context, email, pin string) (string, error)
	RecoveryCode() (string, bool)
	Acknowledge(ctx context.Context, remember bool) error
	Login(ctx context.Context, pin string, remember bool) error
	Recover(ctx context.Context, email, code, newPin string) error
	Lock(ctx context.Context) error
	Nuke(ctx context.Context) error

	State() State
	Email(ctx context.Context) (string, error)
	HasAccount(ctx context.Context) (bool, error)
	MasterKey() (string, error)
}

type hook int

const (
	hookNone hook = iota
	hookUnlock
	hookLock
	hookReset
)

// effects are the storage changes a transition needs.
type effects struct {
	put map[string][]byte
	del []string
	// verify reads every put blob back and compares it.
	verify bool
}

type transition struct {
	next      State
	masterKey string
	code      string
	fx        effects
	hook      hook
	// force commits the in-memory part even when storage fails.
	force bool
}

type authService struct {
	repo      blobs.Repository
	log       logging.Logger
	listeners []SessionListener

	mu    sync.Mutex
	state State
	key   *memguard.Enclave
	code  string
}

func NewAuthService(repo blobs.Repository, log logging.Logger, listeners ...SessionListener) AuthService {
	return &authService{
		repo:      repo,
		log:       log.With("component", "auth"),
		listeners: listeners,
	}
}

func (a *authService) Resume(ctx context.Context) error {
	a.mu.Lock()
	if a.state == StateUnlocked || a.state == StateAwaitingRecoveryAck {
		a.mu.Unlock()
		return common.ErrInvalidState
	}

	t, err := a.resume(ctx)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	return a.commit(ctx, t)
}

func (a *authService) resume(ctx context.Context) (transition, error) {
	raw, err := a.get(ctx, common.BlobAuth)
	if err != nil {
		return transition{}, err
	}
	if raw == nil {
		return transition{next: StateNoAccount}, nil
	}

	token, err := a.get(ctx, common.BlobSession)
	if err != nil {
		return transition{}, err
	}
	if len(token) > 0 {
		// Remember-me: the token is the plaintext master key.
		return transition{next: StateUnlocked, masterKey: string(token), hook: hookUnlock}, nil
	}
	return transition{next: StateLocked}, nil
}

func (a *authService) Setup(ctx context.Context, email, pin string) (string, error) {
	a.mu.Lock()
	if a.state != StateNoAccount {
		a.mu.Unlock()
		return "", common.ErrAccountExists
	}

	t, err := a.setup(ctx, email, pin)
	if err != nil {
		a.mu.Unlock()
		return "", err
	}
	if err := a.commit(ctx, t); err != nil {
		return "", err
	}
	return t.code, nil
}

func (a *authService) setup(ctx context.Context, email, pin string) (transition, error) {
	if pin == "" {
		return transition{}, fmt.Errorf("PIN must not be empty: %w", common.ErrValidation)
	}

	existing, err := a.get(ctx, common.BlobAuth)
	if err != nil {
		return transition{}, err
	}
	if existing != nil {
		return transition{}, common.ErrAccountExists
	}

	creds, err := vault.Create(pin)
	if err != nil {
		return transition{}, fmt.Errorf("create credentials: %w", err)
	}
	raw, err := creds.Record.Marshal()
	if err != nil {
		return transition{}, fmt.Errorf("encode auth record: %w", err)
	}

	put := map[string][]byte{common.BlobAuth: raw}
	if email = strings.TrimSpace(email); email != "" {
		put[common.BlobEmail] = []byte(email)
	}

	return transition{
		next:      StateAwaitingRecoveryAck,
		masterKey: creds.MasterKey,
		code:      creds.RecoveryCode,
		fx:        effects{put: put, del: []string{common.BlobSession}, verify: true},
	}, nil
}

func (a *authService) RecoveryCode() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateAwaitingRecoveryAck || a.code == "" {
		return "", false
	}
	return a.code, true
}

func (a *authService) Acknowledge(ctx context.Context, remember bool) error {
	a.mu.Lock()
	if a.state != StateAwaitingRecoveryAck {
		a.mu.Unlock()
		return common.ErrInvalidState
	}

	masterKey, err := a.openKey()
	if err != nil {
		a.mu.Unlock()
		return err
	}
	return a.commit(ctx, transition{
		next:      StateUnlocked,
		masterKey: masterKey,
		fx:        sessionEffects(masterKey, remember),
		hook:      hookUnlock,
	})
}

func (a *authService) Login(ctx context.Context, pin string, remember bool) error {
	a.mu.Lock()
	if a.state == StateUnlocked || a.state == StateAwaitingRecoveryAck {
		a.mu.Unlock()
		return common.ErrInvalidState
	}

	t, err := a.login(ctx, pin, remember)
	if err != nil {
		a.mu.Unlock()
		a.log.Info(ctx, "login rejected")
		return err
	}
	return a.commit(ctx, t)
}

func (a *authService) login(ctx context.Context, pin string, remember bool) (transition, error) {
	rec, err := a.record(ctx)
	if err != nil {
		return transition{}, err
	}

	masterKey, ok := vault.UnlockByPin(rec, pin)
	if !ok {
		return transition{}, common.ErrCredentialRejected
	}
	return transition{
		next:      StateUnlocked,
		masterKey: masterKey,
		fx:        sessionEffects(masterKey, remember),
		hook:      hookUnlock,
	}, nil
}

func (a *authService) Recover(ctx context.Context, email, code, newPin string) error {
	a.mu.Lock()
	if a.state == StateUnlocked || a.state == StateAwaitingRecoveryAck {
		a.mu.Unlock()
		return common.ErrInvalidState
	}

	t, err := a.recover(ctx, email, code, newPin)
	if err != nil {
		a.mu.Unlock()
		a.log.Info(ctx, "recovery rejected")
		return err
	}
	return a.commit(ctx, t)
}

func (a *authService) recover(ctx context.Context, email, code, newPin string) (transition, error) {
	rec, err := a.record(ctx)
	if err != nil {
		return transition{}, err
	}
	if newPin == "" {
		return transition{}, fmt.Errorf("new PIN must not be empty: %w", common.ErrValidation)
	}

	email = strings.TrimSpace(email)
	stored, err := a.get(ctx, common.BlobEmail)
	if err != nil {
		return transition{}, err
	}
	if s := strings.TrimSpace(string(stored)); s != "" && !strings.EqualFold(s, email) {
		return transition{}, common.ErrCredentialRejected
	}

	masterKey, ok := vault.UnlockByRecovery(rec, code)
	if !ok {
		return transition{}, common.ErrCredentialRejected
	}

	updated, err := vault.RewrapAfterRecovery(rec, masterKey, newPin)
	if err != nil {
		return transition{}, fmt.Errorf("rewrap auth record: %w", err)
	}
	raw, err := updated.Marshal()
	if err != nil {
		return transition{}, fmt.Errorf("encode auth record: %w", err)
	}

	put := map[string][]byte{common.BlobAuth: raw}
	if email != "" {
		put[common.BlobEmail] = []byte(email)
	}
	return transition{
		next:      StateUnlocked,
		masterKey: masterKey,
		fx:        effects{put: put, del: []string{common.BlobSession}},
		hook:      hookUnlock,
	}, nil
}

func (a *authService) Lock(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateUnlocked && a.state != StateAwaitingRecoveryAck {
		a.mu.Unlock()
		return common.ErrInvalidState
	}

	h := hookNone
	if a.state == StateUnlocked {
		h = hookLock
	}
	return a.commit(ctx, transition{
		next:  StateLocked,
		fx:    effects{del: []string{common.BlobSession}},
		hook:  h,
		force: true,
	})
}

func (a *authService) Nuke(ctx context.Context) error {
	a.mu.Lock()
	return a.commit(ctx, transition{
		next: StateNoAccount,
		fx:   effects{del: []string{common.BlobAuth, common.BlobEmail, common.BlobSession}},
		hook: hookReset,
	})
}

func (a *authService) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *authService) Email(ctx context.Context) (string, error) {
	raw, err := a.get(ctx, common.BlobEmail)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (a *authService) HasAccount(ctx context.Context) (bool, error) {
	raw, err := a.get(ctx, common.BlobAuth)
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

func (a *authService) MasterKey() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateUnlocked {
		return "", common.ErrLocked
	}
	return a.openKey()
}

// commit persists t's effects, swaps the in-memory state and then notifies
// listeners. It must be called with a.mu held and releases it.
func (a *authService) commit(ctx context.Context, t transition) error {
	prev := a.state
	err := a.persist(ctx, t.fx)
	if err != nil && !t.force {
		a.mu.Unlock()
		return err
	}

	a.state = t.next
	a.code = t.code
	a.key = nil
	if t.masterKey != "" {
		key, serr := cryptox.SealSecret(t.masterKey)
		if serr != nil {
			a.state = prev
			a.mu.Unlock()
			return serr
		}
		a.key = key
	}
	a.mu.Unlock()

	if prev != t.next {
		a.log.Info(ctx, "auth state changed", "from", prev.String(), "to", t.next.String())
	}
	a.notify(ctx, t.hook, t.masterKey)
	return err
}

func (a *authService) persist(ctx context.Context, fx effects) error {
	if len(fx.put) > 0 {
		if err := a.repo.SetMany(ctx, fx.put); err != nil {
			a.log.Error(ctx, "failed to write auth blobs", "error", err)
			return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
		}
	}
	if fx.verify {
		for k, want := range fx.put {
			got, err := a.repo.Get(ctx, k)
			if err != nil || !bytes.Equal(got, want) {
				a.log.Error(ctx, "auth blob verification failed", "blob", k)
				a.rollback(ctx, fx.put)
				return fmt.Errorf("%w: verification of %s failed", common.ErrStorageUnavailable, k)
			}
		}
	}
	if len(fx.del) > 0 {
		if err := a.repo.DeleteMany(ctx, fx.del...); err != nil {
			a.log.Error(ctx, "failed to delete auth blobs", "error", err)
			return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
		}
	}
	return nil
}

func (a *authService) rollback(ctx context.Context, put map[string][]byte) {
	keys := make([]string, 0, len(put))
	for k := range put {
		keys = append(keys, k)
	}
	if err := a.repo.DeleteMany(ctx, keys...); err != nil {
		a.log.Warn(ctx, "failed to roll back auth blobs", "error", err)
	}
}

func (a *authService) notify(ctx context.Context, h hook, masterKey string) {
	for _, l := range a.listeners {
		var err error
		switch h {
		case hookUnlock:
			err = l.OnUnlock(ctx, masterKey)
		case hookLock:
			err = l.OnLock(ctx)
		case hookReset:
			err = l.OnReset(ctx)
		default:
			return
		}
		if err != nil {
			a.log.Warn(ctx, "session listener failed", "hook", int(h), "error", err)
		}
	}
}

// openKey must be called with a.mu held.
func (a *authService) openKey() (string, error) {
	var out string
	err := cryptox.WithSecret(a.key, func(s string) error {
		out = strings.Clone(s)
		return nil
	})
	if err != nil {
		return "", common.ErrLocked
	}
	return out, nil
}

// record loads the auth record. A missing blob is ErrNoAccount; a blob that
// does not parse is reported the same way as a wrong PIN.
func (a *authService) record(ctx context.Context) (*vault.AuthRecord, error) {
	raw, err := a.get(ctx, common.BlobAuth)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, common.ErrNoAccount
	}
	rec, err := vault.ParseRecord(raw)
	if err != nil {
		a.log.Warn(ctx, "stored auth record is unreadable")
		return nil, common.ErrCredentialRejected
	}
	return rec, nil
}

func (a *authService) get(ctx context.Context, key string) ([]byte, error) {
	raw, err := a.repo.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	return raw, nil
}

// sessionEffects writes the remember-me token, or deletes any token left
// over when the user unlocks without asking to be remembered.
func sessionEffects(masterKey string, remember bool) effects {
	if remember {
		return effects{put: map[string][]byte{common.BlobSession: []byte(masterKey)}}
	}
	return effects{del: []string{common.BlobSession}}
}

// ValidatePIN checks a PIN chosen in the UI against its confirmation.
func ValidatePIN(pin, confirm string) error {
	if utf8.RuneCountInString(pin) < MinPINLength {
		return fmt.Errorf("PIN must be at least %d characters: %w", MinPINLength, common.ErrValidation)
	}
	if pin != confirm {
		return fmt.Errorf("PINs do not match: %w", common.ErrValidation)
	}
	return nil
}

// ValidateEmail accepts a bare address such as "user@example.com".
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required: %w", common.ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("email address is not valid: %w", common.ErrValidation)
	}
	return nil
}
