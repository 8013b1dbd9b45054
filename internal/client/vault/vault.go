// Package vault manages the doubly wrapped master key.
//
// An AuthRecord holds two envelopes of the same master key: one sealed with
// the user's PIN and one sealed with the recovery code shown once at setup.
// The functions here are pure: they never touch storage, so callers decide
// when and where a record is persisted.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/orangecat/internal/cryptox"
)

var ErrMalformedRecord = errors.New("malformed auth record")

// AuthRecord is the persisted form of the master key.
type AuthRecord struct {
	ByPin      *cryptox.Bundle `json:"encryptedMasterKeyByPin"`
	ByRecovery *cryptox.Bundle `json:"encryptedMasterKeyByRecovery"`
}

// Credentials is the result of Create. RecoveryCode must be shown to the
// user exactly once and MasterKey must stay in memory.
type Credentials struct {
	Record       *AuthRecord
	RecoveryCode string
	MasterKey    string
}

// Create generates a master key and a recovery code and wraps the key under
// both the PIN and the code.
func Create(pin string) (*Credentials, error) {
	if pin == "" {
		return nil, errors.New("empty pin")
	}

	masterKey, err := cryptox.GenerateSecret()
	if err != nil {
		return nil, err
	}
	code, err := cryptox.NewRecoveryCode()
	if err != nil {
		return nil, err
	}

	byPin, err := cryptox.Encrypt([]byte(masterKey), pin)
	if err != nil {
		return nil, fmt.Errorf("wrap master key by pin: %w", err)
	}
	byRecovery, err := cryptox.Encrypt([]byte(masterKey), code)
	if err != nil {
		return nil, fmt.Errorf("wrap master key by recovery code: %w", err)
	}

	return &Credentials{
		Record:       &AuthRecord{ByPin: byPin, ByRecovery: byRecovery},
		RecoveryCode: code,
		MasterKey:    masterKey,
	}, nil
}

// UnlockByPin opens the PIN envelope. The boolean is false for any failure,
// whatever the cause.
func UnlockByPin(rec *AuthRecord, pin string) (string, bool) {
	if rec == nil {
		return "", false
	}
	return unwrap(rec.ByPin, pin)
}

// UnlockByRecovery opens the recovery envelope. The code is normalized first.
func UnlockByRecovery(rec *AuthRecord, code string) (string, bool) {
	if rec == nil {
		return "", false
	}
	return unwrap(rec.ByRecovery, cryptox.NormalizeRecoveryCode(code))
}

// RewrapAfterRecovery returns a copy of rec whose PIN envelope wraps
// masterKey under newPin. The recovery envelope is carried over unchanged
// and rec itself is not modified.
func RewrapAfterRecovery(rec *AuthRecord, masterKey, newPin string) (*AuthRecord, error) {
	if rec == nil {
		return nil, ErrMalformedRecord
	}
	if newPin == "" {
		return nil, errors.New("empty pin")
	}

	byPin, err := cryptox.Encrypt([]byte(masterKey), newPin)
	if err != nil {
		return nil, fmt.Errorf("wrap master key by pin: %w", err)
	}
	return &AuthRecord{ByPin: byPin, ByRecovery: rec.ByRecovery}, nil
}

// ParseRecord decodes a persisted record. Both envelopes must be present.
func ParseRecord(data []byte) (*AuthRecord, error) {
	var rec AuthRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if rec.ByPin == nil || rec.ByRecovery == nil {
		return nil, ErrMalformedRecord
	}
	return &rec, nil
}

func (r *AuthRecord) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func unwrap(b *cryptox.Bundle, passphrase string) (string, bool) {
	plaintext, err := cryptox.Decrypt(b, passphrase)
	if err != nil || len(plaintext) == 0 {
		return "", false
	}
	return string(plaintext), true
}
