// Package cryptox implements the vault's cryptographic primitives:
// passphrase-based key derivation, self-describing AES-256-GCM bundles and
// random secret generation.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/orangecat/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the PBKDF2 salt length carried by every bundle.
	SaltSize = 16
	// NonceSize is the AES-GCM nonce length carried by every bundle.
	NonceSize = 12
	// KeySize selects AES-256.
	KeySize = 32
	// KDFIterations is the PBKDF2-HMAC-SHA256 work factor.
	KDFIterations = 100_000
)

var (
	// ErrDecrypt is the only error Decrypt returns. Wrong passphrase, malformed
	// bundle and tampered ciphertext are deliberately indistinguishable.
	ErrDecrypt = errors.New("decryption failed")

	// ErrCorruptPayload means the bundle decrypted but its plaintext is not
	// the expected JSON document.
	ErrCorruptPayload = errors.New("corrupt payload")
)

// Bundle is a self-contained ciphertext: the salt and nonce needed to decrypt
// travel with the data, so no external bookkeeping is needed.
//
// JSON form: {"s": base64 salt, "iv": base64 nonce, "d": base64 ciphertext}.
type Bundle struct {
	Salt  []byte `json:"s"`
	Nonce []byte `json:"iv"`
	Data  []byte `json:"d"`
}

// UnmarshalJSON accepts the bundle object itself or a JSON string holding the
// serialized object; older records nest bundles in string-encoded form.
func (b *Bundle) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}

	type plain Bundle
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = Bundle(p)
	return nil
}

// Marshal returns the canonical JSON encoding of the bundle.
func (b *Bundle) Marshal() ([]byte, error) {
	return json.Marshal(b)
}

// ParseBundle decodes a bundle from its JSON form.
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	return &b, nil
}

// DeriveKey runs PBKDF2-HMAC-SHA256 over passphrase and salt and returns a
// 256-bit key. The result is deterministic for a given (passphrase, salt).
func DeriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, KDFIterations, KeySize, sha256.New)
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := DeriveKey([]byte(passphrase), salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under a key derived from passphrase. Every call
// draws a fresh salt and nonce, so two bundles of the same input never match.
func Encrypt(plaintext []byte, passphrase string) (*Bundle, error) {
	salt := common.GenerateRandByteArray(SaltSize)
	nonce := common.GenerateRandByteArray(NonceSize)

	aesgcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	return &Bundle{
		Salt:  salt,
		Nonce: nonce,
		Data:  aesgcm.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// Decrypt re-derives the key from the bundle's salt and opens the ciphertext.
// Any failure yields ErrDecrypt and nothing else.
func Decrypt(b *Bundle, passphrase string) ([]byte, error) {
	if b == nil || len(b.Salt) != SaltSize || len(b.Nonce) != NonceSize {
		return nil, ErrDecrypt
	}

	aesgcm, err := newGCM(passphrase, b.Salt)
	if err != nil {
		return nil, ErrDecrypt
	}

	plaintext, err := aesgcm.Open(nil, b.Nonce, b.Data, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// SealJSON serializes v to JSON and encrypts it with Encrypt.
//
// Example:
//
//	b, err := cryptox.SealJSON(sessions, masterKey)
//	if err != nil {
//	    return err
//	}
//	raw, _ := b.Marshal()
func SealJSON(v any, passphrase string) (*Bundle, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	defer common.WipeByteArray(plaintext)

	return Encrypt(plaintext, passphrase)
}

// OpenJSON decrypts b and unmarshals the plaintext into v. It returns
// ErrDecrypt when the bundle does not open and ErrCorruptPayload when the
// plaintext is not valid JSON for v.
func OpenJSON(b *Bundle, passphrase string, v any) error {
	plaintext, err := Decrypt(b, passphrase)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	return nil
}
