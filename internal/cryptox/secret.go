package cryptox

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/orangecat/internal/common"
	"github.com/google/uuid"
)

// secretBytes is the entropy of a generated secret (128 bits).
const secretBytes = 16

// GenerateSecret returns 128 random bits rendered in the familiar
// 8-4-4-4-12 hex layout. All bits come from the CSPRNG; no version or
// variant nibbles are forced.
func GenerateSecret() (string, error) {
	id, err := uuid.FromBytes(common.GenerateRandByteArray(secretBytes))
	if err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return id.String(), nil
}

// NewRecoveryCode builds a human-copyable code from the first three groups
// of a fresh secret, upper-cased: XXXXXXXX-XXXX-XXXX.
func NewRecoveryCode() (string, error) {
	s, err := GenerateSecret()
	if err != nil {
		return "", err
	}
	parts := strings.Split(s, "-")
	return strings.ToUpper(strings.Join(parts[:3], "-")), nil
}

// NormalizeRecoveryCode trims whitespace and upper-cases user input so that
// a code typed in lower case still matches.
func NormalizeRecoveryCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
