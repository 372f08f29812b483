package security

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
)

const minSigningKeyLength = 16

var (
	// ErrSigningKeyTooShort indicates the configured secret is too short for HS256.
	ErrSigningKeyTooShort = errors.New("signing key too short")
	// ErrConflictingKeySources indicates both an inline secret and a key file were configured.
	ErrConflictingKeySources = errors.New("signing key configured inline and by file")
)

// KeyProvider supplies the shared HMAC secret used to sign tokens.
type KeyProvider interface {
	SigningKey() ([]byte, error)
}

// SigningKeySource describes where the HMAC secret comes from. Exactly one of
// Secret or File must be set. A "base64:" prefix on either value decodes it.
type SigningKeySource struct {
	Secret string
	File   string
}

// StaticKeyProvider serves a secret that was resolved once at startup.
type StaticKeyProvider struct {
	key []byte
}

// NewKeyProvider resolves src into a StaticKeyProvider.
func NewKeyProvider(src SigningKeySource) (*StaticKeyProvider, error) {
	secret := strings.TrimSpace(src.Secret)
	path := strings.TrimSpace(src.File)

	switch {
	case secret != "" && path != "":
		return nil, ErrConflictingKeySources
	case secret == "" && path == "":
		return nil, ErrSigningKeyMissing
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read signing key file %s: %w", path, err)
		}
		secret = strings.TrimSpace(string(data))
		if secret == "" {
			return nil, fmt.Errorf("%w: file %s is empty", ErrSigningKeyMissing, path)
		}
	}

	key, err := decodeSecret(secret)
	if err != nil {
		return nil, err
	}
	if len(key) < minSigningKeyLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrSigningKeyTooShort, minSigningKeyLength)
	}

	return &StaticKeyProvider{key: key}, nil
}

// SigningKey returns a copy of the resolved secret.
func (p *StaticKeyProvider) SigningKey() ([]byte, error) {
	if p == nil || len(p.key) == 0 {
		return nil, ErrSigningKeyMissing
	}
	out := make([]byte, len(p.key))
	copy(out, p.key)
	return out, nil
}

func decodeSecret(value string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(value, "base64:")
	if !ok {
		return []byte(value), nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64 signing key: %w", err)
	}
	return key, nil
}
