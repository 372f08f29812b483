package security

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewKeyProviderInlineSecret(t *testing.T) {
	provider, err := NewKeyProvider(SigningKeySource{Secret: "  0123456789abcdef  "})
	if err != nil {
		t.Fatalf("NewKeyProvider returned error: %v", err)
	}

	key, err := provider.SigningKey()
	if err != nil {
		t.Fatalf("SigningKey returned error: %v", err)
	}
	if string(key) != "0123456789abcdef" {
		t.Fatalf("unexpected key %q", key)
	}

	key[0] = 'X'
	again, _ := provider.SigningKey()
	if again[0] != '0' {
		t.Fatal("SigningKey must return a copy")
	}
}

func TestNewKeyProviderBase64File(t *testing.T) {
	raw := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17}
	path := filepath.Join(t.TempDir(), "hmac.key")
	content := "base64:" + base64.StdEncoding.EncodeToString(raw) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	provider, err := NewKeyProvider(SigningKeySource{File: path})
	if err != nil {
		t.Fatalf("NewKeyProvider returned error: %v", err)
	}
	key, err := provider.SigningKey()
	if err != nil {
		t.Fatalf("SigningKey returned error: %v", err)
	}
	if string(key) != string(raw) {
		t.Fatalf("unexpected decoded key %v", key)
	}
}

func TestNewKeyProviderErrors(t *testing.T) {
	emptyFile := filepath.Join(t.TempDir(), "empty.key")
	if err := os.WriteFile(emptyFile, []byte("\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	cases := map[string]struct {
		src  SigningKeySource
		want error
	}{
		"missing":     {SigningKeySource{}, ErrSigningKeyMissing},
		"conflicting": {SigningKeySource{Secret: "0123456789abcdef", File: emptyFile}, ErrConflictingKeySources},
		"empty file":  {SigningKeySource{File: emptyFile}, ErrSigningKeyMissing},
		"too short":   {SigningKeySource{Secret: "short"}, ErrSigningKeyTooShort},
	}

	for name, tc := range cases {
		if _, err := NewKeyProvider(tc.src); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, err)
		}
	}

	if _, err := NewKeyProvider(SigningKeySource{File: filepath.Join(t.TempDir(), "absent.key")}); err == nil {
		t.Fatal("expected error for missing key file")
	}
}
