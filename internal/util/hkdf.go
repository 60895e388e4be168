package util

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey stretches secret into an AESKeySize key scoped to label.
// Distinct labels yield independent keys from the same secret.
func DeriveKey(secret []byte, label string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("derive %q: empty secret", label)
	}
	r := hkdf.New(sha256.New, secret, nil, []byte(label))
	out := make([]byte, AESKeySize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive %q: %w", label, err)
	}
	return out, nil
}
