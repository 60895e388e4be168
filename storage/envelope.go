package storage

import (
	"fmt"
	"slices"

	"github.com/jmcleod/tokendesk/internal/util"
)

const (
	envelopeVersion = 1
	envelopeScheme  = "aes256gcm"
	nonceSize       = 12
)

// Envelope is the JSON form a Sealed store writes in place of a raw value.
type Envelope struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// SealRecord encrypts a session value. aad binds it to its namespace and key.
func SealRecord(recordKey, plaintext, aad []byte) (*Envelope, error) {
	sealed, err := util.EncryptAESWithAAD(plaintext, recordKey, aad)
	if err != nil {
		return nil, fmt.Errorf("sealing record: %w", err)
	}
	return &Envelope{
		Ver:        envelopeVersion,
		Scheme:     envelopeScheme,
		Nonce:      sealed[:nonceSize],
		Ciphertext: sealed[nonceSize:],
	}, nil
}

// OpenRecord reverses SealRecord. A mismatched aad fails authentication.
func OpenRecord(recordKey []byte, env *Envelope, aad []byte) ([]byte, error) {
	switch {
	case env.Ver != envelopeVersion:
		return nil, fmt.Errorf("unsupported envelope version: %d", env.Ver)
	case env.Scheme != envelopeScheme:
		return nil, fmt.Errorf("unsupported envelope scheme: %s", env.Scheme)
	case len(env.Nonce) != nonceSize:
		return nil, fmt.Errorf("envelope nonce must be %d bytes, got %d", nonceSize, len(env.Nonce))
	}
	return util.DecryptAESWithAAD(slices.Concat(env.Nonce, env.Ciphertext), recordKey, aad)
}
