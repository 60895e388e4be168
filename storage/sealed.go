package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jmcleod/tokendesk/internal/util"
)

const sealedKeyInfo = "tokendesk:store:v1"

// Sealed wraps a Store and encrypts every value at rest. The record key is
// derived from an externally supplied 32-byte wrapping key (flag, env var or
// config file) that is never written to the wrapped store. Each value is
// bound to its namespace and key through the AEAD associated data, so a
// ciphertext copied to another slot fails to open.
type Sealed struct {
	inner     Store
	key       []byte
	closeOnce sync.Once
}

var _ Store = (*Sealed)(nil)

// NewSealed derives the record key from wrappingKey and returns a sealing
// Store in front of inner.
func NewSealed(inner Store, wrappingKey []byte) (*Sealed, error) {
	if len(wrappingKey) != 32 {
		return nil, fmt.Errorf("wrapping key must be exactly 32 bytes, got %d", len(wrappingKey))
	}
	key, err := util.DeriveKey(wrappingKey, sealedKeyInfo)
	if err != nil {
		return nil, fmt.Errorf("deriving record key: %w", err)
	}
	return &Sealed{inner: inner, key: key}, nil
}

func recordAAD(namespace, key string) []byte {
	return []byte(sealedKeyInfo + ":" + namespace + ":" + key)
}

func (s *Sealed) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	raw, err := s.inner.Get(ctx, namespace, key)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding sealed %s/%s: %w", namespace, key, err)
	}
	data, err := OpenRecord(s.key, &env, recordAAD(namespace, key))
	if err != nil {
		return nil, fmt.Errorf("opening sealed %s/%s: %w", namespace, key, err)
	}
	return data, nil
}

func (s *Sealed) Put(ctx context.Context, namespace, key string, value []byte) error {
	env, err := SealRecord(s.key, value, recordAAD(namespace, key))
	if err != nil {
		return fmt.Errorf("sealing %s/%s: %w", namespace, key, err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, namespace, key, raw)
}

func (s *Sealed) Delete(ctx context.Context, namespace, key string) error {
	return s.inner.Delete(ctx, namespace, key)
}

func (s *Sealed) List(ctx context.Context, namespace string) ([]string, error) {
	return s.inner.List(ctx, namespace)
}

// Close wipes the record key and closes the wrapped store.
func (s *Sealed) Close() error {
	var err error
	s.closeOnce.Do(func() {
		util.WipeBytes(s.key)
		err = s.inner.Close()
	})
	return err
}
