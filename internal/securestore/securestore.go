// Package securestore encrypts values before handing them to a key/value store.
//
// Values are sealed with NaCl secretbox. The key is either derived from a
// passphrase with scrypt, using a random salt kept next to the data, or read
// from a key file which is generated on first use.
package securestore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"myfinances/internal/storage"
)

const (
	keySize   = 32
	nonceSize = 24
	saltSize  = 16

	// saltKey holds the scrypt salt in plain text inside the wrapped store.
	saltKey = "securestore.salt"
)

// ErrCorrupt is returned when a stored value cannot be decrypted.
var ErrCorrupt = errors.New("securestore: value cannot be decrypted")

// Store is a [storage.KeyValueStore] which encrypts all values.
type Store struct {
	inner storage.KeyValueStore
	key   [keySize]byte
}

var _ storage.KeyValueStore = (*Store)(nil)

// New returns a store sealing values for inner with key.
func New(inner storage.KeyValueStore, key [keySize]byte) *Store {
	return &Store{inner: inner, key: key}
}

// Open returns a store for inner. A non-empty passphrase takes precedence over keyFile.
func Open(ctx context.Context, inner storage.KeyValueStore, passphrase, keyFile string) (*Store, error) {
	var (
		key [keySize]byte
		err error
	)
	if passphrase != "" {
		key, err = DeriveKey(ctx, inner, passphrase)
	} else {
		key, err = LoadOrGenerateKey(keyFile)
	}
	if err != nil {
		return nil, err
	}
	return New(inner, key), nil
}

// DeriveKey derives a key from passphrase. The salt is created on first use
// and stored in inner.
func DeriveKey(ctx context.Context, inner storage.KeyValueStore, passphrase string) ([keySize]byte, error) {
	var key [keySize]byte
	salt, err := inner.Get(ctx, saltKey)
	if errors.Is(err, storage.ErrNotFound) {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return key, fmt.Errorf("generate salt: %w", err)
		}
		if err := inner.Set(ctx, saltKey, salt); err != nil {
			return key, fmt.Errorf("store salt: %w", err)
		}
	} else if err != nil {
		return key, fmt.Errorf("load salt: %w", err)
	}
	b, err := scrypt.Key([]byte(passphrase), salt, 1<<15, 8, 1, keySize)
	if err != nil {
		return key, fmt.Errorf("derive key: %w", err)
	}
	copy(key[:], b)
	return key, nil
}

// LoadOrGenerateKey reads a base64 encoded key from path.
// When the file does not exist a random key is written to it.
func LoadOrGenerateKey(path string) ([keySize]byte, error) {
	var key [keySize]byte
	if path == "" {
		return key, errors.New("key file path is empty")
	}
	data, err := os.ReadFile(path)
	if err == nil {
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil || len(b) != keySize {
			return key, fmt.Errorf("key file %s is invalid", path)
		}
		copy(key[:], b)
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return key, fmt.Errorf("read key file: %w", err)
	}

	if _, err := rand.Read(key[:]); err != nil {
		return key, fmt.Errorf("generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return key, fmt.Errorf("create key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key[:])
	if err := os.WriteFile(path, []byte(encoded+"\n"), 0600); err != nil {
		return key, fmt.Errorf("write key file: %w", err)
	}
	return key, nil
}

// Get returns the decrypted value for key.
// It returns [ErrCorrupt] when the stored value was not sealed with this store's key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrCorrupt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrCorrupt
	}
	return plain, nil
}

// Set encrypts value with a fresh nonce and stores it under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if key == saltKey {
		return fmt.Errorf("key %q is reserved", key)
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], value, &nonce, &s.key)
	return s.inner.Set(ctx, key, sealed)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}
