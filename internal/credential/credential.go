// Package credential keeps the API bearer token in the system keyring.
package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

const (
	serviceName = "crewclock"
	tokenKey    = "api-token"

	// EnvToken overrides the stored token when set.
	EnvToken = "CREWCLOCK_TOKEN"
)

// ErrNoToken is returned when no token is stored or set in the environment.
var ErrNoToken = errors.New("no API token; run `crewclock login --token <token>`")

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	dir := "~/.config/crewclock/credentials"
	if cfg, err := os.UserConfigDir(); err == nil {
		dir = filepath.Join(cfg, "crewclock", "credentials")
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt("crewclock-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Token returns the bearer token, preferring CREWCLOCK_TOKEN over the
// keyring.
func Token() (string, error) {
	if tok := os.Getenv(EnvToken); tok != "" {
		return tok, nil
	}
	tok, err := Get(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	return tok, err
}

// SaveToken stores the bearer token.
func SaveToken(token string) error {
	return Set(tokenKey, token)
}

// DeleteToken forgets the stored bearer token. A missing token is not an
// error.
func DeleteToken() error {
	err := Delete(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "crewclock API token",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	if err := ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}
