// Package auth keeps the GM token that privileged participants and API
// callers present to the terminal server.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/zalando/go-keyring"
)

const (
	DefaultService = "hack-terminal"
	gmTokenKey     = "gm-token"
)

// ErrNoToken is returned when no GM token has been stored.
var ErrNoToken = errors.New("auth: no gm token")

// TokenStore wraps the OS keychain with an optional file fallback for hosts
// without a system keyring.
type TokenStore struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

func NewTokenStore(service, fallbackPath string) *TokenStore {
	if strings.TrimSpace(service) == "" {
		service = DefaultService
	}
	return &TokenStore{service: service, fallbackPath: fallbackPath}
}

// Token returns the stored GM token.
func (s *TokenStore) Token() (string, error) {
	val, err := keyring.Get(s.service, gmTokenKey)
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("auth: keyring get: %w", err)
	}

	fallback, ferr := s.getFallback()
	if ferr == nil {
		return fallback, nil
	}
	if errors.Is(ferr, ErrNoToken) || errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoToken
	}
	return "", ferr
}

// SetToken stores token, in the keychain when one is available.
func (s *TokenStore) SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("auth: token is required")
	}

	err := keyring.Set(s.service, gmTokenKey, token)
	if err == nil {
		return nil
	}
	if !isKeyringUnavailable(err) {
		return fmt.Errorf("auth: keyring set: %w", err)
	}
	return s.setFallback(token)
}

// Ensure returns the stored token, generating and storing a new one when
// none exists. created reports whether a token was generated.
func (s *TokenStore) Ensure() (token string, created bool, err error) {
	token, err = s.Token()
	if err == nil {
		return token, false, nil
	}
	if !errors.Is(err, ErrNoToken) {
		return "", false, err
	}
	token = strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.SetToken(token); err != nil {
		return "", false, err
	}
	return token, true, nil
}

// Delete removes the token from the keychain and the fallback file.
func (s *TokenStore) Delete() error {
	err := keyring.Delete(s.service, gmTokenKey)
	ferr := s.deleteFallback()
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		return fmt.Errorf("auth: keyring delete: %w", err)
	}
	return ferr
}

// Verify compares a presented token against the expected one in constant time.
func Verify(expected, presented string) bool {
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

type fallbackSecrets map[string]string

func (s *TokenStore) getFallback() (string, error) {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return "", errors.New("auth: keyring unavailable and no fallback path configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[gmTokenKey]
	if !ok {
		return "", ErrNoToken
	}
	return val, nil
}

func (s *TokenStore) setFallback(token string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return errors.New("auth: keyring unavailable and no fallback path configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[gmTokenKey] = token
	return s.writeFallbackUnlocked(data)
}

func (s *TokenStore) deleteFallback() error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[gmTokenKey]; !ok {
		return nil
	}
	delete(data, gmTokenKey)
	return s.writeFallbackUnlocked(data)
}

func (s *TokenStore) readFallbackUnlocked() (fallbackSecrets, error) {
	out := fallbackSecrets{}
	raw, err := os.ReadFile(s.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("auth: read fallback secrets: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("auth: decode fallback secrets: %w", err)
	}
	return out, nil
}

func (s *TokenStore) writeFallbackUnlocked(data fallbackSecrets) error {
	if err := os.MkdirAll(filepath.Dir(s.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("auth: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("auth: encode fallback secrets: %w", err)
	}
	if err := os.WriteFile(s.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("auth: write fallback secrets: %w", err)
	}
	return nil
}
