package apiclient

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoCredential is returned when no source holds a bearer token.
var ErrNoCredential = errors.New("no credential available")

// TokenSource yields the bearer token attached to REST, download and broker requests.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns the token or ErrNoCredential when empty.
func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", ErrNoCredential
	}
	return string(t), nil
}

// EnvToken reads the token from an environment variable on every call.
type EnvToken string

// Token returns the variable's value.
func (e EnvToken) Token() (string, error) {
	if v := strings.TrimSpace(os.Getenv(string(e))); v != "" {
		return v, nil
	}
	return "", ErrNoCredential
}

// FileTokenStore persists the token in a file on the client machine.
type FileTokenStore struct {
	Path string
}

// Token reads the stored token.
func (s FileTokenStore) Token() (string, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

// Save writes token to the store, readable by the owner only.
func (s FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	return os.WriteFile(s.Path, []byte(token+"\n"), 0o600)
}

// Clear removes the stored token.
func (s FileTokenStore) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Chain tries each source in order and returns the first token found.
type Chain []TokenSource

// Token implements TokenSource.
func (c Chain) Token() (string, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		token, err := src.Token()
		if errors.Is(err, ErrNoCredential) {
			continue
		}
		if err != nil {
			return "", err
		}
		return token, nil
	}
	return "", ErrNoCredential
}
