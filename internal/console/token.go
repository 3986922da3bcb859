package console

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"boletodesk/internal/config"
	"boletodesk/internal/fileutil"
)

// TokenSource reports where the active credential came from.
type TokenSource string

const (
	TokenNone   TokenSource = "none"
	TokenFile   TokenSource = "login"
	TokenConfig TokenSource = "config"
)

// LoadToken returns the saved login token, falling back to the configured
// one.
func LoadToken(cfg *config.Config) (string, TokenSource, error) {
	data, err := os.ReadFile(cfg.TokenPath())
	switch {
	case err == nil:
		if token := strings.TrimSpace(string(data)); token != "" {
			return token, TokenFile, nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", TokenNone, fmt.Errorf("read token: %w", err)
	}
	if token := strings.TrimSpace(cfg.Backend.Token); token != "" {
		return token, TokenConfig, nil
	}
	return "", TokenNone, nil
}

// SaveToken stores token readable by the owner only.
func SaveToken(cfg *config.Config, token string) error {
	path := cfg.TokenPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	if err := fileutil.WriteAtomic(path, []byte(strings.TrimSpace(token)+"\n"), 0o600); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// RemoveToken deletes the saved login token. A missing file is not an error.
func RemoveToken(cfg *config.Config) error {
	if err := os.Remove(cfg.TokenPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}
