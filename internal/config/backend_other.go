//go:build !darwin

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

func defaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "eternal")
}

func apiKeyHint() string {
	return " or run `eternal config set-openai-key`"
}

// xdgDir returns $env, falling back to $HOME/fallback...
func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

func newPlatformBackend() Backend {
	return newEnvFileBackend(filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "eternal", "settings.env"))
}

// envFileBackend keeps settings in a dotenv file that uses the same
// ETERNAL_* names as the environment overrides.
type envFileBackend struct {
	path string
	vals map[string]string
}

func newEnvFileBackend(path string) *envFileBackend {
	b := &envFileBackend{path: path, vals: map[string]string{}}
	vals, err := readEnvFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] ignoring settings file: %v\n", err)
		return b
	}
	b.vals = vals
	return b
}

func (b *envFileBackend) Lookup(key string) (string, bool, error) {
	v, ok := b.vals[envName(key)]
	return v, ok, nil
}

func (b *envFileBackend) Store(key, val string) error {
	b.vals[envName(key)] = val
	return writeEnvFile(b.path, b.vals)
}

func (b *envFileBackend) Remove(key string) error {
	delete(b.vals, envName(key))
	return writeEnvFile(b.path, b.vals)
}

// readEnvFile parses a dotenv file. A missing file reads as empty.
func readEnvFile(path string) (map[string]string, error) {
	vals, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return vals, nil
}

func writeEnvFile(path string, vals map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := godotenv.Write(vals, path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}
