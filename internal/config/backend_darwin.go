//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const defaultsDomain = "com.eternal.app"

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "eternal-data"
	}
	return filepath.Join(home, "Library", "Application Support", "Eternal")
}

func apiKeyHint() string {
	return " or macOS Keychain (service: eternal, account: openai_api_key)"
}

func newPlatformBackend() Backend {
	return defaultsBackend(defaultsDomain)
}

// defaultsBackend stores settings in UserDefaults through the defaults CLI.
// Every value is written as a string.
type defaultsBackend string

func (d defaultsBackend) run(args ...string) (string, error) {
	out, err := exec.Command("defaults", args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// missing reports whether err is the exit status defaults uses for an
// unknown key.
func missing(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == 1
}

func (d defaultsBackend) Lookup(key string) (string, bool, error) {
	out, err := d.run("read", string(d), key)
	if missing(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("defaults read %s: %w: %s", key, err, out)
	}
	return out, true, nil
}

func (d defaultsBackend) Store(key, val string) error {
	if out, err := d.run("write", string(d), key, "-string", val); err != nil {
		return fmt.Errorf("defaults write %s: %w: %s", key, err, out)
	}
	return nil
}

func (d defaultsBackend) Remove(key string) error {
	if out, err := d.run("delete", string(d), key); err != nil && !missing(err) {
		return fmt.Errorf("defaults delete %s: %w: %s", key, err, out)
	}
	return nil
}
