//go:build !darwin

package config

import (
	"path/filepath"
	"strings"
)

// secretsFilePath is the 0600 dotenv file standing in for a system keychain.
// It holds one ETERNAL_<ACCOUNT> entry per secret.
func secretsFilePath() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "eternal", "secrets.env")
}

func secretName(service, account string) string {
	return strings.ToUpper(service + "_" + account)
}

func keychainGet(service, account string) (string, error) {
	vals, err := readEnvFile(secretsFilePath())
	if err != nil {
		return "", err
	}
	v, ok := vals[secretName(service, account)]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

func keychainSet(service, account, value string) error {
	p := secretsFilePath()
	vals, err := readEnvFile(p)
	if err != nil {
		return err
	}
	vals[secretName(service, account)] = value
	return writeEnvFile(p, vals)
}

