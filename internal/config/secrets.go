package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	keychainService  = "eternal"
	openAIKeyAccount = "openai_api_key"
	apiTokenAccount  = "api_token"
)

// ErrSecretNotFound is returned by a Keychain that holds no such secret.
var ErrSecretNotFound = errors.New("secret not found")

// Keychain abstracts the platform secret store.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the secret store of the current platform: macOS
// Keychain, or a 0600 secrets.env file elsewhere.
func NewKeychain() Keychain {
	return platformKeychain{}
}

type platformKeychain struct{}

func (platformKeychain) Get(service, account string) (string, error) {
	return keychainGet(service, account)
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// GetAPIToken returns the bearer token guarding the HTTP API, generating and
// storing one on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if tok, err := kc.Get(keychainService, apiTokenAccount); err == nil && tok != "" {
		return tok, nil
	}
	tok := uuid.New().String()
	if err := kc.Set(keychainService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}

// SetOpenAIKey stores the OpenAI API key in the secret store.
func SetOpenAIKey(kc Keychain, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty API key")
	}
	return kc.Set(keychainService, openAIKeyAccount, key)
}
