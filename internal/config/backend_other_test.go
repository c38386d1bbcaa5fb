//go:build !darwin

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvFileBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eternal", "settings.env")

	b := newEnvFileBackend(path)
	if _, ok, _ := b.Lookup("schedule.cron"); ok {
		t.Fatal("fresh backend has values")
	}
	if err := setKeyWith(b, "schedule.cron", "0 2 * * *"); err != nil {
		t.Fatal(err)
	}
	if err := setKeyWith(b, "server.port", "4200"); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	reopened := newEnvFileBackend(path)
	clearEnv(t)
	cfg, err := loadWith(reopened, &mockKeychain{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Schedule.Cron != "0 2 * * *" || cfg.Server.Port != 4200 {
		t.Errorf("cfg = %+v / %+v", cfg.Schedule, cfg.Server)
	}

	if err := reopened.Remove("server.port"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := newEnvFileBackend(path).Lookup("server.port"); ok {
		t.Error("server.port survived Remove")
	}
}

func TestFileKeychain(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	kc := NewKeychain()

	if _, err := kc.Get(keychainService, apiTokenAccount); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("err = %v, want ErrSecretNotFound", err)
	}
	if err := SetOpenAIKey(kc, "sk-test"); err != nil {
		t.Fatal(err)
	}
	tok, err := GetAPIToken(kc)
	if err != nil {
		t.Fatal(err)
	}

	if got, _ := kc.Get(keychainService, openAIKeyAccount); got != "sk-test" {
		t.Errorf("openai key = %q", got)
	}
	if again, _ := GetAPIToken(kc); again != tok {
		t.Error("token not persisted")
	}
	if _, err := os.Stat(secretsFilePath()); err != nil {
		t.Errorf("secrets file: %v", err)
	}
}
