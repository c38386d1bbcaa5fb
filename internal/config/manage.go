package config

import "fmt"

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll lists every non-secret setting with its effective value.
func ShowAll(cfg Config) []KeyInfo {
	var out []KeyInfo
	for _, s := range settings {
		if s.secret {
			continue
		}
		out = append(out, KeyInfo{Key: s.key, EnvVar: s.env(), Value: formatValue(s.get(&cfg))})
	}
	return out
}

// SetKey validates value and writes it to the platform backend.
func SetKey(key, value string) error {
	return setKeyWith(newPlatformBackend(), key, value)
}

// UnsetKey removes key from the platform backend so its default applies again.
func UnsetKey(key string) error {
	return unsetKeyWith(newPlatformBackend(), key)
}

func settingFor(key string) (setting, error) {
	s, ok := lookupSetting(key)
	if !ok {
		return setting{}, fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret {
		return setting{}, fmt.Errorf("cannot set secret %q via config; use environment variable %s or `eternal config set-openai-key`", key, s.env())
	}
	return s, nil
}

func setKeyWith(b Backend, key, value string) error {
	s, err := settingFor(key)
	if err != nil {
		return err
	}
	v, err := s.parse(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return b.Store(key, formatValue(v))
}

func unsetKeyWith(b Backend, key string) error {
	if _, err := settingFor(key); err != nil {
		return err
	}
	return b.Remove(key)
}

// ValidKeys returns the names of the settings that can be changed with SetKey.
func ValidKeys() []string {
	var keys []string
	for _, s := range settings {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
