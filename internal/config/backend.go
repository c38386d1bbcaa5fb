package config

import "strings"

const envPrefix = "ETERNAL_"

// Backend persists non-secret settings as strings under their dotted key
// (for example "server.port"). Typed parsing happens in the settings table.
type Backend interface {
	Lookup(key string) (val string, ok bool, err error)
	Store(key, val string) error
	Remove(key string) error
}

// envName is the ETERNAL_* variable that overrides key.
func envName(key string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
