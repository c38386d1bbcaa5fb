package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type kind int

const (
	kindString kind = iota
	kindInt
	kindBool
	kindFloat
)

// setting binds a dotted key to a Config field.
type setting struct {
	key    string
	kind   kind
	secret bool
	apply  func(cfg *Config, v any)
	get    func(cfg *Config) any
}

func (s setting) env() string { return envName(s.key) }

// parse converts raw into the Go type the setting's field holds.
func (s setting) parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch s.kind {
	case kindInt:
		return strconv.Atoi(raw)
	case kindBool:
		return strconv.ParseBool(raw)
	case kindFloat:
		return strconv.ParseFloat(raw, 64)
	}
	return raw, nil
}

func field[T any](key string, k kind, ptr func(*Config) *T) setting {
	return setting{
		key:   key,
		kind:  k,
		apply: func(cfg *Config, v any) { *ptr(cfg) = v.(T) },
		get:   func(cfg *Config) any { return *ptr(cfg) },
	}
}

func secret(s setting) setting {
	s.secret = true
	return s
}

var settings = []setting{
	field("server.port", kindInt, func(c *Config) *int { return &c.Server.Port }),
	field("server.mcp_port", kindInt, func(c *Config) *int { return &c.Server.MCPPort }),
	field("llm.provider", kindString, func(c *Config) *string { return &c.LLM.Provider }),
	field("ollama.base_url", kindString, func(c *Config) *string { return &c.Ollama.BaseURL }),
	field("ollama.chat_model", kindString, func(c *Config) *string { return &c.Ollama.ChatModel }),
	field("ollama.embed_model", kindString, func(c *Config) *string { return &c.Ollama.EmbedModel }),
	secret(field("openai.api_key", kindString, func(c *Config) *string { return &c.OpenAI.APIKey })),
	field("openai.base_url", kindString, func(c *Config) *string { return &c.OpenAI.BaseURL }),
	field("openai.chat_model", kindString, func(c *Config) *string { return &c.OpenAI.ChatModel }),
	field("openai.embed_model", kindString, func(c *Config) *string { return &c.OpenAI.EmbedModel }),
	field("openai.transcribe_model", kindString, func(c *Config) *string { return &c.OpenAI.TranscribeModel }),
	field("storage.data_dir", kindString, func(c *Config) *string { return &c.Storage.DataDir }),
	field("sync.drop_dir", kindString, func(c *Config) *string { return &c.Sync.DropDir }),
	field("sync.delete_processed", kindBool, func(c *Config) *bool { return &c.Sync.DeleteProcessed }),
	{
		key:   "sync.language_hints",
		kind:  kindString,
		apply: func(cfg *Config, v any) { cfg.Sync.LanguageHints = splitList(v.(string)) },
		get:   func(cfg *Config) any { return strings.Join(cfg.Sync.LanguageHints, ",") },
	},
	field("schedule.cron", kindString, func(c *Config) *string { return &c.Schedule.Cron }),
	field("log.level", kindString, func(c *Config) *string { return &c.Log.Level }),
	field("retrieval.top_k", kindInt, func(c *Config) *int { return &c.Retrieval.TopK }),
	field("retrieval.vector_weight", kindFloat, func(c *Config) *float64 { return &c.Retrieval.VectorWeight }),
	field("retrieval.lexical_weight", kindFloat, func(c *Config) *float64 { return &c.Retrieval.LexicalWeight }),
	field("memory.primary_max_words", kindInt, func(c *Config) *int { return &c.Memory.PrimaryMaxWords }),
	field("memory.short_term_min_words", kindInt, func(c *Config) *int { return &c.Memory.ShortTermMinWords }),
	field("memory.short_term_max_words", kindInt, func(c *Config) *int { return &c.Memory.ShortTermMaxWords }),
	field("memory.short_term_days", kindInt, func(c *Config) *int { return &c.Memory.ShortTermDays }),
	field("memory.compress_retries", kindInt, func(c *Config) *int { return &c.Memory.CompressRetries }),
	field("router.max_tool_rounds", kindInt, func(c *Config) *int { return &c.Router.MaxToolRounds }),
}

func lookupSetting(key string) (setting, bool) {
	for _, s := range settings {
		if s.key == key {
			return s, true
		}
	}
	return setting{}, false
}

// splitList parses a comma-separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// formatValue renders a parsed value the way it is stored.
func formatValue(v any) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range settings {
		if s.secret {
			continue
		}
		raw, ok, err := b.Lookup(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.kind != kindString) {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			return fmt.Errorf("invalid value %q for %s: %w", raw, s.key, err)
		}
		s.apply(cfg, v)
	}
	return nil
}

// applyEnvOverrides applies every non-empty ETERNAL_* variable. A value that
// does not parse keeps whatever the backend or the defaults provided.
func applyEnvOverrides(cfg *Config) {
	for _, s := range settings {
		raw := os.Getenv(s.env())
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] ignoring %s=%q: %v\n", s.env(), raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
