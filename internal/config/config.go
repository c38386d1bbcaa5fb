package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Ollama    OllamaConfig
	OpenAI    OpenAIConfig
	Storage   StorageConfig
	Sync      SyncConfig
	Schedule  ScheduleConfig
	Log       LogConfig
	Retrieval RetrievalConfig
	Memory    MemoryConfig
	Router    RouterConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type LLMConfig struct {
	Provider string // "ollama" or "openai"
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	ChatModel       string
	EmbedModel      string
	TranscribeModel string
}

type StorageConfig struct {
	DataDir string
}

type SyncConfig struct {
	DropDir         string // defaults to <data_dir>/inbox
	DeleteProcessed bool
	LanguageHints   []string
}

type ScheduleConfig struct {
	Cron string // empty disables the nightly run
}

type LogConfig struct {
	Level string
}

type RetrievalConfig struct {
	TopK          int
	VectorWeight  float64
	LexicalWeight float64
}

type MemoryConfig struct {
	PrimaryMaxWords   int
	ShortTermMinWords int
	ShortTermMaxWords int
	ShortTermDays     int
	CompressRetries   int
}

type RouterConfig struct {
	MaxToolRounds int
}

// ChatModel returns the chat model of the selected provider.
func (c Config) ChatModel() string {
	if c.LLM.Provider == "openai" {
		return c.OpenAI.ChatModel
	}
	return c.Ollama.ChatModel
}

// EmbedModel returns the embedding model of the selected provider.
func (c Config) EmbedModel() string {
	if c.LLM.Provider == "openai" {
		return c.OpenAI.EmbedModel
	}
	return c.Ollama.EmbedModel
}

// DBPath returns the SQLite database location.
func (c Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, "eternal.db")
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port:    4100,
			MCPPort: 4101,
		},
		LLM: LLMConfig{Provider: "ollama"},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "llama3.1",
			EmbedModel: "nomic-embed-text",
		},
		OpenAI: OpenAIConfig{
			ChatModel:       "gpt-4o-mini",
			EmbedModel:      "text-embedding-3-small",
			TranscribeModel: "whisper-1",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Sync: SyncConfig{
			LanguageHints: []string{"en"},
		},
		Schedule: ScheduleConfig{
			Cron: "30 23 * * *",
		},
		Log: LogConfig{Level: "info"},
		Retrieval: RetrievalConfig{
			TopK:          5,
			VectorWeight:  0.7,
			LexicalWeight: 0.3,
		},
		Memory: MemoryConfig{
			PrimaryMaxWords:   500,
			ShortTermMinWords: 6000,
			ShortTermMaxWords: 7000,
			ShortTermDays:     14,
			CompressRetries:   2,
		},
		Router: RouterConfig{MaxToolRounds: 4},
	}
}

// Load reads configuration from the platform-native backend, .env files,
// environment variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.eternal.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a dotenv file at $XDG_CONFIG_HOME/eternal/settings.env
// and secrets fall back to a 0600 secrets.env under $XDG_DATA_HOME/eternal.
//
// .env.local and .env in the working directory are loaded first; variables
// already set in the environment win. Environment variables (ETERNAL_*)
// override backend values on all platforms.
func Load() (Config, error) {
	if err := LoadDotEnv(".env.local", ".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newPlatformBackend(), NewKeychain())
}

func loadWith(b Backend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try platform keychain for API key if still empty.
	if cfg.OpenAI.APIKey == "" {
		if key, err := kc.Get(keychainService, openAIKeyAccount); err == nil && key != "" {
			cfg.OpenAI.APIKey = key
		}
	}

	if cfg.Sync.DropDir == "" {
		cfg.Sync.DropDir = filepath.Join(cfg.Storage.DataDir, "inbox")
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.LLM.Provider {
	case "ollama":
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return fmt.Errorf("missing required config: OpenAI API key. "+
				"Set it via environment variable ETERNAL_OPENAI_API_KEY%s", apiKeyHint())
		}
	default:
		return fmt.Errorf("invalid llm.provider %q (want ollama or openai)", cfg.LLM.Provider)
	}

	m := cfg.Memory
	if m.PrimaryMaxWords <= 0 {
		return fmt.Errorf("memory.primary_max_words must be positive")
	}
	if m.ShortTermMinWords <= 0 || m.ShortTermMaxWords < m.ShortTermMinWords {
		return fmt.Errorf("invalid short-term band [%d, %d]", m.ShortTermMinWords, m.ShortTermMaxWords)
	}
	if m.ShortTermDays <= 0 {
		return fmt.Errorf("memory.short_term_days must be positive")
	}

	r := cfg.Retrieval
	if r.VectorWeight < 0 || r.LexicalWeight < 0 || r.VectorWeight+r.LexicalWeight == 0 {
		return fmt.Errorf("invalid retrieval weights %.2f/%.2f", r.VectorWeight, r.LexicalWeight)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q", cfg.Log.Level)
	}
	return nil
}
