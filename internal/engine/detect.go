package engine

import (
	"fmt"
	"strings"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Provider        string // "ollama" or "openai"
	OllamaBaseURL   string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	TranscribeModel string
}

// Detect returns the Engine selected by cfg.Provider along with a
// Transcriber when one can be built. Transcription needs an OpenAI key even
// when chat runs on Ollama; without one the returned Transcriber is nil.
func Detect(cfg DetectConfig) (Engine, Transcriber, error) {
	var oa *OpenAIEngine
	if cfg.OpenAIAPIKey != "" {
		var err error
		oa, err = NewOpenAIEngine(OpenAIConfig{
			APIKey:          cfg.OpenAIAPIKey,
			BaseURL:         cfg.OpenAIBaseURL,
			TranscribeModel: cfg.TranscribeModel,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	var tr Transcriber
	if oa != nil {
		tr = oa
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		return NewOllamaEngine(cfg.OllamaBaseURL), tr, nil
	case "openai":
		if oa == nil {
			return nil, nil, fmt.Errorf("llm.provider is openai but openai.api_key is not set")
		}
		return oa, tr, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
