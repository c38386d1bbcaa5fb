package engine

import (
	"context"
	"io"
)

// Engine abstracts an inference backend (a local Ollama server or an
// OpenAI-compatible API). Consolidation, retrieval and the query router use
// this interface instead of depending on a concrete client.
type Engine interface {
	// Chat returns the assistant text for messages. A non-nil jsonSchema
	// constrains the reply to JSON of that shape.
	Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error)

	// ChatTools offers tools to the model. The reply carries either final
	// content or the tool calls the model wants executed.
	ChatTools(ctx context.Context, model string, messages []Message, tools []ToolDef) (Reply, error)

	// Embed returns the vector model assigns to text.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	IsRunning(ctx context.Context) bool

	ListModels(ctx context.Context) ([]string, error)
	HasModel(ctx context.Context, name string) bool

	// PullModel fetches name, reporting progress to onProgress when it is
	// non-nil. Hosted backends treat it as a no-op.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// Transcriber converts recorded audio into text.
type Transcriber interface {
	// Transcribe returns the text spoken in audio. languageHints lists
	// expected languages (ISO-639-1); the first one is passed to the backend.
	Transcribe(ctx context.Context, audio io.Reader, filename string, languageHints []string) (string, error)
}
