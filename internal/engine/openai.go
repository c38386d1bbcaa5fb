package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIConfig configures an OpenAIEngine.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string // optional, for proxies or compatible servers
	TranscribeModel string // e.g. "whisper-1"
	HTTPClient      *http.Client
}

// OpenAIEngine talks to the OpenAI API (or a compatible server). It also
// implements Transcriber.
type OpenAIEngine struct {
	client          openai.Client
	transcribeModel string
}

var (
	_ Engine      = (*OpenAIEngine)(nil)
	_ Transcriber = (*OpenAIEngine)(nil)
)

// NewOpenAIEngine creates an engine authenticated with cfg.APIKey.
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai: api key required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	model := cfg.TranscribeModel
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAIEngine{client: openai.NewClient(opts...), transcribeModel: model}, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			p := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				p.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(m.Content),
				}
			}
			for _, tc := range m.ToolCalls {
				args, err := json.Marshal(tc.Arguments)
				if err != nil {
					args = []byte("{}")
				}
				p.ToolCalls = append(p.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &p})
		case "tool":
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (e *OpenAIEngine) complete(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletionMessage, error) {
	completion, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletionMessage{}, upstream(CapabilityLLM, err)
	}
	if len(completion.Choices) == 0 {
		return openai.ChatCompletionMessage{}, upstream(CapabilityLLM, errors.New("empty completion"))
	}
	return completion.Choices[0].Message, nil
}

// Chat ignores jsonSchema; callers describe the expected format in the prompt.
func (e *OpenAIEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	msg, err := e.complete(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

func (e *OpenAIEngine) ChatTools(ctx context.Context, model string, messages []Message, tools []ToolDef) (Reply, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: toOpenAIMessages(messages),
	}
	for _, t := range tools {
		tool := openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:       t.Name,
				Parameters: shared.FunctionParameters(t.Parameters),
			},
		}
		if t.Description != "" {
			tool.Function.Description = openai.String(t.Description)
		}
		params.Tools = append(params.Tools, tool)
	}

	msg, err := e.complete(ctx, params)
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: parseJSONArgs(tc.Function.Arguments),
		})
	}
	return reply, nil
}

func parseJSONArgs(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}

func (e *OpenAIEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, upstream(CapabilityEmbedding, err)
	}
	if len(resp.Data) == 0 {
		return nil, upstream(CapabilityEmbedding, errors.New("empty embeddings array"))
	}

	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, f := range src {
		vec[i] = float32(f)
	}
	return vec, nil
}

// Transcribe sends audio to the transcription endpoint.
func (e *OpenAIEngine) Transcribe(ctx context.Context, audio io.Reader, filename string, languageHints []string) (string, error) {
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, filepath.Base(filename), contentType),
		Model: openai.AudioModel(e.transcribeModel),
	}
	if len(languageHints) > 0 && languageHints[0] != "" {
		params.Language = openai.String(languageHints[0])
	}

	tr, err := e.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", upstream(CapabilityTranscription, fmt.Errorf("transcribing %s: %w", filename, err))
	}
	return strings.TrimSpace(tr.Text), nil
}

// IsRunning reports true; reachability of a remote API is checked per call.
func (e *OpenAIEngine) IsRunning(ctx context.Context) bool {
	return true
}

func (e *OpenAIEngine) ListModels(ctx context.Context) ([]string, error) {
	iter := e.client.Models.ListAutoPaging(ctx)
	var names []string
	for iter.Next() {
		names = append(names, iter.Current().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, upstream(CapabilityLLM, err)
	}
	return names, nil
}

// HasModel reports true; hosted models cannot be pulled, and a wrong name
// surfaces on the first request.
func (e *OpenAIEngine) HasModel(ctx context.Context, name string) bool {
	return true
}

func (e *OpenAIEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	return nil
}
