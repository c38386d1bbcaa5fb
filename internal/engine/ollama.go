package engine

import (
	"context"
	"fmt"

	"github.com/Abhay-404/Eternal-Memory/internal/ollama"
)

// OllamaEngine serves chat, tool calling and embeddings from a local
// Ollama server.
type OllamaEngine struct {
	client *ollama.Client
}

func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL)}
}

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	out, err := e.client.Chat(ctx, model, ollamaMessages(messages), ollamaSchema(jsonSchema))
	return out, upstream(CapabilityLLM, err)
}

func (e *OllamaEngine) ChatTools(ctx context.Context, model string, messages []Message, tools []ToolDef) (Reply, error) {
	defs := make([]ollama.Tool, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, ollama.Tool{
			Type:     "function",
			Function: ollama.ToolFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	msg, err := e.client.ChatTools(ctx, model, ollamaMessages(messages), defs)
	if err != nil {
		return Reply{}, upstream(CapabilityLLM, err)
	}

	reply := Reply{Content: msg.Content, ToolCalls: make([]ToolCall, 0, len(msg.ToolCalls))}
	for i, tc := range msg.ToolCalls {
		// Ollama does not number tool calls.
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return reply, nil
}

func (e *OllamaEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	vec, err := e.client.Embed(ctx, model, text)
	return vec, upstream(CapabilityEmbedding, err)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool { return e.client.IsRunning(ctx) }

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	return e.client.ListModels(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	if onProgress == nil {
		return e.client.PullModel(ctx, name, nil)
	}
	return e.client.PullModel(ctx, name, func(p ollama.PullProgress) {
		onProgress(PullProgress{Status: p.Status, Total: p.Total, Completed: p.Completed})
	})
}

// ollamaMessages converts the conversation to Ollama's wire form. Tool
// results carry the tool name rather than a call ID.
func ollamaMessages(messages []Message) []ollama.Message {
	out := make([]ollama.Message, len(messages))
	for i, m := range messages {
		om := ollama.Message{Role: m.Role, Content: m.Content}
		if m.Role == "tool" {
			om.ToolName = m.Name
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, ollama.ToolCall{
				Function: ollama.ToolCallFunction{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		out[i] = om
	}
	return out
}

func ollamaSchema(s *Schema) *ollama.Schema {
	if s == nil {
		return nil
	}
	out := &ollama.Schema{Type: s.Type, Required: s.Required}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]ollama.SchemaProperty, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = ollama.SchemaProperty{Type: p.Type, Description: p.Description}
		}
	}
	return out
}
