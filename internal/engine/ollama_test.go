package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeOllama serves the given raw JSON bodies by path and records the last
// request body per path. Unknown paths answer 404.
type fakeOllama struct {
	*httptest.Server
	bodies map[string]map[string]any
}

func newFakeOllama(t *testing.T, routes map[string]string) *fakeOllama {
	t.Helper()
	f := &fakeOllama{bodies: map[string]map[string]any{}}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var got map[string]any
		json.NewDecoder(r.Body).Decode(&got)
		f.bodies[r.URL.Path] = got
		io.WriteString(w, body)
	}))
	t.Cleanup(f.Close)
	return f
}

const tagsBody = `{"models":[{"name":"llama3.1:latest"},{"name":"nomic-embed-text:latest"}]}`

func TestOllamaEngine_Chat(t *testing.T) {
	f := newFakeOllama(t, map[string]string{
		"/api/chat": `{"message":{"role":"assistant","content":"{\"summary\":\"quiet day\"}"}}`,
	})
	e := NewOllamaEngine(f.URL)

	schema := &Schema{
		Type:       "object",
		Properties: map[string]SchemaProperty{"summary": {Type: "string"}},
		Required:   []string{"summary"},
	}
	out, err := e.Chat(context.Background(), "llama3.1", []Message{{Role: "user", Content: "summarize"}}, schema)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != `{"summary":"quiet day"}` {
		t.Errorf("out = %q", out)
	}

	format, _ := f.bodies["/api/chat"]["format"].(map[string]any)
	props, _ := format["properties"].(map[string]any)
	if format["type"] != "object" || props["summary"] == nil {
		t.Errorf("format sent = %v", f.bodies["/api/chat"]["format"])
	}

	if _, err := e.Chat(context.Background(), "llama3.1", []Message{{Role: "user", Content: "hi"}}, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.bodies["/api/chat"]["format"]; ok {
		t.Error("format sent without a schema")
	}
}

func TestOllamaEngine_Embed(t *testing.T) {
	f := newFakeOllama(t, map[string]string{"/api/embed": `{"embeddings":[[0.1,0.2,0.3]]}`})
	vec, err := NewOllamaEngine(f.URL).Embed(context.Background(), "nomic-embed-text", "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Errorf("vec = %v", vec)
	}
}

func TestOllamaEngine_Models(t *testing.T) {
	f := newFakeOllama(t, map[string]string{"/api/tags": tagsBody})
	e := NewOllamaEngine(f.URL)
	ctx := context.Background()

	if !e.IsRunning(ctx) {
		t.Error("IsRunning = false")
	}
	if !e.HasModel(ctx, "nomic-embed-text") || e.HasModel(ctx, "llama3") {
		t.Error("HasModel does not match on the tag-less name")
	}
	names, err := e.ListModels(ctx)
	if err != nil || len(names) != 2 {
		t.Errorf("ListModels = %v, %v", names, err)
	}

	f.Close()
	if e.IsRunning(ctx) {
		t.Error("IsRunning = true after shutdown")
	}
}

func TestOllamaEngine_PullModel(t *testing.T) {
	f := newFakeOllama(t, map[string]string{
		"/api/pull": `{"status":"downloading","total":1000,"completed":500}
{"status":"downloading","total":1000,"completed":1000}
{"status":"success"}
`,
	})
	var seen []PullProgress
	err := NewOllamaEngine(f.URL).PullModel(context.Background(), "llama3.1", func(p PullProgress) {
		seen = append(seen, p)
	})
	if err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if len(seen) != 3 || seen[0].Completed != 500 || seen[2].Status != "success" {
		t.Errorf("progress = %+v", seen)
	}
}

func TestOllamaEngine_ChatTools(t *testing.T) {
	f := newFakeOllama(t, map[string]string{
		"/api/chat": `{"message":{"role":"assistant","content":"","tool_calls":[
			{"function":{"name":"fetch_short_term_memory","arguments":{}}},
			{"function":{"name":"hybrid_search","arguments":{"query":"dentist"}}}]}}`,
	})
	reply, err := NewOllamaEngine(f.URL).ChatTools(context.Background(), "llama3.1", []Message{
		{Role: "user", Content: "when was my dentist appointment?"},
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "call_0", Name: "hybrid_search", Arguments: map[string]any{"query": "x"}}}},
		{Role: "tool", Name: "hybrid_search", ToolCallID: "call_0", Content: "[]"},
	}, []ToolDef{{Name: "fetch_short_term_memory", Parameters: map[string]any{"type": "object"}}})
	if err != nil {
		t.Fatalf("ChatTools: %v", err)
	}
	if len(reply.ToolCalls) != 2 {
		t.Fatalf("tool calls = %+v", reply.ToolCalls)
	}
	if reply.ToolCalls[0].ID == reply.ToolCalls[1].ID {
		t.Error("tool call IDs are not distinct")
	}
	if reply.ToolCalls[1].Arguments["query"] != "dentist" {
		t.Errorf("arguments = %v", reply.ToolCalls[1].Arguments)
	}

	sent := f.bodies["/api/chat"]
	msgs, _ := sent["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("messages sent = %d, want 3", len(msgs))
	}
	if m, _ := msgs[2].(map[string]any); m["tool_name"] != "hybrid_search" {
		t.Errorf("tool message = %v", m)
	}
	if m, _ := msgs[1].(map[string]any); m["tool_calls"] == nil {
		t.Errorf("assistant message lost its tool calls: %v", m)
	}
	if tools, _ := sent["tools"].([]any); len(tools) != 1 {
		t.Errorf("tools sent = %v", sent["tools"])
	}
}

func TestOllamaEngine_ErrorsAreUpstream(t *testing.T) {
	f := newFakeOllama(t, nil)
	_, err := NewOllamaEngine(f.URL).Embed(context.Background(), "nomic-embed-text", "hello")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Capability != CapabilityEmbedding {
		t.Errorf("capability = %v, want %q", ue, CapabilityEmbedding)
	}
}
