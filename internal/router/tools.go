package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Abhay-404/Eternal-Memory/internal/engine"
	"github.com/Abhay-404/Eternal-Memory/internal/retrieval"
	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

// Tool names offered to the model.
const (
	ToolShortTerm = "fetch_short_term_memory"
	ToolSearch    = "hybrid_search"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
)

// Tool is a function the model may call while answering.
type Tool interface {
	Definition() engine.ToolDef
	Call(ctx context.Context, args map[string]any) (string, error)
}

// MemoryReader reads the always-available tiers.
// Implemented by tiers.Store.
type MemoryReader interface {
	PrimaryContext(ctx context.Context) (tiers.PrimaryContext, error)
	ShortTermMemory(ctx context.Context) (tiers.ShortTermMemory, error)
}

// Searcher ranks stored memories against a query.
// Implemented by retrieval.Searcher.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.Result, error)
}

// Toolset is an ordered registry of tools.
type Toolset struct {
	tools  []Tool
	byName map[string]Tool
}

// NewToolset registers tools in the given order. Later tools with a
// duplicate name replace earlier ones.
func NewToolset(tools ...Tool) *Toolset {
	ts := &Toolset{byName: make(map[string]Tool)}
	for _, t := range tools {
		name := t.Definition().Name
		if _, dup := ts.byName[name]; !dup {
			ts.tools = append(ts.tools, t)
		} else {
			for i, old := range ts.tools {
				if old.Definition().Name == name {
					ts.tools[i] = t
				}
			}
		}
		ts.byName[name] = t
	}
	return ts
}

// Definitions returns the tool descriptions offered to the model.
func (ts *Toolset) Definitions() []engine.ToolDef {
	defs := make([]engine.ToolDef, len(ts.tools))
	for i, t := range ts.tools {
		defs[i] = t.Definition()
	}
	return defs
}

// Call runs the tool named by call.
func (ts *Toolset) Call(ctx context.Context, call engine.ToolCall) (string, error) {
	t, ok := ts.byName[call.Name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
	return t.Call(ctx, call.Arguments)
}

// DefaultTools returns the short-term memory and hybrid search tools.
func DefaultTools(memory MemoryReader, searcher Searcher) *Toolset {
	return NewToolset(NewShortTermTool(memory), NewSearchTool(searcher))
}

// ShortTermTool returns the full short-term memory.
type ShortTermTool struct {
	memory MemoryReader
}

func NewShortTermTool(memory MemoryReader) *ShortTermTool {
	return &ShortTermTool{memory: memory}
}

func (t *ShortTermTool) Definition() engine.ToolDef {
	return engine.ToolDef{
		Name:        ToolShortTerm,
		Description: "Fetch the short-term memory: everything major about the user plus the events of the last 14 days. Use it for recent context and patterns.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func (t *ShortTermTool) Call(ctx context.Context, _ map[string]any) (string, error) {
	m, err := t.memory.ShortTermMemory(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(m.Text) == "" {
		return "Short-term memory is empty.", nil
	}
	return fmt.Sprintf("Short-term memory covering %s to %s:\n\n%s", tiers.DateKey(m.CoveredFrom), tiers.DateKey(m.CoveredTo), m.Text), nil
}

// SearchTool runs a hybrid search over every embedded tier.
type SearchTool struct {
	searcher Searcher
}

func NewSearchTool(searcher Searcher) *SearchTool {
	return &SearchTool{searcher: searcher}
}

func (t *SearchTool) Definition() engine.ToolDef {
	return engine.ToolDef{
		Name:        ToolSearch,
		Description: "Search all historical memories (daily, weekly and monthly summaries and transcripts). Use it for specific past events and details.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "What to look for"},
				"limit": map[string]any{"type": "integer", "description": "Number of results (default 5)"},
			},
			"required": []string{"query"},
		},
	}
}

func (t *SearchTool) Call(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%s: query is required", ToolSearch)
	}
	limit := intArg(args["limit"], defaultSearchLimit)
	if limit < 1 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	results, err := t.searcher.Search(ctx, query, limit)
	if err != nil {
		return "", err
	}
	return FormatResults(results), nil
}

// FormatResults renders search hits for a model or a terminal.
func FormatResults(results []retrieval.Result) string {
	if len(results) == 0 {
		return "No matching memories found."
	}
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[Memory %d - %s from %s, relevance: %.2f]\n%s", i+1, r.Tier, tiers.DateKey(r.Date), r.Score, r.Text)
	}
	return sb.String()
}

// intArg reads an integer argument that may arrive as a JSON number or string.
func intArg(v any, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}
