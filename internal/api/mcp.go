package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Abhay-404/Eternal-Memory/internal/router"
)

// PrimaryContextURI is the MCP resource holding the primary context.
const PrimaryContextURI = "memory://primary-context"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Memory   router.MemoryReader
	Searcher router.Searcher
	Sessions *Sessions // optional; if nil, the ask tool is not registered
	Version  string
}

// NewMCPServer creates an MCP server exposing the memory tools and the
// primary context resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"eternal-memory",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("Eternal Memory: the user's long-term memory built from their daily voice journal. Read the primary context resource first, then use the tools for recent events or specific past details."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool(router.ToolShortTerm,
			mcp.WithDescription("Fetch the short-term memory: everything major about the user plus the events of the last 14 days."),
		),
		mcpShortTerm(deps),
	)

	s.AddTool(
		mcp.NewTool(router.ToolSearch,
			mcp.WithDescription("Search all historical memories (daily, weekly and monthly summaries and transcripts) with combined semantic and keyword ranking."),
			mcp.WithString("query", mcp.Description("What to look for"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
			mcp.WithBoolean("json", mcp.Description("Return results as JSON instead of text")),
		),
		mcpSearch(deps),
	)

	if deps.Sessions != nil {
		s.AddTool(
			mcp.NewTool("ask",
				mcp.WithDescription("Ask a question about the user's life. Pass the returned session_id to continue the conversation."),
				mcp.WithString("question", mcp.Description("The question"), mcp.Required()),
				mcp.WithString("session_id", mcp.Description("Session to continue; omit to start a new one")),
			),
			mcpAsk(deps),
		)
	}

	s.AddResource(
		mcp.NewResource(
			PrimaryContextURI,
			"Primary Context",
			mcp.WithResourceDescription("Who the user is: identity, people, work, health and preferences"),
			mcp.WithMIMEType("text/plain"),
		),
		mcpResourcePrimaryContext(deps),
	)

	return s
}

// NewMCPHandler serves srv over the streamable HTTP transport. Every
// request must carry the API bearer token.
func NewMCPHandler(srv *server.MCPServer, token string) http.Handler {
	return BearerAuth(token)(server.NewStreamableHTTPServer(srv))
}

func mcpShortTerm(deps MCPDeps) server.ToolHandlerFunc {
	tool := router.NewShortTermTool(deps.Memory)
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := tool.Call(ctx, nil)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load short-term memory: %v", err)), nil
		}
		return mcpText(out), nil
	}
}

func mcpSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", defaultSearchLimit)
		if limit <= 0 {
			limit = defaultSearchLimit
		}
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}

		results, err := deps.Searcher.Search(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		if !req.GetBool("json", false) {
			return mcpText(router.FormatResults(results)), nil
		}
		b, err := json.Marshal(toSearchResults(results))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		session, err := deps.Sessions.Get(req.GetString("session_id", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("session: %v", err)), nil
		}

		ans, err := session.Ask(ctx, question)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to answer: %v", err)), nil
		}

		b, err := json.Marshal(askResponse{SessionID: session.ID, Answer: ans.Text, ToolsUsed: ans.ToolsUsed})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourcePrimaryContext(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		pc, err := deps.Memory.PrimaryContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get primary context: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/plain",
				Text:     pc.Text,
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
