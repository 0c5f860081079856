package kmoai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kmoai/kmoai/common/logger"
	"github.com/kmoai/kmoai/orchestrator"
)

const Version = "1.0.0"

// Asker is the part of the client the MCP tools call.
type Asker interface {
	Ask(ctx context.Context, query, promptID, filter string) orchestrator.Result
	UnifiedSearch(ctx context.Context, query, filter string) (string, error)
}

// NewServer registers the knowledge-base tools on a new MCP server.
func NewServer(name string, asker Asker) *server.MCPServer {
	s := server.NewMCPServer(
		name,
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Answers questions about the organisation's documents with cited sources. "+
			"Pass the prompt_id returned by ask to continue a conversation."),
	)

	s.AddTool(askTool(), handleAsk(asker))
	s.AddTool(unifiedSearchTool(), handleUnifiedSearch(asker))
	return s
}

func askTool() mcp.Tool {
	return mcp.NewTool("ask",
		mcp.WithDescription("Answer a question from the knowledge base. Returns JSON with answer, sources and prompt_id."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithString("prompt_id",
			mcp.Description("Conversation id from a previous answer; omit to start a new conversation"),
		),
		mcp.WithString("filter",
			mcp.Description("Search filter restricting which documents are used, e.g. @container:{hr}"),
		),
	)
}

func unifiedSearchTool() mcp.Tool {
	return mcp.NewTool("unified_search",
		mcp.WithDescription("Search every enabled back-end and return the grounded context used to answer questions."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithString("filter",
			mcp.Description("Search filter restricting which documents are searched"),
		),
	)
}

func handleAsk(asker Asker) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("'query' is required"), nil
		}
		res := asker.Ask(ctx, query, req.GetString("prompt_id", ""), req.GetString("filter", ""))
		body, err := json.Marshal(res)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

func handleUnifiedSearch(asker Asker) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("'query' is required"), nil
		}
		out, err := asker.UnifiedSearch(ctx, query, req.GetString("filter", ""))
		if err != nil {
			logger.Warnf("server: unified search failed: %v", err)
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}
