package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/memoralabs/memora/internal/chat"
)

// NewMCPServer creates an MCP server exposing the document search and chat
// tools over stdio or SSE.
func NewMCPServer(svc *chat.Service) *server.MCPServer {
	s := server.NewMCPServer(
		"memora",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("memora is a local RAG chatbot core: upload documents, search them semantically, and ask grounded questions."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_documents",
			mcp.WithDescription("Semantically search the ingested documents and return relevant text blocks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchDocuments(svc),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask a question answered from the ingested documents. Each call with the same session id continues the conversation."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session id for multi-turn conversations (optional)")),
			mcp.WithString("mode", mcp.Description("Persona: assistant, developer, or support (default assistant)")),
		),
		mcpAsk(svc),
	)

	return s
}

func mcpSearchDocuments(svc *chat.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		res, err := svc.SearchDocuments(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if res.Degraded {
			return mcpError("document index is unavailable"), nil
		}
		if len(res.Blocks) == 0 {
			return mcpText("[]"), nil
		}

		type blockResult struct {
			DocumentID string  `json:"document_id"`
			Filename   string  `json:"filename"`
			Text       string  `json:"text"`
			Score      float32 `json:"score"`
		}
		out := make([]blockResult, len(res.Blocks))
		for i, b := range res.Blocks {
			out[i] = blockResult{
				DocumentID: b.DocumentID,
				Filename:   b.Filename,
				Text:       b.Text,
				Score:      b.Score,
			}
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("encoding results: %v", err)), nil
		}
		return mcpText(string(data)), nil
	}
}

func mcpAsk(svc *chat.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		resp, err := svc.SendTurn(ctx, chat.SendRequest{
			SessionID: req.GetString("session_id", ""),
			Text:      question,
			Mode:      req.GetString("mode", ""),
			UseRAG:    true,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		data, err := json.MarshalIndent(map[string]any{
			"answer":     resp.Reply,
			"session_id": resp.SessionID,
			"mode":       resp.Mode,
			"degraded":   resp.Degraded,
		}, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("encoding answer: %v", err)), nil
		}
		return mcpText(string(data)), nil
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
