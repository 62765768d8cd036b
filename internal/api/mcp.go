package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/hrassist/internal/generator"
	"github.com/kalambet/hrassist/internal/ingest"
	"github.com/kalambet/hrassist/internal/loader"
	"github.com/kalambet/hrassist/internal/retrieval"
	"github.com/kalambet/hrassist/internal/session"
)

// Searcher builds a retrieval context block for a query.
type Searcher interface {
	Build(ctx context.Context, question string) (retrieval.ContextBlock, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Assistant Assistant
	Searcher  Searcher
	Jobs      JobQueue
	Documents DocumentCatalog
}

// NewMCPServer creates an MCP server exposing the assistant as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"hrassist",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("hrassist answers HR questions from company documents and employee records."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask the HR assistant a question. Pass session_id to continue a conversation."),
			mcp.WithString("question", mcp.Description("The question"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Conversation to continue; a new one is started when empty")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("search_documents",
			mcp.WithDescription("Search the HR knowledge base and return the matching passages with their sources."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
		),
		mcpSearchDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("reset_session",
			mcp.WithDescription("Clear the history of a conversation."),
			mcp.WithString("session_id", mcp.Description("Conversation to clear"), mcp.Required()),
		),
		mcpResetSession(deps),
	)

	s.AddTool(
		mcp.NewTool("ingest_text",
			mcp.WithDescription("Add a text or markdown document to the knowledge base. Ingestion runs in the background."),
			mcp.WithString("name", mcp.Description("Document name, e.g. remote_work.md"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Document text"), mcp.Required()),
		),
		mcpIngestText(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"hr://documents",
			"Knowledge Base Documents",
			mcp.WithResourceDescription("Documents currently in the knowledge base"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceDocuments(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		sessionID := req.GetString("session_id", "")
		if sessionID == "" {
			sessionID = session.NewID()
		}

		ans, err := deps.Assistant.Ask(ctx, sessionID, question)
		if errors.Is(err, generator.ErrModelUnavailable) {
			return mcpError("assistant unavailable"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		b, err := json.Marshal(AskResponse{
			Answer:    ans.Text,
			SessionID: sessionID,
			Intent:    ans.Intent,
			Sources:   ans.Sources,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		block, err := deps.Searcher.Build(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if !block.Found {
			return mcpText(retrieval.NoContextMarker), nil
		}
		return mcpText(block.Text), nil
	}
}

func mcpResetSession(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		deps.Assistant.Reset(id)
		return mcpText(fmt.Sprintf("Session %s cleared", id)), nil
	}
}

func mcpIngestText(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		name = filepath.Base(name)

		format := loader.Text
		if f, err := loader.FormatFromPath(name); err == nil {
			if f == loader.PDF {
				return mcpError("ingest_text accepts text or markdown only"), nil
			}
			format = f
		}

		job, err := ingest.NewJob(name, format, []byte(content))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to build job: %v", err)), nil
		}
		if err := deps.Jobs.EnqueueJob(job); err != nil {
			return mcpError(fmt.Sprintf("failed to queue document: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Queued %s as job %s", name, job.ID)), nil
	}
}

func mcpResourceDocuments(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		docs, err := deps.Documents.ListDocuments()
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}

		type documentSummary struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			Chunks     int    `json:"chunks"`
			IngestedAt string `json:"ingested_at"`
		}
		summaries := make([]documentSummary, len(docs))
		for i, d := range docs {
			summaries[i] = documentSummary{
				ID:         d.ID,
				Name:       d.Name,
				Chunks:     d.ChunkCount,
				IngestedAt: d.IngestedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal documents: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
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
