// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Perth tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/perth/internal/renderservice"
)

// Server wraps the MCP server with Perth tools.
type Server struct {
	mcp *server.MCPServer
	svc *renderservice.Service
}

// New creates a new MCP server with all Perth tools registered.
func New(svc *renderservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Perth",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_repositories",
		mcp.WithDescription("List connected git repositories with their ids and default branches."),
	), s.listRepositories)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List Quarto (.qmd) documents in a repository at a ref."),
		mcp.WithString("repo_id", mcp.Required(), mcp.Description("Repository id from list_repositories")),
		mcp.WithString("ref", mcp.Description("Branch, tag, or commit (defaults to the repository's default branch)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("render_document",
		mcp.WithDescription("Render a Quarto document at a commit and return its node tree, "+
			"extracted comments, and the commit it was rendered at. Rendered once per commit "+
			"and served from cache afterwards. Read the perth://document-format resource or the "+
			"get_document_contract tool to interpret the output."),
		mcp.WithString("repo_id", mcp.Required(), mcp.Description("Repository id from list_repositories")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document path inside the repository (e.g. docs/report.qmd)")),
		mcp.WithString("ref", mcp.Description("Branch, tag, or commit (defaults to the repository's default branch)")),
	), s.renderDocument)

	s.mcp.AddTool(mcp.NewTool("get_document_contract",
		mcp.WithDescription("Returns the canonical Perth document format: node tree shape, "+
			"comment marker syntax, and the comment appendix block."),
	), s.getDocumentContract)

	// Resource: document format contract.
	s.mcp.AddResource(
		mcp.NewResource("perth://document-format", "Document Format Contract",
			mcp.WithResourceDescription("Canonical Quarto document conventions Perth parses and renders."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDocumentFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func repoIDArg(req mcp.CallToolRequest) (int64, error) {
	raw, err := req.RequireString("repo_id")
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid repo_id: %q", raw)
	}
	return id, nil
}

func refArg(req mcp.CallToolRequest) string {
	if ref, err := req.RequireString("ref"); err == nil {
		return ref
	}
	return ""
}

func (s *Server) listRepositories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repos, err := s.svc.ListRepos(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(repos, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := repoIDArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	docs, err := s.svc.ListDocs(ctx, id, refArg(req))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText("no documents found"), nil
	}
	return mcp.NewToolResultText(strings.Join(docs, "\n")), nil
}

func (s *Server) renderDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := repoIDArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.svc.RenderDoc(ctx, id, path, refArg(req))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(entry, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getDocumentContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DocumentFormatContract), nil
}

func (s *Server) readDocumentFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "perth://document-format",
			MIMEType: "text/markdown",
			Text:     DocumentFormatContract,
		},
	}, nil
}
