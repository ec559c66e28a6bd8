// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes unirepo catalog tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/unirepo/internal/apperr"
	"github.com/starford/unirepo/internal/catalogservice"
)

const contractURI = "unirepo://filename-format"

// Server wraps the MCP server with unirepo tools.
type Server struct {
	mcp *server.MCPServer
	svc *catalogservice.Service
}

// New creates a new MCP server with all unirepo tools registered.
func New(svc *catalogservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"unirepo",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_catalogs",
		mcp.WithDescription("List the configured catalogs with their folders, output files and last build counts."),
	), s.listCatalogs)

	s.mcp.AddTool(mcp.NewTool("read_catalog",
		mcp.WithDescription("Return the generated JSON catalog exactly as published on the site."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Catalog name (e.g. exams, projects)")),
	), s.readCatalog)

	s.mcp.AddTool(mcp.NewTool("list_facets",
		mcp.WithDescription("List the distinct values of one catalog field, e.g. every materia of the exams catalog."),
		mcp.WithString("catalog", mcp.Required(), mcp.Description("Catalog name")),
		mcp.WithString("field", mcp.Required(), mcp.Description("Field key from get_filename_contract (e.g. materia, tipo, autor)")),
	), s.listFacets)

	s.mcp.AddTool(mcp.NewTool("search_catalog",
		mcp.WithDescription("Search catalog records by subject, instructor, title, author or tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("catalog", mcp.Description("Optional catalog to restrict the search to")),
	), s.searchCatalog)

	s.mcp.AddTool(mcp.NewTool("rebuild_catalog",
		mcp.WithDescription("Rescan a catalog folder and regenerate its JSON file. "+
			"Returns counts and the file names that were rejected."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Catalog name")),
	), s.rebuildCatalog)

	s.mcp.AddTool(mcp.NewTool("get_filename_contract",
		mcp.WithDescription("Returns the file naming rules of every catalog. "+
			"Call this before adding PDFs so the names are accepted."),
	), s.getFilenameContract)

	s.mcp.AddTool(mcp.NewTool("add_pdf",
		mcp.WithDescription("Add a PDF to a catalog folder from a URL or a base64 data URI and rebuild the catalog. "+
			"The file name MUST follow the catalog layout; read get_filename_contract first."),
		mcp.WithString("catalog", mcp.Required(), mcp.Description("Catalog name")),
		mcp.WithString("filename", mcp.Required(), mcp.Description("File name following the catalog layout (e.g. Calculo-I_Silva_P1_2023.pdf)")),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:application/pdf;base64,... URI")),
	), s.addPDF)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "File Name Contract",
			mcp.WithResourceDescription("Naming layout that PDFs must follow to appear in a catalog."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func (s *Server) listCatalogs(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sums, err := s.svc.Summaries()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sums)
}

func (s *Server) readCatalog(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, _, err := s.svc.Read(name)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("catalog %s has not been built yet", name)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) listFacets(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("catalog")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	field, err := req.RequireString("field")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	values, err := s.svc.Facets(name, field)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("catalog %s has not been built yet", name)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(values)
}

func (s *Server) searchCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	catalogName := ""
	if v, cErr := req.RequireString("catalog"); cErr == nil {
		catalogName = v
	}
	results, err := s.svc.Search(ctx, query, catalogName, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

type rebuildResult struct {
	Catalog  string   `json:"catalog"`
	Output   string   `json:"output"`
	Seen     int      `json:"seen"`
	Accepted int      `json:"accepted"`
	Rejected []string `json:"rejected"`
}

func (s *Server) rebuildCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Rebuild(ctx, name, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := rebuildResult{
		Catalog:  res.Catalog,
		Output:   res.Output,
		Seen:     res.Seen,
		Accepted: res.Accepted(),
		Rejected: []string{},
	}
	for _, r := range res.Rejections {
		out.Rejected = append(out.Rejected, r.Name)
	}
	return jsonResult(out)
}

func (s *Server) getFilenameContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(FilenameContract(s.svc.Catalogs())), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     FilenameContract(s.svc.Catalogs()),
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
