package mcp

import (
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/weatherhub/weatherhub/internal/service"
)

// ServerName is announced to MCP clients during initialization.
const ServerName = "weatherhub"

// MCPServer wraps the mcp-go server with the weather data and analysis tools
// so AI agents can explore the stored history, refresh it and run simple
// statistics over it.
type MCPServer struct {
	weather *service.WeatherService
	logger  *slog.Logger
	server  *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with every tool and resource.
// The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(weather *service.WeatherService, version string, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &MCPServer{
		weather: weather,
		logger:  logger,
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	mcpServer.AddTools(s.serverTools()...)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, the usual path for clients
// that launch the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode, listening on
// the given address (e.g. ":3001").
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

// ToolInfo is the catalogue entry served on /mcp/tools.
type ToolInfo struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	ReadOnly    bool                `json:"read_only"`
	InputSchema mcp.ToolInputSchema `json:"input_schema"`
}

// Catalogue lists the tools without needing a live server.
func Catalogue() []ToolInfo {
	tools := (&MCPServer{}).serverTools()
	out := make([]ToolInfo, 0, len(tools))
	for _, t := range tools {
		ro := t.Tool.Annotations.ReadOnlyHint
		out = append(out, ToolInfo{
			Name:        t.Tool.Name,
			Description: t.Tool.Description,
			ReadOnly:    ro != nil && *ro,
			InputSchema: t.Tool.InputSchema,
		})
	}
	return out
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:   boolPtr(false),
		IdempotentHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
