package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/weatherhub/weatherhub/internal/crawler"
)

const (
	citiesURI   = "weatherhub://cities"
	overviewURI = "weatherhub://overview"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {
	srv.AddResource(
		mcp.NewResource(
			citiesURI,
			"Supported Cities",
			mcp.WithResourceDescription(
				"Cities the crawler can fetch, with their pinyin identifiers.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleCitiesResource,
	)

	srv.AddResource(
		mcp.NewResource(
			overviewURI,
			"Dataset Overview",
			mcp.WithResourceDescription(
				"Total stored records, the cities present and the stored date range.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleOverviewResource,
	)
}

func (s *MCPServer) handleCitiesResource(
	_ context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {
	return jsonContents(request.Params.URI, crawler.Cities)
}

func (s *MCPServer) handleOverviewResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {
	ov, err := s.weather.Overview(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load overview: %w", err)
	}
	return jsonContents(request.Params.URI, ov)
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
