package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/weatherhub/weatherhub/internal/analysis"
)

// requireString returns a non-empty string argument.
func requireString(request mcp.CallToolRequest, key string) (string, error) {
	val, err := request.RequireString(key)
	if err != nil || val == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return val, nil
}

func optionalString(request mcp.CallToolRequest, key string) string {
	return request.GetString(key, "")
}

func optionalStringSlice(request mcp.CallToolRequest, key string) []string {
	return request.GetStringSlice(key, nil)
}

// dateArgs returns the start_date/end_date pair shared by most tools. The
// service layer validates the format.
func dateArgs(request mcp.CallToolRequest) (start, end string) {
	return optionalString(request, "start_date"), optionalString(request, "end_date")
}

// rowLimit reads "limit", falling back to def and capping at maxToolRows.
func rowLimit(request mcp.CallToolRequest, def int) int {
	return clamp(request.GetInt("limit", def), 1, maxToolRows)
}

// getSeriesArg decodes the "series" argument of the chart tool. The value
// arrives as generic JSON, so it is re-encoded into the typed form.
func getSeriesArg(request mcp.CallToolRequest, key string) ([]analysis.SeriesInput, error) {
	raw, ok := request.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %q: %w", key, err)
	}
	var series []analysis.SeriesInput
	if err := json.Unmarshal(b, &series); err != nil {
		return nil, fmt.Errorf("invalid %q: expected [{name, points: [{x, y}]}]: %w", key, err)
	}
	return series, nil
}

// successJSON renders v as indented JSON text content.
func successJSON(v interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError reports a failure inside the result so the agent can read it and
// retry; the session stays open.
func toolError(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
