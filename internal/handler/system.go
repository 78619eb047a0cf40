package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/weatherhub/weatherhub/internal/store"
)

// SystemHandler serves the unauthenticated service endpoints: banner,
// probes, tool catalogue and OpenAPI document.
type SystemHandler struct {
	store   *store.Store
	version string
	tools   interface{}
	doc     *openapi3.T
}

// NewSystemHandler creates a new SystemHandler. tools is rendered verbatim
// under the "tools" key of /mcp/tools.
func NewSystemHandler(s *store.Store, version string, tools interface{}, doc *openapi3.T) *SystemHandler {
	return &SystemHandler{store: s, version: version, tools: tools, doc: doc}
}

// Root returns a short service banner.
// GET /
func (h *SystemHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    "weatherhub",
		"version": h.version,
		"status":  "running",
		"docs":    "/openapi.json",
		"endpoints": map[string]string{
			"auth":    "/auth",
			"admin":   "/admin",
			"agent":   "/agent",
			"weather": "/weather",
			"tools":   "/mcp/tools",
			"metrics": "/metrics",
		},
	})
}

// Health is the liveness probe.
// GET /healthz, GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": h.version})
}

// Ready reports whether the database answers a ping within two seconds.
// GET /readyz
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ready",
		"dialect": h.store.Dialect(),
	})
}

// Tools lists the data and analysis tools exposed over MCP.
// GET /mcp/tools
func (h *SystemHandler) Tools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": h.tools})
}

// OpenAPI serves the generated OpenAPI document.
// GET /openapi.json
func (h *SystemHandler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	if h.doc == nil {
		writeError(w, http.StatusNotFound, "OpenAPI document not available")
		return
	}
	writeJSON(w, http.StatusOK, h.doc)
}
