package handler

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/service"
	"github.com/weatherhub/weatherhub/internal/store"
)

// AgentHandler exposes runtime settings and the crawler trigger to admin
// automation.
type AgentHandler struct {
	store   *store.Store
	weather *service.WeatherService
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(s *store.Store, weather *service.WeatherService) *AgentHandler {
	return &AgentHandler{store: s, weather: weather}
}

// ListConfigs returns every setting.
// GET /agent/configs
func (h *AgentHandler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	offset, limit := paging(r)
	settings, err := h.store.ListSettings(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list configs: "+err.Error())
		return
	}
	resources := make([]map[string]interface{}, 0, len(settings))
	for i := range settings {
		resources = append(resources, settingToMap(&settings[i]))
	}
	writeJSON(w, http.StatusOK, listResponse(resources, offset, limit))
}

type settingRequest struct {
	Key         string  `json:"key"`
	Value       *string `json:"value"`
	Description *string `json:"description"`
}

func validateDescription(d *string) string {
	if d != nil && utf8.RuneCountInString(*d) > model.MaxSettingDescriptionLen {
		return "description exceeds 300 characters"
	}
	return ""
}

// CreateConfig adds a setting. An existing key yields 409.
// POST /agent/configs
func (h *AgentHandler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" || utf8.RuneCountInString(req.Key) > model.MaxSettingKeyLen {
		writeError(w, http.StatusBadRequest, "key must be 1-100 characters")
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	if msg := validateDescription(req.Description); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	st := &model.Setting{Key: req.Key, Value: *req.Value}
	if req.Description != nil {
		st.Description = *req.Description
	}
	if err := h.store.CreateSetting(r.Context(), st); err != nil {
		writeServiceError(w, err, "Failed to create config")
		return
	}
	writeJSON(w, http.StatusCreated, settingToMap(st))
}

// GetConfig returns one setting.
// GET /agent/configs/{key}
func (h *AgentHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	st, err := h.store.GetSetting(r.Context(), key)
	if err != nil {
		writeServiceError(w, err, "Failed to get config")
		return
	}
	writeJSON(w, http.StatusOK, settingToMap(st))
}

// UpdateConfig replaces a setting's value and, when given, its description.
// PUT /agent/configs/{key}
func (h *AgentHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req settingRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	if msg := validateDescription(req.Description); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	st, err := h.store.GetSetting(r.Context(), key)
	if err != nil {
		writeServiceError(w, err, "Failed to get config")
		return
	}
	st.Value = *req.Value
	if req.Description != nil {
		st.Description = *req.Description
	}
	if err := h.store.UpdateSetting(r.Context(), st); err != nil {
		writeServiceError(w, err, "Failed to update config")
		return
	}
	writeJSON(w, http.StatusOK, settingToMap(st))
}

// DeleteConfig removes a setting.
// DELETE /agent/configs/{key}
func (h *AgentHandler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.store.DeleteSetting(r.Context(), key); err != nil {
		writeServiceError(w, err, "Failed to delete config")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Config '" + key + "' deleted"})
}

type triggerCrawlerRequest struct {
	City      string `json:"city"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// TriggerCrawler crawls a city over a date range and replaces the stored
// records for that span. It runs on the request context and returns when
// the crawl is complete.
// POST /agent/trigger-crawler
func (h *AgentHandler) TriggerCrawler(w http.ResponseWriter, r *http.Request) {
	var req triggerCrawlerRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := h.weather.UpdateCityRange(r.Context(), req.City, req.StartDate, req.EndDate)
	if err != nil {
		writeServiceError(w, err, "Crawler failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func settingToMap(st *model.Setting) map[string]interface{} {
	return map[string]interface{}{
		"id":          st.ID,
		"key":         st.Key,
		"value":       st.Value,
		"description": st.Description,
		"created_at":  st.CreatedAt,
		"updated_at":  st.UpdatedAt,
	}
}
