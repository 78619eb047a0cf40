package handler

import (
	"net/http"

	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/server/middleware"
	"github.com/weatherhub/weatherhub/internal/service"
	"github.com/weatherhub/weatherhub/internal/store"
)

// AdminHandler manages users and API keys. Every route requires an admin
// session.
type AdminHandler struct {
	store        *store.Store
	auth         *service.AuthService
	keys         *service.KeyService
	defaultQuota int64
}

// NewAdminHandler creates a new AdminHandler. defaultQuota is used for keys
// created without an explicit quota.
func NewAdminHandler(s *store.Store, auth *service.AuthService, keys *service.KeyService, defaultQuota int64) *AdminHandler {
	return &AdminHandler{store: s, auth: auth, keys: keys, defaultQuota: defaultQuota}
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// ListUsers returns a page of users.
// GET /admin/users?skip=&limit=
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	offset, limit := paging(r)
	users, err := h.store.ListUsers(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users: "+err.Error())
		return
	}

	resources := make([]map[string]interface{}, 0, len(users))
	for i := range users {
		resources = append(resources, userToMap(&users[i]))
	}
	writeJSON(w, http.StatusOK, listResponse(resources, offset, limit))
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// CreateUser creates a user with any role.
// POST /admin/users
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	role := model.RoleUser
	if req.Role != "" {
		var ok bool
		if role, ok = model.ParseRole(req.Role); !ok {
			writeError(w, http.StatusBadRequest, "Unknown role: "+req.Role)
			return
		}
	}

	u, err := h.auth.CreateUser(r.Context(), req.Username, req.Password, role)
	if err != nil {
		writeServiceError(w, err, "Failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, userToMap(u))
}

// GetUser returns one user.
// GET /admin/users/{id}
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	u, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, userToMap(u))
}

type updateUserRequest struct {
	Password *string `json:"password"`
	IsActive *bool   `json:"is_active"`
}

// UpdateUser changes a user's password and/or active flag.
// PATCH /admin/users/{id}
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	var req updateUserRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var patch store.UserPatch
	if req.Password != nil {
		hash, err := service.HashPassword(*req.Password)
		if err != nil {
			writeServiceError(w, err, "Failed to hash password")
			return
		}
		patch.PasswordHash = &hash
	}
	patch.IsActive = req.IsActive

	u, err := h.store.UpdateUser(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, err, "Failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, userToMap(u))
}

// DeleteUser removes a user and, by cascade, their keys. Admins cannot
// delete themselves.
// DELETE /admin/users/{id}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	if me := middleware.GetUser(r.Context()); me != nil && me.ID == id {
		writeError(w, http.StatusBadRequest, "Cannot delete yourself")
		return
	}

	u, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Failed to get user")
		return
	}
	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		writeServiceError(w, err, "Failed to delete user")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "User " + u.Username + " deleted"})
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

type createKeyRequest struct {
	UserID      int64  `json:"user_id"`
	Quota       *int64 `json:"quota"`
	Description string `json:"description"`
}

// CreateAPIKey issues a key for an existing user. The raw key appears in
// this response only.
// POST /admin/api-keys
func (h *AdminHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	quota := h.defaultQuota
	if req.Quota != nil {
		quota = *req.Quota
	}

	key, raw, err := h.keys.Issue(r.Context(), req.UserID, quota, req.Description)
	if err != nil {
		writeServiceError(w, err, "Failed to create API key")
		return
	}

	m := apiKeyToMap(key)
	m["access_key"] = raw
	writeJSON(w, http.StatusCreated, m)
}

// ListAPIKeys returns a page of keys, optionally for one user.
// GET /admin/api-keys?user_id=&skip=&limit=
func (h *AdminHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	offset, limit := paging(r)
	userID := int64(queryInt(r, "user_id", 0))

	keys, err := h.store.ListAPIKeys(r.Context(), userID, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list API keys: "+err.Error())
		return
	}
	resources := make([]map[string]interface{}, 0, len(keys))
	for i := range keys {
		resources = append(resources, apiKeyToMap(&keys[i]))
	}
	writeJSON(w, http.StatusOK, listResponse(resources, offset, limit))
}

type updateKeyRequest struct {
	RemainingQuota *int64 `json:"remaining_quota"`
	IsActive       *bool  `json:"is_active"`
}

// UpdateAPIKey sets a key's remaining quota and/or active flag.
// PATCH /admin/api-keys/{id}
func (h *AdminHandler) UpdateAPIKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}
	var req updateKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.RemainingQuota != nil && *req.RemainingQuota < 0 {
		writeError(w, http.StatusBadRequest, "remaining_quota must not be negative")
		return
	}

	key, err := h.store.UpdateAPIKey(r.Context(), id, store.APIKeyPatch{
		RemainingQuota: req.RemainingQuota,
		IsActive:       req.IsActive,
	})
	if err != nil {
		writeServiceError(w, err, "Failed to update API key")
		return
	}
	writeJSON(w, http.StatusOK, apiKeyToMap(key))
}

// DeleteAPIKey removes a key.
// DELETE /admin/api-keys/{id}
func (h *AdminHandler) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}
	key, err := h.store.GetAPIKey(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Failed to get API key")
		return
	}
	if err := h.store.DeleteAPIKey(r.Context(), id); err != nil {
		writeServiceError(w, err, "Failed to delete API key")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "API key " + key.KeyPrefix + "... deleted"})
}

// ---------------------------------------------------------------------------
// Serialization helpers (never expose password or key hashes)
// ---------------------------------------------------------------------------

func userToMap(u *model.User) map[string]interface{} {
	return map[string]interface{}{
		"id":         u.ID,
		"username":   u.Username,
		"role":       u.Role,
		"is_active":  u.IsActive,
		"created_at": u.CreatedAt,
		"updated_at": u.UpdatedAt,
	}
}

func apiKeyToMap(key *model.APIKey) map[string]interface{} {
	m := map[string]interface{}{
		"id":              key.ID,
		"user_id":         key.UserID,
		"key_prefix":      key.KeyPrefix,
		"remaining_quota": key.RemainingQuota,
		"is_active":       key.IsActive,
		"description":     key.Description,
		"created_at":      key.CreatedAt,
	}
	if key.LastUsedAt != nil {
		m["last_used_at"] = key.LastUsedAt
	}
	return m
}
