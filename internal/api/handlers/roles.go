// roles.go — обработчики CRUD ролей.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goclasstrack/oauth-module/internal/api/errors"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/domain/model"
)

// parseEnabledFilter разбирает опциональный query-параметр enabled.
// false во втором значении — параметр невалиден, ответ уже записан.
func parseEnabledFilter(w http.ResponseWriter, r *http.Request) (*bool, bool) {
	raw := r.URL.Query().Get("enabled")
	if raw == "" {
		return nil, true
	}

	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		apierrors.ValidationError(w, "Параметр enabled должен быть true или false")
		return nil, false
	}

	return &enabled, true
}

// ListRoles — GET /roles. Опциональный фильтр ?enabled=.
func (h *APIHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	enabled, ok := parseEnabledFilter(w, r)
	if !ok {
		return
	}

	roles, err := h.roles.List(r.Context(), enabled)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, roles)
}

// CreateRole — POST /roles.
func (h *APIHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req model.RoleCreate
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		apierrors.ValidationError(w, "Поле name обязательно")
		return
	}

	role, err := h.roles.Create(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, role)
}

// GetRole — GET /roles/{id}.
func (h *APIHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.roles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, role)
}

// UpdateRole — PUT /roles/{id}. Полное обновление: все поля
// представления заменяются телом запроса.
func (h *APIHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string  `json:"name"`
		Description *string `json:"description"`
		Enabled     bool    `json:"enabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		apierrors.ValidationError(w, "Поле name обязательно")
		return
	}

	// Полное обновление идёт тем же merge-путём, что и частичное
	patch := model.RolePatch{
		Name:    &req.Name,
		Enabled: &req.Enabled,
	}
	if req.Description != nil {
		patch.Description = req.Description
	} else {
		empty := ""
		patch.Description = &empty
	}

	role, err := h.roles.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, role)
}

// PatchRole — PATCH /roles/{id}. Частичное обновление.
func (h *APIHandler) PatchRole(w http.ResponseWriter, r *http.Request) {
	var patch model.RolePatch
	if !decodeBody(w, r, &patch) {
		return
	}
	if patch.Name != nil && *patch.Name == "" {
		apierrors.ValidationError(w, "Поле name не может быть пустым")
		return
	}

	role, err := h.roles.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, role)
}

// DeleteRole — DELETE /roles/{id}. Снимает роль со всех пользователей
// и отключает её (soft delete).
func (h *APIHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.roles.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
