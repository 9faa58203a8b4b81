// users.go — обработчики CRUD пользователей и их ролей.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goclasstrack/oauth-module/internal/api/errors"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/domain/model"
)

// resetPasswordRequest — тело запроса PUT /users/{id}/password.
type resetPasswordRequest struct {
	Password string `json:"password"`
}

// userRolesRequest — тело запросов POST|DELETE /users/{id}/roles.
type userRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}

// ListUsers — GET /users. Опциональный фильтр ?enabled=.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	enabled, ok := parseEnabledFilter(w, r)
	if !ok {
		return
	}

	users, err := h.users.List(r.Context(), enabled)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// CreateUser — POST /users.
func (h *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.UserCreate
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		apierrors.ValidationError(w, "Поля email и password обязательны")
		return
	}

	user, err := h.users.Create(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// GetUser — GET /users/{id}.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// PatchUser — PATCH /users/{id}. Частичное обновление.
func (h *APIHandler) PatchUser(w http.ResponseWriter, r *http.Request) {
	var patch model.UserPatch
	if !decodeBody(w, r, &patch) {
		return
	}

	user, err := h.users.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// DeleteUser — DELETE /users/{id}. Отключает пользователя (soft delete).
func (h *APIHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Disable(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ResetUserPassword — PUT /users/{id}/password.
func (h *APIHandler) ResetUserPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Password == "" {
		apierrors.ValidationError(w, "Поле password обязательно")
		return
	}

	if err := h.users.ResetPassword(r.Context(), chi.URLParam(r, "id"), req.Password); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListUserRoles — GET /users/{id}/roles.
func (h *APIHandler) ListUserRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.users.ListRoles(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, roles)
}

// AssignUserRoles — POST /users/{id}/roles.
func (h *APIHandler) AssignUserRoles(w http.ResponseWriter, r *http.Request) {
	var req userRolesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.RoleIDs) == 0 {
		apierrors.ValidationError(w, "Поле role_ids не может быть пустым")
		return
	}

	if err := h.users.AssignRoles(r.Context(), chi.URLParam(r, "id"), req.RoleIDs); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokeUserRoles — DELETE /users/{id}/roles.
func (h *APIHandler) RevokeUserRoles(w http.ResponseWriter, r *http.Request) {
	var req userRolesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.RoleIDs) == 0 {
		apierrors.ValidationError(w, "Поле role_ids не может быть пустым")
		return
	}

	if err := h.users.RevokeRoles(r.Context(), chi.URLParam(r, "id"), req.RoleIDs); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
