// auth.go — обработчики аутентификации: login, refresh, validate.
package handlers

import (
	"errors"
	"net/http"

	apierrors "github.com/bigkaa/goclasstrack/oauth-module/internal/api/errors"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/keycloak"
)

// loginRequest — тело запроса POST /login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest — тело запроса POST /refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// validateRequest — тело запроса POST /validate.
type validateRequest struct {
	Token string `json:"token"`
}

// Login — POST /login. Вход по email и паролю.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		apierrors.ValidationError(w, "Поля email и password обязательны")
		return
	}

	tokens, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, keycloak.ErrInvalidGrant) {
			apierrors.Unauthorized(w, "Неверный email или пароль")
			return
		}
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// Refresh — POST /refresh. Обмен refresh token на новую пару токенов.
func (h *APIHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		apierrors.ValidationError(w, "Поле refresh_token обязательно")
		return
	}

	tokens, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, keycloak.ErrInvalidGrant) {
			apierrors.Unauthorized(w, "Невалидный или просроченный refresh token")
			return
		}
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// Validate — POST /validate. Проверка access token.
// Невалидный токен — 200 {active: false}, а не 401.
func (h *APIHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Token == "" {
		apierrors.ValidationError(w, "Поле token обязательно")
		return
	}

	result, err := h.auth.Validate(r.Context(), req.Token)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
