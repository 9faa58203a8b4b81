// handler.go — основной обработчик API OAuth Module.
// Объединяет доменные обработчики и транслирует ошибки сервисного
// слоя в HTTP-ответы стандартного формата.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goclasstrack/oauth-module/internal/api/errors"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/auth"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/keycloak"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/service"
)

// APIHandler — основной обработчик API OAuth Module.
type APIHandler struct {
	health *HealthHandler
	auth   *service.AuthService
	roles  *service.RoleService
	users  *service.UserService
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	authSvc *service.AuthService,
	roles *service.RoleService,
	users *service.UserService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health: health,
		auth:   authSvc,
		roles:  roles,
		users:  users,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// handleServiceError транслирует ошибку сервисного слоя в HTTP-ответ.
func (h *APIHandler) handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *keycloak.APIError

	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrRoleDisabled):
		apierrors.RoleDisabled(w, err.Error())
	case errors.Is(err, service.ErrPartialRevocation):
		h.logger.Error("каскадное снятие роли прервано", slog.String("error", err.Error()))
		apierrors.PartialRevocation(w, err.Error())
	case errors.Is(err, keycloak.ErrUnavailable), errors.Is(err, auth.ErrUnavailable):
		h.logger.Error("Keycloak недоступен", slog.String("error", err.Error()))
		apierrors.IDPUnavailable(w, "Identity Provider недоступен")
	case errors.Is(err, keycloak.ErrUnauthorized):
		h.logger.Error("Keycloak отверг service credentials", slog.String("error", err.Error()))
		apierrors.IDPError(w, "Identity Provider отверг учётные данные модуля")
	case errors.As(err, &apiErr):
		h.logger.Error("неожиданный ответ Keycloak",
			slog.Int("status", apiErr.Status),
			slog.String("detail", apiErr.Detail),
		)
		apierrors.IDPError(w, "Identity Provider вернул неожиданную ошибку")
	default:
		h.logger.Error("внутренняя ошибка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// decodeBody декодирует JSON-тело запроса в target.
// false — тело невалидно, ответ уже записан.
func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		apierrors.ValidationError(w, "Невалидное JSON-тело запроса")
		return false
	}
	return true
}
