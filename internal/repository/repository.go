// Пакет repository — слой доступа к данным Keycloak.
// Репозитории транслируют доменные операции в вызовы Admin REST API
// и статусы Keycloak (404, 409) — в доменные ошибки.
package repository

import (
	"errors"
	"net/http"

	"github.com/bigkaa/goclasstrack/oauth-module/internal/keycloak"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт уникальности (ресурс уже существует).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
)

// translateAPIError транслирует *keycloak.APIError в доменные ошибки.
// 404 — ErrNotFound, 409 — ErrConflict, остальное — как есть.
func translateAPIError(err error) error {
	var apiErr *keycloak.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch apiErr.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		return err
	}
}
