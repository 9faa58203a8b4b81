// errors.go — ошибки клиента Keycloak.
package keycloak

import (
	"errors"
	"fmt"
)

// Ошибки клиента Keycloak.
// Проверяются через errors.Is / errors.As на границах слоёв.
var (
	// ErrUnavailable — Keycloak недоступен (сетевая ошибка, таймаут).
	ErrUnavailable = errors.New("keycloak недоступен")

	// ErrUnauthorized — Admin API отверг service credentials
	// даже после повторного получения токена.
	ErrUnauthorized = errors.New("keycloak отверг service credentials")

	// ErrInvalidGrant — token endpoint отверг учётные данные
	// (неверный пароль или невалидный refresh token).
	ErrInvalidGrant = errors.New("неверные учётные данные")
)

// APIError — ошибка Keycloak Admin REST API (статус вне 2xx).
// Репозитории транслируют Status в доменные ошибки (404, 409);
// остальное поднимается до границы HTTP как ошибка IDP.
type APIError struct {
	// HTTP-статус ответа Keycloak
	Status int
	// Тело ответа Keycloak (как есть)
	Detail string
}

// Error реализует интерфейс error.
func (e *APIError) Error() string {
	return fmt.Sprintf("Keycloak API вернул статус %d: %s", e.Status, e.Detail)
}
