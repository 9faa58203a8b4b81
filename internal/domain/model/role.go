// role.go — доменная модель роли.
// Роль живёт в Keycloak как client role; флаг enabled кодируется
// в атрибутах роли (Keycloak не имеет нативного поля enabled для ролей).
package model

// Role — роль уровня приложения (client role в Keycloak).
type Role struct {
	// Внутренний ID роли в Keycloak (UUID)
	ID string `json:"id"`
	// Уникальное имя роли
	Name string `json:"name"`
	// Описание роли (опционально)
	Description *string `json:"description,omitempty"`
	// Активна ли роль. Отключённая роль не назначается пользователям.
	Enabled bool `json:"enabled"`
}

// RoleCreate — данные для создания роли.
type RoleCreate struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// RolePatch — частичное обновление роли.
// nil-поля не изменяются.
type RolePatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}
