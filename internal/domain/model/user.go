// user.go — доменная модель пользователя.
// Пользователь живёт в Keycloak; email всегда совпадает с username.
package model

// User — пользователь приложения (Keycloak user).
type User struct {
	// Внутренний ID пользователя в Keycloak (UUID)
	ID string `json:"id"`
	// Email пользователя, одновременно username в Keycloak
	Email string `json:"email"`
	// Имя
	FirstName string `json:"first_name"`
	// Фамилия
	LastName string `json:"last_name"`
	// Активен ли пользователь. Удаление реализовано как enabled=false.
	Enabled bool `json:"enabled"`
}

// UserCreate — данные для создания пользователя.
type UserCreate struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

// UserPatch — частичное обновление пользователя.
// nil-поля не изменяются. Email не меняется через patch.
type UserPatch struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Enabled   *bool   `json:"enabled,omitempty"`
}
