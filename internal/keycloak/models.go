// Пакет keycloak — HTTP-клиент к Keycloak (token endpoint + Admin REST API).
// models.go — модели данных Keycloak.
package keycloak

import "time"

// TokenResponse — ответ token endpoint'а (любой grant).
type TokenResponse struct {
	AccessToken      string `json:"access_token"` //nolint:gosec // G117: структура токена OAuth2
	RefreshToken     string `json:"refresh_token,omitempty"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in,omitempty"`
}

// KeycloakRole — роль клиента в Keycloak Admin REST API.
// Атрибуты доступны только при briefRepresentation=false.
type KeycloakRole struct { //nolint:revive // stuttering допустим — внешний API Keycloak
	ID          string              `json:"id,omitempty"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Composite   bool                `json:"composite,omitempty"`
	ClientRole  bool                `json:"clientRole,omitempty"`
	ContainerID string              `json:"containerId,omitempty"`
	Attributes  map[string][]string `json:"attributes,omitempty"`
}

// KeycloakUser — пользователь в Keycloak Admin REST API.
type KeycloakUser struct { //nolint:revive // stuttering допустим — внешний API Keycloak
	ID            string              `json:"id,omitempty"`
	Username      string              `json:"username"`
	Email         string              `json:"email"`
	FirstName     string              `json:"firstName,omitempty"`
	LastName      string              `json:"lastName,omitempty"`
	Enabled       bool                `json:"enabled"`
	EmailVerified bool                `json:"emailVerified,omitempty"`
	Attributes    map[string][]string `json:"attributes,omitempty"`
	CreatedAt     int64               `json:"createdTimestamp,omitempty"`
}

// CreatedAtTime возвращает CreatedAt как time.Time.
// Keycloak хранит timestamp в миллисекундах.
func (u *KeycloakUser) CreatedAtTime() time.Time {
	return time.UnixMilli(u.CreatedAt)
}

// KeycloakClient — клиент (application) в Keycloak.
// Нужен для получения внутреннего UUID клиента по clientId.
type KeycloakClient struct { //nolint:revive // stuttering допустим — внешний API Keycloak
	ID       string `json:"id"`
	ClientID string `json:"clientId"`
}

// credentialRepresentation — установка пароля пользователя.
// Используется внутренне; поля соответствуют Keycloak Admin REST API.
type credentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// tokenErrorResponse — тело ошибки token endpoint'а.
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
