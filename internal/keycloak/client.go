// client.go — HTTP-клиент к Keycloak: token endpoint (password,
// refresh_token, client_credentials) и Admin REST API.
// Service account token кэшируется (обновление за 30s до expiration)
// и сбрасывается при 401; запрос к Admin API повторяется ровно один раз
// с новым токеном, повторный 401 — ErrUnauthorized.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client — HTTP-клиент к Keycloak.
type Client struct {
	baseURL      string // Базовый URL Keycloak (без trailing slash)
	realm        string // Имя realm
	clientID     string // Client ID (Admin API и валидация audience)
	clientSecret string // Client Secret

	httpClient *http.Client
	logger     *slog.Logger

	// Кэш service account token
	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time

	// Кэш внутреннего UUID клиента (для client-scoped ролей)
	uuidMu     sync.Mutex
	clientUUID string
}

// New создаёт клиент к Keycloak.
// baseURL — базовый URL Keycloak (например, https://keycloak.kryukov.lan).
// realm — имя realm (например, classtrack).
// clientID, clientSecret — credentials для Client Credentials flow.
// httpClient — HTTP-клиент (может содержать TLS конфигурацию).
func New(baseURL, realm, clientID, clientSecret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		logger:       logger.With(slog.String("component", "keycloak_client")),
	}
}

// --- Endpoints ---

// tokenEndpoint возвращает URL endpoint'а получения токена.
func (c *Client) tokenEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.baseURL, c.realm)
}

// adminBaseURL возвращает базовый URL Admin REST API для realm.
func (c *Client) adminBaseURL() string {
	return fmt.Sprintf("%s/admin/realms/%s", c.baseURL, c.realm)
}

// JWKSEndpoint возвращает URL JWKS endpoint'а realm.
func (c *Client) JWKSEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", c.baseURL, c.realm)
}

// --- Token endpoint (все grant'ы) ---

// requestGrant выполняет запрос к token endpoint'у с указанными параметрами.
func (c *Client) requestGrant(ctx context.Context, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса токена: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: запрос токена: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		// Keycloak отвечает 401 на неверный пароль и 400 на невалидный refresh token
		var tokenErr tokenErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&tokenErr)
		return nil, fmt.Errorf("%w: %s", ErrInvalidGrant, tokenErr.ErrorDescription)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{Status: resp.StatusCode, Detail: string(body)}
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("декодирование токена Keycloak: %w", err)
	}

	return &token, nil
}

// PasswordLogin выполняет Resource Owner Password Credentials flow.
// Неверные учётные данные — ErrInvalidGrant.
func (c *Client) PasswordLogin(ctx context.Context, username, password string) (*TokenResponse, error) {
	return c.requestGrant(ctx, url.Values{
		"grant_type":    {"password"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"username":      {username},
		"password":      {password},
	})
}

// RefreshTokens обменивает refresh token на новую пару токенов.
// Невалидный или истёкший refresh token — ErrInvalidGrant.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.requestGrant(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {refreshToken},
	})
}

// --- Service account token (Client Credentials flow) ---

// getToken возвращает актуальный service account token, обновляя при необходимости.
// Токен обновляется за 30 секунд до истечения.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Проверяем кэш: если токен валиден ещё 30 секунд — используем его
	if c.accessToken != "" && time.Now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	token, err := c.requestGrant(ctx, url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	})
	if err != nil {
		return "", err
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	c.logger.Debug("service account token обновлён",
		slog.Time("expires_at", c.tokenExpiry),
	)

	return c.accessToken, nil
}

// InvalidateToken безусловно сбрасывает кэшированный service account token.
// Следующий запрос получит новый токен.
func (c *Client) InvalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
}

// --- Admin REST API ---

// Do выполняет запрос к Admin REST API с авторизацией.
// При 401 сбрасывает кэшированный токен, получает новый и повторяет
// запрос ровно один раз; повторный 401 — ErrUnauthorized.
// Сетевые ошибки — ErrUnavailable.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		payload = data
	}

	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// Токен отвергнут: сбрасываем кэш и повторяем с новым токеном
	resp.Body.Close()
	c.InvalidateToken()

	c.logger.Warn("Admin API вернул 401, повторяем с новым токеном",
		slog.String("method", method),
		slog.String("path", path),
	)

	resp, err = c.send(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: 401 после повторного получения токена", ErrUnauthorized)
	}

	return resp, nil
}

// send выполняет один запрос к Admin REST API с текущим токеном.
func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение токена: %w", err)
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.adminBaseURL()+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}

	return resp, nil
}

// decodeResponse декодирует JSON ответ в target.
// Статус вне 2xx — *APIError.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{Status: resp.StatusCode, Detail: string(body)}
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("декодирование ответа Keycloak: %w", err)
		}
	}

	return nil
}

// checkResponse проверяет статус ответа (для запросов без тела ответа).
func checkResponse(resp *http.Response, expectedStatus int) error {
	defer resp.Body.Close()

	if resp.StatusCode != expectedStatus {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{Status: resp.StatusCode, Detail: string(body)}
	}

	return nil
}

// --- Clients API ---

// ClientUUID возвращает внутренний UUID клиента (для client-scoped ролей).
// UUID резолвится один раз через /clients?clientId= и кэшируется
// на время жизни процесса.
func (c *Client) ClientUUID(ctx context.Context) (string, error) {
	c.uuidMu.Lock()
	defer c.uuidMu.Unlock()

	if c.clientUUID != "" {
		return c.clientUUID, nil
	}

	resp, err := c.Do(ctx, http.MethodGet, "/clients?clientId="+url.QueryEscape(c.clientID), nil)
	if err != nil {
		return "", err
	}

	var clients []KeycloakClient
	if err := decodeResponse(resp, &clients); err != nil {
		return "", fmt.Errorf("ClientUUID: %w", err)
	}
	if len(clients) == 0 {
		return "", fmt.Errorf("ClientUUID: клиент %q не найден в realm %q", c.clientID, c.realm)
	}

	c.clientUUID = clients[0].ID
	c.logger.Debug("UUID клиента получен", slog.String("client_uuid", c.clientUUID))

	return c.clientUUID, nil
}

// --- Roles API (client-scoped) ---

// GetRoleByID возвращает роль по внутреннему ID.
func (c *Client) GetRoleByID(ctx context.Context, id string) (*KeycloakRole, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/roles-by-id/"+id, nil)
	if err != nil {
		return nil, err
	}

	var role KeycloakRole
	if err := decodeResponse(resp, &role); err != nil {
		return nil, fmt.Errorf("GetRoleByID: %w", err)
	}

	return &role, nil
}

// UpdateRoleByID полностью заменяет представление роли.
func (c *Client) UpdateRoleByID(ctx context.Context, id string, role *KeycloakRole) error {
	resp, err := c.Do(ctx, http.MethodPut, "/roles-by-id/"+id, role)
	if err != nil {
		return err
	}

	if err := checkResponse(resp, http.StatusNoContent); err != nil {
		return fmt.Errorf("UpdateRoleByID: %w", err)
	}

	return nil
}

// ListClientRoles возвращает все роли клиента.
// briefRepresentation=false — иначе Keycloak не возвращает атрибуты.
func (c *Client) ListClientRoles(ctx context.Context) ([]KeycloakRole, error) {
	uuid, err := c.ClientUUID(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, http.MethodGet, "/clients/"+uuid+"/roles?briefRepresentation=false", nil)
	if err != nil {
		return nil, err
	}

	var roles []KeycloakRole
	if err := decodeResponse(resp, &roles); err != nil {
		return nil, fmt.Errorf("ListClientRoles: %w", err)
	}

	return roles, nil
}

// GetClientRole возвращает роль клиента по имени.
func (c *Client) GetClientRole(ctx context.Context, name string) (*KeycloakRole, error) {
	uuid, err := c.ClientUUID(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, http.MethodGet, "/clients/"+uuid+"/roles/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, err
	}

	var role KeycloakRole
	if err := decodeResponse(resp, &role); err != nil {
		return nil, fmt.Errorf("GetClientRole: %w", err)
	}

	return &role, nil
}

// CreateClientRole создаёт роль клиента.
// Keycloak не возвращает ни тело, ни Location header — созданную роль
// нужно перечитывать по имени.
func (c *Client) CreateClientRole(ctx context.Context, role *KeycloakRole) error {
	uuid, err := c.ClientUUID(ctx)
	if err != nil {
		return err
	}

	resp, err := c.Do(ctx, http.MethodPost, "/clients/"+uuid+"/roles", role)
	if err != nil {
		return err
	}

	if err := checkResponse(resp, http.StatusCreated); err != nil {
		return fmt.Errorf("CreateClientRole: %w", err)
	}

	return nil
}

// UsersWithRole возвращает пользователей, которым назначена роль клиента.
func (c *Client) UsersWithRole(ctx context.Context, roleName string, first, max int) ([]KeycloakUser, error) {
	uuid, err := c.ClientUUID(ctx)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/clients/%s/roles/%s/users?first=%d&max=%d",
		uuid, url.PathEscape(roleName), first, max)

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var users []KeycloakUser
	if err := decodeResponse(resp, &users); err != nil {
		return nil, fmt.Errorf("UsersWithRole: %w", err)
	}

	return users, nil
}

// --- Role mappings API ---

// ListUserClientRoles возвращает роли клиента, назначенные пользователю.
func (c *Client) ListUserClientRoles(ctx context.Context, userID string) ([]KeycloakRole, error) {
	uuid, err := c.ClientUUID(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, http.MethodGet, "/users/"+userID+"/role-mappings/clients/"+uuid, nil)
	if err != nil {
		return nil, err
	}

	var roles []KeycloakRole
	if err := decodeResponse(resp, &roles); err != nil {
		return nil, fmt.Errorf("ListUserClientRoles: %w", err)
	}

	return roles, nil
}

// AddUserClientRoles назначает пользователю роли клиента.
// Keycloak требует полные представления ролей (минимум id + name).
func (c *Client) AddUserClientRoles(ctx context.Context, userID string, roles []KeycloakRole) error {
	uuid, err := c.ClientUUID(ctx)
	if err != nil {
		return err
	}

	resp, err := c.Do(ctx, http.MethodPost, "/users/"+userID+"/role-mappings/clients/"+uuid, roles)
	if err != nil {
		return err
	}

	if err := checkResponse(resp, http.StatusNoContent); err != nil {
		return fmt.Errorf("AddUserClientRoles: %w", err)
	}

	return nil
}

// RemoveUserClientRoles снимает с пользователя роли клиента.
func (c *Client) RemoveUserClientRoles(ctx context.Context, userID string, roles []KeycloakRole) error {
	uuid, err := c.ClientUUID(ctx)
	if err != nil {
		return err
	}

	resp, err := c.Do(ctx, http.MethodDelete, "/users/"+userID+"/role-mappings/clients/"+uuid, roles)
	if err != nil {
		return err
	}

	if err := checkResponse(resp, http.StatusNoContent); err != nil {
		return fmt.Errorf("RemoveUserClientRoles: %w", err)
	}

	return nil
}

// --- Users API ---

// ListUsers возвращает пользователей realm.
func (c *Client) ListUsers(ctx context.Context, first, max int) ([]KeycloakUser, error) {
	path := fmt.Sprintf("/users?briefRepresentation=false&first=%d&max=%d", first, max)

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var users []KeycloakUser
	if err := decodeResponse(resp, &users); err != nil {
		return nil, fmt.Errorf("ListUsers: %w", err)
	}

	return users, nil
}

// GetUser возвращает пользователя по Keycloak ID.
func (c *Client) GetUser(ctx context.Context, id string) (*KeycloakUser, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/users/"+id, nil)
	if err != nil {
		return nil, err
	}

	var user KeycloakUser
	if err := decodeResponse(resp, &user); err != nil {
		return nil, fmt.Errorf("GetUser: %w", err)
	}

	return &user, nil
}

// FindUsersByEmail возвращает пользователей с точным совпадением email.
func (c *Client) FindUsersByEmail(ctx context.Context, email string) ([]KeycloakUser, error) {
	path := "/users?exact=true&email=" + url.QueryEscape(email)

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var users []KeycloakUser
	if err := decodeResponse(resp, &users); err != nil {
		return nil, fmt.Errorf("FindUsersByEmail: %w", err)
	}

	return users, nil
}

// CreateUser создаёт пользователя и возвращает его Keycloak ID.
// ID извлекается из Location header (тела в ответе нет).
func (c *Client) CreateUser(ctx context.Context, user *KeycloakUser) (string, error) {
	resp, err := c.Do(ctx, http.MethodPost, "/users", user)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("CreateUser: %w", &APIError{Status: resp.StatusCode, Detail: string(body)})
	}

	// Keycloak возвращает Location header с ID созданного ресурса
	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("CreateUser: отсутствует Location header в ответе")
	}

	// Извлекаем ID из Location: .../users/{id}
	parts := strings.Split(location, "/")

	return parts[len(parts)-1], nil
}

// UpdateUser полностью заменяет представление пользователя.
func (c *Client) UpdateUser(ctx context.Context, id string, user *KeycloakUser) error {
	resp, err := c.Do(ctx, http.MethodPut, "/users/"+id, user)
	if err != nil {
		return err
	}

	if err := checkResponse(resp, http.StatusNoContent); err != nil {
		return fmt.Errorf("UpdateUser: %w", err)
	}

	return nil
}

// ResetPassword устанавливает пользователю новый постоянный пароль.
func (c *Client) ResetPassword(ctx context.Context, id, password string) error {
	cred := credentialRepresentation{
		Type:      "password",
		Value:     password,
		Temporary: false,
	}

	resp, err := c.Do(ctx, http.MethodPut, "/users/"+id+"/reset-password", cred)
	if err != nil {
		return err
	}

	if err := checkResponse(resp, http.StatusNoContent); err != nil {
		return fmt.Errorf("ResetPassword: %w", err)
	}

	return nil
}

// --- Readiness checker ---

// CheckReady проверяет доступность Keycloak через JWKS endpoint realm.
// Реализует handlers.ReadinessChecker.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.JWKSEndpoint(), nil)
	if err != nil {
		return "fail", fmt.Sprintf("создание запроса: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "fail", fmt.Sprintf("Keycloak недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "fail", fmt.Sprintf("JWKS endpoint вернул статус %d", resp.StatusCode)
	}

	return "ok", fmt.Sprintf("realm %s доступен", c.realm)
}
