package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockKeycloak создаёт mock HTTP-сервер Keycloak.
// tokenHandler обрабатывает запросы на получение токена.
// adminHandler обрабатывает запросы к Admin REST API.
func setupMockKeycloak(t *testing.T, tokenHandler, adminHandler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()

	mux := http.NewServeMux()

	// Token endpoint
	mux.HandleFunc("/realms/classtrack/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		if tokenHandler != nil {
			tokenHandler(w, r)
			return
		}
		// Дефолтный ответ: валидный токен на 300 секунд
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TokenResponse{
			AccessToken: "test-access-token",
			TokenType:   "Bearer",
			ExpiresIn:   300,
		})
	})

	// Admin REST API
	mux.HandleFunc("/admin/realms/classtrack/", func(w http.ResponseWriter, r *http.Request) {
		if adminHandler != nil {
			adminHandler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := New(
		server.URL,
		"classtrack",
		"oauth-module",
		"test-secret",
		server.Client(),
		testLogger(),
	)

	return server, client
}

// TestClient_TokenCaching проверяет кэширование service account token.
func TestClient_TokenCaching(t *testing.T) {
	tokenRequests := 0

	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			tokenRequests++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: "cached-token",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		},
		nil,
	)

	ctx := context.Background()

	// Первый запрос — получение токена
	token1, err := client.getToken(ctx)
	if err != nil {
		t.Fatalf("Ошибка получения токена: %v", err)
	}
	if token1 != "cached-token" {
		t.Errorf("ожидался cached-token, получен %s", token1)
	}

	// Второй запрос — из кэша (не должен вызывать HTTP)
	token2, err := client.getToken(ctx)
	if err != nil {
		t.Fatalf("Ошибка получения токена: %v", err)
	}
	if token2 != "cached-token" {
		t.Errorf("ожидался cached-token, получен %s", token2)
	}

	if tokenRequests != 1 {
		t.Errorf("ожидался 1 запрос токена, было %d", tokenRequests)
	}
}

// TestClient_InvalidateToken проверяет безусловный сброс кэша токена.
func TestClient_InvalidateToken(t *testing.T) {
	tokenRequests := 0

	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			tokenRequests++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: "token",
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		},
		nil,
	)

	ctx := context.Background()

	if _, err := client.getToken(ctx); err != nil {
		t.Fatalf("Ошибка получения токена: %v", err)
	}

	client.InvalidateToken()

	if _, err := client.getToken(ctx); err != nil {
		t.Fatalf("Ошибка получения токена: %v", err)
	}

	if tokenRequests != 2 {
		t.Errorf("ожидалось 2 запроса токена после сброса, было %d", tokenRequests)
	}
}

// TestClient_Do_RetryOn401 проверяет повтор запроса ровно один раз
// с новым токеном после 401.
func TestClient_Do_RetryOn401(t *testing.T) {
	tokenRequests := 0
	adminRequests := 0

	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			tokenRequests++
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken: fmt.Sprintf("token-%d", tokenRequests),
				TokenType:   "Bearer",
				ExpiresIn:   300,
			})
		},
		func(w http.ResponseWriter, r *http.Request) {
			adminRequests++
			// Первый запрос отвергается, повтор с новым токеном проходит
			if r.Header.Get("Authorization") == "Bearer token-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(KeycloakUser{ID: "u1", Username: "user@example.com"})
		},
	)

	user, err := client.GetUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUser вернул ошибку: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("ожидался пользователь u1, получен %s", user.ID)
	}

	if adminRequests != 2 {
		t.Errorf("ожидалось 2 запроса к Admin API, было %d", adminRequests)
	}
	if tokenRequests != 2 {
		t.Errorf("ожидалось 2 запроса токена, было %d", tokenRequests)
	}
}

// TestClient_Do_SecondUnauthorized проверяет, что повторный 401
// возвращает ErrUnauthorized без третьей попытки.
func TestClient_Do_SecondUnauthorized(t *testing.T) {
	adminRequests := 0

	_, client := setupMockKeycloak(t,
		nil,
		func(w http.ResponseWriter, r *http.Request) {
			adminRequests++
			w.WriteHeader(http.StatusUnauthorized)
		},
	)

	_, err := client.GetUser(context.Background(), "u1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ожидалась ErrUnauthorized, получено: %v", err)
	}

	if adminRequests != 2 {
		t.Errorf("ожидалось ровно 2 запроса к Admin API, было %d", adminRequests)
	}
}

// TestClient_Do_APIError проверяет типизированную ошибку Admin API.
func TestClient_Do_APIError(t *testing.T) {
	_, client := setupMockKeycloak(t,
		nil,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"Role not found"}`))
		},
	)

	_, err := client.GetRoleByID(context.Background(), "missing")
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("ожидалась *APIError, получено: %v", err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Errorf("ожидался статус 404, получен %d", apiErr.Status)
	}
}

// TestClient_Unavailable проверяет ErrUnavailable при сетевой ошибке.
func TestClient_Unavailable(t *testing.T) {
	server, client := setupMockKeycloak(t, nil, nil)
	server.Close()

	_, err := client.GetUser(context.Background(), "u1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("ожидалась ErrUnavailable, получено: %v", err)
	}
}

// TestClient_PasswordLogin_InvalidGrant проверяет ErrInvalidGrant
// при неверных учётных данных.
func TestClient_PasswordLogin_InvalidGrant(t *testing.T) {
	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(tokenErrorResponse{
				Error:            "invalid_grant",
				ErrorDescription: "Invalid user credentials",
			})
		},
		nil,
	)

	_, err := client.PasswordLogin(context.Background(), "user@example.com", "wrong")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("ожидалась ErrInvalidGrant, получено: %v", err)
	}
}

// TestClient_PasswordLogin проверяет успешный password grant.
func TestClient_PasswordLogin(t *testing.T) {
	_, client := setupMockKeycloak(t,
		func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				t.Errorf("разбор формы: %v", err)
			}
			if got := r.Form.Get("grant_type"); got != "password" {
				t.Errorf("ожидался grant_type=password, получен %s", got)
			}
			if got := r.Form.Get("username"); got != "user@example.com" {
				t.Errorf("ожидался username=user@example.com, получен %s", got)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TokenResponse{
				AccessToken:  "access",
				RefreshToken: "refresh",
				TokenType:    "Bearer",
				ExpiresIn:    300,
			})
		},
		nil,
	)

	tokens, err := client.PasswordLogin(context.Background(), "user@example.com", "secret")
	if err != nil {
		t.Fatalf("PasswordLogin вернул ошибку: %v", err)
	}
	if tokens.AccessToken != "access" || tokens.RefreshToken != "refresh" {
		t.Errorf("неожиданная пара токенов: %+v", tokens)
	}
}

// TestClient_CreateUser проверяет извлечение ID из Location header.
func TestClient_CreateUser(t *testing.T) {
	_, client := setupMockKeycloak(t,
		nil,
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/users") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Location", "http://keycloak/admin/realms/classtrack/users/new-user-id")
			w.WriteHeader(http.StatusCreated)
		},
	)

	id, err := client.CreateUser(context.Background(), &KeycloakUser{Username: "user@example.com"})
	if err != nil {
		t.Fatalf("CreateUser вернул ошибку: %v", err)
	}
	if id != "new-user-id" {
		t.Errorf("ожидался new-user-id, получен %s", id)
	}
}

// TestClient_ClientUUID_Caching проверяет кэширование UUID клиента.
func TestClient_ClientUUID_Caching(t *testing.T) {
	lookups := 0

	_, client := setupMockKeycloak(t,
		nil,
		func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "/clients") {
				lookups++
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode([]KeycloakClient{{ID: "client-uuid", ClientID: "oauth-module"}})
				return
			}
			w.WriteHeader(http.StatusNotFound)
		},
	)

	ctx := context.Background()

	uuid1, err := client.ClientUUID(ctx)
	if err != nil {
		t.Fatalf("ClientUUID вернул ошибку: %v", err)
	}
	uuid2, err := client.ClientUUID(ctx)
	if err != nil {
		t.Fatalf("ClientUUID вернул ошибку: %v", err)
	}

	if uuid1 != "client-uuid" || uuid2 != "client-uuid" {
		t.Errorf("ожидался client-uuid, получены %s и %s", uuid1, uuid2)
	}
	if lookups != 1 {
		t.Errorf("ожидался 1 запрос /clients, было %d", lookups)
	}
}
