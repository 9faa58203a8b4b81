package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/goclasstrack/oauth-module/internal/auth"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key-mw"

const (
	testIssuer   = "https://keycloak.test/realms/classtrack"
	testClientID = "oauth-module"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) []byte {
	nB64 := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	eB64 := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   nB64,
				"e":   eB64,
			},
		},
	}

	data, _ := json.Marshal(jwks)
	return data
}

// setupJWTAuth поднимает mock JWKS сервер и создаёт JWTAuth.
// failing управляет доступностью JWKS endpoint.
func setupJWTAuth(t *testing.T, key *rsa.PrivateKey, failing *bool) *JWTAuth {
	t.Helper()

	jwksJSON := buildJWKSetJSON(&key.PublicKey, testKeyID)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing != nil && *failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(jwksJSON)
	}))
	t.Cleanup(srv.Close)

	keys := auth.NewKeySetCache(srv.URL, 10*time.Minute, srv.Client(), testLogger())
	verifier := auth.NewVerifier(keys, testIssuer, "RS256", testClientID, 10*time.Second, testLogger())
	return NewJWTAuth(verifier, testLogger())
}

// signToken подписывает токен с валидными claims.
func signToken(t *testing.T, key *rsa.PrivateKey, sub string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iss": testIssuer,
		"sub": sub,
		"aud": testClientID,
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
		"iat": jwt.NewNumericDate(time.Now()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID

	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("не удалось подписать токен: %v", err)
	}
	return signed
}

// nextRecorder — handler, фиксирующий факт вызова и sub из контекста.
type nextRecorder struct {
	called  bool
	subject string
}

func (n *nextRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.called = true
	n.subject = SubjectFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

func TestMiddleware_ValidToken(t *testing.T) {
	key := generateTestKey(t)
	jwtAuth := setupJWTAuth(t, key, nil)

	next := &nextRecorder{}
	handler := jwtAuth.Middleware()(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, key, "user-1"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200", rec.Code)
	}
	if !next.called {
		t.Error("следующий handler не был вызван")
	}
	if next.subject != "user-1" {
		t.Errorf("sub из контекста = %q, ожидается user-1", next.subject)
	}
}

func TestMiddleware_MissingHeader(t *testing.T) {
	key := generateTestKey(t)
	jwtAuth := setupJWTAuth(t, key, nil)

	next := &nextRecorder{}
	handler := jwtAuth.Middleware()(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус = %d, ожидается 401", rec.Code)
	}
	if next.called {
		t.Error("следующий handler не должен вызываться без токена")
	}
}

func TestMiddleware_MalformedHeader(t *testing.T) {
	key := generateTestKey(t)
	jwtAuth := setupJWTAuth(t, key, nil)

	handler := jwtAuth.Middleware()(&nextRecorder{})

	for _, header := range []string{"Basic dXNlcjpwYXNz", "Bearer", "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("заголовок %q: статус = %d, ожидается 401", header, rec.Code)
		}
	}
}

func TestMiddleware_InvalidToken(t *testing.T) {
	key := generateTestKey(t)
	jwtAuth := setupJWTAuth(t, key, nil)

	// Токен подписан другим ключом
	otherKey := generateTestKey(t)

	next := &nextRecorder{}
	handler := jwtAuth.Middleware()(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, otherKey, "user-1"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("статус = %d, ожидается 401", rec.Code)
	}
	if next.called {
		t.Error("следующий handler не должен вызываться с невалидным токеном")
	}
}

func TestMiddleware_JWKSUnavailable(t *testing.T) {
	key := generateTestKey(t)
	failing := true
	jwtAuth := setupJWTAuth(t, key, &failing)

	next := &nextRecorder{}
	handler := jwtAuth.Middleware()(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, key, "user-1"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("статус = %d, ожидается 502", rec.Code)
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("не удалось декодировать тело ответа: %v", err)
	}
	if body.Error.Code != "IDP_UNAVAILABLE" {
		t.Errorf("код ошибки = %q, ожидается IDP_UNAVAILABLE", body.Error.Code)
	}
	if next.called {
		t.Error("следующий handler не должен вызываться при недоступном JWKS")
	}
}
