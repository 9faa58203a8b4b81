package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "https://keycloak.test/realms/classtrack"
	testClientID = "oauth-module"
)

// setupVerifier создаёт verifier поверх mock JWKS endpoint.
// Возвращает verifier и счётчик скачиваний JWKS.
func setupVerifier(t *testing.T, key *rsa.PrivateKey) (*Verifier, *int) {
	t.Helper()

	fetches := 0
	server := setupJWKSServer(t, key, &fetches, nil)

	cache := NewKeySetCache(server.URL, 10*time.Minute, server.Client(), testLogger())
	verifier := NewVerifier(cache, testIssuer, "RS256", testClientID, 10*time.Second, testLogger())

	return verifier, &fetches
}

// baseClaims возвращает валидный набор claims.
func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":                "user-1",
		"preferred_username": "user@example.com",
		"email":              "user@example.com",
		"iss":                testIssuer,
		"azp":                testClientID,
		"exp":                jwt.NewNumericDate(time.Now().Add(time.Hour)),
		"iat":                jwt.NewNumericDate(time.Now()),
		"resource_access": map[string]any{
			testClientID: map[string]any{
				"roles": []string{"teacher"},
			},
		},
	}
}

// signToken подписывает claims ключом RS256 с указанным kid.
func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}
	return tokenStr
}

// TestVerifier_ValidToken проверяет успешную верификацию.
func TestVerifier_ValidToken(t *testing.T) {
	key := generateTestKey(t)
	verifier, _ := setupVerifier(t, key)

	tokenStr := signToken(t, key, testKeyID, baseClaims())

	claims, err := verifier.Verify(context.Background(), tokenStr)
	if err != nil {
		t.Fatalf("Verify вернул ошибку: %v", err)
	}

	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, ожидается user-1", claims.Subject)
	}
	if claims.Username != "user@example.com" {
		t.Errorf("Username = %q, ожидается user@example.com", claims.Username)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "teacher" {
		t.Errorf("Roles = %v, ожидается [teacher]", claims.Roles)
	}
}

// TestVerifier_WrongAlgorithm проверяет отказ по алгоритму
// независимо от kid.
func TestVerifier_WrongAlgorithm(t *testing.T) {
	key := generateTestKey(t)
	verifier, _ := setupVerifier(t, key)

	// HS256 токен с валидным kid в заголовке
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims())
	token.Header["kid"] = testKeyID
	tokenStr, err := token.SignedString([]byte("hmac-secret"))
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}

	_, err = verifier.Verify(context.Background(), tokenStr)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ожидалась ErrInvalidToken, получено: %v", err)
	}
}

// TestVerifier_UnknownKid проверяет отказ по неизвестному kid
// без внепланового скачивания JWKS.
func TestVerifier_UnknownKid(t *testing.T) {
	key := generateTestKey(t)
	verifier, fetches := setupVerifier(t, key)

	// Токен подписан другим ключом с другим kid
	otherKey := generateTestKey(t)
	tokenStr := signToken(t, otherKey, "rotated-key", baseClaims())

	_, err := verifier.Verify(context.Background(), tokenStr)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ожидалась ErrInvalidToken, получено: %v", err)
	}

	if *fetches != 1 {
		t.Errorf("неизвестный kid не должен вызывать скачивание JWKS, было %d скачиваний", *fetches)
	}
}

// TestVerifier_ExpiredToken проверяет отказ по истёкшему exp.
func TestVerifier_ExpiredToken(t *testing.T) {
	key := generateTestKey(t)
	verifier, _ := setupVerifier(t, key)

	claims := baseClaims()
	claims["exp"] = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	tokenStr := signToken(t, key, testKeyID, claims)

	_, err := verifier.Verify(context.Background(), tokenStr)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ожидалась ErrInvalidToken, получено: %v", err)
	}
}

// TestVerifier_MissingExp проверяет, что exp обязателен.
func TestVerifier_MissingExp(t *testing.T) {
	key := generateTestKey(t)
	verifier, _ := setupVerifier(t, key)

	claims := baseClaims()
	delete(claims, "exp")
	tokenStr := signToken(t, key, testKeyID, claims)

	_, err := verifier.Verify(context.Background(), tokenStr)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ожидалась ErrInvalidToken, получено: %v", err)
	}
}

// TestVerifier_WrongIssuer проверяет точное совпадение issuer.
func TestVerifier_WrongIssuer(t *testing.T) {
	key := generateTestKey(t)
	verifier, _ := setupVerifier(t, key)

	claims := baseClaims()
	claims["iss"] = "https://evil.example.com/realms/classtrack"
	tokenStr := signToken(t, key, testKeyID, claims)

	_, err := verifier.Verify(context.Background(), tokenStr)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ожидалась ErrInvalidToken, получено: %v", err)
	}
}

// TestVerifier_Audience проверяет политику audience:
// aud содержит client id ИЛИ azp равен client id.
func TestVerifier_Audience(t *testing.T) {
	key := generateTestKey(t)
	verifier, _ := setupVerifier(t, key)
	ctx := context.Background()

	// aud содержит наш client id, azp чужой — валидно
	claims := baseClaims()
	claims["aud"] = []string{"account", testClientID}
	claims["azp"] = "other-client"
	if _, err := verifier.Verify(ctx, signToken(t, key, testKeyID, claims)); err != nil {
		t.Errorf("токен с нашим client id в aud отвергнут: %v", err)
	}

	// aud чужой, azp наш — валидно (Keycloak не включает эмитента в aud)
	claims = baseClaims()
	claims["aud"] = []string{"account"}
	claims["azp"] = testClientID
	if _, err := verifier.Verify(ctx, signToken(t, key, testKeyID, claims)); err != nil {
		t.Errorf("токен с нашим azp отвергнут: %v", err)
	}

	// Ни aud, ни azp — отказ
	claims = baseClaims()
	claims["aud"] = []string{"account"}
	claims["azp"] = "other-client"
	if _, err := verifier.Verify(ctx, signToken(t, key, testKeyID, claims)); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ожидалась ErrInvalidToken, получено: %v", err)
	}
}

// TestVerifier_JWKSUnavailable проверяет ErrUnavailable при
// недоступном JWKS endpoint.
func TestVerifier_JWKSUnavailable(t *testing.T) {
	key := generateTestKey(t)
	fetches := 0
	server := setupJWKSServer(t, key, &fetches, nil)
	server.Close()

	cache := NewKeySetCache(server.URL, 10*time.Minute, nil, testLogger())
	verifier := NewVerifier(cache, testIssuer, "RS256", testClientID, 10*time.Second, testLogger())

	tokenStr := signToken(t, key, testKeyID, baseClaims())

	_, err := verifier.Verify(context.Background(), tokenStr)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("ожидалась ErrUnavailable, получено: %v", err)
	}
}
