// auth.go — сервис аутентификации: login, refresh, проверка токена.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bigkaa/goclasstrack/oauth-module/internal/auth"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/keycloak"
)

// TokenPair — пара токенов, выдаваемая клиенту.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
}

// Introspection — результат проверки токена.
// Невалидный токен — active=false, а не ошибка.
type Introspection struct {
	Active   bool   `json:"active"`
	Subject  string `json:"sub,omitempty"`
	Username string `json:"username,omitempty"`
	Exp      int64  `json:"exp,omitempty"`
}

// AuthService — сервис аутентификации поверх token endpoint'а Keycloak
// и локального верификатора.
type AuthService struct {
	kc       *keycloak.Client
	verifier *auth.Verifier
	logger   *slog.Logger
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(kc *keycloak.Client, verifier *auth.Verifier, logger *slog.Logger) *AuthService {
	return &AuthService{
		kc:       kc,
		verifier: verifier,
		logger:   logger.With(slog.String("component", "auth_service")),
	}
}

// Login выполняет вход по email и паролю.
// Неверные учётные данные — keycloak.ErrInvalidGrant.
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	tokens, err := s.kc.PasswordLogin(ctx, email, password)
	if err != nil {
		if errors.Is(err, keycloak.ErrInvalidGrant) {
			s.logger.Warn("неудачная попытка входа", slog.String("email", email))
		}
		return nil, err
	}

	s.logger.Info("пользователь вошёл", slog.String("email", email))

	return tokenPairFrom(tokens), nil
}

// Refresh обменивает refresh token на новую пару токенов.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	tokens, err := s.kc.RefreshTokens(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	return tokenPairFrom(tokens), nil
}

// Validate проверяет access token.
// Невалидный токен — Introspection{Active: false} без ошибки;
// ошибка возвращается только при недоступности JWKS.
func (s *AuthService) Validate(ctx context.Context, token string) (*Introspection, error) {
	claims, err := s.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			return &Introspection{Active: false}, nil
		}
		return nil, err
	}

	result := &Introspection{
		Active:   true,
		Subject:  claims.Subject,
		Username: claims.Username,
	}
	if !claims.ExpiresAt.IsZero() {
		result.Exp = claims.ExpiresAt.Unix()
	}

	return result, nil
}

// tokenPairFrom преобразует ответ Keycloak в пару токенов.
func tokenPairFrom(tokens *keycloak.TokenResponse) *TokenPair {
	return &TokenPair{
		AccessToken:      tokens.AccessToken,
		RefreshToken:     tokens.RefreshToken,
		TokenType:        tokens.TokenType,
		ExpiresIn:        tokens.ExpiresIn,
		RefreshExpiresIn: tokens.RefreshExpiresIn,
	}
}
