// auth.go — JWT middleware аутентификации OAuth Module.
// Извлекает Bearer token и делегирует проверку в auth.Verifier
// (кэшированный набор JWKS-ключей, единственный допустимый алгоритм).
// Проверенные claims помещаются в контекст запроса.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/goclasstrack/oauth-module/internal/api/errors"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/auth"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaims — проверенные claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"
)

// JWTAuth — middleware JWT-аутентификации.
type JWTAuth struct {
	verifier *auth.Verifier
	logger   *slog.Logger
}

// NewJWTAuth создаёт JWT middleware поверх верификатора.
func NewJWTAuth(verifier *auth.Verifier, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		verifier: verifier,
		logger:   logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Невалидный токен — 401; недоступный JWKS — 502.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				apierrors.Unauthorized(w, "Ожидается заголовок Authorization: Bearer <token>")
				return
			}

			claims, err := j.verifier.Verify(r.Context(), tokenString)
			if err != nil {
				if errors.Is(err, auth.ErrUnavailable) {
					j.logger.Error("JWKS недоступен",
						slog.String("error", err.Error()),
					)
					apierrors.IDPUnavailable(w, "Identity Provider недоступен")
					return
				}

				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken извлекает Bearer token из заголовка Authorization.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}

// --- Context helpers ---

// ClaimsFromContext извлекает claims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(ContextKeyClaims).(*auth.Claims)
	return claims
}

// SubjectFromContext извлекает sub из контекста запроса.
// Возвращает пустую строку, если claims не найдены.
func SubjectFromContext(ctx context.Context) string {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return ""
	}
	return claims.Subject
}
