// verifier.go — верификация JWT, выданных Keycloak.
// Подпись проверяется только ключами из кэшированного набора
// (kid неизвестен — токен отвергается без обращения к Keycloak),
// алгоритм — строго один настроенный, issuer — точное совпадение,
// audience — aud содержит client id либо azp равен client id.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken — токен не прошёл верификацию (подпись, алгоритм,
// срок действия, issuer, audience). Причина — в обёрнутом сообщении.
var ErrInvalidToken = errors.New("невалидный токен")

// Claims — проверенные claims токена.
type Claims struct {
	// Subject — sub (Keycloak user ID)
	Subject string
	// Email — email из токена
	Email string
	// Username — preferred_username из токена
	Username string
	// Roles — client roles из resource_access
	Roles []string
	// ExpiresAt — момент истечения токена
	ExpiresAt time.Time
}

// rawClaims — raw claims Keycloak JWT для парсинга.
type rawClaims struct {
	jwt.RegisteredClaims
	// PreferredUsername — имя пользователя.
	PreferredUsername string `json:"preferred_username"`
	// Email — электронная почта.
	Email string `json:"email"`
	// Azp — authorized party (clientId клиента, получившего токен).
	Azp string `json:"azp,omitempty"`
	// ResourceAccess — client roles по клиентам.
	ResourceAccess map[string]struct {
		Roles []string `json:"roles"`
	} `json:"resource_access,omitempty"`
}

// Verifier — верификатор JWT поверх KeySetCache.
type Verifier struct {
	keys      *KeySetCache
	issuer    string
	algorithm string
	clientID  string
	leeway    time.Duration
	logger    *slog.Logger
}

// NewVerifier создаёт верификатор.
// issuer — ожидаемый issuer (https://keycloak/realms/<realm>).
// algorithm — единственный допустимый алгоритм подписи (обычно RS256).
// clientID — наш clientId для проверки audience.
func NewVerifier(keys *KeySetCache, issuer, algorithm, clientID string, leeway time.Duration, logger *slog.Logger) *Verifier {
	return &Verifier{
		keys:      keys,
		issuer:    issuer,
		algorithm: algorithm,
		clientID:  clientID,
		leeway:    leeway,
		logger:    logger.With(slog.String("component", "token_verifier")),
	}
}

// Verify проверяет токен и возвращает его claims.
// Любая причина отказа — ErrInvalidToken; недоступность JWKS — ErrUnavailable.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	set, err := v.keys.Get(ctx)
	if err != nil {
		return nil, err
	}

	raw := &rawClaims{}
	token, err := jwt.ParseWithClaims(tokenString, raw, set.Keyfunc.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{v.algorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil {
		v.logger.Debug("JWT валидация не пройдена",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("%w: токен не прошёл валидацию", ErrInvalidToken)
	}

	subject, err := raw.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: отсутствует sub", ErrInvalidToken)
	}

	// Audience: aud содержит наш client id, либо azp равен ему.
	// Keycloak не включает клиента-эмитента в aud, но всегда ставит azp.
	if !v.audienceMatches(raw) {
		return nil, fmt.Errorf("%w: токен выдан не для клиента %s", ErrInvalidToken, v.clientID)
	}

	claims := &Claims{
		Subject:  subject,
		Email:    raw.Email,
		Username: raw.PreferredUsername,
	}
	if access, ok := raw.ResourceAccess[v.clientID]; ok {
		claims.Roles = access.Roles
	}
	if raw.ExpiresAt != nil {
		claims.ExpiresAt = raw.ExpiresAt.Time
	}

	return claims, nil
}

// audienceMatches проверяет политику audience.
func (v *Verifier) audienceMatches(raw *rawClaims) bool {
	for _, aud := range raw.Audience {
		if aud == v.clientID {
			return true
		}
	}
	return raw.Azp == v.clientID
}
