// Пакет auth — валидация JWT: TTL-кэш JWKS-ключей Keycloak и verifier.
// keyset.go — кэш набора ключей.
//
// Набор ключей скачивается целиком и живёт ровно TTL; после истечения
// следующий запрос скачивает свежий набор и полностью заменяет старый.
// При недоступности Keycloak устаревший набор НЕ используется —
// возвращается ErrUnavailable. Неизвестный kid не провоцирует
// внеплановое обращение к Keycloak.
package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
)

// ErrUnavailable — JWKS endpoint Keycloak недоступен и валидного
// кэшированного набора нет.
var ErrUnavailable = errors.New("JWKS недоступен")

// KeySet — один скачанный набор ключей.
type KeySet struct {
	// Keyfunc резолвит kid только внутри этого набора (без сети).
	Keyfunc keyfunc.Keyfunc
	// Kids — идентификаторы ключей набора.
	Kids []string
	// FetchedAt — момент скачивания набора.
	FetchedAt time.Time
}

// KeySetCache — TTL-кэш JWKS-ключей.
type KeySetCache struct {
	jwksURL    string
	ttl        time.Duration
	httpClient *http.Client
	logger     *slog.Logger

	// Кэш под mutex: конкурентные запросы при истёкшем TTL
	// приводят к одному скачиванию (double-checked locking).
	mu      sync.Mutex
	current *KeySet

	// now подменяется в тестах.
	now func() time.Time
}

// NewKeySetCache создаёт кэш JWKS-ключей.
// jwksURL — JWKS endpoint realm.
// ttl — время жизни скачанного набора (должно быть положительным).
// httpClient — HTTP-клиент (может содержать TLS конфигурацию).
func NewKeySetCache(jwksURL string, ttl time.Duration, httpClient *http.Client, logger *slog.Logger) *KeySetCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &KeySetCache{
		jwksURL:    jwksURL,
		ttl:        ttl,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "keyset_cache")),
		now:        time.Now,
	}
}

// Get возвращает актуальный набор ключей, скачивая при необходимости.
// Набор считается свежим, пока now - FetchedAt < ttl.
// Ошибка скачивания — ErrUnavailable; устаревший набор не возвращается.
func (c *KeySetCache) Get(ctx context.Context) (*KeySet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.now().Sub(c.current.FetchedAt) < c.ttl {
		return c.current, nil
	}

	set, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.current = set
	c.logger.Debug("набор JWKS-ключей обновлён",
		slog.Any("kids", set.Kids),
		slog.Time("fetched_at", set.FetchedAt),
		slog.Duration("ttl", c.ttl),
	)

	return c.current, nil
}

// fetch скачивает JWKS и строит keyfunc поверх полученного документа.
func (c *KeySetCache) fetch(ctx context.Context) (*KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса JWKS: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: JWKS endpoint вернул статус %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: чтение JWKS: %v", ErrUnavailable, err)
	}

	var doc jwkset.JWKSMarshal
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: невалидный JWKS документ: %v", ErrUnavailable, err)
	}

	kids := make([]string, 0, len(doc.Keys))
	for _, k := range doc.Keys {
		kids = append(kids, k.KID)
	}

	kf, err := keyfunc.NewJWKSetJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%w: невалидный JWKS документ: %v", ErrUnavailable, err)
	}

	return &KeySet{
		Keyfunc:   kf,
		Kids:      kids,
		FetchedAt: c.now(),
	}, nil
}

// HTTPClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом
// в пуле доверия. timeout — таймаут HTTP-запросов.
func HTTPClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: caCertPool,
			},
		},
	}, nil
}
