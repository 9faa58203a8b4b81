// metrics.go — Prometheus HTTP метрики OAuth Module.
// Регистрирует метрики: om_http_requests_total, om_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "om_http_requests_total",
			Help: "Общее количество HTTP-запросов к OAuth Module",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "om_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к OAuth Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем UUID на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет UUID-сегменты пути на {id} для предотвращения
// взрывного роста кардинальности метрик.
// /api/v1/users/a1b2c3d4-... → /api/v1/users/{id}
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/login",
		"/api/v1/refresh",
		"/api/v1/validate",
		"/api/v1/roles",
		"/api/v1/users":
		return path
	}

	// Динамические пути с UUID
	prefixes := []struct {
		prefix string
		result string
	}{
		{"/api/v1/roles/", "/api/v1/roles/{id}"},
		{"/api/v1/users/", "/api/v1/users/{id}"},
	}

	for _, p := range prefixes {
		if len(path) > len(p.prefix) && path[:len(p.prefix)] == p.prefix {
			suffix := ""
			// Проверяем суффиксы после UUID (36 символов)
			if len(path) > len(p.prefix)+36 {
				suffix = path[len(p.prefix)+36:]
			}
			switch suffix {
			case "/roles":
				return p.result + "/roles"
			case "/password":
				return p.result + "/password"
			default:
				return p.result
			}
		}
	}

	return path
}
