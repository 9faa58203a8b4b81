// Пакет config — загрузка и валидация конфигурации OAuth Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации OAuth Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8000-8009)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Keycloak ---

	// URL Keycloak (например, https://keycloak.kryukov.lan)
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Client ID — используется для Admin API и валидации audience
	KeycloakClientID string
	// Client Secret для Client Credentials flow
	KeycloakClientSecret string
	// Путь к CA-сертификату для TLS-соединений с Keycloak (опционально)
	KeycloakCACertPath string
	// Таймаут HTTP-запросов к Keycloak
	KeycloakTimeout time.Duration

	// --- JWT ---

	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Единственный допустимый алгоритм подписи JWT
	JWTAlgorithm string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// TTL кэша JWKS-ключей
	JWKSCacheTTL time.Duration

	// --- Мониторинг зависимостей ---

	// Имя группы topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// OM_PORT — порт HTTP-сервера (по умолчанию 8004)
	cfg.Port, err = getEnvInt("OM_PORT", 8004)
	if err != nil {
		return nil, fmt.Errorf("OM_PORT: %w", err)
	}
	if cfg.Port < 8000 || cfg.Port > 8009 {
		return nil, fmt.Errorf("OM_PORT: значение %d вне допустимого диапазона 8000-8009", cfg.Port)
	}

	// OM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("OM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("OM_LOG_LEVEL: %w", err)
	}

	// OM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("OM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("OM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Keycloak ---

	// OM_KEYCLOAK_URL — обязательный
	cfg.KeycloakURL, err = getEnvRequired("OM_KEYCLOAK_URL")
	if err != nil {
		return nil, err
	}
	// Убираем trailing slash
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")

	// OM_KEYCLOAK_REALM — realm (по умолчанию classtrack)
	cfg.KeycloakRealm = getEnvDefault("OM_KEYCLOAK_REALM", "classtrack")

	// OM_KEYCLOAK_CLIENT_ID — обязательный
	cfg.KeycloakClientID, err = getEnvRequired("OM_KEYCLOAK_CLIENT_ID")
	if err != nil {
		return nil, err
	}

	// OM_KEYCLOAK_CLIENT_SECRET — обязательный
	cfg.KeycloakClientSecret, err = getEnvRequired("OM_KEYCLOAK_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}

	// OM_KEYCLOAK_CA_CERT_PATH — путь к CA-сертификату (опционально)
	cfg.KeycloakCACertPath = getEnvDefault("OM_KEYCLOAK_CA_CERT_PATH", "")

	// OM_KEYCLOAK_TIMEOUT — таймаут запросов к Keycloak (по умолчанию 30s)
	cfg.KeycloakTimeout, err = getEnvDuration("OM_KEYCLOAK_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OM_KEYCLOAK_TIMEOUT: %w", err)
	}

	// --- JWT ---

	// OM_JWT_ISSUER — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTIssuer = getEnvDefault("OM_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm))

	// OM_JWT_JWKS_URL — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTJWKSURL = getEnvDefault("OM_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	// OM_JWT_ALGORITHM — единственный допустимый алгоритм (по умолчанию RS256)
	cfg.JWTAlgorithm = getEnvDefault("OM_JWT_ALGORITHM", "RS256")

	// OM_JWT_LEEWAY — допустимое отклонение времени (по умолчанию 10s)
	cfg.JWTLeeway, err = getEnvDuration("OM_JWT_LEEWAY", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OM_JWT_LEEWAY: %w", err)
	}

	// OM_JWKS_CACHE_TTL — TTL кэша JWKS (по умолчанию 10m)
	cfg.JWKSCacheTTL, err = getEnvDuration("OM_JWKS_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("OM_JWKS_CACHE_TTL: %w", err)
	}
	if cfg.JWKSCacheTTL <= 0 {
		return nil, fmt.Errorf("OM_JWKS_CACHE_TTL: значение должно быть положительным")
	}

	// --- Мониторинг зависимостей ---

	// OM_DEPHEALTH_GROUP — имя группы topologymetrics (по умолчанию classtrack)
	cfg.DephealthGroup = getEnvDefault("OM_DEPHEALTH_GROUP", "classtrack")

	// OM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("OM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// OM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("OM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
