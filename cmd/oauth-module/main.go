// Точка входа OAuth Module — модуль аутентификации системы Classtrack.
// Загружает конфигурацию, создаёт Keycloak клиент и JWKS-кэш,
// инициализирует сервисный слой и API handlers, запускает
// topologymetrics и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/bigkaa/goclasstrack/oauth-module/internal/api/handlers"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/api/middleware"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/auth"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/config"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/keycloak"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/repository"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/server"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("OAuth Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Предупреждение о дефолтном значении topologymetrics
	if os.Getenv("OM_DEPHEALTH_GROUP") == "" {
		logger.Warn("OM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. HTTP-клиент для Keycloak (с кастомным CA, если задан)
	httpClient := &http.Client{Timeout: cfg.KeycloakTimeout}
	if cfg.KeycloakCACertPath != "" {
		httpClient, err = auth.HTTPClientWithCA(cfg.KeycloakCACertPath, cfg.KeycloakTimeout)
		if err != nil {
			logger.Error("Ошибка загрузки CA-сертификата",
				slog.String("path", cfg.KeycloakCACertPath),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		logger.Info("CA-сертификат загружен", slog.String("path", cfg.KeycloakCACertPath))
	}

	// 4. Keycloak Admin API клиент
	kcClient := keycloak.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		httpClient,
		logger,
	)
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
	)

	// 5. JWKS-кэш и верификатор токенов
	keySet := auth.NewKeySetCache(cfg.JWTJWKSURL, cfg.JWKSCacheTTL, httpClient, logger)
	verifier := auth.NewVerifier(
		keySet,
		cfg.JWTIssuer,
		cfg.JWTAlgorithm,
		cfg.KeycloakClientID,
		cfg.JWTLeeway,
		logger,
	)
	logger.Info("Верификатор JWT инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
		slog.String("algorithm", cfg.JWTAlgorithm),
	)

	// 6. Repositories
	roleRepo := repository.NewRoleRepository(kcClient, logger)
	userRepo := repository.NewUserRepository(kcClient, logger)

	// 7. Services
	authSvc := service.NewAuthService(kcClient, verifier, logger)
	roleSvc := service.NewRoleService(roleRepo, logger)
	userSvc := service.NewUserService(userRepo, roleRepo, logger)

	// 8. topologymetrics — мониторинг зависимости Keycloak
	ctx := context.Background()
	healthPath := strings.TrimPrefix(cfg.JWTJWKSURL, cfg.KeycloakURL)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"oauth-module",
		cfg.DephealthGroup,
		cfg.KeycloakURL,
		healthPath,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
			defer dephealthSvc.Stop()
		}
	}

	// 9. API handler
	healthHandler := handlers.NewHealthHandler(kcClient)
	apiHandler := handlers.NewAPIHandler(healthHandler, authSvc, roleSvc, userSvc, logger)

	// 10. Middleware: метрики → логирование → JWT (с исключениями)
	jwtAuth := middleware.NewJWTAuth(verifier, logger)
	jwtMiddleware := server.JWTAuthWithExclusions(
		jwtAuth.Middleware(),
		"/health/",
		"/metrics",
		"/api/v1/login",
		"/api/v1/refresh",
		"/api/v1/validate",
	)

	// 11. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
		jwtMiddleware,
	)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка HTTP-сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("OAuth Module остановлен")
}
