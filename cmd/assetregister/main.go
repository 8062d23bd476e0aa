// Точка входа реестра информационных активов.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует lookup-клиент с кэшем identity, создаёт сервисный слой
// и API handlers, запускает topologymetrics и HTTP-сервер с JWT middleware
// и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/assetregister/internal/api/handlers"
	"github.com/bigkaa/assetregister/internal/api/middleware"
	"github.com/bigkaa/assetregister/internal/config"
	"github.com/bigkaa/assetregister/internal/database"
	"github.com/bigkaa/assetregister/internal/lookup"
	"github.com/bigkaa/assetregister/internal/repository"
	"github.com/bigkaa/assetregister/internal/server"
	"github.com/bigkaa/assetregister/internal/service"
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
	logger.Info("Реестр информационных активов запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Предупреждения о дефолтных значениях topologymetrics
	if os.Getenv("IAR_DEPHEALTH_GROUP") == "" {
		logger.Warn("IAR_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL будет идти через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Lookup-клиент и кэш identity
	lookupClient, err := lookup.NewClient(
		cfg.LookupURL,
		cfg.LookupTokenURL,
		cfg.LookupClientID,
		cfg.LookupClientSecret,
		cfg.LookupScopes,
		cfg.LookupCACert,
		cfg.LookupTimeout,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания lookup-клиента", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Lookup-клиент создан", slog.String("url", cfg.LookupURL))

	// 6. Repositories
	assetRepo := repository.NewAssetRepository(pool)
	userLookupRepo := repository.NewUserLookupRepository(pool)

	resolver := lookup.NewResolver(
		lookupClient, userLookupRepo,
		cfg.LookupCacheSize, cfg.LookupCacheTTL,
		logger,
	)
	logger.Info("Кэш identity инициализирован",
		slog.Int("size", cfg.LookupCacheSize),
		slog.String("ttl", cfg.LookupCacheTTL.String()),
	)

	// 7. Services
	audit := service.NewAuditLogger(logger)
	assetSvc := service.NewAssetService(
		assetRepo, resolver,
		cfg.MembersGroup, cfg.AdminGroups,
		audit, logger,
	)

	// 8. Readiness checkers (PostgreSQL + провайдер OAuth2)
	pgChecker := database.NewReadinessChecker(pool)
	jwksChecker, err := middleware.NewJWKSReadinessChecker(cfg.JWKSURL, cfg.JWKSCACert, cfg.JWKSClientTimeout)
	if err != nil {
		logger.Error("Ошибка создания JWKS readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, jwksChecker)

	// 9. API handlers
	assetHandler := handlers.NewAssetHandler(assetSvc, logger)

	// 10. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWKSURL,
		cfg.JWKSCACert,
		cfg.JWTIssuer,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jwtAuth.Close()
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + lookup)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"assetregister",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseDSN(),
		cfg.LookupURL,
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
		}
	}

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, assetHandler, healthHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Graceful shutdown фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Реестр информационных активов остановлен")
}
