// Пакет config — загрузка и валидация конфигурации сервиса
// реестра информационных активов из переменных окружения.
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

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера
	HTTPIdleTimeout time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- JWT / JWKS ---

	// URL JWKS endpoint провайдера токенов
	JWKSURL string
	// Путь к CA-сертификату для TLS JWKS endpoint (опционально)
	JWKSCACert string
	// Ожидаемый issuer JWT (пустая строка — не проверяется)
	JWTIssuer string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Scope, необходимый для доступа к API реестра
	RequiredScope string
	// Группы JWT, дающие неограниченный доступ на запись
	// (аналог model-level permission)
	AdminGroups []string

	// --- Lookup directory ---

	// Базовый URL API lookup-сервиса
	LookupURL string
	// URL token endpoint для client_credentials grant
	LookupTokenURL string
	// OAuth2 client id сервиса реестра
	LookupClientID string
	// OAuth2 client secret сервиса реестра
	LookupClientSecret string
	// Scopes, запрашиваемые для токена lookup
	LookupScopes []string
	// Таймаут HTTP-запросов к lookup
	LookupTimeout time.Duration
	// Путь к CA-сертификату для TLS lookup (опционально)
	LookupCACert string
	// TTL кэша ответов lookup по пользователю
	LookupCacheTTL time.Duration
	// Максимальное количество записей в кэше lookup
	LookupCacheSize int
	// Имя группы lookup, членство в которой открывает доступ к реестру
	MembersGroup string

	// --- Dependency health ---

	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("IAR_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("IAR_PORT: %w", err)
	}

	logLevel := getEnvDefault("IAR_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("IAR_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("IAR_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("IAR_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.HTTPReadTimeout, err = getEnvDuration("IAR_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IAR_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("IAR_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IAR_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("IAR_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IAR_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("IAR_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IAR_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost = getEnvDefault("IAR_DB_HOST", "localhost")
	cfg.DBPort, err = getEnvInt("IAR_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("IAR_DB_PORT: %w", err)
	}
	cfg.DBName = getEnvDefault("IAR_DB_NAME", "assetregister")
	cfg.DBUser = getEnvDefault("IAR_DB_USER", "assetregister")
	cfg.DBPassword, err = getEnvRequired("IAR_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("IAR_DB_SSL_MODE", "disable")

	// --- JWT / JWKS ---

	cfg.JWKSURL, err = getEnvRequired("IAR_JWKS_URL")
	if err != nil {
		return nil, err
	}
	cfg.JWKSCACert = getEnvDefault("IAR_JWKS_CA_CERT", "")
	cfg.JWTIssuer = getEnvDefault("IAR_JWT_ISSUER", "")
	cfg.JWTLeeway, err = getEnvDuration("IAR_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IAR_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDuration("IAR_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IAR_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("IAR_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("IAR_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.RequiredScope = getEnvDefault("IAR_REQUIRED_SCOPE", "assetregister")
	cfg.AdminGroups = getEnvList("IAR_ADMIN_GROUPS", nil)

	// --- Lookup directory ---

	cfg.LookupURL, err = getEnvRequired("IAR_LOOKUP_URL")
	if err != nil {
		return nil, err
	}
	cfg.LookupTokenURL, err = getEnvRequired("IAR_LOOKUP_TOKEN_URL")
	if err != nil {
		return nil, err
	}
	cfg.LookupClientID, err = getEnvRequired("IAR_LOOKUP_CLIENT_ID")
	if err != nil {
		return nil, err
	}
	cfg.LookupClientSecret, err = getEnvRequired("IAR_LOOKUP_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.LookupScopes = getEnvList("IAR_LOOKUP_SCOPES", []string{"lookup:anonymous"})
	cfg.LookupTimeout, err = getEnvDuration("IAR_LOOKUP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IAR_LOOKUP_TIMEOUT: %w", err)
	}
	cfg.LookupCACert = getEnvDefault("IAR_LOOKUP_CA_CERT", "")
	cfg.LookupCacheTTL, err = getEnvDuration("IAR_LOOKUP_CACHE_TTL", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("IAR_LOOKUP_CACHE_TTL: %w", err)
	}
	cfg.LookupCacheSize, err = getEnvInt("IAR_LOOKUP_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("IAR_LOOKUP_CACHE_SIZE: %w", err)
	}
	if cfg.LookupCacheSize < 1 {
		return nil, fmt.Errorf("IAR_LOOKUP_CACHE_SIZE: значение должно быть > 0")
	}
	cfg.MembersGroup = getEnvDefault("IAR_MEMBERS_GROUP", "uis-iar-users")

	// --- Dependency health ---

	cfg.DephealthGroup = getEnvDefault("IAR_DEPHEALTH_GROUP", "assetregister")
	cfg.DephealthCheckInterval, err = getEnvDuration("IAR_DEPHEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IAR_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает DSN для подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
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

// getEnvList возвращает список значений из переменной окружения
// (значения разделяются запятыми, пустые элементы отбрасываются).
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return defaultVal
	}
	return result
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
