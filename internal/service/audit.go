// audit.go — аудит мутаций реестра активов.
// Каждое создание, изменение и удаление записывается в структурированный
// лог с актором (имя пользователя из контекста запроса).
package service

import (
	"context"
	"log/slog"

	"github.com/bigkaa/assetregister/internal/api/middleware"
)

// AuditLogger — журнал мутаций реестра.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger создаёт журнал мутаций.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger.With(slog.String("component", "audit")),
	}
}

// record пишет запись аудита с актором из контекста запроса.
func (a *AuditLogger) record(ctx context.Context, action, assetID string) {
	a.logger.LogAttrs(ctx, slog.LevelInfo, "Мутация реестра",
		slog.String("action", action),
		slog.String("asset_id", assetID),
		slog.String("actor", middleware.ActorFromContext(ctx)),
	)
}

// AssetCreated записывает создание актива.
func (a *AuditLogger) AssetCreated(ctx context.Context, assetID string) {
	a.record(ctx, "create", assetID)
}

// AssetUpdated записывает изменение актива.
func (a *AuditLogger) AssetUpdated(ctx context.Context, assetID string) {
	a.record(ctx, "update", assetID)
}

// AssetDeleted записывает удаление актива.
func (a *AuditLogger) AssetDeleted(ctx context.Context, assetID string) {
	a.record(ctx, "delete", assetID)
}
