// handler.go — общие части HTTP-обработчиков реестра активов.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/assetregister/internal/api/errors"
	"github.com/bigkaa/assetregister/internal/lookup"
	"github.com/bigkaa/assetregister/internal/service"
)

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError маппит ошибки сервисного слоя в HTTP-ответы.
// Ошибки identity (анонимный пользователь, отсутствие привязки) — 403,
// недоступность lookup — 502: доступ закрывается при любой
// неопределённости (fail closed).
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var upstreamErr *lookup.UpstreamError

	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Актив не найден")
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, "Недостаточно прав для операции")
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, lookup.ErrAnonymousUser):
		apierrors.Forbidden(w, "Запрос не содержит аутентифицированного пользователя")
	case errors.Is(err, lookup.ErrNoLinkedIdentity):
		apierrors.Forbidden(w, "У пользователя нет привязанной identity lookup")
	case errors.As(err, &upstreamErr):
		logger.Error("lookup-сервис недоступен",
			slog.Int("status", upstreamErr.StatusCode),
			slog.String("error", upstreamErr.Error()),
		)
		apierrors.LookupUnavailable(w, "Сервис lookup недоступен")
	default:
		logger.Error("Внутренняя ошибка обработки запроса",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit *int, offset *int) (int, int) {
	l := 100
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > 1000 {
			l = 1000
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}
