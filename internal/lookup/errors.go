package lookup

import (
	"errors"
	"fmt"
)

// Ошибки получения identity пользователя.
var (
	// ErrAnonymousUser — запрос от неаутентифицированного пользователя.
	ErrAnonymousUser = errors.New("пользователь анонимный")
	// ErrNoLinkedIdentity — у пользователя нет привязанной identity lookup.
	ErrNoLinkedIdentity = errors.New("у пользователя нет привязанной identity lookup")
)

// UpstreamError — lookup-сервис вернул неуспешный HTTP-статус.
// Переносит статус и тело ответа без повторных попыток и без маскировки.
type UpstreamError struct {
	// StatusCode — HTTP-статус ответа lookup
	StatusCode int
	// Body — тело ответа (для диагностики)
	Body string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("lookup вернул статус %d: %s", e.StatusCode, e.Body)
}
