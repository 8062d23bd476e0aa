// actor.go — request-scoped актор для аудита мутаций.
// Имя пользователя из JWT claims помещается в контекст запроса;
// область видимости контекста исключает утечку между запросами.
package middleware

import (
	"context"
	"net/http"
)

const (
	// ContextKeyActor — имя пользователя, выполняющего запрос.
	ContextKeyActor contextKey = "actor"
)

// WithActor возвращает контекст с установленным актором.
func WithActor(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, ContextKeyActor, username)
}

// ActorFromContext извлекает актора из контекста запроса.
// Возвращает пустую строку вне запроса или до аутентификации.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(ContextKeyActor).(string)
	return actor
}

// Actor возвращает middleware, помещающий имя аутентифицированного
// пользователя в контекст запроса. Должен использоваться ПОСЛЕ
// JWTAuth.Middleware().
func Actor() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if username := UsernameFromContext(r.Context()); username != "" {
				r = r.WithContext(WithActor(r.Context(), username))
			}
			next.ServeHTTP(w, r)
		})
	}
}
