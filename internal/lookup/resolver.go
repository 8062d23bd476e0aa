// resolver.go — кэш identity пользователей поверх lookup-клиента.
// Ключ "<username>:lookup", TTL LRU (hashicorp/golang-lru/v2/expirable).
package lookup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/assetregister/internal/domain/model"
	"github.com/bigkaa/assetregister/internal/repository"
)

// Prometheus-метрики кэша identity.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iar_lookup_cache_hits_total",
		Help: "Общее количество попаданий в кэш ответов lookup.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iar_lookup_cache_misses_total",
		Help: "Общее количество промахов кэша ответов lookup.",
	})
	upstreamRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iar_lookup_upstream_requests_total",
		Help: "Общее количество запросов к lookup-сервису.",
	})
)

// PersonFetcher — источник данных о человеке по (scheme, identifier).
// Реализуется *Client; в тестах подменяется моком.
type PersonFetcher interface {
	GetPerson(ctx context.Context, scheme, identifier string) (*model.Person, error)
}

// Resolver — кэширующий доступ к identity пользователей.
//
// Последовательность get-then-fetch-then-set не атомарна: параллельные
// промахи по одному пользователю могут оба сходить в lookup. Оба запроса
// вернут одинаковые данные, поэтому дедупликация не требуется.
type Resolver struct {
	cache   *expirable.LRU[string, *model.Person]
	fetcher PersonFetcher
	links   repository.UserLookupRepository
	logger  *slog.Logger
}

// NewResolver создаёт кэширующий resolver identity.
// maxSize — максимальное количество записей в кэше.
// ttl — время жизни записи после добавления (IAR_LOOKUP_CACHE_TTL).
func NewResolver(
	fetcher PersonFetcher,
	links repository.UserLookupRepository,
	maxSize int,
	ttl time.Duration,
	logger *slog.Logger,
) *Resolver {
	cache := expirable.NewLRU[string, *model.Person](maxSize, nil, ttl)
	return &Resolver{
		cache:   cache,
		fetcher: fetcher,
		links:   links,
		logger:  logger.With(slog.String("component", "lookup_resolver")),
	}
}

// cacheKey возвращает ключ кэша для пользователя.
func cacheKey(username string) string {
	return username + ":lookup"
}

// GetPersonForUser возвращает identity пользователя из lookup.
//
// Пустое имя пользователя — ErrAnonymousUser; отсутствие привязки
// в user_lookups — ErrNoLinkedIdentity; неуспех lookup — *UpstreamError.
// При промахе результат сохраняется в кэш ДО возврата, поэтому повторный
// вызов (в том числе реентерабельный) наблюдает попадание и не ходит
// в lookup повторно.
func (r *Resolver) GetPersonForUser(ctx context.Context, username string) (*model.Person, error) {
	if username == "" {
		return nil, ErrAnonymousUser
	}

	key := cacheKey(username)
	if person, ok := r.cache.Get(key); ok {
		cacheHitsTotal.Inc()
		return person, nil
	}
	cacheMissesTotal.Inc()

	link, err := r.links.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoLinkedIdentity
		}
		return nil, err
	}

	upstreamRequestsTotal.Inc()
	person, err := r.fetcher.GetPerson(ctx, link.Scheme, link.Identifier)
	if err != nil {
		return nil, err
	}

	r.cache.Add(key, person)

	r.logger.Debug("Identity пользователя получена из lookup",
		slog.String("username", username),
		slog.String("scheme", link.Scheme),
	)

	return person, nil
}

// Invalidate удаляет запись пользователя из кэша.
func (r *Resolver) Invalidate(username string) {
	r.cache.Remove(cacheKey(username))
}
