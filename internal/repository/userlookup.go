package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/assetregister/internal/domain/model"
)

// UserLookupRepository — чтение связей пользователь → identity lookup.
// Таблица user_lookups заполняется внешним процессом привязки identity,
// сервис реестра её не изменяет.
type UserLookupRepository interface {
	// GetByUsername возвращает привязку identity для пользователя.
	// ErrNotFound — у пользователя нет привязанной identity.
	GetByUsername(ctx context.Context, username string) (*model.UserLookup, error)
}

// userLookupRepo — реализация UserLookupRepository через pgx.
type userLookupRepo struct {
	db DBTX
}

// NewUserLookupRepository создаёт репозиторий привязок identity.
func NewUserLookupRepository(db DBTX) UserLookupRepository {
	return &userLookupRepo{db: db}
}

func (r *userLookupRepo) GetByUsername(ctx context.Context, username string) (*model.UserLookup, error) {
	query := `
		SELECT username, scheme, identifier
		FROM user_lookups
		WHERE username = $1`

	ul := &model.UserLookup{}
	err := r.db.QueryRow(ctx, query, username).Scan(&ul.Username, &ul.Scheme, &ul.Identifier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения привязки identity: %w", err)
	}
	return ul, nil
}
