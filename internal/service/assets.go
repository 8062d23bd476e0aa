// assets.go — бизнес-логика реестра информационных активов.
//
// Видимость: пользователь видит неприватные активы и приватные активы
// своих подразделений. Не-члены рабочей группы реестра не видят ничего.
// Фильтр видимости применяется до пользовательских фильтров и только
// сужает выборку. При любой ошибке определения identity доступ
// закрывается (fail closed).
//
// Права на запись: администраторы (группы из IAR_ADMIN_GROUPS) — без
// ограничений; члены рабочей группы — только активы своих подразделений
// (при смене подразделения — и текущего, и нового).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/assetregister/internal/domain/model"
	"github.com/bigkaa/assetregister/internal/repository"
)

// PersonSource — источник identity пользователей.
// Реализуется lookup.Resolver; в тестах подменяется моком.
type PersonSource interface {
	GetPersonForUser(ctx context.Context, username string) (*model.Person, error)
}

// AssetPage — страница списка активов.
type AssetPage struct {
	// Items — активы текущей страницы
	Items []*model.Asset `json:"items"`
	// Total — общее количество активов по фильтру
	Total int `json:"total"`
	// Limit — размер страницы
	Limit int `json:"limit"`
	// Offset — смещение
	Offset int `json:"offset"`
	// HasMore — есть ли записи после текущей страницы
	HasMore bool `json:"has_more"`
}

// AssetService — операции над реестром активов.
type AssetService struct {
	repo         repository.AssetRepository
	persons      PersonSource
	membersGroup string
	adminGroups  []string
	audit        *AuditLogger
	logger       *slog.Logger
}

// NewAssetService создаёт сервис реестра активов.
// membersGroup — группа lookup, дающая доступ к реестру (IAR_MEMBERS_GROUP).
// adminGroups — группы lookup с правом записи без ограничений (IAR_ADMIN_GROUPS).
func NewAssetService(
	repo repository.AssetRepository,
	persons PersonSource,
	membersGroup string,
	adminGroups []string,
	audit *AuditLogger,
	logger *slog.Logger,
) *AssetService {
	return &AssetService{
		repo:         repo,
		persons:      persons,
		membersGroup: membersGroup,
		adminGroups:  adminGroups,
		audit:        audit,
		logger:       logger.With(slog.String("component", "asset_service")),
	}
}

// isAdmin проверяет членство в одной из административных групп.
func (s *AssetService) isAdmin(person *model.Person) bool {
	for _, g := range s.adminGroups {
		if person.InGroup(g) {
			return true
		}
	}
	return false
}

// isMember проверяет членство в рабочей группе реестра.
func (s *AssetService) isMember(person *model.Person) bool {
	return person.InGroup(s.membersGroup)
}

// canWrite проверяет право записи для актива указанного подразделения.
func (s *AssetService) canWrite(person *model.Person, department string) bool {
	if s.isAdmin(person) {
		return true
	}
	return s.isMember(person) && department != "" && person.InInstitution(department)
}

// canSee проверяет видимость конкретного актива для пользователя.
// Предполагает, что членство в рабочей группе уже проверено.
func canSee(person *model.Person, a *model.Asset) bool {
	return !a.Private || person.InInstitution(a.Department)
}

// List возвращает страницу активов, видимых пользователю.
// Не-член рабочей группы получает пустую страницу, а не ошибку:
// реестр для него выглядит пустым.
func (s *AssetService) List(ctx context.Context, username string, params repository.ListParams) (*AssetPage, error) {
	person, err := s.persons.GetPersonForUser(ctx, username)
	if err != nil {
		return nil, err
	}

	if !s.isMember(person) {
		return &AssetPage{
			Items:  []*model.Asset{},
			Limit:  params.Limit,
			Offset: params.Offset,
		}, nil
	}

	vis := repository.Visibility{Institutions: person.InstIDs()}
	items, total, err := s.repo.List(ctx, vis, params)
	if err != nil {
		return nil, fmt.Errorf("список активов: %w", err)
	}

	return &AssetPage{
		Items:   items,
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
		HasMore: params.Offset+len(items) < total,
	}, nil
}

// Get возвращает актив по UUID с учётом видимости.
// Невидимый приватный актив неотличим от несуществующего (ErrNotFound).
func (s *AssetService) Get(ctx context.Context, username, id string) (*model.Asset, error) {
	person, err := s.persons.GetPersonForUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if !s.isMember(person) {
		return nil, ErrNotFound
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("чтение актива %s: %w", id, err)
	}

	if !canSee(person, a) {
		return nil, ErrNotFound
	}

	return a, nil
}

// Create сохраняет новый актив. Полнота записи пересчитывается
// при сохранении; неполные записи допустимы.
func (s *AssetService) Create(ctx context.Context, username string, a *model.Asset) (*model.Asset, error) {
	person, err := s.persons.GetPersonForUser(ctx, username)
	if err != nil {
		return nil, err
	}

	if err := validateAsset(a); err != nil {
		return nil, err
	}

	if !s.canWrite(person, a.Department) {
		return nil, ErrForbidden
	}

	a.ID = uuid.NewString()
	a.IsComplete = a.ComputeComplete()
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("создание актива: %w", err)
	}

	s.audit.AssetCreated(ctx, a.ID)
	return a, nil
}

// Update обновляет актив. updated — полное новое состояние изменяемых
// полей (handlers собирают его сами: PUT — из тела запроса, PATCH —
// слиянием с текущим состоянием). Право записи проверяется и для
// текущего, и для нового подразделения актива.
func (s *AssetService) Update(ctx context.Context, username, id string, updated *model.Asset) (*model.Asset, error) {
	person, err := s.persons.GetPersonForUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if !s.isMember(person) && !s.isAdmin(person) {
		return nil, ErrNotFound
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("чтение актива %s: %w", id, err)
	}
	if !canSee(person, existing) {
		return nil, ErrNotFound
	}

	if err := validateAsset(updated); err != nil {
		return nil, err
	}

	// Право записи: текущее подразделение И новое (при смене)
	if !s.canWrite(person, existing.Department) {
		return nil, ErrForbidden
	}
	if updated.Department != existing.Department && !s.canWrite(person, updated.Department) {
		return nil, ErrForbidden
	}

	updated.ID = id
	updated.CreatedAt = existing.CreatedAt
	updated.IsComplete = updated.ComputeComplete()

	if err := s.repo.Update(ctx, updated); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("обновление актива %s: %w", id, err)
	}

	s.audit.AssetUpdated(ctx, id)
	return updated, nil
}

// Delete помечает актив удалённым. Идемпотентна: повторное удаление
// уже удалённого актива — успех без ошибки.
func (s *AssetService) Delete(ctx context.Context, username, id string) error {
	person, err := s.persons.GetPersonForUser(ctx, username)
	if err != nil {
		return err
	}
	if !s.isMember(person) && !s.isAdmin(person) {
		return ErrNotFound
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Актив либо не существует, либо уже удалён.
			// SoftDelete различает эти случаи: no-op для удалённого,
			// ErrNotFound для несуществующего.
			if delErr := s.repo.SoftDelete(ctx, id); delErr != nil {
				if errors.Is(delErr, repository.ErrNotFound) {
					return ErrNotFound
				}
				return fmt.Errorf("удаление актива %s: %w", id, delErr)
			}
			return nil
		}
		return fmt.Errorf("чтение актива %s: %w", id, err)
	}
	if !canSee(person, existing) {
		return ErrNotFound
	}

	if !s.canWrite(person, existing.Department) {
		return ErrForbidden
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return fmt.Errorf("удаление актива %s: %w", id, err)
	}

	s.audit.AssetDeleted(ctx, id)
	return nil
}

// Stats возвращает агрегированную статистику реестра.
// Доступна членам рабочей группы и администраторам.
func (s *AssetService) Stats(ctx context.Context, username string) (*repository.Stats, error) {
	person, err := s.persons.GetPersonForUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if !s.isMember(person) && !s.isAdmin(person) {
		return nil, ErrForbidden
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("статистика реестра: %w", err)
	}
	return stats, nil
}

// validateAsset проверяет значения enum-полей актива.
// Все поля опциональны (неполные записи допустимы), но заполненные
// значения обязаны входить в допустимые множества.
func validateAsset(a *model.Asset) error {
	if a.Purpose != "" && !contains(model.Purposes, a.Purpose) {
		return fmt.Errorf("%w: недопустимое значение purpose %q", ErrValidation, a.Purpose)
	}
	if a.Retention != "" && !contains(model.Retentions, a.Retention) {
		return fmt.Errorf("%w: недопустимое значение retention %q", ErrValidation, a.Retention)
	}
	if a.RecipientsOutsideUni != "" && !contains(model.RecipientsChoices, a.RecipientsOutsideUni) {
		return fmt.Errorf("%w: недопустимое значение recipients_outside_uni %q", ErrValidation, a.RecipientsOutsideUni)
	}
	if a.RecipientsOutsideEEA != "" && !contains(model.RecipientsChoices, a.RecipientsOutsideEEA) {
		return fmt.Errorf("%w: недопустимое значение recipients_outside_eea %q", ErrValidation, a.RecipientsOutsideEEA)
	}
	if err := validateSubset("data_subject", a.DataSubject, model.DataSubjects); err != nil {
		return err
	}
	if err := validateSubset("data_category", a.DataCategory, model.DataCategories); err != nil {
		return err
	}
	if err := validateSubset("risk_type", a.RiskType, model.RiskTypes); err != nil {
		return err
	}
	if err := validateSubset("storage_format", a.StorageFormat, model.StorageFormats); err != nil {
		return err
	}
	if err := validateSubset("paper_storage_security", a.PaperStorageSecurity, model.PaperSecurityChoices); err != nil {
		return err
	}
	if err := validateSubset("digital_storage_security", a.DigitalStorageSecurity, model.DigitalSecurityChoices); err != nil {
		return err
	}
	return nil
}

// validateSubset проверяет, что все значения входят в допустимое множество.
func validateSubset(field string, values, allowed []string) error {
	for _, v := range values {
		if !contains(allowed, v) {
			return fmt.Errorf("%w: недопустимое значение %s %q", ErrValidation, field, v)
		}
	}
	return nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
