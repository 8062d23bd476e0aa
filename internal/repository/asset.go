package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/assetregister/internal/domain/model"
)

// assetColumns — список столбцов таблицы assets для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const assetColumns = `id, name, department, purpose, purpose_other, owner,
	private, personal_data, data_subject, data_category,
	recipients_outside_uni, recipients_outside_uni_description,
	recipients_outside_eea, recipients_outside_eea_description,
	retention, risk_type, risk_type_additional, storage_location,
	storage_format, paper_storage_security, digital_storage_security,
	is_complete, created_at, updated_at, deleted_at`

// Visibility — ограничение видимости активов для пользователя.
// Применяется ПЕРЕД пользовательскими фильтрами и только сужает выборку:
// видны неприватные активы плюс приватные активы подразделений
// из Institutions.
type Visibility struct {
	// Institutions — идентификаторы подразделений пользователя
	Institutions []string
}

// ListParams — параметры списка активов.
// Поля-указатели: nil = фильтр не применяется.
type ListParams struct {
	// Department — фильтр по подразделению (exact match)
	Department *string
	// Purpose — фильтр по назначению
	Purpose *string
	// Owner — фильтр по ответственному
	Owner *string
	// Private — фильтр по приватности
	Private *bool
	// PersonalData — фильтр по наличию персональных данных
	PersonalData *bool
	// RecipientsOutsideUni — фильтр по получателям вне университета
	RecipientsOutsideUni *string
	// RecipientsOutsideEEA — фильтр по получателям вне ЕЭЗ
	RecipientsOutsideEEA *string
	// Retention — фильтр по сроку хранения
	Retention *string
	// IsComplete — фильтр по полноте записи
	IsComplete *bool
	// Search — полнотекстовый поиск по фиксированному набору полей
	Search *string
	// Ordering — поле сортировки, префикс "-" — по убыванию
	// (по умолчанию "-created_at")
	Ordering string
	// Limit — количество результатов
	Limit int
	// Offset — смещение
	Offset int
}

// DeptCount — количество активов одного подразделения.
type DeptCount struct {
	// Department — идентификатор подразделения
	Department string `json:"department"`
	// NumAssets — количество активов
	NumAssets int `json:"num_assets"`
}

// Stats — агрегированная статистика реестра (только неудалённые активы).
type Stats struct {
	// TotalAssets — общее количество активов
	TotalAssets int `json:"total_assets"`
	// TotalAssetsCompleted — количество полностью заполненных активов
	TotalAssetsCompleted int `json:"total_assets_completed"`
	// TotalAssetsPersonalData — количество активов с персональными данными
	TotalAssetsPersonalData int `json:"total_assets_personal_data"`
	// TotalAssetsDept — активы по подразделениям
	TotalAssetsDept []DeptCount `json:"total_assets_dept"`
	// TotalAssetsDeptCompleted — заполненные активы по подразделениям
	TotalAssetsDeptCompleted []DeptCount `json:"total_assets_dept_completed"`
	// TotalAssetsDeptPersonalData — активы с персональными данными по подразделениям
	TotalAssetsDeptPersonalData []DeptCount `json:"total_assets_dept_personal_data"`
}

// AssetRepository — доступ к таблице assets.
// Физического DELETE нет: удаление — выставление deleted_at,
// все выборки исключают удалённые записи.
type AssetRepository interface {
	// Create сохраняет новый актив. Заполняет CreatedAt/UpdatedAt.
	Create(ctx context.Context, a *model.Asset) error
	// GetByID возвращает неудалённый актив по UUID.
	GetByID(ctx context.Context, id string) (*model.Asset, error)
	// List возвращает страницу активов с учётом видимости, фильтров,
	// поиска и сортировки. Возвращает (записи, общее количество, ошибка).
	List(ctx context.Context, vis Visibility, params ListParams) ([]*model.Asset, int, error)
	// Update обновляет все изменяемые поля актива. Заполняет UpdatedAt.
	Update(ctx context.Context, a *model.Asset) error
	// SoftDelete помечает актив удалённым. Идемпотентна: повторный вызов
	// для уже удалённого актива — no-op без ошибки.
	SoftDelete(ctx context.Context, id string) error
	// Stats возвращает агрегированную статистику по неудалённым активам.
	Stats(ctx context.Context) (*Stats, error)
}

// assetRepo — реализация AssetRepository через pgx.
type assetRepo struct {
	db DBTX
}

// NewAssetRepository создаёт репозиторий активов.
func NewAssetRepository(db DBTX) AssetRepository {
	return &assetRepo{db: db}
}

func (r *assetRepo) Create(ctx context.Context, a *model.Asset) error {
	query := `
		INSERT INTO assets (id, name, department, purpose, purpose_other, owner,
			private, personal_data, data_subject, data_category,
			recipients_outside_uni, recipients_outside_uni_description,
			recipients_outside_eea, recipients_outside_eea_description,
			retention, risk_type, risk_type_additional, storage_location,
			storage_format, paper_storage_security, digital_storage_security,
			is_complete)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		a.ID, a.Name, a.Department, a.Purpose, a.PurposeOther, a.Owner,
		a.Private, a.PersonalData, a.DataSubject, a.DataCategory,
		a.RecipientsOutsideUni, a.RecipientsOutsideUniDescription,
		a.RecipientsOutsideEEA, a.RecipientsOutsideEEADescription,
		a.Retention, a.RiskType, a.RiskTypeAdditional, a.StorageLocation,
		a.StorageFormat, a.PaperStorageSecurity, a.DigitalStorageSecurity,
		a.IsComplete,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: актив с таким id уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания актива: %w", err)
	}
	return nil
}

func (r *assetRepo) GetByID(ctx context.Context, id string) (*model.Asset, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM assets WHERE id = $1 AND deleted_at IS NULL`, assetColumns)

	a := &model.Asset{}
	if err := scanAsset(r.db.QueryRow(ctx, query, id), a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения актива: %w", err)
	}
	return a, nil
}

func (r *assetRepo) List(ctx context.Context, vis Visibility, params ListParams) ([]*model.Asset, int, error) {
	where, args := buildListWhere(vis, params)
	argNum := len(args) + 1

	orderBy := buildOrderBy(params.Ordering)

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM assets %s %s LIMIT $%d OFFSET $%d`,
		assetColumns, where, orderBy, argNum, argNum+1,
	)
	dataArgs := append(append([]any{}, args...), params.Limit, params.Offset)

	rows, err := r.db.Query(ctx, dataQuery, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка выборки активов: %w", err)
	}
	defer rows.Close()

	var result []*model.Asset
	for rows.Next() {
		a := &model.Asset{}
		if err := scanAsset(rows, a); err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования актива: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации результатов: %w", err)
	}

	// Общее количество — с теми же условиями, без LIMIT/OFFSET
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM assets %s`, where)

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта активов: %w", err)
	}

	return result, total, nil
}

func (r *assetRepo) Update(ctx context.Context, a *model.Asset) error {
	query := `
		UPDATE assets
		SET name = $2, department = $3, purpose = $4, purpose_other = $5,
			owner = $6, private = $7, personal_data = $8,
			data_subject = $9, data_category = $10,
			recipients_outside_uni = $11, recipients_outside_uni_description = $12,
			recipients_outside_eea = $13, recipients_outside_eea_description = $14,
			retention = $15, risk_type = $16, risk_type_additional = $17,
			storage_location = $18, storage_format = $19,
			paper_storage_security = $20, digital_storage_security = $21,
			is_complete = $22, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		a.ID, a.Name, a.Department, a.Purpose, a.PurposeOther, a.Owner,
		a.Private, a.PersonalData, a.DataSubject, a.DataCategory,
		a.RecipientsOutsideUni, a.RecipientsOutsideUniDescription,
		a.RecipientsOutsideEEA, a.RecipientsOutsideEEADescription,
		a.Retention, a.RiskType, a.RiskTypeAdditional, a.StorageLocation,
		a.StorageFormat, a.PaperStorageSecurity, a.DigitalStorageSecurity,
		a.IsComplete,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления актива: %w", err)
	}
	return nil
}

func (r *assetRepo) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE assets SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления актива: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Ни одной строки: либо актив уже удалён (no-op), либо не существует
	var exists bool
	err = r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM assets WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ошибка проверки существования актива: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (r *assetRepo) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		TotalAssetsDept:             []DeptCount{},
		TotalAssetsDeptCompleted:    []DeptCount{},
		TotalAssetsDeptPersonalData: []DeptCount{},
	}

	// Итоговые счётчики одним проходом. COUNT(*) FILTER не порождает
	// JOIN'ов, поэтому дубликаты строк (и завышенные счётчики) исключены.
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_complete),
			COUNT(*) FILTER (WHERE personal_data)
		FROM assets
		WHERE deleted_at IS NULL`,
	).Scan(&stats.TotalAssets, &stats.TotalAssetsCompleted, &stats.TotalAssetsPersonalData)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта итоговой статистики: %w", err)
	}

	// Разбивка по подразделениям, упорядоченная по идентификатору
	rows, err := r.db.Query(ctx, `
		SELECT department,
			COUNT(*),
			COUNT(*) FILTER (WHERE is_complete),
			COUNT(*) FILTER (WHERE personal_data)
		FROM assets
		WHERE deleted_at IS NULL
		GROUP BY department
		ORDER BY department`,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта статистики по подразделениям: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dept string
		var total, completed, personal int
		if err := rows.Scan(&dept, &total, &completed, &personal); err != nil {
			return nil, fmt.Errorf("ошибка сканирования статистики: %w", err)
		}
		stats.TotalAssetsDept = append(stats.TotalAssetsDept,
			DeptCount{Department: dept, NumAssets: total})
		if completed > 0 {
			stats.TotalAssetsDeptCompleted = append(stats.TotalAssetsDeptCompleted,
				DeptCount{Department: dept, NumAssets: completed})
		}
		if personal > 0 {
			stats.TotalAssetsDeptPersonalData = append(stats.TotalAssetsDeptPersonalData,
				DeptCount{Department: dept, NumAssets: personal})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации статистики: %w", err)
	}

	return stats, nil
}

// scanAsset сканирует одну строку assets в модель.
func scanAsset(row pgx.Row, a *model.Asset) error {
	return row.Scan(
		&a.ID, &a.Name, &a.Department, &a.Purpose, &a.PurposeOther, &a.Owner,
		&a.Private, &a.PersonalData, &a.DataSubject, &a.DataCategory,
		&a.RecipientsOutsideUni, &a.RecipientsOutsideUniDescription,
		&a.RecipientsOutsideEEA, &a.RecipientsOutsideEEADescription,
		&a.Retention, &a.RiskType, &a.RiskTypeAdditional, &a.StorageLocation,
		&a.StorageFormat, &a.PaperStorageSecurity, &a.DigitalStorageSecurity,
		&a.IsComplete, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt,
	)
}

// likeEscaper экранирует метасимволы LIKE/ILIKE в пользовательском вводе.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike экранирует значение поиска, чтобы %, _ и \ трактовались
// буквально внутри шаблона ILIKE.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// searchColumns — поля, по которым работает параметр search.
var searchColumns = []string{
	"name", "purpose_other",
	"recipients_outside_uni_description", "recipients_outside_eea_description",
	"risk_type_additional", "storage_location",
	"department", "purpose", "owner", "retention",
}

// buildListWhere строит WHERE-условие и аргументы для выборки активов.
// Первым идёт ограничение видимости: удалённые записи исключаются всегда,
// приватные — видны только подразделениям из vis.Institutions.
func buildListWhere(vis Visibility, params ListParams) (string, []any) {
	conditions := []string{"deleted_at IS NULL"}
	var args []any
	argNum := 1

	// Видимость: неприватные ИЛИ приватные своего подразделения
	conditions = append(conditions,
		fmt.Sprintf("(private = FALSE OR department = ANY($%d))", argNum))
	args = append(args, vis.Institutions)
	argNum++

	addString := func(column string, val *string) {
		if val != nil {
			conditions = append(conditions, fmt.Sprintf("%s = $%d", column, argNum))
			args = append(args, *val)
			argNum++
		}
	}
	addBool := func(column string, val *bool) {
		if val != nil {
			conditions = append(conditions, fmt.Sprintf("%s = $%d", column, argNum))
			args = append(args, *val)
			argNum++
		}
	}

	addString("department", params.Department)
	addString("purpose", params.Purpose)
	addString("owner", params.Owner)
	addBool("private", params.Private)
	addBool("personal_data", params.PersonalData)
	addString("recipients_outside_uni", params.RecipientsOutsideUni)
	addString("recipients_outside_eea", params.RecipientsOutsideEEA)
	addString("retention", params.Retention)
	addBool("is_complete", params.IsComplete)

	// Поиск: подстрока без учёта регистра по фиксированному набору полей
	if params.Search != nil && *params.Search != "" {
		ors := make([]string, 0, len(searchColumns))
		for _, col := range searchColumns {
			ors = append(ors, fmt.Sprintf("%s ILIKE $%d", col, argNum))
		}
		conditions = append(conditions, "("+strings.Join(ors, " OR ")+")")
		args = append(args, "%"+escapeLike(*params.Search)+"%")
		argNum++
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// Допустимые поля сортировки (whitelist для предотвращения SQL-инъекций).
var orderableColumns = map[string]bool{
	"id": true, "name": true, "department": true, "purpose": true,
	"owner": true, "private": true, "personal_data": true,
	"recipients_outside_uni": true, "recipients_outside_eea": true,
	"retention": true, "storage_location": true, "is_complete": true,
	"created_at": true, "updated_at": true,
}

// defaultOrdering — сортировка по умолчанию: новые записи первыми.
const defaultOrdering = "-created_at"

// buildOrderBy строит ORDER BY из параметра ordering.
// Префикс "-" — сортировка по убыванию. Неизвестные поля
// заменяются сортировкой по умолчанию.
func buildOrderBy(ordering string) string {
	if ordering == "" {
		ordering = defaultOrdering
	}

	direction := "ASC"
	column := ordering
	if strings.HasPrefix(ordering, "-") {
		direction = "DESC"
		column = ordering[1:]
	}

	if !orderableColumns[column] {
		return "ORDER BY created_at DESC"
	}

	return fmt.Sprintf("ORDER BY %s %s", column, direction)
}
