package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/assetregister/internal/config"
	"github.com/bigkaa/assetregister/internal/database"
	"github.com/bigkaa/assetregister/internal/domain/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool и функцию очистки.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("assetregister_test"),
		postgres.WithUsername("assetregister"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	t.Setenv("IAR_DB_HOST", host)
	t.Setenv("IAR_DB_PORT", port.Port())
	t.Setenv("IAR_DB_NAME", "assetregister_test")
	t.Setenv("IAR_DB_USER", "assetregister")
	t.Setenv("IAR_DB_PASSWORD", "test-password")
	t.Setenv("IAR_DB_SSL_MODE", "disable")
	t.Setenv("IAR_JWKS_URL", "http://localhost:8080/jwks")
	t.Setenv("IAR_LOOKUP_URL", "http://localhost:8081/api/v1")
	t.Setenv("IAR_LOOKUP_TOKEN_URL", "http://localhost:8081/oauth/token")
	t.Setenv("IAR_LOOKUP_CLIENT_ID", "test")
	t.Setenv("IAR_LOOKUP_CLIENT_SECRET", "test")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// newAsset создаёт тестовый актив с заполненными обязательными полями.
func newAsset(dept string, private bool) *model.Asset {
	return &model.Asset{
		ID:                   uuid.NewString(),
		Name:                 "Student records",
		Department:           dept,
		Purpose:              model.PurposeStudentAdministration,
		Owner:                "abc123",
		Private:              private,
		PersonalData:         true,
		DataSubject:          []string{"students"},
		DataCategory:         []string{"education"},
		RecipientsOutsideUni: model.RecipientsNo,
		RecipientsOutsideEEA: model.RecipientsNo,
		Retention:            model.RetentionOneToFive,
		RiskType:             []string{"compliance"},
		StorageLocation:      "shared drive",
		StorageFormat:        []string{model.StorageFormatDigital},
		DigitalStorageSecurity: []string{"acl", "backup"},
	}
}

// --- Тесты AssetRepository ---

func TestAssetCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewAssetRepository(pool)

	a := newAsset("UIS", false)
	a.IsComplete = a.ComputeComplete()

	// Create
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.CreatedAt.IsZero() || a.UpdatedAt.IsZero() {
		t.Error("Create должен заполнить CreatedAt/UpdatedAt")
	}

	// GetByID
	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != a.Name || got.Department != a.Department {
		t.Errorf("получен %+v, ожидался %+v", got, a)
	}
	if len(got.DataSubject) != 1 || got.DataSubject[0] != "students" {
		t.Errorf("DataSubject = %v", got.DataSubject)
	}
	if !got.IsComplete {
		t.Error("ожидался is_complete = true")
	}

	// Update
	got.Name = "Alumni records"
	got.DataSubject = []string{"alumni"}
	prevUpdated := got.UpdatedAt
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !got.UpdatedAt.After(prevUpdated) {
		t.Error("Update должен обновить UpdatedAt")
	}

	reread, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID после Update: %v", err)
	}
	if reread.Name != "Alumni records" {
		t.Errorf("Name = %q после обновления", reread.Name)
	}

	// SoftDelete
	if err := repo.SoftDelete(ctx, a.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if _, err := repo.GetByID(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("удалённый актив должен быть не найден, получено %v", err)
	}

	// Повторное удаление — no-op
	if err := repo.SoftDelete(ctx, a.ID); err != nil {
		t.Errorf("повторный SoftDelete должен быть no-op, получено %v", err)
	}

	// Несуществующий — ErrNotFound
	if err := repo.SoftDelete(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("SoftDelete несуществующего: ожидалась ErrNotFound, получено %v", err)
	}

	// Update удалённого — ErrNotFound
	if err := repo.Update(ctx, got); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update удалённого: ожидалась ErrNotFound, получено %v", err)
	}
}

func TestAssetList_Visibility(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewAssetRepository(pool)

	public := newAsset("UIS", false)
	privateUIS := newAsset("UIS", true)
	privateOther := newAsset("BOTOLPH", true)
	for _, a := range []*model.Asset{public, privateUIS, privateOther} {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	// Пользователь из UIS: видит public + privateUIS
	items, total, err := repo.List(ctx, Visibility{Institutions: []string{"UIS"}},
		ListParams{Limit: 100, Ordering: "created_at"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("total = %d, items = %d, ожидалось 2", total, len(items))
	}
	for _, a := range items {
		if a.ID == privateOther.ID {
			t.Error("приватный актив чужого подразделения попал в выборку")
		}
	}

	// Пользователь без подразделений: только неприватные
	items, total, err = repo.List(ctx, Visibility{}, ListParams{Limit: 100})
	if err != nil {
		t.Fatalf("List без подразделений: %v", err)
	}
	if total != 1 || items[0].ID != public.ID {
		t.Errorf("ожидался только публичный актив, total = %d", total)
	}
}

func TestAssetList_FiltersAndSearch(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewAssetRepository(pool)

	a1 := newAsset("UIS", false)
	a1.Name = "Payroll spreadsheet"
	a2 := newAsset("UIS", false)
	a2.Name = "Research dataset"
	a2.Purpose = model.PurposeResearch
	a2.PersonalData = false
	a3 := newAsset("BOTOLPH", false)
	a3.Name = "Alumni contacts"
	for _, a := range []*model.Asset{a1, a2, a3} {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	vis := Visibility{Institutions: []string{"UIS", "BOTOLPH"}}

	// Фильтр по подразделению
	dept := "UIS"
	_, total, err := repo.List(ctx, vis, ListParams{Department: &dept, Limit: 100})
	if err != nil {
		t.Fatalf("List department: %v", err)
	}
	if total != 2 {
		t.Errorf("department=UIS: total = %d, ожидалось 2", total)
	}

	// Фильтр по personal_data
	pd := false
	_, total, err = repo.List(ctx, vis, ListParams{PersonalData: &pd, Limit: 100})
	if err != nil {
		t.Fatalf("List personal_data: %v", err)
	}
	if total != 1 {
		t.Errorf("personal_data=false: total = %d, ожидался 1", total)
	}

	// Поиск (ILIKE, регистронезависимый)
	search := "payroll"
	items, total, err := repo.List(ctx, vis, ListParams{Search: &search, Limit: 100})
	if err != nil {
		t.Fatalf("List search: %v", err)
	}
	if total != 1 || items[0].ID != a1.ID {
		t.Errorf("search=payroll: total = %d", total)
	}

	// Пагинация
	items, total, err = repo.List(ctx, vis, ListParams{Limit: 2, Ordering: "name"})
	if err != nil {
		t.Fatalf("List pagination: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Errorf("limit=2: total = %d, items = %d", total, len(items))
	}
	if items[0].Name != "Alumni contacts" {
		t.Errorf("ordering=name: первый %q", items[0].Name)
	}

	// Сортировка по убыванию
	items, _, err = repo.List(ctx, vis, ListParams{Limit: 1, Ordering: "-name"})
	if err != nil {
		t.Fatalf("List ordering desc: %v", err)
	}
	if items[0].Name != "Research dataset" {
		t.Errorf("ordering=-name: первый %q", items[0].Name)
	}
}

func TestAssetStats(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewAssetRepository(pool)

	complete := newAsset("UIS", false)
	complete.IsComplete = complete.ComputeComplete()
	incomplete := newAsset("UIS", false)
	incomplete.Retention = ""
	noPD := newAsset("BOTOLPH", false)
	noPD.PersonalData = false
	noPD.IsComplete = noPD.ComputeComplete()
	deleted := newAsset("BOTOLPH", false)

	for _, a := range []*model.Asset{complete, incomplete, noPD, deleted} {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := repo.SoftDelete(ctx, deleted.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	// Удалённый актив не учитывается нигде
	if stats.TotalAssets != 3 {
		t.Errorf("TotalAssets = %d, ожидалось 3", stats.TotalAssets)
	}
	if stats.TotalAssetsCompleted != 2 {
		t.Errorf("TotalAssetsCompleted = %d, ожидалось 2", stats.TotalAssetsCompleted)
	}
	if stats.TotalAssetsPersonalData != 2 {
		t.Errorf("TotalAssetsPersonalData = %d, ожидалось 2", stats.TotalAssetsPersonalData)
	}

	// Сверка: каждая разбивка по подразделениям суммируется в свой итог
	sum := 0
	for _, dc := range stats.TotalAssetsDept {
		sum += dc.NumAssets
	}
	if sum != stats.TotalAssets {
		t.Errorf("сумма по подразделениям %d != TotalAssets %d", sum, stats.TotalAssets)
	}

	sum = 0
	for _, dc := range stats.TotalAssetsDeptCompleted {
		sum += dc.NumAssets
	}
	if sum != stats.TotalAssetsCompleted {
		t.Errorf("сумма заполненных по подразделениям %d != TotalAssetsCompleted %d",
			sum, stats.TotalAssetsCompleted)
	}

	sum = 0
	for _, dc := range stats.TotalAssetsDeptPersonalData {
		sum += dc.NumAssets
	}
	if sum != stats.TotalAssetsPersonalData {
		t.Errorf("сумма с перс. данными по подразделениям %d != TotalAssetsPersonalData %d",
			sum, stats.TotalAssetsPersonalData)
	}
}

// --- Тесты UserLookupRepository ---

func TestUserLookupRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserLookupRepository(pool)

	_, err := pool.Exec(ctx,
		`INSERT INTO user_lookups (username, scheme, identifier) VALUES ($1, $2, $3)`,
		"alice", "crsid", "abc123")
	if err != nil {
		t.Fatalf("INSERT user_lookups: %v", err)
	}

	link, err := repo.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if link.Scheme != "crsid" || link.Identifier != "abc123" {
		t.Errorf("получено %+v", link)
	}

	if _, err := repo.GetByUsername(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

// --- Unit-тесты построения SQL (без БД) ---

func TestBuildListWhere(t *testing.T) {
	vis := Visibility{Institutions: []string{"UIS"}}

	// Только видимость
	where, args := buildListWhere(vis, ListParams{})
	if !strings.Contains(where, "deleted_at IS NULL") {
		t.Errorf("WHERE не исключает удалённые: %s", where)
	}
	if !strings.Contains(where, "private = FALSE OR department = ANY($1)") {
		t.Errorf("WHERE не содержит фильтр видимости: %s", where)
	}
	if len(args) != 1 {
		t.Errorf("args = %d, ожидался 1", len(args))
	}

	// Фильтры добавляют условия и аргументы
	dept := "UIS"
	pd := true
	search := "payroll"
	where, args = buildListWhere(vis, ListParams{
		Department:   &dept,
		PersonalData: &pd,
		Search:       &search,
	})
	if !strings.Contains(where, "department = $2") {
		t.Errorf("WHERE без фильтра department: %s", where)
	}
	if !strings.Contains(where, "ILIKE") {
		t.Errorf("WHERE без поиска: %s", where)
	}
	if len(args) != 4 {
		t.Errorf("args = %d, ожидалось 4", len(args))
	}

	// Метасимволы LIKE в поиске трактуются буквально
	search = `100%_\done`
	_, args = buildListWhere(vis, ListParams{Search: &search})
	got, ok := args[len(args)-1].(string)
	if !ok {
		t.Fatalf("аргумент поиска не строка: %T", args[len(args)-1])
	}
	want := `%100\%\_\\done%`
	if got != want {
		t.Errorf("шаблон поиска %q, ожидался %q", got, want)
	}
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"payroll", "payroll"},
		{"100%", `100\%`},
		{"a_b", `a\_b`},
		{`c:\data`, `c:\\data`},
		{"", ""},
	}

	for _, tt := range tests {
		if got := escapeLike(tt.in); got != tt.want {
			t.Errorf("escapeLike(%q) = %q, ожидалось %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildOrderBy(t *testing.T) {
	tests := []struct {
		ordering string
		expected string
	}{
		{"", "ORDER BY created_at DESC"},
		{"-created_at", "ORDER BY created_at DESC"},
		{"created_at", "ORDER BY created_at ASC"},
		{"name", "ORDER BY name ASC"},
		{"-name", "ORDER BY name DESC"},
		{"department", "ORDER BY department ASC"},
		// Неизвестное поле — дефолтная сортировка (защита от инъекций)
		{"evil; DROP TABLE assets", "ORDER BY created_at DESC"},
		{"-unknown_column", "ORDER BY created_at DESC"},
	}

	for _, tt := range tests {
		t.Run(tt.ordering, func(t *testing.T) {
			if got := buildOrderBy(tt.ordering); got != tt.expected {
				t.Errorf("buildOrderBy(%q) = %q, ожидалось %q", tt.ordering, got, tt.expected)
			}
		})
	}
}
