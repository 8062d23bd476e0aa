package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bigkaa/assetregister/internal/api/middleware"
	"github.com/bigkaa/assetregister/internal/domain/model"
	"github.com/bigkaa/assetregister/internal/lookup"
	"github.com/bigkaa/assetregister/internal/repository"
	"github.com/bigkaa/assetregister/internal/service"
)

const testMembersGroup = "uis-iar-users"

// memAssetRepo — in-memory реализация AssetRepository для HTTP-тестов.
type memAssetRepo struct {
	assets map[string]*model.Asset
}

func newMemAssetRepo() *memAssetRepo {
	return &memAssetRepo{assets: map[string]*model.Asset{}}
}

func (m *memAssetRepo) Create(_ context.Context, a *model.Asset) error {
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	clone := *a
	m.assets[a.ID] = &clone
	return nil
}

func (m *memAssetRepo) GetByID(_ context.Context, id string) (*model.Asset, error) {
	a, ok := m.assets[id]
	if !ok || a.IsDeleted() {
		return nil, repository.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (m *memAssetRepo) List(_ context.Context, vis repository.Visibility, _ repository.ListParams) ([]*model.Asset, int, error) {
	var items []*model.Asset
	for _, a := range m.assets {
		if a.IsDeleted() {
			continue
		}
		if a.Private {
			seen := false
			for _, inst := range vis.Institutions {
				if inst == a.Department {
					seen = true
					break
				}
			}
			if !seen {
				continue
			}
		}
		clone := *a
		items = append(items, &clone)
	}
	return items, len(items), nil
}

func (m *memAssetRepo) Update(_ context.Context, a *model.Asset) error {
	existing, ok := m.assets[a.ID]
	if !ok || existing.IsDeleted() {
		return repository.ErrNotFound
	}
	a.UpdatedAt = time.Now()
	clone := *a
	m.assets[a.ID] = &clone
	return nil
}

func (m *memAssetRepo) SoftDelete(_ context.Context, id string) error {
	a, ok := m.assets[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !a.IsDeleted() {
		now := time.Now()
		a.DeletedAt = &now
	}
	return nil
}

func (m *memAssetRepo) Stats(_ context.Context) (*repository.Stats, error) {
	stats := &repository.Stats{}
	for _, a := range m.assets {
		if a.IsDeleted() {
			continue
		}
		stats.TotalAssets++
		if a.IsComplete {
			stats.TotalAssetsCompleted++
		}
		if a.PersonalData {
			stats.TotalAssetsPersonalData++
		}
	}
	return stats, nil
}

// stubPersons — источник identity с фиксированными пользователями.
type stubPersons struct {
	err error
}

func (s *stubPersons) GetPersonForUser(_ context.Context, username string) (*model.Person, error) {
	if s.err != nil {
		return nil, s.err
	}
	switch username {
	case "member":
		return &model.Person{
			Groups:       []model.Group{{Name: testMembersGroup}},
			Institutions: []model.Institution{{InstID: "UIS"}},
		}, nil
	case "outsider":
		return &model.Person{}, nil
	default:
		return nil, lookup.ErrNoLinkedIdentity
	}
}

func handlerTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testUserMiddleware подставляет claims из заголовка X-Test-User.
// Тестовая замена JWT middleware.
func testUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if username := r.Header.Get("X-Test-User"); username != "" {
			claims := &middleware.AuthClaims{Username: username}
			r = r.WithContext(context.WithValue(r.Context(), middleware.ContextKeyClaims, claims))
		}
		next.ServeHTTP(w, r)
	})
}

// newTestRouter собирает роутер /assets поверх in-memory репозитория.
func newTestRouter(repo repository.AssetRepository, persons service.PersonSource) chi.Router {
	logger := handlerTestLogger()
	svc := service.NewAssetService(repo, persons, testMembersGroup, nil,
		service.NewAuditLogger(logger), logger)
	h := NewAssetHandler(svc, logger)

	router := chi.NewRouter()
	router.Use(testUserMiddleware)
	router.Use(middleware.Actor())
	router.Get("/assets", h.List)
	router.Post("/assets", h.Create)
	router.Get("/assets/stats", h.Stats)
	router.Get("/assets/{id}", h.Get)
	router.Put("/assets/{id}", h.Put)
	router.Patch("/assets/{id}", h.Patch)
	router.Delete("/assets/{id}", h.Delete)
	return router
}

// doRequest выполняет запрос от имени пользователя.
func doRequest(router chi.Router, method, path, username string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		data, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, reqBody)
	if username != "" {
		req.Header.Set("X-Test-User", username)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// errorCode извлекает машиночитаемый код из тела ошибки.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("не удалось разобрать тело ошибки: %v, тело: %s", err, rec.Body.String())
	}
	return body.Error.Code
}

func TestAssetsAPI_CreateAndGet(t *testing.T) {
	router := newTestRouter(newMemAssetRepo(), &stubPersons{})

	rec := doRequest(router, http.MethodPost, "/assets", "member", map[string]any{
		"name":       "Staff records",
		"department": "UIS",
		"private":    true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /assets: статус %d, тело %s", rec.Code, rec.Body.String())
	}

	var created model.Asset
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if created.ID == "" {
		t.Error("id не заполнен")
	}
	if _, err := uuid.Parse(created.ID); err != nil {
		t.Errorf("id не UUID: %q", created.ID)
	}
	if created.IsComplete {
		t.Error("неполная запись не должна иметь is_complete = true")
	}

	rec = doRequest(router, http.MethodGet, "/assets/"+created.ID, "member", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /assets/{id}: статус %d", rec.Code)
	}
}

func TestAssetsAPI_ListEnvelope(t *testing.T) {
	router := newTestRouter(newMemAssetRepo(), &stubPersons{})

	doRequest(router, http.MethodPost, "/assets", "member", map[string]any{
		"name": "A", "department": "UIS",
	})

	rec := doRequest(router, http.MethodGet, "/assets?limit=10", "member", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /assets: статус %d", rec.Code)
	}

	var page struct {
		Items   []json.RawMessage `json:"items"`
		Total   int               `json:"total"`
		Limit   int               `json:"limit"`
		Offset  int               `json:"offset"`
		HasMore bool              `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("разбор ответа: %v, тело: %s", err, rec.Body.String())
	}
	if page.Total != 1 || len(page.Items) != 1 {
		t.Errorf("total = %d, items = %d", page.Total, len(page.Items))
	}
	if page.Limit != 10 {
		t.Errorf("limit = %d, ожидалось 10", page.Limit)
	}
	if page.HasMore {
		t.Error("has_more должен быть false")
	}
}

func TestAssetsAPI_NonMemberGetsEmptyList(t *testing.T) {
	router := newTestRouter(newMemAssetRepo(), &stubPersons{})

	doRequest(router, http.MethodPost, "/assets", "member", map[string]any{
		"name": "A", "department": "UIS",
	})

	rec := doRequest(router, http.MethodGet, "/assets", "outsider", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /assets: статус %d", rec.Code)
	}
	var page struct {
		Items []json.RawMessage `json:"items"`
		Total int               `json:"total"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &page)
	if page.Total != 0 || len(page.Items) != 0 {
		t.Errorf("не-член группы видит активы: total = %d", page.Total)
	}
}

func TestAssetsAPI_ValidationErrors(t *testing.T) {
	router := newTestRouter(newMemAssetRepo(), &stubPersons{})

	// Некорректный UUID
	rec := doRequest(router, http.MethodGet, "/assets/not-a-uuid", "member", nil)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "VALIDATION_ERROR" {
		t.Errorf("невалидный UUID: статус %d, код %s", rec.Code, errorCode(t, rec))
	}

	// Некорректный enum
	rec = doRequest(router, http.MethodPost, "/assets", "member", map[string]any{
		"name": "A", "department": "UIS", "purpose": "world-domination",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("невалидный purpose: статус %d", rec.Code)
	}

	// Некорректный булев параметр
	rec = doRequest(router, http.MethodGet, "/assets?private=banana", "member", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("невалидный private: статус %d", rec.Code)
	}
}

func TestAssetsAPI_NotFound(t *testing.T) {
	router := newTestRouter(newMemAssetRepo(), &stubPersons{})

	rec := doRequest(router, http.MethodGet, "/assets/"+uuid.NewString(), "member", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("статус %d, ожидался 404", rec.Code)
	}
	if errorCode(t, rec) != "NOT_FOUND" {
		t.Errorf("код %s, ожидался NOT_FOUND", errorCode(t, rec))
	}
}

func TestAssetsAPI_ForbiddenCreate(t *testing.T) {
	router := newTestRouter(newMemAssetRepo(), &stubPersons{})

	// Чужое подразделение
	rec := doRequest(router, http.MethodPost, "/assets", "member", map[string]any{
		"name": "A", "department": "BOTOLPH",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("чужое подразделение: статус %d, ожидался 403", rec.Code)
	}

	// Пользователь без привязанной identity
	rec = doRequest(router, http.MethodPost, "/assets", "nobody", map[string]any{
		"name": "A", "department": "UIS",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("нет identity: статус %d, ожидался 403", rec.Code)
	}
}

func TestAssetsAPI_PatchMergesFields(t *testing.T) {
	router := newTestRouter(newMemAssetRepo(), &stubPersons{})

	rec := doRequest(router, http.MethodPost, "/assets", "member", map[string]any{
		"name":       "Old name",
		"department": "UIS",
		"retention":  model.RetentionForever,
	})
	var created model.Asset
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	// PATCH меняет только name
	rec = doRequest(router, http.MethodPatch, "/assets/"+created.ID, "member", map[string]any{
		"name": "New name",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("PATCH: статус %d, тело %s", rec.Code, rec.Body.String())
	}

	var patched model.Asset
	_ = json.Unmarshal(rec.Body.Bytes(), &patched)
	if patched.Name != "New name" {
		t.Errorf("name = %q", patched.Name)
	}
	if patched.Department != "UIS" || patched.Retention != model.RetentionForever {
		t.Errorf("нетронутые поля потеряны: department = %q, retention = %q",
			patched.Department, patched.Retention)
	}
}

func TestAssetsAPI_DeleteIdempotent(t *testing.T) {
	router := newTestRouter(newMemAssetRepo(), &stubPersons{})

	rec := doRequest(router, http.MethodPost, "/assets", "member", map[string]any{
		"name": "A", "department": "UIS",
	})
	var created model.Asset
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doRequest(router, http.MethodDelete, "/assets/"+created.ID, "member", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE: статус %d", rec.Code)
	}

	// Повторное удаление — тоже 204
	rec = doRequest(router, http.MethodDelete, "/assets/"+created.ID, "member", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("повторный DELETE: статус %d, ожидался 204", rec.Code)
	}

	// Удалённый не читается
	rec = doRequest(router, http.MethodGet, "/assets/"+created.ID, "member", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET удалённого: статус %d, ожидался 404", rec.Code)
	}
}

func TestAssetsAPI_Stats(t *testing.T) {
	router := newTestRouter(newMemAssetRepo(), &stubPersons{})

	doRequest(router, http.MethodPost, "/assets", "member", map[string]any{
		"name": "A", "department": "UIS", "personal_data": true,
		"data_subject": []string{"staff"}, "data_category": []string{"employment"},
	})

	rec := doRequest(router, http.MethodGet, "/assets/stats", "member", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /assets/stats: статус %d", rec.Code)
	}

	var stats repository.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if stats.TotalAssets != 1 || stats.TotalAssetsPersonalData != 1 {
		t.Errorf("stats = %+v", stats)
	}

	// Не-член группы — 403
	rec = doRequest(router, http.MethodGet, "/assets/stats", "outsider", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("stats для не-члена: статус %d, ожидался 403", rec.Code)
	}
}

func TestAssetsAPI_LookupUnavailable(t *testing.T) {
	router := newTestRouter(newMemAssetRepo(),
		&stubPersons{err: &lookup.UpstreamError{StatusCode: 503, Body: "down"}})

	rec := doRequest(router, http.MethodGet, "/assets", "member", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("статус %d, ожидался 502", rec.Code)
	}
	if errorCode(t, rec) != "LOOKUP_UNAVAILABLE" {
		t.Errorf("код %s, ожидался LOOKUP_UNAVAILABLE", errorCode(t, rec))
	}
}
