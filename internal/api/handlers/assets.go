// assets.go — HTTP-обработчики ресурса /assets.
//
// GET    /assets        — список с фильтрами, поиском и сортировкой
// POST   /assets        — создание
// GET    /assets/{id}   — чтение
// PUT    /assets/{id}   — полная замена
// PATCH  /assets/{id}   — частичное обновление (слияние с текущим состоянием)
// DELETE /assets/{id}   — soft delete (идемпотентно)
// GET    /assets/stats  — агрегированная статистика
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/assetregister/internal/api/errors"
	"github.com/bigkaa/assetregister/internal/api/middleware"
	"github.com/bigkaa/assetregister/internal/domain/model"
	"github.com/bigkaa/assetregister/internal/repository"
	"github.com/bigkaa/assetregister/internal/service"
)

// AssetHandler — обработчики ресурса /assets.
type AssetHandler struct {
	assets *service.AssetService
	logger *slog.Logger
}

// NewAssetHandler создаёт обработчик ресурса /assets.
func NewAssetHandler(assets *service.AssetService, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{
		assets: assets,
		logger: logger.With(slog.String("component", "asset_handler")),
	}
}

// assetBody — тело запроса создания/обновления актива.
// Отдельный тип: клиент не управляет id, is_complete и временными метками.
type assetBody struct {
	Name                            string   `json:"name"`
	Department                      string   `json:"department"`
	Purpose                         string   `json:"purpose"`
	PurposeOther                    string   `json:"purpose_other"`
	Owner                           string   `json:"owner"`
	Private                         bool     `json:"private"`
	PersonalData                    bool     `json:"personal_data"`
	DataSubject                     []string `json:"data_subject"`
	DataCategory                    []string `json:"data_category"`
	RecipientsOutsideUni            string   `json:"recipients_outside_uni"`
	RecipientsOutsideUniDescription string   `json:"recipients_outside_uni_description"`
	RecipientsOutsideEEA            string   `json:"recipients_outside_eea"`
	RecipientsOutsideEEADescription string   `json:"recipients_outside_eea_description"`
	Retention                       string   `json:"retention"`
	RiskType                        []string `json:"risk_type"`
	RiskTypeAdditional              string   `json:"risk_type_additional"`
	StorageLocation                 string   `json:"storage_location"`
	StorageFormat                   []string `json:"storage_format"`
	PaperStorageSecurity            []string `json:"paper_storage_security"`
	DigitalStorageSecurity          []string `json:"digital_storage_security"`
}

// toAsset переносит поля тела запроса в доменную модель.
func (b *assetBody) toAsset() *model.Asset {
	return &model.Asset{
		Name:                            b.Name,
		Department:                      b.Department,
		Purpose:                         b.Purpose,
		PurposeOther:                    b.PurposeOther,
		Owner:                           b.Owner,
		Private:                         b.Private,
		PersonalData:                    b.PersonalData,
		DataSubject:                     b.DataSubject,
		DataCategory:                    b.DataCategory,
		RecipientsOutsideUni:            b.RecipientsOutsideUni,
		RecipientsOutsideUniDescription: b.RecipientsOutsideUniDescription,
		RecipientsOutsideEEA:            b.RecipientsOutsideEEA,
		RecipientsOutsideEEADescription: b.RecipientsOutsideEEADescription,
		Retention:                       b.Retention,
		RiskType:                        b.RiskType,
		RiskTypeAdditional:              b.RiskTypeAdditional,
		StorageLocation:                 b.StorageLocation,
		StorageFormat:                   b.StorageFormat,
		PaperStorageSecurity:            b.PaperStorageSecurity,
		DigitalStorageSecurity:          b.DigitalStorageSecurity,
	}
}

// fromAsset заполняет тело из доменной модели (основа слияния для PATCH).
func fromAsset(a *model.Asset) assetBody {
	return assetBody{
		Name:                            a.Name,
		Department:                      a.Department,
		Purpose:                         a.Purpose,
		PurposeOther:                    a.PurposeOther,
		Owner:                           a.Owner,
		Private:                         a.Private,
		PersonalData:                    a.PersonalData,
		DataSubject:                     a.DataSubject,
		DataCategory:                    a.DataCategory,
		RecipientsOutsideUni:            a.RecipientsOutsideUni,
		RecipientsOutsideUniDescription: a.RecipientsOutsideUniDescription,
		RecipientsOutsideEEA:            a.RecipientsOutsideEEA,
		RecipientsOutsideEEADescription: a.RecipientsOutsideEEADescription,
		Retention:                       a.Retention,
		RiskType:                        a.RiskType,
		RiskTypeAdditional:              a.RiskTypeAdditional,
		StorageLocation:                 a.StorageLocation,
		StorageFormat:                   a.StorageFormat,
		PaperStorageSecurity:            a.PaperStorageSecurity,
		DigitalStorageSecurity:          a.DigitalStorageSecurity,
	}
}

// List — GET /assets.
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	params, ok := parseListParams(w, r)
	if !ok {
		return
	}

	username := middleware.UsernameFromContext(r.Context())
	page, err := h.assets.List(r.Context(), username, params)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// Get — GET /assets/{id}.
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(w, r)
	if !ok {
		return
	}

	username := middleware.UsernameFromContext(r.Context())
	a, err := h.assets.Get(r.Context(), username, id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// Create — POST /assets.
func (h *AssetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body assetBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	username := middleware.UsernameFromContext(r.Context())
	created, err := h.assets.Create(r.Context(), username, body.toAsset())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// Put — PUT /assets/{id}. Полная замена изменяемых полей.
func (h *AssetHandler) Put(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(w, r)
	if !ok {
		return
	}

	var body assetBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	username := middleware.UsernameFromContext(r.Context())
	updated, err := h.assets.Update(r.Context(), username, id, body.toAsset())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// Patch — PATCH /assets/{id}. Частичное обновление: поля, отсутствующие
// в теле запроса, сохраняют текущие значения (слияние JSON поверх
// текущего состояния).
func (h *AssetHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(w, r)
	if !ok {
		return
	}

	username := middleware.UsernameFromContext(r.Context())

	// Текущее состояние с учётом видимости
	existing, err := h.assets.Get(r.Context(), username, id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	// Декодируем тело поверх текущих значений: нетронутые поля остаются
	body := fromAsset(existing)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	updated, err := h.assets.Update(r.Context(), username, id, body.toAsset())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// Delete — DELETE /assets/{id}. Идемпотентно: повторное удаление — 204.
func (h *AssetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(w, r)
	if !ok {
		return
	}

	username := middleware.UsernameFromContext(r.Context())
	if err := h.assets.Delete(r.Context(), username, id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stats — GET /assets/stats.
func (h *AssetHandler) Stats(w http.ResponseWriter, r *http.Request) {
	username := middleware.UsernameFromContext(r.Context())
	stats, err := h.assets.Stats(r.Context(), username)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// assetID извлекает и проверяет UUID актива из пути.
func assetID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		apierrors.ValidationError(w, "Некорректный UUID актива: "+id)
		return "", false
	}
	return id, true
}

// parseListParams разбирает query-параметры списка активов.
// При некорректных значениях пишет 400 и возвращает ok=false.
func parseListParams(w http.ResponseWriter, r *http.Request) (repository.ListParams, bool) {
	q := r.URL.Query()
	params := repository.ListParams{
		Ordering: q.Get("ordering"),
	}

	// Строковые фильтры
	for name, dst := range map[string]**string{
		"department":             &params.Department,
		"purpose":                &params.Purpose,
		"owner":                  &params.Owner,
		"recipients_outside_uni": &params.RecipientsOutsideUni,
		"recipients_outside_eea": &params.RecipientsOutsideEEA,
		"retention":              &params.Retention,
		"search":                 &params.Search,
	} {
		if q.Has(name) {
			v := q.Get(name)
			*dst = &v
		}
	}

	// Булевы фильтры
	for name, dst := range map[string]**bool{
		"private":       &params.Private,
		"personal_data": &params.PersonalData,
		"is_complete":   &params.IsComplete,
	} {
		if q.Has(name) {
			v, err := strconv.ParseBool(q.Get(name))
			if err != nil {
				apierrors.ValidationError(w, "Параметр "+name+" должен быть булевым")
				return params, false
			}
			*dst = &v
		}
	}

	// Пагинация
	var limit, offset *int
	for name, dst := range map[string]**int{
		"limit":  &limit,
		"offset": &offset,
	} {
		if q.Has(name) {
			v, err := strconv.Atoi(q.Get(name))
			if err != nil {
				apierrors.ValidationError(w, "Параметр "+name+" должен быть целым числом")
				return params, false
			}
			*dst = &v
		}
	}
	params.Limit, params.Offset = paginationDefaults(limit, offset)

	return params, true
}
