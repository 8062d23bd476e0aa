// Пакет model — доменные модели реестра информационных активов.
package model

import (
	"time"
)

// Значения поля Purpose (назначение актива).
const (
	PurposeResearch              = "research"
	PurposeTeaching              = "teaching"
	PurposeStudentAdministration = "student_administration"
	PurposeStaffAdministration   = "staff_administration"
	PurposeAlumniSupporter       = "alumni_supporter"
	PurposeCommercial            = "commercial"
	PurposeCollaboration         = "collaboration"
	PurposeOther                 = "other"
)

// Значения полей RecipientsOutsideUni / RecipientsOutsideEEA.
const (
	RecipientsYes     = "yes"
	RecipientsNo      = "no"
	RecipientsNotSure = "not_sure"
)

// Значения поля Retention (срок хранения).
const (
	RetentionYearOrLess = "<=1"
	RetentionOneToFive  = ">1,<=5"
	RetentionFiveToTen  = ">5,<=10"
	RetentionTenOrMore  = ">10"
	RetentionForever    = "forever"
)

// Значения multi-select поля StorageFormat.
const (
	StorageFormatDigital = "digital"
	StorageFormatPaper   = "paper"
)

// Purposes — допустимые значения purpose.
var Purposes = []string{
	PurposeResearch, PurposeTeaching, PurposeStudentAdministration,
	PurposeStaffAdministration, PurposeAlumniSupporter,
	PurposeCommercial, PurposeCollaboration, PurposeOther,
}

// RecipientsChoices — допустимые значения recipients_outside_uni / _eea.
var RecipientsChoices = []string{RecipientsYes, RecipientsNo, RecipientsNotSure}

// Retentions — допустимые значения retention.
var Retentions = []string{
	RetentionYearOrLess, RetentionOneToFive, RetentionFiveToTen,
	RetentionTenOrMore, RetentionForever,
}

// DataSubjects — допустимые значения data_subject.
var DataSubjects = []string{
	"staff", "students", "alumni", "research_participants",
	"patients", "supporters", "public",
}

// DataCategories — допустимые значения data_category.
var DataCategories = []string{
	"education", "employment", "financial", "social", "biometric",
	"genetic", "health", "criminal", "ethnicity", "religious_beliefs",
	"political_opinions", "sexual_orientation", "trade_union_membership",
}

// RiskTypes — допустимые значения risk_type.
var RiskTypes = []string{
	"financial", "operational", "compliance", "reputational", "safety",
}

// StorageFormats — допустимые значения storage_format.
var StorageFormats = []string{StorageFormatDigital, StorageFormatPaper}

// PaperSecurityChoices — допустимые значения paper_storage_security.
var PaperSecurityChoices = []string{
	"locked_cabinet", "safe", "locked_room", "locked_building",
}

// DigitalSecurityChoices — допустимые значения digital_storage_security.
var DigitalSecurityChoices = []string{
	"pwd_controls", "acl", "backup", "encryption",
}

// Asset — запись реестра информационных активов.
// Физическое удаление не выполняется: DELETE выставляет DeletedAt,
// все запросы чтения по умолчанию исключают записи с ненулевым DeletedAt.
type Asset struct {
	// ID — UUID актива
	ID string `json:"id"`
	// Name — название актива
	Name string `json:"name"`
	// Department — идентификатор подразделения-владельца (instid из lookup)
	Department string `json:"department"`
	// Purpose — назначение (см. Purposes)
	Purpose string `json:"purpose"`
	// PurposeOther — уточнение, когда Purpose == "other"
	PurposeOther string `json:"purpose_other"`
	// Owner — ответственный за актив (CRSid)
	Owner string `json:"owner"`
	// Private — приватный актив виден только членам подразделения
	Private bool `json:"private"`
	// PersonalData — актив содержит персональные данные
	PersonalData bool `json:"personal_data"`
	// DataSubject — категории субъектов данных
	DataSubject []string `json:"data_subject"`
	// DataCategory — категории персональных данных
	DataCategory []string `json:"data_category"`
	// RecipientsOutsideUni — передаются ли данные за пределы университета
	RecipientsOutsideUni string `json:"recipients_outside_uni"`
	// RecipientsOutsideUniDescription — описание получателей вне университета
	RecipientsOutsideUniDescription string `json:"recipients_outside_uni_description"`
	// RecipientsOutsideEEA — передаются ли данные за пределы ЕЭЗ
	RecipientsOutsideEEA string `json:"recipients_outside_eea"`
	// RecipientsOutsideEEADescription — описание получателей вне ЕЭЗ
	RecipientsOutsideEEADescription string `json:"recipients_outside_eea_description"`
	// Retention — срок хранения (см. Retentions)
	Retention string `json:"retention"`
	// RiskType — типы рисков при утрате/утечке
	RiskType []string `json:"risk_type"`
	// RiskTypeAdditional — дополнительное описание рисков
	RiskTypeAdditional string `json:"risk_type_additional"`
	// StorageLocation — место хранения (свободный текст)
	StorageLocation string `json:"storage_location"`
	// StorageFormat — форматы хранения (digital, paper)
	StorageFormat []string `json:"storage_format"`
	// PaperStorageSecurity — меры защиты бумажного хранения
	PaperStorageSecurity []string `json:"paper_storage_security"`
	// DigitalStorageSecurity — меры защиты цифрового хранения
	DigitalStorageSecurity []string `json:"digital_storage_security"`
	// IsComplete — запись заполнена полностью (вычисляется при записи)
	IsComplete bool `json:"is_complete"`
	// CreatedAt — время создания записи
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time `json:"updated_at"`
	// DeletedAt — время soft delete (nil — запись активна).
	// Не сериализуется в API-ответах.
	DeletedAt *time.Time `json:"-"`
}

// ComputeComplete вычисляет флаг полноты записи.
// Запись полна, когда заполнены все поля, необходимые для оценки
// соответствия требованиям защиты данных. Вызывается сервисным слоем
// при каждом create/update — хранится денормализованно для фильтрации
// и статистики.
func (a *Asset) ComputeComplete() bool {
	if a.Name == "" || a.Department == "" || a.Purpose == "" {
		return false
	}
	// Уточнение обязательно для назначения "other"
	if a.Purpose == PurposeOther && a.PurposeOther == "" {
		return false
	}
	// Для исследовательских активов ответственный определяется грантом,
	// для остальных owner обязателен
	if a.Purpose != PurposeResearch && a.Owner == "" {
		return false
	}
	if a.Retention == "" {
		return false
	}
	// Блок персональных данных
	if a.PersonalData && (len(a.DataSubject) == 0 || len(a.DataCategory) == 0) {
		return false
	}
	// Ответы о получателях + описания при ответе "yes"
	if a.RecipientsOutsideUni == "" || a.RecipientsOutsideEEA == "" {
		return false
	}
	if a.RecipientsOutsideUni == RecipientsYes && a.RecipientsOutsideUniDescription == "" {
		return false
	}
	if a.RecipientsOutsideEEA == RecipientsYes && a.RecipientsOutsideEEADescription == "" {
		return false
	}
	// Хранение: местоположение, форматы и меры защиты для каждого формата
	if a.StorageLocation == "" || len(a.StorageFormat) == 0 {
		return false
	}
	for _, f := range a.StorageFormat {
		switch f {
		case StorageFormatPaper:
			if len(a.PaperStorageSecurity) == 0 {
				return false
			}
		case StorageFormatDigital:
			if len(a.DigitalStorageSecurity) == 0 {
				return false
			}
		}
	}
	return true
}

// IsDeleted возвращает true, если запись помечена удалённой.
func (a *Asset) IsDeleted() bool {
	return a.DeletedAt != nil
}
