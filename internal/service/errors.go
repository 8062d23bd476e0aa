// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — актив не найден или не виден пользователю.
	ErrNotFound = errors.New("актив не найден")
	// ErrForbidden — у пользователя нет прав на операцию.
	ErrForbidden = errors.New("операция запрещена")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
)
