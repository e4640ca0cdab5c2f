package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized используется для ошибок авторизации (неверный токен, нет прав).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrStoreUnavailable используется, когда хранилище вопросов недоступно.
	// Подбор не подставляет запасные данные: ошибка отдаётся вызывающему.
	ErrStoreUnavailable = errors.New("question store unavailable")
)
