package repository

// AttemptedRepository определяет методы для журнала выданных вопросов
// аутентифицированных пользователей. Ключ записи — (user_id, subject_id,
// question_id); повторная запись существующей тройки не является ошибкой.
type AttemptedRepository interface {
	// GetAttemptedIDs возвращает ID всех вопросов, уже выданных пользователю по предмету
	GetAttemptedIDs(userID, subjectID uint) ([]uint, error)

	// Record идемпотентно записывает выданные вопросы (upsert, не blind insert)
	Record(userID, subjectID uint, questionIDs []uint) error

	// Reset удаляет записи ровно одной пары (user, subject) и возвращает количество удалённых
	Reset(userID, subjectID uint) (int64, error)

	// CountAttempted возвращает количество выданных вопросов пары (user, subject)
	CountAttempted(userID, subjectID uint) (int64, error)
}

// AttemptLedger — журнал выданных вопросов, привязанный к конкретной
// личности (пользователь или гостевое устройство). Оркестратор выбирает
// реализацию по наличию идентификатора пользователя, остальной код
// не различает два режима.
type AttemptLedger interface {
	AttemptedIDs(subjectID uint) ([]uint, error)
	Record(subjectID uint, questionIDs []uint) error
	Reset(subjectID uint) (int64, error)
	CountAttempted(subjectID uint) (int64, error)
}
