package postgres

import (
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourusername/practice-api/internal/domain/entity"
)

// AttemptedRepo реализует repository.AttemptedRepository поверх PostgreSQL.
// Единственный писатель состояния «вопрос уже выдавался» для
// аутентифицированных пользователей.
type AttemptedRepo struct {
	db *gorm.DB
}

// NewAttemptedRepo создает новый репозиторий журнала выданных вопросов
func NewAttemptedRepo(db *gorm.DB) *AttemptedRepo {
	return &AttemptedRepo{db: db}
}

// GetAttemptedIDs возвращает ID вопросов, уже выданных пользователю по предмету
func (r *AttemptedRepo) GetAttemptedIDs(userID, subjectID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&entity.AttemptedQuestion{}).
		Where("user_id = ? AND subject_id = ?", userID, subjectID).
		Pluck("question_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Record идемпотентно записывает выданные вопросы.
// Основной путь — пакетный upsert через ON CONFLICT DO NOTHING: конкурентные
// записи одной и той же тройки (user, subject, question) не конфликтуют и не
// дублируются. Если пакетный upsert не прошёл, пишем по одной записи через
// FirstOrCreate — итоговое состояние таблицы то же самое.
func (r *AttemptedRepo) Record(userID, subjectID uint, questionIDs []uint) error {
	if len(questionIDs) == 0 {
		return nil
	}

	now := time.Now()
	records := make([]entity.AttemptedQuestion, len(questionIDs))
	for i, qid := range questionIDs {
		records[i] = entity.AttemptedQuestion{
			UserID:     userID,
			SubjectID:  subjectID,
			QuestionID: qid,
			FirstSeen:  now,
		}
	}

	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "subject_id"}, {Name: "question_id"}},
		DoNothing: true,
	}).Create(&records).Error
	if err == nil {
		return nil
	}

	log.Printf("[AttemptedRepo] Пакетный upsert не прошёл (user=%d, subject=%d): %v. Переходим на построчную запись.",
		userID, subjectID, err)

	// Fallback: та же семантика, но по одной записи
	for _, qid := range questionIDs {
		record := entity.AttemptedQuestion{
			UserID:     userID,
			SubjectID:  subjectID,
			QuestionID: qid,
			FirstSeen:  now,
		}
		if err := r.db.
			Where("user_id = ? AND subject_id = ? AND question_id = ?", userID, subjectID, qid).
			FirstOrCreate(&record).Error; err != nil {
			return err
		}
	}
	return nil
}

// Reset удаляет записи ровно одной пары (user, subject).
// Возвращает количество удалённых строк.
func (r *AttemptedRepo) Reset(userID, subjectID uint) (int64, error) {
	result := r.db.
		Where("user_id = ? AND subject_id = ?", userID, subjectID).
		Delete(&entity.AttemptedQuestion{})
	return result.RowsAffected, result.Error
}

// CountAttempted возвращает количество выданных вопросов пары (user, subject)
func (r *AttemptedRepo) CountAttempted(userID, subjectID uint) (int64, error) {
	var count int64
	err := r.db.Model(&entity.AttemptedQuestion{}).
		Where("user_id = ? AND subject_id = ?", userID, subjectID).
		Count(&count).Error
	return count, err
}
