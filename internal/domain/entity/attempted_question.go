package entity

import "time"

// AttemptedQuestion хранит факт того, что вопрос уже был выдан пользователю
// в рамках предмета. Это журнал потребления пула, а не ответы пользователя.
// Уникальность по (user_id, subject_id, question_id): повторная запись
// той же тройки идемпотентна.
type AttemptedQuestion struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_attempted_user_subject_question,priority:1;index:idx_attempted_user_subject,priority:1" json:"user_id"`
	SubjectID  uint      `gorm:"not null;uniqueIndex:idx_attempted_user_subject_question,priority:2;index:idx_attempted_user_subject,priority:2" json:"subject_id"`
	QuestionID uint      `gorm:"not null;uniqueIndex:idx_attempted_user_subject_question,priority:3" json:"question_id"`
	FirstSeen  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"first_seen"`
}

// TableName задает имя таблицы для GORM.
func (AttemptedQuestion) TableName() string {
	return "attempted_questions"
}
