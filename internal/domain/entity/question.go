package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Difficulty — уровень сложности вопроса.
// Пустое значение означает, что сложность не размечена.
type Difficulty string

const (
	DifficultyEasy    Difficulty = "easy"
	DifficultyMedium  Difficulty = "medium"
	DifficultyHard    Difficulty = "hard"
	DifficultyUnknown Difficulty = ""
)

// DefaultExamType — тип экзамена по умолчанию для вопросов без привязки к конкретной экзаменационной комиссии
const DefaultExamType = "General"

// StringArray - пользовательский тип для работы с JSONB
type StringArray []string

// Scan реализует интерфейс sql.Scanner для StringArray
// Используется GORM для чтения JSONB данных из базы
func (o *StringArray) Scan(value interface{}) error {
	// Обработка NULL значений из базы данных
	if value == nil {
		*o = StringArray{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	if len(bytes) == 0 {
		*o = StringArray{}
		return nil
	}

	return json.Unmarshal(bytes, o)
}

// Value реализует интерфейс driver.Valuer для StringArray
// Используется GORM для записи StringArray в JSONB в базе
func (o StringArray) Value() (driver.Value, error) {
	if len(o) == 0 {
		return []byte("[]"), nil // Возвращаем пустой JSON массив вместо null
	}
	return json.Marshal(o)
}

// Question представляет вопрос из банка практических заданий.
// С точки зрения движка подбора вопрос неизменяем: движок только читает.
type Question struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	TopicID       uint        `gorm:"not null;index" json:"topic_id"`
	SubjectID     uint        `gorm:"not null;index" json:"subject_id"`
	Text          string      `gorm:"size:2000;not null" json:"text"`
	Options       StringArray `gorm:"type:jsonb;not null" json:"options"`
	CorrectOption int         `gorm:"not null" json:"-"` // Скрыто от клиента
	Difficulty    Difficulty  `gorm:"size:16;index" json:"difficulty"`
	ExamType      string      `gorm:"size:64;not null;default:'General'" json:"exam_type"`
	IsPublished   bool        `gorm:"not null;default:false;index" json:"is_published"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Question) TableName() string {
	return "questions"
}

// ExamTypeOrDefault возвращает тип экзамена, подставляя "General" для пустых значений
func (q *Question) ExamTypeOrDefault() string {
	if q.ExamType == "" {
		return DefaultExamType
	}
	return q.ExamType
}

// IsValidOption проверяет, является ли выбранный вариант допустимым
func (q *Question) IsValidOption(selectedOption int) bool {
	return selectedOption >= 0 && selectedOption < len(q.Options)
}
