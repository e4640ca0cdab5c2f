package entity

import "time"

// Subject представляет предмет (например, «Математика»).
// Пул предмета — все опубликованные вопросы его тем.
type Subject struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName задает имя таблицы для GORM.
func (Subject) TableName() string {
	return "subjects"
}

// Topic представляет тему внутри предмета. Для движка подбора тема —
// это ключ группировки: её неявный пул = все опубликованные вопросы темы.
type Topic struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SubjectID uint      `gorm:"not null;index" json:"subject_id"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName задает имя таблицы для GORM.
func (Topic) TableName() string {
	return "topics"
}
