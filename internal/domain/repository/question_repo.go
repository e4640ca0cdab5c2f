package repository

import (
	"github.com/yourusername/practice-api/internal/domain/entity"
)

// QuestionRepository определяет методы чтения банка вопросов.
// Движок подбора никогда не изменяет сами вопросы.
type QuestionRepository interface {
	GetByID(id uint) (*entity.Question, error)

	// GetPublishedByTopic возвращает все опубликованные вопросы темы.
	// Это полный пул темы; фильтрация по уже выданным происходит выше.
	GetPublishedByTopic(topicID uint) ([]entity.Question, error)

	// CountPublishedBySubject возвращает размер пула предмета
	// (количество опубликованных вопросов по всем темам предмета)
	CountPublishedBySubject(subjectID uint) (int64, error)

	// GetTopicsBySubject возвращает темы предмета
	GetTopicsBySubject(subjectID uint) ([]entity.Topic, error)
}
