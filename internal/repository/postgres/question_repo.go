package postgres

import (
	"errors"

	"gorm.io/gorm"

	"github.com/yourusername/practice-api/internal/domain/entity"
	apperrors "github.com/yourusername/practice-api/internal/pkg/errors"
)

// QuestionRepo реализует repository.QuestionRepository
type QuestionRepo struct {
	db *gorm.DB
}

// NewQuestionRepo создает новый репозиторий вопросов
func NewQuestionRepo(db *gorm.DB) *QuestionRepo {
	return &QuestionRepo{db: db}
}

// GetByID возвращает вопрос по ID
func (r *QuestionRepo) GetByID(id uint) (*entity.Question, error) {
	var question entity.Question
	err := r.db.First(&question, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &question, nil
}

// GetPublishedByTopic возвращает полный пул опубликованных вопросов темы.
// Порядок стабильный (по id); перемешивание — забота селектора, а не базы.
func (r *QuestionRepo) GetPublishedByTopic(topicID uint) ([]entity.Question, error) {
	var questions []entity.Question
	err := r.db.
		Where("topic_id = ? AND is_published = ?", topicID, true).
		Order("id").
		Find(&questions).Error
	if err != nil {
		return nil, err
	}
	return questions, nil
}

// CountPublishedBySubject возвращает размер пула предмета
func (r *QuestionRepo) CountPublishedBySubject(subjectID uint) (int64, error) {
	var count int64
	err := r.db.Model(&entity.Question{}).
		Where("subject_id = ? AND is_published = ?", subjectID, true).
		Count(&count).Error
	return count, err
}

// GetTopicsBySubject возвращает все темы предмета
func (r *QuestionRepo) GetTopicsBySubject(subjectID uint) ([]entity.Topic, error) {
	var topics []entity.Topic
	err := r.db.Where("subject_id = ?", subjectID).Order("id").Find(&topics).Error
	if err != nil {
		return nil, err
	}
	return topics, nil
}
