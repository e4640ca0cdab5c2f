package dto

import (
	"github.com/yourusername/practice-api/internal/domain/entity"
	"github.com/yourusername/practice-api/internal/service/selection"
)

// QuestionResponse представляет вопрос в формате для ответа клиенту.
// Правильный вариант ответа клиенту не отдаётся.
type QuestionResponse struct {
	ID         uint     `json:"id"`
	TopicID    uint     `json:"topic_id"`
	SubjectID  uint     `json:"subject_id"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
	Difficulty string   `json:"difficulty,omitempty"`
	ExamType   string   `json:"exam_type"`
}

// SelectionResponse — результат подбора вопросов.
// Returned < Requested означает, что доступных вопросов не хватило;
// это штатная ситуация, а не ошибка.
type SelectionResponse struct {
	Questions       []QuestionResponse `json:"questions"`
	Requested       int                `json:"requested"`
	Returned        int                `json:"returned"`
	PoolReset       bool               `json:"pool_reset"`
	RemainingInPool int64              `json:"remaining_in_pool"`
	TotalInPool     int64              `json:"total_in_pool"`
	AttemptedBefore int64              `json:"attempted_before"`
	DeviceID        string             `json:"device_id,omitempty"` // Выдаётся новым гостям
}

// NewQuestionResponse создает DTO для вопроса
func NewQuestionResponse(q *entity.Question) QuestionResponse {
	return QuestionResponse{
		ID:         q.ID,
		TopicID:    q.TopicID,
		SubjectID:  q.SubjectID,
		Text:       q.Text,
		Options:    q.Options,
		Difficulty: string(q.Difficulty),
		ExamType:   q.ExamTypeOrDefault(),
	}
}

// NewSelectionResponse создает DTO для результата подбора
func NewSelectionResponse(result *selection.Result, requested int, deviceID string) *SelectionResponse {
	questions := make([]QuestionResponse, len(result.Questions))
	for i := range result.Questions {
		questions[i] = NewQuestionResponse(&result.Questions[i])
	}
	return &SelectionResponse{
		Questions:       questions,
		Requested:       requested,
		Returned:        len(questions),
		PoolReset:       result.PoolReset,
		RemainingInPool: result.RemainingInPool,
		TotalInPool:     result.TotalInPool,
		AttemptedBefore: result.AttemptedBefore,
		DeviceID:        deviceID,
	}
}
