package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yourusername/practice-api/internal/handler/dto"
	"github.com/yourusername/practice-api/internal/middleware"
	apperrors "github.com/yourusername/practice-api/internal/pkg/errors"
	"github.com/yourusername/practice-api/internal/service"
)

// PracticeHandler обрабатывает запросы подбора практических вопросов
type PracticeHandler struct {
	practiceService *service.PracticeService
}

// NewPracticeHandler создает новый обработчик подбора
func NewPracticeHandler(practiceService *service.PracticeService) *PracticeHandler {
	return &PracticeHandler{practiceService: practiceService}
}

// SelectQuestionsRequest представляет запрос на подбор вопросов.
// Либо topic_ids + count (свободное распределение), либо distribution
// с точными квотами по темам.
type SelectQuestionsRequest struct {
	SubjectID    uint         `json:"subject_id" binding:"required"`
	TopicIDs     []uint       `json:"topic_ids" binding:"omitempty,min=1,dive,min=1"`
	Count        int          `json:"count" binding:"omitempty,min=1,max=100"`
	Distribution map[uint]int `json:"distribution" binding:"omitempty"`
}

// identity извлекает личность запроса: пользователь из JWT либо гостевое
// устройство из заголовка. Новому гостю выдаётся UUID устройства, который
// возвращается в ответе — клиент обязан прислать его в следующий раз.
func identity(c *gin.Context) (userID *uint, deviceID string, issued string) {
	if val, exists := c.Get("user_id"); exists {
		id := val.(uint)
		return &id, "", ""
	}
	deviceID = c.GetHeader(middleware.DeviceIDHeader)
	if deviceID == "" {
		deviceID = uuid.NewString()
		issued = deviceID
	}
	return nil, deviceID, issued
}

// SelectQuestions обрабатывает запрос на подбор вопросов
func (h *PracticeHandler) SelectQuestions(c *gin.Context) {
	var req SelectQuestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.TopicIDs) == 0 && len(req.Distribution) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either topic_ids or distribution is required"})
		return
	}
	if len(req.Distribution) == 0 && req.Count == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count is required when distribution is not set"})
		return
	}

	userID, deviceID, issuedDeviceID := identity(c)

	selReq := service.SelectionRequest{
		UserID:       userID,
		DeviceID:     deviceID,
		SubjectID:    req.SubjectID,
		TopicIDs:     req.TopicIDs,
		Count:        req.Count,
		Distribution: req.Distribution,
	}

	result, err := h.practiceService.SelectQuestions(c.Request.Context(), selReq)
	if err != nil {
		h.handlePracticeError(c, err)
		return
	}

	requested := req.Count
	if len(req.Distribution) > 0 {
		requested = 0
		for _, count := range req.Distribution {
			requested += count
		}
	}

	if issuedDeviceID != "" {
		c.Header(middleware.DeviceIDHeader, issuedDeviceID)
	}
	c.JSON(http.StatusOK, dto.NewSelectionResponse(result, requested, issuedDeviceID))
}

// GetTopics возвращает список тем предмета
func (h *PracticeHandler) GetTopics(c *gin.Context) {
	subjectID := c.MustGet("subjectID").(uint)

	topics, err := h.practiceService.GetTopics(subjectID)
	if err != nil {
		h.handlePracticeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject_id": subjectID, "topics": topics})
}

// GetQuestion возвращает один вопрос без правильного ответа
func (h *PracticeHandler) GetQuestion(c *gin.Context) {
	questionID := c.MustGet("questionID").(uint)

	question, err := h.practiceService.GetQuestion(questionID)
	if err != nil {
		h.handlePracticeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewQuestionResponse(question))
}

// GetProgress возвращает прогресс потребления пула предмета
func (h *PracticeHandler) GetProgress(c *gin.Context) {
	subjectID := c.MustGet("subjectID").(uint) // Получаем из контекста

	userID, deviceID, issuedDeviceID := identity(c)
	if issuedDeviceID != "" {
		// Свежевыданное устройство ещё ничего не видело — журнала нет
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Device-ID header is required for guests"})
		return
	}

	progress, err := h.practiceService.GetProgress(userID, deviceID, subjectID)
	if err != nil {
		h.handlePracticeError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// ResetProgress вручную сбрасывает журнал выданных вопросов по предмету
func (h *PracticeHandler) ResetProgress(c *gin.Context) {
	subjectID := c.MustGet("subjectID").(uint)

	userID, deviceID, issuedDeviceID := identity(c)
	if issuedDeviceID != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Device-ID header is required for guests"})
		return
	}

	deleted, err := h.practiceService.ResetProgress(userID, deviceID, subjectID)
	if err != nil {
		h.handlePracticeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject_id": subjectID, "deleted": deleted})
}

// handlePracticeError преобразует ошибки сервиса в HTTP-ответы
func (h *PracticeHandler) handlePracticeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Question store unavailable, please retry", "error_type": "store_unavailable"})
	default:
		log.Printf("[PracticeHandler] Внутренняя ошибка: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
