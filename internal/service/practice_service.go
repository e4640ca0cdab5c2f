package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/yourusername/practice-api/internal/domain/entity"
	"github.com/yourusername/practice-api/internal/domain/repository"
	apperrors "github.com/yourusername/practice-api/internal/pkg/errors"
	"github.com/yourusername/practice-api/internal/repository/local"
	"github.com/yourusername/practice-api/internal/service/selection"
)

// Время жизни закешированного размера пула предмета
const subjectPoolSizeTTL = time.Minute

// Время жизни закешированного списка тем предмета
const subjectTopicsTTL = 5 * time.Minute

// PracticeService — оркестратор подбора практических вопросов.
// Один вызов проходит состояния: проверка размера пула → решение о сбросе →
// подбор → запись в журнал → результат.
//
// Известная гонка: два конкурентных вызова для одной пары (user, subject)
// (например, две вкладки браузера) могут выбрать пересекающиеся вопросы,
// пока запись в журнал одного из них не завершилась. Запись для
// аутентифицированных пользователей намеренно асинхронная (латентность
// важнее), поэтому гонка здесь не устраняется.
type PracticeService struct {
	questionRepo  repository.QuestionRepository
	attemptedRepo repository.AttemptedRepository
	guestStore    *local.GuestStore
	cacheRepo     repository.CacheRepository
	distributor   *selection.Distributor
	config        *selection.Config
}

// NewPracticeService создает новый сервис подбора вопросов
func NewPracticeService(
	questionRepo repository.QuestionRepository,
	attemptedRepo repository.AttemptedRepository,
	guestStore *local.GuestStore,
	cacheRepo repository.CacheRepository,
	distributor *selection.Distributor,
	config *selection.Config,
) *PracticeService {
	return &PracticeService{
		questionRepo:  questionRepo,
		attemptedRepo: attemptedRepo,
		guestStore:    guestStore,
		cacheRepo:     cacheRepo,
		distributor:   distributor,
		config:        config,
	}
}

// SelectionRequest описывает один запрос на подбор вопросов.
// UserID == nil означает гостевой режим: журнал ведётся по DeviceID.
type SelectionRequest struct {
	UserID       *uint
	DeviceID     string
	SubjectID    uint
	TopicIDs     []uint
	Count        int
	Distribution map[uint]int // необязательные точные квоты по темам
}

func (r *SelectionRequest) requestedTotal() int {
	if len(r.Distribution) > 0 {
		total := 0
		for _, count := range r.Distribution {
			total += count
		}
		return total
	}
	return r.Count
}

// SelectQuestions подбирает вопросы для пользователя или гостя.
// Пустой пул предмета — не ошибка: возвращается пустой результат с нулевыми
// счётчиками. Ошибка хранилища вопросов отдаётся вызывающему как есть.
// Ошибка записи в журнал не отменяет уже подобранные вопросы — она
// логируется, но грозит повтором вопросов в следующем вызове.
func (s *PracticeService) SelectQuestions(ctx context.Context, req SelectionRequest) (*selection.Result, error) {
	requested := req.requestedTotal()
	if req.SubjectID == 0 || requested <= 0 {
		return nil, fmt.Errorf("%w: subject and positive question count are required", apperrors.ErrValidation)
	}
	if len(req.TopicIDs) == 0 && len(req.Distribution) == 0 {
		return nil, fmt.Errorf("%w: at least one topic is required", apperrors.ErrValidation)
	}

	ledger, err := s.ledgerFor(req.UserID, req.DeviceID)
	if err != nil {
		return nil, err
	}

	totalInPool, err := s.subjectPoolSize(req.SubjectID)
	if err != nil {
		return nil, err
	}
	if totalInPool == 0 {
		// Нечего выдавать — это сигнал «пул пуст», а не ошибка
		return &selection.Result{}, nil
	}

	attemptedIDs, err := ledger.AttemptedIDs(req.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to read attempt ledger: %w", err)
	}
	attemptedBefore := int64(len(attemptedIDs))
	remaining := totalInPool - attemptedBefore

	// Сброс пула: остаток нулевой, либо остатка не хватает на запрос и он
	// меньше десятой доли пула — выдавать огрызок бессмысленно
	poolReset := remaining <= 0 ||
		(remaining < int64(requested) && float64(remaining) < s.config.ResetFraction*float64(totalInPool))

	excluded := make(map[uint]struct{}, len(attemptedIDs))
	if poolReset {
		deleted, err := ledger.Reset(req.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to reset attempt ledger: %w", err)
		}
		log.Printf("[PracticeService] Сброс пула предмета #%d: удалено %d записей журнала", req.SubjectID, deleted)
	} else {
		for _, id := range attemptedIDs {
			excluded[id] = struct{}{}
		}
	}

	selectedQuestions, err := s.runSelection(ctx, req, excluded)
	if err != nil {
		return nil, err
	}

	s.recordSelection(req.UserID != nil, ledger, req.SubjectID, selectedQuestions)

	remainingAfter := remaining
	if poolReset {
		remainingAfter = totalInPool
	}
	remainingAfter -= int64(len(selectedQuestions))
	if remainingAfter < 0 {
		remainingAfter = 0
	}

	result := &selection.Result{
		Questions:       selectedQuestions,
		PoolReset:       poolReset,
		RemainingInPool: remainingAfter,
		TotalInPool:     totalInPool,
		AttemptedBefore: attemptedBefore,
	}

	if int64(len(selectedQuestions)) < int64(requested) {
		log.Printf("[PracticeService] Выдано %d вопросов из запрошенных %d (subject=%d, reset=%t)",
			len(selectedQuestions), requested, req.SubjectID, poolReset)
	}

	return result, nil
}

// ProgressInfo — состояние потребления пула предмета для пользователя
type ProgressInfo struct {
	SubjectID       uint  `json:"subject_id"`
	TotalInPool     int64 `json:"total_in_pool"`
	Attempted       int64 `json:"attempted"`
	RemainingInPool int64 `json:"remaining_in_pool"`
}

// GetProgress возвращает прогресс потребления пула предмета
func (s *PracticeService) GetProgress(userID *uint, deviceID string, subjectID uint) (*ProgressInfo, error) {
	if subjectID == 0 {
		return nil, fmt.Errorf("%w: subject is required", apperrors.ErrValidation)
	}

	ledger, err := s.ledgerFor(userID, deviceID)
	if err != nil {
		return nil, err
	}

	totalInPool, err := s.subjectPoolSize(subjectID)
	if err != nil {
		return nil, err
	}

	attempted, err := ledger.CountAttempted(subjectID)
	if err != nil {
		return nil, err
	}

	remaining := totalInPool - attempted
	if remaining < 0 {
		remaining = 0
	}
	return &ProgressInfo{
		SubjectID:       subjectID,
		TotalInPool:     totalInPool,
		Attempted:       attempted,
		RemainingInPool: remaining,
	}, nil
}

// GetTopics возвращает темы предмета. Список меняется редко, поэтому
// кешируется в Redis; ошибки кеша не фатальны — идём в базу напрямую.
func (s *PracticeService) GetTopics(subjectID uint) ([]entity.Topic, error) {
	if subjectID == 0 {
		return nil, fmt.Errorf("%w: subject is required", apperrors.ErrValidation)
	}

	key := fmt.Sprintf("practice:subject:%d:topics", subjectID)

	var cached []entity.Topic
	if err := s.cacheRepo.GetJSON(key, &cached); err == nil {
		return cached, nil
	}

	topics, err := s.questionRepo.GetTopicsBySubject(subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load subject topics: %v", apperrors.ErrStoreUnavailable, err)
	}

	if err := s.cacheRepo.SetJSON(key, topics, subjectTopicsTTL); err != nil {
		log.Printf("[PracticeService] WARNING: не удалось закешировать темы предмета #%d: %v", subjectID, err)
	}
	return topics, nil
}

// GetQuestion возвращает один вопрос по ID (без правильного ответа — его
// скрывает DTO-слой)
func (s *PracticeService) GetQuestion(id uint) (*entity.Question, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: question id is required", apperrors.ErrValidation)
	}

	question, err := s.questionRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to load question: %v", apperrors.ErrStoreUnavailable, err)
	}
	return question, nil
}

// ResetProgress вручную сбрасывает журнал выданных вопросов по предмету.
// Возвращает количество удалённых записей.
func (s *PracticeService) ResetProgress(userID *uint, deviceID string, subjectID uint) (int64, error) {
	if subjectID == 0 {
		return 0, fmt.Errorf("%w: subject is required", apperrors.ErrValidation)
	}

	ledger, err := s.ledgerFor(userID, deviceID)
	if err != nil {
		return 0, err
	}
	return ledger.Reset(subjectID)
}

// runSelection делегирует распределителю: точные квоты, если они заданы,
// иначе свободное распределение по темам
func (s *PracticeService) runSelection(ctx context.Context, req SelectionRequest, excluded map[uint]struct{}) ([]entity.Question, error) {
	if len(req.Distribution) > 0 {
		return s.distributor.SelectWithDistribution(ctx, req.Distribution, excluded)
	}
	return s.distributor.SelectAcrossTopics(ctx, req.TopicIDs, req.Count, excluded)
}

// recordSelection записывает выданные вопросы в журнал.
// Для аутентифицированных пользователей — асинхронно, чтобы не задерживать
// ответ; для гостей — синхронно, их хранилище локальное и дешёвое.
// Неудачная запись не отменяет выдачу, но логируется: потерянная запись
// грозит повтором тех же вопросов.
func (s *PracticeService) recordSelection(authenticated bool, ledger repository.AttemptLedger, subjectID uint, questions []entity.Question) {
	if len(questions) == 0 {
		return
	}
	ids := make([]uint, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}

	if authenticated {
		go func() {
			if err := ledger.Record(subjectID, ids); err != nil {
				log.Printf("[PracticeService] ОШИБКА асинхронной записи журнала (subject=%d, %d вопросов): %v",
					subjectID, len(ids), err)
			}
		}()
		return
	}

	if err := ledger.Record(subjectID, ids); err != nil {
		log.Printf("[PracticeService] ОШИБКА записи гостевого журнала (subject=%d): %v", subjectID, err)
	}
}

// ledgerFor выбирает реализацию журнала по наличию идентификатора
// пользователя: БД для аутентифицированных, локальное хранилище для гостей
func (s *PracticeService) ledgerFor(userID *uint, deviceID string) (repository.AttemptLedger, error) {
	if userID != nil {
		return &userLedger{repo: s.attemptedRepo, userID: *userID}, nil
	}
	ledger, err := s.guestStore.Ledger(deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err)
	}
	return ledger, nil
}

// subjectPoolSize возвращает размер пула предмета, кешируя его в Redis
// на короткое время. Ошибки кеша не фатальны: идём в базу напрямую.
func (s *PracticeService) subjectPoolSize(subjectID uint) (int64, error) {
	key := fmt.Sprintf("practice:subject:%d:pool_size", subjectID)

	if cached, err := s.cacheRepo.Get(key); err == nil {
		if size, parseErr := strconv.ParseInt(cached, 10, 64); parseErr == nil {
			return size, nil
		}
	}

	size, err := s.questionRepo.CountPublishedBySubject(subjectID)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count subject pool: %v", apperrors.ErrStoreUnavailable, err)
	}

	if err := s.cacheRepo.Set(key, strconv.FormatInt(size, 10), subjectPoolSizeTTL); err != nil {
		log.Printf("[PracticeService] WARNING: не удалось закешировать размер пула предмета #%d: %v", subjectID, err)
	}
	return size, nil
}

// userLedger привязывает AttemptedRepository к конкретному пользователю
type userLedger struct {
	repo   repository.AttemptedRepository
	userID uint
}

func (l *userLedger) AttemptedIDs(subjectID uint) ([]uint, error) {
	return l.repo.GetAttemptedIDs(l.userID, subjectID)
}

func (l *userLedger) Record(subjectID uint, questionIDs []uint) error {
	return l.repo.Record(l.userID, subjectID, questionIDs)
}

func (l *userLedger) Reset(subjectID uint) (int64, error) {
	return l.repo.Reset(l.userID, subjectID)
}

func (l *userLedger) CountAttempted(subjectID uint) (int64, error) {
	return l.repo.CountAttempted(l.userID, subjectID)
}
