package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/yourusername/practice-api/internal/domain/entity"
	apperrors "github.com/yourusername/practice-api/internal/pkg/errors"
	"github.com/yourusername/practice-api/internal/repository/local"
	"github.com/yourusername/practice-api/internal/service/selection"
)

// ============================================================================
// Моки
// ============================================================================

type MockQuestionRepo struct {
	mock.Mock
}

func (m *MockQuestionRepo) GetByID(id uint) (*entity.Question, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Question), args.Error(1)
}

func (m *MockQuestionRepo) GetPublishedByTopic(topicID uint) ([]entity.Question, error) {
	args := m.Called(topicID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Question), args.Error(1)
}

func (m *MockQuestionRepo) CountPublishedBySubject(subjectID uint) (int64, error) {
	args := m.Called(subjectID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockQuestionRepo) GetTopicsBySubject(subjectID uint) ([]entity.Topic, error) {
	args := m.Called(subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Topic), args.Error(1)
}

type MockAttemptedRepo struct {
	mock.Mock
}

func (m *MockAttemptedRepo) GetAttemptedIDs(userID, subjectID uint) ([]uint, error) {
	args := m.Called(userID, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint), args.Error(1)
}

func (m *MockAttemptedRepo) Record(userID, subjectID uint, questionIDs []uint) error {
	args := m.Called(userID, subjectID, questionIDs)
	return args.Error(0)
}

func (m *MockAttemptedRepo) Reset(userID, subjectID uint) (int64, error) {
	args := m.Called(userID, subjectID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAttemptedRepo) CountAttempted(userID, subjectID uint) (int64, error) {
	args := m.Called(userID, subjectID)
	return args.Get(0).(int64), args.Error(1)
}

// MockCacheRepo имитирует недоступный Redis по умолчанию: сервис обязан
// переживать это, падая обратно на базу
type MockCacheRepo struct {
	mock.Mock
}

func (m *MockCacheRepo) Set(key string, value interface{}, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockCacheRepo) Get(key string) (string, error) {
	args := m.Called(key)
	return args.String(0), args.Error(1)
}

func (m *MockCacheRepo) SetJSON(key string, value interface{}, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockCacheRepo) GetJSON(key string, dest interface{}) error {
	args := m.Called(key, dest)
	return args.Error(0)
}

// ============================================================================
// Вспомогательная сборка сервиса
// ============================================================================

func makePool(startID uint, n int) []entity.Question {
	questions := make([]entity.Question, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, entity.Question{
			ID:         startID + uint(i),
			Difficulty: entity.DifficultyMedium,
		})
	}
	return questions
}

func newTestService(t *testing.T, questionRepo *MockQuestionRepo, attemptedRepo *MockAttemptedRepo, cacheRepo *MockCacheRepo) *PracticeService {
	t.Helper()

	guestStore, err := local.NewGuestStore(t.TempDir())
	assert.NoError(t, err)

	config := selection.DefaultConfig()
	cache := selection.NewPoolCache(questionRepo, config)
	distributor := selection.NewDistributor(cache, selection.NewSelector(config), config)

	return NewPracticeService(questionRepo, attemptedRepo, guestStore, cacheRepo, distributor, config)
}

func uintPtr(v uint) *uint { return &v }

// cacheMiss настраивает кеш на промах и разрешает запись нового значения
func cacheMiss(cacheRepo *MockCacheRepo) {
	cacheRepo.On("Get", mock.Anything).Return("", apperrors.ErrNotFound)
	cacheRepo.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)
}

// ============================================================================
// Тесты SelectQuestions
// ============================================================================

// TestSelectQuestions_PartialFulfillment — в пуле 10 вопросов, журнал пуст,
// запрошено 20: возвращаются все 10 без сброса и без ошибки
func TestSelectQuestions_PartialFulfillment(t *testing.T) {
	questionRepo := new(MockQuestionRepo)
	attemptedRepo := new(MockAttemptedRepo)
	cacheRepo := new(MockCacheRepo)
	cacheMiss(cacheRepo)

	questionRepo.On("CountPublishedBySubject", uint(1)).Return(int64(10), nil)
	questionRepo.On("GetPublishedByTopic", uint(1)).Return(makePool(1, 10), nil)
	attemptedRepo.On("GetAttemptedIDs", uint(42), uint(1)).Return([]uint{}, nil)
	recorded := make(chan []uint, 1)
	attemptedRepo.On("Record", uint(42), uint(1), mock.Anything).Run(func(args mock.Arguments) {
		recorded <- args.Get(2).([]uint)
	}).Return(nil)

	svc := newTestService(t, questionRepo, attemptedRepo, cacheRepo)

	result, err := svc.SelectQuestions(context.Background(), SelectionRequest{
		UserID:    uintPtr(42),
		SubjectID: 1,
		TopicIDs:  []uint{1},
		Count:     20,
	})

	assert.NoError(t, err)
	assert.Len(t, result.Questions, 10, "нехватка — не ошибка, отдаём всё что есть")
	assert.False(t, result.PoolReset, "пул не исчерпан, сброса быть не должно")
	assert.Equal(t, int64(10), result.TotalInPool)
	assert.Equal(t, int64(0), result.RemainingInPool)

	// Запись для пользователя асинхронная — дожидаемся её
	select {
	case ids := <-recorded:
		assert.Len(t, ids, 10)
	case <-time.After(time.Second):
		t.Fatal("запись в журнал не произошла")
	}
}

// TestSelectQuestions_ExhaustedPoolResets — все 10 вопросов выданы,
// запрошено 5: журнал сбрасывается и вопросы выдаются заново
func TestSelectQuestions_ExhaustedPoolResets(t *testing.T) {
	questionRepo := new(MockQuestionRepo)
	attemptedRepo := new(MockAttemptedRepo)
	cacheRepo := new(MockCacheRepo)
	cacheMiss(cacheRepo)

	attempted := []uint{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	questionRepo.On("CountPublishedBySubject", uint(1)).Return(int64(10), nil)
	questionRepo.On("GetPublishedByTopic", uint(1)).Return(makePool(1, 10), nil)
	attemptedRepo.On("GetAttemptedIDs", uint(42), uint(1)).Return(attempted, nil)
	attemptedRepo.On("Reset", uint(42), uint(1)).Return(int64(10), nil)
	attemptedRepo.On("Record", uint(42), uint(1), mock.Anything).Return(nil)

	svc := newTestService(t, questionRepo, attemptedRepo, cacheRepo)

	result, err := svc.SelectQuestions(context.Background(), SelectionRequest{
		UserID:    uintPtr(42),
		SubjectID: 1,
		TopicIDs:  []uint{1},
		Count:     5,
	})

	assert.NoError(t, err)
	assert.True(t, result.PoolReset, "исчерпанный пул должен сброситься")
	assert.Len(t, result.Questions, 5)
	assert.Equal(t, int64(5), result.RemainingInPool, "после сброса остаток = пул минус выданное")
	assert.Equal(t, int64(10), result.AttemptedBefore)
	attemptedRepo.AssertCalled(t, "Reset", uint(42), uint(1))
}

// TestSelectQuestions_NearlyExhaustedResets — остаток меньше запроса И меньше
// десятой доли пула: сброс срабатывает, хотя остаток ненулевой
func TestSelectQuestions_NearlyExhaustedResets(t *testing.T) {
	questionRepo := new(MockQuestionRepo)
	attemptedRepo := new(MockAttemptedRepo)
	cacheRepo := new(MockCacheRepo)
	cacheMiss(cacheRepo)

	// Пул 100, выдано 95: остаток 5 < запроса 10 и 5 < 10% от 100
	attempted := make([]uint, 95)
	for i := range attempted {
		attempted[i] = uint(i + 1)
	}
	questionRepo.On("CountPublishedBySubject", uint(1)).Return(int64(100), nil)
	questionRepo.On("GetPublishedByTopic", uint(1)).Return(makePool(1, 100), nil)
	attemptedRepo.On("GetAttemptedIDs", uint(42), uint(1)).Return(attempted, nil)
	attemptedRepo.On("Reset", uint(42), uint(1)).Return(int64(95), nil)
	attemptedRepo.On("Record", uint(42), uint(1), mock.Anything).Return(nil)

	svc := newTestService(t, questionRepo, attemptedRepo, cacheRepo)

	result, err := svc.SelectQuestions(context.Background(), SelectionRequest{
		UserID:    uintPtr(42),
		SubjectID: 1,
		TopicIDs:  []uint{1},
		Count:     10,
	})

	assert.NoError(t, err)
	assert.True(t, result.PoolReset)
	assert.Len(t, result.Questions, 10)
}

// TestSelectQuestions_LargeRemainderNoReset — остатка не хватает на запрос,
// но он больше десятой доли пула: сброса нет, выдаётся остаток
func TestSelectQuestions_LargeRemainderNoReset(t *testing.T) {
	questionRepo := new(MockQuestionRepo)
	attemptedRepo := new(MockAttemptedRepo)
	cacheRepo := new(MockCacheRepo)
	cacheMiss(cacheRepo)

	// Пул 100, выдано 80: остаток 20 < запроса 30, но 20 > 10% от 100
	attempted := make([]uint, 80)
	for i := range attempted {
		attempted[i] = uint(i + 1)
	}
	questionRepo.On("CountPublishedBySubject", uint(1)).Return(int64(100), nil)
	questionRepo.On("GetPublishedByTopic", uint(1)).Return(makePool(1, 100), nil)
	attemptedRepo.On("GetAttemptedIDs", uint(42), uint(1)).Return(attempted, nil)
	attemptedRepo.On("Record", uint(42), uint(1), mock.Anything).Return(nil)

	svc := newTestService(t, questionRepo, attemptedRepo, cacheRepo)

	result, err := svc.SelectQuestions(context.Background(), SelectionRequest{
		UserID:    uintPtr(42),
		SubjectID: 1,
		TopicIDs:  []uint{1},
		Count:     30,
	})

	assert.NoError(t, err)
	assert.False(t, result.PoolReset, "большой остаток не должен сбрасываться")
	assert.Len(t, result.Questions, 20)
	for _, q := range result.Questions {
		assert.Greater(t, q.ID, uint(80), "выданные ранее вопросы не должны повторяться")
	}
	attemptedRepo.AssertNotCalled(t, "Reset", mock.Anything, mock.Anything)
}

// TestSelectQuestions_EmptyPool — пустой пул предмета возвращает пустой
// результат без ошибки и не трогает журнал
func TestSelectQuestions_EmptyPool(t *testing.T) {
	questionRepo := new(MockQuestionRepo)
	attemptedRepo := new(MockAttemptedRepo)
	cacheRepo := new(MockCacheRepo)
	cacheMiss(cacheRepo)

	questionRepo.On("CountPublishedBySubject", uint(1)).Return(int64(0), nil)

	svc := newTestService(t, questionRepo, attemptedRepo, cacheRepo)

	result, err := svc.SelectQuestions(context.Background(), SelectionRequest{
		UserID:    uintPtr(42),
		SubjectID: 1,
		TopicIDs:  []uint{1},
		Count:     5,
	})

	assert.NoError(t, err)
	assert.Empty(t, result.Questions)
	assert.Equal(t, int64(0), result.TotalInPool)
	attemptedRepo.AssertNotCalled(t, "GetAttemptedIDs", mock.Anything, mock.Anything)
}

// TestSelectQuestions_ValidationErrors — невалидные запросы отклоняются
// до какой-либо работы
func TestSelectQuestions_ValidationErrors(t *testing.T) {
	svc := newTestService(t, new(MockQuestionRepo), new(MockAttemptedRepo), new(MockCacheRepo))

	tests := []struct {
		name string
		req  SelectionRequest
	}{
		{"нет предмета", SelectionRequest{UserID: uintPtr(1), TopicIDs: []uint{1}, Count: 5}},
		{"нулевой запрос", SelectionRequest{UserID: uintPtr(1), SubjectID: 1, TopicIDs: []uint{1}}},
		{"нет тем и квот", SelectionRequest{UserID: uintPtr(1), SubjectID: 1, Count: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SelectQuestions(context.Background(), tt.req)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

// TestSelectQuestions_StoreErrorPropagates — отказ хранилища вопросов
// отдаётся вызывающему как ErrStoreUnavailable, а не прячется за пустым
// результатом; журнал при этом не пополняется
func TestSelectQuestions_StoreErrorPropagates(t *testing.T) {
	questionRepo := new(MockQuestionRepo)
	attemptedRepo := new(MockAttemptedRepo)
	cacheRepo := new(MockCacheRepo)
	cacheMiss(cacheRepo)

	questionRepo.On("CountPublishedBySubject", uint(1)).Return(int64(10), nil)
	questionRepo.On("GetPublishedByTopic", uint(1)).Return(nil, fmt.Errorf("connection refused"))
	attemptedRepo.On("GetAttemptedIDs", uint(42), uint(1)).Return([]uint{}, nil)

	svc := newTestService(t, questionRepo, attemptedRepo, cacheRepo)

	_, err := svc.SelectQuestions(context.Background(), SelectionRequest{
		UserID:    uintPtr(42),
		SubjectID: 1,
		TopicIDs:  []uint{1},
		Count:     5,
	})
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	attemptedRepo.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything)
}

// TestSelectQuestions_CountFailureIsStoreUnavailable — недоступное хранилище
// ловится уже на подсчёте пула, до чтения журнала
func TestSelectQuestions_CountFailureIsStoreUnavailable(t *testing.T) {
	questionRepo := new(MockQuestionRepo)
	attemptedRepo := new(MockAttemptedRepo)
	cacheRepo := new(MockCacheRepo)
	cacheMiss(cacheRepo)

	questionRepo.On("CountPublishedBySubject", uint(1)).Return(int64(0), fmt.Errorf("dial tcp: connection refused"))

	svc := newTestService(t, questionRepo, attemptedRepo, cacheRepo)

	_, err := svc.SelectQuestions(context.Background(), SelectionRequest{
		UserID:    uintPtr(42),
		SubjectID: 1,
		TopicIDs:  []uint{1},
		Count:     5,
	})
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	attemptedRepo.AssertNotCalled(t, "GetAttemptedIDs", mock.Anything, mock.Anything)
}

// TestSelectQuestions_GuestFlow — гость проходит тот же путь через
// локальный журнал: повторный запрос не выдаёт те же вопросы
func TestSelectQuestions_GuestFlow(t *testing.T) {
	questionRepo := new(MockQuestionRepo)
	cacheRepo := new(MockCacheRepo)
	cacheMiss(cacheRepo)

	questionRepo.On("CountPublishedBySubject", uint(1)).Return(int64(10), nil)
	questionRepo.On("GetPublishedByTopic", uint(1)).Return(makePool(1, 10), nil)

	svc := newTestService(t, questionRepo, new(MockAttemptedRepo), cacheRepo)

	req := SelectionRequest{
		DeviceID:  "device-abc",
		SubjectID: 1,
		TopicIDs:  []uint{1},
		Count:     4,
	}

	first, err := svc.SelectQuestions(context.Background(), req)
	assert.NoError(t, err)
	assert.Len(t, first.Questions, 4)

	second, err := svc.SelectQuestions(context.Background(), req)
	assert.NoError(t, err)
	assert.Len(t, second.Questions, 4)

	// Гостевая запись синхронная: второй запрос уже видит первый в журнале
	firstIDs := map[uint]struct{}{}
	for _, q := range first.Questions {
		firstIDs[q.ID] = struct{}{}
	}
	for _, q := range second.Questions {
		assert.NotContains(t, firstIDs, q.ID, "повтор вопроса между запросами гостя")
	}
}

// TestSelectQuestions_GuestInvalidDevice — недопустимый идентификатор
// устройства отклоняется
func TestSelectQuestions_GuestInvalidDevice(t *testing.T) {
	svc := newTestService(t, new(MockQuestionRepo), new(MockAttemptedRepo), new(MockCacheRepo))

	_, err := svc.SelectQuestions(context.Background(), SelectionRequest{
		DeviceID:  "../etc/passwd",
		SubjectID: 1,
		TopicIDs:  []uint{1},
		Count:     5,
	})
	assert.Error(t, err)
}

// TestSelectQuestions_CacheHitSkipsCount — закешированный размер пула
// избавляет от запроса COUNT в базу
func TestSelectQuestions_CacheHitSkipsCount(t *testing.T) {
	questionRepo := new(MockQuestionRepo)
	attemptedRepo := new(MockAttemptedRepo)
	cacheRepo := new(MockCacheRepo)

	cacheRepo.On("Get", "practice:subject:1:pool_size").Return("10", nil)
	questionRepo.On("GetPublishedByTopic", uint(1)).Return(makePool(1, 10), nil)
	attemptedRepo.On("GetAttemptedIDs", uint(42), uint(1)).Return([]uint{}, nil)
	attemptedRepo.On("Record", uint(42), uint(1), mock.Anything).Return(nil)

	svc := newTestService(t, questionRepo, attemptedRepo, cacheRepo)

	result, err := svc.SelectQuestions(context.Background(), SelectionRequest{
		UserID:    uintPtr(42),
		SubjectID: 1,
		TopicIDs:  []uint{1},
		Count:     5,
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(10), result.TotalInPool)
	questionRepo.AssertNotCalled(t, "CountPublishedBySubject", mock.Anything)
}

// ============================================================================
// Тесты GetProgress / ResetProgress
// ============================================================================

func TestGetProgress(t *testing.T) {
	questionRepo := new(MockQuestionRepo)
	attemptedRepo := new(MockAttemptedRepo)
	cacheRepo := new(MockCacheRepo)
	cacheMiss(cacheRepo)

	questionRepo.On("CountPublishedBySubject", uint(3)).Return(int64(50), nil)
	attemptedRepo.On("CountAttempted", uint(42), uint(3)).Return(int64(20), nil)

	svc := newTestService(t, questionRepo, attemptedRepo, cacheRepo)

	progress, err := svc.GetProgress(uintPtr(42), "", 3)
	assert.NoError(t, err)
	assert.Equal(t, int64(50), progress.TotalInPool)
	assert.Equal(t, int64(20), progress.Attempted)
	assert.Equal(t, int64(30), progress.RemainingInPool)
}

func TestResetProgress(t *testing.T) {
	attemptedRepo := new(MockAttemptedRepo)
	attemptedRepo.On("Reset", uint(42), uint(3)).Return(int64(17), nil)

	svc := newTestService(t, new(MockQuestionRepo), attemptedRepo, new(MockCacheRepo))

	deleted, err := svc.ResetProgress(uintPtr(42), "", 3)
	assert.NoError(t, err)
	assert.Equal(t, int64(17), deleted)
}

func TestResetProgress_RequiresSubject(t *testing.T) {
	svc := newTestService(t, new(MockQuestionRepo), new(MockAttemptedRepo), new(MockCacheRepo))

	_, err := svc.ResetProgress(uintPtr(42), "", 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

// ============================================================================
// Тесты GetTopics / GetQuestion
// ============================================================================

// TestGetTopics_CacheMiss — промах кеша ведёт в базу, результат кешируется
func TestGetTopics_CacheMiss(t *testing.T) {
	questionRepo := new(MockQuestionRepo)
	cacheRepo := new(MockCacheRepo)

	topics := []entity.Topic{
		{ID: 1, SubjectID: 3, Name: "Алгебра"},
		{ID: 2, SubjectID: 3, Name: "Геометрия"},
	}
	cacheRepo.On("GetJSON", "practice:subject:3:topics", mock.Anything).Return(apperrors.ErrNotFound)
	cacheRepo.On("SetJSON", "practice:subject:3:topics", mock.Anything, mock.Anything).Return(nil)
	questionRepo.On("GetTopicsBySubject", uint(3)).Return(topics, nil)

	svc := newTestService(t, questionRepo, new(MockAttemptedRepo), cacheRepo)

	got, err := svc.GetTopics(3)
	assert.NoError(t, err)
	assert.Equal(t, topics, got)
	cacheRepo.AssertCalled(t, "SetJSON", "practice:subject:3:topics", mock.Anything, mock.Anything)
}

// TestGetTopics_CacheHit — свежий кеш избавляет от похода в базу
func TestGetTopics_CacheHit(t *testing.T) {
	questionRepo := new(MockQuestionRepo)
	cacheRepo := new(MockCacheRepo)

	cacheRepo.On("GetJSON", "practice:subject:3:topics", mock.Anything).Run(func(args mock.Arguments) {
		dest := args.Get(1).(*[]entity.Topic)
		*dest = []entity.Topic{{ID: 1, SubjectID: 3, Name: "Алгебра"}}
	}).Return(nil)

	svc := newTestService(t, questionRepo, new(MockAttemptedRepo), cacheRepo)

	got, err := svc.GetTopics(3)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	questionRepo.AssertNotCalled(t, "GetTopicsBySubject", mock.Anything)
}

// TestGetTopics_StoreErrorIsStoreUnavailable — отказ базы при промахе кеша
// различим для вызывающего
func TestGetTopics_StoreErrorIsStoreUnavailable(t *testing.T) {
	questionRepo := new(MockQuestionRepo)
	cacheRepo := new(MockCacheRepo)

	cacheRepo.On("GetJSON", mock.Anything, mock.Anything).Return(apperrors.ErrNotFound)
	questionRepo.On("GetTopicsBySubject", uint(3)).Return(nil, fmt.Errorf("connection refused"))

	svc := newTestService(t, questionRepo, new(MockAttemptedRepo), cacheRepo)

	_, err := svc.GetTopics(3)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

func TestGetQuestion(t *testing.T) {
	questionRepo := new(MockQuestionRepo)
	questionRepo.On("GetByID", uint(7)).Return(&entity.Question{ID: 7, Text: "Вопрос"}, nil)

	svc := newTestService(t, questionRepo, new(MockAttemptedRepo), new(MockCacheRepo))

	question, err := svc.GetQuestion(7)
	assert.NoError(t, err)
	assert.Equal(t, uint(7), question.ID)
}

// TestGetQuestion_NotFound — отсутствие вопроса остаётся ErrNotFound,
// а не превращается в недоступность хранилища
func TestGetQuestion_NotFound(t *testing.T) {
	questionRepo := new(MockQuestionRepo)
	questionRepo.On("GetByID", uint(7)).Return(nil, apperrors.ErrNotFound)

	svc := newTestService(t, questionRepo, new(MockAttemptedRepo), new(MockCacheRepo))

	_, err := svc.GetQuestion(7)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NotErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

func TestGetQuestion_StoreError(t *testing.T) {
	questionRepo := new(MockQuestionRepo)
	questionRepo.On("GetByID", uint(7)).Return(nil, fmt.Errorf("connection refused"))

	svc := newTestService(t, questionRepo, new(MockAttemptedRepo), new(MockCacheRepo))

	_, err := svc.GetQuestion(7)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}
