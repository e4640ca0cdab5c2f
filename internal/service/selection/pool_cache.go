package selection

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yourusername/practice-api/internal/domain/entity"
	"github.com/yourusername/practice-api/internal/domain/repository"
	apperrors "github.com/yourusername/practice-api/internal/pkg/errors"
)

// PoolCache — внутрипроцессный кеш пулов вопросов по темам.
// Пул темы — полный список её опубликованных вопросов. Запись живёт PoolTTL;
// просроченная запись перечитывается из хранилища, а не используется молча.
// Кеш ограничен по количеству тем: при переполнении вытесняются записи
// с самым старым временем записи.
type PoolCache struct {
	repo       repository.QuestionRepository
	ttl        time.Duration
	maxEntries int

	mu      sync.RWMutex
	entries map[uint]*poolEntry
}

type poolEntry struct {
	questions []entity.Question
	cachedAt  time.Time
}

// NewPoolCache создает новый кеш пулов
func NewPoolCache(repo repository.QuestionRepository, config *Config) *PoolCache {
	ttl := config.PoolTTL
	if ttl <= 0 {
		ttl = DefaultPoolTTL
	}
	maxEntries := config.PoolCacheSize
	if maxEntries <= 0 {
		maxEntries = DefaultPoolCacheSize
	}
	return &PoolCache{
		repo:       repo,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[uint]*poolEntry),
	}
}

// GetPool возвращает пул темы: из кеша, если запись свежая, иначе из
// хранилища. Ошибка хранилища отдаётся вызывающему — кеш не придумывает
// запасные данные. Возвращённый срез нельзя изменять.
func (c *PoolCache) GetPool(ctx context.Context, topicID uint) ([]entity.Question, error) {
	c.mu.RLock()
	entry, ok := c.entries[topicID]
	if ok && time.Since(entry.cachedAt) < c.ttl {
		questions := entry.questions
		c.mu.RUnlock()
		return questions, nil
	}
	c.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Первый, кто заметил протухание, перечитывает пул. Конкурентные
	// опоздавшие могут сходить в базу повторно — это допустимо и безвредно.
	questions, err := c.repo.GetPublishedByTopic(topicID)
	if err != nil {
		// Запасных данных у кеша нет: отказ хранилища — жёсткая ошибка,
		// вызывающий должен повторить запрос позже
		return nil, fmt.Errorf("%w: topic %d: %v", apperrors.ErrStoreUnavailable, topicID, err)
	}

	c.mu.Lock()
	c.entries[topicID] = &poolEntry{questions: questions, cachedAt: time.Now()}
	c.evictLocked()
	c.mu.Unlock()

	return questions, nil
}

// Invalidate сбрасывает запись темы (например, после перепубликации вопросов)
func (c *PoolCache) Invalidate(topicID uint) {
	c.mu.Lock()
	delete(c.entries, topicID)
	c.mu.Unlock()
}

// evictLocked вытесняет самые старые по времени записи, пока кеш не
// уложится в лимит. Вызывается под блокировкой.
func (c *PoolCache) evictLocked() {
	for len(c.entries) > c.maxEntries {
		var oldestKey uint
		var oldestAt time.Time
		first := true
		for key, entry := range c.entries {
			if first || entry.cachedAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.cachedAt
				first = false
			}
		}
		delete(c.entries, oldestKey)
		log.Printf("[PoolCache] Вытеснена тема #%d (записана %s назад), в кеше %d/%d тем",
			oldestKey, time.Since(oldestAt).Round(time.Second), len(c.entries), c.maxEntries)
	}
}

// Len возвращает текущее количество закешированных тем
func (c *PoolCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
