package repository

import (
	"time"
)

// CacheRepository определяет методы для работы с внешним кешем (Redis).
// Используется для короткоживущих агрегатов (размер пула предмета и т.п.),
// чтобы не ходить в базу на каждый запрос подбора.
type CacheRepository interface {
	Set(key string, value interface{}, expiration time.Duration) error
	Get(key string) (string, error)
	SetJSON(key string, value interface{}, expiration time.Duration) error
	GetJSON(key string, dest interface{}) error
}
