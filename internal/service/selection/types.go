package selection

import (
	"time"

	"github.com/yourusername/practice-api/internal/domain/entity"
	"github.com/yourusername/practice-api/internal/domain/repository"
)

// Constants for default values
const (
	DefaultPoolTTL       = 5 * time.Minute
	DefaultPoolCacheSize = 50
)

// Config содержит настройки движка подбора вопросов
type Config struct {
	// PoolTTL — время жизни закешированного пула темы.
	// Просроченный пул перечитывается из базы, а не используется молча.
	PoolTTL time.Duration

	// PoolCacheSize — максимум тем в кеше пулов; при превышении
	// вытесняются самые старые по времени записи
	PoolCacheSize int

	// Доли сложности при подборе: easy/medium, остаток — hard
	EasyShare   float64
	MediumShare float64

	// ExamRebalanceMin — минимальный размер выборки, начиная с которого
	// включается балансировка по типу экзамена
	ExamRebalanceMin int

	// OverRequestFactor — во сколько раз больше кандидатов запрашивать
	// у селектора при свободном распределении по темам
	OverRequestFactor int

	// SmallTotalThreshold и минимумы кандидатов на тему: для маленьких
	// запросов достаточно 3 кандидатов, для больших — 5
	SmallTotalThreshold int
	MinPerTopicSmall    int
	MinPerTopicLarge    int

	// ResetFraction — доля пула, ниже которой остаток считается
	// «практически исчерпанным» и запускается сброс (см. оркестратор)
	ResetFraction float64
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		PoolTTL:             DefaultPoolTTL,
		PoolCacheSize:       DefaultPoolCacheSize,
		EasyShare:           0.3,
		MediumShare:         0.5,
		ExamRebalanceMin:    5,
		OverRequestFactor:   3,
		SmallTotalThreshold: 10,
		MinPerTopicSmall:    3,
		MinPerTopicLarge:    5,
		ResetFraction:       0.1,
	}
}

// Dependencies содержит зависимости движка подбора
type Dependencies struct {
	QuestionRepo repository.QuestionRepository
	Config       *Config
}

// Result — итог одного вызова подбора. Конструируется заново на каждый
// вызов и нигде не сохраняется.
type Result struct {
	// Questions — подобранные вопросы. Может быть короче запрошенного:
	// нехватка — не ошибка, вызывающий видит её по длине списка.
	Questions []entity.Question `json:"questions"`

	// PoolReset — был ли сброшен журнал выданных вопросов в этом вызове
	PoolReset bool `json:"pool_reset"`

	// RemainingInPool — сколько вопросов останется невыданными после этого вызова
	RemainingInPool int64 `json:"remaining_in_pool"`

	// TotalInPool — полный размер пула предмета
	TotalInPool int64 `json:"total_in_pool"`

	// AttemptedBefore — сколько было выдано до этого вызова
	AttemptedBefore int64 `json:"attempted_before"`
}
