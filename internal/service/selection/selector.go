package selection

import (
	"math"
	"math/rand"

	"github.com/yourusername/practice-api/internal/domain/entity"
)

// Selector подбирает из пула темы подмножество вопросов, сбалансированное
// по сложности и типу экзамена. Чистая логика: не ходит в базу и не пишет
// в журнал выданных вопросов.
type Selector struct {
	config *Config
}

// NewSelector создает новый селектор
func NewSelector(config *Config) *Selector {
	return &Selector{config: config}
}

// Select возвращает не более count вопросов из pool, исключая excluded.
// Гарантии: результат не пересекается с excluded, без дубликатов по ID,
// порядок случайный. Если доступных вопросов не больше count — возвращаются
// все (перемешанными), балансировка не нужна.
func (s *Selector) Select(pool []entity.Question, excluded map[uint]struct{}, count int) []entity.Question {
	if count <= 0 || len(pool) == 0 {
		return nil
	}

	available := make([]entity.Question, 0, len(pool))
	seen := make(map[uint]struct{}, len(pool))
	for _, q := range pool {
		if _, ok := excluded[q.ID]; ok {
			continue
		}
		if _, ok := seen[q.ID]; ok {
			continue
		}
		seen[q.ID] = struct{}{}
		available = append(available, q)
	}

	if len(available) <= count {
		shuffleQuestions(available)
		return available
	}

	selected := s.pickByDifficulty(available, count)

	// Балансировка по типу экзамена имеет смысл только для достаточно
	// больших выборок из разнородного пула
	if len(selected) > s.config.ExamRebalanceMin && countExamTypes(available) > 1 {
		selected = s.rebalanceByExamType(selected, available)
	}

	shuffleQuestions(selected)
	return selected
}

// pickByDifficulty набирает count вопросов по целевым долям сложности:
// easy ≈ 30%, medium ≈ 50%, остальное hard. Нехватка в уровне не теряется —
// добирается из остальных корзин (сначала неразмеченные, затем любые).
func (s *Selector) pickByDifficulty(available []entity.Question, count int) []entity.Question {
	buckets := make(map[entity.Difficulty][]entity.Question)
	for _, q := range available {
		buckets[q.Difficulty] = append(buckets[q.Difficulty], q)
	}
	for _, bucket := range buckets {
		shuffleQuestions(bucket)
	}

	easyTarget := int(math.Round(s.config.EasyShare * float64(count)))
	if easyTarget == 0 && len(buckets[entity.DifficultyEasy]) > 0 {
		easyTarget = 1
	}
	mediumTarget := int(math.Round(s.config.MediumShare * float64(count)))
	if mediumTarget == 0 {
		mediumTarget = 1
	}
	if easyTarget+mediumTarget > count {
		mediumTarget = count - easyTarget
		if mediumTarget < 0 {
			mediumTarget = 0
			easyTarget = count
		}
	}
	hardTarget := count - easyTarget - mediumTarget

	selected := make([]entity.Question, 0, count)
	picked := make(map[uint]struct{}, count)

	take := func(difficulty entity.Difficulty, n int) {
		for _, q := range buckets[difficulty] {
			if n <= 0 {
				return
			}
			if _, ok := picked[q.ID]; ok {
				continue
			}
			picked[q.ID] = struct{}{}
			selected = append(selected, q)
			n--
		}
	}

	take(entity.DifficultyEasy, easyTarget)
	take(entity.DifficultyMedium, mediumTarget)
	take(entity.DifficultyHard, hardTarget)

	// Добор: сначала неразмеченные по сложности, затем всё подряд
	if len(selected) < count {
		take(entity.DifficultyUnknown, count-len(selected))
	}
	if len(selected) < count {
		rest := make([]entity.Question, 0, len(available))
		for _, q := range available {
			if _, ok := picked[q.ID]; !ok {
				rest = append(rest, q)
			}
		}
		shuffleQuestions(rest)
		for _, q := range rest {
			if len(selected) >= count {
				break
			}
			picked[q.ID] = struct{}{}
			selected = append(selected, q)
		}
	}

	return selected
}

// rebalanceByExamType выравнивает выборку по типам экзамена: на каждый тип
// не больше ceil(|selected| / количество типов). Уже выбранные вопросы
// сохраняются в приоритете; излишек типа заменяется вопросами
// недопредставленных типов из доступного остатка пула.
func (s *Selector) rebalanceByExamType(selected, available []entity.Question) []entity.Question {
	types := make(map[string]struct{})
	for _, q := range available {
		types[q.ExamTypeOrDefault()] = struct{}{}
	}

	target := len(selected)
	perTypeCap := ceilDiv(target, len(types))

	kept := make([]entity.Question, 0, target)
	keptIDs := make(map[uint]struct{}, target)
	keptPerType := make(map[string]int, len(types))
	var overflow []entity.Question

	for _, q := range selected {
		examType := q.ExamTypeOrDefault()
		if keptPerType[examType] < perTypeCap {
			kept = append(kept, q)
			keptIDs[q.ID] = struct{}{}
			keptPerType[examType]++
		} else {
			overflow = append(overflow, q)
		}
	}

	// Альтернативы из пула для недопредставленных типов
	alternates := make(map[string][]entity.Question, len(types))
	for _, q := range available {
		if _, ok := keptIDs[q.ID]; ok {
			continue
		}
		examType := q.ExamTypeOrDefault()
		alternates[examType] = append(alternates[examType], q)
	}
	for _, bucket := range alternates {
		shuffleQuestions(bucket)
	}

	for len(kept) < target {
		// Берём тип с наименьшим представительством, у которого ещё есть кандидаты
		bestType := ""
		for examType := range types {
			if len(alternates[examType]) == 0 || keptPerType[examType] >= perTypeCap {
				continue
			}
			if bestType == "" || keptPerType[examType] < keptPerType[bestType] {
				bestType = examType
			}
		}
		if bestType == "" {
			break
		}
		q := alternates[bestType][0]
		alternates[bestType] = alternates[bestType][1:]
		kept = append(kept, q)
		keptIDs[q.ID] = struct{}{}
		keptPerType[bestType]++
	}

	// Если заменить нечем — возвращаем излишек, размер выборки важнее баланса
	for _, q := range overflow {
		if len(kept) >= target {
			break
		}
		if _, ok := keptIDs[q.ID]; ok {
			continue
		}
		kept = append(kept, q)
		keptIDs[q.ID] = struct{}{}
	}

	return kept
}

func countExamTypes(questions []entity.Question) int {
	types := make(map[string]struct{})
	for _, q := range questions {
		types[q.ExamTypeOrDefault()] = struct{}{}
	}
	return len(types)
}

func shuffleQuestions(questions []entity.Question) {
	rand.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
