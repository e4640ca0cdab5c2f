package selection

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/yourusername/practice-api/internal/domain/entity"
)

// Distributor распределяет общий запрос по нескольким темам, запускает
// селектор по каждой теме параллельно и компенсирует нехватку в одних
// темах за счёт других.
type Distributor struct {
	cache    *PoolCache
	selector *Selector
	config   *Config
}

// NewDistributor создает новый распределитель
func NewDistributor(cache *PoolCache, selector *Selector, config *Config) *Distributor {
	return &Distributor{
		cache:    cache,
		selector: selector,
		config:   config,
	}
}

// Distribute делит totalCount поровну между темами. Сумма всегда равна
// totalCount, разница между темами не больше 1: остаток получают первые
// темы в порядке входного списка.
func (d *Distributor) Distribute(topicIDs []uint, totalCount int) map[uint]int {
	distribution := make(map[uint]int, len(topicIDs))
	if len(topicIDs) == 0 || totalCount <= 0 {
		return distribution
	}

	base := totalCount / len(topicIDs)
	remainder := totalCount % len(topicIDs)
	for i, topicID := range topicIDs {
		distribution[topicID] = base
		if i < remainder {
			distribution[topicID]++
		}
	}
	return distribution
}

// topicPick — результат подбора по одной теме
type topicPick struct {
	topicID   uint
	questions []entity.Question
	err       error
}

// fetchTopics параллельно получает пулы тем и прогоняет их через селектор.
// Любая ошибка хранилища прерывает весь вызов: вопросы молча не подменяются.
func (d *Distributor) fetchTopics(ctx context.Context, requests map[uint]int, excluded map[uint]struct{}) ([]topicPick, error) {
	picks := make([]topicPick, 0, len(requests))
	resultCh := make(chan topicPick, len(requests))

	var wg sync.WaitGroup
	for topicID, count := range requests {
		if count <= 0 {
			continue
		}
		wg.Add(1)
		go func(topicID uint, count int) {
			defer wg.Done()

			if err := ctx.Err(); err != nil {
				resultCh <- topicPick{topicID: topicID, err: err}
				return
			}

			pool, err := d.cache.GetPool(ctx, topicID)
			if err != nil {
				resultCh <- topicPick{topicID: topicID, err: err}
				return
			}

			questions := d.selector.Select(pool, excluded, count)
			resultCh <- topicPick{topicID: topicID, questions: questions}
		}(topicID, count)
	}

	wg.Wait()
	close(resultCh)

	for pick := range resultCh {
		if pick.err != nil {
			return nil, pick.err
		}
		picks = append(picks, pick)
	}
	return picks, nil
}

// SelectAcrossTopics набирает totalCount вопросов по списку тем.
// По каждой теме запрашивается запас кандидатов (3x от квоты, но не меньше
// 3–5), чтобы пережить дедупликацию и балансировку по типу экзамена.
// Нехватка после объединения — не ошибка: возвращается что есть, нехватку
// видно по длине результата.
func (d *Distributor) SelectAcrossTopics(ctx context.Context, topicIDs []uint, totalCount int, excluded map[uint]struct{}) ([]entity.Question, error) {
	if len(topicIDs) == 0 || totalCount <= 0 {
		return nil, nil
	}

	minPerTopic := d.config.MinPerTopicLarge
	if totalCount < d.config.SmallTotalThreshold {
		minPerTopic = d.config.MinPerTopicSmall
	}

	distribution := d.Distribute(topicIDs, totalCount)
	requests := make(map[uint]int, len(distribution))
	for topicID, base := range distribution {
		request := base * d.config.OverRequestFactor
		if request < minPerTopic {
			request = minPerTopic
		}
		requests[topicID] = request
	}

	picks, err := d.fetchTopics(ctx, requests, excluded)
	if err != nil {
		return nil, err
	}

	combined := dedupeQuestions(picks)

	if len(combined) < totalCount {
		log.Printf("[Distributor] Недобор: по %d темам доступно %d вопросов из запрошенных %d",
			len(topicIDs), len(combined), totalCount)
		shuffleQuestions(combined)
		return combined, nil
	}

	if len(combined) > totalCount && countExamTypes(combined) > 1 {
		combined = trimBalancedByExamType(combined, totalCount)
	}

	shuffleQuestions(combined)
	if len(combined) > totalCount {
		combined = combined[:totalCount]
	}
	return combined, nil
}

// SelectWithDistribution набирает вопросы по точным квотам тем.
// Если тема недодала, нехватка компенсируется из тем с наибольшими
// квотами (у них вероятнее всего остался запас). Результат никогда не
// превышает суммы квот.
func (d *Distributor) SelectWithDistribution(ctx context.Context, distribution map[uint]int, excluded map[uint]struct{}) ([]entity.Question, error) {
	totalCount := 0
	for _, count := range distribution {
		totalCount += count
	}
	if totalCount <= 0 {
		return nil, nil
	}

	picks, err := d.fetchTopics(ctx, distribution, excluded)
	if err != nil {
		return nil, err
	}

	combined := dedupeQuestions(picks)

	// Компенсация нехватки: обходим темы от самой большой квоты к самой
	// маленькой и просим добавки, исключая всё уже выбранное
	if len(combined) < totalCount {
		ordered := make([]uint, 0, len(distribution))
		for topicID := range distribution {
			ordered = append(ordered, topicID)
		}
		sort.Slice(ordered, func(i, j int) bool {
			if distribution[ordered[i]] != distribution[ordered[j]] {
				return distribution[ordered[i]] > distribution[ordered[j]]
			}
			return ordered[i] < ordered[j]
		})

		taken := make(map[uint]struct{}, totalCount+len(excluded))
		for id := range excluded {
			taken[id] = struct{}{}
		}
		for _, q := range combined {
			taken[q.ID] = struct{}{}
		}

		for _, topicID := range ordered {
			shortfall := totalCount - len(combined)
			if shortfall <= 0 {
				break
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			pool, err := d.cache.GetPool(ctx, topicID)
			if err != nil {
				return nil, err
			}
			extra := d.selector.Select(pool, taken, shortfall)
			for _, q := range extra {
				taken[q.ID] = struct{}{}
				combined = append(combined, q)
			}
			if len(extra) > 0 {
				log.Printf("[Distributor] Тема #%d компенсировала %d вопросов", topicID, len(extra))
			}
		}

		if len(combined) < totalCount {
			log.Printf("[Distributor] Недобор после компенсации: %d из %d", len(combined), totalCount)
		}
	}

	shuffleQuestions(combined)
	if len(combined) > totalCount {
		combined = combined[:totalCount]
	}
	return combined, nil
}

// dedupeQuestions объединяет результаты тем, убирая дубликаты по ID
func dedupeQuestions(picks []topicPick) []entity.Question {
	var combined []entity.Question
	seen := make(map[uint]struct{})
	for _, pick := range picks {
		for _, q := range pick.questions {
			if _, ok := seen[q.ID]; ok {
				continue
			}
			seen[q.ID] = struct{}{}
			combined = append(combined, q)
		}
	}
	return combined
}

// trimBalancedByExamType ужимает выборку до totalCount, разбирая вопросы
// по типам экзамена по кругу: ни один тип не забирает больше своей
// равной доли, пока у других есть кандидаты.
func trimBalancedByExamType(questions []entity.Question, totalCount int) []entity.Question {
	byType := make(map[string][]entity.Question)
	typeOrder := make([]string, 0)
	for _, q := range questions {
		examType := q.ExamTypeOrDefault()
		if _, ok := byType[examType]; !ok {
			typeOrder = append(typeOrder, examType)
		}
		byType[examType] = append(byType[examType], q)
	}
	for _, bucket := range byType {
		shuffleQuestions(bucket)
	}
	sort.Strings(typeOrder)

	trimmed := make([]entity.Question, 0, totalCount)
	for len(trimmed) < totalCount {
		progressed := false
		for _, examType := range typeOrder {
			if len(trimmed) >= totalCount {
				break
			}
			bucket := byType[examType]
			if len(bucket) == 0 {
				continue
			}
			trimmed = append(trimmed, bucket[0])
			byType[examType] = bucket[1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return trimmed
}
