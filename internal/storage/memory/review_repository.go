package memory

import (
	"sync"
	"time"

	"github.com/zyfzsi/ldc-shop/internal/domain"
)

// reviewRepositoryInMemory — in-memory хранилище отзывов.
type reviewRepositoryInMemory struct {
	mu     sync.Mutex
	items  []domain.Review
	nextID int64
}

// NewReviewRepository возвращает in-memory репозиторий отзывов.
func NewReviewRepository() domain.ReviewRepository {
	return &reviewRepositoryInMemory{}
}

func (r *reviewRepositoryInMemory) Add(review domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	review.ID = r.nextID
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	r.items = append(r.items, review)
	return nil
}

// RatingsByProduct считает средний рейтинг и число отзывов по товарам.
func (r *reviewRepositoryInMemory) RatingsByProduct(productIDs []string) (map[string]domain.RatingAggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}

	sums := make(map[string]int, len(productIDs))
	counts := make(map[string]int, len(productIDs))
	for _, review := range r.items {
		if !wanted[review.ProductID] {
			continue
		}
		sums[review.ProductID] += review.Rating
		counts[review.ProductID]++
	}

	result := make(map[string]domain.RatingAggregate, len(counts))
	for id, count := range counts {
		result[id] = domain.RatingAggregate{
			Average: float64(sums[id]) / float64(count),
			Count:   count,
		}
	}
	return result, nil
}

var _ domain.ReviewRepository = (*reviewRepositoryInMemory)(nil)
