package memory

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/zyfzsi/ldc-shop/internal/domain"
)

// productRepositoryInMemory — in-memory реализация ProductRepository.
type productRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.Product
}

// NewProductRepository возвращает in-memory репозиторий товаров.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{
		items: make(map[string]domain.Product),
	}
}

func (r *productRepositoryInMemory) Create(product domain.Product) error {
	if errs := product.ValidateInvariants(); len(errs) != 0 {
		return errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return errors.New("product already exists: " + product.ID)
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	r.items[product.ID] = product
	return nil
}

func (r *productRepositoryInMemory) Get(id string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (r *productRepositoryInMemory) List() ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Product, 0, len(r.items))
	for _, product := range r.items {
		result = append(result, product)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// UpdateAggregates перезаписывает производные счётчики целиком (last-write-wins).
func (r *productRepositoryInMemory) UpdateAggregates(id string, agg domain.Aggregates) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.applyAggregates(id, agg)
}

func (r *productRepositoryInMemory) UpdateAggregatesBulk(aggs map[string]domain.Aggregates) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, agg := range aggs {
		if err := r.applyAggregates(id, agg); err != nil {
			return err
		}
	}
	return nil
}

func (r *productRepositoryInMemory) applyAggregates(id string, agg domain.Aggregates) error {
	product, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.StockCount = agg.StockCount
	product.LockedCount = agg.LockedCount
	product.SoldCount = agg.SoldCount
	product.Rating = agg.Rating
	product.ReviewCount = agg.ReviewCount
	r.items[id] = product
	return nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
