package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/zyfzsi/ldc-shop/internal/domain"
)

// cardRepositoryInMemory — in-memory реализация CardRepository. Повторяет
// семантику условных однострочных записей: каждый захват проверяет предикат
// «свободна или резерв истёк» под мьютексом, как это делает условный UPDATE.
type cardRepositoryInMemory struct {
	mu     sync.Mutex
	items  map[int64]domain.Card
	nextID int64
}

// NewCardRepository возвращает in-memory репозиторий карт для тестов и
// локальной разработки.
func NewCardRepository() domain.CardRepository {
	return &cardRepositoryInMemory{
		items: make(map[int64]domain.Card),
	}
}

// Add добавляет карты, присваивая автоинкрементные идентификаторы.
func (r *cardRepositoryInMemory) Add(cards []domain.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, card := range cards {
		if errs := card.Validate(); len(errs) != 0 {
			return errs[0]
		}
		r.nextID++
		card.ID = r.nextID
		if card.CreatedAt.IsZero() {
			card.CreatedAt = time.Now().UTC()
		}
		r.items[card.ID] = card
	}
	return nil
}

func (r *cardRepositoryInMemory) Get(id int64) (domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	card, ok := r.items[id]
	if !ok {
		return domain.Card{}, domain.ErrCardNotFound
	}
	return card, nil
}

// ListClaimable возвращает карты-кандидаты в порядке возрастания ID.
func (r *cardRepositoryInMemory) ListClaimable(productID string, limit int, expiredBefore time.Time) ([]domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Card, 0, limit)
	for _, card := range r.items {
		if card.ProductID != productID {
			continue
		}
		if !claimable(card, expiredBefore) {
			continue
		}
		result = append(result, card)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Claim захватывает карты по одной; карта, уже занятая живым резервом,
// молча пропускается — ровно как UPDATE с нулём затронутых строк.
func (r *cardRepositoryInMemory) Claim(ids []int64, orderID string, now time.Time, expiredBefore time.Time) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	claimed := make([]int64, 0, len(ids))
	for _, id := range ids {
		card, ok := r.items[id]
		if !ok || !claimable(card, expiredBefore) {
			continue
		}
		card.ReservedOrderID = orderID
		card.ReservedAt = now
		r.items[id] = card
		claimed = append(claimed, id)
	}
	return claimed, nil
}

// Release снимает резерв заказа; использованные карты не трогаются.
func (r *cardRepositoryInMemory) Release(orderID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	released := 0
	for id, card := range r.items {
		if card.ReservedOrderID != orderID || card.IsUsed {
			continue
		}
		card.ReservedOrderID = ""
		card.ReservedAt = time.Time{}
		r.items[id] = card
		released++
	}
	return released, nil
}

// MarkUsed финализирует карты заказа: помечает использованными и снимает резерв.
func (r *cardRepositoryInMemory) MarkUsed(orderID string, now time.Time) ([]domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	used := make([]domain.Card, 0, 2)
	for id, card := range r.items {
		if card.ReservedOrderID != orderID || card.IsUsed {
			continue
		}
		card.IsUsed = true
		card.UsedAt = now
		card.ReservedOrderID = ""
		card.ReservedAt = time.Time{}
		r.items[id] = card
		used = append(used, card)
	}
	sort.Slice(used, func(i, j int) bool { return used[i].ID < used[j].ID })
	return used, nil
}

func (r *cardRepositoryInMemory) ListByOrder(orderID string) ([]domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Card, 0, 2)
	for _, card := range r.items {
		if card.ReservedOrderID == orderID {
			result = append(result, card)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *cardRepositoryInMemory) HasUnused(productID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, card := range r.items {
		if card.ProductID == productID && !card.IsUsed {
			return true, nil
		}
	}
	return false, nil
}

// SharedKey возвращает ключ самой старой неиспользованной карты товара.
func (r *cardRepositoryInMemory) SharedKey(productID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var oldest *domain.Card
	for _, card := range r.items {
		if card.ProductID != productID || card.IsUsed {
			continue
		}
		c := card
		if oldest == nil || c.ID < oldest.ID {
			oldest = &c
		}
	}
	if oldest == nil {
		return "", domain.ErrInsufficientStock
	}
	return oldest.CardKey, nil
}

func (r *cardRepositoryInMemory) CountsByProduct(productIDs []string, expiredBefore time.Time) (map[string]domain.CardCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}

	result := make(map[string]domain.CardCounts, len(productIDs))
	for _, card := range r.items {
		if !wanted[card.ProductID] || card.IsUsed {
			continue
		}
		counts := result[card.ProductID]
		counts.Unused++
		if claimable(card, expiredBefore) {
			counts.Available++
		} else {
			counts.Locked++
		}
		result[card.ProductID] = counts
	}
	return result, nil
}

// claimable — предикат условного захвата: не использована и либо свободна,
// либо резерв старше expiredBefore.
func claimable(card domain.Card, expiredBefore time.Time) bool {
	if card.IsUsed {
		return false
	}
	if card.ReservedOrderID == "" || card.ReservedAt.IsZero() {
		return true
	}
	return card.ReservedAt.Before(expiredBefore)
}

var _ domain.CardRepository = (*cardRepositoryInMemory)(nil)
