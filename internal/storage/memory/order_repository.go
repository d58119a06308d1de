package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/zyfzsi/ldc-shop/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository.
// Смена статуса делается CAS-проверкой под мьютексом, зеркально условному
// UPDATE с проверкой затронутых строк в Postgres-реализации.
type orderRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий заказов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
}

func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		return errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	r.items[order.OrderID] = order
	return nil
}

func (r *orderRepositoryInMemory) Get(orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r *orderRepositoryInMemory) ListByUser(userID string, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Order, 0, limit)
	for _, order := range r.items {
		if order.UserID == userID {
			result = append(result, order)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkPaid переводит pending → paid; дубликат колбэка увидит false.
func (r *orderRepositoryInMemory) MarkPaid(orderID, tradeNo string, paidAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[orderID]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if order.Status != domain.OrderStatusPending {
		return false, nil
	}
	order.Status = domain.OrderStatusPaid
	order.TradeNo = tradeNo
	order.PaidAt = paidAt
	r.items[orderID] = order
	return true, nil
}

func (r *orderRepositoryInMemory) MarkDelivered(orderID, cardKey string, cardIDs []int64, pointsAwarded int, deliveredAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[orderID]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if order.Status != domain.OrderStatusPaid {
		return false, nil
	}
	order.Status = domain.OrderStatusDelivered
	order.CardKey = cardKey
	order.CardIDs = append([]int64(nil), cardIDs...)
	order.PointsAwarded = pointsAwarded
	order.DeliveredAt = deliveredAt
	r.items[orderID] = order
	return true, nil
}

func (r *orderRepositoryInMemory) MarkStatus(orderID string, from []domain.OrderStatus, to domain.OrderStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[orderID]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	matched := false
	for _, status := range from {
		if order.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	order.Status = to
	r.items[orderID] = order
	return true, nil
}

// ExpirePending отменяет pending-заказы старше before с учётом фильтра.
func (r *orderRepositoryInMemory) ExpirePending(before time.Time, filter domain.SweepFilter) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	expired := make([]string, 0, 4)
	for id, order := range r.items {
		if order.Status != domain.OrderStatusPending || !order.CreatedAt.Before(before) {
			continue
		}
		if filter.ProductID != "" && order.ProductID != filter.ProductID {
			continue
		}
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.OrderID != "" && order.OrderID != filter.OrderID {
			continue
		}
		order.Status = domain.OrderStatusCancelled
		r.items[id] = order
		expired = append(expired, id)
	}
	sort.Strings(expired)
	return expired, nil
}

func (r *orderRepositoryInMemory) SoldByProduct(productIDs []string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}

	result := make(map[string]int, len(productIDs))
	for _, order := range r.items {
		if !wanted[order.ProductID] {
			continue
		}
		if order.Status != domain.OrderStatusPaid && order.Status != domain.OrderStatusDelivered {
			continue
		}
		result[order.ProductID] += order.Quantity
	}
	return result, nil
}

func (r *orderRepositoryInMemory) ProductsOf(orderIDs []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(orderIDs))
	products := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		order, ok := r.items[id]
		if !ok || seen[order.ProductID] {
			continue
		}
		seen[order.ProductID] = true
		products = append(products, order.ProductID)
	}
	sort.Strings(products)
	return products, nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
