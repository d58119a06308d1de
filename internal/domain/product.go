package domain

import "time"

// InfiniteStock — сентинел «бесконечного» остатка для shared-товаров:
// пока существует хотя бы одна неиспользованная карта, витрина показывает
// этот остаток вместо реального количества строк.
const InfiniteStock = 9999

// Product описывает товар витрины. Счётчики stock/locked/sold — это
// производный кеш поверх строк карт и заказов; источником истины они не
// являются и перезаписываются пересчётом целиком.
type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	IsActive   bool
	// IsShared — цифровой товар с одним общим секретом: карта не
	// расходуется на каждую покупку, один ключ выдаётся всем покупателям.
	IsShared bool
	// PurchaseLimit ограничивает количество в одном заказе; 0 — без лимита.
	PurchaseLimit int
	StockCount    int
	LockedCount   int
	SoldCount     int
	Rating        float64
	ReviewCount   int
	CreatedAt     time.Time
}

// Aggregates — пересчитанные значения производных счётчиков товара.
type Aggregates struct {
	StockCount  int
	LockedCount int
	SoldCount   int
	Rating      float64
	ReviewCount int
}

// ValidateInvariants проверяет базовые инварианты товара.
func (p *Product) ValidateInvariants() []error {
	var errs []error

	if p.ID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if p.Name == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.PriceMinor < 0 {
		errs = append(errs, ErrPriceNegative)
	}
	if p.PurchaseLimit < 0 {
		errs = append(errs, ErrPurchaseLimitInvalid)
	}

	return errs
}

// MaxQuantity возвращает максимально допустимое количество в одном заказе.
func (p *Product) MaxQuantity() int {
	if p.PurchaseLimit <= 0 {
		return 0
	}
	return p.PurchaseLimit
}

// Review — отзыв покупателя; участвует только в пересчёте рейтинга товара.
type Review struct {
	ID        int64
	ProductID string
	OrderID   string
	UserID    string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// RatingAggregate — сводка отзывов по товару.
type RatingAggregate struct {
	Average float64
	Count   int
}
