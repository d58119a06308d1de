package domain

import "time"

// OrderStatus описывает жизненный цикл заказа витрины.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, карты зарезервированы, оплата не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid — оплата подтверждена платёжным шлюзом.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusDelivered — ключи выданы покупателю; успешный терминал.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён (истёк резерв либо явная отмена).
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded — средства возвращены после оплаты/доставки.
	OrderStatusRefunded OrderStatus = "refunded"
	// OrderStatusFailed — платёж отклонён; терминал.
	OrderStatusFailed OrderStatus = "failed"
)

// allowedTransitions — граф допустимых переходов статусов.
// Переходы монотонны: из терминальных статусов выхода нет.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusPaid, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusPaid:      {OrderStatusDelivered, OrderStatusRefunded, OrderStatusFailed},
	OrderStatusDelivered: {OrderStatusRefunded},
}

// CanTransition проверяет, допустим ли переход from → to.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal сообщает, является ли статус терминальным.
func IsTerminal(status OrderStatus) bool {
	return len(allowedTransitions[status]) == 0
}

// Order агрегирует состояние заказа.
type Order struct {
	OrderID     string
	ProductID   string
	ProductName string
	// AmountMinor — итоговая сумма к оплате после скидки баллами.
	AmountMinor int64
	Quantity    int
	Status      OrderStatus
	// TradeNo — внешний номер транзакции платёжного шлюза.
	TradeNo string
	// CardKey — выданный секрет shared-товара (для обычных товаров пусто).
	CardKey string
	// CardIDs — карты, закреплённые за заказом; заполняется при доставке и
	// обязан совпадать с картами, чей резерв указывал на этот заказ.
	CardIDs []int64
	UserID  string
	// PointsUsed — баллы, списанные при создании заказа.
	PointsUsed int
	// PointsAwarded — баллы, начисленные при доставке.
	PointsAwarded int
	PaidAt        time.Time
	DeliveredAt   time.Time
	CreatedAt     time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if o.ProductID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if o.Quantity < 1 {
		errs = append(errs, ErrQuantityInvalid)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if o.PointsUsed < 0 {
		errs = append(errs, ErrPointsNegative)
	}

	return errs
}

// SweepFilter сужает выборку истёкших pending-заказов для точечной
// инвалидации (например, повторная попытка покупки того же товара).
type SweepFilter struct {
	ProductID string
	UserID    string
	OrderID   string
}
