package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// События заказа
	EventTypeOrderCreated   EventType = "order.created"
	EventTypeOrderPaid      EventType = "order.paid"
	EventTypeOrderDelivered EventType = "order.delivered"
	EventTypeOrderCancelled EventType = "order.cancelled"
	EventTypeOrderRefunded  EventType = "order.refunded"
	EventTypeOrderExpired   EventType = "order.expired"
	EventTypeOrderFailed    EventType = "order.failed"

	// События стока
	EventTypeStockLow        EventType = "stock.low"
	EventTypeStockRecomputed EventType = "stock.recomputed"
)

// Topics для Kafka
const (
	TopicOrderEvents = "shop.order.events"
	TopicStockEvents = "shop.stock.events"
)

// OrderEvent представляет событие жизненного цикла заказа
type OrderEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   string                 `json:"order_id"`
	ProductID string                 `json:"product_id"`
	UserID    string                 `json:"user_id"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// StockEvent представляет событие изменения стока товара
type StockEvent struct {
	EventType EventType `json:"event_type"`
	ProductID string    `json:"product_id"`
	Available int       `json:"available"`
	Locked    int       `json:"locked"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, productID, userID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		ProductID: productID,
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// NewStockEvent создает новое событие стока
func NewStockEvent(eventType EventType, productID string, available, locked int) *StockEvent {
	return &StockEvent{
		EventType: eventType,
		ProductID: productID,
		Available: available,
		Locked:    locked,
		Timestamp: time.Now(),
	}
}
