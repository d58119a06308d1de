package domain

// Notification — сообщение покупателю или администратору. Формированием
// текста и каналом доставки занимается внешний коллаборатор; движок лишь
// передаёт ключи шаблона и данные.
type Notification struct {
	UserID     string
	Type       string
	TitleKey   string
	ContentKey string
	Data       map[string]string
}

// NotificationDispatcher — fire-and-forget доставка уведомлений.
// Ошибка доставки никогда не откатывает состояние заказа.
type NotificationDispatcher interface {
	Dispatch(n Notification) error
}

// EventPublisher публикует доменные события наружу (Kafka и т.п.).
// Публикация best-effort: сбой логируется и не прерывает операцию.
type EventPublisher interface {
	Publish(topic string, key string, event any) error
}

// PaymentProof — подтверждение платежа от платёжного шлюза.
type PaymentProof struct {
	TradeNo   string
	PaidMinor int64
	Success   bool
}
