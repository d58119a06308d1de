package lifecycle

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zyfzsi/ldc-shop/internal/domain"
	"github.com/zyfzsi/ldc-shop/internal/messaging/kafka"
	"github.com/zyfzsi/ldc-shop/internal/metrics"
)

// Recomputer — пересчёт агрегатов затронутых товаров.
type Recomputer interface {
	Recompute(ctx context.Context, productID string) error
}

// CallbackDedup — advisory-кеш обработанных колбэков и разовых уведомлений.
// Seen читает, Mark пишет: ключ появляется только после успешного перехода
// статуса, поэтому кеш никогда не глушит повтор незавершённого колбэка.
type CallbackDedup interface {
	SeenPaymentCallback(ctx context.Context, orderID, tradeNo string) bool
	MarkPaymentCallback(ctx context.Context, orderID, tradeNo string)
	MarkLowStockNotified(ctx context.Context, productID string) bool
}

// Machine — машина статусов заказа. Каждый переход — условное обновление
// с проверкой затронутых строк; дубликаты и гонки разрешаются в пользу
// первого выигравшего CAS, проигравший получает идемпотентный результат
// либо ErrInvalidTransition.
type Machine struct {
	orders     domain.OrderRepository
	cards      domain.CardRepository
	users      domain.UserRepository
	products   domain.ProductRepository
	settings   domain.SettingsRepository
	recomputer Recomputer
	publisher  domain.EventPublisher
	notifier   domain.NotificationDispatcher
	dedup      CallbackDedup
	logger     *log.Entry
	metrics    *metrics.ShopMetrics
}

// Option настраивает Machine.
type Option func(*Machine)

// WithRecomputer подключает best-effort пересчёт агрегатов.
func WithRecomputer(recomputer Recomputer) Option {
	return func(m *Machine) { m.recomputer = recomputer }
}

// WithPublisher подключает публикацию событий заказа.
func WithPublisher(publisher domain.EventPublisher) Option {
	return func(m *Machine) { m.publisher = publisher }
}

// WithNotifier подключает доставку уведомлений.
func WithNotifier(notifier domain.NotificationDispatcher) Option {
	return func(m *Machine) { m.notifier = notifier }
}

// WithDedup подключает Redis-дедупликацию платёжных колбэков.
func WithDedup(dedup CallbackDedup) Option {
	return func(m *Machine) { m.dedup = dedup }
}

// WithMetrics подключает метрики.
func WithMetrics(shopMetrics *metrics.ShopMetrics) Option {
	return func(m *Machine) { m.metrics = shopMetrics }
}

// NewMachine создаёт машину статусов заказа.
func NewMachine(
	orders domain.OrderRepository,
	cards domain.CardRepository,
	users domain.UserRepository,
	products domain.ProductRepository,
	settings domain.SettingsRepository,
	logger *log.Entry,
	options ...Option,
) *Machine {
	if logger == nil {
		logger = log.WithField("component", "lifecycle")
	}
	m := &Machine{
		orders:   orders,
		cards:    cards,
		users:    users,
		products: products,
		settings: settings,
		logger:   logger,
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// MarkPaid обрабатывает подтверждение платежа. Дубликат колбэка — успех без
// побочных эффектов; отклонённый платёж переводит заказ в failed с полной
// компенсацией резерва и баллов.
func (m *Machine) MarkPaid(ctx context.Context, orderID string, proof domain.PaymentProof) error {
	if m.dedup != nil && m.dedup.SeenPaymentCallback(ctx, orderID, proof.TradeNo) {
		m.logger.WithFields(log.Fields{
			"order_id": orderID,
			"trade_no": proof.TradeNo,
		}).Debug("duplicate payment callback suppressed")
		return nil
	}

	order, err := m.orders.Get(orderID)
	if err != nil {
		return err
	}

	if !proof.Success {
		if err := m.failOrder(ctx, order, "payment rejected by gateway"); err != nil {
			return err
		}
		m.markCallbackDone(ctx, orderID, proof.TradeNo)
		return nil
	}

	ok, err := m.orders.MarkPaid(orderID, proof.TradeNo, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	if !ok {
		// CAS проигран: заказ уже ушёл из pending. Повторный колбэк по
		// оплаченному заказу — идемпотентный успех.
		current, err := m.orders.Get(orderID)
		if err != nil {
			return err
		}
		if current.Status == domain.OrderStatusPaid || current.Status == domain.OrderStatusDelivered {
			m.markCallbackDone(ctx, orderID, proof.TradeNo)
			return nil
		}
		return domain.ErrInvalidTransition
	}
	m.markCallbackDone(ctx, orderID, proof.TradeNo)

	if m.metrics != nil {
		m.metrics.RecordOrderPaid()
	}
	m.logger.WithFields(log.Fields{
		"order_id": orderID,
		"trade_no": proof.TradeNo,
	}).Info("order paid")

	m.publishOrderEvent(kafka.EventTypeOrderPaid, order, map[string]interface{}{
		"trade_no":   proof.TradeNo,
		"paid_minor": proof.PaidMinor,
	})
	return nil
}

// Deliver выдаёт контент оплаченного заказа: финализирует ровно те карты,
// чей резерв указывает на заказ, начисляет баллы и публикует событие.
func (m *Machine) Deliver(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status == domain.OrderStatusDelivered {
		return order, nil
	}
	if order.Status != domain.OrderStatusPaid {
		return domain.Order{}, domain.ErrInvalidTransition
	}

	product, err := m.products.Get(order.ProductID)
	if err != nil {
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	var (
		cardKey string
		cardIDs []int64
	)
	if product.IsShared {
		cardKey, err = m.cards.SharedKey(product.ID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("shared key: %w", err)
		}
	} else {
		used, err := m.cards.MarkUsed(orderID, now)
		if err != nil {
			return domain.Order{}, fmt.Errorf("finalize cards: %w", err)
		}
		if len(used) != order.Quantity {
			if len(used) == 0 {
				// Карты уже финализированы конкурирующей доставкой. Если она
				// успела выиграть CAS — вернуть её результат; доставлять заказ
				// без единой карты нельзя.
				current, err := m.orders.Get(orderID)
				if err != nil {
					return domain.Order{}, err
				}
				if current.Status == domain.OrderStatusDelivered {
					return current, nil
				}
				return domain.Order{}, domain.ErrCardClaimConflict
			}
			m.logger.WithFields(log.Fields{
				"order_id": orderID,
				"used":     len(used),
				"expected": order.Quantity,
			}).Error("finalized card count mismatch")
			return domain.Order{}, domain.ErrCardClaimConflict
		}
		for _, card := range used {
			cardIDs = append(cardIDs, card.ID)
		}
	}

	pointsAwarded := domain.PointsAwardRate(m.settings) * int(order.AmountMinor/100)

	ok, err := m.orders.MarkDelivered(orderID, cardKey, cardIDs, pointsAwarded, now)
	if err != nil {
		return domain.Order{}, fmt.Errorf("mark delivered: %w", err)
	}
	if !ok {
		current, err := m.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}
		if current.Status == domain.OrderStatusDelivered {
			return current, nil
		}
		return domain.Order{}, domain.ErrInvalidTransition
	}

	if pointsAwarded > 0 {
		if err := m.users.AddPoints(order.UserID, pointsAwarded); err != nil {
			m.logger.WithError(err).WithFields(log.Fields{
				"order_id": orderID,
				"points":   pointsAwarded,
			}).Error("award points failed")
		}
	}

	if m.metrics != nil {
		m.metrics.RecordOrderDelivered()
	}
	m.logger.WithFields(log.Fields{
		"order_id": orderID,
		"cards":    len(cardIDs),
		"points":   pointsAwarded,
	}).Info("order delivered")

	m.publishOrderEvent(kafka.EventTypeOrderDelivered, order, map[string]interface{}{
		"points_awarded": pointsAwarded,
	})
	m.notify(order.UserID, "order_delivered", map[string]string{"order_id": orderID})
	m.recompute(ctx, order.ProductID)
	m.checkLowStock(ctx, order.ProductID)

	delivered, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return delivered, nil
}

// Refund переводит оплаченный или доставленный заказ в refunded.
// Списанные при покупке баллы возвращаются; начисленные за покупку
// изымаются целиком, только если это включено настройкой и баланса хватает.
func (m *Machine) Refund(ctx context.Context, orderID string) error {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return err
	}

	ok, err := m.orders.MarkStatus(orderID,
		[]domain.OrderStatus{domain.OrderStatusPaid, domain.OrderStatusDelivered},
		domain.OrderStatusRefunded)
	if err != nil {
		return fmt.Errorf("mark refunded: %w", err)
	}
	if !ok {
		return domain.ErrInvalidTransition
	}

	// Недоставленный заказ ещё удерживает карты — вернуть их в пул.
	if order.Status == domain.OrderStatusPaid {
		if _, err := m.cards.Release(orderID); err != nil {
			m.logger.WithError(err).WithField("order_id", orderID).Error("release cards on refund failed")
		}
	}

	if order.PointsUsed > 0 {
		if err := m.users.AddPoints(order.UserID, order.PointsUsed); err != nil {
			m.logger.WithError(err).WithField("order_id", orderID).Error("return spent points failed")
		}
	}
	if order.PointsAwarded > 0 && domain.PointsReclaimOnRefund(m.settings) {
		reclaimed, err := m.users.DeductPoints(order.UserID, order.PointsAwarded)
		if err != nil {
			m.logger.WithError(err).WithField("order_id", orderID).Error("reclaim awarded points failed")
		} else if !reclaimed {
			m.logger.WithFields(log.Fields{
				"order_id": orderID,
				"points":   order.PointsAwarded,
			}).Warn("awarded points already spent, reclaim skipped")
		}
	}

	if m.metrics != nil {
		m.metrics.RecordOrderRefunded()
	}
	m.logger.WithField("order_id", orderID).Info("order refunded")

	m.publishOrderEvent(kafka.EventTypeOrderRefunded, order, nil)
	m.notify(order.UserID, "order_refunded", map[string]string{"order_id": orderID})
	m.recompute(ctx, order.ProductID)
	return nil
}

// Cancel отменяет неоплаченный заказ: CAS pending → cancelled, резерв
// снимается, списанные баллы возвращаются.
func (m *Machine) Cancel(ctx context.Context, orderID string) error {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return err
	}

	ok, err := m.orders.MarkStatus(orderID,
		[]domain.OrderStatus{domain.OrderStatusPending},
		domain.OrderStatusCancelled)
	if err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	if !ok {
		if order.Status == domain.OrderStatusCancelled {
			return nil
		}
		return domain.ErrInvalidTransition
	}

	m.compensatePending(order, "cancelled")

	if m.metrics != nil {
		m.metrics.RecordOrderCancelled()
	}
	m.logger.WithField("order_id", orderID).Info("order cancelled")

	m.publishOrderEvent(kafka.EventTypeOrderCancelled, order, nil)
	m.recompute(ctx, order.ProductID)
	return nil
}

func (m *Machine) failOrder(ctx context.Context, order domain.Order, reason string) error {
	ok, err := m.orders.MarkStatus(order.OrderID,
		[]domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusPaid},
		domain.OrderStatusFailed)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if !ok {
		return domain.ErrInvalidTransition
	}

	m.compensatePending(order, reason)
	m.logger.WithFields(log.Fields{
		"order_id": order.OrderID,
		"reason":   reason,
	}).Warn("order failed")

	m.publishOrderEvent(kafka.EventTypeOrderFailed, order, map[string]interface{}{"reason": reason})
	m.recompute(ctx, order.ProductID)
	return nil
}

// compensatePending снимает резерв карт и возвращает списанные баллы.
func (m *Machine) compensatePending(order domain.Order, cause string) {
	if _, err := m.cards.Release(order.OrderID); err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.OrderID,
			"cause":    cause,
		}).Error("release cards failed")
	}
	if order.PointsUsed > 0 {
		if err := m.users.AddPoints(order.UserID, order.PointsUsed); err != nil {
			m.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.OrderID,
				"points":   order.PointsUsed,
			}).Error("return spent points failed")
		}
	}
}

// checkLowStock отправляет администратору одно уведомление на товар, когда
// доступный остаток опускается до порога.
func (m *Machine) checkLowStock(ctx context.Context, productID string) {
	threshold := domain.LowStockThreshold(m.settings)
	if threshold <= 0 {
		return
	}

	product, err := m.products.Get(productID)
	if err != nil {
		m.logger.WithError(err).WithField("product_id", productID).Warn("low stock check failed")
		return
	}
	if product.IsShared || product.StockCount > threshold {
		return
	}
	if m.dedup != nil && !m.dedup.MarkLowStockNotified(ctx, productID) {
		return
	}

	m.notify("admin", "low_stock", map[string]string{
		"product_id": productID,
		"stock":      fmt.Sprintf("%d", product.StockCount),
	})
	if m.publisher != nil {
		event := kafka.NewStockEvent(kafka.EventTypeStockLow, productID, product.StockCount, product.LockedCount)
		if err := m.publisher.Publish(kafka.TopicStockEvents, productID, event); err != nil {
			m.logger.WithError(err).WithField("product_id", productID).Warn("publish low stock failed")
		}
	}
}

// markCallbackDone фиксирует обработанный колбэк в advisory-кеше.
func (m *Machine) markCallbackDone(ctx context.Context, orderID, tradeNo string) {
	if m.dedup != nil {
		m.dedup.MarkPaymentCallback(ctx, orderID, tradeNo)
	}
}

func (m *Machine) publishOrderEvent(eventType kafka.EventType, order domain.Order, metadata map[string]interface{}) {
	if m.publisher == nil {
		return
	}
	event := kafka.NewOrderEvent(eventType, order.OrderID, order.ProductID, order.UserID, string(order.Status), metadata)
	if err := m.publisher.Publish(kafka.TopicOrderEvents, order.OrderID, event); err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   order.OrderID,
		}).Warn("publish order event failed")
	}
}

func (m *Machine) notify(userID, notificationType string, data map[string]string) {
	if m.notifier == nil {
		return
	}
	err := m.notifier.Dispatch(domain.Notification{
		UserID:     userID,
		Type:       notificationType,
		TitleKey:   "notification." + notificationType + ".title",
		ContentKey: "notification." + notificationType + ".content",
		Data:       data,
	})
	if err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"user_id": userID,
			"type":    notificationType,
		}).Warn("notification dispatch failed")
	}
}

func (m *Machine) recompute(ctx context.Context, productID string) {
	if m.recomputer == nil {
		return
	}
	if err := m.recomputer.Recompute(ctx, productID); err != nil {
		m.logger.WithError(err).WithField("product_id", productID).Warn("recompute failed")
	}
}
