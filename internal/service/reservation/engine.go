package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/zyfzsi/ldc-shop/internal/domain"
	"github.com/zyfzsi/ldc-shop/internal/messaging/kafka"
	"github.com/zyfzsi/ldc-shop/internal/metrics"
)

// Sweeper — точечная инвалидация истёкших резервов перед захватом.
type Sweeper interface {
	SweepFiltered(ctx context.Context, filter domain.SweepFilter) ([]string, error)
}

// Recomputer — пересчёт агрегатов затронутых товаров.
type Recomputer interface {
	Recompute(ctx context.Context, productID string) error
}

// Request описывает запрос на создание резерва.
type Request struct {
	ProductID   string
	UserID      string
	Quantity    int
	PointsToUse int
}

// Engine — движок резервирования: оптимистический захват карт условными
// записями, компенсация при частичном захвате, создание pending-заказа.
// Никакой шаг не полагается на многотабличную транзакцию.
type Engine struct {
	products   domain.ProductRepository
	cards      domain.CardRepository
	orders     domain.OrderRepository
	users      domain.UserRepository
	settings   domain.SettingsRepository
	sweeper    Sweeper
	recomputer Recomputer
	publisher  domain.EventPublisher
	notifier   domain.NotificationDispatcher
	logger     *log.Entry
	metrics    *metrics.ShopMetrics
}

// Option настраивает Engine.
type Option func(*Engine)

// WithSweeper подключает точечный sweep перед захватом.
func WithSweeper(sweeper Sweeper) Option {
	return func(e *Engine) { e.sweeper = sweeper }
}

// WithRecomputer подключает best-effort пересчёт агрегатов.
func WithRecomputer(recomputer Recomputer) Option {
	return func(e *Engine) { e.recomputer = recomputer }
}

// WithPublisher подключает публикацию событий заказа.
func WithPublisher(publisher domain.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

// WithNotifier подключает уведомление покупателя о созданном заказе.
func WithNotifier(notifier domain.NotificationDispatcher) Option {
	return func(e *Engine) { e.notifier = notifier }
}

// WithMetrics подключает метрики.
func WithMetrics(shopMetrics *metrics.ShopMetrics) Option {
	return func(e *Engine) { e.metrics = shopMetrics }
}

// NewEngine создаёт движок резервирования.
func NewEngine(
	products domain.ProductRepository,
	cards domain.CardRepository,
	orders domain.OrderRepository,
	users domain.UserRepository,
	settings domain.SettingsRepository,
	logger *log.Entry,
	options ...Option,
) *Engine {
	if logger == nil {
		logger = log.WithField("component", "reservation")
	}
	e := &Engine{
		products: products,
		cards:    cards,
		orders:   orders,
		users:    users,
		settings: settings,
		logger:   logger,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Reserve создаёт заказ: проверяет товар и покупателя, списывает баллы
// условной записью, захватывает карты и сохраняет pending-заказ.
// При любом сбое после частичного шага выполняется компенсация: захваченные
// карты освобождаются, списанные баллы возвращаются.
func (e *Engine) Reserve(ctx context.Context, req Request) (domain.Order, error) {
	if req.Quantity < 1 {
		return domain.Order{}, e.reject("invalid_quantity", domain.ErrQuantityInvalid)
	}
	if req.PointsToUse < 0 {
		return domain.Order{}, e.reject("invalid_points", domain.ErrPointsNegative)
	}

	product, err := e.products.Get(req.ProductID)
	if err != nil {
		return domain.Order{}, e.reject("product_not_found", err)
	}
	if !product.IsActive {
		return domain.Order{}, e.reject("product_not_found", domain.ErrProductNotFound)
	}
	if limit := product.MaxQuantity(); limit > 0 && req.Quantity > limit {
		return domain.Order{}, e.reject("purchase_limit", domain.ErrPurchaseLimitExceeded)
	}

	user, err := e.users.Get(req.UserID)
	if err != nil {
		return domain.Order{}, e.reject("user_not_found", err)
	}
	if user.IsBlocked {
		return domain.Order{}, e.reject("user_blocked", domain.ErrUserBlocked)
	}

	amountMinor := product.PriceMinor * int64(req.Quantity)

	// Баллы клампятся к потолку суммы: переплата баллами невозможна.
	points := req.PointsToUse
	if max := domain.MaxRedeemablePoints(amountMinor); points > max {
		points = max
	}

	// Точечный sweep освобождает карты, удерживаемые истёкшими pending-заказами
	// этого товара, до того как захват увидит пустой пул.
	if e.sweeper != nil {
		if _, err := e.sweeper.SweepFiltered(ctx, domain.SweepFilter{ProductID: req.ProductID}); err != nil {
			e.logger.WithError(err).WithField("product_id", req.ProductID).Warn("opportunistic sweep failed")
		}
	}

	if points > 0 {
		ok, err := e.users.DeductPoints(req.UserID, points)
		if err != nil {
			return domain.Order{}, e.reject("points_deduct_failed", fmt.Errorf("deduct points: %w", err))
		}
		if !ok {
			return domain.Order{}, e.reject("insufficient_points", domain.ErrInsufficientPoints)
		}
	}

	order := domain.Order{
		OrderID:     uuid.NewString(),
		ProductID:   product.ID,
		ProductName: product.Name,
		AmountMinor: amountMinor - domain.PointsDiscountMinor(points, amountMinor),
		Quantity:    req.Quantity,
		Status:      domain.OrderStatusPending,
		UserID:      req.UserID,
		PointsUsed:  points,
		CreatedAt:   time.Now().UTC(),
	}

	if product.IsShared {
		err = e.reserveShared(product)
	} else {
		err = e.claimCards(order.OrderID, product.ID, req.Quantity)
	}
	if err != nil {
		e.refundPoints(req.UserID, points)
		return domain.Order{}, e.reject("out_of_stock", err)
	}

	if err := e.orders.Create(order); err != nil {
		// Заказ не записан: снимаем резерв и возвращаем баллы.
		if !product.IsShared {
			e.releaseClaimed(order.OrderID)
		}
		e.refundPoints(req.UserID, points)
		return domain.Order{}, e.reject("order_create_failed", fmt.Errorf("create order: %w", err))
	}

	if e.metrics != nil {
		e.metrics.RecordReservationCreated()
	}
	e.logger.WithFields(log.Fields{
		"order_id":   order.OrderID,
		"product_id": order.ProductID,
		"user_id":    order.UserID,
		"quantity":   order.Quantity,
	}).Info("reservation created")

	e.afterReserve(ctx, order)
	return order, nil
}

// reserveShared проверяет, что у shared-товара остался хотя бы один секрет.
// Карта не захватывается: один ключ выдаётся всем покупателям.
func (e *Engine) reserveShared(product domain.Product) error {
	has, err := e.cards.HasUnused(product.ID)
	if err != nil {
		return fmt.Errorf("check shared stock: %w", err)
	}
	if !has {
		return domain.ErrInsufficientStock
	}
	return nil
}

// claimCards захватывает ровно quantity карт; частичный захват откатывается
// целиком, остаточных резервов после ошибки не бывает.
func (e *Engine) claimCards(orderID, productID string, quantity int) error {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.RecordClaimDuration(time.Since(start))
		}
	}()

	now := time.Now().UTC()
	expiredBefore := now.Add(-domain.ReservationTTL(e.settings))

	candidates, err := e.cards.ListClaimable(productID, quantity, expiredBefore)
	if err != nil {
		return fmt.Errorf("list claimable cards: %w", err)
	}
	if len(candidates) < quantity {
		return domain.ErrInsufficientStock
	}

	ids := make([]int64, 0, quantity)
	for _, card := range candidates {
		ids = append(ids, card.ID)
	}

	claimed, err := e.cards.Claim(ids, orderID, now, expiredBefore)
	if err != nil {
		return fmt.Errorf("claim cards: %w", err)
	}
	if len(claimed) < quantity {
		// Конкурент выиграл часть условных обновлений; компенсируем свои.
		e.releaseClaimed(orderID)
		return domain.ErrCardClaimConflict
	}

	return nil
}

func (e *Engine) releaseClaimed(orderID string) {
	released, err := e.cards.Release(orderID)
	if err != nil {
		e.logger.WithError(err).WithField("order_id", orderID).Error("compensating release failed")
		return
	}
	if released > 0 && e.metrics != nil {
		e.metrics.RecordCompensationRelease()
	}
}

func (e *Engine) refundPoints(userID string, points int) {
	if points <= 0 {
		return
	}
	if err := e.users.AddPoints(userID, points); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"user_id": userID,
			"points":  points,
		}).Error("compensating points refund failed")
	}
}

// afterReserve — best-effort хвост: событие и пересчёт агрегатов.
// Сбой здесь не откатывает созданный заказ.
func (e *Engine) afterReserve(ctx context.Context, order domain.Order) {
	if e.publisher != nil {
		event := kafka.NewOrderEvent(
			kafka.EventTypeOrderCreated,
			order.OrderID, order.ProductID, order.UserID, string(order.Status),
			map[string]interface{}{
				"quantity":     order.Quantity,
				"amount_minor": order.AmountMinor,
				"points_used":  order.PointsUsed,
			},
		)
		if err := e.publisher.Publish(kafka.TopicOrderEvents, order.OrderID, event); err != nil {
			e.logger.WithError(err).WithField("order_id", order.OrderID).Warn("publish order created failed")
		}
	}
	if e.recomputer != nil {
		if err := e.recomputer.Recompute(ctx, order.ProductID); err != nil {
			e.logger.WithError(err).WithField("product_id", order.ProductID).Warn("recompute after reserve failed")
		}
	}
	if e.notifier != nil {
		err := e.notifier.Dispatch(domain.Notification{
			UserID:     order.UserID,
			Type:       "order_created",
			TitleKey:   "notification.order_created.title",
			ContentKey: "notification.order_created.content",
			Data:       map[string]string{"order_id": order.OrderID},
		})
		if err != nil {
			e.logger.WithError(err).WithField("order_id", order.OrderID).Warn("notification dispatch failed")
		}
	}
}

func (e *Engine) reject(reason string, err error) error {
	if e.metrics != nil {
		e.metrics.RecordReservationRejected(reason)
	}
	return err
}
