package sweeper

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zyfzsi/ldc-shop/internal/domain"
	"github.com/zyfzsi/ldc-shop/internal/messaging/kafka"
)

// Recomputer — пересчёт агрегатов затронутых товаров после sweep'а.
type Recomputer interface {
	RecomputeMany(ctx context.Context, productIDs []string) error
}

// Sweeper отменяет pending-заказы с истёкшим резервом и возвращает их
// карты и баллы. Используется и воркером по расписанию, и точечно перед
// захватом карт.
type Sweeper struct {
	orders     domain.OrderRepository
	cards      domain.CardRepository
	users      domain.UserRepository
	settings   domain.SettingsRepository
	recomputer Recomputer
	publisher  domain.EventPublisher
	logger     *log.Entry
}

// Option настраивает Sweeper.
type Option func(*Sweeper)

// WithRecomputer подключает пересчёт агрегатов после sweep'а.
func WithRecomputer(recomputer Recomputer) Option {
	return func(s *Sweeper) { s.recomputer = recomputer }
}

// WithPublisher подключает публикацию событий истечения.
func WithPublisher(publisher domain.EventPublisher) Option {
	return func(s *Sweeper) { s.publisher = publisher }
}

// New создаёт sweeper.
func New(
	orders domain.OrderRepository,
	cards domain.CardRepository,
	users domain.UserRepository,
	settings domain.SettingsRepository,
	logger *log.Entry,
	options ...Option,
) *Sweeper {
	if logger == nil {
		logger = log.WithField("component", "sweeper")
	}
	s := &Sweeper{
		orders:   orders,
		cards:    cards,
		users:    users,
		settings: settings,
		logger:   logger,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Sweep отменяет все истёкшие pending-заказы и возвращает их идентификаторы.
func (s *Sweeper) Sweep(ctx context.Context) ([]string, error) {
	return s.SweepFiltered(ctx, domain.SweepFilter{})
}

// SweepFiltered отменяет истёкшие pending-заказы, попадающие под фильтр,
// и возвращает идентификаторы отменённых заказов — вызывающая сторона сама
// решает, кого уведомлять. Отмена — одно условное обновление; компенсации
// по каждому заказу (возврат карт и баллов) идут отдельными условными
// записями, безопасными к повтору при частичном сбое.
func (s *Sweeper) SweepFiltered(ctx context.Context, filter domain.SweepFilter) ([]string, error) {
	cutoff := time.Now().UTC().Add(-domain.ReservationTTL(s.settings))

	expired, err := s.orders.ExpirePending(cutoff, filter)
	if err != nil {
		return nil, fmt.Errorf("expire pending orders: %w", err)
	}
	if len(expired) == 0 {
		return nil, nil
	}

	for _, orderID := range expired {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		s.compensate(orderID)
	}

	s.recomputeAffected(ctx, expired)

	s.logger.WithFields(log.Fields{
		"expired":    len(expired),
		"product_id": filter.ProductID,
	}).Info("expired reservations swept")
	return expired, nil
}

// compensate возвращает карты и баллы одного отменённого заказа.
func (s *Sweeper) compensate(orderID string) {
	if _, err := s.cards.Release(orderID); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("release cards failed")
	}

	order, err := s.orders.Get(orderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("load expired order failed")
		return
	}
	if order.PointsUsed > 0 {
		if err := s.users.AddPoints(order.UserID, order.PointsUsed); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": orderID,
				"points":   order.PointsUsed,
			}).Error("return spent points failed")
		}
	}

	if s.publisher != nil {
		event := kafka.NewOrderEvent(
			kafka.EventTypeOrderExpired,
			order.OrderID, order.ProductID, order.UserID, string(domain.OrderStatusCancelled),
			nil,
		)
		if err := s.publisher.Publish(kafka.TopicOrderEvents, order.OrderID, event); err != nil {
			s.logger.WithError(err).WithField("order_id", orderID).Warn("publish order expired failed")
		}
	}
}

func (s *Sweeper) recomputeAffected(ctx context.Context, orderIDs []string) {
	if s.recomputer == nil {
		return
	}
	products, err := s.orders.ProductsOf(orderIDs)
	if err != nil {
		s.logger.WithError(err).Warn("resolve swept products failed")
		return
	}
	if err := s.recomputer.RecomputeMany(ctx, products); err != nil {
		s.logger.WithError(err).Warn("recompute after sweep failed")
	}
}
