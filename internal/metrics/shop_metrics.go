package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ShopMetrics содержит метрики движка резервирования и доставки.
type ShopMetrics struct {
	// Счётчики операций
	reservationsCreated  prometheus.Counter
	reservationsRejected *prometheus.CounterVec
	ordersPaid           prometheus.Counter
	ordersDelivered      prometheus.Counter
	ordersRefunded       prometheus.Counter
	ordersCancelled      prometheus.Counter

	// Гистограмма времени захвата карт
	claimDuration prometheus.Histogram

	// Счётчики пересчёта агрегатов
	recomputeRuns prometheus.Counter

	// Gauge для карт, захваченных и возвращённых при компенсации
	compensationReleases prometheus.Counter
}

// NewShopMetrics создаёт новый экземпляр метрик магазина.
func NewShopMetrics() *ShopMetrics {
	return newShopMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newShopMetricsWithRegisterer(registerer prometheus.Registerer) *ShopMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ShopMetrics{
		reservationsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_reservations_created_total",
			Help: "Total number of reservations created successfully",
		}),
		reservationsRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_reservations_rejected_total",
			Help: "Total number of rejected reservation attempts grouped by reason",
		}, []string{"reason"}),
		ordersPaid: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_paid_total",
			Help: "Total number of orders marked paid",
		}),
		ordersDelivered: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_delivered_total",
			Help: "Total number of orders delivered",
		}),
		ordersRefunded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_refunded_total",
			Help: "Total number of orders refunded",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		claimDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_card_claim_duration_seconds",
			Help:    "Duration of card claim attempts in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		recomputeRuns: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_aggregate_recompute_runs_total",
			Help: "Total number of aggregate recompute runs",
		}),
		compensationReleases: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_compensation_releases_total",
			Help: "Total number of compensating card releases after partial claims",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordReservationCreated увеличивает счётчик успешных резервов.
func (m *ShopMetrics) RecordReservationCreated() {
	m.reservationsCreated.Inc()
}

// RecordReservationRejected увеличивает счётчик отклонённых резервов.
func (m *ShopMetrics) RecordReservationRejected(reason string) {
	m.reservationsRejected.WithLabelValues(reason).Inc()
}

// RecordOrderPaid увеличивает счётчик оплаченных заказов.
func (m *ShopMetrics) RecordOrderPaid() {
	m.ordersPaid.Inc()
}

// RecordOrderDelivered увеличивает счётчик доставленных заказов.
func (m *ShopMetrics) RecordOrderDelivered() {
	m.ordersDelivered.Inc()
}

// RecordOrderRefunded увеличивает счётчик возвратов.
func (m *ShopMetrics) RecordOrderRefunded() {
	m.ordersRefunded.Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *ShopMetrics) RecordOrderCancelled() {
	m.ordersCancelled.Inc()
}

// RecordClaimDuration записывает время захвата карт.
func (m *ShopMetrics) RecordClaimDuration(duration time.Duration) {
	m.claimDuration.Observe(duration.Seconds())
}

// RecordRecomputeRun увеличивает счётчик запусков пересчёта агрегатов.
func (m *ShopMetrics) RecordRecomputeRun() {
	m.recomputeRuns.Inc()
}

// RecordCompensationRelease увеличивает счётчик компенсирующих откатов.
func (m *ShopMetrics) RecordCompensationRelease() {
	m.compensationReleases.Inc()
}
