package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const defaultSweepInterval = time.Minute

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_sweep_runs_total",
		Help: "Total number of reservation sweep runs grouped by result.",
	}, []string{"result"})
	sweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_sweep_expired_total",
		Help: "Total number of expired reservations cancelled by the sweeper.",
	})
	sweepLastExpired = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shop_sweep_last_expired",
		Help: "Number of reservations cancelled during the last sweep run.",
	})
)

// WorkerOptions задает параметры периодического sweep-воркера.
type WorkerOptions struct {
	Logger   *log.Entry
	Interval time.Duration
}

// WorkerOption настраивает Worker.
type WorkerOption func(*WorkerOptions)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) WorkerOption {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между sweep-циклами.
func WithInterval(interval time.Duration) WorkerOption {
	return func(opts *WorkerOptions) {
		opts.Interval = interval
	}
}

// Worker периодически запускает sweep истёкших резервов.
type Worker struct {
	sweeper  *Sweeper
	logger   *log.Entry
	interval time.Duration
}

// NewWorker создает sweep-воркер.
func NewWorker(sweeper *Sweeper, options ...WorkerOption) *Worker {
	opts := WorkerOptions{
		Interval: defaultSweepInterval,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "sweep-worker")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}

	return &Worker{
		sweeper:  sweeper,
		logger:   logger,
		interval: opts.Interval,
	}
}

// Run запускает периодический sweep до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.sweeper == nil {
		w.logger.Warn("sweep worker is disabled: sweeper is nil")
		return
	}

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	expired, err := w.sweeper.Sweep(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		sweepRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("sweep run failed")
		return
	}

	sweepRunsTotal.WithLabelValues("ok").Inc()
	sweepLastExpired.Set(float64(len(expired)))
	if len(expired) > 0 {
		sweepExpiredTotal.Add(float64(len(expired)))
		w.logger.WithField("expired", len(expired)).Info("sweep run completed")
	}
}
