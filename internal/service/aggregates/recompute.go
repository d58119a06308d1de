package aggregates

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zyfzsi/ldc-shop/internal/domain"
	"github.com/zyfzsi/ldc-shop/internal/metrics"
)

const (
	// queryBatchSize ограничивает размер партии чтения сырых счётчиков.
	queryBatchSize = 50
	// updateBatchSize ограничивает размер партии записи агрегатов.
	updateBatchSize = 8
)

// Engine пересчитывает производные счётчики товаров из сырых строк.
// Пересчёт идемпотентен: кеш перезаписывается целиком, last-write-wins;
// повторный запуск с теми же данными — no-op.
type Engine struct {
	products domain.ProductRepository
	cards    domain.CardRepository
	orders   domain.OrderRepository
	reviews  domain.ReviewRepository
	settings domain.SettingsRepository
	logger   *log.Entry
	metrics  *metrics.ShopMetrics
}

// NewEngine создаёт движок пересчёта агрегатов.
func NewEngine(
	products domain.ProductRepository,
	cards domain.CardRepository,
	orders domain.OrderRepository,
	reviews domain.ReviewRepository,
	settings domain.SettingsRepository,
	logger *log.Entry,
	shopMetrics *metrics.ShopMetrics,
) *Engine {
	if logger == nil {
		logger = log.WithField("component", "aggregates")
	}
	return &Engine{
		products: products,
		cards:    cards,
		orders:   orders,
		reviews:  reviews,
		settings: settings,
		logger:   logger,
		metrics:  shopMetrics,
	}
}

// Recompute пересчитывает агрегаты одного товара.
func (e *Engine) Recompute(ctx context.Context, productID string) error {
	return e.RecomputeMany(ctx, []string{productID})
}

// RecomputeMany пересчитывает агрегаты партии товаров: чтение сырых
// счётчиков партиями по queryBatchSize, запись — по updateBatchSize.
func (e *Engine) RecomputeMany(ctx context.Context, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	if e.metrics != nil {
		e.metrics.RecordRecomputeRun()
	}

	shared, err := e.sharedFlags(productIDs)
	if err != nil {
		return err
	}

	ttl := domain.ReservationTTL(e.settings)
	expiredBefore := time.Now().UTC().Add(-ttl)

	aggs := make(map[string]domain.Aggregates, len(productIDs))
	for start := 0; start < len(productIDs); start += queryBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + queryBatchSize
		if end > len(productIDs) {
			end = len(productIDs)
		}
		batch := productIDs[start:end]

		computed, err := e.computeBatch(batch, shared, expiredBefore)
		if err != nil {
			return err
		}
		for id, agg := range computed {
			aggs[id] = agg
		}
	}

	for start := 0; start < len(productIDs); start += updateBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + updateBatchSize
		if end > len(productIDs) {
			end = len(productIDs)
		}

		chunk := make(map[string]domain.Aggregates, updateBatchSize)
		for _, id := range productIDs[start:end] {
			if agg, ok := aggs[id]; ok {
				chunk[id] = agg
			}
		}
		if len(chunk) == 0 {
			continue
		}
		if err := e.products.UpdateAggregatesBulk(chunk); err != nil {
			return fmt.Errorf("write aggregates batch: %w", err)
		}
	}

	e.logger.WithField("products", len(productIDs)).Debug("aggregates recomputed")
	return nil
}

// Backfill пересчитывает агрегаты всех товаров один раз; повторные запуски
// пропускаются по флагу в настройках.
func (e *Engine) Backfill(ctx context.Context) error {
	if e.settings != nil {
		done, err := e.settings.Get(domain.SettingAggregatesBackfilled)
		if err != nil {
			return fmt.Errorf("read backfill flag: %w", err)
		}
		if done == "1" {
			e.logger.Debug("aggregates backfill already completed")
			return nil
		}
	}

	products, err := e.products.List()
	if err != nil {
		return fmt.Errorf("list products for backfill: %w", err)
	}
	ids := make([]string, 0, len(products))
	for _, product := range products {
		ids = append(ids, product.ID)
	}

	if err := e.RecomputeMany(ctx, ids); err != nil {
		return err
	}

	if e.settings != nil {
		if err := e.settings.Set(domain.SettingAggregatesBackfilled, "1"); err != nil {
			return fmt.Errorf("set backfill flag: %w", err)
		}
	}

	e.logger.WithField("products", len(ids)).Info("aggregates backfill completed")
	return nil
}

func (e *Engine) computeBatch(productIDs []string, shared map[string]bool, expiredBefore time.Time) (map[string]domain.Aggregates, error) {
	counts, err := e.cards.CountsByProduct(productIDs, expiredBefore)
	if err != nil {
		return nil, fmt.Errorf("count cards: %w", err)
	}
	sold, err := e.orders.SoldByProduct(productIDs)
	if err != nil {
		return nil, fmt.Errorf("sum sold: %w", err)
	}
	ratings, err := e.reviews.RatingsByProduct(productIDs)
	if err != nil {
		return nil, fmt.Errorf("aggregate ratings: %w", err)
	}

	result := make(map[string]domain.Aggregates, len(productIDs))
	for _, id := range productIDs {
		cardCounts := counts[id]
		agg := domain.Aggregates{
			SoldCount: sold[id],
		}
		if shared[id] {
			// Shared-товар: один общий секрет, карты не расходуются поштучно.
			if cardCounts.Unused > 0 {
				agg.StockCount = domain.InfiniteStock
			}
		} else {
			agg.StockCount = cardCounts.Available
			agg.LockedCount = cardCounts.Locked
		}
		if rating, ok := ratings[id]; ok {
			agg.Rating = rating.Average
			agg.ReviewCount = rating.Count
		}
		result[id] = agg
	}
	return result, nil
}

func (e *Engine) sharedFlags(productIDs []string) (map[string]bool, error) {
	shared := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		product, err := e.products.Get(id)
		if err != nil {
			return nil, fmt.Errorf("load product %s: %w", id, err)
		}
		shared[id] = product.IsShared
	}
	return shared, nil
}
