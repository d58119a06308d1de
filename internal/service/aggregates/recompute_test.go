package aggregates

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/zyfzsi/ldc-shop/internal/domain"
	"github.com/zyfzsi/ldc-shop/internal/storage/memory"
)

type aggEnv struct {
	products domain.ProductRepository
	cards    domain.CardRepository
	orders   domain.OrderRepository
	reviews  domain.ReviewRepository
	settings domain.SettingsRepository
	engine   *Engine
}

func newAggEnv(t *testing.T) *aggEnv {
	t.Helper()

	env := &aggEnv{
		products: memory.NewProductRepository(),
		cards:    memory.NewCardRepository(),
		orders:   memory.NewOrderRepository(),
		reviews:  memory.NewReviewRepository(),
		settings: memory.NewSettingsRepository(),
	}
	env.engine = NewEngine(env.products, env.cards, env.orders, env.reviews, env.settings, nil, nil)
	return env
}

func (env *aggEnv) seedProduct(t *testing.T, id string, shared bool) {
	t.Helper()
	err := env.products.Create(domain.Product{
		ID: id, Name: id, PriceMinor: 1000, IsActive: true, IsShared: shared,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func (env *aggEnv) seedCards(t *testing.T, productID string, n int) []int64 {
	t.Helper()
	cards := make([]domain.Card, 0, n)
	for i := 0; i < n; i++ {
		cards = append(cards, domain.Card{ProductID: productID, CardKey: "key"})
	}
	if err := env.cards.Add(cards); err != nil {
		t.Fatalf("seed cards: %v", err)
	}
	listed, err := env.cards.ListClaimable(productID, n, time.Now().UTC())
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}
	ids := make([]int64, 0, n)
	for _, card := range listed {
		ids = append(ids, card.ID)
	}
	return ids
}

func TestRecompute_StockLockedAndSold(t *testing.T) {
	env := newAggEnv(t)
	env.seedProduct(t, "p1", false)
	ids := env.seedCards(t, "p1", 5)

	now := time.Now().UTC()
	expiredBefore := now.Add(-5 * time.Minute)

	// Две карты под живым резервом, одна продана.
	if _, err := env.cards.Claim(ids[:2], "o-live", now, expiredBefore); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := env.cards.Claim(ids[2:3], "o-sold", now, expiredBefore); err != nil {
		t.Fatalf("claim sold: %v", err)
	}
	if _, err := env.cards.MarkUsed("o-sold", now); err != nil {
		t.Fatalf("mark used: %v", err)
	}
	if err := env.orders.Create(domain.Order{
		OrderID: "o-sold", ProductID: "p1", ProductName: "p1",
		AmountMinor: 1000, Quantity: 1, Status: domain.OrderStatusPaid,
		UserID: "u1", CreatedAt: now,
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	if err := env.engine.Recompute(context.Background(), "p1"); err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	product, err := env.products.Get("p1")
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if product.StockCount != 2 {
		t.Errorf("stock = %d, want 2 free cards", product.StockCount)
	}
	if product.LockedCount != 2 {
		t.Errorf("locked = %d, want 2 reserved cards", product.LockedCount)
	}
	if product.SoldCount != 1 {
		t.Errorf("sold = %d, want 1", product.SoldCount)
	}
}

func TestRecompute_ExpiredReservationCountsAsStock(t *testing.T) {
	env := newAggEnv(t)
	env.seedProduct(t, "p1", false)
	ids := env.seedCards(t, "p1", 1)

	// Резерв старше TTL: карта снова считается доступной.
	staleAt := time.Now().UTC().Add(-time.Hour)
	if _, err := env.cards.Claim(ids, "o-stale", staleAt, staleAt.Add(-time.Hour)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := env.engine.Recompute(context.Background(), "p1"); err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	product, _ := env.products.Get("p1")
	if product.StockCount != 1 || product.LockedCount != 0 {
		t.Errorf("stock %d locked %d, expired reservation must count as free", product.StockCount, product.LockedCount)
	}
}

func TestRecompute_SharedProductReportsInfiniteStock(t *testing.T) {
	env := newAggEnv(t)
	env.seedProduct(t, "shared", true)
	env.seedCards(t, "shared", 1)

	if err := env.engine.Recompute(context.Background(), "shared"); err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	product, _ := env.products.Get("shared")
	if product.StockCount != domain.InfiniteStock {
		t.Errorf("stock = %d, want %d for shared product with a key", product.StockCount, domain.InfiniteStock)
	}
	if product.LockedCount != 0 {
		t.Errorf("locked = %d, shared products never lock cards", product.LockedCount)
	}
}

func TestRecompute_SharedProductWithoutKeysIsEmpty(t *testing.T) {
	env := newAggEnv(t)
	env.seedProduct(t, "shared", true)

	if err := env.engine.Recompute(context.Background(), "shared"); err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	product, _ := env.products.Get("shared")
	if product.StockCount != 0 {
		t.Errorf("stock = %d, want 0 without any key", product.StockCount)
	}
}

func TestRecompute_RatingAggregates(t *testing.T) {
	env := newAggEnv(t)
	env.seedProduct(t, "p1", false)

	for i, rating := range []int{5, 4} {
		err := env.reviews.Add(domain.Review{
			OrderID:   "o" + string(rune('1'+i)),
			ProductID: "p1",
			UserID:    "u1",
			Rating:    rating,
		})
		if err != nil {
			t.Fatalf("add review: %v", err)
		}
	}

	if err := env.engine.Recompute(context.Background(), "p1"); err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	product, _ := env.products.Get("p1")
	if product.ReviewCount != 2 {
		t.Errorf("review count = %d, want 2", product.ReviewCount)
	}
	if product.Rating < 4.49 || product.Rating > 4.51 {
		t.Errorf("rating = %v, want 4.5", product.Rating)
	}
}

func TestRecompute_IsIdempotent(t *testing.T) {
	env := newAggEnv(t)
	env.seedProduct(t, "p1", false)
	env.seedCards(t, "p1", 3)

	for i := 0; i < 2; i++ {
		if err := env.engine.Recompute(context.Background(), "p1"); err != nil {
			t.Fatalf("Recompute #%d: %v", i+1, err)
		}
	}

	product, _ := env.products.Get("p1")
	if product.StockCount != 3 || product.SoldCount != 0 {
		t.Errorf("aggregates drifted on repeat run: %+v", product)
	}
}

func TestRecomputeMany_CoversLargeBatches(t *testing.T) {
	env := newAggEnv(t)

	// Больше одного батча чтения и нескольких батчей записи.
	ids := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		id := "p" + strconv.Itoa(i)
		env.seedProduct(t, id, false)
		env.seedCards(t, id, 1)
		ids = append(ids, id)
	}

	if err := env.engine.RecomputeMany(context.Background(), ids); err != nil {
		t.Fatalf("RecomputeMany: %v", err)
	}

	for _, id := range []string{ids[0], ids[60], ids[119]} {
		product, err := env.products.Get(id)
		if err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
		if product.StockCount != 1 {
			t.Errorf("%s stock = %d, want 1", id, product.StockCount)
		}
	}
}

func TestBackfill_RunsOnceAndSetsFlag(t *testing.T) {
	env := newAggEnv(t)
	env.seedProduct(t, "p1", false)
	env.seedCards(t, "p1", 2)

	if err := env.engine.Backfill(context.Background()); err != nil {
		t.Fatalf("Backfill: %v", err)
	}

	flag, err := env.settings.Get(domain.SettingAggregatesBackfilled)
	if err != nil {
		t.Fatalf("Get flag: %v", err)
	}
	if flag != "1" {
		t.Fatalf("flag = %q, want 1", flag)
	}

	product, _ := env.products.Get("p1")
	if product.StockCount != 2 {
		t.Errorf("stock = %d, want 2", product.StockCount)
	}
}

func TestBackfill_SkippedWhenFlagSet(t *testing.T) {
	env := newAggEnv(t)
	env.seedProduct(t, "p1", false)
	env.seedCards(t, "p1", 2)
	if err := env.settings.Set(domain.SettingAggregatesBackfilled, "1"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	if err := env.engine.Backfill(context.Background()); err != nil {
		t.Fatalf("Backfill: %v", err)
	}

	// Пересчёт не запускался: агрегаты остались нулевыми.
	product, _ := env.products.Get("p1")
	if product.StockCount != 0 {
		t.Errorf("stock = %d, want untouched 0", product.StockCount)
	}
}
