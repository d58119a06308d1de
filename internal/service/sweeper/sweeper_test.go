package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/zyfzsi/ldc-shop/internal/domain"
	"github.com/zyfzsi/ldc-shop/internal/service/aggregates"
	"github.com/zyfzsi/ldc-shop/internal/storage/memory"
)

type sweepEnv struct {
	products domain.ProductRepository
	cards    domain.CardRepository
	orders   domain.OrderRepository
	users    domain.UserRepository
	settings domain.SettingsRepository
	reviews  domain.ReviewRepository
	sweeper  *Sweeper
}

func newSweepEnv(t *testing.T) *sweepEnv {
	t.Helper()

	env := &sweepEnv{
		products: memory.NewProductRepository(),
		cards:    memory.NewCardRepository(),
		orders:   memory.NewOrderRepository(),
		users:    memory.NewUserRepository(),
		settings: memory.NewSettingsRepository(),
		reviews:  memory.NewReviewRepository(),
	}
	recomputer := aggregates.NewEngine(env.products, env.cards, env.orders, env.reviews, env.settings, nil, nil)
	env.sweeper = New(env.orders, env.cards, env.users, env.settings, nil, WithRecomputer(recomputer))
	return env
}

// seedReservation создаёт pending-заказ с одной захваченной картой и заданным
// возрастом резерва.
func (env *sweepEnv) seedReservation(t *testing.T, orderID, productID, userID string, age time.Duration, pointsUsed int) {
	t.Helper()

	if _, err := env.products.Get(productID); err != nil {
		if err := env.products.Create(domain.Product{ID: productID, Name: productID, PriceMinor: 1000, IsActive: true}); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}
	if err := env.users.Upsert(domain.User{UserID: userID}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := env.cards.Add([]domain.Card{{ProductID: productID, CardKey: "key"}}); err != nil {
		t.Fatalf("seed card: %v", err)
	}

	reservedAt := time.Now().UTC().Add(-age)
	candidates, err := env.cards.ListClaimable(productID, 1, reservedAt.Add(-time.Hour))
	if err != nil || len(candidates) == 0 {
		t.Fatalf("list claimable: %v (%d cards)", err, len(candidates))
	}
	claimed, err := env.cards.Claim([]int64{candidates[0].ID}, orderID, reservedAt, reservedAt.Add(-time.Hour))
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v (%d claimed)", err, len(claimed))
	}

	if err := env.orders.Create(domain.Order{
		OrderID:     orderID,
		ProductID:   productID,
		ProductName: productID,
		AmountMinor: 1000,
		Quantity:    1,
		Status:      domain.OrderStatusPending,
		UserID:      userID,
		PointsUsed:  pointsUsed,
		CreatedAt:   reservedAt,
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func TestSweep_ExpiredReservationIsCompensated(t *testing.T) {
	env := newSweepEnv(t)
	env.seedReservation(t, "o1", "p1", "u1", 10*time.Minute, 6)

	expired, err := env.sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(expired) != 1 || expired[0] != "o1" {
		t.Fatalf("expired = %v, want [o1]", expired)
	}

	order, err := env.orders.Get("o1")
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want cancelled", order.Status)
	}

	counts, err := env.cards.CountsByProduct([]string{"p1"}, time.Now().UTC().Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("CountsByProduct: %v", err)
	}
	if counts["p1"].Available != 1 || counts["p1"].Locked != 0 {
		t.Errorf("counts = %+v, want card back in the pool", counts["p1"])
	}

	user, err := env.users.Get("u1")
	if err != nil {
		t.Fatalf("Get user: %v", err)
	}
	if user.Points != 6 {
		t.Errorf("points = %d, want 6 returned", user.Points)
	}
}

func TestSweep_FreshReservationSurvives(t *testing.T) {
	env := newSweepEnv(t)
	env.seedReservation(t, "o1", "p1", "u1", time.Minute, 0)

	expired, err := env.sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("expired = %v, want none", expired)
	}

	order, _ := env.orders.Get("o1")
	if order.Status != domain.OrderStatusPending {
		t.Errorf("status = %s, fresh reservation must stay pending", order.Status)
	}
}

func TestSweep_HonorsTTLSetting(t *testing.T) {
	env := newSweepEnv(t)
	// Резерву 2 минуты: при TTL по умолчанию он жив, при TTL=60s — истёк.
	env.seedReservation(t, "o1", "p1", "u1", 2*time.Minute, 0)
	if err := env.settings.Set(domain.SettingReservationTTLSeconds, "60"); err != nil {
		t.Fatalf("set ttl: %v", err)
	}

	expired, err := env.sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expired = %v, want 1 order with shortened TTL", expired)
	}
}

func TestSweepFiltered_OnlyTouchesMatchingProduct(t *testing.T) {
	env := newSweepEnv(t)
	env.seedReservation(t, "o1", "p1", "u1", 10*time.Minute, 0)
	env.seedReservation(t, "o2", "p2", "u2", 10*time.Minute, 0)

	expired, err := env.sweeper.SweepFiltered(context.Background(), domain.SweepFilter{ProductID: "p1"})
	if err != nil {
		t.Fatalf("SweepFiltered: %v", err)
	}
	if len(expired) != 1 || expired[0] != "o1" {
		t.Fatalf("expired = %v, want [o1]", expired)
	}

	other, _ := env.orders.Get("o2")
	if other.Status != domain.OrderStatusPending {
		t.Errorf("o2 status = %s, must not be touched by filtered sweep", other.Status)
	}
}

func TestSweep_RecomputesAffectedAggregates(t *testing.T) {
	env := newSweepEnv(t)
	env.seedReservation(t, "o1", "p1", "u1", 10*time.Minute, 0)

	if _, err := env.sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	product, err := env.products.Get("p1")
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if product.StockCount != 1 || product.LockedCount != 0 {
		t.Errorf("aggregates = stock %d locked %d, want the released card counted", product.StockCount, product.LockedCount)
	}
}

func TestSweep_RepeatRunIsNoop(t *testing.T) {
	env := newSweepEnv(t)
	env.seedReservation(t, "o1", "p1", "u1", 10*time.Minute, 3)

	if _, err := env.sweeper.Sweep(context.Background()); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	expired, err := env.sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("expired = %v on repeat run, want none", expired)
	}

	// Баллы не возвращаются дважды.
	user, _ := env.users.Get("u1")
	if user.Points != 3 {
		t.Errorf("points = %d, want 3 (single compensation)", user.Points)
	}
}
