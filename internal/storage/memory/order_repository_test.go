package memory

import (
	"testing"
	"time"

	"github.com/zyfzsi/ldc-shop/internal/domain"
)

func pendingOrder(orderID, productID, userID string, createdAt time.Time) domain.Order {
	return domain.Order{
		OrderID:     orderID,
		ProductID:   productID,
		ProductName: "test product",
		AmountMinor: 1000,
		Quantity:    1,
		Status:      domain.OrderStatusPending,
		UserID:      userID,
		CreatedAt:   createdAt,
	}
}

func TestOrderRepository_MarkPaidIsCAS(t *testing.T) {
	repo := NewOrderRepository()
	now := time.Now().UTC()
	if err := repo.Create(pendingOrder("o1", "p1", "u1", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := repo.MarkPaid("o1", "trade-1", now)
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if !ok {
		t.Fatal("first MarkPaid must succeed")
	}

	// Дубликат платёжного колбэка.
	ok, err = repo.MarkPaid("o1", "trade-1", now)
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if ok {
		t.Fatal("duplicate MarkPaid must report zero rows")
	}

	order, err := repo.Get("o1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if order.Status != domain.OrderStatusPaid || order.TradeNo != "trade-1" {
		t.Fatalf("unexpected order state: %+v", order)
	}
}

func TestOrderRepository_MarkDeliveredRequiresPaid(t *testing.T) {
	repo := NewOrderRepository()
	now := time.Now().UTC()
	if err := repo.Create(pendingOrder("o1", "p1", "u1", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := repo.MarkDelivered("o1", "", []int64{1}, 10, now)
	if err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if ok {
		t.Fatal("delivery of a pending order must be rejected")
	}

	if _, err := repo.MarkPaid("o1", "trade-1", now); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	ok, err = repo.MarkDelivered("o1", "", []int64{1, 2}, 10, now)
	if err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if !ok {
		t.Fatal("delivery of a paid order must succeed")
	}

	order, err := repo.Get("o1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(order.CardIDs) != 2 || order.PointsAwarded != 10 {
		t.Fatalf("unexpected delivered state: %+v", order)
	}
}

func TestOrderRepository_ExpirePendingHonoursFilter(t *testing.T) {
	repo := NewOrderRepository()
	old := time.Now().UTC().Add(-10 * time.Minute)
	fresh := time.Now().UTC()

	if err := repo.Create(pendingOrder("stale-a", "p1", "u1", old)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(pendingOrder("stale-b", "p2", "u2", old)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(pendingOrder("fresh", "p1", "u1", fresh)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	expired, err := repo.ExpirePending(fresh.Add(-5*time.Minute), domain.SweepFilter{ProductID: "p1"})
	if err != nil {
		t.Fatalf("ExpirePending: %v", err)
	}
	if len(expired) != 1 || expired[0] != "stale-a" {
		t.Fatalf("expected only stale-a expired, got %v", expired)
	}

	expired, err = repo.ExpirePending(fresh.Add(-5*time.Minute), domain.SweepFilter{})
	if err != nil {
		t.Fatalf("ExpirePending: %v", err)
	}
	if len(expired) != 1 || expired[0] != "stale-b" {
		t.Fatalf("expected only stale-b on second sweep, got %v", expired)
	}

	order, err := repo.Get("fresh")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("fresh order must survive the sweep, got %s", order.Status)
	}
}

func TestOrderRepository_SoldByProductCountsPaidAndDelivered(t *testing.T) {
	repo := NewOrderRepository()
	now := time.Now().UTC()

	paid := pendingOrder("o1", "p1", "u1", now)
	paid.Quantity = 2
	if err := repo.Create(paid); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.MarkPaid("o1", "t1", now); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	delivered := pendingOrder("o2", "p1", "u1", now)
	delivered.Quantity = 3
	if err := repo.Create(delivered); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.MarkPaid("o2", "t2", now); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if _, err := repo.MarkDelivered("o2", "", nil, 0, now); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	if err := repo.Create(pendingOrder("o3", "p1", "u1", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	sold, err := repo.SoldByProduct([]string{"p1"})
	if err != nil {
		t.Fatalf("SoldByProduct: %v", err)
	}
	if sold["p1"] != 5 {
		t.Fatalf("sold = %d, want 5 (pending orders excluded)", sold["p1"])
	}
}

func TestOrderRepository_MarkStatusMatchesAnyFrom(t *testing.T) {
	repo := NewOrderRepository()
	now := time.Now().UTC()
	if err := repo.Create(pendingOrder("o1", "p1", "u1", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.MarkPaid("o1", "t1", now); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	ok, err := repo.MarkStatus("o1", []domain.OrderStatus{domain.OrderStatusPending}, domain.OrderStatusCancelled)
	if err != nil {
		t.Fatalf("MarkStatus: %v", err)
	}
	if ok {
		t.Fatal("paid order must not match a pending-only CAS")
	}

	ok, err = repo.MarkStatus("o1", []domain.OrderStatus{domain.OrderStatusPaid, domain.OrderStatusDelivered}, domain.OrderStatusRefunded)
	if err != nil {
		t.Fatalf("MarkStatus: %v", err)
	}
	if !ok {
		t.Fatal("paid order must match a paid/delivered CAS")
	}
}

func TestUserRepository_DeductPointsConditional(t *testing.T) {
	repo := NewUserRepository()
	if err := repo.Upsert(domain.User{UserID: "u1", Username: "alice", Points: 10}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	ok, err := repo.DeductPoints("u1", 7)
	if err != nil {
		t.Fatalf("DeductPoints: %v", err)
	}
	if !ok {
		t.Fatal("deduction within balance must succeed")
	}

	ok, err = repo.DeductPoints("u1", 7)
	if err != nil {
		t.Fatalf("DeductPoints: %v", err)
	}
	if ok {
		t.Fatal("deduction beyond balance must fail")
	}

	user, err := repo.Get("u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if user.Points != 3 {
		t.Fatalf("points = %d, want 3", user.Points)
	}
}

func TestReviewRepository_RatingsByProduct(t *testing.T) {
	repo := NewReviewRepository()
	for _, rating := range []int{5, 4, 3} {
		if err := repo.Add(domain.Review{ProductID: "p1", OrderID: "o", UserID: "u", Rating: rating}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	ratings, err := repo.RatingsByProduct([]string{"p1", "p2"})
	if err != nil {
		t.Fatalf("RatingsByProduct: %v", err)
	}
	agg, ok := ratings["p1"]
	if !ok {
		t.Fatal("expected aggregate for p1")
	}
	if agg.Count != 3 || agg.Average != 4 {
		t.Fatalf("aggregate = %+v, want count 3 / average 4", agg)
	}
	if _, ok := ratings["p2"]; ok {
		t.Fatal("product without reviews must be absent from the map")
	}
}
