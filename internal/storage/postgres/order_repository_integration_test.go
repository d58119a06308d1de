package postgres

import (
	"testing"
	"time"

	"github.com/zyfzsi/ldc-shop/internal/domain"
)

func TestOrderRepositoryIntegration_PaymentCASAndDuplicate(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	now := time.Now().UTC()
	order := domain.Order{
		OrderID:     "o1",
		ProductID:   "p1",
		ProductName: "integration product",
		AmountMinor: 900,
		Quantity:    1,
		Status:      domain.OrderStatusPending,
		UserID:      "u1",
		PointsUsed:  1,
		CreatedAt:   now,
	}
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	ok, err := repo.MarkPaid("o1", "trade-1", now)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if !ok {
		t.Fatal("first payment must win the CAS")
	}

	ok, err = repo.MarkPaid("o1", "trade-1", now)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if ok {
		t.Fatal("duplicate payment must lose the CAS")
	}

	ok, err = repo.MarkDelivered("o1", "", []int64{7, 9}, 9, now)
	if err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if !ok {
		t.Fatal("delivery of a paid order must win the CAS")
	}

	got, err := repo.Get("o1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != domain.OrderStatusDelivered {
		t.Fatalf("status = %s, want delivered", got.Status)
	}
	if len(got.CardIDs) != 2 || got.CardIDs[0] != 7 || got.CardIDs[1] != 9 {
		t.Fatalf("card ids = %v, want [7 9]", got.CardIDs)
	}
	if got.PointsAwarded != 9 {
		t.Fatalf("points awarded = %d, want 9", got.PointsAwarded)
	}
}

func TestOrderRepositoryIntegration_ExpirePendingWithFilter(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	old := time.Now().UTC().Add(-10 * time.Minute)
	for _, o := range []domain.Order{
		{OrderID: "stale-a", ProductID: "p1", AmountMinor: 100, Quantity: 1, Status: domain.OrderStatusPending, UserID: "u1", CreatedAt: old},
		{OrderID: "stale-b", ProductID: "p2", AmountMinor: 100, Quantity: 1, Status: domain.OrderStatusPending, UserID: "u2", CreatedAt: old},
		{OrderID: "fresh", ProductID: "p1", AmountMinor: 100, Quantity: 1, Status: domain.OrderStatusPending, UserID: "u1", CreatedAt: time.Now().UTC()},
	} {
		if err := repo.Create(o); err != nil {
			t.Fatalf("create order %s: %v", o.OrderID, err)
		}
	}

	cutoff := time.Now().UTC().Add(-5 * time.Minute)
	expired, err := repo.ExpirePending(cutoff, domain.SweepFilter{ProductID: "p1"})
	if err != nil {
		t.Fatalf("expire pending: %v", err)
	}
	if len(expired) != 1 || expired[0] != "stale-a" {
		t.Fatalf("expired = %v, want [stale-a]", expired)
	}

	expired, err = repo.ExpirePending(cutoff, domain.SweepFilter{})
	if err != nil {
		t.Fatalf("expire pending: %v", err)
	}
	if len(expired) != 1 || expired[0] != "stale-b" {
		t.Fatalf("expired = %v, want [stale-b]", expired)
	}
}

func TestUserRepositoryIntegration_ConditionalDeduct(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewUserRepository(store)

	if err := repo.Upsert(domain.User{UserID: "u1", Username: "alice", Points: 5}); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	ok, err := repo.DeductPoints("u1", 3)
	if err != nil {
		t.Fatalf("deduct points: %v", err)
	}
	if !ok {
		t.Fatal("deduction within balance must succeed")
	}

	ok, err = repo.DeductPoints("u1", 3)
	if err != nil {
		t.Fatalf("deduct points: %v", err)
	}
	if ok {
		t.Fatal("deduction beyond balance must fail")
	}

	user, err := repo.Get("u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Points != 2 {
		t.Fatalf("points = %d, want 2", user.Points)
	}
}
