package postgres

import (
	"testing"
	"time"

	"github.com/zyfzsi/ldc-shop/internal/domain"
)

func seedProductForIntegrationTest(t *testing.T, store *Store, productID string) {
	t.Helper()

	products := NewProductRepository(store)
	err := products.Create(domain.Product{
		ID:         productID,
		Name:       "integration product",
		PriceMinor: 1000,
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func TestCardRepositoryIntegration_ClaimIsConditional(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedProductForIntegrationTest(t, store, "p1")

	repo := NewCardRepository(store)
	if err := repo.Add([]domain.Card{
		{ProductID: "p1", CardKey: "k1"},
		{ProductID: "p1", CardKey: "k2"},
	}); err != nil {
		t.Fatalf("add cards: %v", err)
	}

	now := time.Now().UTC()
	expiredBefore := now.Add(-5 * time.Minute)

	candidates, err := repo.ListClaimable("p1", 10, expiredBefore)
	if err != nil {
		t.Fatalf("list claimable: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	ids := []int64{candidates[0].ID, candidates[1].ID}
	claimed, err := repo.Claim(ids, "order-a", now, expiredBefore)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed, got %d", len(claimed))
	}

	again, err := repo.Claim(ids, "order-b", now, expiredBefore)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("live reservation must not be reclaimed, got %d", len(again))
	}

	// Истёкший резерв снова доступен.
	future := now.Add(10 * time.Minute)
	reclaimed, err := repo.Claim(ids, "order-b", future, future.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(reclaimed) != 2 {
		t.Fatalf("expired reservation must be reclaimable, got %d", len(reclaimed))
	}
}

func TestCardRepositoryIntegration_MarkUsedThenReleaseIsNoop(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedProductForIntegrationTest(t, store, "p1")

	repo := NewCardRepository(store)
	if err := repo.Add([]domain.Card{{ProductID: "p1", CardKey: "k1"}}); err != nil {
		t.Fatalf("add cards: %v", err)
	}

	now := time.Now().UTC()
	candidates, err := repo.ListClaimable("p1", 1, now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("list claimable: %v", err)
	}
	if _, err := repo.Claim([]int64{candidates[0].ID}, "order-a", now, now.Add(-5*time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	used, err := repo.MarkUsed("order-a", now)
	if err != nil {
		t.Fatalf("mark used: %v", err)
	}
	if len(used) != 1 || !used[0].IsUsed {
		t.Fatalf("unexpected used cards: %+v", used)
	}

	released, err := repo.Release("order-a")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released != 0 {
		t.Fatalf("release after finalize must be a no-op, got %d", released)
	}
}

func TestCardRepositoryIntegration_CountsByProduct(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedProductForIntegrationTest(t, store, "p1")

	repo := NewCardRepository(store)
	if err := repo.Add([]domain.Card{
		{ProductID: "p1", CardKey: "k1"},
		{ProductID: "p1", CardKey: "k2"},
		{ProductID: "p1", CardKey: "k3"},
	}); err != nil {
		t.Fatalf("add cards: %v", err)
	}

	now := time.Now().UTC()
	candidates, err := repo.ListClaimable("p1", 1, now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("list claimable: %v", err)
	}
	if _, err := repo.Claim([]int64{candidates[0].ID}, "order-a", now, now.Add(-5*time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	counts, err := repo.CountsByProduct([]string{"p1"}, now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("counts by product: %v", err)
	}
	got := counts["p1"]
	if got.Unused != 3 || got.Available != 2 || got.Locked != 1 {
		t.Fatalf("counts = %+v, want unused 3 / available 2 / locked 1", got)
	}
}
