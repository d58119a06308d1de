package domain

import (
	"testing"
	"time"
)

func TestCanTransition_AllowedEdges(t *testing.T) {
	allowed := []struct {
		from OrderStatus
		to   OrderStatus
	}{
		{OrderStatusPending, OrderStatusPaid},
		{OrderStatusPending, OrderStatusCancelled},
		{OrderStatusPending, OrderStatusFailed},
		{OrderStatusPaid, OrderStatusDelivered},
		{OrderStatusPaid, OrderStatusRefunded},
		{OrderStatusPaid, OrderStatusFailed},
		{OrderStatusDelivered, OrderStatusRefunded},
	}

	for _, edge := range allowed {
		if !CanTransition(edge.from, edge.to) {
			t.Errorf("expected %s -> %s to be allowed", edge.from, edge.to)
		}
	}
}

func TestCanTransition_RejectedEdges(t *testing.T) {
	rejected := []struct {
		from OrderStatus
		to   OrderStatus
	}{
		{OrderStatusDelivered, OrderStatusPaid},
		{OrderStatusCancelled, OrderStatusPaid},
		{OrderStatusCancelled, OrderStatusDelivered},
		{OrderStatusRefunded, OrderStatusDelivered},
		{OrderStatusFailed, OrderStatusPaid},
		{OrderStatusPending, OrderStatusDelivered},
		{OrderStatusPending, OrderStatusRefunded},
	}

	for _, edge := range rejected {
		if CanTransition(edge.from, edge.to) {
			t.Errorf("expected %s -> %s to be rejected", edge.from, edge.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, status := range []OrderStatus{OrderStatusCancelled, OrderStatusRefunded, OrderStatusFailed} {
		if !IsTerminal(status) {
			t.Errorf("expected %s to be terminal", status)
		}
	}
	for _, status := range []OrderStatus{OrderStatusPending, OrderStatusPaid, OrderStatusDelivered} {
		if IsTerminal(status) {
			t.Errorf("expected %s to be non-terminal", status)
		}
	}
}

func TestOrder_ValidateInvariants(t *testing.T) {
	order := Order{
		OrderID:   "order-1",
		ProductID: "product-1",
		Quantity:  1,
		Status:    OrderStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected valid order, got %v", errs)
	}

	bad := Order{Quantity: 0, AmountMinor: -1, PointsUsed: -5}
	errs := bad.ValidateInvariants()
	if len(errs) == 0 {
		t.Fatal("expected validation errors")
	}
}

func TestCard_Claimable(t *testing.T) {
	now := time.Now().UTC()
	ttl := 5 * time.Minute

	free := Card{ID: 1, ProductID: "p", CardKey: "k"}
	if !free.Claimable(now, ttl) {
		t.Error("free card must be claimable")
	}

	live := Card{ID: 2, ProductID: "p", CardKey: "k", ReservedOrderID: "o", ReservedAt: now.Add(-time.Minute)}
	if live.Claimable(now, ttl) {
		t.Error("card with live reservation must not be claimable")
	}

	expired := Card{ID: 3, ProductID: "p", CardKey: "k", ReservedOrderID: "o", ReservedAt: now.Add(-6 * time.Minute)}
	if !expired.Claimable(now, ttl) {
		t.Error("card with expired reservation must be claimable")
	}

	used := Card{ID: 4, ProductID: "p", CardKey: "k", IsUsed: true}
	if used.Claimable(now, ttl) {
		t.Error("used card must never be claimable")
	}
}

func TestMaxRedeemablePoints(t *testing.T) {
	cases := []struct {
		amountMinor int64
		want        int
	}{
		{0, 0},
		{100, 1},
		{150, 2},
		{999, 10},
		{1000, 10},
	}
	for _, tc := range cases {
		if got := MaxRedeemablePoints(tc.amountMinor); got != tc.want {
			t.Errorf("MaxRedeemablePoints(%d) = %d, want %d", tc.amountMinor, got, tc.want)
		}
	}
}

func TestPointsDiscountMinor_CappedAtAmount(t *testing.T) {
	if got := PointsDiscountMinor(3, 250); got != 250 {
		t.Errorf("expected discount capped at 250, got %d", got)
	}
	if got := PointsDiscountMinor(2, 1000); got != 200 {
		t.Errorf("expected discount 200, got %d", got)
	}
}
