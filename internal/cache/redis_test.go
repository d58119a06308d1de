package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// testDedup подключается к Redis из LDC_REDIS_TEST_ADDR; без него тест
// пропускается.
func testDedup(t *testing.T) *Dedup {
	t.Helper()

	addr := os.Getenv("LDC_REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("LDC_REDIS_TEST_ADDR is not set")
	}

	d := New(addr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Ping(ctx); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestPaymentCallbackDedup_SeenOnlyAfterMark(t *testing.T) {
	d := testDedup(t)
	ctx := context.Background()
	orderID := fmt.Sprintf("order-%d", time.Now().UnixNano())

	if d.SeenPaymentCallback(ctx, orderID, "t1") {
		t.Fatal("callback must not be seen before mark")
	}
	// Проверка только читает: повтор не должен сам поставить ключ.
	if d.SeenPaymentCallback(ctx, orderID, "t1") {
		t.Fatal("seen check must be read-only")
	}

	d.MarkPaymentCallback(ctx, orderID, "t1")
	if !d.SeenPaymentCallback(ctx, orderID, "t1") {
		t.Fatal("callback must be seen after mark")
	}
	if d.SeenPaymentCallback(ctx, orderID, "t2") {
		t.Fatal("different trade_no must not be seen")
	}
}

func TestDedup_NilIsSafe(t *testing.T) {
	var d *Dedup
	ctx := context.Background()

	if d.SeenPaymentCallback(ctx, "o", "t") {
		t.Error("nil dedup must report not seen")
	}
	d.MarkPaymentCallback(ctx, "o", "t")
	if !d.MarkLowStockNotified(ctx, "p") {
		t.Error("nil dedup must allow the notification")
	}
	if err := d.Ping(ctx); err != nil {
		t.Errorf("Ping on nil dedup: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close on nil dedup: %v", err)
	}
}
