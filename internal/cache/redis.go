// Package cache — Redis-дедупликация внешних колбэков и уведомлений.
// Redis опционален: nil-клиент отключает дедупликацию, операции движка
// остаются корректными за счёт CAS в хранилище.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	// keyPaymentCallback — дедуп платёжных колбэков: dedup:payment:{order_id}:{trade_no}
	keyPaymentCallback = "dedup:payment:%s:%s"
	// keyLowStockNotice — дедуп уведомлений о низком стоке: notice:lowstock:{product_id}
	keyLowStockNotice = "notice:lowstock:%s"

	ttlPaymentCallback = 48 * time.Hour
	ttlLowStockNotice  = 6 * time.Hour

	opTimeout = 2 * time.Second
)

// Dedup оборачивает Redis-клиент для дедупликации событий.
type Dedup struct {
	client *redis.Client
	logger *log.Entry
}

// New открывает Redis-подключение по адресу.
func New(addr string) *Dedup {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &Dedup{
		client: client,
		logger: log.WithField("component", "redis-dedup"),
	}
}

// NewDisabled возвращает выключенную дедупликацию (без Redis).
func NewDisabled() *Dedup {
	return nil
}

// SeenPaymentCallback — true, если колбэк уже был успешно обработан.
// Проверка только читает: ключ появляется в MarkPaymentCallback после
// зафиксированного перехода статуса. При недоступном Redis возвращается
// false: машина статусов всё равно защищена CAS-переходом pending → paid.
func (d *Dedup) SeenPaymentCallback(ctx context.Context, orderID, tradeNo string) bool {
	if d == nil || d.client == nil {
		return false
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := fmt.Sprintf(keyPaymentCallback, orderID, tradeNo)
	n, err := d.client.Exists(opCtx, key).Result()
	if err != nil {
		d.logger.WithError(err).WithField("order_id", orderID).Warn("payment callback dedup unavailable")
		return false
	}
	return n > 0
}

// MarkPaymentCallback помечает колбэк обработанным. Вызывается только после
// успешного перехода статуса: незавершённая обработка не должна глушить
// повтор от шлюза. Best-effort, ошибка Redis не влияет на результат.
func (d *Dedup) MarkPaymentCallback(ctx context.Context, orderID, tradeNo string) {
	if d == nil || d.client == nil {
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := fmt.Sprintf(keyPaymentCallback, orderID, tradeNo)
	if err := d.client.Set(opCtx, key, "1", ttlPaymentCallback).Err(); err != nil {
		d.logger.WithError(err).WithField("order_id", orderID).Warn("payment callback mark failed")
	}
}

// MarkLowStockNotified помечает товар как уже оповещённый о низком стоке;
// true — уведомление нужно отправить (пометка поставлена впервые).
func (d *Dedup) MarkLowStockNotified(ctx context.Context, productID string) bool {
	if d == nil || d.client == nil {
		return true
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := fmt.Sprintf(keyLowStockNotice, productID)
	created, err := d.client.SetNX(opCtx, key, "1", ttlLowStockNotice).Result()
	if err != nil {
		d.logger.WithError(err).WithField("product_id", productID).Warn("low stock dedup unavailable")
		return true
	}
	return created
}

// Ping проверяет доступность Redis.
func (d *Dedup) Ping(ctx context.Context) error {
	if d == nil || d.client == nil {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return d.client.Ping(opCtx).Err()
}

// Close закрывает подключение.
func (d *Dedup) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}
