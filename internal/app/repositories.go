package app

import (
	"context"

	"github.com/zyfzsi/ldc-shop/internal/domain"
	"github.com/zyfzsi/ldc-shop/internal/storage/memory"
	"github.com/zyfzsi/ldc-shop/internal/storage/postgres"
)

// Repositories — набор репозиториев движка поверх выбранного хранилища.
type Repositories struct {
	Products domain.ProductRepository
	Cards    domain.CardRepository
	Orders   domain.OrderRepository
	Users    domain.UserRepository
	Settings domain.SettingsRepository
	Reviews  domain.ReviewRepository

	// store не nil только для postgres-драйвера.
	store *postgres.Store
}

// newMemoryRepositories собирает in-memory хранилище.
func newMemoryRepositories() *Repositories {
	return &Repositories{
		Products: memory.NewProductRepository(),
		Cards:    memory.NewCardRepository(),
		Orders:   memory.NewOrderRepository(),
		Users:    memory.NewUserRepository(),
		Settings: memory.NewSettingsRepository(),
		Reviews:  memory.NewReviewRepository(),
	}
}

// newPostgresRepositories открывает подключение, применяет миграции и
// собирает репозитории поверх PostgreSQL.
func newPostgresRepositories(ctx context.Context, dsn string) (*Repositories, error) {
	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return &Repositories{
		Products: postgres.NewProductRepository(store),
		Cards:    postgres.NewCardRepository(store),
		Orders:   postgres.NewOrderRepository(store),
		Users:    postgres.NewUserRepository(store),
		Settings: postgres.NewSettingsRepository(store),
		Reviews:  postgres.NewReviewRepository(store),
		store:    store,
	}, nil
}

// Ping проверяет доступность хранилища; in-memory всегда доступно.
func (r *Repositories) Ping(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	return r.store.Ping(ctx)
}

// Close освобождает ресурсы хранилища.
func (r *Repositories) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}
