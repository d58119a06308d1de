package memory

import (
	"sync"
	"time"

	"github.com/zyfzsi/ldc-shop/internal/domain"
)

// userRepositoryInMemory — in-memory реализация UserRepository. Списание
// баллов — условная запись «points >= n» под мьютексом, как атомарный
// UPDATE ... WHERE points >= n в Postgres-реализации.
type userRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.User
}

// NewUserRepository возвращает in-memory репозиторий покупателей.
func NewUserRepository() domain.UserRepository {
	return &userRepositoryInMemory{
		items: make(map[string]domain.User),
	}
}

func (r *userRepositoryInMemory) Upsert(user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[user.UserID]
	if ok {
		existing.Username = user.Username
		existing.LastLoginAt = user.LastLoginAt
		r.items[user.UserID] = existing
		return nil
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	r.items[user.UserID] = user
	return nil
}

func (r *userRepositoryInMemory) Get(userID string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.items[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// DeductPoints списывает баллы, только если баланса хватает; false — отказ.
func (r *userRepositoryInMemory) DeductPoints(userID string, points int) (bool, error) {
	if points < 0 {
		return false, domain.ErrPointsNegative
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.items[userID]
	if !ok {
		return false, domain.ErrUserNotFound
	}
	if user.Points < points {
		return false, nil
	}
	user.Points -= points
	r.items[userID] = user
	return true, nil
}

func (r *userRepositoryInMemory) AddPoints(userID string, points int) error {
	if points < 0 {
		return domain.ErrPointsNegative
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.items[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Points += points
	r.items[userID] = user
	return nil
}

var _ domain.UserRepository = (*userRepositoryInMemory)(nil)
