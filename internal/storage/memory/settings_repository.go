package memory

import (
	"sync"

	"github.com/zyfzsi/ldc-shop/internal/domain"
)

// settingsRepositoryInMemory — in-memory K/V хранилище настроек магазина.
type settingsRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]string
}

// NewSettingsRepository возвращает in-memory репозиторий настроек.
func NewSettingsRepository() domain.SettingsRepository {
	return &settingsRepositoryInMemory{
		items: make(map[string]string),
	}
}

// Get возвращает значение ключа; отсутствующий ключ — пустая строка без ошибки.
func (r *settingsRepositoryInMemory) Get(key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.items[key], nil
}

func (r *settingsRepositoryInMemory) Set(key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[key] = value
	return nil
}

func (r *settingsRepositoryInMemory) All() (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make(map[string]string, len(r.items))
	for key, value := range r.items {
		result[key] = value
	}
	return result, nil
}

var _ domain.SettingsRepository = (*settingsRepositoryInMemory)(nil)
