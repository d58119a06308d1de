package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zyfzsi/ldc-shop/internal/domain"
)

type settingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository создаёт PostgreSQL-реализацию SettingsRepository.
func NewSettingsRepository(store *Store) domain.SettingsRepository {
	return &settingsRepository{db: store.DB()}
}

// Get возвращает значение ключа; отсутствующий ключ — пустая строка без ошибки.
func (r *settingsRepository) Get(key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var value string
	err := r.db.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE key = $1
	`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("select setting: %w", err)
	}
	return value, nil
}

func (r *settingsRepository) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

func (r *settingsRepository) All() (map[string]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting row: %w", err)
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate setting rows: %w", err)
	}

	return result, nil
}

var _ domain.SettingsRepository = (*settingsRepository)(nil)
