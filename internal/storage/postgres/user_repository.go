package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zyfzsi/ldc-shop/internal/domain"
)

type userRepository struct {
	db *sql.DB
}

// NewUserRepository создаёт PostgreSQL-реализацию UserRepository.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{db: store.DB()}
}

func (r *userRepository) Upsert(user domain.User) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shop_users (user_id, username, points, is_blocked, created_at, last_login_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username,
		    last_login_at = EXCLUDED.last_login_at
	`, user.UserID, user.Username, user.Points, user.IsBlocked, user.CreatedAt, nullTime(user.LastLoginAt))
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	return nil
}

func (r *userRepository) Get(userID string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		user        domain.User
		lastLoginAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, username, points, is_blocked, created_at, last_login_at
		FROM shop_users
		WHERE user_id = $1
	`, userID).Scan(
		&user.UserID, &user.Username, &user.Points, &user.IsBlocked,
		&user.CreatedAt, &lastLoginAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	user.LastLoginAt = lastLoginAt.Time

	return user, nil
}

// DeductPoints — условное списание: предикат points >= n живёт в самом
// UPDATE, ноль затронутых строк означает нехватку баланса в момент записи.
func (r *userRepository) DeductPoints(userID string, points int) (bool, error) {
	if points < 0 {
		return false, domain.ErrPointsNegative
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE shop_users
		SET points = points - $1
		WHERE user_id = $2
		  AND points >= $1
	`, points, userID)
	if err != nil {
		return false, fmt.Errorf("deduct points: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	var id string
	err = r.db.QueryRowContext(ctx, `SELECT user_id FROM shop_users WHERE user_id = $1`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrUserNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return false, nil
}

func (r *userRepository) AddPoints(userID string, points int) error {
	if points < 0 {
		return domain.ErrPointsNegative
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE shop_users
		SET points = points + $1
		WHERE user_id = $2
	`, points, userID)
	if err != nil {
		return fmt.Errorf("add points: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

var _ domain.UserRepository = (*userRepository)(nil)
