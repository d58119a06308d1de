package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zyfzsi/ldc-shop/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type cardRepository struct {
	db *sql.DB
}

// NewCardRepository создаёт PostgreSQL-реализацию CardRepository.
func NewCardRepository(store *Store) domain.CardRepository {
	return &cardRepository{db: store.DB()}
}

func (r *cardRepository) Add(cards []domain.Card) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, card := range cards {
		if errs := card.Validate(); len(errs) != 0 {
			err = errs[0]
			return err
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO cards (product_id, card_key)
			VALUES ($1, $2)
		`, card.ProductID, card.CardKey); err != nil {
			return fmt.Errorf("insert card: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit add cards: %w", err)
	}

	return nil
}

func (r *cardRepository) Get(id int64) (domain.Card, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT id, product_id, card_key, is_used, reserved_order_id, reserved_at, used_at, created_at
		FROM cards
		WHERE id = $1
	`, id)

	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, domain.ErrCardNotFound
		}
		return domain.Card{}, fmt.Errorf("select card: %w", err)
	}
	return card, nil
}

func (r *cardRepository) ListClaimable(productID string, limit int, expiredBefore time.Time) ([]domain.Card, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, card_key, is_used, reserved_order_id, reserved_at, used_at, created_at
		FROM cards
		WHERE product_id = $1
		  AND is_used = FALSE
		  AND (reserved_order_id IS NULL OR reserved_at < $2)
		ORDER BY id ASC
		LIMIT $3
	`, productID, expiredBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list claimable cards: %w", err)
	}
	defer rows.Close()

	return collectCards(rows)
}

// Claim — условный захват одним запросом: обновляются только строки, всё ещё
// удовлетворяющие предикату «свободна или резерв истёк». RETURNING отдаёт
// реально захваченные ID; проигрыш гонки виден по недобору.
func (r *cardRepository) Claim(ids []int64, orderID string, now time.Time, expiredBefore time.Time) ([]int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		UPDATE cards
		SET reserved_order_id = $1,
		    reserved_at = $2
		WHERE id = ANY($3)
		  AND is_used = FALSE
		  AND (reserved_order_id IS NULL OR reserved_at < $4)
		RETURNING id
	`, orderID, now, ids, expiredBefore)
	if err != nil {
		return nil, fmt.Errorf("claim cards: %w", err)
	}
	defer rows.Close()

	claimed := make([]int64, 0, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan claimed card id: %w", err)
		}
		claimed = append(claimed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed cards: %w", err)
	}

	return claimed, nil
}

func (r *cardRepository) Release(orderID string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE cards
		SET reserved_order_id = NULL,
		    reserved_at = NULL
		WHERE reserved_order_id = $1
		  AND is_used = FALSE
	`, orderID)
	if err != nil {
		return 0, fmt.Errorf("release cards: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *cardRepository) MarkUsed(orderID string, now time.Time) ([]domain.Card, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		UPDATE cards
		SET is_used = TRUE,
		    used_at = $1,
		    reserved_order_id = NULL,
		    reserved_at = NULL
		WHERE reserved_order_id = $2
		  AND is_used = FALSE
		RETURNING id, product_id, card_key, is_used, reserved_order_id, reserved_at, used_at, created_at
	`, now, orderID)
	if err != nil {
		return nil, fmt.Errorf("mark cards used: %w", err)
	}
	defer rows.Close()

	return collectCards(rows)
}

func (r *cardRepository) ListByOrder(orderID string) ([]domain.Card, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, card_key, is_used, reserved_order_id, reserved_at, used_at, created_at
		FROM cards
		WHERE reserved_order_id = $1
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list cards by order: %w", err)
	}
	defer rows.Close()

	return collectCards(rows)
}

func (r *cardRepository) HasUnused(productID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM cards WHERE product_id = $1 AND is_used = FALSE
		)
	`, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check unused cards: %w", err)
	}
	return exists, nil
}

func (r *cardRepository) SharedKey(productID string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var key string
	err := r.db.QueryRowContext(ctx, `
		SELECT card_key
		FROM cards
		WHERE product_id = $1
		  AND is_used = FALSE
		ORDER BY id ASC
		LIMIT 1
	`, productID).Scan(&key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrInsufficientStock
		}
		return "", fmt.Errorf("select shared key: %w", err)
	}
	return key, nil
}

func (r *cardRepository) CountsByProduct(productIDs []string, expiredBefore time.Time) (map[string]domain.CardCounts, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id,
		       COUNT(*) FILTER (WHERE is_used = FALSE) AS unused,
		       COUNT(*) FILTER (
		           WHERE is_used = FALSE
		             AND (reserved_order_id IS NULL OR reserved_at < $2)
		       ) AS available,
		       COUNT(*) FILTER (
		           WHERE is_used = FALSE
		             AND reserved_order_id IS NOT NULL
		             AND reserved_at >= $2
		       ) AS locked
		FROM cards
		WHERE product_id = ANY($1)
		GROUP BY product_id
	`, productIDs, expiredBefore)
	if err != nil {
		return nil, fmt.Errorf("count cards by product: %w", err)
	}
	defer rows.Close()

	result := make(map[string]domain.CardCounts, len(productIDs))
	for rows.Next() {
		var (
			productID string
			counts    domain.CardCounts
		)
		if err := rows.Scan(&productID, &counts.Unused, &counts.Available, &counts.Locked); err != nil {
			return nil, fmt.Errorf("scan card counts: %w", err)
		}
		result[productID] = counts
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate card counts: %w", err)
	}

	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (domain.Card, error) {
	var (
		card            domain.Card
		reservedOrderID sql.NullString
		reservedAt      sql.NullTime
		usedAt          sql.NullTime
	)
	if err := row.Scan(
		&card.ID, &card.ProductID, &card.CardKey, &card.IsUsed,
		&reservedOrderID, &reservedAt, &usedAt, &card.CreatedAt,
	); err != nil {
		return domain.Card{}, err
	}
	card.ReservedOrderID = reservedOrderID.String
	card.ReservedAt = reservedAt.Time
	card.UsedAt = usedAt.Time
	return card, nil
}

func collectCards(rows *sql.Rows) ([]domain.Card, error) {
	cards := make([]domain.Card, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card row: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate card rows: %w", err)
	}
	return cards, nil
}

var _ domain.CardRepository = (*cardRepository)(nil)
