package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zyfzsi/ldc-shop/internal/domain"
)

type reviewRepository struct {
	db *sql.DB
}

// NewReviewRepository создаёт PostgreSQL-реализацию ReviewRepository.
func NewReviewRepository(store *Store) domain.ReviewRepository {
	return &reviewRepository{db: store.DB()}
}

func (r *reviewRepository) Add(review domain.Review) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reviews (product_id, order_id, user_id, rating, comment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, review.ProductID, review.OrderID, review.UserID, review.Rating, review.Comment, review.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order already reviewed: %s", review.OrderID)
		}
		return fmt.Errorf("insert review: %w", err)
	}

	return nil
}

func (r *reviewRepository) RatingsByProduct(productIDs []string) (map[string]domain.RatingAggregate, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, AVG(rating), COUNT(*)
		FROM reviews
		WHERE product_id = ANY($1)
		GROUP BY product_id
	`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("aggregate ratings: %w", err)
	}
	defer rows.Close()

	result := make(map[string]domain.RatingAggregate, len(productIDs))
	for rows.Next() {
		var (
			productID string
			agg       domain.RatingAggregate
		)
		if err := rows.Scan(&productID, &agg.Average, &agg.Count); err != nil {
			return nil, fmt.Errorf("scan rating row: %w", err)
		}
		result[productID] = agg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rating rows: %w", err)
	}

	return result, nil
}

var _ domain.ReviewRepository = (*reviewRepository)(nil)
