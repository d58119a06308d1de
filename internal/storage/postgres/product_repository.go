package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zyfzsi/ldc-shop/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Create(product domain.Product) error {
	if errs := product.ValidateInvariants(); len(errs) != 0 {
		return errs[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (
			id, name, description, category, price_minor, is_active, is_shared,
			purchase_limit, stock_count, locked_count, sold_count, rating, review_count, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		product.ID, product.Name, product.Description, product.Category,
		product.PriceMinor, product.IsActive, product.IsShared, product.PurchaseLimit,
		product.StockCount, product.LockedCount, product.SoldCount,
		product.Rating, product.ReviewCount, product.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("product already exists: %s", product.ID)
		}
		return fmt.Errorf("insert product: %w", err)
	}

	return nil
}

func (r *productRepository) Get(id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT id, name, description, category, price_minor, is_active, is_shared,
		       purchase_limit, stock_count, locked_count, sold_count, rating, review_count, created_at
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

func (r *productRepository) List() ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, category, price_minor, is_active, is_shared,
		       purchase_limit, stock_count, locked_count, sold_count, rating, review_count, created_at
		FROM products
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	return products, nil
}

// UpdateAggregates перезаписывает производный кеш товара целиком;
// повторное применение того же снимка — no-op (last-write-wins).
func (r *productRepository) UpdateAggregates(id string, agg domain.Aggregates) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return updateAggregatesExec(ctx, r.db, id, agg)
}

// UpdateAggregatesBulk применяет снимки партии товаров в одной транзакции.
func (r *productRepository) UpdateAggregatesBulk(aggs map[string]domain.Aggregates) error {
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

	for id, agg := range aggs {
		if err = updateAggregatesExec(ctx, tx, id, agg); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit aggregates: %w", err)
	}

	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateAggregatesExec(ctx context.Context, db execer, id string, agg domain.Aggregates) error {
	res, err := db.ExecContext(ctx, `
		UPDATE products
		SET stock_count = $1,
		    locked_count = $2,
		    sold_count = $3,
		    rating = $4,
		    review_count = $5
		WHERE id = $6
	`, agg.StockCount, agg.LockedCount, agg.SoldCount, agg.Rating, agg.ReviewCount, id)
	if err != nil {
		return fmt.Errorf("update product aggregates: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var product domain.Product
	if err := row.Scan(
		&product.ID, &product.Name, &product.Description, &product.Category,
		&product.PriceMinor, &product.IsActive, &product.IsShared, &product.PurchaseLimit,
		&product.StockCount, &product.LockedCount, &product.SoldCount,
		&product.Rating, &product.ReviewCount, &product.CreatedAt,
	); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
