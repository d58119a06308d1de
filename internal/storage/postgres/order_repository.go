package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zyfzsi/ldc-shop/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
// Все смены статуса — условные UPDATE с проверкой затронутых строк.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) error {
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		return errs[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	cardIDs, err := json.Marshal(order.CardIDs)
	if err != nil {
		return fmt.Errorf("marshal card ids: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, product_id, product_name, amount_minor, quantity, status,
			trade_no, card_key, card_ids, user_id, points_used, points_awarded, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		order.OrderID, order.ProductID, order.ProductName, order.AmountMinor,
		order.Quantity, string(order.Status), order.TradeNo, order.CardKey,
		cardIDs, order.UserID, order.PointsUsed, order.PointsAwarded, order.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order already exists: %s", order.OrderID)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(orderID string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT id, product_id, product_name, amount_minor, quantity, status,
		       trade_no, card_key, card_ids, user_id, points_used, points_awarded,
		       paid_at, delivered_at, created_at
		FROM orders
		WHERE id = $1
	`, orderID)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) ListByUser(userID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, product_id, product_name, amount_minor, quantity, status,
		       trade_no, card_key, card_ids, user_id, points_used, points_awarded,
		       paid_at, delivered_at, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", userID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

// MarkPaid — CAS pending → paid. Ноль затронутых строк означает, что заказ
// уже покинул pending (дубликат колбэка либо гонка со sweeper'ом).
func (r *orderRepository) MarkPaid(orderID, tradeNo string, paidAt time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    trade_no = $2,
		    paid_at = $3
		WHERE id = $4
		  AND status = $5
	`, string(domain.OrderStatusPaid), tradeNo, paidAt, orderID, string(domain.OrderStatusPending))
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}

	return r.casOutcome(ctx, res, orderID)
}

func (r *orderRepository) MarkDelivered(orderID, cardKey string, cardIDs []int64, pointsAwarded int, deliveredAt time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	encoded, err := json.Marshal(cardIDs)
	if err != nil {
		return false, fmt.Errorf("marshal card ids: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    card_key = $2,
		    card_ids = $3,
		    points_awarded = $4,
		    delivered_at = $5
		WHERE id = $6
		  AND status = $7
	`, string(domain.OrderStatusDelivered), cardKey, encoded, pointsAwarded,
		deliveredAt, orderID, string(domain.OrderStatusPaid))
	if err != nil {
		return false, fmt.Errorf("mark order delivered: %w", err)
	}

	return r.casOutcome(ctx, res, orderID)
}

func (r *orderRepository) MarkStatus(orderID string, from []domain.OrderStatus, to domain.OrderStatus) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	fromStrings := make([]string, 0, len(from))
	for _, status := range from {
		fromStrings = append(fromStrings, string(status))
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1
		WHERE id = $2
		  AND status = ANY($3)
	`, string(to), orderID, fromStrings)
	if err != nil {
		return false, fmt.Errorf("mark order status: %w", err)
	}

	return r.casOutcome(ctx, res, orderID)
}

// ExpirePending одним условным обновлением отменяет просроченные pending-заказы.
func (r *orderRepository) ExpirePending(before time.Time, filter domain.SweepFilter) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		UPDATE orders
		SET status = $1
		WHERE status = $2
		  AND created_at < $3
	`
	args := []any{string(domain.OrderStatusCancelled), string(domain.OrderStatusPending), before}

	if filter.ProductID != "" {
		args = append(args, filter.ProductID)
		query += fmt.Sprintf(" AND product_id = $%d", len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.OrderID != "" {
		args = append(args, filter.OrderID)
		query += fmt.Sprintf(" AND id = $%d", len(args))
	}
	query += " RETURNING id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("expire pending orders: %w", err)
	}
	defer rows.Close()

	expired := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired order id: %w", err)
		}
		expired = append(expired, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired orders: %w", err)
	}

	return expired, nil
}

func (r *orderRepository) SoldByProduct(productIDs []string) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, COALESCE(SUM(quantity), 0)
		FROM orders
		WHERE product_id = ANY($1)
		  AND status = ANY($2)
		GROUP BY product_id
	`, productIDs, []string{string(domain.OrderStatusPaid), string(domain.OrderStatusDelivered)})
	if err != nil {
		return nil, fmt.Errorf("sum sold by product: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int, len(productIDs))
	for rows.Next() {
		var (
			productID string
			sold      int
		)
		if err := rows.Scan(&productID, &sold); err != nil {
			return nil, fmt.Errorf("scan sold row: %w", err)
		}
		result[productID] = sold
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sold rows: %w", err)
	}

	return result, nil
}

func (r *orderRepository) ProductsOf(orderIDs []string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT product_id
		FROM orders
		WHERE id = ANY($1)
		ORDER BY product_id ASC
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("select products of orders: %w", err)
	}
	defer rows.Close()

	products := make([]string, 0, len(orderIDs))
	for rows.Next() {
		var productID string
		if err := rows.Scan(&productID); err != nil {
			return nil, fmt.Errorf("scan product id: %w", err)
		}
		products = append(products, productID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product ids: %w", err)
	}

	return products, nil
}

// casOutcome переводит результат условного UPDATE в (matched, error):
// ноль строк при существующем заказе — проигранный CAS, не ошибка.
func (r *orderRepository) casOutcome(ctx context.Context, res sql.Result, orderID string) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	var id string
	err = r.db.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrOrderNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check order exists: %w", err)
	}
	return false, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order       domain.Order
		status      string
		cardIDs     []byte
		paidAt      sql.NullTime
		deliveredAt sql.NullTime
	)
	if err := row.Scan(
		&order.OrderID, &order.ProductID, &order.ProductName, &order.AmountMinor,
		&order.Quantity, &status, &order.TradeNo, &order.CardKey, &cardIDs,
		&order.UserID, &order.PointsUsed, &order.PointsAwarded,
		&paidAt, &deliveredAt, &order.CreatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.PaidAt = paidAt.Time
	order.DeliveredAt = deliveredAt.Time
	if len(cardIDs) > 0 {
		if err := json.Unmarshal(cardIDs, &order.CardIDs); err != nil {
			return domain.Order{}, fmt.Errorf("unmarshal card ids: %w", err)
		}
	}
	return order, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
