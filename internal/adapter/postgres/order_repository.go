package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `o.id, o.number, o.user_id, o.status, o.payment_method, o.payment_status, o.payment_ref,
	o.ship_name, o.ship_phone, o.ship_email, o.ship_line1, o.ship_city, o.ship_zone,
	o.subtotal, o.discount, o.shipping_fee, o.total, o.coupon_id, o.coupon_code, o.notes, o.created_at, o.updated_at`

var orderConstraints = map[string]error{
	"orders_number_key": domain.ErrOrderNumberTaken,
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	s := &o.Shipping
	err := row.Scan(&o.ID, &o.Number, &o.UserID, &o.Status, &o.PaymentMethod, &o.PaymentStatus, &o.PaymentRef,
		&s.Name, &s.Phone, &s.Email, &s.Line1, &s.City, &s.Zone,
		&o.Subtotal, &o.Discount, &o.ShippingFee, &o.Total, &o.CouponID, &o.CouponCode, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// Create inserts the order, decrements stock and redeems the coupon in one
// transaction. Any failure leaves the catalog untouched.
func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	s := o.Shipping
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, number, user_id, status, payment_method, payment_status, payment_ref,
			ship_name, ship_phone, ship_email, ship_line1, ship_city, ship_zone,
			subtotal, discount, shipping_fee, total, coupon_id, coupon_code, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING created_at, updated_at`,
		o.ID, o.Number, o.UserID, o.Status, o.PaymentMethod, o.PaymentStatus, o.PaymentRef,
		s.Name, s.Phone, s.Email, s.Line1, s.City, s.Zone,
		o.Subtotal, o.Discount, o.ShippingFee, o.Total, o.CouponID, o.CouponCode, o.Notes,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if mapped := constraintError(err, codeUniqueViolation, orderConstraints); mapped != nil {
		return mapped
	}
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	// Lock rows in a stable order so concurrent checkouts cannot deadlock.
	items := slices.Clone(o.Items)
	slices.SortFunc(items, func(a, b domain.OrderItem) int {
		return slices.Compare(a.ProductID[:], b.ProductID[:])
	})
	for _, it := range items {
		if err := decrementStock(ctx, tx, it.ProductID, it.Quantity); err != nil {
			return err
		}
	}

	if o.CouponID != nil {
		tag, err := tx.Exec(ctx, `
			UPDATE coupons SET used_count = used_count + 1, updated_at = now()
			WHERE id = $1 AND (usage_limit = 0 OR used_count < usage_limit)`, *o.CouponID)
		if err != nil {
			return fmt.Errorf("failed to redeem coupon: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrCouponUsageExhausted
		}
	}

	rows := make([][]any, len(o.Items))
	for i, it := range o.Items {
		rows[i] = []any{o.ID, i, it.ProductID, it.Name, it.SKU, it.UnitPrice, it.Quantity, it.LineTotal}
	}
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"order_items"},
		[]string{"order_id", "position", "product_id", "name", "sku", "unit_price", "quantity", "line_total"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to insert order items: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, to_status, actor_id) VALUES ($1, $2, $3)`,
		o.ID, o.Status, o.UserID); err != nil {
		return fmt.Errorf("failed to record status history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func decrementStock(ctx context.Context, tx pgx.Tx, productID uuid.UUID, qty int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND active AND stock >= $2`, productID, qty)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var available int
	var active bool
	err = tx.QueryRow(ctx, `SELECT stock, active FROM products WHERE id = $1`, productID).Scan(&available, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read stock: %w", err)
	}
	if !active {
		available = 0
	}
	return &domain.StockError{ProductID: productID, Requested: qty, Available: available}
}

func (r *OrderRepo) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return r.getByNumber(ctx, r.pool, number)
}

func (r *OrderRepo) getByNumber(ctx context.Context, q querier, number string) (*domain.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.number = $1`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if o.Items, err = loadItems(ctx, q, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

func loadItems(ctx context.Context, q querier, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, name, sku, unit_price, quantity, line_total
		FROM order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderItem, error) {
		var it domain.OrderItem
		err := row.Scan(&it.ProductID, &it.Name, &it.SKU, &it.UnitPrice, &it.Quantity, &it.LineTotal)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan order items: %w", err)
	}
	return items, nil
}

// List returns order headers without items.
func (r *OrderRepo) List(ctx context.Context, f domain.OrderFilter) ([]domain.Order, int, error) {
	var w filter
	if f.Status != "" {
		w.add("o.status = %s", f.Status)
	}
	if f.PaymentStatus != "" {
		w.add("o.payment_status = %s", f.PaymentStatus)
	}
	if f.UserID != nil {
		w.add("o.user_id = %s", *f.UserID)
	}
	if f.Query != "" {
		w.add("(o.number ILIKE %s OR o.ship_phone ILIKE %[1]s OR o.ship_name ILIKE %[1]s)", likePattern(f.Query))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders o `+w.where(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	limit, args := w.page(f.Limit, f.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders o `+w.where()+` ORDER BY o.created_at DESC, o.id `+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan orders: %w", err)
	}
	return orders, total, nil
}

// Transition moves the order from t.From to t.To. It is a compare-and-set:
// when another writer moved the order first, or paid it while
// t.RequireUnpaid is set, ErrOrderStatusChanged is returned and nothing is
// written.
func (r *OrderRepo) Transition(ctx context.Context, number string, t domain.StatusTransition) (*domain.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var orderID uuid.UUID
	err = tx.QueryRow(ctx, `
		UPDATE orders
		SET status = $3,
			payment_status = CASE WHEN $4 THEN 'paid' ELSE payment_status END,
			updated_at = now()
		WHERE number = $1 AND status = $2
			AND (NOT $5 OR payment_status = 'unpaid')
		RETURNING id`, number, t.From, t.To, t.MarkPaid, t.RequireUnpaid).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.missOrChanged(ctx, tx, number)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	if t.Restock {
		if _, err := tx.Exec(ctx, `
			UPDATE products p SET stock = p.stock + oi.qty, updated_at = now()
			FROM (SELECT product_id, sum(quantity) AS qty FROM order_items WHERE order_id = $1 GROUP BY product_id) oi
			WHERE p.id = oi.product_id`, orderID); err != nil {
			return nil, fmt.Errorf("failed to restock order items: %w", err)
		}
	}

	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, note, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, orderID, t.From, t.To, t.Note, t.ActorID, at); err != nil {
		return nil, fmt.Errorf("failed to record status history: %w", err)
	}

	o, err := r.getByNumber(ctx, tx, number)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return o, nil
}

func (r *OrderRepo) missOrChanged(ctx context.Context, q querier, number string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE number = $1)`, number).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check order: %w", err)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrOrderStatusChanged
}

func (r *OrderRepo) SetPayment(ctx context.Context, number string, status domain.PaymentStatus, ref string) (*domain.Order, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET payment_status = $2, payment_ref = CASE WHEN $3 = '' THEN payment_ref ELSE $3 END, updated_at = now()
		WHERE number = $1`, number, status, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrOrderNotFound
	}
	return r.GetByNumber(ctx, number)
}

func (r *OrderRepo) History(ctx context.Context, orderID uuid.UUID) ([]domain.StatusChange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT from_status, to_status, note, actor_id, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load status history: %w", err)
	}
	changes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StatusChange, error) {
		var c domain.StatusChange
		err := row.Scan(&c.From, &c.To, &c.Note, &c.ActorID, &c.At)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan status history: %w", err)
	}
	return changes, nil
}

func (r *OrderRepo) ListExpiredUnpaid(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders o
		WHERE o.payment_method = 'online' AND o.status = 'pending' AND o.payment_status = 'unpaid'
			AND o.created_at < $1
		ORDER BY o.created_at
		LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan orders: %w", err)
	}
	return orders, nil
}

func (r *OrderRepo) HasDeliveredProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM orders o JOIN order_items oi ON oi.order_id = o.id
			WHERE o.user_id = $1 AND oi.product_id = $2 AND o.status = 'delivered'
		)`, userID, productID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check purchase: %w", err)
	}
	return ok, nil
}
