package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/safar/go-shop/internal/apperr"
	"github.com/safar/go-shop/internal/database"
	"github.com/safar/go-shop/internal/models"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, user_id, status, payment_status, total_amount, shipping_address_id, created_at, updated_at, version`

func scanOrder(row rowScanner, o *models.Order) error {
	return row.Scan(
		&o.ID,
		&o.UserID,
		&o.Status,
		&o.PaymentStatus,
		&o.TotalAmount,
		&o.ShippingAddressID,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Version,
	)
}

// InsertOrderShell creates the order row before any item is known: status new,
// payment pending, total zero.
func InsertOrderShell(ctx context.Context, tx *sql.Tx, userID, shippingAddressID int64) (*models.Order, error) {
	order := &models.Order{}

	query := `
		INSERT INTO orders (user_id, status, payment_status, total_amount, shipping_address_id, created_at, updated_at, version)
		VALUES ($1, $2, $3, 0, $4, NOW(), NOW(), 1)
		RETURNING ` + orderColumns

	row := tx.QueryRowContext(ctx, query, userID, models.OrderStatusNew, models.PaymentStatusPending, shippingAddressID)
	if err := scanOrder(row, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return order, nil
}

func InsertOrderItem(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO order_items (order_id, product_id, quantity, price_at_time, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING id, created_at`,
		item.OrderID, item.ProductID, item.Quantity, item.PriceAtTime).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order item: %w", err)
	}
	return nil
}

func SetOrderTotal(ctx context.Context, tx *sql.Tx, o *models.Order, total decimal.Decimal) error {
	err := tx.QueryRowContext(ctx,
		`UPDATE orders
		 SET total_amount = $1, updated_at = NOW()
		 WHERE id = $2
		 RETURNING total_amount, updated_at`,
		total, o.ID).Scan(&o.TotalAmount, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("set order total: %w", err)
	}
	return nil
}

func GetOrder(ctx context.Context, q database.Querier, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if err := scanOrder(q.QueryRowContext(ctx, query, id), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := GetOrderItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func GetOrderItems(ctx context.Context, q database.Querier, orderID int64) ([]models.OrderItem, error) {
	itemsQuery := `
		SELECT id, order_id, product_id, quantity, price_at_time, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY product_id`

	rows, err := q.QueryContext(ctx, itemsQuery, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.PriceAtTime,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// LockOrder takes the row lock that serializes status and payment changes.
func LockOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	if err := scanOrder(tx.QueryRowContext(ctx, query, id), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	return order, nil
}

// SaveOrderState persists status and payment status of a locked order.
func SaveOrderState(ctx context.Context, tx *sql.Tx, o *models.Order) error {
	err := tx.QueryRowContext(ctx,
		`UPDATE orders
		 SET status = $1, payment_status = $2, version = version + 1, updated_at = NOW()
		 WHERE id = $3
		 RETURNING updated_at, version`,
		o.Status, o.PaymentStatus, o.ID).Scan(&o.UpdatedAt, &o.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("save order state: %w", err)
	}
	return nil
}

func ListOrdersCursor(ctx context.Context, q database.Querier, userID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, apperr.Wrap(err, ErrInvalidCursor.Kind, ErrInvalidCursor.Code, ErrInvalidCursor.Message)
	}

	args := []any{userID}
	keyset := ""
	if !cursorData.First() {
		args = append(args, cursorData.CreatedAt, cursorData.ID)
		keyset = " AND (created_at, id) < ($2, $3)"
	}
	args = append(args, limit+1)

	query := fmt.Sprintf(`
		SELECT %s
		FROM orders
		WHERE user_id = $1%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`, orderColumns, keyset, len(args))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

type OrderFilter struct {
	Status        models.OrderStatus
	PaymentStatus models.PaymentStatus
	From          time.Time
	To            time.Time
	Page          int
	PageSize      int
}

func (f *OrderFilter) where() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.PaymentStatus != "" {
		add("payment_status = $%d", f.PaymentStatus)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListOrders is the admin listing across all users.
func ListOrders(ctx context.Context, q database.Querier, f OrderFilter) (*OffsetPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
	clause, args := f.where()

	var total int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, clause, len(args)+1, len(args)+2)
	rows, err := q.QueryContext(ctx, query, append(args, f.PageSize, (f.Page-1)*f.PageSize)...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(orders, total, f.Page, f.PageSize), nil
}
