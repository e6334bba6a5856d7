package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/idris/go-pos-store/internal/database"
	"github.com/idris/go-pos-store/internal/models"
)

// createOrderTx writes an order header and its line items as one unit. It is
// deliberately unexported: order rows only ever come into existence inside a
// coordinator transaction (PlaceOrder), never standalone.
func createOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) (int64, error) {
	var orderID int64

	err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (created_at, customer_label, cashier_label, total, status, order_code)
		 VALUES (NOW(), $1, $2, $3, $4, $5)
		 RETURNING id`,
		order.CustomerLabel,
		nullableLabel(order.CashierLabel),
		order.Total,
		order.Status,
		order.OrderCode,
	).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, product_name, unit_price, quantity)
			 VALUES ($1, $2, $3, $4, $5)`,
			orderID, nullableID(item.ProductID), item.ProductName, item.UnitPrice, item.Quantity)
		if err != nil {
			return 0, fmt.Errorf("insert order item: %w", err)
		}
	}

	return orderID, nil
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	order := &models.Order{}
	var cashier sql.NullString

	err := db.QueryRowContext(ctx,
		`SELECT id, created_at, customer_label, cashier_label, total, status, order_code
		 FROM orders
		 WHERE id = $1`,
		id).Scan(
		&order.ID,
		&order.CreatedAt,
		&order.CustomerLabel,
		&cashier,
		&order.Total,
		&order.Status,
		&order.OrderCode,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	order.CashierLabel = cashier.String

	items, err := listOrderItems(ctx, db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func listOrderItems(ctx context.Context, db *sql.DB, orderID int64) ([]models.OrderItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, unit_price, quantity
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		var productID sql.NullInt64
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&productID,
			&item.ProductName,
			&item.UnitPrice,
			&item.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.ProductID = productID.Int64
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// ListOrders returns order headers newest-created-first. Every screen
// (cashier, crew, history) relies on that ordering.
func ListOrders(ctx context.Context, db *sql.DB, filter OrderFilter) ([]models.Order, error) {
	query := `
		SELECT id, created_at, customer_label, cashier_label, total, status, order_code
		FROM orders
		WHERE ($1 = '' OR status = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC`

	args := []interface{}{
		string(filter.Status),
		nullableTime(filter.From),
		nullableTime(filter.To),
	}
	if filter.Limit > 0 {
		query += ` LIMIT $4`
		args = append(args, filter.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		var cashier sql.NullString
		err := rows.Scan(
			&order.ID,
			&order.CreatedAt,
			&order.CustomerLabel,
			&cashier,
			&order.Total,
			&order.Status,
			&order.OrderCode,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		order.CashierLabel = cashier.String
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// UpdateStatus moves an order along the lifecycle. Anything outside the
// transition table fails with ErrInvalidTransition; the write is conditional
// on the current status so concurrent flips serialize on the order row.
func UpdateStatus(ctx context.Context, db *sql.DB, id int64, to models.Status) error {
	return database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return updateStatusTx(ctx, tx, id, to)
	})
}

func updateStatusTx(ctx context.Context, tx *sql.Tx, id int64, to models.Status) error {
	if !models.ValidStatus(to) {
		return fmt.Errorf("status %q: %w", to, database.ErrInvalidTransition)
	}

	var froms []string
	for _, from := range []models.Status{models.StatusUnpaid, models.StatusPending, models.StatusCompleted, models.StatusCancelled} {
		if models.CanTransition(from, to) {
			froms = append(froms, string(from))
		}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1 WHERE id = $2 AND status = ANY($3)`,
		to, id, pq.Array(froms))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var current models.Status
		err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("read order status: %w", err)
		}
		return fmt.Errorf("%s -> %s: %w", current, to, database.ErrInvalidTransition)
	}

	return nil
}

// DeleteOrder is an irreversible administrative hard delete, outside the
// status machine. Line items go with the order via ON DELETE CASCADE.
func DeleteOrder(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrOrderNotFound
	}

	return nil
}

func nullableLabel(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
