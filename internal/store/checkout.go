package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/idris/go-pos-store/internal/database"
	"github.com/idris/go-pos-store/internal/models"
)

type PlaceOrderRequest struct {
	Cart          []models.CartLine
	Total         decimal.Decimal
	CustomerLabel string
	// CashierLabel is empty for self-service orders; those start Unpaid and
	// wait for cashier pickup by code.
	CashierLabel string
	// DecreaseStock moves inventory at placement. Left false, stock is not
	// touched until CompleteOrder, so an abandoned kiosk cart never depletes
	// the shelf.
	DecreaseStock bool
	// ExistingCode re-finalizes a previously loaded order under its original
	// token instead of minting a new one.
	ExistingCode string
}

// PlaceOrder turns a cart into a durable order record. Header, line items and
// any stock movement commit or roll back as one unit; no reader ever observes
// a header without its items.
func PlaceOrder(ctx context.Context, db *sql.DB, req PlaceOrderRequest) (int64, error) {
	if len(req.Cart) == 0 {
		return 0, database.ErrEmptyCart
	}

	code := NormalizeOrderCode(req.ExistingCode)
	if code == "" {
		generated, err := GenerateOrderCode()
		if err != nil {
			return 0, err
		}
		code = generated
	}

	status := models.StatusUnpaid
	if req.CashierLabel != "" {
		status = models.StatusPending
	}

	var orderID int64

	// Read committed is enough here: the conditional decrement is a single
	// statement, so the row lock serializes concurrent writers without an
	// isolation-level retry storm.
	err := database.WithRetry(ctx, db, database.TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		items, total, err := snapshotCart(ctx, tx, req.Cart)
		if err != nil {
			return err
		}

		if !total.Equal(req.Total) {
			return fmt.Errorf("submitted %s, computed %s: %w", req.Total, total, database.ErrTotalMismatch)
		}

		id, err := createOrderTx(ctx, tx, &models.Order{
			CustomerLabel: req.CustomerLabel,
			CashierLabel:  req.CashierLabel,
			Total:         total,
			Status:        status,
			OrderCode:     code,
			Items:         items,
		})
		if err != nil {
			// The partial unique index guards live codes; a collision means
			// another Unpaid/Pending order already owns this token.
			if database.IsUniqueViolation(err, "uniq_orders_live_order_code") {
				return fmt.Errorf("order code %s: %w", code, database.ErrDuplicateOrderCode)
			}
			return err
		}

		if req.DecreaseStock {
			for _, item := range items {
				if err := DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}

		orderID = id
		return nil
	})
	if err != nil {
		return 0, err
	}

	return orderID, nil
}

// snapshotCart resolves every cart line against the live catalog, freezing
// name and unit price as they stand right now. The snapshots are what the
// order keeps; later catalog edits never touch committed orders.
func snapshotCart(ctx context.Context, tx *sql.Tx, cart []models.CartLine) ([]models.OrderItem, decimal.Decimal, error) {
	items := make([]models.OrderItem, 0, len(cart))
	total := decimal.Zero

	for _, line := range cart {
		if line.Quantity <= 0 {
			return nil, decimal.Zero, fmt.Errorf("quantity %d for product %d: %w", line.Quantity, line.ProductID, database.ErrInvalidState)
		}

		var name string
		var price decimal.Decimal
		err := tx.QueryRowContext(ctx,
			`SELECT name, price FROM products WHERE id = $1`,
			line.ProductID).Scan(&name, &price)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, decimal.Zero, fmt.Errorf("product %d: %w", line.ProductID, database.ErrProductNotFound)
			}
			return nil, decimal.Zero, fmt.Errorf("snapshot product %d: %w", line.ProductID, err)
		}

		item := models.OrderItem{
			ProductID:   line.ProductID,
			ProductName: name,
			UnitPrice:   price,
			Quantity:    line.Quantity,
		}
		items = append(items, item)
		total = total.Add(item.Subtotal())
	}

	return items, total, nil
}

// LookupByCode finds the live order behind a pickup token. Completed and
// cancelled orders are invisible here; the cashier gets ErrOrderNotFound
// rather than a stale record.
func LookupByCode(ctx context.Context, db *sql.DB, code string) (*models.Order, error) {
	normalized := NormalizeOrderCode(code)
	if normalized == "" {
		return nil, database.ErrOrderNotFound
	}

	order := &models.Order{}
	var cashier sql.NullString

	// Header and status guard in one statement, so a concurrent completion
	// can never hand back an order outside {Unpaid, Pending}.
	err := db.QueryRowContext(ctx,
		`SELECT id, created_at, customer_label, cashier_label, total, status, order_code
		 FROM orders
		 WHERE order_code = $1
		   AND status IN ($2, $3)`,
		normalized, models.StatusUnpaid, models.StatusPending).Scan(
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
		return nil, fmt.Errorf("lookup order by code: %w", err)
	}
	order.CashierLabel = cashier.String

	items, err := listOrderItems(ctx, db, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// LoadOrderCart rebuilds a working cart from a persisted order so the cashier
// can adjust quantities. Each line is re-resolved against the live catalog to
// regain a price/stock-aware product reference; legacy lines without a stored
// product id fall back to exact name match.
func LoadOrderCart(ctx context.Context, db *sql.DB, orderID int64) ([]models.CartLine, error) {
	order, err := GetOrder(ctx, db, orderID)
	if err != nil {
		return nil, err
	}

	var cart []models.CartLine
	err = database.WithTransaction(ctx, db, database.TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		ReadOnly:       true,
	}, func(tx *sql.Tx) error {
		for _, item := range order.Items {
			productID, err := resolveLedgerProduct(ctx, tx, item)
			if err != nil {
				return err
			}
			cart = append(cart, models.CartLine{ProductID: productID, Quantity: item.Quantity})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cart, nil
}

// EditLoadedOrder replaces an order's line-item set in place, inside one
// transaction. The order id, order code and created-at stay exactly as they
// were; only the owned item collection and the total change.
func EditLoadedOrder(ctx context.Context, db *sql.DB, orderID int64, newCart []models.CartLine) error {
	if len(newCart) == 0 {
		return database.ErrEmptyCart
	}

	return database.WithRetry(ctx, db, database.TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		var status models.Status
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM orders WHERE id = $1 FOR UPDATE`,
			orderID).Scan(&status)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if status != models.StatusUnpaid && status != models.StatusPending {
			return fmt.Errorf("edit %s order: %w", status, database.ErrInvalidTransition)
		}

		items, total, err := snapshotCart(ctx, tx, newCart)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
			return fmt.Errorf("clear order items: %w", err)
		}

		for _, item := range items {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, product_id, product_name, unit_price, quantity)
				 VALUES ($1, $2, $3, $4, $5)`,
				orderID, nullableID(item.ProductID), item.ProductName, item.UnitPrice, item.Quantity)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE orders SET total = $1 WHERE id = $2`, total, orderID); err != nil {
			return fmt.Errorf("update order total: %w", err)
		}

		return nil
	})
}

// CompleteOrder performs the deferred stock deduction and flips the order to
// Completed, atomically. A failed decrement (stock moved out-of-band since
// placement) aborts the whole transaction and leaves the order Pending; the
// caller reports it and the order stays actionable.
func CompleteOrder(ctx context.Context, db *sql.DB, orderID int64) error {
	return database.WithRetry(ctx, db, database.TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		var status models.Status
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM orders WHERE id = $1 FOR UPDATE`,
			orderID).Scan(&status)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if status != models.StatusPending {
			return fmt.Errorf("complete %s order: %w", status, database.ErrInvalidTransition)
		}

		items, err := listOrderItemsTx(ctx, tx, orderID)
		if err != nil {
			return err
		}

		for _, item := range items {
			productID, err := resolveLedgerProduct(ctx, tx, item)
			if err != nil {
				return err
			}
			if err := DecrementStock(ctx, tx, productID, item.Quantity); err != nil {
				return err
			}
		}

		return updateStatusTx(ctx, tx, orderID, models.StatusCompleted)
	})
}

// CancelOrder voids a Pending order. Stock was never deducted for it, so
// there is nothing to put back.
func CancelOrder(ctx context.Context, db *sql.DB, orderID int64) error {
	return UpdateStatus(ctx, db, orderID, models.StatusCancelled)
}

// PickUpOrder is the cashier claiming a self-service order: the order moves
// Unpaid -> Pending and records who took it.
func PickUpOrder(ctx context.Context, db *sql.DB, orderID int64, cashierLabel string) error {
	return database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := updateStatusTx(ctx, tx, orderID, models.StatusPending); err != nil {
			return err
		}
		if cashierLabel != "" {
			if _, err := tx.ExecContext(ctx,
				`UPDATE orders SET cashier_label = $1 WHERE id = $2`,
				cashierLabel, orderID); err != nil {
				return fmt.Errorf("record cashier: %w", err)
			}
		}
		return nil
	})
}

func listOrderItemsTx(ctx context.Context, tx *sql.Tx, orderID int64) ([]models.OrderItem, error) {
	rows, err := tx.QueryContext(ctx,
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
