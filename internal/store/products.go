package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/idris/go-pos-store/internal/database"
	"github.com/idris/go-pos-store/internal/models"
)

func CreateProduct(ctx context.Context, db *sql.DB, name string, price decimal.Decimal, categoryID int64, quantity int) (*models.Product, error) {
	product := &models.Product{}
	var catID sql.NullInt64

	query := `
		INSERT INTO products (name, price, category_id, quantity, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4 > 0, NOW(), NOW())
		RETURNING id, name, price, category_id, quantity, is_available, created_at, updated_at`

	err := db.QueryRowContext(ctx, query, name, price, nullableID(categoryID), quantity).Scan(
		&product.ID,
		&product.Name,
		&product.Price,
		&catID,
		&product.Quantity,
		&product.IsAvailable,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	product.CategoryID = catID.Int64
	return product, nil
}

func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	product := &models.Product{}
	var catID sql.NullInt64

	query := `
		SELECT id, name, price, category_id, quantity, is_available, created_at, updated_at
		FROM products
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.Price,
		&catID,
		&product.Quantity,
		&product.IsAvailable,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	product.CategoryID = catID.Int64
	return product, nil
}

// UpdateProduct rewrites the catalog row. Writing a quantity also recomputes
// availability: a product with zero stock can never stay sellable.
func UpdateProduct(ctx context.Context, db *sql.DB, id int64, name string, price decimal.Decimal, categoryID int64, quantity int) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products
		 SET name = $1, price = $2, category_id = $3, quantity = $4,
		     is_available = $4 > 0,
		     updated_at = NOW()
		 WHERE id = $5`,
		name, price, nullableID(categoryID), quantity, id)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

func DeleteProduct(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

// SetAvailability toggles whether a product is offered for sale. Enabling a
// product that has no stock is an invalid state and is rejected.
func SetAvailability(ctx context.Context, db *sql.DB, id int64, enabled bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products
		 SET is_available = $1, updated_at = NOW()
		 WHERE id = $2
		   AND NOT ($1 AND quantity = 0)`,
		enabled, id)
	if err != nil {
		return fmt.Errorf("set availability: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := GetProduct(ctx, db, id); err != nil {
			return err
		}
		return fmt.Errorf("enable product %d with zero stock: %w", id, database.ErrInvalidState)
	}

	return nil
}

// DecrementStock subtracts quantity from one product row as a single
// conditional statement, so concurrent decrements serialize on the row and
// the counter can never go negative. Hitting zero marks the product
// unavailable in the same statement.
func DecrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET quantity = quantity - $1,
		     is_available = CASE WHEN quantity - $1 <= 0 THEN FALSE ELSE is_available END,
		     updated_at = NOW()
		 WHERE id = $2
		   AND quantity >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var name string
		var remaining int
		err := tx.QueryRowContext(ctx,
			`SELECT name, quantity FROM products WHERE id = $1`,
			productID).Scan(&name, &remaining)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrProductNotFound
			}
			return fmt.Errorf("read remaining stock: %w", err)
		}
		return &database.InsufficientStockError{ProductName: name, Remaining: remaining}
	}

	return nil
}

// resolveLedgerProduct finds the stock row for an order line. Lines written
// since id-linkage carry the product id; for legacy lines the only handle is
// an exact, trimmed, case-sensitive name match against the catalog. The
// catalog does not enforce unique names, so a match shared by several rows
// fails rather than decrementing a guessed product.
func resolveLedgerProduct(ctx context.Context, tx *sql.Tx, item models.OrderItem) (int64, error) {
	if item.ProductID != 0 {
		return item.ProductID, nil
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM products WHERE btrim(name) = $1 LIMIT 2`,
		strings.TrimSpace(item.ProductName))
	if err != nil {
		return 0, fmt.Errorf("resolve product by name: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("scan product id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rows error: %w", err)
	}

	switch len(ids) {
	case 0:
		return 0, fmt.Errorf("resolve %q: %w", item.ProductName, database.ErrProductNotFound)
	case 1:
		return ids[0], nil
	default:
		return 0, fmt.Errorf("resolve %q: %w", item.ProductName, database.ErrAmbiguousProduct)
	}
}

func ListProducts(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, name, price, category_id, quantity, is_available, created_at, updated_at
		FROM products
		ORDER BY category_id NULLS LAST, name
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		var catID sql.NullInt64
		err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.Price,
			&catID,
			&product.Quantity,
			&product.IsAvailable,
			&product.CreatedAt,
			&product.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		product.CategoryID = catID.Int64
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(products, total, page, pageSize), nil
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
