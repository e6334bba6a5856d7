package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/idris/go-pos-store/internal/database"
	"github.com/idris/go-pos-store/internal/models"
)

func ListCategories(ctx context.Context, db *sql.DB) ([]models.Category, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return categories, nil
}

func CreateCategory(ctx context.Context, db *sql.DB, name string) (*models.Category, error) {
	category := &models.Category{}

	err := db.QueryRowContext(ctx,
		`INSERT INTO categories (name) VALUES ($1) RETURNING id, name`,
		name).Scan(&category.ID, &category.Name)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}

	return category, nil
}

func DeleteCategory(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrCategoryNotFound
	}

	return nil
}
