package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  int64           `json:"category_id"`
	Quantity    int             `json:"quantity"`
	IsAvailable bool            `json:"is_available"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Order struct {
	ID            int64           `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	CustomerLabel string          `json:"customer_label"`
	CashierLabel  string          `json:"cashier_label,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Status        Status          `json:"status"`
	OrderCode     string          `json:"order_code"`
	Items         []OrderItem     `json:"items,omitempty"`
}

// OrderItem is an immutable snapshot of one cart line at order time. Name and
// unit price never track later catalog edits; ProductID exists only to resolve
// the stock row at completion and is zero for legacy rows.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id,omitempty"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartLine is a client-held line before placement; nothing is persisted until
// the placing transaction commits.
type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}
