package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrAmbiguousProduct   = errors.New("product name is ambiguous")
	ErrCategoryNotFound   = errors.New("category not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidState       = errors.New("invalid state")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrTotalMismatch      = errors.New("order total does not match line items")
	ErrDuplicateOrderCode = errors.New("order code already in use")
)

// IsUniqueViolation reports whether err is a 23505 raised by the named
// constraint or index.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == constraint
}

// InsufficientStockError carries the product name and remaining quantity so
// the calling layer can tell the operator which line blocked the sale.
type InsufficientStockError struct {
	ProductName string
	Remaining   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: %q has only %d left", e.ProductName, e.Remaining)
}

// Is makes errors.Is(err, ErrInsufficientStock) match the typed error.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
