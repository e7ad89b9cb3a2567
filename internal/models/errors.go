package models

import "fmt"

// NotFoundError covers both missing entities and cross-tenant references;
// the two are indistinguishable to the caller on purpose.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Resource, e.ID)
}

// InsufficientStockError rejects a sale before any mutation is applied
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested=%d, available=%d",
		e.ProductName, e.Requested, e.Available)
}

// GatewayError wraps any transport error or non-success response from the
// payment provider. The sale workflow treats it as terminal for the sale.
type GatewayError struct {
	Op     string
	Detail string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpesa %s failed: %s: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("mpesa %s failed: %s", e.Op, e.Detail)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ValidationError rejects malformed input before any persistence
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Detail
}
