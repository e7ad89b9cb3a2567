package models

import "time"

// Event types
const (
	EventTypeSaleCreated      = "SALE_CREATED"
	EventTypePaymentCompleted = "PAYMENT_COMPLETED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
	EventTypeLowStock         = "LOW_STOCK"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleCreatedEvent published when a sale and its items are persisted
type SaleCreatedEvent struct {
	BaseEvent
	PaymentID  int64             `json:"payment_id"`
	BusinessID int64             `json:"business_id"`
	UserID     int64             `json:"user_id"`
	CustomerID int64             `json:"customer_id"`
	Amount     float64           `json:"amount"`
	Method     string            `json:"method"`
	Items      []PaymentItemData `json:"items"`
}

// PaymentCompletedEvent published when a sale reaches completed, whether
// synchronously (cash) or via provider callback (mpesa)
type PaymentCompletedEvent struct {
	BaseEvent
	PaymentID     int64   `json:"payment_id"`
	BusinessID    int64   `json:"business_id"`
	UserID        int64   `json:"user_id"`
	CustomerID    int64   `json:"customer_id"`
	Amount        float64 `json:"amount"`
	Method        string  `json:"method"`
	MpesaReceipt  string  `json:"mpesa_receipt,omitempty"`
	TransactionID string  `json:"transaction_id"`
}

// PaymentFailedEvent published when a mobile-money sale fails, either at
// push initiation or via provider callback
type PaymentFailedEvent struct {
	BaseEvent
	PaymentID  int64   `json:"payment_id"`
	BusinessID int64   `json:"business_id"`
	UserID     int64   `json:"user_id"`
	CustomerID int64   `json:"customer_id"`
	Amount     float64 `json:"amount"`
	Reason     string  `json:"reason"`
}

// LowStockEvent published when a product crosses its low-stock threshold
type LowStockEvent struct {
	BaseEvent
	BusinessID  int64  `json:"business_id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Stock       int    `json:"stock"`
}

// PaymentItemData represents line item data in events
type PaymentItemData struct {
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}
