package models

import "time"

// User roles
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
)

// User / customer / invitation statuses
const (
	StatusActive   = "active"
	StatusPending  = "pending"
	StatusInactive = "inactive"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Payment methods
const (
	PaymentMethodMpesa = "mpesa"
	PaymentMethodCash  = "cash"
)

// Notification types
const (
	NotificationTypeLowStock   = "low_stock"
	NotificationTypePayment    = "payment"
	NotificationTypeSystem     = "system"
	NotificationTypeRoleInvite = "role_invite"
)

// Notification priorities
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Scope identifies the acting user and their business. Every service and
// store call that touches tenant data takes it explicitly; there is no
// ambient "current business".
type Scope struct {
	UserID     int64
	BusinessID int64
	Role       string
}

// Business is the tenant boundary. All other entities hang off it by ID.
type Business struct {
	ID           int64      `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	BusinessType string     `db:"business_type" json:"business_type,omitempty"`
	Description  string     `db:"description" json:"description,omitempty"`
	Address      string     `db:"address" json:"address,omitempty"`
	Phone        string     `db:"phone" json:"phone,omitempty"`
	Email        string     `db:"email" json:"email,omitempty"`
	Currency     string     `db:"currency" json:"currency"`
	TaxPIN       string     `db:"tax_pin" json:"tax_pin,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// User is a team member of a business
type User struct {
	ID             int64      `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	Email          string     `db:"email" json:"email"`
	HashedPassword string     `db:"hashed_password" json:"-"`
	Role           string     `db:"role" json:"role"`
	Status         string     `db:"status" json:"status"`
	BusinessID     int64      `db:"business_id" json:"business_id"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Product is a catalog item with its current stock level
type Product struct {
	ID                int64      `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	Category          string     `db:"category" json:"category"`
	Price             float64    `db:"price" json:"price"`
	Stock             int        `db:"stock" json:"stock"`
	LowStockThreshold int        `db:"low_stock_threshold" json:"low_stock_threshold"`
	BusinessID        int64      `db:"business_id" json:"business_id"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Customer tracks contact info and the running purchase ledger.
// TotalPurchases and LastPurchase move only when a payment completes.
type Customer struct {
	ID             int64      `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	Phone          string     `db:"phone" json:"phone"`
	Email          string     `db:"email" json:"email,omitempty"`
	TotalPurchases float64    `db:"total_purchases" json:"total_purchases"`
	LastPurchase   *time.Time `db:"last_purchase" json:"last_purchase,omitempty"`
	Status         string     `db:"status" json:"status"`
	BusinessID     int64      `db:"business_id" json:"business_id"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Payment is a sale: one customer transaction with one or more line items.
// UserID is the team member who recorded the sale, kept on the row so
// callback-resolved outcomes can still be attributed to them.
// TransactionID is generated locally at creation; CheckoutRequestID is the
// provider checkout reference stored at STK push initiation and used to
// correlate the asynchronous callback back to this row.
type Payment struct {
	ID                 int64      `db:"id" json:"id"`
	CustomerID         int64      `db:"customer_id" json:"customer_id"`
	BusinessID         int64      `db:"business_id" json:"business_id"`
	UserID             int64      `db:"user_id" json:"user_id"`
	Amount             float64    `db:"amount" json:"amount"`
	Status             string     `db:"status" json:"status"`
	Method             string     `db:"method" json:"method"`
	TransactionID      string     `db:"transaction_id" json:"transaction_id"`
	CheckoutRequestID  string     `db:"checkout_request_id" json:"checkout_request_id,omitempty"`
	MpesaReceiptNumber string     `db:"mpesa_receipt_number" json:"mpesa_receipt_number,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// PaymentItem is a line item. Price is captured at sale time; it does not
// follow later product price changes.
type PaymentItem struct {
	ID         int64   `db:"id" json:"id"`
	PaymentID  int64   `db:"payment_id" json:"payment_id"`
	ProductID  int64   `db:"product_id" json:"product_id"`
	Quantity   int     `db:"quantity" json:"quantity"`
	UnitPrice  float64 `db:"unit_price" json:"unit_price"`
	TotalPrice float64 `db:"total_price" json:"total_price"`
}

// Notification is an append-only alert for a user
type Notification struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Type      string    `db:"type" json:"type"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Priority  string    `db:"priority" json:"priority"`
	Read      bool      `db:"read" json:"read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TeamInvitation is a pending invite to join a business
type TeamInvitation struct {
	ID              int64     `db:"id" json:"id"`
	BusinessID      int64     `db:"business_id" json:"business_id"`
	Email           string    `db:"email" json:"email"`
	Name            string    `db:"name" json:"name"`
	Role            string    `db:"role" json:"role"`
	InvitationToken string    `db:"invitation_token" json:"-"`
	Message         string    `db:"message" json:"message,omitempty"`
	Status          string    `db:"status" json:"status"`
	InvitedBy       int64     `db:"invited_by" json:"invited_by"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	ExpiresAt       time.Time `db:"expires_at" json:"expires_at"`
}

// ProcessedEvent marks a consumed broker event for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// STKCallback is the provider's callback envelope, delivered as-is to the
// callback endpoint.
type STKCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []STKCallbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallbackItem is one name/value pair of callback metadata
type STKCallbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// ReceiptNumber extracts the MpesaReceiptNumber metadata item, if present
func (c *STKCallback) ReceiptNumber() string {
	for _, item := range c.Body.StkCallback.CallbackMetadata.Item {
		if item.Name == "MpesaReceiptNumber" {
			if s, ok := item.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}
