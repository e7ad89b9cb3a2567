package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"biashara-service/internal/models"
	"biashara-service/internal/mpesa"
	"biashara-service/internal/store"
	"biashara-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SaleStore is the storage surface the sale workflow needs. *store.Store
// implements it; tests substitute an in-memory fake.
type SaleStore interface {
	GetCustomer(ctx context.Context, businessID, customerID int64) (*models.Customer, error)
	CreateSale(ctx context.Context, scope models.Scope, payment *models.Payment, items []models.PaymentItem) ([]models.Product, error)
	SetCheckoutRequestID(ctx context.Context, paymentID int64, checkoutRequestID string) error
	FailSale(ctx context.Context, paymentID int64) error
	CompleteSaleByCheckoutID(ctx context.Context, checkoutRequestID, receiptNumber string) (*models.Payment, error)
	FailSaleByCheckoutID(ctx context.Context, checkoutRequestID string) (*models.Payment, error)
	GetPayment(ctx context.Context, businessID, paymentID int64) (*models.Payment, error)
	GetPaymentItems(ctx context.Context, paymentID int64) ([]models.PaymentItem, error)
	ListPayments(ctx context.Context, businessID int64, status, method string, limit, offset int) ([]models.Payment, error)
	GetDashboardStats(ctx context.Context, businessID int64) (*store.DashboardStats, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Gateway initiates mobile-money pushes and polls their outcome
type Gateway interface {
	STKPush(ctx context.Context, phone string, amount float64, accountReference, description string) (*mpesa.STKPushResponse, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*mpesa.STKQueryResponse, error)
}

// Events publishes sale lifecycle events
type Events interface {
	PublishSaleCreated(ctx context.Context, event *models.SaleCreatedEvent) error
	PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
	PublishLowStock(ctx context.Context, event *models.LowStockEvent) error
}

// Cache is the Redis surface the sale workflow uses: callback dedupe and
// the dashboard cache. *redisclient.Client implements it.
type Cache interface {
	WasCallbackSeen(ctx context.Context, checkoutRequestID string) (bool, error)
	MarkCallbackSeen(ctx context.Context, checkoutRequestID string, ttl time.Duration) (bool, error)
	CacheDashboard(ctx context.Context, businessID int64, payload []byte, ttl time.Duration) error
	GetCachedDashboard(ctx context.Context, businessID int64) ([]byte, error)
}

// SaleService orchestrates sale creation and provider callback
// reconciliation
type SaleService struct {
	store      SaleStore
	events     Events
	dispatcher *STKDispatcher
	gateway    Gateway
	redis      Cache
	logger     *zap.Logger
}

// NewSaleService creates a new sale service. redis may be nil; it only
// backs fast-path dedupe and the dashboard cache.
func NewSaleService(store SaleStore, events Events, dispatcher *STKDispatcher, gateway Gateway, redis Cache) *SaleService {
	return &SaleService{
		store:      store,
		events:     events,
		dispatcher: dispatcher,
		gateway:    gateway,
		redis:      redis,
		logger:     util.GetLogger(),
	}
}

// CreateSaleRequest represents a request to record a sale
type CreateSaleRequest struct {
	CustomerID int64             `json:"customer_id" binding:"required"`
	Method     string            `json:"method" binding:"required,oneof=cash mpesa"`
	Items      []SaleItemRequest `json:"items" binding:"required,min=1,dive"`
}

// SaleItemRequest represents one line item
type SaleItemRequest struct {
	ProductID int64   `json:"product_id" binding:"required"`
	Quantity  int     `json:"quantity" binding:"required,min=1"`
	UnitPrice float64 `json:"unit_price" binding:"required,gt=0"`
}

// SaleResponse is the created sale with its line items
type SaleResponse struct {
	Payment models.Payment       `json:"payment"`
	Items   []models.PaymentItem `json:"items"`
}

// CreateSale records a sale. The payment row, its items, the stock
// decrements, and (for cash) the customer ledger update commit in one
// transaction. Mobile-money pushes are dispatched only after that commit,
// off the request path; the caller gets the sale back in pending status and
// the callback resolves it later.
func (s *SaleService) CreateSale(ctx context.Context, scope models.Scope, req *CreateSaleRequest) (*SaleResponse, error) {
	ctx, span := util.StartSpan(ctx, "SaleService.CreateSale")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SaleCreateLatency.Observe(time.Since(start).Seconds())
	}()

	if err := validateSaleRequest(req); err != nil {
		return nil, err
	}

	customer, err := s.store.GetCustomer(ctx, scope.BusinessID, req.CustomerID)
	if err != nil {
		util.SalesFailedTotal.WithLabelValues("customer_not_found").Inc()
		return nil, err
	}

	status := models.PaymentStatusPending
	if req.Method == models.PaymentMethodCash {
		status = models.PaymentStatusCompleted
	}

	payment := &models.Payment{
		CustomerID:    customer.ID,
		BusinessID:    scope.BusinessID,
		UserID:        scope.UserID,
		Amount:        saleAmount(req.Items),
		Status:        status,
		Method:        req.Method,
		TransactionID: uuid.New().String(),
	}

	items := make([]models.PaymentItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = models.PaymentItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.UnitPrice * float64(item.Quantity),
		}
	}

	lowStock, err := s.store.CreateSale(ctx, scope, payment, items)
	if err != nil {
		util.SalesFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	util.SalesCreatedTotal.WithLabelValues(payment.Method).Inc()
	s.logger.Info("Sale created",
		zap.Int64("payment_id", payment.ID),
		zap.String("method", payment.Method),
		zap.Float64("amount", payment.Amount))

	s.emitLowStockAlerts(ctx, scope, lowStock)
	s.publishSaleCreated(ctx, scope, payment, items)

	if payment.Method == models.PaymentMethodCash {
		util.SalesCompletedTotal.WithLabelValues(models.PaymentMethodCash).Inc()
		s.publishPaymentCompleted(ctx, payment)
		return &SaleResponse{Payment: *payment, Items: items}, nil
	}

	job := STKJob{
		PaymentID:  payment.ID,
		BusinessID: scope.BusinessID,
		UserID:     scope.UserID,
		CustomerID: customer.ID,
		Phone:      customer.Phone,
		Amount:     payment.Amount,
		Reference:  fmt.Sprintf("PAY-%d", payment.ID),
		Desc:       fmt.Sprintf("Payment for sale #%d", payment.ID),
	}

	if !s.dispatcher.Enqueue(job) {
		// Queue full: the push will never be sent, so fail the sale now
		// instead of leaving it pending forever.
		s.logger.Error("STK dispatch queue full", zap.Int64("payment_id", payment.ID))
		util.SalesFailedTotal.WithLabelValues("dispatch_queue_full").Inc()
		if err := s.store.FailSale(ctx, payment.ID); err != nil {
			s.logger.Error("Failed to fail sale", zap.Int64("payment_id", payment.ID), zap.Error(err))
		}
		payment.Status = models.PaymentStatusFailed
	}

	return &SaleResponse{Payment: *payment, Items: items}, nil
}

// HandleCallback reconciles a provider callback against the pending sale
// whose stored checkout reference matches. Unknown, stale, and replayed
// callbacks are acknowledged no-ops.
func (s *SaleService) HandleCallback(ctx context.Context, cb *models.STKCallback) error {
	ctx, span := util.StartSpan(ctx, "SaleService.HandleCallback")
	defer span.End()

	stk := cb.Body.StkCallback
	if stk.CheckoutRequestID == "" {
		util.CallbacksTotal.WithLabelValues("invalid").Inc()
		return nil
	}

	if s.redis != nil {
		seen, err := s.redis.WasCallbackSeen(ctx, stk.CheckoutRequestID)
		if err == nil && seen {
			s.logger.Info("Duplicate callback ignored",
				zap.String("checkout_request_id", stk.CheckoutRequestID))
			util.CallbacksTotal.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	if stk.ResultCode == 0 {
		payment, err := s.store.CompleteSaleByCheckoutID(ctx, stk.CheckoutRequestID, cb.ReceiptNumber())
		if err != nil {
			return fmt.Errorf("failed to reconcile callback: %w", err)
		}
		if payment == nil {
			s.logger.Warn("Callback matched no pending sale",
				zap.String("checkout_request_id", stk.CheckoutRequestID))
			util.CallbacksTotal.WithLabelValues("unmatched").Inc()
			return nil
		}

		util.CallbacksTotal.WithLabelValues("success").Inc()
		util.SalesCompletedTotal.WithLabelValues(models.PaymentMethodMpesa).Inc()
		s.logger.Info("Sale completed via callback",
			zap.Int64("payment_id", payment.ID),
			zap.String("receipt", payment.MpesaReceiptNumber))

		s.markCallbackSeen(ctx, stk.CheckoutRequestID)
		s.publishPaymentCompleted(ctx, payment)
		return nil
	}

	payment, err := s.store.FailSaleByCheckoutID(ctx, stk.CheckoutRequestID)
	if err != nil {
		return fmt.Errorf("failed to reconcile callback: %w", err)
	}
	if payment == nil {
		util.CallbacksTotal.WithLabelValues("unmatched").Inc()
		return nil
	}

	util.CallbacksTotal.WithLabelValues("failed").Inc()
	util.SalesFailedTotal.WithLabelValues("provider_declined").Inc()
	s.logger.Warn("Sale failed via callback",
		zap.Int64("payment_id", payment.ID),
		zap.Int("result_code", stk.ResultCode),
		zap.String("result_desc", stk.ResultDesc))

	s.markCallbackSeen(ctx, stk.CheckoutRequestID)
	s.publishPaymentFailed(ctx, payment, stk.ResultDesc)
	return nil
}

// markCallbackSeen records the checkout reference only after the terminal
// transition committed. Marking earlier would swallow the provider's retry
// when reconciliation fails transiently and the sale is still pending.
// Unmatched callbacks are never marked; the push may still be in flight and
// a retry could land after the checkout reference is stored.
func (s *SaleService) markCallbackSeen(ctx context.Context, checkoutRequestID string) {
	if s.redis == nil {
		return
	}
	if _, err := s.redis.MarkCallbackSeen(ctx, checkoutRequestID, 24*time.Hour); err != nil {
		s.logger.Warn("Failed to record callback dedupe key",
			zap.String("checkout_request_id", checkoutRequestID), zap.Error(err))
	}
}

// GetSale retrieves a sale with its line items
func (s *SaleService) GetSale(ctx context.Context, scope models.Scope, paymentID int64) (*SaleResponse, error) {
	payment, err := s.store.GetPayment(ctx, scope.BusinessID, paymentID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.GetPaymentItems(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	return &SaleResponse{Payment: *payment, Items: items}, nil
}

// SaleStatus is the result of polling the provider for a pending sale
type SaleStatus struct {
	Payment        models.Payment `json:"payment"`
	ProviderResult string         `json:"provider_result,omitempty"`
	ProviderDesc   string         `json:"provider_desc,omitempty"`
}

// QueryStatus polls the provider for a mobile-money sale's outcome. This is
// read-only and opportunistic; state transitions still come only through the
// callback.
func (s *SaleService) QueryStatus(ctx context.Context, scope models.Scope, paymentID int64) (*SaleStatus, error) {
	payment, err := s.store.GetPayment(ctx, scope.BusinessID, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Method != models.PaymentMethodMpesa {
		return nil, &models.ValidationError{Detail: "status query only applies to mpesa sales"}
	}

	result := &SaleStatus{Payment: *payment}
	if payment.Status != models.PaymentStatusPending || payment.CheckoutRequestID == "" {
		return result, nil
	}
	if s.gateway == nil {
		return result, nil
	}

	queryResp, err := s.gateway.QueryStatus(ctx, payment.CheckoutRequestID)
	if err != nil {
		s.logger.Warn("Status query failed",
			zap.Int64("payment_id", payment.ID), zap.Error(err))
		return result, nil
	}
	result.ProviderResult = queryResp.ResultCode
	result.ProviderDesc = queryResp.ResultDesc
	return result, nil
}

// ListSales retrieves sales for the business with optional filters
func (s *SaleService) ListSales(ctx context.Context, scope models.Scope, status, method string, limit, offset int) ([]models.Payment, error) {
	return s.store.ListPayments(ctx, scope.BusinessID, status, method, limit, offset)
}

// DashboardData aggregates sales figures for the dashboard
type DashboardData struct {
	Stats              store.DashboardStats `json:"stats"`
	RecentTransactions []models.Payment     `json:"recent_transactions"`
}

// Dashboard returns completed-sale totals and recent transactions, cached
// briefly in Redis
func (s *SaleService) Dashboard(ctx context.Context, scope models.Scope) (*DashboardData, error) {
	if s.redis != nil {
		if cached, err := s.redis.GetCachedDashboard(ctx, scope.BusinessID); err == nil && cached != nil {
			var data DashboardData
			if json.Unmarshal(cached, &data) == nil {
				return &data, nil
			}
		}
	}

	stats, err := s.store.GetDashboardStats(ctx, scope.BusinessID)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.ListPayments(ctx, scope.BusinessID, "", "", 5, 0)
	if err != nil {
		return nil, err
	}

	data := &DashboardData{Stats: *stats, RecentTransactions: recent}
	if s.redis != nil {
		if payload, err := json.Marshal(data); err == nil {
			_ = s.redis.CacheDashboard(ctx, scope.BusinessID, payload, time.Minute)
		}
	}
	return data, nil
}

// emitLowStockAlerts appends a notification per product that crossed its
// threshold. Best-effort: a failure here never touches the sale.
func (s *SaleService) emitLowStockAlerts(ctx context.Context, scope models.Scope, products []models.Product) {
	for _, product := range products {
		priority := models.PriorityMedium
		if product.Stock == 0 {
			priority = models.PriorityHigh
		}

		n := &models.Notification{
			UserID:   scope.UserID,
			Type:     models.NotificationTypeLowStock,
			Title:    "Low Stock Alert",
			Message:  fmt.Sprintf("%s is running low (%d units remaining)", product.Name, product.Stock),
			Priority: priority,
		}

		if err := s.store.CreateNotification(ctx, n); err != nil {
			util.NotificationFailuresTotal.Inc()
			s.logger.Error("Failed to create low-stock notification",
				zap.Int64("product_id", product.ID), zap.Error(err))
			continue
		}
		util.LowStockAlertsTotal.Inc()

		if s.events != nil {
			event := &models.LowStockEvent{
				BaseEvent:   newBaseEvent(models.EventTypeLowStock),
				BusinessID:  scope.BusinessID,
				ProductID:   product.ID,
				ProductName: product.Name,
				Stock:       product.Stock,
			}
			if err := s.events.PublishLowStock(ctx, event); err != nil {
				s.logger.Error("Failed to publish LowStock event", zap.Error(err))
			}
		}
	}
}

func (s *SaleService) publishSaleCreated(ctx context.Context, scope models.Scope, payment *models.Payment, items []models.PaymentItem) {
	if s.events == nil {
		return
	}
	itemData := make([]models.PaymentItemData, len(items))
	for i, item := range items {
		itemData[i] = models.PaymentItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	event := &models.SaleCreatedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeSaleCreated),
		PaymentID:  payment.ID,
		BusinessID: payment.BusinessID,
		UserID:     scope.UserID,
		CustomerID: payment.CustomerID,
		Amount:     payment.Amount,
		Method:     payment.Method,
		Items:      itemData,
	}
	if err := s.events.PublishSaleCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish SaleCreated event", zap.Error(err))
	}
}

func (s *SaleService) publishPaymentCompleted(ctx context.Context, payment *models.Payment) {
	if s.events == nil {
		return
	}
	event := &models.PaymentCompletedEvent{
		BaseEvent:     newBaseEvent(models.EventTypePaymentCompleted),
		PaymentID:     payment.ID,
		BusinessID:    payment.BusinessID,
		UserID:        payment.UserID,
		CustomerID:    payment.CustomerID,
		Amount:        payment.Amount,
		Method:        payment.Method,
		MpesaReceipt:  payment.MpesaReceiptNumber,
		TransactionID: payment.TransactionID,
	}
	if err := s.events.PublishPaymentCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentCompleted event", zap.Error(err))
	}
}

func (s *SaleService) publishPaymentFailed(ctx context.Context, payment *models.Payment, reason string) {
	if s.events == nil {
		return
	}
	event := &models.PaymentFailedEvent{
		BaseEvent:  newBaseEvent(models.EventTypePaymentFailed),
		PaymentID:  payment.ID,
		BusinessID: payment.BusinessID,
		UserID:     payment.UserID,
		CustomerID: payment.CustomerID,
		Amount:     payment.Amount,
		Reason:     reason,
	}
	if err := s.events.PublishPaymentFailed(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func validateSaleRequest(req *CreateSaleRequest) error {
	if req.Method != models.PaymentMethodCash && req.Method != models.PaymentMethodMpesa {
		return &models.ValidationError{Detail: fmt.Sprintf("unsupported payment method: %s", req.Method)}
	}
	if len(req.Items) == 0 {
		return &models.ValidationError{Detail: "sale requires at least one item"}
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return &models.ValidationError{Detail: fmt.Sprintf("invalid quantity %d for product %d", item.Quantity, item.ProductID)}
		}
		if item.UnitPrice <= 0 {
			return &models.ValidationError{Detail: fmt.Sprintf("invalid unit price for product %d", item.ProductID)}
		}
	}
	return nil
}

func saleAmount(items []SaleItemRequest) float64 {
	var total float64
	for _, item := range items {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return total
}

func failureReason(err error) string {
	switch err.(type) {
	case *models.NotFoundError:
		return "not_found"
	case *models.InsufficientStockError:
		return "insufficient_stock"
	default:
		return "db_error"
	}
}
