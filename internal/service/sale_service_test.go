package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"biashara-service/internal/models"
	"biashara-service/internal/mpesa"
	"biashara-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory SaleStore. A single mutex stands in for the
// database's serializability: CreateSale validates every line item before
// mutating anything, same as the real transaction.
type fakeStore struct {
	mu            sync.Mutex
	products      map[int64]*models.Product
	customers     map[int64]*models.Customer
	payments      map[int64]*models.Payment
	items         map[int64][]models.PaymentItem
	notifications []models.Notification
	nextID        int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products:  make(map[int64]*models.Product),
		customers: make(map[int64]*models.Customer),
		payments:  make(map[int64]*models.Payment),
		items:     make(map[int64][]models.PaymentItem),
	}
}

func (f *fakeStore) GetCustomer(ctx context.Context, businessID, customerID int64) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[customerID]
	if !ok || c.BusinessID != businessID {
		return nil, &models.NotFoundError{Resource: "customer", ID: customerID}
	}
	copied := *c
	return &copied, nil
}

func (f *fakeStore) CreateSale(ctx context.Context, scope models.Scope, payment *models.Payment, items []models.PaymentItem) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	wanted := make(map[int64]int)
	for _, item := range items {
		wanted[item.ProductID] += item.Quantity
	}

	for id, qty := range wanted {
		p, ok := f.products[id]
		if !ok || p.BusinessID != scope.BusinessID {
			return nil, &models.NotFoundError{Resource: "product", ID: id}
		}
		if p.Stock < qty {
			return nil, &models.InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   qty,
				Available:   p.Stock,
			}
		}
	}

	f.nextID++
	payment.ID = f.nextID
	payment.CreatedAt = time.Now()
	stored := *payment
	f.payments[payment.ID] = &stored
	for i := range items {
		items[i].PaymentID = payment.ID
	}
	f.items[payment.ID] = append([]models.PaymentItem(nil), items...)

	var lowStock []models.Product
	for id, qty := range wanted {
		p := f.products[id]
		p.Stock -= qty
		if p.Stock <= p.LowStockThreshold {
			lowStock = append(lowStock, *p)
		}
	}

	if payment.Status == models.PaymentStatusCompleted {
		f.applyPurchaseLocked(payment.CustomerID, payment.Amount)
	}
	return lowStock, nil
}

func (f *fakeStore) applyPurchaseLocked(customerID int64, amount float64) {
	if c, ok := f.customers[customerID]; ok {
		c.TotalPurchases += amount
		now := time.Now()
		c.LastPurchase = &now
	}
}

func (f *fakeStore) SetCheckoutRequestID(ctx context.Context, paymentID int64, checkoutRequestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[paymentID]; ok && p.Status == models.PaymentStatusPending {
		p.CheckoutRequestID = checkoutRequestID
	}
	return nil
}

func (f *fakeStore) FailSale(ctx context.Context, paymentID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[paymentID]; ok && p.Status == models.PaymentStatusPending {
		p.Status = models.PaymentStatusFailed
	}
	return nil
}

func (f *fakeStore) CompleteSaleByCheckoutID(ctx context.Context, checkoutRequestID, receiptNumber string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.CheckoutRequestID == checkoutRequestID && p.Status == models.PaymentStatusPending {
			p.Status = models.PaymentStatusCompleted
			p.MpesaReceiptNumber = receiptNumber
			f.applyPurchaseLocked(p.CustomerID, p.Amount)
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FailSaleByCheckoutID(ctx context.Context, checkoutRequestID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.CheckoutRequestID == checkoutRequestID && p.Status == models.PaymentStatusPending {
			p.Status = models.PaymentStatusFailed
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetPayment(ctx context.Context, businessID, paymentID int64) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok || p.BusinessID != businessID {
		return nil, &models.NotFoundError{Resource: "payment", ID: paymentID}
	}
	copied := *p
	return &copied, nil
}

func (f *fakeStore) GetPaymentItems(ctx context.Context, paymentID int64) ([]models.PaymentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PaymentItem(nil), f.items[paymentID]...), nil
}

func (f *fakeStore) ListPayments(ctx context.Context, businessID int64, status, method string, limit, offset int) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payment
	for _, p := range f.payments {
		if p.BusinessID != businessID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		if method != "" && p.Method != method {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeStore) GetDashboardStats(ctx context.Context, businessID int64) (*store.DashboardStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &store.DashboardStats{}
	for _, p := range f.payments {
		if p.BusinessID == businessID && p.Status == models.PaymentStatusCompleted {
			stats.TodaySales += p.Amount
			stats.WeekSales += p.Amount
			stats.MonthSales += p.Amount
		}
	}
	return stats, nil
}

func (f *fakeStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	n.ID = f.nextID
	f.notifications = append(f.notifications, *n)
	return nil
}

func (f *fakeStore) product(id int64) models.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.products[id]
}

func (f *fakeStore) customer(id int64) models.Customer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.customers[id]
}

func (f *fakeStore) payment(id int64) models.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.payments[id]
}

func (f *fakeStore) notificationsOfType(typ string) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.notifications {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

// fakeGateway returns a canned push response or error
type fakeGateway struct {
	mu    sync.Mutex
	resp  *mpesa.STKPushResponse
	err   error
	calls int
}

func (g *fakeGateway) STKPush(ctx context.Context, phone string, amount float64, accountReference, description string) (*mpesa.STKPushResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.resp, nil
}

func (g *fakeGateway) QueryStatus(ctx context.Context, checkoutRequestID string) (*mpesa.STKQueryResponse, error) {
	return &mpesa.STKQueryResponse{
		CheckoutRequestID: checkoutRequestID,
		ResultCode:        "0",
		ResultDesc:        "The service request is processed successfully.",
	}, nil
}

// fakeEvents records published events
type fakeEvents struct {
	mu        sync.Mutex
	created   []*models.SaleCreatedEvent
	completed []*models.PaymentCompletedEvent
	failed    []*models.PaymentFailedEvent
	lowStock  []*models.LowStockEvent
}

func (e *fakeEvents) PublishSaleCreated(ctx context.Context, event *models.SaleCreatedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, event)
	return nil
}

func (e *fakeEvents) PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = append(e.completed, event)
	return nil
}

func (e *fakeEvents) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, event)
	return nil
}

func (e *fakeEvents) PublishLowStock(ctx context.Context, event *models.LowStockEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lowStock = append(e.lowStock, event)
	return nil
}

func (e *fakeEvents) completedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.completed)
}

func (e *fakeEvents) failedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.failed)
}

func (e *fakeEvents) lastCompleted() *models.PaymentCompletedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completed[len(e.completed)-1]
}

func (e *fakeEvents) lastFailed() *models.PaymentFailedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failed[len(e.failed)-1]
}

// fakeCache is an in-memory Cache for the callback dedupe path
type fakeCache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{seen: make(map[string]bool)}
}

func (c *fakeCache) WasCallbackSeen(ctx context.Context, checkoutRequestID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[checkoutRequestID], nil
}

func (c *fakeCache) MarkCallbackSeen(ctx context.Context, checkoutRequestID string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	first := !c.seen[checkoutRequestID]
	c.seen[checkoutRequestID] = true
	return first, nil
}

func (c *fakeCache) CacheDashboard(ctx context.Context, businessID int64, payload []byte, ttl time.Duration) error {
	return nil
}

func (c *fakeCache) GetCachedDashboard(ctx context.Context, businessID int64) ([]byte, error) {
	return nil, nil
}

func (c *fakeCache) has(checkoutRequestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[checkoutRequestID]
}

// flakyStore injects transient reconciliation failures
type flakyStore struct {
	*fakeStore
	failMu           sync.Mutex
	completeFailures int
}

func (f *flakyStore) CompleteSaleByCheckoutID(ctx context.Context, checkoutRequestID, receiptNumber string) (*models.Payment, error) {
	f.failMu.Lock()
	if f.completeFailures > 0 {
		f.completeFailures--
		f.failMu.Unlock()
		return nil, errors.New("connection reset by peer")
	}
	f.failMu.Unlock()
	return f.fakeStore.CompleteSaleByCheckoutID(ctx, checkoutRequestID, receiptNumber)
}

func seedStore() *fakeStore {
	fs := newFakeStore()
	fs.customers[1] = &models.Customer{
		ID: 1, Name: "Wanjiku", Phone: "0712345678", BusinessID: 1,
		Status: models.StatusActive,
	}
	fs.products[1] = &models.Product{
		ID: 1, Name: "Sugar 1kg", Price: 100, Stock: 5,
		LowStockThreshold: 1, BusinessID: 1,
	}
	fs.products[2] = &models.Product{
		ID: 2, Name: "Bread", Price: 50, Stock: 3,
		LowStockThreshold: 1, BusinessID: 1,
	}
	return fs
}

func testScope() models.Scope {
	return models.Scope{UserID: 7, BusinessID: 1, Role: models.RoleAdmin}
}

// newTestService wires a sale service with a running dispatcher against the
// given gateway. Call the returned cancel func to stop the workers.
func newTestService(fs *fakeStore, gw Gateway, events *fakeEvents) (*SaleService, context.CancelFunc) {
	dispatcher := NewSTKDispatcher(fs, gw, events, 16)
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher.Start(ctx, 1)
	svc := NewSaleService(fs, events, dispatcher, gw, nil)
	return svc, func() {
		cancel()
		dispatcher.Stop()
	}
}

func TestCreateSaleCash(t *testing.T) {
	fs := seedStore()
	events := &fakeEvents{}
	svc, stop := newTestService(fs, &fakeGateway{}, events)
	defer stop()

	resp, err := svc.CreateSale(context.Background(), testScope(), &CreateSaleRequest{
		CustomerID: 1,
		Method:     models.PaymentMethodCash,
		Items: []SaleItemRequest{
			{ProductID: 1, Quantity: 2, UnitPrice: 100},
			{ProductID: 2, Quantity: 1, UnitPrice: 50},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusCompleted, resp.Payment.Status)
	assert.Equal(t, 250.0, resp.Payment.Amount)
	assert.Equal(t, int64(7), resp.Payment.UserID)
	assert.NotEmpty(t, resp.Payment.TransactionID)
	assert.Len(t, resp.Items, 2)

	assert.Equal(t, 3, fs.product(1).Stock)
	assert.Equal(t, 2, fs.product(2).Stock)

	customer := fs.customer(1)
	assert.Equal(t, 250.0, customer.TotalPurchases)
	assert.NotNil(t, customer.LastPurchase)

	assert.Equal(t, 1, events.completedCount())
}

func TestCreateSaleInsufficientStock(t *testing.T) {
	fs := seedStore()
	events := &fakeEvents{}
	svc, stop := newTestService(fs, &fakeGateway{}, events)
	defer stop()

	_, err := svc.CreateSale(context.Background(), testScope(), &CreateSaleRequest{
		CustomerID: 1,
		Method:     models.PaymentMethodCash,
		Items: []SaleItemRequest{
			{ProductID: 1, Quantity: 1, UnitPrice: 100},
			{ProductID: 2, Quantity: 10, UnitPrice: 50},
		},
	})

	var stockErr *models.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(2), stockErr.ProductID)
	assert.Equal(t, 10, stockErr.Requested)
	assert.Equal(t, 3, stockErr.Available)

	// All-or-nothing: the first line must not have decremented anything
	assert.Equal(t, 5, fs.product(1).Stock)
	assert.Equal(t, 3, fs.product(2).Stock)
	assert.Equal(t, 0.0, fs.customer(1).TotalPurchases)
	assert.Equal(t, 0, events.completedCount())
}

func TestCreateSaleUnknownProduct(t *testing.T) {
	fs := seedStore()
	svc, stop := newTestService(fs, &fakeGateway{}, &fakeEvents{})
	defer stop()

	_, err := svc.CreateSale(context.Background(), testScope(), &CreateSaleRequest{
		CustomerID: 1,
		Method:     models.PaymentMethodCash,
		Items:      []SaleItemRequest{{ProductID: 99, Quantity: 1, UnitPrice: 10}},
	})

	var notFound *models.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "product", notFound.Resource)
}

func TestCreateSaleUnknownCustomer(t *testing.T) {
	fs := seedStore()
	svc, stop := newTestService(fs, &fakeGateway{}, &fakeEvents{})
	defer stop()

	_, err := svc.CreateSale(context.Background(), testScope(), &CreateSaleRequest{
		CustomerID: 42,
		Method:     models.PaymentMethodCash,
		Items:      []SaleItemRequest{{ProductID: 1, Quantity: 1, UnitPrice: 100}},
	})

	var notFound *models.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "customer", notFound.Resource)
	assert.Equal(t, 5, fs.product(1).Stock)
}

func TestCreateSaleMpesaPending(t *testing.T) {
	fs := seedStore()
	gw := &fakeGateway{resp: &mpesa.STKPushResponse{CheckoutRequestID: "ws_CO_123"}}
	events := &fakeEvents{}
	svc, stop := newTestService(fs, gw, events)
	defer stop()

	resp, err := svc.CreateSale(context.Background(), testScope(), &CreateSaleRequest{
		CustomerID: 1,
		Method:     models.PaymentMethodMpesa,
		Items:      []SaleItemRequest{{ProductID: 1, Quantity: 2, UnitPrice: 100}},
	})
	require.NoError(t, err)

	// The sale comes back pending; stock is already committed, the ledger
	// waits for the callback.
	assert.Equal(t, models.PaymentStatusPending, resp.Payment.Status)
	assert.Equal(t, 3, fs.product(1).Stock)
	assert.Equal(t, 0.0, fs.customer(1).TotalPurchases)

	// The dispatcher stores the checkout reference asynchronously
	assert.Eventually(t, func() bool {
		return fs.payment(resp.Payment.ID).CheckoutRequestID == "ws_CO_123"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, events.completedCount())
}

func TestCreateSaleMpesaGatewayError(t *testing.T) {
	fs := seedStore()
	gw := &fakeGateway{err: &models.GatewayError{Op: "stk_push", Detail: "unexpected status 503"}}
	events := &fakeEvents{}
	svc, stop := newTestService(fs, gw, events)
	defer stop()

	resp, err := svc.CreateSale(context.Background(), testScope(), &CreateSaleRequest{
		CustomerID: 1,
		Method:     models.PaymentMethodMpesa,
		Items:      []SaleItemRequest{{ProductID: 1, Quantity: 2, UnitPrice: 100}},
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return fs.payment(resp.Payment.ID).Status == models.PaymentStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	// Stock stays decremented and the ledger untouched
	assert.Equal(t, 3, fs.product(1).Stock)
	assert.Equal(t, 0.0, fs.customer(1).TotalPurchases)
	assert.Eventually(t, func() bool { return events.failedCount() == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestCreateSaleDispatchQueueFull(t *testing.T) {
	fs := seedStore()
	events := &fakeEvents{}
	// Zero-capacity queue with no workers running: every enqueue fails
	dispatcher := NewSTKDispatcher(fs, &fakeGateway{}, events, 0)
	svc := NewSaleService(fs, events, dispatcher, nil, nil)

	resp, err := svc.CreateSale(context.Background(), testScope(), &CreateSaleRequest{
		CustomerID: 1,
		Method:     models.PaymentMethodMpesa,
		Items:      []SaleItemRequest{{ProductID: 1, Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusFailed, resp.Payment.Status)
	assert.Equal(t, models.PaymentStatusFailed, fs.payment(resp.Payment.ID).Status)
}

func TestCreateSaleValidation(t *testing.T) {
	fs := seedStore()
	svc, stop := newTestService(fs, &fakeGateway{}, &fakeEvents{})
	defer stop()

	cases := []struct {
		name string
		req  *CreateSaleRequest
	}{
		{"no items", &CreateSaleRequest{CustomerID: 1, Method: models.PaymentMethodCash}},
		{"bad method", &CreateSaleRequest{CustomerID: 1, Method: "card",
			Items: []SaleItemRequest{{ProductID: 1, Quantity: 1, UnitPrice: 100}}}},
		{"zero quantity", &CreateSaleRequest{CustomerID: 1, Method: models.PaymentMethodCash,
			Items: []SaleItemRequest{{ProductID: 1, Quantity: 0, UnitPrice: 100}}}},
		{"zero price", &CreateSaleRequest{CustomerID: 1, Method: models.PaymentMethodCash,
			Items: []SaleItemRequest{{ProductID: 1, Quantity: 1}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateSale(context.Background(), testScope(), tc.req)
			var validationErr *models.ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestLowStockAlerts(t *testing.T) {
	fs := newFakeStore()
	fs.customers[1] = &models.Customer{ID: 1, Name: "Otieno", Phone: "254700000000", BusinessID: 1}
	fs.products[1] = &models.Product{ID: 1, Name: "Milk 500ml", Price: 60, Stock: 5, LowStockThreshold: 2, BusinessID: 1}
	fs.products[2] = &models.Product{ID: 2, Name: "Eggs Tray", Price: 400, Stock: 1, LowStockThreshold: 2, BusinessID: 1}
	events := &fakeEvents{}
	svc, stop := newTestService(fs, &fakeGateway{}, events)
	defer stop()

	_, err := svc.CreateSale(context.Background(), testScope(), &CreateSaleRequest{
		CustomerID: 1,
		Method:     models.PaymentMethodCash,
		Items: []SaleItemRequest{
			{ProductID: 1, Quantity: 3, UnitPrice: 60},
			{ProductID: 2, Quantity: 1, UnitPrice: 400},
		},
	})
	require.NoError(t, err)

	alerts := fs.notificationsOfType(models.NotificationTypeLowStock)
	require.Len(t, alerts, 2)

	byMessage := make(map[string]models.Notification)
	for _, n := range alerts {
		byMessage[n.Message] = n
	}
	milk, ok := byMessage["Milk 500ml is running low (2 units remaining)"]
	require.True(t, ok)
	assert.Equal(t, models.PriorityMedium, milk.Priority)

	eggs, ok := byMessage["Eggs Tray is running low (0 units remaining)"]
	require.True(t, ok)
	assert.Equal(t, models.PriorityHigh, eggs.Priority)
}

func makeCallback(checkoutID string, resultCode int, receipt string) *models.STKCallback {
	cb := &models.STKCallback{}
	cb.Body.StkCallback.CheckoutRequestID = checkoutID
	cb.Body.StkCallback.ResultCode = resultCode
	cb.Body.StkCallback.ResultDesc = "test"
	if receipt != "" {
		cb.Body.StkCallback.CallbackMetadata.Item = []models.STKCallbackItem{
			{Name: "Amount", Value: 200.0},
			{Name: "MpesaReceiptNumber", Value: receipt},
		}
	}
	return cb
}

func seedPendingMpesaSale(fs *fakeStore, checkoutID string) *models.Payment {
	fs.nextID++
	p := &models.Payment{
		ID:                fs.nextID,
		CustomerID:        1,
		BusinessID:        1,
		UserID:            7,
		Amount:            200,
		Status:            models.PaymentStatusPending,
		Method:            models.PaymentMethodMpesa,
		TransactionID:     "txn-test",
		CheckoutRequestID: checkoutID,
	}
	fs.payments[p.ID] = p
	return p
}

func TestHandleCallbackSuccess(t *testing.T) {
	fs := seedStore()
	pending := seedPendingMpesaSale(fs, "ws_CO_777")
	events := &fakeEvents{}
	svc, stop := newTestService(fs, &fakeGateway{}, events)
	defer stop()

	err := svc.HandleCallback(context.Background(), makeCallback("ws_CO_777", 0, "SGH71XP2LK"))
	require.NoError(t, err)

	got := fs.payment(pending.ID)
	assert.Equal(t, models.PaymentStatusCompleted, got.Status)
	assert.Equal(t, "SGH71XP2LK", got.MpesaReceiptNumber)
	assert.Equal(t, 200.0, fs.customer(1).TotalPurchases)
	assert.Equal(t, 1, events.completedCount())
}

func TestHandleCallbackReplayIsNoOp(t *testing.T) {
	fs := seedStore()
	seedPendingMpesaSale(fs, "ws_CO_777")
	events := &fakeEvents{}
	svc, stop := newTestService(fs, &fakeGateway{}, events)
	defer stop()

	cb := makeCallback("ws_CO_777", 0, "SGH71XP2LK")
	require.NoError(t, svc.HandleCallback(context.Background(), cb))
	require.NoError(t, svc.HandleCallback(context.Background(), cb))

	// The ledger moved exactly once
	assert.Equal(t, 200.0, fs.customer(1).TotalPurchases)
	assert.Equal(t, 1, events.completedCount())
}

func TestHandleCallbackRetryAfterTransientError(t *testing.T) {
	fs := seedStore()
	pending := seedPendingMpesaSale(fs, "ws_CO_555")
	flaky := &flakyStore{fakeStore: fs, completeFailures: 1}
	cache := newFakeCache()
	events := &fakeEvents{}
	svc := NewSaleService(flaky, events, nil, nil, cache)

	// First delivery hits a transient store failure. The dedupe key must
	// stay unset so the provider's retry is not dropped.
	cb := makeCallback("ws_CO_555", 0, "SGH71XP2LK")
	require.Error(t, svc.HandleCallback(context.Background(), cb))
	assert.False(t, cache.has("ws_CO_555"))
	assert.Equal(t, models.PaymentStatusPending, fs.payment(pending.ID).Status)

	// The retry reconciles and marks the key
	require.NoError(t, svc.HandleCallback(context.Background(), cb))
	assert.Equal(t, models.PaymentStatusCompleted, fs.payment(pending.ID).Status)
	assert.Equal(t, 200.0, fs.customer(1).TotalPurchases)
	assert.Equal(t, 1, events.completedCount())
	assert.True(t, cache.has("ws_CO_555"))

	// Further deliveries are dropped on the cache fast path
	require.NoError(t, svc.HandleCallback(context.Background(), cb))
	assert.Equal(t, 1, events.completedCount())
	assert.Equal(t, 200.0, fs.customer(1).TotalPurchases)
}

func TestHandleCallbackUnmatchedLeavesRetryOpen(t *testing.T) {
	fs := seedStore()
	cache := newFakeCache()
	events := &fakeEvents{}
	svc := NewSaleService(fs, events, nil, nil, cache)

	// A callback racing ahead of the stored checkout reference matches
	// nothing and must not poison the dedupe key
	require.NoError(t, svc.HandleCallback(context.Background(), makeCallback("ws_CO_244", 0, "RCP1")))
	assert.False(t, cache.has("ws_CO_244"))

	pending := seedPendingMpesaSale(fs, "ws_CO_244")
	require.NoError(t, svc.HandleCallback(context.Background(), makeCallback("ws_CO_244", 0, "RCP1")))
	assert.Equal(t, models.PaymentStatusCompleted, fs.payment(pending.ID).Status)
	assert.Equal(t, 1, events.completedCount())
}

func TestCallbackEventsCarryRecordingUser(t *testing.T) {
	fs := seedStore()
	completed := seedPendingMpesaSale(fs, "ws_CO_321")
	events := &fakeEvents{}
	svc := NewSaleService(fs, events, nil, nil, nil)

	require.NoError(t, svc.HandleCallback(context.Background(), makeCallback("ws_CO_321", 0, "SGH71XP2LK")))
	require.Equal(t, 1, events.completedCount())
	assert.Equal(t, completed.UserID, events.lastCompleted().UserID)

	failed := seedPendingMpesaSale(fs, "ws_CO_322")
	cb := makeCallback("ws_CO_322", 1032, "")
	cb.Body.StkCallback.ResultDesc = "Request cancelled by user"
	require.NoError(t, svc.HandleCallback(context.Background(), cb))
	require.Equal(t, 1, events.failedCount())
	assert.Equal(t, failed.UserID, events.lastFailed().UserID)
}

func TestHandleCallbackFailure(t *testing.T) {
	fs := seedStore()
	pending := seedPendingMpesaSale(fs, "ws_CO_888")
	events := &fakeEvents{}
	svc, stop := newTestService(fs, &fakeGateway{}, events)
	defer stop()

	cb := makeCallback("ws_CO_888", 1032, "")
	cb.Body.StkCallback.ResultDesc = "Request cancelled by user"
	require.NoError(t, svc.HandleCallback(context.Background(), cb))

	assert.Equal(t, models.PaymentStatusFailed, fs.payment(pending.ID).Status)
	assert.Equal(t, 0.0, fs.customer(1).TotalPurchases)
	assert.Equal(t, 1, events.failedCount())
}

func TestHandleCallbackUnmatched(t *testing.T) {
	fs := seedStore()
	events := &fakeEvents{}
	svc, stop := newTestService(fs, &fakeGateway{}, events)
	defer stop()

	require.NoError(t, svc.HandleCallback(context.Background(), makeCallback("ws_CO_unknown", 0, "XXX")))
	assert.Equal(t, 0, events.completedCount())

	// A failure callback that resolves nothing is also acknowledged quietly
	require.NoError(t, svc.HandleCallback(context.Background(), makeCallback("", 1, "")))
}

func TestQueryStatus(t *testing.T) {
	fs := seedStore()
	pending := seedPendingMpesaSale(fs, "ws_CO_999")
	svc, stop := newTestService(fs, &fakeGateway{}, &fakeEvents{})
	defer stop()

	status, err := svc.QueryStatus(context.Background(), testScope(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, status.Payment.Status)
	assert.Equal(t, "0", status.ProviderResult)

	// Cash sales carry no provider state to query
	resp, err := svc.CreateSale(context.Background(), testScope(), &CreateSaleRequest{
		CustomerID: 1,
		Method:     models.PaymentMethodCash,
		Items:      []SaleItemRequest{{ProductID: 1, Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)
	_, err = svc.QueryStatus(context.Background(), testScope(), resp.Payment.ID)
	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	fs := newFakeStore()
	fs.customers[1] = &models.Customer{ID: 1, Name: "Akinyi", Phone: "254711000000", BusinessID: 1}
	fs.products[1] = &models.Product{ID: 1, Name: "Unga 2kg", Price: 180, Stock: 10, LowStockThreshold: 0, BusinessID: 1}
	svc, stop := newTestService(fs, &fakeGateway{}, &fakeEvents{})
	defer stop()

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateSale(context.Background(), testScope(), &CreateSaleRequest{
				CustomerID: 1,
				Method:     models.PaymentMethodCash,
				Items:      []SaleItemRequest{{ProductID: 1, Quantity: 1, UnitPrice: 180}},
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var stockErr *models.InsufficientStockError
		require.True(t, errors.As(err, &stockErr), "unexpected error: %v", err)
		rejected++
	}

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, rejected)
	assert.Equal(t, 0, fs.product(1).Stock)
	assert.Equal(t, 10*180.0, fs.customer(1).TotalPurchases)
}

func TestSaleAmount(t *testing.T) {
	items := []SaleItemRequest{
		{ProductID: 1, Quantity: 2, UnitPrice: 100},
		{ProductID: 2, Quantity: 3, UnitPrice: 50.5},
	}
	assert.Equal(t, 351.5, saleAmount(items))
}
