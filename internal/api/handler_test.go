package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"biashara-service/internal/auth"
	"biashara-service/internal/models"
	"biashara-service/internal/service"
	"biashara-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// callbackStore is the minimal SaleStore needed to drive the callback
// endpoint: one pending mpesa payment keyed by checkout reference.
type callbackStore struct {
	pending *models.Payment
}

func (s *callbackStore) GetCustomer(ctx context.Context, businessID, customerID int64) (*models.Customer, error) {
	return nil, &models.NotFoundError{Resource: "customer", ID: customerID}
}

func (s *callbackStore) CreateSale(ctx context.Context, scope models.Scope, payment *models.Payment, items []models.PaymentItem) ([]models.Product, error) {
	return nil, errors.New("not implemented")
}

func (s *callbackStore) SetCheckoutRequestID(ctx context.Context, paymentID int64, checkoutRequestID string) error {
	return nil
}

func (s *callbackStore) FailSale(ctx context.Context, paymentID int64) error {
	return nil
}

func (s *callbackStore) CompleteSaleByCheckoutID(ctx context.Context, checkoutRequestID, receiptNumber string) (*models.Payment, error) {
	if s.pending != nil && s.pending.CheckoutRequestID == checkoutRequestID &&
		s.pending.Status == models.PaymentStatusPending {
		s.pending.Status = models.PaymentStatusCompleted
		s.pending.MpesaReceiptNumber = receiptNumber
		return s.pending, nil
	}
	return nil, nil
}

func (s *callbackStore) FailSaleByCheckoutID(ctx context.Context, checkoutRequestID string) (*models.Payment, error) {
	if s.pending != nil && s.pending.CheckoutRequestID == checkoutRequestID &&
		s.pending.Status == models.PaymentStatusPending {
		s.pending.Status = models.PaymentStatusFailed
		return s.pending, nil
	}
	return nil, nil
}

func (s *callbackStore) GetPayment(ctx context.Context, businessID, paymentID int64) (*models.Payment, error) {
	return nil, &models.NotFoundError{Resource: "payment", ID: paymentID}
}

func (s *callbackStore) GetPaymentItems(ctx context.Context, paymentID int64) ([]models.PaymentItem, error) {
	return nil, nil
}

func (s *callbackStore) ListPayments(ctx context.Context, businessID int64, status, method string, limit, offset int) ([]models.Payment, error) {
	return nil, nil
}

func (s *callbackStore) GetDashboardStats(ctx context.Context, businessID int64) (*store.DashboardStats, error) {
	return &store.DashboardStats{}, nil
}

func (s *callbackStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	return nil
}

func newCallbackRouter(t *testing.T, cs *callbackStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	saleService := service.NewSaleService(cs, nil, nil, nil, nil)
	authManager := auth.NewManager("test-secret", time.Hour)
	handler := NewHandler(nil, saleService, nil, authManager)

	router := gin.New()
	handler.SetupRoutes(router)
	return router
}

func postCallback(router *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/mpesa/callback",
		bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestMpesaCallbackAcknowledgesSuccess(t *testing.T) {
	cs := &callbackStore{pending: &models.Payment{
		ID: 9, CustomerID: 1, BusinessID: 1, Amount: 200,
		Status: models.PaymentStatusPending, Method: models.PaymentMethodMpesa,
		CheckoutRequestID: "ws_CO_42",
	}}
	router := newCallbackRouter(t, cs)

	w := postCallback(router, `{
		"Body": {"stkCallback": {
			"CheckoutRequestID": "ws_CO_42",
			"ResultCode": 0,
			"ResultDesc": "Success",
			"CallbackMetadata": {"Item": [
				{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"}
			]}
		}}
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success"}`, w.Body.String())
	assert.Equal(t, models.PaymentStatusCompleted, cs.pending.Status)
	assert.Equal(t, "NLJ7RT61SV", cs.pending.MpesaReceiptNumber)
}

func TestMpesaCallbackAcknowledgesFailure(t *testing.T) {
	cs := &callbackStore{pending: &models.Payment{
		ID: 9, CustomerID: 1, BusinessID: 1, Amount: 200,
		Status: models.PaymentStatusPending, Method: models.PaymentMethodMpesa,
		CheckoutRequestID: "ws_CO_42",
	}}
	router := newCallbackRouter(t, cs)

	w := postCallback(router, `{
		"Body": {"stkCallback": {
			"CheckoutRequestID": "ws_CO_42",
			"ResultCode": 1032,
			"ResultDesc": "Request cancelled by user"
		}}
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"failed"}`, w.Body.String())
	assert.Equal(t, models.PaymentStatusFailed, cs.pending.Status)
}

func TestMpesaCallbackUnmatchedStillAcknowledged(t *testing.T) {
	router := newCallbackRouter(t, &callbackStore{})

	w := postCallback(router, `{
		"Body": {"stkCallback": {
			"CheckoutRequestID": "ws_CO_unknown",
			"ResultCode": 0,
			"ResultDesc": "Success"
		}}
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success"}`, w.Body.String())
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := newCallbackRouter(t, &callbackStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRespondErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", &models.NotFoundError{Resource: "product", ID: 1}, http.StatusNotFound},
		{"insufficient stock", &models.InsufficientStockError{ProductID: 1, Requested: 5, Available: 2}, http.StatusBadRequest},
		{"validation", &models.ValidationError{Detail: "bad input"}, http.StatusBadRequest},
		{"gateway", &models.GatewayError{Op: "stk_push", Detail: "timeout"}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, tc.err)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}
