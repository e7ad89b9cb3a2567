package api

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"biashara-service/internal/models"
	"biashara-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReportCSV(t *testing.T) {
	created := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	report := &store.SalesReport{
		Data: []models.Payment{
			{ID: 1, CustomerID: 2, Method: models.PaymentMethodCash, Amount: 250,
				TransactionID: "txn-1", CreatedAt: created},
			{ID: 2, CustomerID: 3, Method: models.PaymentMethodMpesa, Amount: 99.5,
				TransactionID: "txn-2", MpesaReceiptNumber: "SGH71XP2LK", CreatedAt: created},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeReportCSV(&buf, report))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,date,customer_id,method,amount,transaction_id,mpesa_receipt", lines[0])
	assert.Equal(t, "1,2026-03-15T10:30:00Z,2,cash,250.00,txn-1,", lines[1])
	assert.Equal(t, "2,2026-03-15T10:30:00Z,3,mpesa,99.50,txn-2,SGH71XP2LK", lines[2])
}

func TestDateQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/export?start_date=2026-01-02", nil)

	ts, ok := dateQuery(c, "start_date")
	require.True(t, ok)
	require.NotNil(t, ts)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), *ts)

	// Absent parameters are not an error
	ts, ok = dateQuery(c, "end_date")
	require.True(t, ok)
	assert.Nil(t, ts)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/export?start_date=not-a-date", nil)
	_, ok = dateQuery(c, "start_date")
	assert.False(t, ok)
	assert.Equal(t, 400, w.Code)
}
