package api

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"biashara-service/internal/auth"
	"biashara-service/internal/store"

	"github.com/gin-gonic/gin"
)

// salesAnalytics aggregates completed sales over a trailing window
// (?days=30 by default)
func (h *Handler) salesAnalytics(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days <= 0 || days > 365 {
		days = 30
	}

	scope := auth.ScopeFrom(c)
	analytics, err := h.store.GetSalesAnalytics(c.Request.Context(), scope.BusinessID, days)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, analytics)
}

// revenueAnalytics breaks all-time completed revenue down by month and by
// payment method
func (h *Handler) revenueAnalytics(c *gin.Context) {
	scope := auth.ScopeFrom(c)
	analytics, err := h.store.GetRevenueAnalytics(c.Request.Context(), scope.BusinessID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, analytics)
}

// exportSalesReport exports completed payments over an optional date range.
// format=csv streams a CSV attachment; anything else returns JSON.
func (h *Handler) exportSalesReport(c *gin.Context) {
	startDate, ok := dateQuery(c, "start_date")
	if !ok {
		return
	}
	endDate, ok := dateQuery(c, "end_date")
	if !ok {
		return
	}

	scope := auth.ScopeFrom(c)
	report, err := h.store.GetSalesReport(c.Request.Context(), scope.BusinessID, startDate, endDate)
	if err != nil {
		respondError(c, err)
		return
	}

	if c.DefaultQuery("format", "json") == "csv" {
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="sales_report.csv"`)
		if err := writeReportCSV(c.Writer, report); err != nil {
			respondError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, report)
}

// writeReportCSV renders a sales report as CSV, one payment per row with a
// header line
func writeReportCSV(w io.Writer, report *store.SalesReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "date", "customer_id", "method", "amount", "transaction_id", "mpesa_receipt"}); err != nil {
		return err
	}
	for _, p := range report.Data {
		record := []string{
			strconv.FormatInt(p.ID, 10),
			p.CreatedAt.Format(time.RFC3339),
			strconv.FormatInt(p.CustomerID, 10),
			p.Method,
			fmt.Sprintf("%.2f", p.Amount),
			p.TransactionID,
			p.MpesaReceiptNumber,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// dateQuery parses an optional RFC 3339 or yyyy-mm-dd query parameter
func dateQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, true
		}
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
	return nil, false
}
