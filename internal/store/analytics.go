package store

import (
	"context"
	"time"

	"biashara-service/internal/models"
)

// SalesAnalytics aggregates completed-sale figures over a trailing window
type SalesAnalytics struct {
	PeriodDays        int             `json:"period_days"`
	TotalRevenue      float64         `json:"total_revenue"`
	TotalOrders       int             `json:"total_orders"`
	AverageOrderValue float64         `json:"average_order_value"`
	ActiveCustomers   int             `json:"active_customers"`
	GrowthRate        float64         `json:"growth_rate"`
	DailySales        []DailySales    `json:"daily_sales"`
	TopProducts       []ProductSales  `json:"top_products"`
	SalesByCategory   []CategorySales `json:"sales_by_category"`
}

// DailySales is one day's completed-sale totals
type DailySales struct {
	Date   time.Time `db:"date" json:"date"`
	Sales  float64   `db:"sales" json:"sales"`
	Orders int       `db:"orders" json:"orders"`
}

// ProductSales ranks a product by revenue over the period
type ProductSales struct {
	Name         string  `db:"name" json:"name"`
	Category     string  `db:"category" json:"category"`
	QuantitySold int     `db:"quantity_sold" json:"quantity_sold"`
	Revenue      float64 `db:"revenue" json:"revenue"`
}

// CategorySales groups line-item revenue by product category
type CategorySales struct {
	Category string  `db:"category" json:"category"`
	Revenue  float64 `db:"revenue" json:"revenue"`
	Quantity int     `db:"quantity" json:"quantity"`
}

// GetSalesAnalytics aggregates completed sales over the trailing window of
// `days` days: totals, growth against the preceding window of the same
// length, a per-day series, the top ten products by revenue, and a category
// breakdown. Only completed payments count.
func (s *Store) GetSalesAnalytics(ctx context.Context, businessID int64, days int) (*SalesAnalytics, error) {
	analytics := &SalesAnalytics{PeriodDays: days}
	start := time.Now().UTC().AddDate(0, 0, -days)
	previousStart := start.AddDate(0, 0, -days)

	var totals struct {
		Revenue         float64 `db:"revenue"`
		Orders          int     `db:"orders"`
		ActiveCustomers int     `db:"active_customers"`
	}
	err := s.db.GetContext(ctx, &totals, `
		SELECT
			COALESCE(SUM(amount), 0)             AS revenue,
			COUNT(*)                             AS orders,
			COUNT(DISTINCT customer_id)          AS active_customers
		FROM payments
		WHERE business_id = $1 AND status = $2 AND created_at >= $3`,
		businessID, models.PaymentStatusCompleted, start)
	if err != nil {
		return nil, err
	}
	analytics.TotalRevenue = totals.Revenue
	analytics.TotalOrders = totals.Orders
	analytics.ActiveCustomers = totals.ActiveCustomers
	if totals.Orders > 0 {
		analytics.AverageOrderValue = totals.Revenue / float64(totals.Orders)
	}

	var previousRevenue float64
	err = s.db.GetContext(ctx, &previousRevenue, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE business_id = $1 AND status = $2 AND created_at >= $3 AND created_at < $4`,
		businessID, models.PaymentStatusCompleted, previousStart, start)
	if err != nil {
		return nil, err
	}
	analytics.GrowthRate = growthRate(totals.Revenue, previousRevenue)

	err = s.db.SelectContext(ctx, &analytics.DailySales, `
		SELECT
			created_at::date     AS date,
			SUM(amount)          AS sales,
			COUNT(*)             AS orders
		FROM payments
		WHERE business_id = $1 AND status = $2 AND created_at >= $3
		GROUP BY created_at::date
		ORDER BY date`,
		businessID, models.PaymentStatusCompleted, start)
	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &analytics.TopProducts, `
		SELECT
			pr.name                  AS name,
			pr.category              AS category,
			SUM(pi.quantity)         AS quantity_sold,
			SUM(pi.total_price)      AS revenue
		FROM payment_items pi
		JOIN payments p ON p.id = pi.payment_id
		JOIN products pr ON pr.id = pi.product_id
		WHERE p.business_id = $1 AND p.status = $2 AND p.created_at >= $3
		GROUP BY pr.id, pr.name, pr.category
		ORDER BY revenue DESC
		LIMIT 10`,
		businessID, models.PaymentStatusCompleted, start)
	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &analytics.SalesByCategory, `
		SELECT
			pr.category              AS category,
			SUM(pi.total_price)      AS revenue,
			SUM(pi.quantity)         AS quantity
		FROM payment_items pi
		JOIN payments p ON p.id = pi.payment_id
		JOIN products pr ON pr.id = pi.product_id
		WHERE p.business_id = $1 AND p.status = $2 AND p.created_at >= $3
		GROUP BY pr.category
		ORDER BY revenue DESC`,
		businessID, models.PaymentStatusCompleted, start)
	if err != nil {
		return nil, err
	}

	return analytics, nil
}

// growthRate is the percent change of current revenue over the previous
// period. Zero previous revenue yields zero, not infinity.
func growthRate(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// RevenueAnalytics breaks completed revenue down by month and by payment
// method, all time
type RevenueAnalytics struct {
	TotalRevenue   float64          `json:"total_revenue"`
	MonthlyRevenue []MonthlyRevenue `json:"monthly_revenue"`
	PaymentMethods []MethodRevenue  `json:"payment_methods"`
}

// MonthlyRevenue is one calendar month's completed revenue
type MonthlyRevenue struct {
	Month   time.Time `db:"month" json:"month"`
	Revenue float64   `db:"revenue" json:"revenue"`
}

// MethodRevenue is completed revenue attributed to one payment method
type MethodRevenue struct {
	Method string  `db:"method" json:"method"`
	Count  int     `db:"count" json:"count"`
	Total  float64 `db:"total" json:"total"`
}

// GetRevenueAnalytics aggregates completed revenue for a business: grand
// total, month-by-month series, and the cash/mpesa split
func (s *Store) GetRevenueAnalytics(ctx context.Context, businessID int64) (*RevenueAnalytics, error) {
	analytics := &RevenueAnalytics{}

	err := s.db.GetContext(ctx, &analytics.TotalRevenue, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE business_id = $1 AND status = $2`,
		businessID, models.PaymentStatusCompleted)
	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &analytics.MonthlyRevenue, `
		SELECT
			date_trunc('month', created_at) AS month,
			SUM(amount)                     AS revenue
		FROM payments
		WHERE business_id = $1 AND status = $2
		GROUP BY month
		ORDER BY month`,
		businessID, models.PaymentStatusCompleted)
	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &analytics.PaymentMethods, `
		SELECT
			method      AS method,
			COUNT(*)    AS count,
			SUM(amount) AS total
		FROM payments
		WHERE business_id = $1 AND status = $2
		GROUP BY method
		ORDER BY total DESC`,
		businessID, models.PaymentStatusCompleted)
	if err != nil {
		return nil, err
	}

	return analytics, nil
}

// SalesReport is an export of completed payments over a date range with
// summary figures
type SalesReport struct {
	TotalRecords int              `json:"total_records"`
	Summary      ReportSummary    `json:"summary"`
	Data         []models.Payment `json:"data"`
}

// ReportSummary holds the report's aggregate figures
type ReportSummary struct {
	TotalRevenue       float64 `json:"total_revenue"`
	TotalTransactions  int     `json:"total_transactions"`
	AverageTransaction float64 `json:"average_transaction"`
}

// GetSalesReport collects completed payments for export, newest first,
// optionally bounded by start and end timestamps
func (s *Store) GetSalesReport(ctx context.Context, businessID int64, startDate, endDate *time.Time) (*SalesReport, error) {
	query := "SELECT * FROM payments WHERE business_id = $1 AND status = $2"
	args := []interface{}{businessID, models.PaymentStatusCompleted}

	if startDate != nil {
		args = append(args, *startDate)
		query += " AND created_at >= $3"
	}
	if endDate != nil {
		args = append(args, *endDate)
		if startDate != nil {
			query += " AND created_at <= $4"
		} else {
			query += " AND created_at <= $3"
		}
	}
	query += " ORDER BY created_at DESC"

	var payments []models.Payment
	if err := s.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, err
	}

	return &SalesReport{
		TotalRecords: len(payments),
		Summary:      reportSummary(payments),
		Data:         payments,
	}, nil
}

func reportSummary(payments []models.Payment) ReportSummary {
	summary := ReportSummary{TotalTransactions: len(payments)}
	for _, p := range payments {
		summary.TotalRevenue += p.Amount
	}
	if len(payments) > 0 {
		summary.AverageTransaction = summary.TotalRevenue / float64(len(payments))
	}
	return summary
}
