package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_created_total",
		Help: "Total number of sales created",
	}, []string{"method"})

	SalesCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_completed_total",
		Help: "Total number of sales that reached completed",
	}, []string{"method"})

	SalesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_failed_total",
		Help: "Total number of failed sales",
	}, []string{"reason"})

	SaleCreateLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sale_create_latency_seconds",
		Help:    "Latency of sale creation including inventory reservation",
		Buckets: prometheus.DefBuckets,
	})

	STKPushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stk_push_total",
		Help: "Total number of STK push initiations by outcome",
	}, []string{"outcome"})

	STKPushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stk_push_latency_seconds",
		Help:    "Latency of STK push initiation round trips",
		Buckets: prometheus.DefBuckets,
	})

	CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpesa_callbacks_total",
		Help: "Total number of provider callbacks received by outcome",
	}, []string{"outcome"})

	LowStockAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "low_stock_alerts_total",
		Help: "Total number of low-stock notifications emitted",
	})

	NotificationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Total number of notification emissions that were dropped",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
