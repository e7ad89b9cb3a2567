package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"biashara-service/internal/auth"
	"biashara-service/internal/models"
	"biashara-service/internal/service"
	"biashara-service/internal/store"
	"biashara-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	store       *store.Store
	saleService *service.SaleService
	teamService *service.TeamService
	authManager *auth.Manager
}

// NewHandler creates a new HTTP handler
func NewHandler(store *store.Store, saleService *service.SaleService, teamService *service.TeamService, authManager *auth.Manager) *Handler {
	return &Handler{
		store:       store,
		saleService: saleService,
		teamService: teamService,
		authManager: authManager,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/register", h.register)
		v1.POST("/auth/login", h.login)
		v1.POST("/auth/accept-invitation", h.acceptInvitation)

		// The provider posts here; it carries no bearer token.
		v1.POST("/payments/mpesa/callback", h.mpesaCallback)

		authed := v1.Group("")
		authed.Use(h.authManager.Middleware())
		{
			authed.GET("/business", h.getBusiness)
			authed.PUT("/business", auth.RequireRole(models.RoleAdmin), h.updateBusiness)

			authed.GET("/products", h.listProducts)
			authed.POST("/products", h.createProduct)
			authed.GET("/products/:id", h.getProduct)
			authed.PUT("/products/:id", h.updateProduct)
			authed.DELETE("/products/:id", auth.RequireRole(models.RoleAdmin, models.RoleManager), h.deleteProduct)

			authed.GET("/customers", h.listCustomers)
			authed.POST("/customers", h.createCustomer)
			authed.GET("/customers/:id", h.getCustomer)
			authed.PUT("/customers/:id", h.updateCustomer)
			authed.DELETE("/customers/:id", auth.RequireRole(models.RoleAdmin, models.RoleManager), h.deleteCustomer)
			authed.GET("/customers/:id/history", h.customerHistory)

			authed.POST("/payments", h.createSale)
			authed.GET("/payments", h.listSales)
			authed.GET("/payments/:id", h.getSale)
			authed.GET("/payments/:id/status", h.saleStatus)
			authed.GET("/dashboard", h.dashboard)

			authed.GET("/sales/analytics", h.salesAnalytics)
			authed.GET("/sales/reports/export", h.exportSalesReport)
			authed.GET("/payments/analytics/revenue", h.revenueAnalytics)

			authed.GET("/team/members", h.listTeamMembers)
			authed.POST("/team/invite", auth.RequireRole(models.RoleAdmin), h.inviteTeamMember)
			authed.GET("/team/invitations", h.listInvitations)
			authed.PUT("/team/members/:id", auth.RequireRole(models.RoleAdmin), h.updateTeamMember)
			authed.DELETE("/team/members/:id", auth.RequireRole(models.RoleAdmin), h.removeTeamMember)

			authed.GET("/notifications", h.listNotifications)
			authed.GET("/notifications/unread-count", h.unreadCount)
			authed.PUT("/notifications/:id/read", h.markNotificationRead)
			authed.PUT("/notifications/read-all", h.markAllNotificationsRead)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// respondError maps domain errors to HTTP statuses
func respondError(c *gin.Context, err error) {
	var notFound *models.NotFoundError
	if errors.As(err, &notFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not found",
			"details": notFound.Error(),
		})
		return
	}

	var insufficientStock *models.InsufficientStockError
	if errors.As(err, &insufficientStock) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "insufficient stock",
			"details": insufficientStock.Error(),
		})
		return
	}

	var validation *models.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"details": validation.Error(),
		})
		return
	}

	var gateway *models.GatewayError
	if errors.As(err, &gateway) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "payment gateway error",
			"details": gateway.Error(),
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal error",
		"details": err.Error(),
	})
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ID"})
		return 0, false
	}
	return id, true
}

func paginationParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
