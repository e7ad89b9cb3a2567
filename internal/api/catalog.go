package api

import (
	"net/http"

	"biashara-service/internal/auth"
	"biashara-service/internal/models"

	"github.com/gin-gonic/gin"
)

type businessRequest struct {
	Name         string `json:"name" binding:"required"`
	BusinessType string `json:"business_type"`
	Description  string `json:"description"`
	Address      string `json:"address"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Currency     string `json:"currency" binding:"required"`
	TaxPIN       string `json:"tax_pin"`
}

type productRequest struct {
	Name              string  `json:"name" binding:"required"`
	Category          string  `json:"category"`
	Price             float64 `json:"price" binding:"required,gt=0"`
	Stock             int     `json:"stock" binding:"min=0"`
	LowStockThreshold int     `json:"low_stock_threshold" binding:"min=0"`
}

type customerRequest struct {
	Name   string `json:"name" binding:"required"`
	Phone  string `json:"phone" binding:"required"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// getBusiness returns the caller's business profile
func (h *Handler) getBusiness(c *gin.Context) {
	business, err := h.store.GetBusiness(c.Request.Context(), auth.ScopeFrom(c).BusinessID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, business)
}

// updateBusiness updates the caller's business profile
func (h *Handler) updateBusiness(c *gin.Context) {
	var req businessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	business := &models.Business{
		ID:           auth.ScopeFrom(c).BusinessID,
		Name:         req.Name,
		BusinessType: req.BusinessType,
		Description:  req.Description,
		Address:      req.Address,
		Phone:        req.Phone,
		Email:        req.Email,
		Currency:     req.Currency,
		TaxPIN:       req.TaxPIN,
	}
	if err := h.store.UpdateBusiness(c.Request.Context(), business); err != nil {
		respondError(c, err)
		return
	}

	updated, err := h.store.GetBusiness(c.Request.Context(), business.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// listProducts handles product listing with optional category and search
// filters
func (h *Handler) listProducts(c *gin.Context) {
	limit, offset := paginationParams(c)
	products, err := h.store.ListProducts(c.Request.Context(), auth.ScopeFrom(c).BusinessID,
		c.Query("category"), c.Query("search"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// createProduct handles product creation
func (h *Handler) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	product := &models.Product{
		Name:              req.Name,
		Category:          req.Category,
		Price:             req.Price,
		Stock:             req.Stock,
		LowStockThreshold: req.LowStockThreshold,
		BusinessID:        auth.ScopeFrom(c).BusinessID,
	}
	if err := h.store.CreateProduct(c.Request.Context(), product); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// getProduct handles get product by ID
func (h *Handler) getProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	product, err := h.store.GetProduct(c.Request.Context(), auth.ScopeFrom(c).BusinessID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// updateProduct handles product updates
func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	product := &models.Product{
		ID:                id,
		Name:              req.Name,
		Category:          req.Category,
		Price:             req.Price,
		Stock:             req.Stock,
		LowStockThreshold: req.LowStockThreshold,
		BusinessID:        auth.ScopeFrom(c).BusinessID,
	}
	if err := h.store.UpdateProduct(c.Request.Context(), product); err != nil {
		respondError(c, err)
		return
	}

	updated, err := h.store.GetProduct(c.Request.Context(), product.BusinessID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// deleteProduct handles product deletion
func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.store.DeleteProduct(c.Request.Context(), auth.ScopeFrom(c).BusinessID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// listCustomers handles customer listing with an optional search filter
func (h *Handler) listCustomers(c *gin.Context) {
	limit, offset := paginationParams(c)
	customers, err := h.store.ListCustomers(c.Request.Context(), auth.ScopeFrom(c).BusinessID,
		c.Query("search"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

// createCustomer handles customer creation
func (h *Handler) createCustomer(c *gin.Context) {
	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	scope := auth.ScopeFrom(c)
	if req.Email != "" {
		existing, err := h.store.GetCustomerByEmail(c.Request.Context(), scope.BusinessID, req.Email)
		if err != nil {
			respondError(c, err)
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "customer exists",
				"details": "a customer with this email already exists",
			})
			return
		}
	}

	status := req.Status
	if status == "" {
		status = models.StatusActive
	}
	customer := &models.Customer{
		Name:       req.Name,
		Phone:      req.Phone,
		Email:      req.Email,
		Status:     status,
		BusinessID: scope.BusinessID,
	}
	if err := h.store.CreateCustomer(c.Request.Context(), customer); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

// getCustomer handles get customer by ID
func (h *Handler) getCustomer(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	customer, err := h.store.GetCustomer(c.Request.Context(), auth.ScopeFrom(c).BusinessID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

// updateCustomer handles customer updates
func (h *Handler) updateCustomer(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	status := req.Status
	if status == "" {
		status = models.StatusActive
	}
	customer := &models.Customer{
		ID:         id,
		Name:       req.Name,
		Phone:      req.Phone,
		Email:      req.Email,
		Status:     status,
		BusinessID: auth.ScopeFrom(c).BusinessID,
	}
	if err := h.store.UpdateCustomer(c.Request.Context(), customer); err != nil {
		respondError(c, err)
		return
	}

	updated, err := h.store.GetCustomer(c.Request.Context(), customer.BusinessID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// deleteCustomer handles customer deletion
func (h *Handler) deleteCustomer(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.store.DeleteCustomer(c.Request.Context(), auth.ScopeFrom(c).BusinessID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// customerHistory returns a customer's payments, newest first
func (h *Handler) customerHistory(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	scope := auth.ScopeFrom(c)
	// 404 before an empty history for a customer that does not exist
	if _, err := h.store.GetCustomer(c.Request.Context(), scope.BusinessID, id); err != nil {
		respondError(c, err)
		return
	}

	payments, err := h.store.ListPaymentsByCustomer(c.Request.Context(), scope.BusinessID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}
