package api

import (
	"net/http"

	"biashara-service/internal/auth"
	"biashara-service/internal/models"
	"biashara-service/internal/service"

	"github.com/gin-gonic/gin"
)

// createSale records a sale. Cash sales come back completed; mobile-money
// sales come back pending and resolve through the provider callback.
func (h *Handler) createSale(c *gin.Context) {
	var req service.CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.saleService.CreateSale(c.Request.Context(), auth.ScopeFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// listSales handles sale listing with optional status and method filters
func (h *Handler) listSales(c *gin.Context) {
	limit, offset := paginationParams(c)
	sales, err := h.saleService.ListSales(c.Request.Context(), auth.ScopeFrom(c),
		c.Query("status"), c.Query("method"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": sales})
}

// getSale handles get sale by ID
func (h *Handler) getSale(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	resp, err := h.saleService.GetSale(c.Request.Context(), auth.ScopeFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// saleStatus polls the provider for a pending mobile-money sale's outcome
func (h *Handler) saleStatus(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	status, err := h.saleService.QueryStatus(c.Request.Context(), auth.ScopeFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// dashboard returns aggregated sales figures and recent transactions
func (h *Handler) dashboard(c *gin.Context) {
	data, err := h.saleService.Dashboard(c.Request.Context(), auth.ScopeFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, data)
}

// mpesaCallback receives the provider's asynchronous payment result. The
// provider expects an acknowledgement regardless of whether the callback
// matched a sale, so every parseable callback gets a 200.
func (h *Handler) mpesaCallback(c *gin.Context) {
	var cb models.STKCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid callback body",
			"details": err.Error(),
		})
		return
	}

	if err := h.saleService.HandleCallback(c.Request.Context(), &cb); err != nil {
		respondError(c, err)
		return
	}

	if cb.Body.StkCallback.ResultCode == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "success"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "failed"})
}
