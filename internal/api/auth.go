package api

import (
	"net/http"

	"biashara-service/internal/auth"
	"biashara-service/internal/models"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	BusinessName string `json:"business_name" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=8"`
	Currency     string `json:"currency"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// register creates a business with its admin user and returns a token
func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	existing, err := h.store.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "registration failed",
			"details": "email already registered",
		})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = "KES"
	}
	business := &models.Business{Name: req.BusinessName, Currency: currency}
	user := &models.User{
		Name:           req.Name,
		Email:          req.Email,
		HashedPassword: hash,
		Role:           models.RoleAdmin,
		Status:         models.StatusActive,
	}

	if err := h.store.RegisterOwner(c.Request.Context(), business, user); err != nil {
		respondError(c, err)
		return
	}

	token, err := h.authManager.IssueToken(user)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token":    token,
		"user":     user,
		"business": business,
	})
}

// login authenticates a user and returns a token
func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	user, err := h.store.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	if user == nil || !auth.CheckPassword(user.HashedPassword, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"details": "invalid email or password",
		})
		return
	}
	if user.Status != models.StatusActive {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"details": "account is not active",
		})
		return
	}

	token, err := h.authManager.IssueToken(user)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}
