package api

import (
	"net/http"
	"strconv"

	"biashara-service/internal/auth"

	"github.com/gin-gonic/gin"
)

// listNotifications returns the caller's notifications, newest first. Pass
// unread_only=true to filter.
func (h *Handler) listNotifications(c *gin.Context) {
	limit, offset := paginationParams(c)
	unreadOnly, _ := strconv.ParseBool(c.DefaultQuery("unread_only", "false"))

	notifications, err := h.store.ListNotifications(c.Request.Context(),
		auth.ScopeFrom(c).UserID, unreadOnly, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// unreadCount returns the caller's unread notification count
func (h *Handler) unreadCount(c *gin.Context) {
	count, err := h.store.CountUnreadNotifications(c.Request.Context(), auth.ScopeFrom(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

// markNotificationRead flags one of the caller's notifications as read
func (h *Handler) markNotificationRead(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.store.MarkNotificationRead(c.Request.Context(), auth.ScopeFrom(c).UserID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

// markAllNotificationsRead flags all of the caller's notifications as read
func (h *Handler) markAllNotificationsRead(c *gin.Context) {
	if err := h.store.MarkAllNotificationsRead(c.Request.Context(), auth.ScopeFrom(c).UserID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}
