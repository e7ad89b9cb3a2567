package api

import (
	"net/http"

	"biashara-service/internal/auth"
	"biashara-service/internal/service"

	"github.com/gin-gonic/gin"
)

type updateMemberRequest struct {
	Role   string `json:"role" binding:"required,oneof=admin manager staff"`
	Status string `json:"status" binding:"required,oneof=active inactive"`
}

// listTeamMembers returns the business's team members
func (h *Handler) listTeamMembers(c *gin.Context) {
	members, err := h.teamService.Members(c.Request.Context(), auth.ScopeFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// inviteTeamMember records an invitation and sends the invitation email
func (h *Handler) inviteTeamMember(c *gin.Context) {
	var req service.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	inv, err := h.teamService.Invite(c.Request.Context(), auth.ScopeFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

type acceptInvitationRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// acceptInvitation redeems an invitation token and returns a session token
// for the newly created user
func (h *Handler) acceptInvitation(c *gin.Context) {
	var req acceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	user, err := h.teamService.AcceptInvitation(c.Request.Context(), req.Token, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.authManager.IssueToken(user)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token": token,
		"user":  user,
	})
}

// listInvitations returns the business's invitations
func (h *Handler) listInvitations(c *gin.Context) {
	invs, err := h.teamService.Invitations(c.Request.Context(), auth.ScopeFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invs})
}

// updateTeamMember changes a member's role or status
func (h *Handler) updateTeamMember(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req updateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.teamService.UpdateMember(c.Request.Context(), auth.ScopeFrom(c), id, req.Role, req.Status); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// removeTeamMember deletes a member from the business
func (h *Handler) removeTeamMember(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.teamService.RemoveMember(c.Request.Context(), auth.ScopeFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
