package service

import (
	"context"
	"fmt"
	"time"

	"biashara-service/internal/auth"
	"biashara-service/internal/mailer"
	"biashara-service/internal/models"
	"biashara-service/internal/redisclient"
	"biashara-service/internal/store"
	"biashara-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TeamService handles team membership and invitations
type TeamService struct {
	store  *store.Store
	mailer *mailer.Mailer
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewTeamService creates a new team service. mailer may be nil when SMTP is
// not configured; invitations are then recorded without an email going out.
// redis may be nil; it only backs the duplicate-invite lock.
func NewTeamService(store *store.Store, mailer *mailer.Mailer, redis *redisclient.Client) *TeamService {
	return &TeamService{
		store:  store,
		mailer: mailer,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// InviteRequest represents a request to invite a team member
type InviteRequest struct {
	Email   string `json:"email" binding:"required,email"`
	Name    string `json:"name" binding:"required"`
	Role    string `json:"role" binding:"required,oneof=admin manager staff"`
	Message string `json:"message"`
}

// Invite records a pending invitation and sends the invitation email.
// The email is best-effort; the invitation row is the source of truth.
func (ts *TeamService) Invite(ctx context.Context, scope models.Scope, req *InviteRequest) (*models.TeamInvitation, error) {
	if ts.redis != nil {
		lockKey := fmt.Sprintf("invite:%d:%s", scope.BusinessID, req.Email)
		ok, err := ts.redis.AcquireLock(ctx, lockKey, 30*time.Second)
		if err == nil && !ok {
			return nil, &models.ValidationError{Detail: "an invitation for this email is already in progress"}
		}
		if err == nil {
			defer ts.redis.ReleaseLock(ctx, lockKey)
		}
	}

	existing, err := ts.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.BusinessID == scope.BusinessID {
		return nil, &models.ValidationError{Detail: "user with this email already exists in your team"}
	}

	pending, err := ts.store.GetPendingInvitation(ctx, scope.BusinessID, req.Email)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, &models.ValidationError{Detail: "an invitation for this email is already pending"}
	}

	inv := &models.TeamInvitation{
		BusinessID:      scope.BusinessID,
		Email:           req.Email,
		Name:            req.Name,
		Role:            req.Role,
		InvitationToken: uuid.New().String(),
		Message:         req.Message,
		Status:          models.StatusPending,
		InvitedBy:       scope.UserID,
		ExpiresAt:       time.Now().Add(7 * 24 * time.Hour),
	}

	if err := ts.store.CreateInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	if ts.mailer != nil {
		business, err := ts.store.GetBusiness(ctx, scope.BusinessID)
		if err != nil {
			ts.logger.Error("Failed to load business for invitation email", zap.Error(err))
			return inv, nil
		}
		inviter, err := ts.store.GetUser(ctx, scope.UserID)
		if err != nil {
			ts.logger.Error("Failed to load inviter for invitation email", zap.Error(err))
			return inv, nil
		}

		go func() {
			if err := ts.mailer.SendInvitation(inv.Email, inv.Name, business.Name,
				inviter.Name, inv.Role, inv.InvitationToken, inv.Message); err != nil {
				ts.logger.Error("Failed to send invitation email",
					zap.String("email", inv.Email), zap.Error(err))
			}
		}()
	}

	return inv, nil
}

// AcceptInvitation redeems an invitation token: the invited user is created
// with the role the invitation carries, and the token becomes unusable.
func (ts *TeamService) AcceptInvitation(ctx context.Context, token, password string) (*models.User, error) {
	inv, err := ts.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil || inv.Status != models.StatusPending {
		return nil, &models.ValidationError{Detail: "invalid or already used invitation token"}
	}
	if time.Now().After(inv.ExpiresAt) {
		return nil, &models.ValidationError{Detail: "invitation has expired"}
	}

	existing, err := ts.store.GetUserByEmail(ctx, inv.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &models.ValidationError{Detail: "user with this email already exists"}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:           inv.Name,
		Email:          inv.Email,
		HashedPassword: hash,
		Role:           inv.Role,
		Status:         models.StatusActive,
		BusinessID:     inv.BusinessID,
	}
	if err := ts.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := ts.store.MarkInvitationAccepted(ctx, inv.ID); err != nil {
		ts.logger.Error("Failed to mark invitation accepted",
			zap.Int64("invitation_id", inv.ID), zap.Error(err))
	}

	return user, nil
}

// Members lists the business's team members
func (ts *TeamService) Members(ctx context.Context, scope models.Scope) ([]models.User, error) {
	return ts.store.ListTeamMembers(ctx, scope.BusinessID)
}

// Invitations lists the business's invitations
func (ts *TeamService) Invitations(ctx context.Context, scope models.Scope) ([]models.TeamInvitation, error) {
	return ts.store.ListInvitations(ctx, scope.BusinessID)
}

// UpdateMember changes a team member's role or status
func (ts *TeamService) UpdateMember(ctx context.Context, scope models.Scope, userID int64, role, status string) error {
	if userID == scope.UserID {
		return &models.ValidationError{Detail: "cannot change your own role"}
	}
	return ts.store.UpdateUserRole(ctx, scope.BusinessID, userID, role, status)
}

// RemoveMember deletes a team member
func (ts *TeamService) RemoveMember(ctx context.Context, scope models.Scope, userID int64) error {
	if userID == scope.UserID {
		return &models.ValidationError{Detail: "cannot remove yourself"}
	}
	return ts.store.DeleteUser(ctx, scope.BusinessID, userID)
}
