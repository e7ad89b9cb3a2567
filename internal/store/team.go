package store

import (
	"context"
	"database/sql"
	"fmt"

	"biashara-service/internal/models"
)

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", userID)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Resource: "user", ID: userID}
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email, or nil when none exists
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE email = $1", email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListTeamMembers retrieves all users of a business
func (s *Store) ListTeamMembers(ctx context.Context, businessID int64) ([]models.User, error) {
	var users []models.User
	err := s.db.SelectContext(ctx, &users,
		"SELECT * FROM users WHERE business_id = $1 ORDER BY id", businessID)
	return users, err
}

// CreateUser creates a new user
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.GetContext(ctx, user, `
		INSERT INTO users (name, email, hashed_password, role, status, business_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *`,
		user.Name, user.Email, user.HashedPassword, user.Role, user.Status, user.BusinessID)
}

// RegisterOwner creates a business together with its admin user in one
// transaction
func (s *Store) RegisterOwner(ctx context.Context, business *models.Business, user *models.User) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, business, `
		INSERT INTO businesses (name, currency)
		VALUES ($1, $2)
		RETURNING *`,
		business.Name, business.Currency)
	if err != nil {
		return fmt.Errorf("failed to create business: %w", err)
	}

	user.BusinessID = business.ID
	err = tx.GetContext(ctx, user, `
		INSERT INTO users (name, email, hashed_password, role, status, business_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *`,
		user.Name, user.Email, user.HashedPassword, user.Role, user.Status, user.BusinessID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return tx.Commit()
}

// UpdateUserRole updates a team member's role and status, scoped to the
// business
func (s *Store) UpdateUserRole(ctx context.Context, businessID, userID int64, role, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET role = $1, status = $2, updated_at = NOW()
		WHERE id = $3 AND business_id = $4`,
		role, status, userID, businessID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return &models.NotFoundError{Resource: "user", ID: userID}
	}
	return nil
}

// DeleteUser removes a team member, scoped to the business
func (s *Store) DeleteUser(ctx context.Context, businessID, userID int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM users WHERE id = $1 AND business_id = $2", userID, businessID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return &models.NotFoundError{Resource: "user", ID: userID}
	}
	return nil
}

// CreateInvitation creates a team invitation
func (s *Store) CreateInvitation(ctx context.Context, inv *models.TeamInvitation) error {
	return s.db.GetContext(ctx, inv, `
		INSERT INTO team_invitations (business_id, email, name, role, invitation_token, message, status, invited_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING *`,
		inv.BusinessID, inv.Email, inv.Name, inv.Role, inv.InvitationToken,
		inv.Message, inv.Status, inv.InvitedBy, inv.ExpiresAt)
}

// GetPendingInvitation retrieves a pending invitation for an email within a
// business, or nil when none exists
func (s *Store) GetPendingInvitation(ctx context.Context, businessID int64, email string) (*models.TeamInvitation, error) {
	var inv models.TeamInvitation
	err := s.db.GetContext(ctx, &inv,
		"SELECT * FROM team_invitations WHERE business_id = $1 AND email = $2 AND status = $3",
		businessID, email, models.StatusPending)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetInvitationByToken retrieves an invitation by its token, or nil when
// none exists
func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*models.TeamInvitation, error) {
	var inv models.TeamInvitation
	err := s.db.GetContext(ctx, &inv,
		"SELECT * FROM team_invitations WHERE invitation_token = $1", token)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// MarkInvitationAccepted moves a pending invitation to active. The pending
// guard means a token can only be redeemed once.
func (s *Store) MarkInvitationAccepted(ctx context.Context, invitationID int64) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE team_invitations SET status = $1 WHERE id = $2 AND status = $3",
		models.StatusActive, invitationID, models.StatusPending)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return &models.NotFoundError{Resource: "invitation", ID: invitationID}
	}
	return nil
}

// ListInvitations retrieves all invitations for a business, newest first
func (s *Store) ListInvitations(ctx context.Context, businessID int64) ([]models.TeamInvitation, error) {
	var invs []models.TeamInvitation
	err := s.db.SelectContext(ctx, &invs,
		"SELECT * FROM team_invitations WHERE business_id = $1 ORDER BY created_at DESC", businessID)
	return invs, err
}
