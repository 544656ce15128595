package workspaces

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crewdesk/crewdesk/pkg/auth"
	"github.com/crewdesk/crewdesk/pkg/notify"
)

// CreateInvitation creates a pending invitation and enqueues the invite
// notification. An enqueue failure does not undo the invitation; the
// response is still success and delivery is pending.
func (s *PostgresService) CreateInvitation(ctx context.Context, workspaceID, inviterID int64, email string, role Role) (*Invitation, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role: %s", role)
	}

	var isMember bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM workspace_members m
			JOIN users u ON u.id = m.user_id
			WHERE m.workspace_id = $1 AND u.email = $2
		)`,
		workspaceID, email,
	).Scan(&isMember)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if isMember {
		return nil, ErrAlreadyMember
	}

	var hasPending bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM invitations
			WHERE workspace_id = $1 AND email = $2
				AND accepted_at IS NULL AND expires_at > NOW()
		)`,
		workspaceID, email,
	).Scan(&hasPending)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending invitations: %w", err)
	}
	if hasPending {
		return nil, ErrPendingInviteExists
	}

	token, err := auth.GenerateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invitation token: %w", err)
	}

	inv := &Invitation{
		WorkspaceID: workspaceID,
		Email:       email,
		Role:        role,
		CreatedBy:   inviterID,
		ExpiresAt:   time.Now().Add(s.inviteExpiry),
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO invitations (workspace_id, email, role, token_hash, expires_at, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`,
		workspaceID, email, string(role), auth.HashToken(token), inv.ExpiresAt, inviterID,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	var workspaceName string
	if ws, wsErr := s.GetWorkspace(ctx, workspaceID); wsErr == nil {
		workspaceName = ws.Name
	}

	s.enqueue(ctx, notify.NewMessage(notify.TypeInvitation, email, map[string]string{
		"workspace": workspaceName,
		"role":      string(role),
		"token":     token,
	}))

	return inv, nil
}

// ListInvitations returns pending invitations for a workspace
func (s *PostgresService) ListInvitations(ctx context.Context, workspaceID int64) ([]*Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, email, role, expires_at, accepted_at, created_by, created_at
		FROM invitations
		WHERE workspace_id = $1 AND accepted_at IS NULL AND expires_at > NOW()
		ORDER BY created_at`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var out []*Invitation
	for rows.Next() {
		inv := &Invitation{}
		var role string
		if err := rows.Scan(&inv.ID, &inv.WorkspaceID, &inv.Email, &role,
			&inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedBy, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		inv.Role = Role(role)
		out = append(out, inv)
	}
	return out, rows.Err()
}

// GetInviteInfo classifies an invitation token for the unauthenticated
// info endpoint: invalid, expired, accepted, or valid.
func (s *PostgresService) GetInviteInfo(ctx context.Context, token string) (*InviteInfo, error) {
	var (
		email, role, workspaceName string
		expiresAt                  time.Time
		acceptedAt                 sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT i.email, i.role, i.expires_at, i.accepted_at, w.name
		FROM invitations i
		JOIN workspaces w ON w.id = i.workspace_id
		WHERE i.token_hash = $1`,
		auth.HashToken(token),
	).Scan(&email, &role, &expiresAt, &acceptedAt, &workspaceName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &InviteInfo{State: InviteInvalid}, nil
		}
		return nil, fmt.Errorf("failed to look up invitation: %w", err)
	}

	switch {
	case acceptedAt.Valid:
		return &InviteInfo{State: InviteAccepted, WorkspaceName: workspaceName}, nil
	case time.Now().After(expiresAt):
		return &InviteInfo{State: InviteExpired, WorkspaceName: workspaceName}, nil
	default:
		return &InviteInfo{
			State:         InviteValid,
			WorkspaceName: workspaceName,
			Email:         email,
			Role:          Role(role),
		}, nil
	}
}

// AcceptInvitation redeems an invitation in a single transaction. The row is
// locked with FOR UPDATE so concurrent accepts of the same token serialize.
//
// Check order: unknown token, caller email mismatch, expiry, then existing
// membership. If the caller is already a member the accept succeeds without
// changing anything (the transaction rolls back).
func (s *PostgresService) AcceptInvitation(ctx context.Context, token string, userID int64, userEmail string) (*Member, error) {
	userEmail = strings.ToLower(strings.TrimSpace(userEmail))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		invID       int64
		workspaceID int64
		email, role string
		expiresAt   time.Time
		acceptedAt  sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, workspace_id, email, role, expires_at, accepted_at
		FROM invitations
		WHERE token_hash = $1
		FOR UPDATE`,
		auth.HashToken(token),
	).Scan(&invID, &workspaceID, &email, &role, &expiresAt, &acceptedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInviteInvalid
		}
		return nil, fmt.Errorf("failed to look up invitation: %w", err)
	}

	if email != userEmail {
		return nil, ErrInviteEmailMismatch
	}
	if acceptedAt.Valid {
		return nil, ErrInviteInvalid
	}
	if time.Now().After(expiresAt) {
		return nil, ErrInviteExpired
	}

	var existingRole string
	err = tx.QueryRowContext(ctx, `
		SELECT role FROM workspace_members
		WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID,
	).Scan(&existingRole)
	if err == nil {
		// Already a member: accept is idempotent by membership. Roll back so
		// the invitation stays untouched and the existing role wins.
		return &Member{WorkspaceID: workspaceID, UserID: userID, Role: Role(existingRole)}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}

	member := &Member{WorkspaceID: workspaceID, UserID: userID, Role: Role(role)}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING created_at`,
		workspaceID, userID, role,
	).Scan(&member.JoinedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE invitations SET accepted_at = NOW() WHERE id = $1`,
		invID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark invitation accepted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return member, nil
}

// CancelInvitation deletes a pending invitation
func (s *PostgresService) CancelInvitation(ctx context.Context, workspaceID, invitationID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM invitations
		WHERE id = $1 AND workspace_id = $2 AND accepted_at IS NULL`,
		invitationID, workspaceID,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel invitation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return ErrInviteNotFound
	}
	return nil
}

// CountPendingInvitations counts live invitations for the member-limit gate
func (s *PostgresService) CountPendingInvitations(ctx context.Context, workspaceID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM invitations
		WHERE workspace_id = $1 AND accepted_at IS NULL AND expires_at > NOW()`,
		workspaceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count invitations: %w", err)
	}
	return count, nil
}

// CleanupExpiredInvitations removes expired unaccepted invitations; run on a
// schedule by the maintenance jobs
func (s *PostgresService) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM invitations
		WHERE accepted_at IS NULL AND expires_at <= NOW()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up invitations: %w", err)
	}
	return result.RowsAffected()
}
