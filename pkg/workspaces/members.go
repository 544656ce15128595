package workspaces

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ListMembers returns all memberships in a workspace, joined with user
// details
func (s *PostgresService) ListMembers(ctx context.Context, workspaceID int64) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.workspace_id, m.user_id, m.role, u.email, u.name, m.created_at
		FROM workspace_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = $1
		ORDER BY m.created_at`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var out []*Member
	for rows.Next() {
		m := &Member{}
		var role string
		if err := rows.Scan(&m.WorkspaceID, &m.UserID, &role, &m.Email, &m.Name, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Role = Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMemberRole changes a member's workspace role. The owner's membership
// is immutable regardless of who asks.
func (s *PostgresService) UpdateMemberRole(ctx context.Context, workspaceID, userID int64, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role: %s", role)
	}

	if err := s.rejectOwnerMutation(ctx, workspaceID, userID); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE workspace_members
		SET role = $1
		WHERE workspace_id = $2 AND user_id = $3`,
		string(role), workspaceID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// RemoveMember removes a member from the workspace. The owner's membership
// can never be removed.
func (s *PostgresService) RemoveMember(ctx context.Context, workspaceID, userID int64) error {
	if err := s.rejectOwnerMutation(ctx, workspaceID, userID); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM workspace_members
		WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// rejectOwnerMutation returns ErrOwnerImmutable when the target user owns
// the workspace
func (s *PostgresService) rejectOwnerMutation(ctx context.Context, workspaceID, userID int64) error {
	var ownerID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id FROM workspaces WHERE id = $1`, workspaceID,
	).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrWorkspaceNotFound
		}
		return fmt.Errorf("failed to get workspace: %w", err)
	}
	if ownerID == userID {
		return ErrOwnerImmutable
	}
	return nil
}
