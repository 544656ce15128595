package workspaces

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crewdesk/crewdesk/pkg/notify"
	"github.com/crewdesk/crewdesk/pkg/observability"
)

// PostgresService implements Service on PostgreSQL
type PostgresService struct {
	db           *sql.DB
	queue        notify.Queue
	logger       *observability.Logger
	inviteExpiry time.Duration
}

// NewPostgresService creates a workspace service. queue may be nil in tests.
func NewPostgresService(db *sql.DB, queue notify.Queue, logger *observability.Logger, inviteExpiryDays int) *PostgresService {
	if inviteExpiryDays <= 0 {
		inviteExpiryDays = 7
	}
	return &PostgresService{
		db:           db,
		queue:        queue,
		logger:       logger,
		inviteExpiry: time.Duration(inviteExpiryDays) * 24 * time.Hour,
	}
}

// CreateWorkspace creates a workspace and the owner's admin membership in
// one transaction
func (s *PostgresService) CreateWorkspace(ctx context.Context, ownerID int64, name string) (*Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("workspace name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ws := &Workspace{Name: name, OwnerID: ownerID}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO workspaces (name, owner_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		name, ownerID,
	).Scan(&ws.ID, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role, created_at)
		VALUES ($1, $2, 'admin', NOW())`,
		ws.ID, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ws, nil
}

// GetWorkspace fetches a workspace by ID
func (s *PostgresService) GetWorkspace(ctx context.Context, workspaceID int64) (*Workspace, error) {
	ws := &Workspace{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_id, created_at, updated_at
		FROM workspaces
		WHERE id = $1`,
		workspaceID,
	).Scan(&ws.ID, &ws.Name, &ws.OwnerID, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return ws, nil
}

// ListUserWorkspaces lists workspaces where the user holds a membership
func (s *PostgresService) ListUserWorkspaces(ctx context.Context, userID int64) ([]*Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.owner_id, w.created_at, w.updated_at
		FROM workspaces w
		JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.user_id = $1
		ORDER BY w.created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var out []*Workspace
	for rows.Next() {
		ws := &Workspace{}
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.OwnerID, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// UpdateWorkspace renames a workspace
func (s *PostgresService) UpdateWorkspace(ctx context.Context, workspaceID int64, name string) (*Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("workspace name is required")
	}

	ws := &Workspace{}
	err := s.db.QueryRowContext(ctx, `
		UPDATE workspaces
		SET name = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING id, name, owner_id, created_at, updated_at`,
		name, workspaceID,
	).Scan(&ws.ID, &ws.Name, &ws.OwnerID, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to update workspace: %w", err)
	}
	return ws, nil
}

// DeleteWorkspace removes a workspace and everything in it. Only the owner
// may delete.
func (s *PostgresService) DeleteWorkspace(ctx context.Context, workspaceID, callerID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ownerID int64
	err = tx.QueryRowContext(ctx,
		`SELECT owner_id FROM workspaces WHERE id = $1 FOR UPDATE`, workspaceID,
	).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrWorkspaceNotFound
		}
		return fmt.Errorf("failed to get workspace: %w", err)
	}
	if ownerID != callerID {
		return ErrNotOwner
	}

	for _, q := range []string{
		`DELETE FROM tasks WHERE workspace_id = $1`,
		`DELETE FROM categories WHERE workspace_id = $1`,
		`DELETE FROM invitations WHERE workspace_id = $1`,
		`DELETE FROM workspace_members WHERE workspace_id = $1`,
		`DELETE FROM workspaces WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, q, workspaceID); err != nil {
			return fmt.Errorf("failed to delete workspace data: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// VerifyWorkspaceAccess returns the user's membership in the workspace, or
// nil when no membership exists. Errors are datastore failures only; the
// gates treat them as fail-closed.
func (s *PostgresService) VerifyWorkspaceAccess(ctx context.Context, userID, workspaceID int64) (*Member, error) {
	m := &Member{}
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT workspace_id, user_id, role, created_at
		FROM workspace_members
		WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID,
	).Scan(&m.WorkspaceID, &m.UserID, &role, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to verify workspace access: %w", err)
	}
	m.Role = Role(role)
	return m, nil
}

// enqueue hands a message to the notification queue, logging failures
// instead of surfacing them
func (s *PostgresService) enqueue(ctx context.Context, msg notify.Message) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(ctx, msg); err != nil && s.logger != nil {
		s.logger.WithError(err).
			WithField("type", string(msg.Type)).
			Warn("failed to enqueue notification, delivery pending")
	}
}
