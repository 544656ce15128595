package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crewdesk/crewdesk/pkg/observability"
)

// PostgresService implements Service on PostgreSQL
type PostgresService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewPostgresService creates a billing service
func NewPostgresService(db *sql.DB, logger *observability.Logger) *PostgresService {
	return &PostgresService{db: db, logger: logger}
}

// GetWorkspacePlanLimits joins the workspace owner to their live
// subscription's plan. Any owner without a live subscription gets the free
// plan; this includes past_due and canceled subscribers, whose writes the
// billing gate blocks separately.
func (s *PostgresService) GetWorkspacePlanLimits(ctx context.Context, workspaceID int64) (*PlanLimits, error) {
	limits := &PlanLimits{}
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.max_members, p.max_tasks_per_workspace, p.max_workspaces
		FROM workspaces w
		JOIN subscriptions sub ON sub.user_id = w.owner_id
		JOIN plans p ON p.id = sub.plan_id
		WHERE w.id = $1 AND sub.status IN ('active', 'trialing')
		ORDER BY sub.created_at DESC
		LIMIT 1`,
		workspaceID,
	).Scan(&limits.PlanID, &limits.MaxMembers, &limits.MaxTasksPerWorkspace, &limits.MaxWorkspaces)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FreePlan(), nil
		}
		return nil, fmt.Errorf("failed to resolve plan limits: %w", err)
	}
	return limits, nil
}

// GetWorkspaceSubscription returns the owner's most recent subscription in
// any status, or nil when the owner never subscribed
func (s *PostgresService) GetWorkspaceSubscription(ctx context.Context, workspaceID int64) (*Subscription, error) {
	sub, err := s.scanSubscription(s.db.QueryRowContext(ctx, `
		SELECT sub.id, sub.user_id, sub.plan_id, sub.status, sub.current_period_end, sub.created_at, sub.updated_at
		FROM workspaces w
		JOIN subscriptions sub ON sub.user_id = w.owner_id
		WHERE w.id = $1
		ORDER BY sub.created_at DESC
		LIMIT 1`,
		workspaceID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace subscription: %w", err)
	}
	return sub, nil
}

// GetUserSubscription returns the user's most recent subscription, or nil
func (s *PostgresService) GetUserSubscription(ctx context.Context, userID int64) (*Subscription, error) {
	sub, err := s.scanSubscription(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, plan_id, status, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		userID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// GetUserPlanLimits resolves the user's live subscription plan, falling back
// to the free plan
func (s *PostgresService) GetUserPlanLimits(ctx context.Context, userID int64) (*PlanLimits, error) {
	limits := &PlanLimits{}
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.max_members, p.max_tasks_per_workspace, p.max_workspaces
		FROM subscriptions sub
		JOIN plans p ON p.id = sub.plan_id
		WHERE sub.user_id = $1 AND sub.status IN ('active', 'trialing')
		ORDER BY sub.created_at DESC
		LIMIT 1`,
		userID,
	).Scan(&limits.PlanID, &limits.MaxMembers, &limits.MaxTasksPerWorkspace, &limits.MaxWorkspaces)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FreePlan(), nil
		}
		return nil, fmt.Errorf("failed to resolve plan limits: %w", err)
	}
	return limits, nil
}

// UserHasLiveSubscription reports whether the user holds an active or
// trialing subscription
func (s *PostgresService) UserHasLiveSubscription(ctx context.Context, userID int64) (bool, error) {
	var live bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM subscriptions
			WHERE user_id = $1 AND status IN ('active', 'trialing')
		)`,
		userID,
	).Scan(&live)
	if err != nil {
		return false, fmt.Errorf("failed to check subscription: %w", err)
	}
	return live, nil
}

// CountTopLevelTasks counts tasks with no parent in the workspace
func (s *PostgresService) CountTopLevelTasks(ctx context.Context, workspaceID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tasks
		WHERE workspace_id = $1 AND parent_id IS NULL`,
		workspaceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// CountMembersAndPendingInvites counts seats already committed: current
// members plus unexpired unaccepted invitations
func (s *PostgresService) CountMembersAndPendingInvites(ctx context.Context, workspaceID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM workspace_members WHERE workspace_id = $1) +
			(SELECT COUNT(*) FROM invitations
				WHERE workspace_id = $1 AND accepted_at IS NULL AND expires_at > NOW())`,
		workspaceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return count, nil
}

// CountUserWorkspaces counts workspaces the user owns
func (s *PostgresService) CountUserWorkspaces(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workspaces WHERE owner_id = $1`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count workspaces: %w", err)
	}
	return count, nil
}

func (s *PostgresService) scanSubscription(row *sql.Row) (*Subscription, error) {
	sub := &Subscription{}
	var status string
	err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &status,
		&sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sub.Status = SubscriptionStatus(status)
	return sub, nil
}
