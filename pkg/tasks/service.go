package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/crewdesk/crewdesk/pkg/observability"
)

// PostgresService implements Service on PostgreSQL
type PostgresService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewPostgresService creates a task service
func NewPostgresService(db *sql.DB, logger *observability.Logger) *PostgresService {
	return &PostgresService{db: db, logger: logger}
}

// CreateTask inserts a task. For top-level tasks the insert re-checks the
// plan limit inside the statement, so two racing creates cannot both land
// under a full quota even though the middleware's check already passed.
func (s *PostgresService) CreateTask(ctx context.Context, req CreateRequest, createdBy int64, maxTopLevel *int) (*Task, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	if req.ParentID != nil {
		if err := s.checkParent(ctx, req.WorkspaceID, *req.ParentID); err != nil {
			return nil, err
		}
		// Subtasks are exempt from the limit
		maxTopLevel = nil
	}

	task := &Task{
		WorkspaceID: req.WorkspaceID,
		CategoryID:  req.CategoryID,
		ParentID:    req.ParentID,
		Title:       req.Title,
		Description: req.Description,
		CreatedBy:   createdBy,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tasks (workspace_id, category_id, parent_id, title, description, created_by, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, NOW(), NOW()
		WHERE $7::int IS NULL
			OR (SELECT COUNT(*) FROM tasks WHERE workspace_id = $1 AND parent_id IS NULL) < $7
		RETURNING id, created_at, updated_at`,
		req.WorkspaceID, req.CategoryID, req.ParentID, req.Title, req.Description, createdBy, maxTopLevel,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskLimitReached
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}

func (s *PostgresService) checkParent(ctx context.Context, workspaceID, parentID int64) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1 AND workspace_id = $2)`,
		parentID, workspaceID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check parent task: %w", err)
	}
	if !exists {
		return ErrParentNotFound
	}
	return nil
}

// ListTasks returns all tasks in a workspace
func (s *PostgresService) ListTasks(ctx context.Context, workspaceID int64) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, category_id, parent_id, title, description, created_by, created_at, updated_at
		FROM tasks
		WHERE workspace_id = $1
		ORDER BY created_at`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		task := &Task{}
		if err := rows.Scan(&task.ID, &task.WorkspaceID, &task.CategoryID, &task.ParentID,
			&task.Title, &task.Description, &task.CreatedBy, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// GetTask fetches one task, scoped to the workspace
func (s *PostgresService) GetTask(ctx context.Context, workspaceID, taskID int64) (*Task, error) {
	task := &Task{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, category_id, parent_id, title, description, created_by, created_at, updated_at
		FROM tasks
		WHERE id = $1 AND workspace_id = $2`,
		taskID, workspaceID,
	).Scan(&task.ID, &task.WorkspaceID, &task.CategoryID, &task.ParentID,
		&task.Title, &task.Description, &task.CreatedBy, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// DeleteTask removes a task and its subtasks
func (s *PostgresService) DeleteTask(ctx context.Context, workspaceID, taskID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM tasks
		WHERE workspace_id = $1 AND (id = $2 OR parent_id = $2)`,
		workspaceID, taskID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}
