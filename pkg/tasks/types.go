// Package tasks implements the task surface: creation behind the role,
// quota, and billing gates, with an atomic limit check that holds under
// concurrent creates.
package tasks

import (
	"context"
	"errors"
	"time"
)

// Task is a unit of work in a workspace. Tasks with a ParentID are subtasks
// and never count against the plan's task limit.
type Task struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	CategoryID  *int64    `json:"category_id,omitempty"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateRequest is the payload for task creation
type CreateRequest struct {
	WorkspaceID int64  `json:"workspace_id"`
	CategoryID  *int64 `json:"category_id"`
	ParentID    *int64 `json:"parent_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrParentNotFound = errors.New("parent task not found in this workspace")

	// ErrTaskLimitReached is returned when the guarded insert loses the race
	// the quota middleware's read-time check cannot cover
	ErrTaskLimitReached = errors.New("task limit reached")
)

// Service is the task service interface consumed by handlers
type Service interface {
	// CreateTask inserts a task. maxTopLevel caps top-level tasks in the
	// workspace atomically; nil means unlimited. Subtasks ignore the cap.
	CreateTask(ctx context.Context, req CreateRequest, createdBy int64, maxTopLevel *int) (*Task, error)

	ListTasks(ctx context.Context, workspaceID int64) ([]*Task, error)
	GetTask(ctx context.Context, workspaceID, taskID int64) (*Task, error)
	DeleteTask(ctx context.Context, workspaceID, taskID int64) error
}
