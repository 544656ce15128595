// Package billing resolves subscription plans and their resource limits.
// Every workspace resolves to the owner's plan; users without a live
// subscription resolve to the free plan.
package billing

import (
	"context"
	"time"
)

// SubscriptionStatus mirrors the payment provider's lifecycle states
type SubscriptionStatus string

const (
	StatusActive     SubscriptionStatus = "active"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusCanceled   SubscriptionStatus = "canceled"
	StatusIncomplete SubscriptionStatus = "incomplete"
)

// Live reports whether the status entitles the user to their paid plan's
// limits
func (s SubscriptionStatus) Live() bool {
	return s == StatusActive || s == StatusTrialing
}

// FreePlanID is the synthetic plan applied when no live subscription exists
const FreePlanID = "free"

// PlanLimits are the enforcement inputs for a plan. A nil
// MaxTasksPerWorkspace means unlimited.
type PlanLimits struct {
	PlanID               string `json:"plan_id"`
	MaxMembers           int    `json:"max_members"`
	MaxTasksPerWorkspace *int   `json:"max_tasks_per_workspace"`
	MaxWorkspaces        int    `json:"max_workspaces"`
}

// FreePlan returns the limits applied without a live subscription
func FreePlan() *PlanLimits {
	maxTasks := 50
	return &PlanLimits{
		PlanID:               FreePlanID,
		MaxMembers:           3,
		MaxTasksPerWorkspace: &maxTasks,
		MaxWorkspaces:        1,
	}
}

// Subscription is a user's subscription record
type Subscription struct {
	ID               int64              `json:"id"`
	UserID           int64              `json:"user_id"`
	PlanID           string             `json:"plan_id"`
	Status           SubscriptionStatus `json:"status"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Service resolves plans and the counts the enforcement gates compare
// against them
type Service interface {
	// GetWorkspacePlanLimits resolves the workspace owner's plan limits,
	// falling back to the free plan when the owner has no live subscription.
	GetWorkspacePlanLimits(ctx context.Context, workspaceID int64) (*PlanLimits, error)

	// GetWorkspaceSubscription returns the owner's most recent subscription,
	// or nil when the owner never subscribed.
	GetWorkspaceSubscription(ctx context.Context, workspaceID int64) (*Subscription, error)

	// GetUserSubscription returns the user's most recent subscription, or nil
	GetUserSubscription(ctx context.Context, userID int64) (*Subscription, error)

	// GetUserPlanLimits resolves the user's own plan limits, falling back to
	// the free plan; used by the workspace-count gate
	GetUserPlanLimits(ctx context.Context, userID int64) (*PlanLimits, error)

	// UserHasLiveSubscription reports whether the user holds any live
	// subscription; used by the workspace-count gate
	UserHasLiveSubscription(ctx context.Context, userID int64) (bool, error)

	// CountTopLevelTasks counts tasks without a parent; subtasks never count
	// against the task limit
	CountTopLevelTasks(ctx context.Context, workspaceID int64) (int, error)

	// CountMembersAndPendingInvites counts current members plus unexpired
	// unaccepted invitations
	CountMembersAndPendingInvites(ctx context.Context, workspaceID int64) (int, error)

	// CountUserWorkspaces counts workspaces the user owns
	CountUserWorkspaces(ctx context.Context, userID int64) (int, error)
}
