package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/crewdesk/crewdesk/pkg/auth"
	"github.com/crewdesk/crewdesk/pkg/billing"
	"github.com/crewdesk/crewdesk/pkg/httputil"
	"github.com/crewdesk/crewdesk/pkg/observability"
)

// PlanResolver fetches a workspace's plan limits; the server wires it
// through the plan cache
type PlanResolver func(ctx context.Context, workspaceID int64) (*billing.PlanLimits, error)

// LimitSource is the slice of the billing service the quota gates need
type LimitSource interface {
	GetWorkspacePlanLimits(ctx context.Context, workspaceID int64) (*billing.PlanLimits, error)
	GetUserPlanLimits(ctx context.Context, userID int64) (*billing.PlanLimits, error)
	UserHasLiveSubscription(ctx context.Context, userID int64) (bool, error)
	CountTopLevelTasks(ctx context.Context, workspaceID int64) (int, error)
	CountMembersAndPendingInvites(ctx context.Context, workspaceID int64) (int, error)
	CountUserWorkspaces(ctx context.Context, userID int64) (int, error)
}

// Quota enforces plan limits on resource creation. All quota checks fail
// open: when limits or counts cannot be determined the request proceeds and
// the failure is logged.
type Quota struct {
	billing LimitSource
	plans   PlanResolver
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewQuota creates the quota gates. plans may be nil, in which case limits
// are resolved directly from the billing service.
func NewQuota(billingSvc LimitSource, plans PlanResolver, metrics *observability.Metrics, logger *observability.Logger) *Quota {
	q := &Quota{
		billing: billingSvc,
		plans:   plans,
		metrics: metrics,
		logger:  logger,
	}
	if q.plans == nil {
		q.plans = billingSvc.GetWorkspacePlanLimits
	}
	return q
}

// CheckTaskLimit gates top-level task creation on the plan's task limit.
// Subtask creation is not gated here; only tasks without a parent count.
func (q *Quota) CheckTaskLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Not every task-creating surface is workspace-scoped; without a
		// workspace there is nothing to meter.
		workspaceID, r, ok := ResolveWorkspaceID(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		limits, err := q.plans(r.Context(), workspaceID)
		if err != nil {
			q.failOpen(err, "task limit check skipped")
			next.ServeHTTP(w, r)
			return
		}
		if limits.MaxTasksPerWorkspace == nil {
			next.ServeHTTP(w, r)
			return
		}

		count, err := q.billing.CountTopLevelTasks(r.Context(), workspaceID)
		if err != nil {
			q.failOpen(err, "task limit check skipped")
			next.ServeHTTP(w, r)
			return
		}

		limit := *limits.MaxTasksPerWorkspace
		if count >= limit {
			q.countDenial("tasks")
			msg := fmt.Sprintf("the %s plan allows up to %d tasks per workspace", limits.PlanID, limit)
			if limits.PlanID == billing.FreePlanID {
				msg += "; upgrade your plan to add more"
			}
			httputil.WriteQuotaExceeded(w, httputil.CodePlanLimitTasks,
				msg, limit, count, limits.PlanID)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CheckMemberLimit gates invitation creation on the plan's seat limit.
// Pending invitations count as committed seats; a non-positive limit means
// unlimited seats.
func (q *Quota) CheckMemberLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		workspaceID, r, ok := ResolveWorkspaceID(r)
		if !ok {
			httputil.WriteBadRequest(w, "workspace id required")
			return
		}

		limits, err := q.plans(r.Context(), workspaceID)
		if err != nil {
			q.failOpen(err, "member limit check skipped")
			next.ServeHTTP(w, r)
			return
		}

		count, err := q.billing.CountMembersAndPendingInvites(r.Context(), workspaceID)
		if err != nil {
			q.failOpen(err, "member limit check skipped")
			next.ServeHTTP(w, r)
			return
		}

		if limits.MaxMembers > 0 && count >= limits.MaxMembers {
			q.countDenial("members")
			httputil.WriteQuotaExceeded(w, httputil.CodePlanLimitMembers,
				fmt.Sprintf("this workspace has reached its limit of %d members", limits.MaxMembers),
				limits.MaxMembers, count, limits.PlanID)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CheckWorkspaceLimit gates workspace creation on the caller's own plan. The
// count covers workspaces the user owns, not ones they joined. A caller with
// any live subscription passes through so the workspace-create handler owns
// the paid ceiling; only the unambiguous free case blocks here.
func (q *Quota) CheckWorkspaceLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, ok := auth.FromContext(r.Context())
		if !ok {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		live, err := q.billing.UserHasLiveSubscription(r.Context(), authCtx.UserID)
		if err != nil {
			q.failOpen(err, "workspace limit check skipped")
			next.ServeHTTP(w, r)
			return
		}
		if live {
			next.ServeHTTP(w, r)
			return
		}

		limits, err := q.billing.GetUserPlanLimits(r.Context(), authCtx.UserID)
		if err != nil {
			q.failOpen(err, "workspace limit check skipped")
			next.ServeHTTP(w, r)
			return
		}

		count, err := q.billing.CountUserWorkspaces(r.Context(), authCtx.UserID)
		if err != nil {
			q.failOpen(err, "workspace limit check skipped")
			next.ServeHTTP(w, r)
			return
		}

		if count >= limits.MaxWorkspaces {
			q.countDenial("workspaces")
			httputil.WriteQuotaExceeded(w, httputil.CodePlanLimitWorkspaces,
				fmt.Sprintf("your plan allows at most %d workspaces", limits.MaxWorkspaces),
				limits.MaxWorkspaces, count, limits.PlanID)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (q *Quota) failOpen(err error, msg string) {
	if q.logger != nil {
		q.logger.WithError(err).Warn(msg)
	}
}

func (q *Quota) countDenial(resource string) {
	if q.metrics != nil {
		q.metrics.QuotaDenialsTotal.WithLabelValues(resource).Inc()
	}
}
