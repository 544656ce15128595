package tasks

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/crewdesk/crewdesk/pkg/auth"
	"github.com/crewdesk/crewdesk/pkg/httputil"
	"github.com/crewdesk/crewdesk/pkg/middleware"
	"github.com/crewdesk/crewdesk/pkg/observability"
)

// Handlers exposes the task HTTP surface. The route assembly wraps the
// mutating routes with the role, quota, and billing gates; the handlers
// re-check only what must hold atomically.
type Handlers struct {
	service Service
	plans   middleware.PlanResolver
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewHandlers creates the task handlers. plans resolves the workspace's plan
// for the insert-time limit; metrics may be nil in tests.
func NewHandlers(service Service, plans middleware.PlanResolver, metrics *observability.Metrics, logger *observability.Logger) *Handlers {
	return &Handlers{
		service: service,
		plans:   plans,
		metrics: metrics,
		logger:  logger,
	}
}

// RegisterProtectedRoutes registers the task endpoints. read gates routes any
// member may call; write gates content mutation; create additionally carries
// the task quota check.
func (h *Handlers) RegisterProtectedRoutes(router *mux.Router, read, write, create func(http.Handler) http.Handler) {
	register := func(path, method string, gate func(http.Handler) http.Handler, fn http.HandlerFunc) {
		var handler http.Handler = fn
		if gate != nil {
			handler = gate(handler)
		}
		router.Handle(path, handler).Methods(method)
	}

	// Deletion takes the write gate without the quota check: a workspace at
	// its task cap must still be able to remove tasks.
	register("/workspaces/{id}/tasks", "GET", read, h.listTasks)
	register("/workspaces/{id}/tasks/{taskID}", "GET", read, h.getTask)
	register("/workspaces/{id}/tasks", "POST", create, h.createTask)
	register("/workspaces/{id}/tasks/{taskID}", "DELETE", write, h.deleteTask)
}

// createTask handles POST /workspaces/{id}/tasks
func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := auth.FromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	workspaceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req CreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.WorkspaceID = workspaceID
	if !httputil.RequireNonEmpty(w, req.Title, "title") {
		return
	}

	task, err := h.service.CreateTask(r.Context(), req, authCtx.UserID, h.insertLimit(r, workspaceID))
	if err != nil {
		switch {
		case errors.Is(err, ErrTaskLimitReached):
			h.countQuotaDenial()
			httputil.WriteErrorMessage(w, http.StatusForbidden, "this workspace has reached its task limit")
		case errors.Is(err, ErrParentNotFound):
			httputil.WriteBadRequest(w, err.Error())
		default:
			h.logger.WithError(err).Error("failed to create task")
			httputil.WriteInternalError(w, fmt.Errorf("failed to create task"))
		}
		return
	}
	httputil.WriteCreated(w, task)
}

// insertLimit resolves the cap the guarded insert should apply; resolution
// failure degrades to an uncapped insert, matching the quota gate's fail-open
// policy
func (h *Handlers) insertLimit(r *http.Request, workspaceID int64) *int {
	if h.plans == nil {
		return nil
	}
	limits, err := h.plans(r.Context(), workspaceID)
	if err != nil {
		h.logger.WithError(err).Warn("insert-time limit check skipped")
		return nil
	}
	return limits.MaxTasksPerWorkspace
}

// listTasks handles GET /workspaces/{id}/tasks
func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	list, err := h.service.ListTasks(r.Context(), workspaceID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list tasks")
		httputil.WriteInternalError(w, fmt.Errorf("failed to list tasks"))
		return
	}
	if list == nil {
		list = []*Task{}
	}
	httputil.WriteSuccess(w, list)
}

// getTask handles GET /workspaces/{id}/tasks/{taskID}
func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	taskID, ok := httputil.ParsePathInt64OrError(w, r, "taskID")
	if !ok {
		return
	}

	task, err := h.service.GetTask(r.Context(), workspaceID, taskID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			httputil.WriteNotFoundError(w, err.Error())
			return
		}
		h.logger.WithError(err).Error("failed to get task")
		httputil.WriteInternalError(w, fmt.Errorf("failed to get task"))
		return
	}
	httputil.WriteSuccess(w, task)
}

// deleteTask handles DELETE /workspaces/{id}/tasks/{taskID}
func (h *Handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	taskID, ok := httputil.ParsePathInt64OrError(w, r, "taskID")
	if !ok {
		return
	}

	if err := h.service.DeleteTask(r.Context(), workspaceID, taskID); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			httputil.WriteNotFoundError(w, err.Error())
			return
		}
		h.logger.WithError(err).Error("failed to delete task")
		httputil.WriteInternalError(w, fmt.Errorf("failed to delete task"))
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) countQuotaDenial() {
	if h.metrics != nil {
		h.metrics.QuotaDenialsTotal.WithLabelValues("tasks").Inc()
	}
}
