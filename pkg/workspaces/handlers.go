package workspaces

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/crewdesk/crewdesk/pkg/auth"
	"github.com/crewdesk/crewdesk/pkg/httputil"
	"github.com/crewdesk/crewdesk/pkg/observability"
)

// Gate wraps a handler with an access check. The route assembly supplies
// gates built from the membership resolver; tests pass nil for no gating.
type Gate func(http.Handler) http.Handler

// Gates carries the access checks the route assembly hangs on the workspace
// routes. Any nil gate leaves its routes ungated.
type Gates struct {
	// Member gates routes any workspace member may call
	Member Gate
	// Admin gates the management routes
	Admin Gate
	// Create gates workspace creation (the per-user workspace quota)
	Create Gate
	// Invite gates invitation creation (admin plus billing and seat quota)
	Invite Gate
}

// PlanCacheInvalidator drops cached plan limits for a workspace. Deleting a
// workspace must not leave a stale cache entry behind its id.
type PlanCacheInvalidator interface {
	Invalidate(ctx context.Context, workspaceID int64)
}

// Handlers exposes the workspace, member, and invitation HTTP surface
type Handlers struct {
	service   Service
	planCache PlanCacheInvalidator
	metrics   *observability.Metrics
	logger    *observability.Logger
}

// NewHandlers creates the workspace handlers. planCache and metrics may be
// nil in tests.
func NewHandlers(service Service, planCache PlanCacheInvalidator, metrics *observability.Metrics, logger *observability.Logger) *Handlers {
	return &Handlers{
		service:   service,
		planCache: planCache,
		metrics:   metrics,
		logger:    logger,
	}
}

// RegisterPublicRoutes registers the unauthenticated invitation endpoints
func (h *Handlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/invitations/{token}", h.inviteInfo).Methods("GET")
}

// RegisterProtectedRoutes registers the authenticated endpoints
func (h *Handlers) RegisterProtectedRoutes(router *mux.Router, gates Gates) {
	gated(router, "/workspaces", "POST", gates.Create, h.createWorkspace)
	router.HandleFunc("/workspaces", h.listWorkspaces).Methods("GET")
	router.HandleFunc("/invitations/accept", h.acceptInvitation).Methods("POST")

	gated(router, "/workspaces/{id}", "GET", gates.Member, h.getWorkspace)
	gated(router, "/workspaces/{id}/members", "GET", gates.Member, h.listMembers)
	gated(router, "/workspaces/{id}/invitations", "GET", gates.Member, h.listInvitations)

	gated(router, "/workspaces/{id}", "PUT", gates.Admin, h.updateWorkspace)
	gated(router, "/workspaces/{id}", "DELETE", gates.Admin, h.deleteWorkspace)
	gated(router, "/workspaces/{id}/members/{userID}", "PUT", gates.Admin, h.updateMemberRole)
	gated(router, "/workspaces/{id}/members/{userID}", "DELETE", gates.Admin, h.removeMember)
	gated(router, "/workspaces/{id}/invitations", "POST", gates.Invite, h.createInvitation)
	gated(router, "/workspaces/{id}/invitations/{invitationID}", "DELETE", gates.Admin, h.cancelInvitation)
}

func gated(router *mux.Router, path, method string, gate Gate, fn http.HandlerFunc) {
	var handler http.Handler = fn
	if gate != nil {
		handler = gate(handler)
	}
	router.Handle(path, handler).Methods(method)
}

// createWorkspace handles POST /workspaces
func (h *Handlers) createWorkspace(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := auth.FromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	ws, err := h.service.CreateWorkspace(r.Context(), authCtx.UserID, req.Name)
	if err != nil {
		h.logger.WithError(err).Error("failed to create workspace")
		httputil.WriteInternalError(w, errors.New("failed to create workspace"))
		return
	}
	httputil.WriteCreated(w, ws)
}

// listWorkspaces handles GET /workspaces
func (h *Handlers) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := auth.FromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	list, err := h.service.ListUserWorkspaces(r.Context(), authCtx.UserID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list workspaces")
		httputil.WriteInternalError(w, errors.New("failed to list workspaces"))
		return
	}
	if list == nil {
		list = []*Workspace{}
	}
	httputil.WriteSuccess(w, list)
}

// getWorkspace handles GET /workspaces/{id}
func (h *Handlers) getWorkspace(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	ws, err := h.service.GetWorkspace(r.Context(), workspaceID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get workspace")
		return
	}
	httputil.WriteSuccess(w, ws)
}

// updateWorkspace handles PUT /workspaces/{id}
func (h *Handlers) updateWorkspace(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	ws, err := h.service.UpdateWorkspace(r.Context(), workspaceID, req.Name)
	if err != nil {
		h.writeServiceError(w, err, "failed to update workspace")
		return
	}
	httputil.WriteSuccess(w, ws)
}

// deleteWorkspace handles DELETE /workspaces/{id}. The admin gate admits any
// workspace admin; the service still restricts deletion to the owner.
func (h *Handlers) deleteWorkspace(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := auth.FromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	workspaceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteWorkspace(r.Context(), workspaceID, authCtx.UserID); err != nil {
		h.writeServiceError(w, err, "failed to delete workspace")
		return
	}
	if h.planCache != nil {
		h.planCache.Invalidate(r.Context(), workspaceID)
	}
	httputil.WriteNoContent(w)
}

// listMembers handles GET /workspaces/{id}/members
func (h *Handlers) listMembers(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), workspaceID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list members")
		return
	}
	if members == nil {
		members = []*Member{}
	}
	httputil.WriteSuccess(w, members)
}

// updateMemberRole handles PUT /workspaces/{id}/members/{userID}
func (h *Handlers) updateMemberRole(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userID")
	if !ok {
		return
	}

	var req struct {
		Role Role `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.Role.Valid() {
		httputil.WriteBadRequest(w, "invalid role")
		return
	}

	if err := h.service.UpdateMemberRole(r.Context(), workspaceID, userID, req.Role); err != nil {
		h.writeServiceError(w, err, "failed to update member role")
		return
	}
	httputil.WriteSuccessMessage(w, "member role updated", nil)
}

// removeMember handles DELETE /workspaces/{id}/members/{userID}
func (h *Handlers) removeMember(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userID")
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), workspaceID, userID); err != nil {
		h.writeServiceError(w, err, "failed to remove member")
		return
	}
	httputil.WriteNoContent(w)
}

// createInvitation handles POST /workspaces/{id}/invitations
func (h *Handlers) createInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := auth.FromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	workspaceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Email string `json:"email"`
		Role  Role   `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}
	if req.Role == "" {
		req.Role = RoleMember
	}
	if !req.Role.Valid() {
		httputil.WriteBadRequest(w, "invalid role")
		return
	}

	inv, err := h.service.CreateInvitation(r.Context(), workspaceID, authCtx.UserID, req.Email, req.Role)
	if err != nil {
		h.writeServiceError(w, err, "failed to create invitation")
		return
	}
	httputil.WriteCreated(w, inv)
}

// listInvitations handles GET /workspaces/{id}/invitations
func (h *Handlers) listInvitations(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	list, err := h.service.ListInvitations(r.Context(), workspaceID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list invitations")
		return
	}
	if list == nil {
		list = []*Invitation{}
	}
	httputil.WriteSuccess(w, list)
}

// cancelInvitation handles DELETE /workspaces/{id}/invitations/{invitationID}
func (h *Handlers) cancelInvitation(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	invitationID, ok := httputil.ParsePathInt64OrError(w, r, "invitationID")
	if !ok {
		return
	}

	if err := h.service.CancelInvitation(r.Context(), workspaceID, invitationID); err != nil {
		h.writeServiceError(w, err, "failed to cancel invitation")
		return
	}
	httputil.WriteNoContent(w)
}

// inviteInfo handles GET /invitations/{token}. The endpoint is public; all
// token states return 200 with a state field so the client can render the
// right screen.
func (h *Handlers) inviteInfo(w http.ResponseWriter, r *http.Request) {
	token, ok := httputil.ParsePathStringOrError(w, r, "token")
	if !ok {
		return
	}

	info, err := h.service.GetInviteInfo(r.Context(), token)
	if err != nil {
		h.logger.WithError(err).Error("failed to look up invitation")
		httputil.WriteInternalError(w, errors.New("failed to look up invitation"))
		return
	}
	httputil.WriteSuccess(w, info)
}

// acceptInvitation handles POST /invitations/accept
func (h *Handlers) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := auth.FromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Token, "token") {
		return
	}

	member, err := h.service.AcceptInvitation(r.Context(), req.Token, authCtx.UserID, authCtx.Email)
	if err != nil {
		h.writeServiceError(w, err, "failed to accept invitation")
		return
	}
	httputil.WriteSuccess(w, member)
}

// writeServiceError maps service sentinels to HTTP responses
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, ErrWorkspaceNotFound),
		errors.Is(err, ErrMemberNotFound),
		errors.Is(err, ErrInviteNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrInviteEmailMismatch):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, ErrOwnerImmutable),
		errors.Is(err, ErrInviteInvalid),
		errors.Is(err, ErrInviteExpired):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, ErrAlreadyMember),
		errors.Is(err, ErrPendingInviteExists):
		httputil.WriteConflict(w, err.Error())
	default:
		h.logger.WithError(err).Error(logMsg)
		httputil.WriteInternalError(w, errors.New(logMsg))
	}
}
