package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/crewdesk/crewdesk/pkg/auth"
	"github.com/crewdesk/crewdesk/pkg/contextkeys"
	"github.com/crewdesk/crewdesk/pkg/httputil"
	"github.com/crewdesk/crewdesk/pkg/observability"
	"github.com/crewdesk/crewdesk/pkg/workspaces"
)

// maxResolveBody bounds how much of a request body the resolver will read
// when looking for a workspace_id field
const maxResolveBody = 1 << 20

// MembershipResolver is the slice of the workspace service the role gate
// needs
type MembershipResolver interface {
	VerifyWorkspaceAccess(ctx context.Context, userID, workspaceID int64) (*workspaces.Member, error)
}

// WorkspaceContext is attached by the role gate after a membership check
// passes
type WorkspaceContext struct {
	WorkspaceID int64
	Member      *workspaces.Member
}

// GetWorkspaceContext retrieves the gate's membership result
func GetWorkspaceContext(ctx context.Context) (*WorkspaceContext, bool) {
	wc, ok := ctx.Value(contextkeys.WorkspaceKey).(*WorkspaceContext)
	return wc, ok
}

// roleRank orders workspace roles for minimum-role checks
func roleRank(role workspaces.Role) int {
	switch role {
	case workspaces.RoleAdmin:
		return 3
	case workspaces.RoleMember:
		return 2
	case workspaces.RoleViewer:
		return 1
	}
	return 0
}

// allowedRoles names the roles admitted at or above minRole, strongest first
func allowedRoles(minRole workspaces.Role) string {
	names := make([]string, 0, 3)
	for _, role := range []workspaces.Role{workspaces.RoleAdmin, workspaces.RoleMember, workspaces.RoleViewer} {
		if roleRank(role) >= roleRank(minRole) {
			names = append(names, string(role))
		}
	}
	return strings.Join(names, ", ")
}

// ResolveWorkspaceID finds the workspace a request targets. Resolution order:
// a previously cached context value, a workspace_id field in a JSON body, the
// workspace_id query parameter, then the workspace_id and id path variables.
// The body is restored so handlers can decode it again.
func ResolveWorkspaceID(r *http.Request) (int64, *http.Request, bool) {
	if id, ok := contextkeys.GetWorkspaceID(r.Context()); ok {
		return id, r, true
	}

	if id, ok := workspaceIDFromBody(r); ok {
		return id, cacheWorkspaceID(r, id), true
	}
	if raw := r.URL.Query().Get("workspace_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return id, cacheWorkspaceID(r, id), true
		}
	}
	vars := mux.Vars(r)
	for _, key := range []string{"workspace_id", "id"} {
		if raw, ok := vars[key]; ok {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return id, cacheWorkspaceID(r, id), true
			}
		}
	}
	return 0, r, false
}

func cacheWorkspaceID(r *http.Request, id int64) *http.Request {
	return r.WithContext(contextkeys.WithWorkspaceID(r.Context(), id))
}

func workspaceIDFromBody(r *http.Request) (int64, bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return 0, false
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxResolveBody))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return 0, false
	}

	var payload struct {
		WorkspaceID int64 `json:"workspace_id"`
	}
	if json.Unmarshal(raw, &payload) != nil || payload.WorkspaceID == 0 {
		return 0, false
	}
	return payload.WorkspaceID, true
}

// RequireWorkspaceRole gates a route on workspace membership with at least
// minRole. The gate fails closed: missing auth yields 401, an unresolvable
// workspace 400, a membership lookup failure 500. Non-members receive a 403
// that does not reveal whether the workspace exists.
func RequireWorkspaceRole(service MembershipResolver, minRole workspaces.Role, metrics *observability.Metrics, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, ok := auth.FromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			workspaceID, r, ok := ResolveWorkspaceID(r)
			if !ok {
				httputil.WriteBadRequest(w, "workspace id required")
				return
			}

			member, err := service.VerifyWorkspaceAccess(r.Context(), authCtx.UserID, workspaceID)
			if err != nil {
				countRoleDenial(metrics, "error")
				logger.WithError(err).
					WithField("workspace_id", workspaceID).
					Error("membership check failed")
				httputil.WriteInternalError(w, err)
				return
			}
			if member == nil {
				countRoleDenial(metrics, "not_member")
				httputil.WriteForbidden(w, "you do not have access to this workspace")
				return
			}
			if roleRank(member.Role) < roleRank(minRole) {
				countRoleDenial(metrics, "insufficient_role")
				httputil.WriteForbidden(w,
					fmt.Sprintf("this action requires one of these roles: %s", allowedRoles(minRole)))
				return
			}

			ctx := contextkeys.WithWorkspace(r.Context(), &WorkspaceContext{
				WorkspaceID: workspaceID,
				Member:      member,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireMember admits any workspace member
func RequireMember(service MembershipResolver, metrics *observability.Metrics, logger *observability.Logger) func(http.Handler) http.Handler {
	return RequireWorkspaceRole(service, workspaces.RoleViewer, metrics, logger)
}

// RequireEditor admits members who can create and modify content
func RequireEditor(service MembershipResolver, metrics *observability.Metrics, logger *observability.Logger) func(http.Handler) http.Handler {
	return RequireWorkspaceRole(service, workspaces.RoleMember, metrics, logger)
}

// RequireAdmin admits workspace admins only
func RequireAdmin(service MembershipResolver, metrics *observability.Metrics, logger *observability.Logger) func(http.Handler) http.Handler {
	return RequireWorkspaceRole(service, workspaces.RoleAdmin, metrics, logger)
}

func countRoleDenial(metrics *observability.Metrics, reason string) {
	if metrics != nil {
		metrics.RoleDenialsTotal.WithLabelValues(reason).Inc()
	}
}
