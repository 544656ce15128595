// Package middleware implements the request gates: credential verification,
// workspace role checks, plan-limit enforcement, billing status, and rate
// limiting.
//
// Gate failure policy: authentication and role gates fail closed (an internal
// error denies the request), while quota and billing gates fail open (an
// internal error admits the request). Enforcement infrastructure going down
// must never take task creation down with it.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/crewdesk/crewdesk/pkg/auth"
	"github.com/crewdesk/crewdesk/pkg/contextkeys"
	"github.com/crewdesk/crewdesk/pkg/httputil"
	"github.com/crewdesk/crewdesk/pkg/observability"
)

// RequireAuth verifies the access credential and attaches *auth.Context.
// The token is taken from the session cookie first, then from an
// Authorization bearer header. All failures produce the same 401.
func RequireAuth(tokens *auth.TokenManager, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractToken(r)
			if raw == "" {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			claims, err := tokens.VerifyAccessToken(raw)
			if err != nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			authCtx := &auth.Context{
				UserID:   claims.UserID,
				Email:    claims.Email,
				SiteRole: claims.SiteRole,
			}
			ctx := contextkeys.WithAuth(r.Context(), authCtx)
			ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(claims.UserID, 10))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSiteAdmin admits only site administrators. It must run after
// RequireAuth.
func RequireSiteAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, ok := auth.FromContext(r.Context())
		if !ok {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		if !authCtx.IsSiteAdmin() {
			httputil.WriteForbidden(w, "site administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	if cookie, err := r.Cookie(auth.AccessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
