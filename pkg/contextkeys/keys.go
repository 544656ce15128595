// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/crewdesk/crewdesk/pkg/contextkeys"
//   ctx = context.WithValue(ctx, contextkeys.AuthKey, authCtx)
//   authCtx := ctx.Value(contextkeys.AuthKey).(*auth.Context)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.Context
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: All protected API endpoints, workspace role gates
	// Type: *auth.Context
	AuthKey Key = "auth_context"

	// WorkspaceKey contains *middleware.WorkspaceContext
	// Set by: middleware.RequireWorkspaceRole after a role gate passes
	// Required by: Workspace-scoped handlers, quota middleware
	// Type: *middleware.WorkspaceContext
	WorkspaceKey Key = "workspace_context"

	// WorkspaceIDKey contains the resolved workspace ID (int64)
	// Set by: middleware.ResolveWorkspaceID on first resolution
	// Used by: Quota and billing gates to avoid re-resolving
	// Type: int64
	WorkspaceIDKey Key = "workspace_id"

	// SubscriptionKey contains *middleware.SubscriptionContext
	// Set by: middleware.RequireActiveSubscription when a gate passes
	// Used by: Handlers that branch on plan features
	// Type: *middleware.SubscriptionContext
	SubscriptionKey Key = "subscription_context"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: Auth middleware after user authentication
	// Used by: Logger, user-scoped operations
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: Observability middleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// Helper functions for type-safe context operations

// WithAuth adds authentication context to the context
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// WithWorkspace adds workspace context to the context
func WithWorkspace(ctx context.Context, ws interface{}) context.Context {
	return context.WithValue(ctx, WorkspaceKey, ws)
}

// WithWorkspaceID caches the resolved workspace ID on the context
func WithWorkspaceID(ctx context.Context, workspaceID int64) context.Context {
	return context.WithValue(ctx, WorkspaceIDKey, workspaceID)
}

// WithSubscription adds subscription context to the context
func WithSubscription(ctx context.Context, sub interface{}) context.Context {
	return context.WithValue(ctx, SubscriptionKey, sub)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetWorkspaceID retrieves the cached workspace ID from context.
// The second return is false when no resolution has happened yet.
func GetWorkspaceID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(WorkspaceIDKey).(int64)
	return id, ok
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
