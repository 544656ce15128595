package auth

import (
	"context"

	"github.com/crewdesk/crewdesk/pkg/contextkeys"
)

// FromContext retrieves the authenticated identity placed on the request
// context by the credential middleware
func FromContext(ctx context.Context) (*Context, bool) {
	authCtx, ok := ctx.Value(contextkeys.AuthKey).(*Context)
	return authCtx, ok
}
