// Package auth implements credentials and sessions: password hashing and
// policy, JWT access/refresh tokens, single-use email tokens, cookies, and
// the HTTP handlers for the authentication surface.
package auth

import (
	"context"
	"time"
)

// SiteRole is the service-wide role, distinct from workspace roles. The
// first registered user becomes a site admin; everyone after is a member.
type SiteRole string

const (
	SiteRoleAdmin  SiteRole = "admin"
	SiteRoleMember SiteRole = "member"
)

// User represents a registered account
type User struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	SiteRole      SiteRole  `json:"site_role"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// PasswordHash never leaves the service layer
	PasswordHash string `json:"-"`
}

// Context carries the authenticated identity through the request context
type Context struct {
	UserID   int64
	Email    string
	SiteRole SiteRole
}

// IsSiteAdmin returns true for service-wide administrators
func (c *Context) IsSiteAdmin() bool {
	return c != nil && c.SiteRole == SiteRoleAdmin
}

// Session is the pair of credentials issued at login
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *User
}

// RegisterRequest is the payload for account creation
type RegisterRequest struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	Password      string `json:"password"`
	AcceptedTerms bool   `json:"accepted_terms"`
}

// LoginRequest is the payload for credential verification
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Service is the authentication service interface consumed by handlers and
// middleware.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Session, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (string, *User, error)
	GetUserByID(ctx context.Context, userID int64) (*User, error)

	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error

	SoftDeleteUser(ctx context.Context, userID int64) error
}
