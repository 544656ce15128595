// Package workspaces implements workspace membership and the invitation
// lifecycle: workspace CRUD, the membership resolver used by the role gates,
// owner-immutable member management, and token-based invitations.
package workspaces

import (
	"context"
	"errors"
	"time"
)

// Role is a workspace-scoped role, distinct from site roles
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Valid reports whether the role is one of the known workspace roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// CanEdit reports whether the role may create and modify content
func (r Role) CanEdit() bool {
	return r == RoleAdmin || r == RoleMember
}

// Workspace is a tenant boundary. The owner always holds an admin
// membership that cannot be removed or re-roled.
type Workspace struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member is a user's membership in a workspace, joined with user details
// for listing
type Member struct {
	WorkspaceID int64     `json:"workspace_id"`
	UserID      int64     `json:"user_id"`
	Role        Role      `json:"role"`
	Email       string    `json:"email,omitempty"`
	Name        string    `json:"name,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Invitation is a pending or accepted workspace invite. Only the token's
// sha256 digest is stored.
type Invitation struct {
	ID          int64      `json:"id"`
	WorkspaceID int64      `json:"workspace_id"`
	Email       string     `json:"email"`
	Role        Role       `json:"role"`
	ExpiresAt   time.Time  `json:"expires_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CreatedBy   int64      `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

// InviteState classifies an invitation token for the unauthenticated
// info endpoint
type InviteState string

const (
	InviteInvalid  InviteState = "invalid"
	InviteExpired  InviteState = "expired"
	InviteAccepted InviteState = "accepted"
	InviteValid    InviteState = "valid"
)

// InviteInfo is the public view of an invitation token
type InviteInfo struct {
	State         InviteState `json:"state"`
	WorkspaceName string      `json:"workspace_name,omitempty"`
	Email         string      `json:"email,omitempty"`
	Role          Role        `json:"role,omitempty"`
}

// Sentinel errors surfaced to the HTTP layer
var (
	ErrWorkspaceNotFound   = errors.New("workspace not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrNotOwner            = errors.New("only the workspace owner may do this")
	ErrOwnerImmutable      = errors.New("the workspace owner's membership cannot be changed")
	ErrAlreadyMember       = errors.New("user is already a member of this workspace")
	ErrPendingInviteExists = errors.New("a pending invitation already exists for this email")
	ErrInviteInvalid       = errors.New("invalid invitation")
	ErrInviteExpired       = errors.New("invitation has expired")
	ErrInviteEmailMismatch = errors.New("invitation was issued to a different email")
	ErrInviteNotFound      = errors.New("invitation not found")
)

// Service is the workspace service interface consumed by handlers and
// middleware
type Service interface {
	CreateWorkspace(ctx context.Context, ownerID int64, name string) (*Workspace, error)
	GetWorkspace(ctx context.Context, workspaceID int64) (*Workspace, error)
	ListUserWorkspaces(ctx context.Context, userID int64) ([]*Workspace, error)
	UpdateWorkspace(ctx context.Context, workspaceID int64, name string) (*Workspace, error)
	DeleteWorkspace(ctx context.Context, workspaceID, callerID int64) error

	// VerifyWorkspaceAccess returns the caller's membership, or nil when the
	// user is not a member. The error return is reserved for datastore
	// failures.
	VerifyWorkspaceAccess(ctx context.Context, userID, workspaceID int64) (*Member, error)

	ListMembers(ctx context.Context, workspaceID int64) ([]*Member, error)
	UpdateMemberRole(ctx context.Context, workspaceID, userID int64, role Role) error
	RemoveMember(ctx context.Context, workspaceID, userID int64) error

	CreateInvitation(ctx context.Context, workspaceID, inviterID int64, email string, role Role) (*Invitation, error)
	ListInvitations(ctx context.Context, workspaceID int64) ([]*Invitation, error)
	GetInviteInfo(ctx context.Context, token string) (*InviteInfo, error)
	AcceptInvitation(ctx context.Context, token string, userID int64, userEmail string) (*Member, error)
	CancelInvitation(ctx context.Context, workspaceID, invitationID int64) error

	CountPendingInvitations(ctx context.Context, workspaceID int64) (int, error)
	CleanupExpiredInvitations(ctx context.Context) (int64, error)
}
