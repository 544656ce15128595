package workspaces

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdesk/crewdesk/pkg/notify"
)

type captureQueue struct {
	messages []notify.Message
	fail     error
}

func (q *captureQueue) Enqueue(_ context.Context, msg notify.Message) error {
	if q.fail != nil {
		return q.fail
	}
	q.messages = append(q.messages, msg)
	return nil
}

func newTestService(t *testing.T, queue notify.Queue) (*PostgresService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgresService(db, queue, nil, 7), mock
}

func TestCreateWorkspace(t *testing.T) {
	t.Run("creates workspace and owner membership in one transaction", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO workspaces`).
			WithArgs("Team Alpha", int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow(3, time.Now(), time.Now()))
		mock.ExpectExec(`INSERT INTO workspace_members`).
			WithArgs(int64(3), int64(7)).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		ws, err := svc.CreateWorkspace(context.Background(), 7, "  Team Alpha  ")
		require.NoError(t, err)
		assert.Equal(t, int64(3), ws.ID)
		assert.Equal(t, "Team Alpha", ws.Name)
		assert.Equal(t, int64(7), ws.OwnerID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty name", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		_, err := svc.CreateWorkspace(context.Background(), 7, "   ")
		assert.Error(t, err)
	})
}

func TestVerifyWorkspaceAccess(t *testing.T) {
	t.Run("member", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectQuery(`SELECT workspace_id, user_id, role, created_at`).
			WithArgs(int64(3), int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"workspace_id", "user_id", "role", "created_at"}).
				AddRow(3, 7, "viewer", time.Now()))

		m, err := svc.VerifyWorkspaceAccess(context.Background(), 7, 3)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, RoleViewer, m.Role)
	})

	t.Run("non-member returns nil without error", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectQuery(`SELECT workspace_id, user_id, role, created_at`).
			WithArgs(int64(3), int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"workspace_id"}))

		m, err := svc.VerifyWorkspaceAccess(context.Background(), 99, 3)
		require.NoError(t, err)
		assert.Nil(t, m)
	})
}

func TestDeleteWorkspace_OnlyOwner(t *testing.T) {
	svc, mock := newTestService(t, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT owner_id FROM workspaces`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow(7))
	mock.ExpectRollback()

	err := svc.DeleteWorkspace(context.Background(), 3, 8)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOwnerMembershipImmutable(t *testing.T) {
	t.Run("role change rejected", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectQuery(`SELECT owner_id FROM workspaces`).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow(7))

		err := svc.UpdateMemberRole(context.Background(), 3, 7, RoleViewer)
		assert.ErrorIs(t, err, ErrOwnerImmutable)
	})

	t.Run("removal rejected", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectQuery(`SELECT owner_id FROM workspaces`).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow(7))

		err := svc.RemoveMember(context.Background(), 3, 7)
		assert.ErrorIs(t, err, ErrOwnerImmutable)
	})

	t.Run("non-owner member can be re-roled", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectQuery(`SELECT owner_id FROM workspaces`).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow(7))
		mock.ExpectExec(`UPDATE workspace_members`).
			WithArgs("viewer", int64(3), int64(8)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := svc.UpdateMemberRole(context.Background(), 3, 8, RoleViewer)
		assert.NoError(t, err)
	})

	t.Run("unknown member", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectQuery(`SELECT owner_id FROM workspaces`).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow(7))
		mock.ExpectExec(`UPDATE workspace_members`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := svc.UpdateMemberRole(context.Background(), 3, 42, RoleViewer)
		assert.ErrorIs(t, err, ErrMemberNotFound)
	})
}

func TestCreateInvitation(t *testing.T) {
	t.Run("success enqueues notification with token", func(t *testing.T) {
		queue := &captureQueue{}
		svc, mock := newTestService(t, queue)

		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(int64(3), "bob@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(int64(3), "bob@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery(`INSERT INTO invitations`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(11, time.Now()))
		mock.ExpectQuery(`SELECT id, name, owner_id`).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "owner_id", "created_at", "updated_at"}).
				AddRow(3, "Team Alpha", 7, time.Now(), time.Now()))

		inv, err := svc.CreateInvitation(context.Background(), 3, 7, "Bob@Example.com", RoleMember)
		require.NoError(t, err)
		assert.Equal(t, "bob@example.com", inv.Email)
		assert.Equal(t, int64(11), inv.ID)

		require.Len(t, queue.messages, 1)
		msg := queue.messages[0]
		assert.Equal(t, notify.TypeInvitation, msg.Type)
		assert.Equal(t, "bob@example.com", msg.Recipient)
		assert.Len(t, msg.Data["token"], 64)
		assert.Equal(t, "Team Alpha", msg.Data["workspace"])
	})

	t.Run("existing member", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(int64(3), "bob@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := svc.CreateInvitation(context.Background(), 3, 7, "bob@example.com", RoleMember)
		assert.ErrorIs(t, err, ErrAlreadyMember)
	})

	t.Run("pending invitation exists", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := svc.CreateInvitation(context.Background(), 3, 7, "bob@example.com", RoleMember)
		assert.ErrorIs(t, err, ErrPendingInviteExists)
	})

	t.Run("enqueue failure does not undo the invitation", func(t *testing.T) {
		queue := &captureQueue{fail: notify.ErrQueueFull}
		svc, mock := newTestService(t, queue)

		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery(`INSERT INTO invitations`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(11, time.Now()))
		mock.ExpectQuery(`SELECT id, name, owner_id`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "owner_id", "created_at", "updated_at"}).
				AddRow(3, "Team Alpha", 7, time.Now(), time.Now()))

		inv, err := svc.CreateInvitation(context.Background(), 3, 7, "bob@example.com", RoleMember)
		require.NoError(t, err)
		assert.NotNil(t, inv)
	})
}

func inviteRow(workspaceID int64, email, role string, expiresAt time.Time, acceptedAt interface{}) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "workspace_id", "email", "role", "expires_at", "accepted_at"}).
		AddRow(11, workspaceID, email, role, expiresAt, acceptedAt)
}

func TestAcceptInvitation(t *testing.T) {
	future := time.Now().Add(24 * time.Hour)

	t.Run("unknown token", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, workspace_id, email, role`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		_, err := svc.AcceptInvitation(context.Background(), "nope", 8, "bob@example.com")
		assert.ErrorIs(t, err, ErrInviteInvalid)
	})

	t.Run("email mismatch", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, workspace_id, email, role`).
			WillReturnRows(inviteRow(3, "bob@example.com", "member", future, nil))
		mock.ExpectRollback()

		_, err := svc.AcceptInvitation(context.Background(), "tok", 8, "eve@example.com")
		assert.ErrorIs(t, err, ErrInviteEmailMismatch)
	})

	t.Run("expired", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, workspace_id, email, role`).
			WillReturnRows(inviteRow(3, "bob@example.com", "member", time.Now().Add(-time.Hour), nil))
		mock.ExpectRollback()

		_, err := svc.AcceptInvitation(context.Background(), "tok", 8, "bob@example.com")
		assert.ErrorIs(t, err, ErrInviteExpired)
	})

	t.Run("already accepted", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, workspace_id, email, role`).
			WillReturnRows(inviteRow(3, "bob@example.com", "member", future, time.Now()))
		mock.ExpectRollback()

		_, err := svc.AcceptInvitation(context.Background(), "tok", 8, "bob@example.com")
		assert.ErrorIs(t, err, ErrInviteInvalid)
	})

	t.Run("already a member succeeds without changes", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, workspace_id, email, role`).
			WillReturnRows(inviteRow(3, "bob@example.com", "member", future, nil))
		mock.ExpectQuery(`SELECT role FROM workspace_members`).
			WithArgs(int64(3), int64(8)).
			WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("admin"))
		mock.ExpectRollback()

		m, err := svc.AcceptInvitation(context.Background(), "tok", 8, "bob@example.com")
		require.NoError(t, err)
		assert.Equal(t, RoleAdmin, m.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success creates membership and marks accepted", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, workspace_id, email, role`).
			WillReturnRows(inviteRow(3, "bob@example.com", "member", future, nil))
		mock.ExpectQuery(`SELECT role FROM workspace_members`).
			WillReturnRows(sqlmock.NewRows([]string{"role"}))
		mock.ExpectQuery(`INSERT INTO workspace_members`).
			WithArgs(int64(3), int64(8), "member").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
		mock.ExpectExec(`UPDATE invitations SET accepted_at`).
			WithArgs(int64(11)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		m, err := svc.AcceptInvitation(context.Background(), "tok", 8, "Bob@Example.com")
		require.NoError(t, err)
		assert.Equal(t, RoleMember, m.Role)
		assert.Equal(t, int64(3), m.WorkspaceID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetInviteInfo(t *testing.T) {
	infoRow := func(expiresAt time.Time, acceptedAt interface{}) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"email", "role", "expires_at", "accepted_at", "name"}).
			AddRow("bob@example.com", "member", expiresAt, acceptedAt, "Team Alpha")
	}

	t.Run("unknown token is invalid, not an error", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectQuery(`SELECT i.email, i.role`).
			WillReturnRows(sqlmock.NewRows([]string{"email"}))

		info, err := svc.GetInviteInfo(context.Background(), "nope")
		require.NoError(t, err)
		assert.Equal(t, InviteInvalid, info.State)
	})

	t.Run("expired", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectQuery(`SELECT i.email, i.role`).
			WillReturnRows(infoRow(time.Now().Add(-time.Hour), nil))

		info, err := svc.GetInviteInfo(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, InviteExpired, info.State)
	})

	t.Run("accepted", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectQuery(`SELECT i.email, i.role`).
			WillReturnRows(infoRow(time.Now().Add(time.Hour), time.Now()))

		info, err := svc.GetInviteInfo(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, InviteAccepted, info.State)
	})

	t.Run("valid", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectQuery(`SELECT i.email, i.role`).
			WillReturnRows(infoRow(time.Now().Add(time.Hour), nil))

		info, err := svc.GetInviteInfo(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, InviteValid, info.State)
		assert.Equal(t, "bob@example.com", info.Email)
		assert.Equal(t, RoleMember, info.Role)
		assert.Equal(t, "Team Alpha", info.WorkspaceName)
	})
}

func TestCancelInvitation(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectExec(`DELETE FROM invitations`).
			WithArgs(int64(11), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, svc.CancelInvitation(context.Background(), 3, 11))
	})

	t.Run("not found", func(t *testing.T) {
		svc, mock := newTestService(t, nil)

		mock.ExpectExec(`DELETE FROM invitations`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := svc.CancelInvitation(context.Background(), 3, 11)
		assert.ErrorIs(t, err, ErrInviteNotFound)
	})
}

func TestCleanupExpiredInvitations(t *testing.T) {
	svc, mock := newTestService(t, nil)

	mock.ExpectExec(`DELETE FROM invitations`).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := svc.CleanupExpiredInvitations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
