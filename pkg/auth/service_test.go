package auth

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

func newTestService(t *testing.T, queue notify.Queue, maxUsers int) (*PostgresService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens := NewTokenManager(testSigningSecret, 15*time.Minute, 7*24*time.Hour)
	svc := NewPostgresService(db, tokens, queue, nil, ServiceConfig{
		MaxRegisteredUsers: maxUsers,
	}, nil)
	return svc, mock
}

func userRows(passwordHash string, verified bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "name", "password_hash", "site_role", "email_verified", "created_at", "updated_at",
	}).AddRow(1, "alice@example.com", "Alice", passwordHash, "member", verified, time.Now(), time.Now())
}

func TestLogin(t *testing.T) {
	hash, err := HashPassword("Passw0rd!")
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		svc, mock := newTestService(t, nil, 0)

		mock.ExpectQuery(`SELECT id, email, name, password_hash, site_role, email_verified, created_at, updated_at`).
			WithArgs("alice@example.com").
			WillReturnRows(userRows(hash, true))

		session, err := svc.Login(context.Background(), "Alice@Example.com", "Passw0rd!")
		require.NoError(t, err)
		assert.NotEmpty(t, session.AccessToken)
		assert.NotEmpty(t, session.RefreshToken)
		assert.Equal(t, "alice@example.com", session.User.Email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown email", func(t *testing.T) {
		svc, mock := newTestService(t, nil, 0)

		mock.ExpectQuery(`SELECT id, email, name`).
			WithArgs("ghost@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := svc.Login(context.Background(), "ghost@example.com", "whatever")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, mock := newTestService(t, nil, 0)

		mock.ExpectQuery(`SELECT id, email, name`).
			WithArgs("alice@example.com").
			WillReturnRows(userRows(hash, true))

		_, err := svc.Login(context.Background(), "alice@example.com", "WrongPass1")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("both failures yield the same error", func(t *testing.T) {
		svc, mock := newTestService(t, nil, 0)

		mock.ExpectQuery(`SELECT id, email, name`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		_, errUnknown := svc.Login(context.Background(), "ghost@example.com", "x")

		mock.ExpectQuery(`SELECT id, email, name`).
			WillReturnRows(userRows(hash, true))
		_, errWrong := svc.Login(context.Background(), "alice@example.com", "x")

		assert.Equal(t, errUnknown.Error(), errWrong.Error())
	})
}

func TestRegister_ValidationOrder(t *testing.T) {
	// None of these reach the database
	svc, _ := newTestService(t, nil, 0)

	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr string
	}{
		{
			name:    "missing fields",
			req:     RegisterRequest{Email: "", Name: "", Password: ""},
			wantErr: "required",
		},
		{
			name:    "bad email",
			req:     RegisterRequest{Email: "not-an-email", Name: "A", Password: "Passw0rd", AcceptedTerms: true},
			wantErr: "valid email",
		},
		{
			name:    "terms not accepted",
			req:     RegisterRequest{Email: "a@b.com", Name: "A", Password: "Passw0rd", AcceptedTerms: false},
			wantErr: "terms",
		},
		{
			name:    "weak password",
			req:     RegisterRequest{Email: "a@b.com", Name: "A", Password: "password", AcceptedTerms: true},
			wantErr: "uppercase",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.req)
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Contains(t, validationErr.Message, tt.wantErr)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	queue := &captureQueue{}
	svc, mock := newTestService(t, queue, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("taken@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:         "taken@example.com",
		Name:          "Bob",
		Password:      "Passw0rd",
		AcceptedTerms: true,
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	// Same generic shape as other validation failures; existence is not revealed
	assert.NotContains(t, validationErr.Message, "exists")
	assert.NotContains(t, validationErr.Message, "taken")
	assert.Empty(t, queue.messages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_CapReached(t *testing.T) {
	svc, mock := newTestService(t, nil, 10)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectRollback()

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:         "new@example.com",
		Name:          "New",
		Password:      "Passw0rd",
		AcceptedTerms: true,
	})
	assert.ErrorIs(t, err, ErrRegistrationClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_Success(t *testing.T) {
	queue := &captureQueue{}
	svc, mock := newTestService(t, queue, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("first@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(1, time.Now(), time.Now()))
	mock.ExpectQuery(`INSERT INTO workspaces`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
	mock.ExpectExec(`INSERT INTO workspace_members`).
		WithArgs(int64(100), int64(1)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	session, err := svc.Register(context.Background(), RegisterRequest{
		Email:         "first@example.com",
		Name:          "First",
		Password:      "Passw0rd",
		AcceptedTerms: true,
	})
	require.NoError(t, err)

	// First registered user becomes a site admin
	assert.Equal(t, SiteRoleAdmin, session.User.SiteRole)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)

	// Verification notification enqueued after commit
	require.Len(t, queue.messages, 1)
	assert.Equal(t, notify.TypeVerification, queue.messages[0].Type)
	assert.Equal(t, "first@example.com", queue.messages[0].Recipient)
	assert.NotEmpty(t, queue.messages[0].Data["token"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegister_EnqueueFailureDoesNotFail(t *testing.T) {
	queue := &captureQueue{fail: notify.ErrQueueFull}
	svc, mock := newTestService(t, queue, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(2, time.Now(), time.Now()))
	mock.ExpectQuery(`INSERT INTO workspaces`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(200))
	mock.ExpectExec(`INSERT INTO workspace_members`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	session, err := svc.Register(context.Background(), RegisterRequest{
		Email:         "second@example.com",
		Name:          "Second",
		Password:      "Passw0rd",
		AcceptedTerms: true,
	})
	require.NoError(t, err)
	assert.Equal(t, SiteRoleMember, session.User.SiteRole)
}

func TestRefresh(t *testing.T) {
	t.Run("re-issues only the access token", func(t *testing.T) {
		svc, mock := newTestService(t, nil, 0)

		refresh, err := svc.tokens.IssueRefreshToken(testUser())
		require.NoError(t, err)

		mock.ExpectQuery(`SELECT id, email, name`).
			WithArgs(int64(42)).
			WillReturnRows(userRows("hash", true))

		accessToken, user, err := svc.Refresh(context.Background(), refresh)
		require.NoError(t, err)
		assert.NotEmpty(t, accessToken)
		assert.Equal(t, int64(1), user.ID)

		claims, err := svc.tokens.VerifyAccessToken(accessToken)
		require.NoError(t, err)
		assert.Equal(t, "access", claims.Type)
	})

	t.Run("rejects access token", func(t *testing.T) {
		svc, _ := newTestService(t, nil, 0)

		access, err := svc.tokens.IssueAccessToken(testUser())
		require.NoError(t, err)

		_, _, err = svc.Refresh(context.Background(), access)
		assert.ErrorIs(t, err, ErrTokenWrongType)
	})

	t.Run("rejects token for deleted user", func(t *testing.T) {
		svc, mock := newTestService(t, nil, 0)

		refresh, err := svc.tokens.IssueRefreshToken(testUser())
		require.NoError(t, err)

		mock.ExpectQuery(`SELECT id, email, name`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, _, err = svc.Refresh(context.Background(), refresh)
		assert.Error(t, err)
	})
}

func TestForgotPassword(t *testing.T) {
	t.Run("unknown email succeeds without side effects", func(t *testing.T) {
		queue := &captureQueue{}
		svc, mock := newTestService(t, queue, 0)

		mock.ExpectQuery(`SELECT id, email, name`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		err := svc.ForgotPassword(context.Background(), "ghost@example.com")
		require.NoError(t, err)
		assert.Empty(t, queue.messages)
	})

	t.Run("known email stores hash and enqueues reset", func(t *testing.T) {
		queue := &captureQueue{}
		svc, mock := newTestService(t, queue, 0)

		mock.ExpectQuery(`SELECT id, email, name`).
			WillReturnRows(userRows("hash", true))
		mock.ExpectExec(`UPDATE users`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := svc.ForgotPassword(context.Background(), "alice@example.com")
		require.NoError(t, err)
		require.Len(t, queue.messages, 1)
		assert.Equal(t, notify.TypePasswordReset, queue.messages[0].Type)
		// The plaintext token goes out; only its hash was stored
		assert.Len(t, queue.messages[0].Data["token"], 64)
	})
}

func TestResetPassword(t *testing.T) {
	t.Run("invalid or expired token", func(t *testing.T) {
		svc, mock := newTestService(t, nil, 0)

		mock.ExpectExec(`UPDATE users`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := svc.ResetPassword(context.Background(), "bogus", "NewPassw0rd")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("weak password checked before token", func(t *testing.T) {
		svc, _ := newTestService(t, nil, 0)

		err := svc.ResetPassword(context.Background(), "token", "weak")
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("success", func(t *testing.T) {
		svc, mock := newTestService(t, nil, 0)

		mock.ExpectExec(`UPDATE users`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := svc.ResetPassword(context.Background(), "good-token", "NewPassw0rd")
		assert.NoError(t, err)
	})
}

func TestVerifyEmail(t *testing.T) {
	t.Run("success enqueues welcome once", func(t *testing.T) {
		queue := &captureQueue{}
		svc, mock := newTestService(t, queue, 0)

		mock.ExpectQuery(`UPDATE users`).
			WillReturnRows(sqlmock.NewRows([]string{"email", "name"}).
				AddRow("alice@example.com", "Alice"))

		err := svc.VerifyEmail(context.Background(), "valid-token")
		require.NoError(t, err)
		require.Len(t, queue.messages, 1)
		assert.Equal(t, notify.TypeWelcome, queue.messages[0].Type)
	})

	t.Run("replay fails and sends nothing", func(t *testing.T) {
		queue := &captureQueue{}
		svc, mock := newTestService(t, queue, 0)

		// The guarded transition matches no rows the second time
		mock.ExpectQuery(`UPDATE users`).
			WillReturnRows(sqlmock.NewRows([]string{"email", "name"}))

		err := svc.VerifyEmail(context.Background(), "valid-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Empty(t, queue.messages)
	})
}

func TestResendVerification(t *testing.T) {
	t.Run("already verified is silent", func(t *testing.T) {
		queue := &captureQueue{}
		svc, mock := newTestService(t, queue, 0)

		mock.ExpectQuery(`SELECT id, email, name`).
			WillReturnRows(userRows("hash", true))

		err := svc.ResendVerification(context.Background(), "alice@example.com")
		require.NoError(t, err)
		assert.Empty(t, queue.messages)
	})

	t.Run("unverified gets a fresh token", func(t *testing.T) {
		queue := &captureQueue{}
		svc, mock := newTestService(t, queue, 0)

		mock.ExpectQuery(`SELECT id, email, name`).
			WillReturnRows(userRows("hash", false))
		mock.ExpectExec(`UPDATE users`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := svc.ResendVerification(context.Background(), "alice@example.com")
		require.NoError(t, err)
		require.Len(t, queue.messages, 1)
		assert.Equal(t, notify.TypeVerification, queue.messages[0].Type)
	})
}

func TestSoftDeleteUser(t *testing.T) {
	t.Run("anonymizes in place", func(t *testing.T) {
		svc, mock := newTestService(t, nil, 0)

		mock.ExpectExec(`UPDATE users`).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, svc.SoftDeleteUser(context.Background(), 1))
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, mock := newTestService(t, nil, 0)

		mock.ExpectExec(`UPDATE users`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := svc.SoftDeleteUser(context.Background(), 99)
		assert.Error(t, err)
	})
}
