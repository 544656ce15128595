package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/crewdesk/crewdesk/pkg/notify"
	"github.com/crewdesk/crewdesk/pkg/observability"
)

// Sentinel errors surfaced to the HTTP layer
var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// the two cases are indistinguishable to clients
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidToken covers expired, consumed, and unknown email tokens
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrRegistrationClosed is returned once the registered-user cap is hit
	ErrRegistrationClosed = errors.New("registration is closed")
)

// ValidationError is a user-facing registration failure. The message for an
// already-registered email is the same generic one as any other validation
// failure; account existence is never revealed.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Seeder applies starter content inside the registration transaction
type Seeder interface {
	ApplyStarterContent(ctx context.Context, tx *sql.Tx, workspaceID, userID int64) error
}

// ServiceConfig holds the tunables for the postgres auth service
type ServiceConfig struct {
	// MaxRegisteredUsers caps total registrations; 0 means unlimited
	MaxRegisteredUsers int
	VerifyTokenTTL     time.Duration
	ResetTokenTTL      time.Duration
}

// PostgresService implements Service on PostgreSQL
type PostgresService struct {
	db     *sql.DB
	tokens *TokenManager
	queue  notify.Queue
	seeder Seeder
	cfg    ServiceConfig
	logger *observability.Logger
}

// NewPostgresService creates a new auth service. queue and seeder may be nil
// in tests.
func NewPostgresService(db *sql.DB, tokens *TokenManager, queue notify.Queue, seeder Seeder, cfg ServiceConfig, logger *observability.Logger) *PostgresService {
	if cfg.VerifyTokenTTL <= 0 {
		cfg.VerifyTokenTTL = 24 * time.Hour
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = time.Hour
	}
	return &PostgresService{
		db:     db,
		tokens: tokens,
		queue:  queue,
		seeder: seeder,
		cfg:    cfg,
		logger: logger,
	}
}

// dummyHash keeps login timing uniform when the email is unknown
var dummyHash, _ = HashPassword("timing-equalizer-0")

// Register creates the account, its personal workspace, the owner's admin
// membership, and starter content in a single transaction.
//
// Validation order: required fields, email format, terms, password policy,
// then existing email. The existing-email failure uses the same generic
// message as the rest.
func (s *PostgresService) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	if req.Email == "" || req.Name == "" || req.Password == "" {
		return nil, &ValidationError{Message: "email, name and password are required"}
	}
	if !emailPattern.MatchString(req.Email) {
		return nil, &ValidationError{Message: "a valid email address is required"}
	}
	if !req.AcceptedTerms {
		return nil, &ValidationError{Message: "the terms of service must be accepted"}
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	passwordHash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	verifyToken, err := GenerateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification token: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var userCount int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&userCount); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	// The cap fails closed: an exact count that cannot be taken means no
	// registration either, via the error return above.
	if s.cfg.MaxRegisteredUsers > 0 && userCount >= s.cfg.MaxRegisteredUsers {
		return nil, ErrRegistrationClosed
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, req.Email,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, &ValidationError{Message: "registration could not be completed with the provided details"}
	}

	siteRole := SiteRoleMember
	if userCount == 0 {
		siteRole = SiteRoleAdmin
	}

	user := &User{
		Email:    req.Email,
		Name:     req.Name,
		SiteRole: siteRole,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (email, name, password_hash, site_role, email_verified,
			verification_token_hash, verification_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		req.Email, req.Name, passwordHash, string(siteRole),
		HashToken(verifyToken), time.Now().Add(s.cfg.VerifyTokenTTL),
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	var workspaceID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO workspaces (name, owner_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id`,
		fmt.Sprintf("%s's Workspace", req.Name), user.ID,
	).Scan(&workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role, created_at)
		VALUES ($1, $2, 'admin', NOW())`,
		workspaceID, user.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create owner membership: %w", err)
	}

	if s.seeder != nil {
		if err := s.seeder.ApplyStarterContent(ctx, tx, workspaceID, user.ID); err != nil {
			return nil, fmt.Errorf("failed to seed starter content: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	session, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}

	s.enqueue(ctx, notify.NewMessage(notify.TypeVerification, user.Email, map[string]string{
		"name":  user.Name,
		"token": verifyToken,
	}))

	return session, nil
}

// Login verifies credentials and issues a session. Unknown email and wrong
// password both return ErrInvalidCredentials.
func (s *PostgresService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Burn a bcrypt comparison so the miss costs the same as a hit
			CheckPassword(dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	return s.issueSession(user)
}

// Refresh validates the refresh token, re-fetches the user, and issues a new
// access token. The refresh token itself is not rotated.
func (s *PostgresService) Refresh(ctx context.Context, refreshToken string) (string, *User, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", nil, err
	}

	user, err := s.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return "", nil, err
	}

	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return "", nil, err
	}
	return accessToken, user, nil
}

// GetUserByID fetches an active user
func (s *PostgresService) GetUserByID(ctx context.Context, userID int64) (*User, error) {
	user := &User{}
	var siteRole string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, site_role, email_verified, created_at, updated_at
		FROM users
		WHERE id = $1 AND deleted_at IS NULL`,
		userID,
	).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &siteRole,
		&user.EmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.SiteRole = SiteRole(siteRole)
	return user, nil
}

// ForgotPassword stores a hashed single-use reset token and enqueues the
// reset notification. Unknown emails return success without side effects.
func (s *PostgresService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	token, err := GenerateSecureToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE users
		SET reset_token_hash = $1, reset_expires_at = $2, updated_at = NOW()
		WHERE id = $3`,
		HashToken(token), time.Now().Add(s.cfg.ResetTokenTTL), user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	s.enqueue(ctx, notify.NewMessage(notify.TypePasswordReset, user.Email, map[string]string{
		"name":  user.Name,
		"token": token,
	}))
	return nil
}

// ResetPassword consumes a reset token and sets the new password
func (s *PostgresService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return &ValidationError{Message: err.Error()}
	}

	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $1, reset_token_hash = NULL, reset_expires_at = NULL, updated_at = NOW()
		WHERE reset_token_hash = $2 AND reset_expires_at > NOW() AND deleted_at IS NULL`,
		passwordHash, HashToken(token),
	)
	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check reset result: %w", err)
	}
	if rows == 0 {
		return ErrInvalidToken
	}
	return nil
}

// VerifyEmail consumes a verification token. The welcome notification is
// enqueued only on the unverified-to-verified transition, so re-submitting
// the token cannot send it twice.
func (s *PostgresService) VerifyEmail(ctx context.Context, token string) error {
	var email, name string
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET email_verified = TRUE, verification_token_hash = NULL,
			verification_expires_at = NULL, updated_at = NOW()
		WHERE verification_token_hash = $1 AND verification_expires_at > NOW()
			AND email_verified = FALSE AND deleted_at IS NULL
		RETURNING email, name`,
		HashToken(token),
	).Scan(&email, &name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to verify email: %w", err)
	}

	s.enqueue(ctx, notify.NewMessage(notify.TypeWelcome, email, map[string]string{
		"name": name,
	}))
	return nil
}

// ResendVerification issues a fresh verification token for an unverified
// account. Unknown or already-verified emails return success silently.
func (s *PostgresService) ResendVerification(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user.EmailVerified {
		return nil
	}

	token, err := GenerateSecureToken()
	if err != nil {
		return fmt.Errorf("failed to generate verification token: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE users
		SET verification_token_hash = $1, verification_expires_at = $2, updated_at = NOW()
		WHERE id = $3`,
		HashToken(token), time.Now().Add(s.cfg.VerifyTokenTTL), user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to store verification token: %w", err)
	}

	s.enqueue(ctx, notify.NewMessage(notify.TypeVerification, user.Email, map[string]string{
		"name":  user.Name,
		"token": token,
	}))
	return nil
}

// SoftDeleteUser anonymizes an account in place. Accounts that own data are
// never hard-deleted.
func (s *PostgresService) SoftDeleteUser(ctx context.Context, userID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET deleted_at = NOW(),
			email = 'deleted-' || id || '@deleted.invalid',
			name = 'Deleted User',
			password_hash = '',
			reset_token_hash = NULL,
			verification_token_hash = NULL,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

// PurgeExpiredTokens clears reset and verification token digests whose
// windows have passed. Expired tokens already fail verification; this keeps
// dead digests from accumulating in the users table.
func (s *PostgresService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	var total int64
	for _, q := range []string{
		`UPDATE users
			SET reset_token_hash = NULL, reset_expires_at = NULL
			WHERE reset_token_hash IS NOT NULL AND reset_expires_at <= NOW()`,
		`UPDATE users
			SET verification_token_hash = NULL, verification_expires_at = NULL
			WHERE verification_token_hash IS NOT NULL AND verification_expires_at <= NOW()`,
	} {
		result, err := s.db.ExecContext(ctx, q)
		if err != nil {
			return total, fmt.Errorf("failed to purge expired tokens: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to check purge result: %w", err)
		}
		total += rows
	}
	return total, nil
}

func (s *PostgresService) getUserByEmail(ctx context.Context, email string) (*User, error) {
	user := &User{}
	var siteRole string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, site_role, email_verified, created_at, updated_at
		FROM users
		WHERE email = $1 AND deleted_at IS NULL`,
		email,
	).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &siteRole,
		&user.EmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.SiteRole = SiteRole(siteRole)
	return user, nil
}

func (s *PostgresService) issueSession(user *User) (*Session, error) {
	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	refreshToken, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}
	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

// enqueue hands a message to the notification queue, logging failures
// instead of surfacing them
func (s *PostgresService) enqueue(ctx context.Context, msg notify.Message) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(ctx, msg); err != nil && s.logger != nil {
		s.logger.WithError(err).
			WithField("type", string(msg.Type)).
			Warn("failed to enqueue notification, delivery pending")
	}
}
