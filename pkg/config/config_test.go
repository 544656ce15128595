package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdesk/crewdesk/pkg/observability"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CREWDESK_POSTGRES_URL", "postgres://localhost:5432/crewdesk?sslmode=disable")
	t.Setenv("CREWDESK_JWT_SECRET", testSecret)
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSAllowedOrigins)

	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenTTL)
	assert.Equal(t, 7, cfg.Auth.InviteExpiryDays)
	assert.True(t, cfg.Auth.SecureCookies)

	assert.Equal(t, 0, cfg.Limits.MaxRegisteredUsers)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.OTelEnabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CREWDESK_PORT", "3000")
	t.Setenv("CREWDESK_ACCESS_TOKEN_TTL", "20m")
	t.Setenv("CREWDESK_MAX_REGISTERED_USERS", "500")
	t.Setenv("CREWDESK_LOG_LEVEL", "debug")
	t.Setenv("CREWDESK_CORS_ORIGINS", "https://app.crewdesk.io, https://staging.crewdesk.io")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 20*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 500, cfg.Limits.MaxRegisteredUsers)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, []string{"https://app.crewdesk.io", "https://staging.crewdesk.io"}, cfg.Server.CORSAllowedOrigins)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(t *testing.T)
		wantErr string
	}{
		{
			name:    "missing postgres URL",
			mutate:  func(t *testing.T) { t.Setenv("CREWDESK_POSTGRES_URL", "") },
			wantErr: "postgres URL is required",
		},
		{
			name:    "missing JWT secret",
			mutate:  func(t *testing.T) { t.Setenv("CREWDESK_JWT_SECRET", "") },
			wantErr: "JWT secret is required",
		},
		{
			name:    "short JWT secret",
			mutate:  func(t *testing.T) { t.Setenv("CREWDESK_JWT_SECRET", "short") },
			wantErr: "at least 32 bytes",
		},
		{
			name: "port collision",
			mutate: func(t *testing.T) {
				t.Setenv("CREWDESK_PORT", "8080")
				t.Setenv("CREWDESK_HEALTH_PORT", "8080")
			},
			wantErr: "must be different",
		},
		{
			name: "refresh TTL not exceeding access TTL",
			mutate: func(t *testing.T) {
				t.Setenv("CREWDESK_ACCESS_TOKEN_TTL", "1h")
				t.Setenv("CREWDESK_REFRESH_TOKEN_TTL", "30m")
			},
			wantErr: "refresh token TTL must exceed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			tt.mutate(t)

			_, err := LoadConfig()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr),
				"expected error containing %q, got %q", tt.wantErr, err.Error())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  observability.LogLevel
	}{
		{"debug", observability.DebugLevel},
		{"info", observability.InfoLevel},
		{"warn", observability.WarnLevel},
		{"warning", observability.WarnLevel},
		{"error", observability.ErrorLevel},
		{"ERROR", observability.ErrorLevel},
		{"bogus", observability.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}
