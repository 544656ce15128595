// Package api assembles the HTTP surface: services, gates, and routes.
//
// Gate ordering on a workspace write is role, then quota, then billing. The
// role gate fails closed, the quota and billing gates fail open, so a request
// that cannot be authorized is always denied while one that cannot be
// metered is allowed through.
package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/crewdesk/crewdesk/pkg/auth"
	"github.com/crewdesk/crewdesk/pkg/billing"
	"github.com/crewdesk/crewdesk/pkg/cache"
	"github.com/crewdesk/crewdesk/pkg/config"
	"github.com/crewdesk/crewdesk/pkg/httputil"
	"github.com/crewdesk/crewdesk/pkg/middleware"
	"github.com/crewdesk/crewdesk/pkg/notify"
	"github.com/crewdesk/crewdesk/pkg/observability"
	"github.com/crewdesk/crewdesk/pkg/storage/postgres"
	"github.com/crewdesk/crewdesk/pkg/tasks"
	"github.com/crewdesk/crewdesk/pkg/workspaces"
)

// Server owns the assembled services and routers
type Server struct {
	cfg     *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics
	db      *sql.DB

	Auth       *auth.PostgresService
	Workspaces *workspaces.PostgresService
	Billing    *billing.PostgresService
	Tasks      *tasks.PostgresService

	handler http.Handler
	health  http.Handler
}

// New builds the services and wires every route behind its gates. redisClient
// may be nil; the plan cache then runs on its in-process tier alone.
func New(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics, registry *prometheus.Registry, db *sql.DB, redisClient *redis.Client, queue notify.Queue, seeder auth.Seeder) *Server {
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	cookies := auth.NewCookieManager(cfg.Auth.SecureCookies, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)

	authSvc := auth.NewPostgresService(db, tokens, queue, seeder, auth.ServiceConfig{
		MaxRegisteredUsers: cfg.Limits.MaxRegisteredUsers,
		VerifyTokenTTL:     cfg.Auth.VerifyTokenTTL,
		ResetTokenTTL:      cfg.Auth.ResetTokenTTL,
	}, logger)
	workspaceSvc := workspaces.NewPostgresService(db, queue, logger, cfg.Auth.InviteExpiryDays)
	billingSvc := billing.NewPostgresService(db, logger)
	taskSvc := tasks.NewPostgresService(db, logger)

	planCache := cache.NewPlanCache(redisClient, cfg.Redis.L1CacheSize, cfg.Redis.CacheTTL, metrics, logger)
	plans := func(ctx context.Context, workspaceID int64) (*billing.PlanLimits, error) {
		return planCache.GetPlanLimits(ctx, workspaceID, func(ctx context.Context) (*billing.PlanLimits, error) {
			return billingSvc.GetWorkspacePlanLimits(ctx, workspaceID)
		})
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		db:         db,
		Auth:       authSvc,
		Workspaces: workspaceSvc,
		Billing:    billingSvc,
		Tasks:      taskSvc,
	}
	s.handler = s.buildRouter(tokens, cookies, workspaceSvc, billingSvc, taskSvc, plans, planCache)
	s.health = s.buildHealth(registry)
	return s
}

// Handler returns the main API handler
func (s *Server) Handler() http.Handler { return s.handler }

// HealthHandler returns the probe and metrics handler served on the health
// port
func (s *Server) HealthHandler() http.Handler { return s.health }

func (s *Server) buildRouter(tokens *auth.TokenManager, cookies *auth.CookieManager, workspaceSvc *workspaces.PostgresService, billingSvc *billing.PostgresService, taskSvc *tasks.PostgresService, plans middleware.PlanResolver, planCache *cache.PlanCache) http.Handler {
	router := mux.NewRouter()

	authHandlers := auth.NewHandlers(s.Auth, cookies, s.metrics, s.logger)
	workspaceHandlers := workspaces.NewHandlers(workspaceSvc, planCache, s.metrics, s.logger)
	billingHandlers := billing.NewHandlers(billingSvc, s.logger)
	taskHandlers := tasks.NewHandlers(taskSvc, plans, s.metrics, s.logger)

	quota := middleware.NewQuota(billingSvc, plans, s.metrics, s.logger)
	requireAuth := middleware.RequireAuth(tokens, s.logger)
	requireBilling := middleware.RequireActiveSubscription(billingSvc, s.metrics, s.logger)
	authLimiter := middleware.NewRateLimiter(s.cfg.Limits.AuthRatePerMinute, s.cfg.Limits.AuthRateBurst)

	// Credential endpoints sit behind the per-IP limiter; the invitation info
	// endpoint is public but unmetered
	public := router.PathPrefix("/api").Subrouter()
	public.Use(mux.MiddlewareFunc(authLimiter.Middleware))
	authHandlers.RegisterPublicRoutes(public)

	invites := router.PathPrefix("/api").Subrouter()
	workspaceHandlers.RegisterPublicRoutes(invites)

	// Protected routes
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(mux.MiddlewareFunc(requireAuth))
	authHandlers.RegisterProtectedRoutes(protected)
	billingHandlers.RegisterProtectedRoutes(protected)

	member := middleware.RequireMember(workspaceSvc, s.metrics, s.logger)
	admin := middleware.RequireAdmin(workspaceSvc, s.metrics, s.logger)
	editor := middleware.RequireEditor(workspaceSvc, s.metrics, s.logger)

	// Site-admin surface: manual trigger for the cron cleanups
	adminAPI := protected.PathPrefix("/admin").Subrouter()
	adminAPI.Use(mux.MiddlewareFunc(middleware.RequireSiteAdmin))
	adminAPI.HandleFunc("/maintenance/run", s.runMaintenance).Methods("POST")

	workspaceHandlers.RegisterProtectedRoutes(protected, workspaces.Gates{
		Member: member,
		Admin:  admin,
		Create: quota.CheckWorkspaceLimit,
		Invite: chain(admin, quota.CheckMemberLimit, requireBilling),
	})
	taskHandlers.RegisterProtectedRoutes(protected,
		member,
		chain(editor, requireBilling),
		chain(editor, quota.CheckTaskLimit, requireBilling),
	)

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.CORSMiddleware(s.cfg.Server.CORSAllowedOrigins),
		observability.HTTPMetricsMiddleware(s.metrics),
	)(router)

	if s.cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "crewdesk")
	}
	return handler
}

// runMaintenance handles POST /admin/maintenance/run, running the scheduled
// cleanups on demand
func (s *Server) runMaintenance(w http.ResponseWriter, r *http.Request) {
	invitations, err := s.Workspaces.CleanupExpiredInvitations(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("invitation cleanup failed")
		httputil.WriteInternalError(w, errors.New("maintenance run failed"))
		return
	}
	tokens, err := s.Auth.PurgeExpiredTokens(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("token purge failed")
		httputil.WriteInternalError(w, errors.New("maintenance run failed"))
		return
	}
	httputil.WriteSuccess(w, map[string]int64{
		"invitations_removed": invitations,
		"tokens_purged":       tokens,
	})
}

func (s *Server) buildHealth(registry *prometheus.Registry) http.Handler {
	healthMux := http.NewServeMux()

	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	healthMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := postgres.HealthCheck(r.Context(), s.db); err != nil {
			httputil.WriteServiceUnavailable(w, "database unavailable")
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if s.cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	return healthMux
}

// chain composes gates left to right: the first gate sees the request first
func chain(gates ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(gates) - 1; i >= 0; i-- {
			if gates[i] != nil {
				final = gates[i](final)
			}
		}
		return final
	}
}
