package auth

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/crewdesk/crewdesk/pkg/httputil"
	"github.com/crewdesk/crewdesk/pkg/observability"
)

// Handlers exposes the authentication HTTP surface
type Handlers struct {
	service Service
	cookies *CookieManager
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewHandlers creates the auth handlers. metrics may be nil in tests.
func NewHandlers(service Service, cookies *CookieManager, metrics *observability.Metrics, logger *observability.Logger) *Handlers {
	return &Handlers{
		service: service,
		cookies: cookies,
		metrics: metrics,
		logger:  logger,
	}
}

// RegisterPublicRoutes registers the unauthenticated auth endpoints
func (h *Handlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/auth/register", h.register).Methods("POST")
	router.HandleFunc("/auth/login", h.login).Methods("POST")
	router.HandleFunc("/auth/logout", h.logout).Methods("POST")
	router.HandleFunc("/auth/refresh", h.refresh).Methods("POST")
	router.HandleFunc("/auth/forgot-password", h.forgotPassword).Methods("POST")
	router.HandleFunc("/auth/reset-password", h.resetPassword).Methods("POST")
	router.HandleFunc("/auth/verify-email", h.verifyEmail).Methods("POST")
	router.HandleFunc("/auth/resend-verification", h.resendVerification).Methods("POST")
}

// RegisterProtectedRoutes registers auth endpoints that require the
// credential middleware
func (h *Handlers) RegisterProtectedRoutes(router *mux.Router) {
	router.HandleFunc("/auth/me", h.me).Methods("GET")
	router.HandleFunc("/auth/me", h.deleteAccount).Methods("DELETE")
}

// register handles POST /auth/register
func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	session, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.countRegistration("failure")
		var validationErr *ValidationError
		switch {
		case errors.As(err, &validationErr):
			httputil.WriteValidationError(w, validationErr.Message)
		case errors.Is(err, ErrRegistrationClosed):
			httputil.WriteForbidden(w, "registration is closed")
		default:
			h.logger.WithError(err).Error("registration failed")
			httputil.WriteInternalError(w, errors.New("registration failed"))
		}
		return
	}

	h.countRegistration("success")
	h.cookies.SetSessionCookies(w, session.AccessToken, session.RefreshToken)
	httputil.WriteCreated(w, session.User)
}

// login handles POST /auth/login. Unknown email and wrong password produce
// byte-identical responses.
func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.countLogin("failure")
			httputil.WriteUnauthorized(w, "invalid email or password")
			return
		}
		h.countLogin("error")
		h.logger.WithError(err).Error("login failed")
		httputil.WriteInternalError(w, errors.New("login failed"))
		return
	}

	h.countLogin("success")
	h.cookies.SetSessionCookies(w, session.AccessToken, session.RefreshToken)
	httputil.WriteSuccess(w, session.User)
}

// logout handles POST /auth/logout
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.ClearSessionCookies(w)
	httputil.WriteSuccessMessage(w, "logged out", nil)
}

// refresh handles POST /auth/refresh. Only the access token is re-issued;
// the refresh credential is unchanged.
func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := ""
	if cookie, err := r.Cookie(RefreshCookieName); err == nil {
		refreshToken = cookie.Value
	}
	if refreshToken == "" {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := httputil.ParseJSON(r, &req); err == nil {
			refreshToken = req.RefreshToken
		}
	}
	if refreshToken == "" {
		h.countRefresh("failure")
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	accessToken, user, err := h.service.Refresh(r.Context(), refreshToken)
	if err != nil {
		h.countRefresh("failure")
		// Expired, malformed, wrong-type, and unknown-user failures all
		// collapse into the same 401
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	h.countRefresh("success")
	h.cookies.SetAccessCookie(w, accessToken)
	httputil.WriteSuccess(w, user)
}

// forgotPassword handles POST /auth/forgot-password. The response is the
// same whether or not the email is registered.
func (h *Handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.logger.WithError(err).Error("forgot-password failed")
		httputil.WriteInternalError(w, errors.New("request failed"))
		return
	}

	httputil.WriteSuccessMessage(w, "if the email is registered, a reset link has been sent", nil)
}

// resetPassword handles POST /auth/reset-password
func (h *Handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Token, "token") {
		return
	}

	err := h.service.ResetPassword(r.Context(), req.Token, req.Password)
	if err != nil {
		var validationErr *ValidationError
		switch {
		case errors.As(err, &validationErr):
			httputil.WriteValidationError(w, validationErr.Message)
		case errors.Is(err, ErrInvalidToken):
			httputil.WriteBadRequest(w, "invalid or expired token")
		default:
			h.logger.WithError(err).Error("reset-password failed")
			httputil.WriteInternalError(w, errors.New("request failed"))
		}
		return
	}

	httputil.WriteSuccessMessage(w, "password updated", nil)
}

// verifyEmail handles POST /auth/verify-email
func (h *Handlers) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Token, "token") {
		return
	}

	err := h.service.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			httputil.WriteBadRequest(w, "invalid or expired token")
			return
		}
		h.logger.WithError(err).Error("verify-email failed")
		httputil.WriteInternalError(w, errors.New("request failed"))
		return
	}

	httputil.WriteSuccessMessage(w, "email verified", nil)
}

// resendVerification handles POST /auth/resend-verification. Response shape
// does not reveal whether the email exists or is already verified.
func (h *Handlers) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}

	if err := h.service.ResendVerification(r.Context(), req.Email); err != nil {
		h.logger.WithError(err).Error("resend-verification failed")
		httputil.WriteInternalError(w, errors.New("request failed"))
		return
	}

	httputil.WriteSuccessMessage(w, "if the email needs verification, a new link has been sent", nil)
}

// me handles GET /auth/me
func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := FromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	user, err := h.service.GetUserByID(r.Context(), authCtx.UserID)
	if err != nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	httputil.WriteSuccess(w, user)
}

// deleteAccount handles DELETE /auth/me. The account is anonymized in place,
// not removed; workspaces it owns keep a valid owner reference.
func (h *Handlers) deleteAccount(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := FromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	if err := h.service.SoftDeleteUser(r.Context(), authCtx.UserID); err != nil {
		h.logger.WithError(err).Error("account deletion failed")
		httputil.WriteInternalError(w, errors.New("account deletion failed"))
		return
	}

	h.cookies.ClearSessionCookies(w)
	httputil.WriteSuccessMessage(w, "account deleted", nil)
}

func (h *Handlers) countLogin(status string) {
	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues(status).Inc()
	}
}

func (h *Handlers) countRegistration(status string) {
	if h.metrics != nil {
		h.metrics.RegistrationsTotal.WithLabelValues(status).Inc()
	}
}

func (h *Handlers) countRefresh(status string) {
	if h.metrics != nil {
		h.metrics.TokenRefreshTotal.WithLabelValues(status).Inc()
	}
}
