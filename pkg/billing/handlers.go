package billing

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/crewdesk/crewdesk/pkg/auth"
	"github.com/crewdesk/crewdesk/pkg/httputil"
	"github.com/crewdesk/crewdesk/pkg/observability"
)

// Handlers exposes the read-only billing surface. Subscription mutation goes
// through the payment provider's webhooks, not this API.
type Handlers struct {
	service Service
	logger  *observability.Logger
}

// NewHandlers creates the billing handlers
func NewHandlers(service Service, logger *observability.Logger) *Handlers {
	return &Handlers{service: service, logger: logger}
}

// RegisterProtectedRoutes registers the authenticated billing endpoints
func (h *Handlers) RegisterProtectedRoutes(router *mux.Router) {
	router.HandleFunc("/billing/subscription", h.getSubscription).Methods("GET")
}

// getSubscription handles GET /billing/subscription. Users without a
// subscription row see the synthetic free plan.
func (h *Handlers) getSubscription(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := auth.FromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	sub, err := h.service.GetUserSubscription(r.Context(), authCtx.UserID)
	if err != nil {
		h.logger.WithError(err).Error("failed to get subscription")
		httputil.WriteInternalError(w, errors.New("failed to get subscription"))
		return
	}

	resp := struct {
		Subscription *Subscription `json:"subscription"`
		PlanID       string        `json:"plan_id"`
	}{
		Subscription: sub,
		PlanID:       FreePlanID,
	}
	if sub != nil && sub.Status.Live() {
		resp.PlanID = sub.PlanID
	}
	httputil.WriteSuccess(w, resp)
}
