package middleware

import (
	"context"
	"net/http"

	"github.com/crewdesk/crewdesk/pkg/billing"
	"github.com/crewdesk/crewdesk/pkg/contextkeys"
	"github.com/crewdesk/crewdesk/pkg/httputil"
	"github.com/crewdesk/crewdesk/pkg/observability"
)

// SubscriptionSource is the slice of the billing service the billing gate
// needs
type SubscriptionSource interface {
	GetWorkspaceSubscription(ctx context.Context, workspaceID int64) (*billing.Subscription, error)
}

// SubscriptionContext is attached once the billing gate admits a request.
// Subscription is nil for workspaces on the synthetic free plan.
type SubscriptionContext struct {
	Subscription *billing.Subscription
}

// GetSubscriptionContext retrieves the billing gate's result
func GetSubscriptionContext(ctx context.Context) (*SubscriptionContext, bool) {
	sc, ok := ctx.Value(contextkeys.SubscriptionKey).(*SubscriptionContext)
	return sc, ok
}

// RequireActiveSubscription blocks writes in workspaces whose owner's
// subscription is canceled or past due. Owners who never subscribed are on
// the free plan and pass. The gate fails open: a lookup failure admits the
// request.
func RequireActiveSubscription(billingSvc SubscriptionSource, metrics *observability.Metrics, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Workspace-agnostic endpoints have no subscription to check
			workspaceID, r, ok := ResolveWorkspaceID(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			sub, err := billingSvc.GetWorkspaceSubscription(r.Context(), workspaceID)
			if err != nil {
				if logger != nil {
					logger.WithError(err).Warn("billing check skipped")
				}
				next.ServeHTTP(w, r)
				return
			}

			if sub != nil {
				switch sub.Status {
				case billing.StatusCanceled:
					countBillingDenial(metrics, "canceled")
					httputil.WritePaymentRequired(w, httputil.CodeSubscriptionCanceled,
						"this workspace's subscription has been canceled")
					return
				case billing.StatusPastDue:
					countBillingDenial(metrics, "past_due")
					httputil.WritePaymentRequired(w, httputil.CodePaymentPastDue,
						"payment is past due for this workspace's subscription")
					return
				}
			}

			ctx := contextkeys.WithSubscription(r.Context(), &SubscriptionContext{Subscription: sub})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func countBillingDenial(metrics *observability.Metrics, reason string) {
	if metrics != nil {
		metrics.BillingDenialsTotal.WithLabelValues(reason).Inc()
	}
}
