package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdesk/crewdesk/pkg/billing"
	"github.com/crewdesk/crewdesk/pkg/httputil"
)

type fakeSubSource struct {
	sub *billing.Subscription
	err error
}

func (f *fakeSubSource) GetWorkspaceSubscription(context.Context, int64) (*billing.Subscription, error) {
	return f.sub, f.err
}

func TestRequireActiveSubscription(t *testing.T) {
	run := func(src SubscriptionSource) *httptest.ResponseRecorder {
		gate := RequireActiveSubscription(src, nil, testLogger())
		rec := httptest.NewRecorder()
		gate(okHandler()).ServeHTTP(rec, workspaceReq())
		return rec
	}

	t.Run("never subscribed passes on the free plan", func(t *testing.T) {
		rec := run(&fakeSubSource{sub: nil})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("active passes", func(t *testing.T) {
		rec := run(&fakeSubSource{sub: &billing.Subscription{Status: billing.StatusActive}})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("trialing passes", func(t *testing.T) {
		rec := run(&fakeSubSource{sub: &billing.Subscription{Status: billing.StatusTrialing}})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("canceled blocked with 402", func(t *testing.T) {
		rec := run(&fakeSubSource{sub: &billing.Subscription{Status: billing.StatusCanceled}})
		require.Equal(t, http.StatusPaymentRequired, rec.Code)
		assert.Contains(t, rec.Body.String(), httputil.CodeSubscriptionCanceled)
	})

	t.Run("past due blocked with 402", func(t *testing.T) {
		rec := run(&fakeSubSource{sub: &billing.Subscription{Status: billing.StatusPastDue}})
		require.Equal(t, http.StatusPaymentRequired, rec.Code)
		assert.Contains(t, rec.Body.String(), httputil.CodePaymentPastDue)
	})

	t.Run("workspace-agnostic request passes through unchecked", func(t *testing.T) {
		// A canceled subscription must not matter when the request carries no
		// workspace at all.
		gate := RequireActiveSubscription(&fakeSubSource{sub: &billing.Subscription{Status: billing.StatusCanceled}}, nil, testLogger())
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/profile", nil)
		gate(okHandler()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("lookup failure fails open", func(t *testing.T) {
		rec := run(&fakeSubSource{err: errors.New("db down")})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("subscription lands in context", func(t *testing.T) {
		gate := RequireActiveSubscription(&fakeSubSource{
			sub: &billing.Subscription{PlanID: "pro", Status: billing.StatusActive},
		}, nil, testLogger())

		handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc, ok := GetSubscriptionContext(r.Context())
			require.True(t, ok)
			assert.Equal(t, "pro", sc.Subscription.PlanID)
			w.WriteHeader(http.StatusOK)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, workspaceReq())
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
