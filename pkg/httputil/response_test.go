package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()

	err := WriteSuccess(rec, map[string]string{"name": "Acme"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp SuccessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Empty(t, resp.Message)
	assert.Equal(t, map[string]interface{}{"name": "Acme"}, resp.Data)
}

func TestWriteSuccessMessage(t *testing.T) {
	rec := httptest.NewRecorder()

	err := WriteSuccessMessage(rec, "invitation sent", nil)
	require.NoError(t, err)

	var resp SuccessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "invitation sent", resp.Message)
	assert.Nil(t, resp.Data)
}

func TestWriteCreated(t *testing.T) {
	rec := httptest.NewRecorder()

	err := WriteCreated(rec, map[string]int{"id": 7})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestWriteErrorMessage(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteErrorMessage(rec, http.StatusBadRequest, "email is required")

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "email is required", resp.Message)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteError(rec, http.StatusInternalServerError, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "boom", resp.Message)
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		name  string
		write func(w http.ResponseWriter)
		code  int
	}{
		{"validation", func(w http.ResponseWriter) { WriteValidationError(w, "m") }, http.StatusBadRequest},
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "m") }, http.StatusBadRequest},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "m") }, http.StatusUnauthorized},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "m") }, http.StatusForbidden},
		{"not found", func(w http.ResponseWriter) { WriteNotFoundError(w, "m") }, http.StatusNotFound},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "m") }, http.StatusConflict},
		{"too many requests", func(w http.ResponseWriter) { WriteTooManyRequests(w, "m") }, http.StatusTooManyRequests},
		{"service unavailable", func(w http.ResponseWriter) { WriteServiceUnavailable(w, "m") }, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.code, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
		})
	}
}

func TestWriteQuotaExceeded(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteQuotaExceeded(rec, CodePlanLimitTasks, "task limit reached, upgrade to add more", 50, 50, "free")

	assert.Equal(t, http.StatusForbidden, rec.Code)

	var resp QuotaErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "PLAN_LIMIT_TASKS", resp.Code)
	assert.Equal(t, 50, resp.Limit)
	assert.Equal(t, 50, resp.Current)
	assert.Equal(t, "free", resp.PlanID)
	assert.NotEmpty(t, resp.Message)
}

func TestWritePaymentRequired(t *testing.T) {
	rec := httptest.NewRecorder()

	WritePaymentRequired(rec, CodeSubscriptionCanceled, "subscription has been canceled")

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	var resp BillingErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "SUBSCRIPTION_CANCELED", resp.Code)
}
