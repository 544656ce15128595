package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"a@b.com"}`))

		var dest struct {
			Email string `json:"email"`
		}
		require.NoError(t, ParseJSON(req, &dest))
		assert.Equal(t, "a@b.com", dest.Email)
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{not json`))

		var dest map[string]interface{}
		err := ParseJSON(req, &dest)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid JSON")
	})
}

func TestParseJSONOrError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{bad`))

	var dest map[string]interface{}
	ok := ParseJSONOrError(rec, req, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParsePathInt64(t *testing.T) {
	router := mux.NewRouter()

	var got int64
	var gotErr error
	router.HandleFunc("/workspaces/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = ParsePathInt64(r, "id")
	})

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/workspaces/42", nil)
		router.ServeHTTP(httptest.NewRecorder(), req)

		require.NoError(t, gotErr)
		assert.Equal(t, int64(42), got)
	})

	t.Run("not an integer", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/workspaces/abc", nil)
		router.ServeHTTP(httptest.NewRecorder(), req)

		require.Error(t, gotErr)
	})
}

func TestParsePathString(t *testing.T) {
	router := mux.NewRouter()

	var got string
	var gotErr error
	router.HandleFunc("/invitations/{token}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = ParsePathString(r, "token")
	})

	req := httptest.NewRequest("GET", "/invitations/abc123", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	require.NoError(t, gotErr)
	assert.Equal(t, "abc123", got)
}

func TestParseQueryInt(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?limit=25", nil)
		val, err := ParseQueryInt(req, "limit", 10)
		require.NoError(t, err)
		assert.Equal(t, 25, val)
	})

	t.Run("absent uses default", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		val, err := ParseQueryInt(req, "limit", 10)
		require.NoError(t, err)
		assert.Equal(t, 10, val)
	})

	t.Run("invalid", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?limit=x", nil)
		_, err := ParseQueryInt(req, "limit", 10)
		require.Error(t, err)
	})
}

func TestRequireNonEmpty(t *testing.T) {
	t.Run("empty writes 400", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ok := RequireNonEmpty(rec, "", "email")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-empty passes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ok := RequireNonEmpty(rec, "a@b.com", "email")
		assert.True(t, ok)
	})
}

func TestValidateAll(t *testing.T) {
	rec := httptest.NewRecorder()

	ok := ValidateAll(rec,
		func() (bool, string) { return true, "" },
		func() (bool, string) { return false, "password too short" },
		func() (bool, string) { return false, "never reached" },
	)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "password too short")
}
