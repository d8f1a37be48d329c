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
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.co"}`))
		var dest struct {
			Email string `json:"email"`
		}
		require.NoError(t, ParseJSON(req, &dest))
		assert.Equal(t, "a@b.co", dest.Email)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":`))
		var dest map[string]string
		err := ParseJSON(req, &dest)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid JSON")
	})
}

func TestParseJSONOrProblem_WritesProblem(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not json"))
	rec := httptest.NewRecorder()

	var dest map[string]string
	ok := ParseJSONOrProblem(rec, req, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ProblemContentType, rec.Header().Get("Content-Type"))
}

func TestParsePathInt64(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/roles/42", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "42"})

	val, err := ParsePathInt64(req, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), val)

	req = mux.SetURLVars(req, map[string]string{"id": "abc"})
	_, err = ParsePathInt64(req, "id")
	assert.Error(t, err)

	req = mux.SetURLVars(req, map[string]string{})
	_, err = ParsePathInt64(req, "id")
	assert.Error(t, err)
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25", nil)

	val, err := ParseQueryInt(req, "limit", 20)
	require.NoError(t, err)
	assert.Equal(t, 25, val)

	val, err = ParseQueryInt(req, "offset", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, val)

	req = httptest.NewRequest(http.MethodGet, "/?limit=nope", nil)
	_, err = ParseQueryInt(req, "limit", 20)
	assert.Error(t, err)
}

func TestFieldErrors(t *testing.T) {
	fe := FieldErrors{}
	assert.True(t, fe.Empty())

	fe.RequireNonEmpty("email", "")
	fe.RequireNonEmpty("password", "secret")
	fe.Add("email", "must be a valid email address")

	assert.False(t, fe.Empty())
	assert.Len(t, fe["email"], 2)
	assert.NotContains(t, fe, "password")

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	assert.True(t, fe.WriteIfAny(rec, req))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
