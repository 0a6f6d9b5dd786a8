package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDetailDoesNotMutateBase(t *testing.T) {
	e := ErrBadRequest.WithDetail("x")
	assert.Equal(t, "x", e.Detail)
	assert.Empty(t, ErrBadRequest.Detail)
}

func TestFromError(t *testing.T) {
	wrapped := fmt.Errorf("ctx: %w", ErrEmailAlreadyInUse)
	assert.Same(t, ErrEmailAlreadyInUse, FromError(wrapped))

	cause := fmt.Errorf("db down")
	got := FromError(cause)
	assert.Equal(t, http.StatusInternalServerError, got.HTTPStatus)
	assert.ErrorIs(t, got, cause)
}

func TestWriteErrorHidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "rid-1")
	WriteError(w, httptest.NewRequest("GET", "/", nil), ErrServiceUnavailable.WithCause(fmt.Errorf("secret dsn")))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "SERVICE_UNAVAILABLE", body["code"])
	assert.Equal(t, "rid-1", body["request_id"])
	assert.NotContains(t, w.Body.String(), "secret dsn")
}
