package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echodoc/internal/domain"
)

func TestNotify_PostsText(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n, err := New(srv.URL, 0)
	require.NoError(t, err)
	require.NoError(t, n.Notify(context.Background(), "document uploaded"))
	assert.Equal(t, map[string]string{"text": "document uploaded"}, got)
}

func TestNotify_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	n, err := New(srv.URL, 0)
	require.NoError(t, err)
	err = n.Notify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_token")
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New("", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
