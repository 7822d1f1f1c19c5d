package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker(t *testing.T) {
	t.Run("reachable probe", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodHead, r.Method)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		c, err := New(&Config{URL: srv.URL})
		require.NoError(t, err)
		assert.NoError(t, c.Check(context.Background()))
	})

	t.Run("server error is unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c, err := New(&Config{URL: srv.URL})
		require.NoError(t, err)
		assert.ErrorIs(t, c.Check(context.Background()), ErrUnreachable)
	})

	t.Run("closed server is unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := srv.URL
		srv.Close()

		c, err := New(&Config{URL: url})
		require.NoError(t, err)
		assert.ErrorIs(t, c.Check(context.Background()), ErrUnreachable)
	})

	t.Run("defaults apply", func(t *testing.T) {
		c, err := New(&Config{})
		require.NoError(t, err)
		assert.Equal(t, DefaultURL, c.url)
	})
}
