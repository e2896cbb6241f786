package router

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formcraft/formcraft-backend/internal/config"
	"github.com/formcraft/formcraft-backend/internal/handler"
	"github.com/formcraft/formcraft-backend/internal/middleware"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("png"), 0o644))

	cfg := &config.Config{GinMode: "test", ImageStore: config.ImageStoreLocal, UploadDir: dir}
	log := zerolog.Nop()
	handlers := &Handlers{
		Form:     handler.NewFormHandler(nil, log),
		Response: handler.NewResponseHandler(nil, nil, log),
		WS:       handler.NewWSHandler(nil, nil, log, nil),
		System:   handler.NewSystemHandler(nil, log),
	}
	return SetupRouter(handlers, middleware.NewRateLimiter(1), cfg)
}

func TestRouter(t *testing.T) {
	r := newTestRouter(t)
	serve := func(req *http.Request) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("wake up is not cached", func(t *testing.T) {
		w := serve(httptest.NewRequest(http.MethodGet, "/api/wakingup", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("uploads are served immutable", func(t *testing.T) {
		w := serve(httptest.NewRequest(http.MethodGet, "/uploads/a.png", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Cache-Control"), "immutable")
		assert.Equal(t, "png", w.Body.String())
	})

	t.Run("writes are rate limited", func(t *testing.T) {
		post := func() *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/api/forms", strings.NewReader(`{}`))
			req.Header.Set("Content-Type", "application/json")
			return serve(req)
		}
		assert.Equal(t, http.StatusBadRequest, post().Code)
		assert.Equal(t, http.StatusTooManyRequests, post().Code)
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/forms", nil)
		req.Header.Set("Origin", "http://frontend.test")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := serve(req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}
