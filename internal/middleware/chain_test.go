package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// TestRecoveryMiddleware_PanicReturnsJSON500 はpanic時にJSONの500が返ることを検証する。
func TestRecoveryMiddleware_PanicReturnsJSON500(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := NewRecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sync", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.OK || body.Code != "INTERNAL_ERROR" {
		t.Errorf("unexpected body: %+v", body)
	}
	if !strings.Contains(buf.String(), "panic recovered") || !strings.Contains(buf.String(), "boom") {
		t.Errorf("panic should be logged: %s", buf.String())
	}
}

// TestRecoveryMiddleware_AbortHandlerRepanics はhttp.ErrAbortHandlerを握りつぶさないことを検証する。
func TestRecoveryMiddleware_AbortHandlerRepanics(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	handler := NewRecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recovered = %v, want http.ErrAbortHandler", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	t.Error("ServeHTTP should panic")
}

func TestSecurityHeadersMiddleware_SetsHeaders(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	resp := w.Result()
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Referrer-Policy"} {
		if resp.Header.Get(h) == "" {
			t.Errorf("%s should be set", h)
		}
	}
	csp := resp.Header.Get("Content-Security-Policy")
	for _, directive := range []string{"img-src 'self' https:", "script-src 'none'", "frame-ancestors 'none'"} {
		if !strings.Contains(csp, directive) {
			t.Errorf("Content-Security-Policy %q should contain %q", csp, directive)
		}
	}
	if got := resp.Header.Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS should not be sent over plain HTTP, got %q", got)
	}
}

func TestSecurityHeadersMiddleware_HSTSBehindProxy(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Result().Header.Get("Strict-Transport-Security"); got != hstsValue {
		t.Errorf("Strict-Transport-Security = %q, want %q", got, hstsValue)
	}
}

// TestMiddlewareChain_WithChiRouter はルーター上のミドルウェアチェーン全体を検証する。
// Recovery -> Logging -> SecurityHeaders -> CORS -> RateLimit -> Handler
func TestMiddlewareChain_WithChiRouter(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	rl := NewRateLimiter(RateLimiterConfig{
		PublicRate:      1,
		PublicBurst:     2,
		SyncRate:        1,
		SyncBurst:       1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware(logger))
	r.Use(NewLoggingMiddleware(logger))
	r.Use(NewSecurityHeadersMiddleware())
	r.Use(NewCORSMiddleware("*"))
	r.Group(func(r chi.Router) {
		r.Use(rl.PublicMiddleware())
		r.Get("/api/public/deals", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte("[]"))
		})
		r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("unexpected")
		})
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, newIPRequest(http.MethodGet, "/api/public/deals", "203.0.113.50"))
		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
		if w.Result().Header.Get("Access-Control-Allow-Origin") != "*" {
			t.Error("CORS header should be set")
		}
		if w.Result().Header.Get("X-Content-Type-Options") != "nosniff" {
			t.Error("security headers should be set")
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, newIPRequest(http.MethodGet, "/api/public/deals", "203.0.113.50"))
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("request 3: status = %d, want %d", w.Result().StatusCode, http.StatusTooManyRequests)
	}

	// プリフライトはレート制限の前にCORSで応答する
	wo := httptest.NewRecorder()
	r.ServeHTTP(wo, newIPRequest(http.MethodOptions, "/api/public/deals", "203.0.113.50"))
	if wo.Result().StatusCode != http.StatusNoContent {
		t.Errorf("OPTIONS: status = %d, want %d", wo.Result().StatusCode, http.StatusNoContent)
	}

	wp := httptest.NewRecorder()
	r.ServeHTTP(wp, newIPRequest(http.MethodGet, "/panic", "203.0.113.51"))
	if wp.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("panic: status = %d, want %d", wp.Result().StatusCode, http.StatusInternalServerError)
	}
}
