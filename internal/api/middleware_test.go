package api

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"run-sphere/internal/config"
	"run-sphere/internal/monitor"
	"run-sphere/internal/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name    string
		trust   bool
		remote  string
		xff     string
		wantKey string
	}{
		{"remote ip without port", false, "203.0.113.7:5123", "", "203.0.113.7"},
		{"ipv6", false, "[2001:db8::1]:80", "", "2001:db8::1"},
		{"forwarded ignored by default", false, "203.0.113.7:5123", "198.51.100.1", "203.0.113.7"},
		{"forwarded trusted", true, "10.0.0.1:5123", "198.51.100.1, 10.0.0.1", "198.51.100.1"},
		{"trusted but absent", true, "10.0.0.1:5123", "", "10.0.0.1"},
		{"no address", false, "", "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/run", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ClientKey(tt.trust)(req); got != tt.wantKey {
				t.Errorf("ClientKey = %q, want %q", got, tt.wantKey)
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(30, time.Minute, ratelimit.WithClock(func() time.Time { return now }))
	metrics := monitor.NewMetrics()
	h := RateLimitMiddleware(limiter, ClientKey(false), metrics)(okHandler())

	send := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 30; i++ {
		if rec := send("/api/languages"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := send("/api/languages")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("31st request status = %d, want 429", rec.Code)
	}
	resp := decode[ErrorResponse](t, rec)
	if resp.Error != "Too Many Requests" || resp.Message != "Rate limit exceeded. Please wait a minute and try again." {
		t.Errorf("response = %+v", resp)
	}
	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || secs < 1 || secs > 61 {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if got := testutil.ToFloat64(metrics.RateLimited); got != 1 {
		t.Errorf("rate limited counter = %v, want 1", got)
	}

	if rec := send("/health"); rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200 (not limited)", rec.Code)
	}

	now = now.Add(time.Minute + time.Millisecond)
	if rec := send("/api/languages"); rec.Code != http.StatusOK {
		t.Errorf("after window status = %d, want 200", rec.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	h := CORSMiddleware([]string{"http://localhost:5173", "https://run-sphere.vercel.app"})(okHandler())

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/run", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Allow-Credentials = %q", got)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/run", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want none", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/run", nil)
		req.Header.Set("Origin", "https://run-sphere.vercel.app")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "content-type")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "content-type" {
			t.Errorf("Allow-Headers = %q", got)
		}
		if rec.Header().Get("Access-Control-Allow-Methods") == "" {
			t.Error("Allow-Methods missing")
		}
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RequestIDMiddleware(RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/run", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decode[ErrorResponse](t, rec)
	if resp.Error != "ServerError" || resp.Message != "An unexpected error occurred." || resp.RequestID != "req-123" {
		t.Errorf("response = %+v", resp)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen == "" || rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("generated id = %q, header = %q", seen, rec.Header().Get("X-Request-ID"))
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc" {
		t.Errorf("propagated id = %q, want abc", seen)
	}
}

func TestServer_PreflightSkipsRateLimit(t *testing.T) {
	s := newTestServer(t, &fakeExecutor{}, func(cfg *config.Config, _ *Deps) {
		cfg.RateLimit.MaxRequests = 1
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodOptions, "/api/run", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("preflight %d status = %d, want 204", i+1, rec.Code)
		}
	}
}
