package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	if got := clientIP(r); got != "10.1.2.3" {
		t.Fatalf("clientIP = %q, want 10.1.2.3", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(r); got != "203.0.113.7" {
		t.Fatalf("clientIP with forwarded header = %q, want 203.0.113.7", got)
	}
}

func TestRateLimitRejectsBursts(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	limited := RateLimit(ok, 2, 1)

	var rejected int
	for i := 0; i < 5; i++ {
		r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		r.RemoteAddr = "10.0.0.9:1234"
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, r)
		if w.Code == http.StatusTooManyRequests {
			rejected++
		}
	}
	if rejected == 0 {
		t.Fatal("expected at least one rate limited request")
	}

	// A different source address gets its own bucket.
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.RemoteAddr = "10.0.0.10:1234"
	w := httptest.NewRecorder()
	limited.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("fresh address: expected 204, got %d", w.Code)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get("X-Request-Id")
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("X-Request-Id", "req-789")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if seen != "req-789" {
		t.Fatalf("request id not propagated: %q", seen)
	}

	r = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected generated request id")
	}
}
