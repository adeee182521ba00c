package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/martinsuchenak/gestion-impacts/internal/auth"
	"github.com/martinsuchenak/gestion-impacts/internal/log"
)

func TestMiddleware_SecurityHeaders(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	middleware := SecurityHeadersMiddleware(nextHandler)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()

	middleware.ServeHTTP(w, req)

	resp := w.Result()

	headers := []string{
		"Content-Security-Policy",
		"Strict-Transport-Security",
		"X-Frame-Options",
		"X-Content-Type-Options",
		"Referrer-Policy",
	}
	for _, h := range headers {
		if resp.Header.Get(h) == "" {
			t.Errorf("Expected header %s to be set", h)
		}
	}
	if resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Errorf("Expected X-Frame-Options DENY, got %s", resp.Header.Get("X-Frame-Options"))
	}
}

func TestMiddleware_SecurityHeaders_NoHSTSWithoutTLS(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeadersMiddleware(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}
}

func TestMiddleware_RequestID(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.RequestIDFrom(r.Context())
	}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"Generated", "", false},
		{"Reused", "0190b1a4-7c4e-7d2a-9a55-3f1b2c3d4e5f", true},
		{"Invalid replaced", "<script>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if seen == "" || w.Header().Get(RequestIDHeader) != seen {
				t.Fatalf("Request id not propagated: header %q, context %q", w.Header().Get(RequestIDHeader), seen)
			}
			if (seen == tt.incoming) != tt.keep {
				t.Errorf("Unexpected request id %q for incoming %q", seen, tt.incoming)
			}
		})
	}
}

func TestMiddleware_Logging(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/boom", nil))

	if !strings.Contains(buf.String(), "Request failed") || !strings.Contains(buf.String(), "/api/boom") {
		t.Errorf("Expected the failed request logged, got %q", buf.String())
	}
}
