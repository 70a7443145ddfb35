package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newCORSRouter(cfg CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/api/v1/languages", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.OPTIONS("/api/v1/languages", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestCORSMiddleware(t *testing.T) {
	cfg := CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://play.example.com"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		MaxAge:         10 * time.Minute,
	}
	r := newCORSRouter(cfg)

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"allowed get", http.MethodGet, "https://play.example.com", http.StatusOK, "https://play.example.com"},
		{"allowed preflight", http.MethodOptions, "https://play.example.com", http.StatusNoContent, "https://play.example.com"},
		{"foreign preflight", http.MethodOptions, "https://evil.example.com", http.StatusForbidden, ""},
		{"foreign get passes without headers", http.MethodGet, "https://evil.example.com", http.StatusOK, ""},
		{"no origin", http.MethodGet, "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/languages", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Fatalf("allow origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestCORSPreflightMaxAge(t *testing.T) {
	r := newCORSRouter(CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}, MaxAge: time.Minute})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/languages", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "60" {
		t.Fatalf("max age = %q", got)
	}
}

func TestIsOriginAllowed(t *testing.T) {
	allowed := []string{" https://A.example.com ", ""}
	if !IsOriginAllowed("https://a.example.com", allowed) {
		t.Fatal("case-insensitive match expected")
	}
	if IsOriginAllowed("https://b.example.com", allowed) {
		t.Fatal("unexpected match")
	}
	if IsOriginAllowed("https://a.example.com", nil) {
		t.Fatal("empty list must allow nothing")
	}
}
