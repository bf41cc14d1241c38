package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	logger, err := New("debug")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug to be enabled")
	}
	if _, err := New("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	r := gin.New()
	r.Use(RequestID(), Logger(zap.New(core)))
	r.GET("/orders/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/orders/abc", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get(RequestIDHeader) != "req-42" {
		t.Fatalf("request id not echoed: %q", w.Header().Get(RequestIDHeader))
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log line, got %d", len(entries))
	}
	e := entries[0]
	if e.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn for 404, got %v", e.Level)
	}
	ctx := e.ContextMap()
	if ctx["path"] != "/orders/:id" || ctx["request_id"] != "req-42" || ctx["status"] != int64(404) {
		t.Fatalf("unexpected fields %v", ctx)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/x", nil))
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected a generated request id")
	}
}
