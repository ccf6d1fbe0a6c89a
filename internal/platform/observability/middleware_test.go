package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/furnishop/api/internal/platform/requestctx"
)

func TestRequestLoggerLogsRoutePatternAndClientIP(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	var clientIP string
	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(zap.New(core)), RequestLoggerMiddleware())
	router.Get("/api/v1/orders/{orderCode}", func(w http.ResponseWriter, r *http.Request) {
		clientIP = requestctx.ClientIP(r.Context())
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/FN-1", nil)
	req.RemoteAddr = "203.0.113.9:5123"
	router.ServeHTTP(httptest.NewRecorder(), req)

	if clientIP != "203.0.113.9" {
		t.Fatalf("expected client ip on context, got %q", clientIP)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn for 404, got %s", entries[0].Level)
	}
	if fields["route"] != "/api/v1/orders/{orderCode}" || fields["status"] != int64(http.StatusNotFound) {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestRecoveryMiddlewareWritesJSONError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"internal_server_error"`) {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}
