package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hanko-field/quickorder/internal/platform/requestctx"
)

func TestRecoveryMiddlewareWritesJSON(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quick-order/settings", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "internal_server_error" || body["success"] != false {
		t.Fatalf("unexpected body %v", body)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestRequestLoggerMiddlewareLogsRoutePattern(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	metrics := NewMetrics()

	r := chi.NewRouter()
	r.Use(InjectLoggerMiddleware(zap.New(core)), RequestLoggerMiddleware(), metrics.Middleware)
	r.Get("/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		if requestctx.IsNop(requestctx.Logger(r.Context())) {
			t.Errorf("expected request logger on context")
		}
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/42", nil))

	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 1 {
		t.Fatalf("expected one completion log, got %d", len(completed))
	}
	fields := completed[0].ContextMap()
	if fields["route"] != "/products/{id}" || fields["status"] != int64(404) {
		t.Fatalf("unexpected fields %v", fields)
	}
	if completed[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn for 4xx, got %v", completed[0].Level)
	}
	if got := testutil.ToFloat64(metrics.httpRequests.WithLabelValues("GET", "/products/{id}", "404")); got != 1 {
		t.Fatalf("expected request counted, got %v", got)
	}
}

func TestTraceMiddlewareEchoesHeader(t *testing.T) {
	var seen requestctx.TraceInfo
	handler := TraceMiddleware("demo-project")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen.TraceID != "105445aa7843bc8bf206b12000100000" || seen.ProjectID != "demo-project" {
		t.Fatalf("unexpected trace info %#v", seen)
	}
	if !strings.HasPrefix(rec.Header().Get(cloudTraceHeader), "105445aa7843bc8bf206b12000100000/") {
		t.Fatalf("expected trace header echoed, got %q", rec.Header().Get(cloudTraceHeader))
	}
}

func TestParseCloudTraceContext(t *testing.T) {
	info, sc, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok || !sc.IsValid() || !info.Sampled {
		t.Fatalf("expected valid sampled context, got %#v", info)
	}
	if info.SpanID != "0000000000000001" {
		t.Fatalf("unexpected span id %q", info.SpanID)
	}
	for _, bad := range []string{"", "abc/1", "105445aa7843bc8bf206b12000100000", "105445aa7843bc8bf206b12000100000/;o=1"} {
		if _, _, ok := parseCloudTraceContext(bad); ok {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}
