package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hanko-field/quickorder/internal/domain"
)

type stubHealthRepository struct {
	report domain.HealthReport
	err    error
}

func (s stubHealthRepository) Collect(context.Context) (domain.HealthReport, error) {
	return s.report, s.err
}

func TestRouterNotFoundUsesErrorEnvelope(t *testing.T) {
	router := NewRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "route_not_found" {
		t.Fatalf("unexpected error code %v", got)
	}
}

func TestRouterMountsQuickOrderRoutes(t *testing.T) {
	svc := &stubQuickOrderService{form: domain.FormSettings{Enabled: true}}
	router := NewRouter(WithQuickOrderRoutes(NewQuickOrderHandlers(svc).Routes))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/quick-order/settings", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/quick-order/settings", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestRouterWithoutQuickOrderRoutesIsUnavailable(t *testing.T) {
	router := NewRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/quick-order/settings", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("quickorder_up 1\n"))
	})
	router := NewRouter(WithMetricsHandler(metrics))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "quickorder_up 1\n" {
		t.Fatalf("unexpected metrics response %d %q", rec.Code, rec.Body.String())
	}
}

func TestHealthzReportsBuildInfo(t *testing.T) {
	started := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(
		WithHealthClock(func() time.Time { return started.Add(90 * time.Second) }),
		WithHealthBuildInfo(BuildInfo{Version: "1.2.3", CommitSHA: "abc", Environment: "test", StartedAt: started}),
	)
	router := NewRouter(WithHealthHandlers(h))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	body := decodeBody(t, rec)
	if body["status"] != "ok" || body["version"] != "1.2.3" || body["uptime"] != "1m30s" {
		t.Fatalf("unexpected healthz %#v", body)
	}
}

func TestReadyzReportsDependencyFailures(t *testing.T) {
	repo := stubHealthRepository{report: domain.HealthReport{
		Status: domain.HealthStatusError,
		Checks: map[string]domain.HealthCheck{
			"firestore": {Status: domain.HealthStatusOK},
			"redis":     {Status: domain.HealthStatusError, Detail: "connection refused"},
		},
	}}
	router := NewRouter(WithHealthHandlers(NewHealthHandlers(WithHealthRepository(repo))))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	details, ok := body["details"].([]any)
	if !ok || len(details) != 1 || details[0] != "redis: connection refused" {
		t.Fatalf("unexpected details %#v", body["details"])
	}
}

func TestReadyzOK(t *testing.T) {
	repo := stubHealthRepository{report: domain.HealthReport{
		Status: domain.HealthStatusOK,
		Checks: map[string]domain.HealthCheck{"firestore": {Status: domain.HealthStatusOK}},
	}}
	router := NewRouter(WithHealthHandlers(NewHealthHandlers(WithHealthRepository(repo))))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestReadyzCollectError(t *testing.T) {
	router := NewRouter(WithHealthHandlers(NewHealthHandlers(WithHealthRepository(stubHealthRepository{err: errors.New("boom")}))))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
