package adminhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeServerEngine struct {
	pending int
	streams []string
}

func (f fakeServerEngine) PendingCommandCount() int      { return f.pending }
func (f fakeServerEngine) SubscribedStreamIDs() []string { return f.streams }

type fakeClientEngine struct {
	commandIDs []string
	streams    []string
}

func (f fakeClientEngine) PendingCommandIDs() []string   { return f.commandIDs }
func (f fakeClientEngine) SubscribedStreamIDs() []string { return f.streams }

func init() { gin.SetMode(gin.TestMode) }

func TestHealthz_ReportsOK(t *testing.T) {
	router := NewRouter(nil, nil, prometheus.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestDebugPending_IncludesServerAndClientState(t *testing.T) {
	router := NewRouter(
		fakeServerEngine{pending: 2, streams: []string{"user-123"}},
		fakeClientEngine{commandIDs: []string{"c1"}, streams: []string{"user-123"}},
		prometheus.NewRegistry(),
	)

	req := httptest.NewRequest(http.MethodGet, "/debug/pending", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if _, ok := body["server"]; !ok {
		t.Fatal("expected \"server\" key in debug body")
	}
	if _, ok := body["client"]; !ok {
		t.Fatal("expected \"client\" key in debug body")
	}
}

func TestDebugPending_OmitsNilEngines(t *testing.T) {
	router := NewRouter(nil, nil, prometheus.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/debug/pending", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("expected empty debug body with nil engines, got %v", body)
	}
}

func TestMetrics_ServesPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "eventbridge_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	router := NewRouter(nil, nil, reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "eventbridge_test_total") {
		t.Fatalf("metrics body missing expected series: %s", rec.Body.String())
	}
}
