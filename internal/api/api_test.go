package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/source"
)

const rulesPath = "../../configs/scoring_rules.yaml"

// newTestServer wires the full stack on SQLite, the in-process cache
// and bus, and the synthetic transaction source.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-api-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpFile.Name(),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	loaded, err := rules.LoadFile(rulesPath)
	if err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}
	engine, err := rules.NewEngine(loaded, slog.Default())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	c := cache.NewLRUCache(100)
	t.Cleanup(func() { c.Close() })
	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	policy := source.RetryPolicy{MaxAttempts: 1, InitialBackoff: time.Millisecond, BackoffFactor: 1}
	src := source.NewResilientSource(source.NewSyntheticSource(), nil, policy, nil)

	orchestrator := scoring.NewOrchestrator(src, metrics.NewCalculator(), engine, repo, c, b, slog.Default())
	return NewServer(domain.ServerConfig{}, orchestrator, engine, repo, c, b, rulesPath, "test")
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeAssessment(t *testing.T, rec *httptest.ResponseRecorder) *domain.CreditAssessment {
	t.Helper()
	var a domain.CreditAssessment
	if err := json.NewDecoder(rec.Body).Decode(&a); err != nil {
		t.Fatalf("failed to decode assessment: %v", err)
	}
	return &a
}

func TestAssessEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/assess", map[string]any{
		"merchantId":   "m-stable-01",
		"windowMonths": 12,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	a := decodeAssessment(t, rec)
	if a.ID == "" {
		t.Error("assessment missing ID")
	}
	if a.MerchantID != "m-stable-01" {
		t.Errorf("merchant = %q", a.MerchantID)
	}
	if a.Score < 0 || a.Score > 100 {
		t.Errorf("score out of range: %d", a.Score)
	}
	if a.RulesVersion != "1.0.0" {
		t.Errorf("rules version = %q, want 1.0.0", a.RulesVersion)
	}
	if len(a.Components) != 5 {
		t.Errorf("expected 5 component scores, got %d", len(a.Components))
	}
}

func TestAssessEndpointBadRequests(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/assess", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/assess", map[string]any{"windowMonths": 12})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing merchant: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/assess", map[string]any{
		"merchantId":   "m-001",
		"windowMonths": 120,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("oversized window: status = %d, want 400", rec.Code)
	}
}

func TestSimulateEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/simulate", map[string]any{
		"avgMonthlyVolume": 150000,
		"consistencyScore": 70,
		"growthRate":       0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	a := decodeAssessment(t, rec)
	if a.Score != 63 {
		t.Errorf("score = %d, want 63", a.Score)
	}
	if a.RiskCategory != domain.RiskMedium {
		t.Errorf("risk = %s, want MEDIUM", a.RiskCategory)
	}
	if a.ID != "" {
		t.Error("simulation result must not carry an ID")
	}
}

func TestGetAssessmentEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/assess", map[string]any{"merchantId": "m-growing-7"})
	if rec.Code != http.StatusOK {
		t.Fatalf("assess failed: %d %s", rec.Code, rec.Body)
	}
	created := decodeAssessment(t, rec)

	rec = doJSON(t, srv, http.MethodGet, "/assessments/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	got := decodeAssessment(t, rec)
	if got.ID != created.ID || got.Score != created.Score {
		t.Errorf("retrieved assessment differs: %+v vs %+v", got, created)
	}

	rec = doJSON(t, srv, http.MethodGet, "/assessments/no-such-id", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", rec.Code)
	}
}

func TestGetLatestAssessmentEndpoint(t *testing.T) {
	srv := newTestServer(t)

	if rec := doJSON(t, srv, http.MethodPost, "/assess", map[string]any{"merchantId": "m-seasonal-3"}); rec.Code != http.StatusOK {
		t.Fatalf("assess failed: %d %s", rec.Code, rec.Body)
	}

	rec := doJSON(t, srv, http.MethodGet, "/merchants/m-seasonal-3/assessment", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	got := decodeAssessment(t, rec)
	if got.MerchantID != "m-seasonal-3" {
		t.Errorf("merchant = %q", got.MerchantID)
	}

	rec = doJSON(t, srv, http.MethodGet, "/merchants/m-never-assessed/assessment", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unassessed merchant: status = %d, want 404", rec.Code)
	}
}

func TestRulesEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/rules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var loaded domain.ScoringRules
	if err := json.NewDecoder(rec.Body).Decode(&loaded); err != nil {
		t.Fatalf("failed to decode rules: %v", err)
	}
	if loaded.Version != "1.0.0" {
		t.Errorf("version = %q, want 1.0.0", loaded.Version)
	}

	rec = doJSON(t, srv, http.MethodPost, "/rules/reload", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reload status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp struct {
		Version  string   `json:"version"`
		Warnings []string `json:"warnings"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode reload response: %v", err)
	}
	if resp.Version != "1.0.0" {
		t.Errorf("reloaded version = %q, want 1.0.0", resp.Version)
	}
	if len(resp.Warnings) != 0 {
		t.Errorf("published rule set has warnings: %v", resp.Warnings)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	var health map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", health["status"])
	}
	if health["rules_version"] != "1.0.0" {
		t.Errorf("rules_version = %q, want 1.0.0", health["rules_version"])
	}

	rec = doJSON(t, srv, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ready status = %d", rec.Code)
	}
}
