package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// mockHealthChecker is a test implementation of HealthChecker
type mockHealthChecker struct {
	ready   bool
	healthy bool
	stale   []common.Address
}

func (m *mockHealthChecker) IsReady() bool                { return m.ready }
func (m *mockHealthChecker) IsHealthy() bool              { return m.healthy }
func (m *mockHealthChecker) StaleFeeds() []common.Address { return m.stale }

func serve(t *testing.T, s *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, req)

	var out map[string]any
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return w.Code, out
}

func TestServer_HealthChecks(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		ready        bool
		healthy      bool
		shuttingDown bool
		wantCode     int
		wantStatus   string
	}{
		{"ready after restore", "/health/ready", true, true, false, http.StatusOK, "ready"},
		{"not ready before restore", "/health/ready", false, true, false, http.StatusServiceUnavailable, "not_ready"},
		{"ready check while shutting down", "/health/ready", true, true, true, http.StatusServiceUnavailable, "shutting_down"},
		{"live with fresh prices", "/health/live", true, true, false, http.StatusOK, "healthy"},
		{"stale price fails liveness", "/health/live", true, false, false, http.StatusServiceUnavailable, "unhealthy"},
		{"live check while shutting down", "/health/live", true, true, true, http.StatusServiceUnavailable, "shutting_down"},
		{"combined ok", "/health", true, true, false, http.StatusOK, "ok"},
		{"combined not ready", "/health", false, true, false, http.StatusServiceUnavailable, "degraded"},
		{"combined stale", "/health", true, false, false, http.StatusServiceUnavailable, "degraded"},
		{"combined shutting down", "/health", true, true, true, http.StatusServiceUnavailable, "shutting_down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &mockHealthChecker{ready: tt.ready, healthy: tt.healthy}
			var shuttingDown atomic.Bool
			shuttingDown.Store(tt.shuttingDown)

			s := NewServer(ServerConfig{Addr: ":0"}, checker, &shuttingDown)
			code, body := serve(t, s, http.MethodGet, tt.path, "")

			if code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, code)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("expected status %q, got %q", tt.wantStatus, body["status"])
			}
			if tt.path == "/health" && !tt.shuttingDown {
				if body["ready"] != tt.ready || body["healthy"] != tt.healthy {
					t.Errorf("expected ready=%v healthy=%v, got %v", tt.ready, tt.healthy, body)
				}
			}
		})
	}
}

func TestServer_HealthListsStaleFeeds(t *testing.T) {
	var shuttingDown atomic.Bool
	checker := &mockHealthChecker{ready: true, stale: []common.Address{btcFeed}}

	code, body := serve(t, NewServer(ServerConfig{}, checker, &shuttingDown), http.MethodGet, "/health", "")

	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	feeds, ok := body["staleFeeds"].([]any)
	if !ok || len(feeds) != 1 || feeds[0] != btcFeed.Hex() {
		t.Errorf("expected stale feed %s, got %v", btcFeed.Hex(), body["staleFeeds"])
	}

	checker.healthy, checker.stale = true, nil
	_, body = serve(t, NewServer(ServerConfig{}, checker, &shuttingDown), http.MethodGet, "/health", "")
	if feeds, ok := body["staleFeeds"].([]any); !ok || len(feeds) != 0 {
		t.Errorf("expected an empty stale feed list, got %v", body["staleFeeds"])
	}
}

func TestServer_MountsAPI(t *testing.T) {
	var shuttingDown atomic.Bool
	checker := &mockHealthChecker{ready: true, healthy: true}

	without := NewServer(ServerConfig{Addr: ":0"}, checker, &shuttingDown)
	w := httptest.NewRecorder()
	without.server.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/collateral", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without API, got %d", w.Code)
	}

	with := NewServer(ServerConfig{Addr: ":0", API: NewHandler(newMockService(), nil)}, checker, &shuttingDown)
	code, body := serve(t, with, http.MethodGet, "/v1/collateral", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200 with API, got %d", code)
	}
	if _, ok := body["collateral"]; !ok {
		t.Errorf("expected collateral list, got %v", body)
	}
}

func TestServer_RefusesCommandsWhileDraining(t *testing.T) {
	var shuttingDown atomic.Bool
	svc := newMockService()
	s := NewServer(ServerConfig{API: NewHandler(svc, nil)}, &mockHealthChecker{ready: true, healthy: true}, &shuttingDown)
	mint := "/v1/accounts/" + alice.Hex() + "/mint"

	if code, _ := serve(t, s, http.MethodPost, mint, `{"amount":"1"}`); code != http.StatusOK {
		t.Fatalf("expected 200 before shutdown, got %d", code)
	}

	shuttingDown.Store(true)
	code, body := serve(t, s, http.MethodPost, mint, `{"amount":"1"}`)
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 while draining, got %d", code)
	}
	if body["error"] != "shutting down" {
		t.Errorf("expected shutting down error, got %v", body)
	}
	if len(svc.commands) != 1 {
		t.Errorf("expected the drained command not to reach the engine, got %v", svc.commands)
	}
	if code, _ := serve(t, s, http.MethodGet, "/v1/collateral", ""); code != http.StatusOK {
		t.Errorf("expected queries to keep answering while draining, got %d", code)
	}
}

func TestNewServer_Defaults(t *testing.T) {
	var shuttingDown atomic.Bool
	s := NewServer(ServerConfig{}, &mockHealthChecker{}, &shuttingDown)

	defaults := ServerConfigDefaults()
	if s.server.ReadTimeout != defaults.ReadTimeout {
		t.Errorf("expected read timeout %v, got %v", defaults.ReadTimeout, s.server.ReadTimeout)
	}
	if s.server.WriteTimeout != defaults.WriteTimeout {
		t.Errorf("expected write timeout %v, got %v", defaults.WriteTimeout, s.server.WriteTimeout)
	}
}
