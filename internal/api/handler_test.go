package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/supportd/internal/cache"
	"github.com/ashureev/supportd/internal/kv"
	"github.com/ashureev/supportd/internal/orchestrator"
	"github.com/ashureev/supportd/internal/routing"
	"github.com/ashureev/supportd/internal/session"
	"github.com/ashureev/supportd/internal/source"
	"github.com/ashureev/supportd/internal/specialist"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	backend, err := kv.OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	sessions := session.NewStore(backend, time.Hour, 50)
	c := cache.New(backend)
	mock := source.NewMock(source.WithLatency(0, 0, 0))
	orders := cache.NewOrderCache(c, mock, time.Hour, time.Hour)
	faq := cache.NewFAQCache(c, mock, time.Hour, 5)
	states := cache.NewAgentStateCache(c, time.Hour)
	engine := routing.NewEngine(sessions, routing.Config{})

	orch := orchestrator.New(sessions, engine, states,
		specialist.NewOrderLookup(orders, states, nil),
		specialist.NewFAQ(faq, states, nil),
	)

	r := chi.NewRouter()
	NewHandler(orch, sessions, backend, "").RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func startTestSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/sessions", map[string]any{})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start session: status = %d, want 201", resp.StatusCode)
	}
	start := decode[orchestrator.StartResult](t, resp)
	if start.SessionID == "" {
		t.Fatal("start session: empty session_id")
	}
	return start.SessionID
}

func TestStartSession(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/sessions", map[string]any{
		"user_data": map[string]string{"name": "Dana"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	start := decode[orchestrator.StartResult](t, resp)
	if !strings.Contains(start.Welcome, "Hello Dana!") {
		t.Errorf("welcome = %q, want personalized", start.Welcome)
	}
}

func TestPostMessage(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	sessionID := startTestSession(t, srv)

	resp := postJSON(t, srv.URL+"/api/sessions/"+sessionID+"/messages",
		map[string]any{"message": "What's the status of order ORD1001?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	result := decode[orchestrator.Result](t, resp)
	if !result.Success {
		t.Error("Success = false, want true")
	}
	if !strings.Contains(result.Reply, "ORD1001") {
		t.Errorf("Reply = %q, want order details", result.Reply)
	}
}

func TestPostMessageBlankIsBadRequest(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	sessionID := startTestSession(t, srv)

	resp := postJSON(t, srv.URL+"/api/sessions/"+sessionID+"/messages",
		map[string]any{"message": "  "})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPostMessageUnknownSessionIs404(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/sessions/ghost/messages",
		map[string]any{"message": "hello"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetHistory(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	sessionID := startTestSession(t, srv)

	postJSON(t, srv.URL+"/api/sessions/"+sessionID+"/messages",
		map[string]any{"message": "What is your return policy?"}).Body.Close()

	resp, err := http.Get(srv.URL + "/api/sessions/" + sessionID + "/history")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decode[struct {
		Count int `json:"count"`
	}](t, resp)
	if body.Count != 3 {
		t.Errorf("history count = %d, want 3", body.Count)
	}

	resp, err = http.Get(srv.URL + "/api/sessions/ghost/history")
	if err != nil {
		t.Fatalf("GET history ghost: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("ghost history status = %d, want 404", resp.StatusCode)
	}
}

func TestResetAndEndSession(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	sessionID := startTestSession(t, srv)

	postJSON(t, srv.URL+"/api/sessions/"+sessionID+"/messages",
		map[string]any{"message": "status of ORD1001"}).Body.Close()

	resp := postJSON(t, srv.URL+"/api/sessions/"+sessionID+"/reset", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/"+sessionID, nil)
	if err != nil {
		t.Fatalf("build DELETE: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE session: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", resp.StatusCode)
	}
	end := decode[orchestrator.EndResult](t, resp)
	if !strings.Contains(end.Summary, "Thank you") {
		t.Errorf("summary = %q, want farewell", end.Summary)
	}
}

func TestListSessions(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	startTestSession(t, srv)
	startTestSession(t, srv)

	resp, err := http.Get(srv.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("GET sessions: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decode[struct {
		Count int `json:"count"`
	}](t, resp)
	if body.Count != 2 {
		t.Errorf("session count = %d, want 2", body.Count)
	}
}

func TestSystemStatsAndHealth(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	sessionID := startTestSession(t, srv)

	postJSON(t, srv.URL+"/api/sessions/"+sessionID+"/messages",
		map[string]any{"message": "status of ORD1001"}).Body.Close()

	resp, err := http.Get(srv.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET stats: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", resp.StatusCode)
	}
	stats := decode[SystemStats](t, resp)
	if !stats.BackendHealthy {
		t.Error("BackendHealthy = false, want true")
	}
	if stats.Sessions != 1 || stats.Conversations != 1 {
		t.Errorf("stats = %+v, want 1 session and 1 conversation", stats)
	}
	if stats.OrderCache < 2 {
		t.Errorf("OrderCache = %d, want >= 2 (order and summary cached)", stats.OrderCache)
	}

	resp, err = http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}
