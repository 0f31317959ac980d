package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"remindbot/internal/persistence"
	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
	logx "remindbot/pkg/logx"
)

var (
	testLoc = reminder.Zone(7)
	testNow = time.Date(2026, 1, 5, 10, 0, 0, 0, testLoc)
)

func sampleView() StatusView {
	return StatusView{
		Platform:  "line",
		StartedAt: testNow.Add(-2 * time.Hour),
		Now:       testNow,
		Store:     reminder.Stats{Conversations: 2, Pending: 5, NextDue: testNow.Add(time.Hour)},
		Persist: persistence.Status{
			Enabled: true, Backend: "sqlite", ObjectName: "tasks.json",
			BackupCron: "0 */6 * * *", Saves: 3, LastSaveAt: testNow.Add(-time.Minute), LastBytes: 2048,
		},
		Scheduler: scheduler.Status{Enabled: true, Running: true, Interval: 20 * time.Second, Delivered: 7},
		Healthy:   true,
	}
}

func do(t *testing.T, h http.Handler, method, path string, hdr map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Body)
	return rec.Code, string(body)
}

func TestStatusPage(t *testing.T) {
	h := Router(Config{}, Deps{Status: sampleView, Location: testLoc}, logx.Nop())
	code, body := do(t, h, http.MethodGet, "/", nil)
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	for _, want := range []string{"line", "5 in 2 conversations", "sqlite / tasks.json", "0 */6 * * *", "2.0 kB", "7 / 0", "2 hours ago"} {
		if !strings.Contains(body, want) {
			t.Fatalf("status page missing %q:\n%s", want, body)
		}
	}
}

func TestStatusPageMemoryOnly(t *testing.T) {
	v := sampleView()
	v.Persist = persistence.Status{}
	h := Router(Config{}, Deps{Status: func() StatusView { return v }}, logx.Nop())
	_, body := do(t, h, http.MethodGet, "/", nil)
	if !strings.Contains(body, "memory only") {
		t.Fatalf("body = %s", body)
	}
}

func TestHealthz(t *testing.T) {
	v := sampleView()
	h := Router(Config{}, Deps{Status: func() StatusView { return v }}, logx.Nop())

	code, body := do(t, h, http.MethodGet, "/healthz", nil)
	var got map[string]any
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if code != http.StatusOK || got["status"] != "ok" || got["pending"] != float64(5) || got["uptime_sec"] != float64(7200) {
		t.Fatalf("healthz = %d %v", code, got)
	}

	v.Healthy = false
	v.Error = "scheduler failed"
	code, body = do(t, h, http.MethodGet, "/healthz", nil)
	if code != http.StatusServiceUnavailable || !strings.Contains(body, "scheduler failed") {
		t.Fatalf("degraded healthz = %d %s", code, body)
	}
}

func TestAPIStatus(t *testing.T) {
	h := Router(Config{}, Deps{Status: sampleView}, logx.Nop())
	_, body := do(t, h, http.MethodGet, "/api/status", nil)
	var got StatusView
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got.Store.Pending != 5 || got.Persist.Backend != "sqlite" || !got.Scheduler.Running {
		t.Fatalf("status = %+v", got)
	}
}

func TestOptionalRoutes(t *testing.T) {
	hit := ""
	mk := func(name string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hit = name })
	}

	bare := Router(Config{}, Deps{}, logx.Nop())
	if code, _ := do(t, bare, http.MethodGet, "/metrics", nil); code != http.StatusNotFound {
		t.Fatalf("metrics without handler = %d", code)
	}
	if code, _ := do(t, bare, http.MethodPost, "/callback", nil); code != http.StatusNotFound && code != http.StatusMethodNotAllowed {
		t.Fatalf("callback without handler = %d", code)
	}

	full := Router(Config{}, Deps{Metrics: mk("metrics"), Webhook: mk("webhook")}, logx.Nop())
	do(t, full, http.MethodGet, "/metrics", nil)
	if hit != "metrics" {
		t.Fatalf("metrics handler not mounted")
	}
	do(t, full, http.MethodPost, "/callback", nil)
	if hit != "webhook" {
		t.Fatalf("webhook handler not mounted")
	}
}

func TestPprofAuth(t *testing.T) {
	h := Router(Config{Pprof: true, PprofToken: "secret"}, Deps{}, logx.Nop())
	if code, _ := do(t, h, http.MethodGet, "/debug/pprof/", nil); code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", code)
	}
	if code, _ := do(t, h, http.MethodGet, "/debug/pprof/?token=wrong", nil); code != http.StatusUnauthorized {
		t.Fatalf("wrong token = %d", code)
	}
	if code, _ := do(t, h, http.MethodGet, "/debug/pprof/", map[string]string{"Authorization": "Bearer secret"}); code != http.StatusOK {
		t.Fatalf("bearer token = %d", code)
	}
	if code, _ := do(t, h, http.MethodGet, "/debug/pprof/?token=secret", nil); code != http.StatusOK {
		t.Fatalf("query token = %d", code)
	}

	off := Router(Config{}, Deps{}, logx.Nop())
	if code, _ := do(t, off, http.MethodGet, "/debug/pprof/", nil); code != http.StatusNotFound {
		t.Fatalf("pprof disabled = %d", code)
	}
}

func TestServiceLifecycle(t *testing.T) {
	h := Router(Config{}, Deps{Status: sampleView}, logx.Nop())
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, h, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatalf("listener never came up")
		}
		time.Sleep(5 * time.Millisecond)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("code = %d", resp.StatusCode)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Addr() != "" {
		t.Fatalf("addr still set after Stop")
	}
}

func TestDisabledServiceIsNoop(t *testing.T) {
	s := New(Config{}, http.NotFoundHandler(), logx.Nop())
	s.Start(context.Background())
	if s.Supervisor() != nil {
		t.Fatalf("disabled service started")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
