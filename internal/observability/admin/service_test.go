package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	rtsup "estatecron/internal/runtime/supervisor"
	"estatecron/internal/task/engine"
	"estatecron/internal/task/scheduler"
	logx "estatecron/pkg/logx"
)

type fakeBackend struct {
	pingErr error
	runs    []string
}

func (b *fakeBackend) Ping(context.Context) error { return b.pingErr }

func (b *fakeBackend) Snapshot() scheduler.Snapshot {
	return scheduler.Snapshot{
		Enabled:  true,
		Started:  true,
		Timezone: "Asia/Riyadh",
		Runs:     3,
		Schedules: []scheduler.ScheduleInfo{
			{Name: "promotions", Spec: "*/15 * * * *", Kind: "cron"},
		},
		History: []scheduler.HistoryItem{
			{ID: "tsk-1", Name: "promotions", Trigger: "cron", Started: time.Unix(0, 0), Affected: 2},
		},
	}
}

func (b *fakeBackend) Routines() []rtsup.Routine {
	return []rtsup.Routine{{Name: "config.watch", Running: 1, Runs: 1}}
}

func (b *fakeBackend) RunJob(_ context.Context, name string) (engine.Result, error) {
	b.runs = append(b.runs, name)
	switch name {
	case "promotions":
		return engine.Result{Name: name, Affected: 4}, nil
	case "elite_expiry":
		return engine.Result{Name: name}, engine.ErrOverlapSkip
	}
	return engine.Result{}, fmt.Errorf("%w: %s", scheduler.ErrUnknownJob, name)
}

func serve(t *testing.T, s *Service, cfg Config, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router(cfg).ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	b := &fakeBackend{}
	s := New(Config{}, b, logx.Nop())
	cfg := Config{Token: "secret"}

	if rec := serve(t, s, cfg, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	b.pingErr = errors.New("db gone")
	if rec := serve(t, s, cfg, http.MethodGet, "/healthz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz with failing store = %d", rec.Code)
	}
}

func TestStatusRequiresToken(t *testing.T) {
	s := New(Config{}, &fakeBackend{}, logx.Nop())
	cfg := Config{Token: "secret"}

	if rec := serve(t, s, cfg, http.MethodGet, "/status", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", rec.Code)
	}
	if rec := serve(t, s, cfg, http.MethodGet, "/status?token=wrong", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token = %d", rec.Code)
	}
	rec := serve(t, s, cfg, http.MethodGet, "/status", map[string]string{"Authorization": "Bearer secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got statusView
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Runs != 3 || len(got.Schedules) != 1 || got.History[0].Affected != 2 || got.Routines[0].Name != "config.watch" {
		t.Fatalf("status body = %+v", got)
	}
}

func TestRunJob(t *testing.T) {
	b := &fakeBackend{}
	s := New(Config{}, b, logx.Nop())
	cfg := Config{}

	tests := []struct {
		job  string
		code int
	}{
		{"promotions", http.StatusOK},
		{"elite_expiry", http.StatusConflict},
		{"reindex", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := serve(t, s, cfg, http.MethodPost, "/jobs/"+tt.job+"/run", nil)
		if rec.Code != tt.code {
			t.Fatalf("%s: code = %d, want %d", tt.job, rec.Code, tt.code)
		}
	}
	if len(b.runs) != 3 || b.runs[0] != "promotions" {
		t.Fatalf("runs = %v", b.runs)
	}
	if rec := serve(t, s, cfg, http.MethodGet, "/jobs/promotions/run", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET run = %d", rec.Code)
	}
}

func TestPprofOnlyWhenEnabled(t *testing.T) {
	s := New(Config{}, &fakeBackend{}, logx.Nop())
	if rec := serve(t, s, Config{}, http.MethodGet, "/debug/pprof/", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled = %d", rec.Code)
	}
	if rec := serve(t, s, Config{Pprof: true}, http.MethodGet, "/debug/pprof/", nil); rec.Code != http.StatusOK {
		t.Fatalf("pprof enabled = %d", rec.Code)
	}
}

func TestStartStop(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, &fakeBackend{}, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	if s.Addr() != "" {
		t.Fatal("Addr must be empty after Stop")
	}
}

func TestRefusesPublicBindWithoutToken(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, &fakeBackend{}, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		s.Stop(context.Background())
		t.Fatal("expected refusal")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:8089": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":8089":          false,
		"10.0.0.5:8089":  false,
		"nonsense":       false,
	} {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
