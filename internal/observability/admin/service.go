// Package admin runs the optional operator HTTP endpoint: liveness, scheduler
// status, manual job runs and pprof.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	rtsup "estatecron/internal/runtime/supervisor"
	"estatecron/internal/task/engine"
	"estatecron/internal/task/scheduler"
	logx "estatecron/pkg/logx"
)

const DefaultAddr = "127.0.0.1:8089"

// Config controls the admin HTTP server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Backend is what the endpoints read from and act on.
type Backend interface {
	Ping(ctx context.Context) error
	Snapshot() scheduler.Snapshot
	Routines() []rtsup.Routine
	RunJob(ctx context.Context, name string) (engine.Result, error)
}

type Service struct {
	mu      sync.Mutex
	log     logx.Logger
	cfg     Config
	backend Backend

	srv  *http.Server
	addr string
	sup  *rtsup.Supervisor
}

func New(cfg Config, backend Backend, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, backend: backend, log: log.With(logx.String("comp", "admin"))}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Addr is the bound listen address, empty when not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Reconfigure applies cfg and starts/stops/restarts the server if needed.
// Safe to call during hot-reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
		return nil
	case !running:
		return s.Start(ctx)
	case prev != cfg:
		s.Stop(ctx)
		return s.Start(ctx)
	}
	return nil
}

// Start binds the listener synchronously, so a bad address fails here, and
// serves in the background. It is idempotent.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil || !s.cfg.Enabled {
		return nil
	}
	cur := s.cfg

	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	// Safety: prevent accidental public exposure without auth.
	if !cur.AllowInsecure && cur.Token == "" && !isLoopbackAddr(addr) {
		return errors.New("admin refused to start: non-loopback addr requires token or allow_insecure")
	}
	if cur.AllowInsecure && cur.Token == "" && !isLoopbackAddr(addr) {
		s.log.Warn("admin running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:      s.router(cur),
		ReadTimeout:  cur.ReadTimeout,
		WriteTimeout: cur.WriteTimeout,
	}
	s.srv = srv
	s.addr = ln.Addr().String()
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		// admin is optional; never hard-kill the app.
		rtsup.WithCancelOnError(false),
	)
	s.sup.Go("admin.http", func(context.Context) error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	s.log.Info("admin started", logx.String("addr", s.addr), logx.Bool("token_set", cur.Token != ""), logx.Bool("pprof", cur.Pprof))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.srv, s.sup, s.addr = nil, nil, ""
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
	if sup != nil {
		sup.Cancel()
		_ = sup.Wait(ctx)
	}
	s.log.Info("admin stopped")
}

func (s *Service) router(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Liveness stays unauthenticated so probes need no secret.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.backend.Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(withAuth(cfg.Token))
		r.Get("/status", s.handleStatus)
		r.Post("/jobs/{name}/run", s.handleRun)
		if cfg.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}
	})
	return r
}

type scheduleView struct {
	Name     string    `json:"name"`
	Spec     string    `json:"spec"`
	Kind     string    `json:"kind"`
	Timezone string    `json:"timezone,omitempty"`
	Running  bool      `json:"running"`
	Next     time.Time `json:"next,omitempty"`
	Prev     time.Time `json:"prev,omitempty"`
}

type runView struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Trigger  string `json:"trigger,omitempty"`
	Started  string `json:"started,omitempty"`
	Duration string `json:"duration"`
	Affected int    `json:"affected"`
	Error    string `json:"error,omitempty"`
}

type statusView struct {
	Enabled   bool            `json:"enabled"`
	Started   bool            `json:"started"`
	Timezone  string          `json:"timezone"`
	InFlight  int             `json:"in_flight"`
	Runs      uint64          `json:"runs"`
	Skipped   uint64          `json:"skipped"`
	Failed    uint64          `json:"failed"`
	Schedules []scheduleView  `json:"schedules"`
	History   []runView       `json:"history"`
	Routines  []rtsup.Routine `json:"routines"`
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.backend.Snapshot()
	out := statusView{
		Enabled:   snap.Enabled,
		Started:   snap.Started,
		Timezone:  snap.Timezone,
		InFlight:  snap.InFlight,
		Runs:      snap.Runs,
		Skipped:   snap.Skipped,
		Failed:    snap.Failed,
		Schedules: make([]scheduleView, 0, len(snap.Schedules)),
		History:   make([]runView, 0, len(snap.History)),
		Routines:  s.backend.Routines(),
	}
	for _, it := range snap.Schedules {
		out.Schedules = append(out.Schedules, scheduleView{
			Name: it.Name, Spec: it.Spec, Kind: it.Kind, Timezone: it.Timezone,
			Running: it.Running, Next: it.Next, Prev: it.Prev,
		})
	}
	for _, h := range snap.History {
		out.History = append(out.History, runView{
			ID: h.ID, Name: h.Name, Trigger: h.Trigger, Started: h.Started.Format(time.RFC3339),
			Duration: h.Duration.String(), Affected: h.Affected, Error: h.Error,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	res, err := s.backend.RunJob(r.Context(), name)
	view := runView{Name: name, Duration: res.Duration.String(), Affected: res.Affected, ID: res.ID}
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case engine.IsSkip(err):
		view.Error = err.Error()
		writeJSON(w, http.StatusConflict, view)
		return
	case err != nil:
		view.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, view)
		return
	}
	s.log.Info("job run via admin", logx.String("job", name), logx.Int("affected", res.Affected))
	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func withAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Accept either:
			//   Authorization: Bearer <token>
			// or query param: ?token=<token>
			if got := r.URL.Query().Get("token"); got != "" {
				if tokenEqual(got, tok) {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && tokenEqual(strings.TrimSpace(strings.TrimPrefix(ah, p)), tok) {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
		})
	}
}

func tokenEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func isLoopbackAddr(addr string) bool {
	// addr is expected in host:port (host may be empty).
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// empty host means all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
