package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"estatecron/internal/eventbus"
	logx "estatecron/pkg/logx"

	rtsup "estatecron/internal/runtime/supervisor"
)

const defaultHistorySize = 200

// Service executes tasks. Every accepted task runs on its own supervised
// goroutine so a slow task never delays another one.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	sup      *rtsup.Supervisor
	runCtx   context.Context
	stopping bool

	stateMu sync.Mutex
	states  map[string]*RunState

	hmu     sync.Mutex
	history []HistoryItem

	idSeq    uint64
	inFlight int32
	started  uint64
	skipped  uint64
	failed   uint64
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "taskengine")),
		bus:    bus,
		states: make(map[string]*RunState),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Supervisor returns the engine's supervisor (nil if not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	return sup
}

// Apply swaps execution settings; it affects runs started afterwards.
func (s *Service) Apply(cfg Config) {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Start is idempotent. Runs execute under a context detached from ctx's
// cancellation: Stop lets in-flight passes finish instead of aborting them.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.sup != nil {
		return
	}
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		// A failing task must not cancel its siblings.
		rtsup.WithCancelOnError(false),
	)
	s.runCtx = context.WithoutCancel(ctx)
	s.stopping = false
	s.log.Info("task engine started", logx.Duration("default_timeout", s.cfg.DefaultTimeout))
}

// Stop refuses new tasks and waits, bounded by ctx, for in-flight ones.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	sup := s.sup
	if sup == nil || s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	s.mu.Unlock()

	err := sup.Wait(ctx)
	timedOut := err != nil && ctx.Err() != nil

	// Detach the supervisor either way so a later Start gets a fresh one.
	// Stragglers keep their RunState, so a restarted engine still skips them.
	s.mu.Lock()
	if s.sup == sup {
		s.sup = nil
		s.runCtx = nil
		s.stopping = false
	}
	s.mu.Unlock()

	if timedOut {
		s.log.Warn("task engine stop timed out; detaching in-flight tasks", logx.Int("in_flight", int(atomic.LoadInt32(&s.inFlight))), logx.Err(ctx.Err()))
		go func() {
			_ = sup.Wait(context.Background())
			s.log.Info("detached tasks drained")
		}()
		return
	}
	s.log.Info("task engine stopped")
}

// Submit starts t on its own goroutine and returns immediately.
// ErrOverlapSkip means t's previous run is still in flight.
func (s *Service) Submit(t Task) error {
	t, err := s.prepare(t)
	if err != nil {
		return err
	}

	// Held across sup.Go so Stop cannot start waiting between the checks
	// and the goroutine being registered.
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled {
		return ErrDisabled
	}
	if s.sup == nil {
		return ErrStopped
	}
	if s.stopping {
		return ErrStopping
	}
	if !t.State.tryAcquire() {
		s.onSkipped(t)
		return ErrOverlapSkip
	}

	runCtx := s.runCtx
	s.sup.Go("task."+t.Name, func(context.Context) error {
		defer t.State.release()
		s.execOne(runCtx, t)
		return nil
	})
	return nil
}

// Run executes t on the calling goroutine and returns its outcome. It obeys the
// same overlap rule as Submit and works whether or not the engine is started.
func (s *Service) Run(ctx context.Context, t Task) Result {
	t, err := s.prepare(t)
	if err != nil {
		return Result{Name: t.Name, Err: err}
	}
	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()
	if stopping {
		return Result{ID: t.ID, Name: t.Name, Err: ErrStopping}
	}
	if !t.State.tryAcquire() {
		s.onSkipped(t)
		return Result{ID: t.ID, Name: t.Name, Err: ErrOverlapSkip}
	}
	defer t.State.release()
	return s.execOne(ctx, t)
}

func (s *Service) prepare(t Task) (Task, error) {
	if t.Run == nil {
		return t, fmt.Errorf("task Run is nil")
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return t, fmt.Errorf("task Name is required")
	}
	if strings.TrimSpace(t.ID) == "" {
		t.ID = s.newTaskID(time.Now())
	}
	if t.State == nil {
		t.State = s.stateFor(t.Name)
	}
	if t.Timeout <= 0 {
		s.mu.Lock()
		t.Timeout = s.cfg.DefaultTimeout
		s.mu.Unlock()
	}
	return t, nil
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	running := s.sup != nil && !s.stopping
	s.mu.Unlock()

	s.hmu.Lock()
	h := make([]HistoryItem, len(s.history))
	copy(h, s.history)
	s.hmu.Unlock()

	return Snapshot{
		Enabled:        cfg.Enabled,
		Running:        running,
		InFlight:       int(atomic.LoadInt32(&s.inFlight)),
		Started:        atomic.LoadUint64(&s.started),
		Skipped:        atomic.LoadUint64(&s.skipped),
		Failed:         atomic.LoadUint64(&s.failed),
		DefaultTimeout: cfg.DefaultTimeout,
		History:        h,
	}
}

func (s *Service) stateFor(name string) *RunState {
	s.stateMu.Lock()
	st := s.states[name]
	if st == nil {
		st = &RunState{}
		s.states[name] = st
	}
	s.stateMu.Unlock()
	return st
}

func (s *Service) newTaskID(now time.Time) string {
	seq := atomic.AddUint64(&s.idSeq, 1)
	return fmt.Sprintf("tsk-%x-%x", now.UnixNano(), seq)
}

func (s *Service) onSkipped(t Task) {
	atomic.AddUint64(&s.skipped, 1)
	now := time.Now()
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TaskSkipped, Time: now, Data: TaskEvent{ID: t.ID, Name: t.Name, Trigger: t.Trigger, Started: now, Error: "overlap_skip"}})
	}
	s.log.Debug("task skipped: still running", logx.String("task", t.Name), logx.String("trigger", t.Trigger))
}

func (s *Service) record(item HistoryItem) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}
