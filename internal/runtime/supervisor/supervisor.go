// Package supervisor runs the app's long-lived goroutines under one context.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	logx "estatecron/pkg/logx"
)

// Supervisor starts named goroutines on a shared context. A panic is
// recovered and becomes that goroutine's error. The first error is kept and,
// with WithCancelOnError, cancels the context.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool
	wg          sync.WaitGroup

	mu       sync.Mutex
	firstErr error
	routines map[string]*Routine
}

// Routine is what the supervisor remembers about one goroutine name.
type Routine struct {
	Name        string        `json:"name"`
	Running     int           `json:"running"`
	Runs        uint64        `json:"runs"`
	Panics      uint64        `json:"panics"`
	LastStart   time.Time     `json:"last_start"`
	LastRuntime time.Duration `json:"last_runtime"`
	LastErr     string        `json:"last_err,omitempty"`
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the supervisor context on the first error or panic.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func NewSupervisor(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, log: logx.Nop(), routines: map[string]*Routine{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// Go runs fn on a new goroutine. context.Canceled is not an error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	started := s.begin(name)
	go func() {
		defer s.wg.Done()
		err := s.call(name, fn)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			err = fmt.Errorf("%s: %w", name, err)
		}
		s.end(name, started, err)
		if err != nil && s.cancelOnErr {
			s.cancel()
		}
	}()
}

// Go0 is Go for functions that cannot fail.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

func (s *Supervisor) call(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.routine(name).Panics++
			s.mu.Unlock()
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(s.ctx)
}

// Stop cancels the context and waits for every goroutine.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every goroutine has returned or ctx is done. It cancels
// nothing.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return s.Err()
	}
}

// Routines lists per-name stats sorted by name.
func (s *Supervisor) Routines() []Routine {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	out := make([]Routine, 0, len(s.routines))
	for _, r := range s.routines {
		out = append(out, *r)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// routine returns the stats entry for name. Call with s.mu held.
func (s *Supervisor) routine(name string) *Routine {
	r := s.routines[name]
	if r == nil {
		r = &Routine{Name: name}
		s.routines[name] = r
	}
	return r
}

func (s *Supervisor) begin(name string) time.Time {
	now := time.Now()
	s.mu.Lock()
	r := s.routine(name)
	r.Runs++
	r.Running++
	r.LastStart = now
	s.mu.Unlock()
	return now
}

func (s *Supervisor) end(name string, started time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.routine(name)
	r.Running--
	r.LastRuntime = time.Since(started)
	if err != nil {
		r.LastErr = err.Error()
		if s.firstErr == nil {
			s.firstErr = err
		}
	}
}
