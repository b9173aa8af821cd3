package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"estatecron/internal/eventbus"
	logx "estatecron/pkg/logx"
)

func startedEngine(t *testing.T, bus eventbus.Bus) *Service {
	t.Helper()
	s := New(Config{Enabled: true, HistorySize: 10}, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func waitFor(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestSubmitSkipsWhileRunning(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	s := startedEngine(t, bus)

	release := make(chan struct{})
	entered := make(chan struct{})
	task := Task{Name: "sweep", Run: func(ctx context.Context) (int, error) {
		close(entered)
		<-release
		return 3, nil
	}}
	if err := s.Submit(task); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	<-entered

	if err := s.Submit(task); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second Submit err = %v, want ErrOverlapSkip", err)
	}
	if res := s.Run(context.Background(), task); !IsSkip(res.Err) {
		t.Fatalf("Run while running err = %v", res.Err)
	}
	waitFor(t, events, eventbus.TaskSkipped)

	close(release)
	ev := waitFor(t, events, eventbus.TaskFinished)
	if data := ev.Data.(TaskEvent); data.Affected != 3 || data.Name != "sweep" {
		t.Fatalf("finished event = %+v", data)
	}

	snap := s.Snapshot()
	if snap.Skipped != 2 || len(snap.History) != 1 || snap.History[0].Affected != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestDifferentTasksRunConcurrently(t *testing.T) {
	s := startedEngine(t, nil)
	slowStarted := make(chan struct{})
	release := make(chan struct{})
	fastDone := make(chan struct{})

	_ = s.Submit(Task{Name: "slow", Run: func(ctx context.Context) (int, error) {
		close(slowStarted)
		<-release
		return 0, nil
	}})
	<-slowStarted
	_ = s.Submit(Task{Name: "fast", Run: func(ctx context.Context) (int, error) {
		close(fastDone)
		return 0, nil
	}})

	select {
	case <-fastDone:
	case <-time.After(2 * time.Second):
		t.Fatal("fast task blocked behind slow task")
	}
	close(release)
}

func TestPanicBecomesFailedRun(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	res := s.Run(context.Background(), Task{Name: "boom", Run: func(ctx context.Context) (int, error) {
		panic("nil map")
	}})
	var pe *PanicError
	if !errors.As(res.Err, &pe) {
		t.Fatalf("err = %v, want PanicError", res.Err)
	}
	// The state must be released so the next tick runs.
	res = s.Run(context.Background(), Task{Name: "boom", Run: func(ctx context.Context) (int, error) { return 1, nil }})
	if res.Err != nil || res.Affected != 1 {
		t.Fatalf("run after panic = %+v", res)
	}
	if snap := s.Snapshot(); snap.Failed != 1 || len(snap.History) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestTimeoutCancelsRunContext(t *testing.T) {
	s := New(Config{Enabled: true, DefaultTimeout: 20 * time.Millisecond}, logx.Nop(), nil)
	res := s.Run(context.Background(), Task{Name: "slow", Run: func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}})
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", res.Err)
	}
}

func TestStopWaitsForInFlight(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	ctx, cancelParent := context.WithCancel(context.Background())
	s.Start(ctx)

	var finished atomic.Bool
	entered := make(chan struct{})
	err := s.Submit(Task{Name: "pass", Run: func(runCtx context.Context) (int, error) {
		close(entered)
		time.Sleep(50 * time.Millisecond)
		if runCtx.Err() != nil {
			return 0, runCtx.Err()
		}
		finished.Store(true)
		return 1, nil
	}})
	if err != nil {
		t.Fatal(err)
	}
	<-entered
	// Cancelling the parent must not abort the in-flight pass.
	cancelParent()

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	if !finished.Load() {
		t.Fatal("Stop returned before the in-flight pass finished")
	}
	if err := s.Submit(Task{Name: "late", Run: func(context.Context) (int, error) { return 0, nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Submit after Stop err = %v", err)
	}
}

func TestStartAfterStopTimeout(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	s.Start(context.Background())

	release := make(chan struct{})
	entered := make(chan struct{})
	slow := func(context.Context) (int, error) {
		close(entered)
		<-release
		return 0, nil
	}
	if err := s.Submit(Task{Name: "slow", Run: slow}); err != nil {
		t.Fatal(err)
	}
	<-entered

	stopCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	s.Stop(stopCtx)
	cancel()

	s.Start(context.Background())
	defer func() {
		close(release)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	if !s.Snapshot().Running {
		t.Fatal("engine not running after restart")
	}
	done := make(chan struct{})
	if err := s.Submit(Task{Name: "fresh", Run: func(context.Context) (int, error) {
		close(done)
		return 1, nil
	}}); err != nil {
		t.Fatalf("Submit after restart err = %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submitted task never ran")
	}
	if res := s.Run(context.Background(), Task{Name: "sync", Run: func(context.Context) (int, error) { return 2, nil }}); res.Err != nil || res.Affected != 2 {
		t.Fatalf("Run after restart = %+v", res)
	}
	// The detached pass still holds its overlap guard.
	if err := s.Submit(Task{Name: "slow", Run: slow}); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("resubmit of detached task err = %v", err)
	}
}

func TestSubmitDisabled(t *testing.T) {
	s := New(Config{Enabled: false}, logx.Nop(), nil)
	s.Start(context.Background())
	if err := s.Submit(Task{Name: "x", Run: func(context.Context) (int, error) { return 0, nil }}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v", err)
	}
	if err := s.Submit(Task{Name: " ", Run: func(context.Context) (int, error) { return 0, nil }}); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	s := New(Config{Enabled: true, HistorySize: 3}, logx.Nop(), nil)
	for i := 0; i < 5; i++ {
		s.Run(context.Background(), Task{Name: "n", Run: func(context.Context) (int, error) { return i, nil }})
	}
	h := s.Snapshot().History
	if len(h) != 3 || h[0].Affected != 2 || h[2].Affected != 4 {
		t.Fatalf("history = %+v", h)
	}
}
