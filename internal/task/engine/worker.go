package engine

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"estatecron/internal/eventbus"
	logx "estatecron/pkg/logx"
)

// slowTask is the duration above which a successful run is logged at info.
const slowTask = 750 * time.Millisecond

func (s *Service) execOne(ctx context.Context, t Task) Result {
	start := time.Now()
	atomic.AddUint64(&s.started, 1)
	atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)

	s.log.Debug("task.started", logx.String("task", t.Name), logx.String("trigger", t.Trigger))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TaskStarted, Time: start, Data: TaskEvent{ID: t.ID, Name: t.Name, Trigger: t.Trigger, Started: start}})
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if t.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
	}

	var (
		affected int
		err      error
	)
	// A panicking task becomes a failed run; it never takes the process down.
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r}
				s.log.Error("task.panic", logx.String("task", t.Name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		affected, err = t.Run(runCtx)
	}()
	if cancel != nil {
		cancel()
	}

	dur := time.Since(start)
	res := Result{ID: t.ID, Name: t.Name, Started: start, Duration: dur, Affected: affected, Err: err}
	item := HistoryItem{ID: t.ID, Name: t.Name, Trigger: t.Trigger, Started: start, Duration: dur, Affected: affected}
	ev := TaskEvent{ID: t.ID, Name: t.Name, Trigger: t.Trigger, Started: start, Duration: dur, Affected: affected}

	if err != nil {
		atomic.AddUint64(&s.failed, 1)
		item.Error = err.Error()
		ev.Error = item.Error
		s.log.Error("task.failed",
			logx.String("task", t.Name),
			logx.String("trigger", t.Trigger),
			logx.Err(err),
			logx.Int("affected", affected),
			logx.Duration("dur", dur),
		)
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TaskFailed, Time: time.Now(), Data: ev})
		}
	} else {
		fields := []logx.Field{
			logx.String("task", t.Name),
			logx.String("trigger", t.Trigger),
			logx.Int("affected", affected),
			logx.Duration("dur", dur),
		}
		if affected > 0 || dur >= slowTask {
			s.log.Info("task.completed", fields...)
		} else {
			s.log.Debug("task.completed", fields...)
		}
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TaskFinished, Time: time.Now(), Data: ev})
		}
	}

	s.record(item)
	return res
}
