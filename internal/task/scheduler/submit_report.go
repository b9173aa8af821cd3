package scheduler

import (
	"time"

	"golang.org/x/time/rate"

	"estatecron/internal/task/engine"
	logx "estatecron/pkg/logx"
)

const submitWarnEvery = 5 * time.Second

// reportSubmitError logs a trigger the engine refused. Overlap skips are
// routine for a pass slower than its cadence and stay at debug; other
// refusals (engine stopping or disabled) warn at most once per job per
// submitWarnEvery.
func (s *Service) reportSubmitError(name string, err error) {
	if err == nil {
		return
	}
	if engine.IsSkip(err) {
		s.log.Debug("schedule trigger skipped", logx.String("job", name), logx.Err(err))
		return
	}

	s.warnMu.Lock()
	gate := s.submitWarn[name]
	if gate == nil {
		gate = &rate.Sometimes{Interval: submitWarnEvery}
		s.submitWarn[name] = gate
	}
	s.warnMu.Unlock()

	gate.Do(func() {
		s.log.Warn("schedule failed to submit task", logx.String("job", name), logx.Err(err))
	})
}
