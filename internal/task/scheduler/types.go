package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"estatecron/internal/eventbus"
	"estatecron/internal/task/engine"
	logx "estatecron/pkg/logx"
)

// DefaultStartupDelay is the wait between Start and the catch-up pass.
const DefaultStartupDelay = 5 * time.Second

// Config controls the scheduler (trigger) service.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ used by jobs without their own, e.g. "Asia/Riyadh"

	// StartupDelay offsets the catch-up pass that runs every job once after
	// Start. 0 means DefaultStartupDelay; negative disables catch-up.
	StartupDelay time.Duration
}

// Job is one independently-cadenced sweep.
type Job struct {
	Name     string
	Schedule string
	// Timezone overrides Config.Timezone for cron schedules.
	Timezone string
	Timeout  time.Duration
	// Run is one pass; it returns how many entities it changed.
	Run func(ctx context.Context) (affected int, err error)
}

type HistoryItem = engine.HistoryItem

type Result = engine.Result

type jobDef struct {
	job      Job
	spec     ParsedSpec
	cronSpec string
	entryID  cron.EntryID
	spread   time.Duration
	state    *engine.RunState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	engine *engine.Service

	parser cron.Parser
	c      *cron.Cron
	defs   []*jobDef

	catchup *time.Timer

	warnMu     sync.Mutex
	submitWarn map[string]*rate.Sometimes
}

type ScheduleInfo struct {
	Name     string
	Spec     string
	Kind     string
	Timezone string
	Timeout  time.Duration
	Running  bool
	Next     time.Time
	Prev     time.Time
}

type Snapshot struct {
	Enabled      bool
	Started      bool
	Timezone     string
	StartupDelay time.Duration

	// Executor diagnostics (task engine).
	InFlight       int
	Runs           uint64
	Skipped        uint64
	Failed         uint64
	DefaultTimeout time.Duration

	Schedules []ScheduleInfo
	History   []HistoryItem
}
