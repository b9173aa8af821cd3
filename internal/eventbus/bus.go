// Package eventbus is an in-process fanout of lifecycle signals: task runs,
// catch-up passes and config reloads. Nothing here is persisted.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	TaskStarted  = "task.started"
	TaskFinished = "task.finished"
	TaskFailed   = "task.failed"
	TaskSkipped  = "task.skipped"

	CatchupStarted = "scheduler.catchup"
	ConfigReloaded = "config.reloaded"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus never blocks the publisher. A subscriber whose buffer is full misses
// the event.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory Bus. It starts no goroutines.
func New() *Fanout { return &Fanout{} }

type Fanout struct {
	mu      sync.RWMutex
	subs    []chan Event
	dropped atomic.Uint64
}

func (b *Fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *Fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			// The write lock excludes any Publish still sending on ch.
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s == ch {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
}

// Dropped counts deliveries lost to full subscriber buffers.
func (b *Fanout) Dropped() uint64 { return b.dropped.Load() }
