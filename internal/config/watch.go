package config

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "estatecron/pkg/logx"
)

const (
	reloadDebounce = 250 * time.Millisecond
	watchRetryBase = 250 * time.Millisecond
	watchRetryMax  = 5 * time.Second
)

// Watch reloads the config whenever its file changes until ctx is done. It
// watches the parent directory so editors that replace the file by rename
// are handled. A broken watcher is recreated with jittered backoff.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)

	var (
		tmu   sync.Mutex
		timer *time.Timer
	)
	schedule := func() {
		tmu.Lock()
		defer tmu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() {
			if _, err := m.Reload(ctx); err != nil {
				m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
			}
		})
	}
	defer func() {
		tmu.Lock()
		if timer != nil {
			timer.Stop()
		}
		tmu.Unlock()
	}()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	retry := watchRetryBase
	for ctx.Err() == nil {
		healthy, err := m.watchDir(ctx, dir, file, schedule)
		if ctx.Err() != nil {
			break
		}
		if healthy {
			retry = watchRetryBase
		}
		wait := retry + time.Duration(rng.Int63n(int64(retry/2)+1))
		m.log.Warn("config watcher stopped; restarting", logx.String("dir", dir), logx.Duration("backoff", wait), logx.Err(err))
		if retry *= 2; retry > watchRetryMax {
			retry = watchRetryMax
		}
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
	return nil
}

// watchDir runs one fsnotify watcher until it breaks or ctx is done. healthy
// reports whether the watcher got as far as delivering events.
func (m *Manager) watchDir(ctx context.Context, dir, file string, changed func()) (healthy bool, err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false, err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return false, err
	}
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case ev, ok := <-w.Events:
			if !ok {
				return true, nil
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) && ev.Op&relevant != 0 {
				changed()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return true, nil
			}
			if err == nil {
				continue
			}
			msg := strings.ToLower(err.Error())
			switch {
			case strings.Contains(msg, "overflow"):
				// Events may have been lost; reload once.
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				changed()
			case strings.Contains(msg, "closed"):
				return true, err
			default:
				m.log.Warn("config watch error", logx.Err(err))
			}
		}
	}
}
