package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	logx "estatecron/pkg/logx"
)

// Manager owns the current config and republishes it when the file changes.
// Env overrides are re-applied on every parse.
type Manager struct {
	path   string
	getenv func(string) string

	mu       sync.RWMutex
	cfg      *Config
	lastHash uint64

	// subsMu is held while sending so Unsubscribe never closes a channel
	// mid-send.
	subsMu sync.Mutex
	subs   []chan *Config

	log   logx.Logger
	check func(ctx context.Context, cfg *Config) error
}

func NewManager(path string) *Manager {
	return &Manager{path: strings.TrimSpace(path), getenv: os.Getenv, log: logx.Nop()}
}

// SetEnv replaces the environment lookup (tests).
func (m *Manager) SetEnv(getenv func(string) string) { m.getenv = getenv }

func (m *Manager) Path() string { return m.path }

func (m *Manager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
}

// SetValidator installs an extra check run on reload, after Validate and
// before the new config is committed.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) { m.check = fn }

// Parse reads and decodes the file without committing it. With no path the
// built-in defaults are used.
func (m *Manager) Parse() (*Config, error) {
	cfg := Default()
	if m.path != "" {
		b, err := os.ReadFile(m.path)
		if err != nil {
			return nil, err
		}
		if cfg, err = decode(m.path, b); err != nil {
			return nil, fmt.Errorf("%s: %w", m.path, err)
		}
	}
	ApplyEnv(cfg, m.getenv)
	return cfg, nil
}

// Load parses, validates and commits the config.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	m.commit(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = fingerprint(cfg)
	m.mu.Unlock()
}

// Subscribe returns a channel that receives every committed reload. A slow
// subscriber only ever misses older configs, never the latest one.
func (m *Manager) Subscribe(buffer int) chan *Config {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		for !offer(ch, cfg) {
			// Full: drop the oldest pending config and retry.
			select {
			case <-ch:
			default:
			}
		}
	}
}

func offer(ch chan *Config, cfg *Config) bool {
	select {
	case ch <- cfg:
		return true
	default:
		return false
	}
}

// Reload re-reads the file and, when it parses, validates and differs from
// the committed config, commits and publishes it. It reports whether a new
// config was published.
func (m *Manager) Reload(ctx context.Context) (bool, error) {
	cfg, err := m.Parse()
	if err != nil {
		return false, err
	}
	h := fingerprint(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		return false, nil
	}
	if err := Validate(cfg); err != nil {
		return false, err
	}
	if m.check != nil {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.check(cctx, cfg)
		cancel()
		if err != nil {
			return false, err
		}
	}
	m.commit(cfg)
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path), logx.String("hash", fmt.Sprintf("%x", h)))
	return true, nil
}
