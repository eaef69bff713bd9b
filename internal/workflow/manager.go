// Package workflow coordinates a full translation run: project locking,
// glossary and translator construction, batch planning, dispatch, and
// per-file assembly of results.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"vntransl/internal/config"
	"vntransl/internal/dispatch"
	"vntransl/internal/logging"
	"vntransl/internal/store"
)

var (
	errRunInProgress = errors.New("a run is already in progress")
	errProjectLocked = errors.New("project is locked by another process")
)

// Summary aggregates the terminal state of one run.
type Summary struct {
	RunID         string
	Files         int
	Entries       int
	Translated    int
	PreExisting   int
	FailedBatches int
	FailedFiles   int
	Duration      time.Duration
}

// Manager owns one project's translation runs.
type Manager struct {
	cfg    *config.Config
	ledger *store.Store
	logger *slog.Logger

	progressInterval time.Duration
	dispatchOpts     []dispatch.Option

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithProgressInterval overrides how often in-flight progress is logged.
func WithProgressInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.progressInterval = interval
		}
	}
}

// WithDispatchOptions forwards options to the run's dispatcher (used in
// tests to shorten retry backoff).
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(m *Manager) {
		m.dispatchOpts = append(m.dispatchOpts, opts...)
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, ledger *store.Store, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:              cfg,
		ledger:           ledger,
		logger:           logging.NewComponentLogger(logger, "workflow"),
		progressInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Stop cancels an in-flight run. Completed work stays written; in-flight
// files are checkpointed on the way out.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Manager) begin(ctx context.Context) (context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil, errRunInProgress
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	return runCtx, nil
}

func (m *Manager) end() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.running = false
}

func (m *Manager) acquireLock() (*flock.Flock, error) {
	lock := flock.New(filepath.Join(m.cfg.StateDir(), "run.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, errProjectLocked
	}
	return lock, nil
}
