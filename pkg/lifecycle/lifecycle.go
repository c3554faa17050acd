// Package lifecycle drives the per-file backup transfer state machine and
// the batch run that processes all eligible files under the process lock.
//
// A file moves NOT_STARTED -> IN_PROGRESS -> FINISHED, detouring through
// ERROR on bounded retry exhaustion. ON_HOLD and CANCELLED are operator
// states. All progress is persisted after every network exchange so an
// interrupted run resumes exactly where it stopped.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/coursevault/coursevault/internal/logger"
	"github.com/coursevault/coursevault/pkg/engine"
	"github.com/coursevault/coursevault/pkg/lock"
	"github.com/coursevault/coursevault/pkg/metrics"
	"github.com/coursevault/coursevault/pkg/session"
	"github.com/coursevault/coursevault/pkg/store"
)

// ErrLockHeld is returned by Run when another run holds a fresh lock.
var ErrLockHeld = errors.New("another transfer run holds the lock")

// ErrUnresolvedConflict marks a 409 whose echoed fields differ from the
// local record. The client refuses to guess which side is authoritative.
var ErrUnresolvedConflict = errors.New("remote backup record conflicts with local state")

// Config carries the injected tuning knobs of a transfer run.
type Config struct {
	// MaxAttempts bounds consecutive failures of a single chunk before the
	// file transitions to ERROR.
	MaxAttempts int

	// TransportRetries is the connection-failure retry budget per exchange.
	TransportRetries int

	// RequestTimeout bounds ordinary exchanges; CompletionTimeout bounds the
	// completion PUT, which may trigger server-side assembly.
	RequestTimeout    time.Duration
	CompletionTimeout time.Duration

	// RunBudget is the wall-clock budget for a whole batch run, consulted
	// between files. Zero means unbounded.
	RunBudget time.Duration

	// DeleteLocalAfterUpload removes the source archive once the vault
	// confirms completion and the record is marked backed up.
	DeleteLocalAfterUpload bool
}

// ApplyDefaults fills zero fields with working defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.TransportRetries <= 0 {
		c.TransportRetries = 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.CompletionTimeout <= 0 {
		c.CompletionTimeout = 5 * time.Minute
	}
}

// Summary is the outcome of one batch run.
type Summary struct {
	Processed int
	Completed int
	Failed    int
	Deferred  int
}

// Success reports whether every processed file completed and nothing was
// deferred by the run budget.
func (s Summary) Success() bool {
	return s.Failed == 0 && s.Deferred == 0
}

// Manager coordinates sessions, chunk transfers, and record persistence.
type Manager struct {
	store  store.Store
	auth   *session.Authenticator
	engine *engine.Engine
	lock   *lock.RunLock
	cfg    Config

	// now is swappable for tests.
	now func() time.Time
}

// New creates a lifecycle manager.
func New(st store.Store, auth *session.Authenticator, eng *engine.Engine, l *lock.RunLock, cfg Config) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		store:  st,
		auth:   auth,
		engine: eng,
		lock:   l,
		cfg:    cfg,
		now:    time.Now,
	}
}

// RunOptions alters a single batch run.
type RunOptions struct {
	// ForceUnlock clears any held lock before acquiring, recording the
	// intervention in the audit log.
	ForceUnlock bool
}

// Run executes one batch: acquire the lock, probe connectivity, process
// every eligible file sequentially, release the lock. Per-file failures are
// independent; only lock contention or a failed connectivity probe abort
// the run outright.
func (m *Manager) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	runID := uuid.NewString()
	ctx = logger.NewContext(ctx, &logger.LogContext{RunID: runID})

	if opts.ForceUnlock {
		if err := m.lock.ForceRelease(ctx); err != nil {
			return Summary{}, fmt.Errorf("force unlock: %w", err)
		}
	}

	acquired, err := m.lock.Acquire(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		return Summary{}, ErrLockHeld
	}
	defer func() {
		if err := m.lock.Release(ctx); err != nil {
			logger.ErrorCtx(ctx, "Failed to release run lock", "error", err)
		}
	}()

	if !m.CheckConnection(ctx) {
		return Summary{}, errors.New("vault is unreachable")
	}

	eligible, err := m.store.QueryEligible(ctx, m.cfg.MaxAttempts)
	if err != nil {
		return Summary{}, fmt.Errorf("query eligible records: %w", err)
	}

	logger.InfoCtx(ctx, "Starting transfer run", "eligible", len(eligible))

	start := m.now()
	defer func() {
		metrics.RunDuration.Observe(m.now().Sub(start).Seconds())
	}()

	var summary Summary
	for i, record := range eligible {
		if m.cfg.RunBudget > 0 && m.now().Sub(start) >= m.cfg.RunBudget {
			// The budget is the only cancellation point: mid-file progress
			// is already persisted, remaining files wait for the next run.
			summary.Deferred = len(eligible) - i
			m.store.LogEvent(ctx, store.EventTimeoutReached, "run budget exhausted, deferring remaining files",
				map[string]any{"deferred": summary.Deferred, "budget": m.cfg.RunBudget.String()})
			break
		}

		summary.Processed++
		if err := m.ProcessFile(ctx, record.FileID); err != nil {
			summary.Failed++
			logger.ErrorCtx(ctx, "File transfer failed",
				logger.FileID(record.FileID), "error", err)
			continue
		}
		summary.Completed++
	}

	logger.InfoCtx(ctx, "Transfer run finished",
		"processed", summary.Processed,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"deferred", summary.Deferred)
	return summary, nil
}

// CheckConnection probes the vault with a cheap authenticated request and
// records the outcome in the audit log.
func (m *Manager) CheckConnection(ctx context.Context) bool {
	result := m.auth.Send(ctx, "downloadcount", nil, http.MethodGet, "", m.cfg.TransportRetries, m.cfg.RequestTimeout)

	if result.OK() {
		m.store.LogEvent(ctx, store.EventConnectionChecked, "vault reachable", nil)
		return true
	}

	fields := map[string]any{"status": result.Status}
	if result.ErrCode != "" {
		fields["error_code"] = result.ErrCode
		fields["error_desc"] = result.ErrDesc
	}
	m.store.LogEvent(ctx, store.EventConnectionCheckFailed, "vault unreachable", fields)
	return false
}
