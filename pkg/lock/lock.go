// Package lock provides a store-backed mutual exclusion guard for transfer
// runs.
//
// The lock is a settings row holding the acquisition timestamp. Because a
// crashed run cannot release it, a held lock older than the staleness
// window is treated as abandoned and reclaimed by the next run.
package lock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/coursevault/coursevault/internal/logger"
	"github.com/coursevault/coursevault/pkg/store"
)

// SettingRunLock is the state-store key holding the lock timestamp.
const SettingRunLock = "run_lock"

// DefaultStaleness is how old a held lock must be before it is considered
// abandoned. A healthy run finishes well inside this window.
const DefaultStaleness = 24 * time.Hour

// RunLock guards transfer runs against concurrent execution.
type RunLock struct {
	settings  store.SettingsStore
	events    store.EventSink
	staleness time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// New creates a RunLock. A non-positive staleness falls back to
// DefaultStaleness.
func New(settings store.SettingsStore, events store.EventSink, staleness time.Duration) *RunLock {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return &RunLock{
		settings:  settings,
		events:    events,
		staleness: staleness,
		now:       time.Now,
	}
}

// Acquire attempts to take the lock. It returns false when another run
// holds a fresh lock. A stale lock is reclaimed silently apart from a
// warning, since its holder is presumed dead.
func (l *RunLock) Acquire(ctx context.Context) (bool, error) {
	held, err := l.HolderTimestamp(ctx)
	if err != nil {
		return false, err
	}

	if !held.IsZero() {
		age := l.now().Sub(held)
		if age < l.staleness {
			return false, nil
		}
		logger.Warn("Reclaiming stale run lock",
			"held_since", held.Format(time.RFC3339),
			"age", age.Round(time.Second).String())
	}

	if err := l.stamp(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Release drops the lock. Releasing an unheld lock is not an error.
func (l *RunLock) Release(ctx context.Context) error {
	return l.settings.DeleteSetting(ctx, SettingRunLock)
}

// ForceRelease drops the lock regardless of holder and records the
// intervention in the audit log.
func (l *RunLock) ForceRelease(ctx context.Context) error {
	held, err := l.HolderTimestamp(ctx)
	if err != nil {
		return err
	}
	if held.IsZero() {
		return nil
	}

	if err := l.settings.DeleteSetting(ctx, SettingRunLock); err != nil {
		return err
	}

	if l.events != nil {
		l.events.LogEvent(ctx, store.EventLockForced, "run lock forcibly released",
			map[string]any{"held_since": held.Format(time.RFC3339)})
	}
	return nil
}

// HolderTimestamp returns when the lock was acquired, or the zero time when
// it is not held.
func (l *RunLock) HolderTimestamp(ctx context.Context) (time.Time, error) {
	raw, err := l.settings.GetSetting(ctx, SettingRunLock)
	if err != nil {
		return time.Time{}, fmt.Errorf("read run lock: %w", err)
	}
	if raw == "" {
		return time.Time{}, nil
	}

	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// A corrupt value cannot identify a live holder; treat it as a
		// lock from the epoch so the staleness check reclaims it.
		logger.Warn("Corrupt run lock value", "value", raw)
		return time.Unix(0, 0), nil
	}
	return time.Unix(unix, 0), nil
}

// IsStale reports whether a held lock is older than the staleness window.
// An unheld lock is not stale.
func (l *RunLock) IsStale(ctx context.Context) (bool, error) {
	held, err := l.HolderTimestamp(ctx)
	if err != nil {
		return false, err
	}
	if held.IsZero() {
		return false, nil
	}
	return l.now().Sub(held) >= l.staleness, nil
}

func (l *RunLock) stamp(ctx context.Context) error {
	return l.settings.SetSetting(ctx, SettingRunLock, strconv.FormatInt(l.now().Unix(), 10))
}
