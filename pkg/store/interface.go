package store

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned when no transfer record exists for a file.
var ErrRecordNotFound = errors.New("backup record not found")

// RecordStore is the persistence surface the lifecycle manager depends on.
type RecordStore interface {
	// GetRecord returns the transfer record for a local file, or
	// ErrRecordNotFound.
	GetRecord(ctx context.Context, fileID int64) (*BackupRecord, error)

	// UpsertRecord creates or replaces a transfer record.
	UpsertRecord(ctx context.Context, record *BackupRecord) error

	// QueryEligible returns records a batch run should process:
	// not-yet-started, in-progress, and errored under the retry budget.
	// Cancelled, finished, and on-hold records are excluded.
	QueryEligible(ctx context.Context, maxAttempts int) ([]*BackupRecord, error)
}

// SettingsStore is a string key-value surface used for the session token,
// the process lock row, and operator-tunable configuration overrides.
type SettingsStore interface {
	// GetSetting returns the value for key, or "" when absent.
	GetSetting(ctx context.Context, key string) (string, error)

	// SetSetting writes the value for key.
	SetSetting(ctx context.Context, key, value string) error

	// DeleteSetting removes key. Deleting an absent key is not an error.
	DeleteSetting(ctx context.Context, key string) error
}

// EventSink receives structured audit events. Every HTTP exchange, session
// attempt, and transfer state change is reported here.
type EventSink interface {
	LogEvent(ctx context.Context, kind, description string, fields map[string]any)
}

// EventReader lists persisted audit events, newest first.
type EventReader interface {
	ListEvents(ctx context.Context, kind string, since time.Time, limit int) ([]*Event, error)
}

// Store is the full state-store contract: records, settings, and audit log.
type Store interface {
	RecordStore
	SettingsStore
	EventSink
	EventReader
}
