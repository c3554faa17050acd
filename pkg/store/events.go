package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coursevault/coursevault/internal/logger"
)

// Audit event kinds. These are stable identifiers; operators filter the
// event log on them.
const (
	EventConnectionChecked     = "connection-checked"
	EventConnectionCheckFailed = "connection-check-failed"
	EventSessionCreated        = "session-created"
	EventSessionCreateFailed   = "session-create-failed"
	EventHTTPRequest           = "http-request"
	EventHTTPRequestFailed     = "http-request-failed"
	EventTransferStarted       = "transfer-started"
	EventTransferResumed       = "transfer-resumed"
	EventTransferInterrupted   = "transfer-interrupted"
	EventTimeoutReached        = "timeout-reached"
	EventBackupDeleted         = "backup-deleted"
	EventBackupDownloadFailed  = "backup-download-failed"
	EventLockForced            = "lock-forced"
	EventStatusChanged         = "status-changed"
)

// LogEvent persists an audit event. Event persistence is best-effort: a
// failed insert is logged but never fails the operation being audited.
func (s *GORMStore) LogEvent(ctx context.Context, kind, description string, fields map[string]any) {
	var contextJSON string
	if len(fields) > 0 {
		if data, err := json.Marshal(fields); err == nil {
			contextJSON = string(data)
		}
	}

	event := Event{
		Kind:        kind,
		Description: description,
		Context:     contextJSON,
	}

	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		logger.Warn("Failed to persist audit event", "kind", kind, "error", err)
	}
}

// ListEvents returns persisted events newest first, optionally filtered by
// kind and a lower time bound. limit <= 0 means no limit.
func (s *GORMStore) ListEvents(ctx context.Context, kind string, since time.Time, limit int) ([]*Event, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var events []*Event
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
