package lifecycle

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coursevault/coursevault/pkg/store"
	"github.com/coursevault/coursevault/pkg/transport"
)

// SetOnHold pauses a record. Only NOT_STARTED, IN_PROGRESS, and ERROR
// records can be held; a held record keeps its progress and resumes from
// the same chunk.
func (m *Manager) SetOnHold(ctx context.Context, fileID int64) error {
	return m.setStatus(ctx, fileID, store.StatusOnHold,
		store.StatusNotStarted, store.StatusInProgress, store.StatusError)
}

// Resume returns a held record to the eligible pool.
func (m *Manager) Resume(ctx context.Context, fileID int64) error {
	return m.setStatus(ctx, fileID, store.StatusInProgress, store.StatusOnHold)
}

// Cancel permanently withdraws a record from transfer. Cancelled records
// are never selected again; only FINISHED records cannot be cancelled.
func (m *Manager) Cancel(ctx context.Context, fileID int64) error {
	return m.setStatus(ctx, fileID, store.StatusCancelled,
		store.StatusNotStarted, store.StatusInProgress, store.StatusError, store.StatusOnHold)
}

// setStatus performs an operator-initiated status change. The only side
// effects are persistence and an audit event.
func (m *Manager) setStatus(ctx context.Context, fileID int64, to store.Status, from ...store.Status) error {
	record, err := m.store.GetRecord(ctx, fileID)
	if err != nil {
		return fmt.Errorf("load record %d: %w", fileID, err)
	}

	allowed := false
	for _, s := range from {
		if record.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("record %d is %s, cannot move to %s", fileID, record.Status, to)
	}

	previous := record.Status
	record.Status = to
	if err := m.store.UpsertRecord(ctx, record); err != nil {
		return fmt.Errorf("persist record %d: %w", fileID, err)
	}

	m.store.LogEvent(ctx, store.EventStatusChanged, "record status changed by operator",
		map[string]any{
			"file_id": fileID,
			"from":    previous.String(),
			"to":      to.String(),
		})
	return nil
}

// Downloads lists the backups the vault currently holds.
func (m *Manager) Downloads(ctx context.Context) ([]transport.Download, error) {
	result := m.auth.Send(ctx, "downloads", nil, http.MethodGet, "", m.cfg.TransportRetries, m.cfg.RequestTimeout)
	if !result.OK() {
		m.store.LogEvent(ctx, store.EventBackupDownloadFailed, "vault downloads listing failed",
			map[string]any{"status": result.Status, "error_code": result.ErrCode})
		return nil, fmt.Errorf("list vault downloads: %s", describeFailure(result))
	}
	return result.Body.Downloads, nil
}

// DownloadCount returns how many backups the vault currently holds.
func (m *Manager) DownloadCount(ctx context.Context) (int, error) {
	result := m.auth.Send(ctx, "downloadcount", nil, http.MethodGet, "", m.cfg.TransportRetries, m.cfg.RequestTimeout)
	if !result.OK() || result.Body.Count == nil {
		m.store.LogEvent(ctx, store.EventBackupDownloadFailed, "vault download count failed",
			map[string]any{"status": result.Status, "error_code": result.ErrCode})
		return 0, fmt.Errorf("vault download count: %s", describeFailure(result))
	}
	return *result.Body.Count, nil
}
