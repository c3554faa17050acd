package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/coursevault/coursevault/internal/logger"
	"github.com/coursevault/coursevault/pkg/checksum"
	"github.com/coursevault/coursevault/pkg/chunker"
	"github.com/coursevault/coursevault/pkg/metrics"
	"github.com/coursevault/coursevault/pkg/store"
	"github.com/coursevault/coursevault/pkg/transport"
)

// initOutcome classifies an initialise-backup exchange.
type initOutcome int

const (
	initProceed initOutcome = iota
	initAlreadyFinished
	initTransient
	initConflict
	initVerifyFailed
)

// ProcessFile drives one file through the state machine: remote record
// creation, the sequential chunk loop, and the completion exchange. Every
// persisted mutation happens before the next network call so a crash at any
// point resumes without re-sending confirmed data.
func (m *Manager) ProcessFile(ctx context.Context, fileID int64) error {
	record, err := m.store.GetRecord(ctx, fileID)
	if err != nil {
		return fmt.Errorf("load record %d: %w", fileID, err)
	}

	ctx = logger.WithFile(ctx, record.FileID, record.CourseID)

	switch record.Status {
	case store.StatusFinished, store.StatusCancelled, store.StatusOnHold:
		return fmt.Errorf("record %d is %s, not eligible", fileID, record.Status)
	}

	if record.TotalChunks == 0 {
		total, err := chunker.TotalChunks(record.FileSize, record.ChunkSize)
		if err != nil {
			return m.fail(ctx, record, fmt.Errorf("chunk math for record %d: %w", fileID, err))
		}
		record.TotalChunks = total
	}

	resuming := record.Status == store.StatusInProgress || record.Status == store.StatusError
	if record.TimeTransferStarted.IsZero() {
		record.TimeTransferStarted = m.now()
	}
	record.Status = store.StatusInProgress
	if err := m.store.UpsertRecord(ctx, record); err != nil {
		return fmt.Errorf("persist record %d: %w", fileID, err)
	}

	if resuming {
		m.store.LogEvent(ctx, store.EventTransferResumed, "resuming transfer",
			map[string]any{"file_id": record.FileID, "chunk": record.ChunkNumber})
	} else {
		m.store.LogEvent(ctx, store.EventTransferStarted, "starting transfer",
			map[string]any{"file_id": record.FileID, "total_chunks": record.TotalChunks})
	}

	outcome, err := m.initialiseBackup(ctx, record)
	switch outcome {
	case initAlreadyFinished:
		return m.finish(ctx, record)
	case initProceed:
		// A successful initialise clears the failure streak before the
		// chunk loop starts its own accounting.
		record.ChunkRetries = 0
	default:
		// ChunkRetries doubles as the cross-run attempt counter here:
		// once it passes MaxAttempts the eligibility query stops
		// selecting the record, bounding initialise retries across runs.
		record.ChunkRetries++
		return m.fail(ctx, record, err)
	}

	if err := m.transferChunks(ctx, record); err != nil {
		return err
	}

	return m.complete(ctx, record)
}

// initialiseBackup creates or reconciles the remote backup record.
//
// 201 must echo the verification signature md5(fileId,uuid,filename,
// filesize). 409 means the remote record already exists: its echoed fields
// are compared one by one and any difference is an unresolved conflict the
// client refuses to auto-resolve.
func (m *Manager) initialiseBackup(ctx context.Context, record *store.BackupRecord) (initOutcome, error) {
	if record.UniqueID == "" {
		record.UniqueID = uuid.NewString()
		if err := m.store.UpsertRecord(ctx, record); err != nil {
			return initTransient, fmt.Errorf("persist unique ID: %w", err)
		}
	}

	result := m.auth.Send(ctx, "backup", recordPayload(record), http.MethodPost, "", m.cfg.TransportRetries, m.cfg.RequestTimeout)

	switch {
	case result.Created():
		want := checksum.BackupSignature(record.FileID, record.UniqueID, record.Filename, record.FileSize)
		if result.Body.Hash != want {
			return initVerifyFailed, fmt.Errorf("backup signature mismatch for record %d: got %q", record.FileID, result.Body.Hash)
		}
		return initProceed, nil

	case result.Conflict():
		outcome, err := m.reconcile(ctx, record, result)
		if outcome == initProceed {
			m.refreshRemote(ctx, record)
		}
		return outcome, err

	default:
		return initTransient, fmt.Errorf("backup create for record %d: %s", record.FileID, describeFailure(result))
	}
}

// recordPayload renders a record as the wire body shared by the create and
// update endpoints.
func recordPayload(record *store.BackupRecord) map[string]any {
	return map[string]any{
		"uuid":            record.UniqueID,
		"fileid":          record.FileID,
		"filename":        record.Filename,
		"filehash":        record.ContentHash,
		"filesize":        record.FileSize,
		"chunksize":       record.ChunkSize,
		"totalchunks":     record.TotalChunks,
		"courseid":        record.CourseID,
		"coursename":      record.CourseName,
		"categoryid":      record.CategoryID,
		"categoryname":    record.CategoryName,
		"coursestartdate": checksum.NormalizeDate(record.CourseStartDate),
	}
}

// refreshRemote pushes the current record metadata to the existing remote
// row before a resume. Best effort: chunk and completion verification catch
// anything an ignored update would have broken.
func (m *Manager) refreshRemote(ctx context.Context, record *store.BackupRecord) {
	result := m.auth.Send(ctx, "backup/"+record.UniqueID, recordPayload(record),
		http.MethodPut, "", m.cfg.TransportRetries, m.cfg.RequestTimeout)
	if !result.OK() {
		logger.WarnCtx(ctx, "Remote record refresh failed",
			logger.UniqueID(record.UniqueID), "detail", describeFailure(result))
	}
}

// reconcile compares the remote's conflict echo against the local record.
func (m *Manager) reconcile(ctx context.Context, record *store.BackupRecord, result *transport.Result) (initOutcome, error) {
	env := result.Body

	mismatch := func(field string) (initOutcome, error) {
		return initConflict, fmt.Errorf("%w: record %d differs on %s", ErrUnresolvedConflict, record.FileID, field)
	}

	switch {
	case env.UUID != record.UniqueID:
		return mismatch("uuid")
	case env.FileID == nil || *env.FileID != record.FileID:
		return mismatch("fileid")
	case env.Filename != record.Filename:
		return mismatch("filename")
	case env.FileHash != record.ContentHash:
		return mismatch("filehash")
	case env.FileSize == nil || *env.FileSize != record.FileSize:
		return mismatch("filesize")
	case env.ChunkSize == nil || *env.ChunkSize != record.ChunkSize:
		return mismatch("chunksize")
	case env.TotalChunks == nil || *env.TotalChunks != record.TotalChunks:
		return mismatch("totalchunks")
	case env.CourseID == nil || *env.CourseID != record.CourseID:
		return mismatch("courseid")
	case env.CourseName != record.CourseName:
		return mismatch("coursename")
	case env.CategoryID == nil || *env.CategoryID != record.CategoryID:
		return mismatch("categoryid")
	case env.CategoryName != record.CategoryName:
		return mismatch("categoryname")
	case !checksum.DatesEqual(record.CourseStartDate, env.CourseStartDate):
		return mismatch("coursestartdate")
	}

	if env.IsCompleted != nil && *env.IsCompleted {
		// The remote finished a transfer we locally believed incomplete,
		// typically after a completion timeout. Never re-send chunks.
		logger.InfoCtx(ctx, "Remote already holds completed backup",
			logger.FileID(record.FileID), logger.UniqueID(record.UniqueID))
		return initAlreadyFinished, nil
	}

	return initProceed, nil
}

// transferChunks sends chunks strictly in order from record.ChunkNumber.
// Chunk N is never attempted before N-1 is confirmed; progress and retry
// counts are persisted after every attempt.
func (m *Manager) transferChunks(ctx context.Context, record *store.BackupRecord) error {
	for record.ChunkNumber < record.TotalChunks {
		data, err := chunker.ReadChunk(record.FilePath, record.ChunkNumber, record.FileSize, record.ChunkSize)
		if err != nil {
			return m.fail(ctx, record, fmt.Errorf("read chunk %d of record %d: %w", record.ChunkNumber, record.FileID, err))
		}

		ok, result := m.engine.PutChunk(ctx, data, record.UniqueID, record.ChunkNumber,
			m.cfg.TransportRetries, m.cfg.RequestTimeout)

		record.TimeChunkSent = m.now()

		if ok {
			record.ChunkNumber++
			record.ChunkRetries = 0
			record.TimeChunkCompleted = m.now()
			if err := m.store.UpsertRecord(ctx, record); err != nil {
				return fmt.Errorf("persist chunk progress for record %d: %w", record.FileID, err)
			}
			metrics.ChunksSent.Inc()
			metrics.BytesSent.Add(float64(len(data)))
			continue
		}

		metrics.ChunksFailed.Inc()

		if result.OK() {
			// 200 with the wrong hash is a corruption signal, not a
			// transient failure; abort this file without further retries.
			record.ChunkRetries++
			return m.fail(ctx, record, fmt.Errorf("chunk %d hash mismatch for record %d", record.ChunkNumber, record.FileID))
		}

		record.ChunkRetries++
		if err := m.store.UpsertRecord(ctx, record); err != nil {
			return fmt.Errorf("persist chunk retries for record %d: %w", record.FileID, err)
		}

		logger.WarnCtx(ctx, "Chunk upload failed",
			logger.Chunk(record.ChunkNumber),
			logger.Attempt(record.ChunkRetries),
			"max_attempts", m.cfg.MaxAttempts,
			"detail", describeFailure(result))

		if record.ChunkRetries >= m.cfg.MaxAttempts {
			return m.fail(ctx, record, fmt.Errorf("chunk %d of record %d failed %d consecutive times",
				record.ChunkNumber, record.FileID, record.ChunkRetries))
		}
	}
	return nil
}

// complete confirms the transfer with the vault. Completion may trigger
// server-side assembly, hence the longer timeout. A conflict or signature
// mismatch here is re-checked through reconciliation before giving up: the
// remote may have completed a previous attempt that timed out locally.
func (m *Manager) complete(ctx context.Context, record *store.BackupRecord) error {
	payload := map[string]any{
		"uuid":     record.UniqueID,
		"fileid":   record.FileID,
		"filename": record.Filename,
		"filesize": record.FileSize,
	}

	resource := "backupcomplete/" + record.UniqueID
	result := m.auth.Send(ctx, resource, payload, http.MethodPut, "", m.cfg.TransportRetries, m.cfg.CompletionTimeout)

	want := checksum.BackupSignature(record.FileID, record.UniqueID, record.Filename, record.FileSize)

	switch {
	case (result.OK() || result.Created()) && (result.Body.Hash == "" || result.Body.Hash == want):
		return m.finish(ctx, record)

	case result.Conflict(), result.OK(), result.Created():
		outcome, err := m.initialiseBackup(ctx, record)
		if outcome == initAlreadyFinished {
			return m.finish(ctx, record)
		}
		if err == nil {
			err = fmt.Errorf("completion of record %d not confirmed by vault", record.FileID)
		}
		record.ChunkRetries++
		return m.fail(ctx, record, err)

	default:
		record.ChunkRetries++
		if persistErr := m.store.UpsertRecord(ctx, record); persistErr != nil {
			return fmt.Errorf("persist completion retries for record %d: %w", record.FileID, persistErr)
		}
		if record.ChunkRetries >= m.cfg.MaxAttempts {
			return m.fail(ctx, record, fmt.Errorf("completion of record %d: %s", record.FileID, describeFailure(result)))
		}
		return fmt.Errorf("completion of record %d: %s", record.FileID, describeFailure(result))
	}
}

// finish marks a record FINISHED and performs the gated local cleanup.
func (m *Manager) finish(ctx context.Context, record *store.BackupRecord) error {
	record.Status = store.StatusFinished
	record.ChunkNumber = record.TotalChunks
	record.ChunkRetries = 0
	record.TimeCompleted = m.now()
	record.IsBackedUp = true

	if err := m.store.UpsertRecord(ctx, record); err != nil {
		return fmt.Errorf("persist finished record %d: %w", record.FileID, err)
	}

	metrics.TransfersCompleted.Inc()
	logger.InfoCtx(ctx, "Transfer complete",
		logger.FileID(record.FileID),
		logger.UniqueID(record.UniqueID),
		"total_chunks", record.TotalChunks)

	m.deleteLocal(ctx, record)
	return nil
}

// deleteLocal removes the source archive when configured to, and only once
// the record is confirmed backed up.
func (m *Manager) deleteLocal(ctx context.Context, record *store.BackupRecord) {
	if !m.cfg.DeleteLocalAfterUpload || !record.IsBackedUp || record.FilePath == "" {
		return
	}

	if err := os.Remove(record.FilePath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.WarnCtx(ctx, "Failed to delete local archive",
				logger.FileID(record.FileID), "path", record.FilePath, "error", err)
		}
		return
	}

	m.store.LogEvent(ctx, store.EventBackupDeleted, "local archive deleted after upload",
		map[string]any{"file_id": record.FileID, "path": record.FilePath})
}

// fail moves a record to ERROR, persists it, and returns the cause.
func (m *Manager) fail(ctx context.Context, record *store.BackupRecord, cause error) error {
	record.Status = store.StatusError
	if err := m.store.UpsertRecord(ctx, record); err != nil {
		logger.ErrorCtx(ctx, "Failed to persist error state",
			logger.FileID(record.FileID), "error", err)
	}

	metrics.TransfersErrored.Inc()
	m.store.LogEvent(ctx, store.EventTransferInterrupted, "transfer interrupted",
		map[string]any{
			"file_id":       record.FileID,
			"chunk":         record.ChunkNumber,
			"chunk_retries": record.ChunkRetries,
			"error":         cause.Error(),
		})
	return cause
}

// describeFailure renders a Result for error messages.
func describeFailure(result *transport.Result) string {
	if result.Received() {
		if code, desc := result.RemoteError(); code != "" {
			return fmt.Sprintf("HTTP %d (%s: %s)", result.Status, code, desc)
		}
		return fmt.Sprintf("HTTP %d", result.Status)
	}
	return fmt.Sprintf("%s: %s", result.ErrCode, result.ErrDesc)
}
