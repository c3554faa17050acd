package logger

import "log/slog"

// Standard field keys for structured logging. Use these keys consistently
// across all log statements so transfer runs can be correlated and queried.
const (
	// Run correlation
	KeyRunID = "run_id" // Batch run identifier

	// Backup identity
	KeyFileID   = "file_id"   // Local file identifier
	KeyUniqueID = "unique_id" // Remote-assigned backup UUID
	KeyCourseID = "course_id" // Course the archive belongs to
	KeyFilename = "filename"  // Archive file name
	KeyFileSize = "file_size" // Archive size in bytes

	// Chunk transfer
	KeyChunk       = "chunk"        // Chunk index (0-based)
	KeyTotalChunks = "total_chunks" // Total chunks for the file
	KeyChunkSize   = "chunk_size"   // Chunk size in bytes
	KeyAttempt     = "attempt"      // Retry attempt number
	KeyMaxRetries  = "max_retries"  // Maximum retry attempts

	// HTTP exchange
	KeyResource   = "resource"    // Remote resource path
	KeyMethod     = "method"      // HTTP method
	KeyStatus     = "status"      // HTTP status code
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Remote or transport error code
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds

	// Record state
	KeyRecordStatus = "record_status" // Transfer record status name
	KeyChunkRetries = "chunk_retries" // Consecutive failures for current chunk
)

// RunID returns a slog.Attr for the batch run identifier
func RunID(id string) slog.Attr {
	return slog.String(KeyRunID, id)
}

// FileID returns a slog.Attr for the local file identifier
func FileID(id int64) slog.Attr {
	return slog.Int64(KeyFileID, id)
}

// UniqueID returns a slog.Attr for the remote backup UUID
func UniqueID(id string) slog.Attr {
	return slog.String(KeyUniqueID, id)
}

// CourseID returns a slog.Attr for the course identifier
func CourseID(id int64) slog.Attr {
	return slog.Int64(KeyCourseID, id)
}

// Chunk returns a slog.Attr for a chunk index
func Chunk(idx int) slog.Attr {
	return slog.Int(KeyChunk, idx)
}

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Status returns a slog.Attr for an HTTP status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
