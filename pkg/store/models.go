package store

import "time"

// Status enumerates the lifecycle states of a backup transfer record.
type Status int

const (
	StatusNotStarted Status = iota
	StatusInProgress
	StatusFinished
	StatusError
	StatusOnHold
	StatusCancelled
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "NOT_STARTED"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusFinished:
		return "FINISHED"
	case StatusError:
		return "ERROR"
	case StatusOnHold:
		return "ON_HOLD"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transfer work will ever be
// scheduled for a record in this status. ON_HOLD is resumable and is
// therefore not terminal; CANCELLED is.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// BackupRecord is the per-file transfer-state entity. One row exists per
// local archive being transferred; rows are created when a file is first
// observed and never deleted by the transfer core.
type BackupRecord struct {
	// FileID is the local file reference and primary key.
	FileID int64 `gorm:"primaryKey;autoIncrement:false" json:"file_id"`

	// UniqueID is the remote-assigned backup UUID, set once the remote
	// record is created and before any chunk is sent.
	UniqueID string `gorm:"size:36;index" json:"unique_id"`

	// Archive identity and content.
	FilePath    string `gorm:"size:1024" json:"file_path"`
	Filename    string `gorm:"size:255" json:"filename"`
	ContentHash string `gorm:"size:32" json:"content_hash"`
	PathHash    string `gorm:"size:32" json:"path_hash"`
	FileSize    int64  `json:"file_size"`
	ChunkSize   int64  `json:"chunk_size"`
	TotalChunks int    `json:"total_chunks"`

	// Course metadata. Opaque to the transfer engine; used as hash input
	// and for dedup verification during conflict reconciliation.
	CourseID        int64     `json:"course_id"`
	CourseName      string    `gorm:"size:255" json:"course_name"`
	CategoryID      int64     `json:"category_id"`
	CategoryName    string    `gorm:"size:255" json:"category_name"`
	CourseStartDate time.Time `json:"course_start_date"`

	// Progress. ChunkNumber is the next chunk to send (0-based);
	// 0 <= ChunkNumber <= TotalChunks, and FINISHED implies equality.
	ChunkNumber  int    `json:"chunk_number"`
	Status       Status `gorm:"index" json:"status"`
	ChunkRetries int    `json:"chunk_retries"`

	// Timing.
	TimeCreated         time.Time `json:"time_created"`
	TimeTransferStarted time.Time `json:"time_transfer_started"`
	TimeCompleted       time.Time `json:"time_completed"`
	TimeChunkSent       time.Time `json:"time_chunk_sent"`
	TimeChunkCompleted  time.Time `json:"time_chunk_completed"`

	// IsBackedUp marks that the local copy was safely archived and may be
	// deleted by the (externally gated) cleanup step.
	IsBackedUp bool `json:"is_backed_up"`
}

// TableName returns the table name for BackupRecord.
func (BackupRecord) TableName() string {
	return "backup_records"
}

// Setting stores system-wide key-value settings, including the session
// token and the process lock row.
type Setting struct {
	Key       string    `gorm:"primaryKey;size:255" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Setting.
func (Setting) TableName() string {
	return "settings"
}

// Event is a persisted audit log entry.
type Event struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Kind        string    `gorm:"size:64;index" json:"kind"`
	Description string    `gorm:"type:text" json:"description"`
	Context     string    `gorm:"type:text" json:"context"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName returns the table name for Event.
func (Event) TableName() string {
	return "events"
}

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&BackupRecord{},
		&Setting{},
		&Event{},
	}
}
