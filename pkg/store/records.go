package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// GetRecord returns the transfer record for a local file.
func (s *GORMStore) GetRecord(ctx context.Context, fileID int64) (*BackupRecord, error) {
	var record BackupRecord
	if err := s.db.WithContext(ctx).First(&record, "file_id = ?", fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

// UpsertRecord creates or replaces a transfer record.
func (s *GORMStore) UpsertRecord(ctx context.Context, record *BackupRecord) error {
	return s.db.WithContext(ctx).Save(record).Error
}

// ListRecords returns all transfer records, oldest first.
func (s *GORMStore) ListRecords(ctx context.Context) ([]*BackupRecord, error) {
	var records []*BackupRecord
	err := s.db.WithContext(ctx).Order("time_created ASC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// QueryEligible returns the records a batch run should process, oldest
// first: not-yet-started, in-progress, and errored records whose retry
// count has not exceeded maxAttempts. FINISHED, ON_HOLD, and CANCELLED
// records are never selected.
func (s *GORMStore) QueryEligible(ctx context.Context, maxAttempts int) ([]*BackupRecord, error) {
	var records []*BackupRecord
	err := s.db.WithContext(ctx).
		Where("status IN ?", []Status{StatusNotStarted, StatusInProgress}).
		Or("status = ? AND chunk_retries <= ?", StatusError, maxAttempts).
		Order("time_created ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
