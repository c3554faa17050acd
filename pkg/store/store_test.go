package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GORMStore {
	t.Helper()
	s, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "state.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, DatabaseTypeSQLite, cfg.Type)
	assert.NotEmpty(t, cfg.SQLite.Path)
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{Type: DatabaseTypePostgres}
	require.Error(t, cfg.Validate())

	cfg.Postgres = PostgresConfig{Host: "db", Database: "vault", User: "vault"}
	require.NoError(t, cfg.Validate())

	bad := &Config{Type: "mysql"}
	require.Error(t, bad.Validate())
}

func TestRecordRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := &BackupRecord{
		FileID:      7,
		Filename:    "course-7.mbz",
		FileSize:    250,
		ChunkSize:   100,
		TotalChunks: 3,
		Status:      StatusNotStarted,
		TimeCreated: time.Now(),
	}
	require.NoError(t, s.UpsertRecord(ctx, record))

	got, err := s.GetRecord(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "course-7.mbz", got.Filename)
	assert.Equal(t, 3, got.TotalChunks)
	assert.Equal(t, StatusNotStarted, got.Status)

	// Upsert replaces
	got.ChunkNumber = 2
	got.Status = StatusInProgress
	require.NoError(t, s.UpsertRecord(ctx, got))

	got, err = s.GetRecord(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ChunkNumber)
	assert.Equal(t, StatusInProgress, got.Status)
}

func TestGetRecordNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRecord(context.Background(), 999)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestQueryEligible(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	records := []*BackupRecord{
		{FileID: 1, Status: StatusNotStarted, TimeCreated: base},
		{FileID: 2, Status: StatusInProgress, TimeCreated: base.Add(time.Second)},
		{FileID: 3, Status: StatusError, ChunkRetries: 2, TimeCreated: base.Add(2 * time.Second)},
		{FileID: 4, Status: StatusError, ChunkRetries: 5, TimeCreated: base.Add(3 * time.Second)},
		{FileID: 5, Status: StatusFinished, TimeCreated: base.Add(4 * time.Second)},
		{FileID: 6, Status: StatusCancelled, TimeCreated: base.Add(5 * time.Second)},
		{FileID: 7, Status: StatusOnHold, TimeCreated: base.Add(6 * time.Second)},
	}
	for _, r := range records {
		require.NoError(t, s.UpsertRecord(ctx, r))
	}

	eligible, err := s.QueryEligible(ctx, 3)
	require.NoError(t, err)

	ids := make([]int64, 0, len(eligible))
	for _, r := range eligible {
		ids = append(ids, r.FileID)
	}
	// Error record over the retry budget, finished, cancelled, and on-hold
	// records are all excluded; ordering is oldest first.
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	val, err := s.GetSetting(ctx, "session_token")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, s.SetSetting(ctx, "session_token", "tok-1"))

	val, err = s.GetSetting(ctx, "session_token")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", val)

	require.NoError(t, s.SetSetting(ctx, "session_token", "tok-2"))
	val, err = s.GetSetting(ctx, "session_token")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", val)

	require.NoError(t, s.DeleteSetting(ctx, "session_token"))
	val, err = s.GetSetting(ctx, "session_token")
	require.NoError(t, err)
	assert.Empty(t, val)

	// Deleting an absent key is not an error
	require.NoError(t, s.DeleteSetting(ctx, "does-not-exist"))
}

func TestEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.LogEvent(ctx, EventSessionCreated, "session established", map[string]any{"status": 201})
	s.LogEvent(ctx, EventHTTPRequest, "POST /backup", nil)

	all, err := s.ListEvents(ctx, "", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	sessions, err := s.ListEvents(ctx, EventSessionCreated, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "session established", sessions[0].Description)
	assert.Contains(t, sessions[0].Context, "201")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "NOT_STARTED", StatusNotStarted.String())
	assert.Equal(t, "IN_PROGRESS", StatusInProgress.String())
	assert.Equal(t, "FINISHED", StatusFinished.String())
	assert.Equal(t, "ERROR", StatusError.String())
	assert.Equal(t, "ON_HOLD", StatusOnHold.String())
	assert.Equal(t, "CANCELLED", StatusCancelled.String())

	assert.True(t, StatusFinished.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusOnHold.IsTerminal())
}
