package checksum

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashRoundTrip(t *testing.T) {
	data := []byte("the quick brown fox")
	assert.True(t, Verify(HashBytes(data), data))
}

func TestHashFileMatchesHashBytes(t *testing.T) {
	data := []byte("archive contents")
	path := filepath.Join(t.TempDir(), "a.mbz")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, HashBytes(data), got)

	_, err = HashFile(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestSingleByteMutationFailsVerification(t *testing.T) {
	data := []byte("chunk payload bytes")
	want := HashBytes(data)

	for i := range data {
		mutated := append([]byte(nil), data...)
		mutated[i] ^= 0x01
		assert.False(t, Verify(want, mutated), "mutation at byte %d must fail", i)
	}
}

func TestVerifyEmptyHashFails(t *testing.T) {
	assert.False(t, Verify("", []byte("data")))
}

func TestBackupSignature(t *testing.T) {
	// md5("7,uuid-x,file.mbz,12345")
	got := BackupSignature(7, "uuid-x", "file.mbz", 12345)
	assert.Equal(t, HashBytes([]byte("7,uuid-x,file.mbz,12345")), got)
}

func TestBackupSignatureOrderMatters(t *testing.T) {
	a := BackupSignature(7, "u", "f.mbz", 100)
	b := BackupSignature(100, "u", "f.mbz", 7)
	assert.NotEqual(t, a, b)
}

func TestDatesEqual(t *testing.T) {
	local := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	assert.True(t, DatesEqual(local, "2026-03-14 09:30:00"))
	assert.True(t, DatesEqual(local, "2026-03-14T09:30:00Z"))
	assert.False(t, DatesEqual(local, "2026-03-14 09:30:01"))
	assert.False(t, DatesEqual(local, "not a date"))
}
