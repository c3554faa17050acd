package chunker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalChunks(t *testing.T) {
	tests := []struct {
		name      string
		fileSize  int64
		chunkSize int64
		expected  int
		wantErr   bool
	}{
		{"exact multiple", 300, 100, 3, false},
		{"remainder adds chunk", 250, 100, 3, false},
		{"single partial chunk", 50, 100, 1, false},
		{"empty file", 0, 100, 1, false},
		{"one byte", 1, 100, 1, false},
		{"zero chunk size", 100, 0, 0, true},
		{"negative file size", -1, 100, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TotalChunks(tt.fileSize, tt.chunkSize)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBounds(t *testing.T) {
	start, end := Bounds(0, 250, 100)
	assert.Equal(t, int64(0), start)
	assert.Equal(t, int64(100), end)

	start, end = Bounds(2, 250, 100)
	assert.Equal(t, int64(200), start)
	assert.Equal(t, int64(250), end)
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backup.mbz")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestReadChunk(t *testing.T) {
	data := make([]byte, 250)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := writeTempFile(t, data)

	chunk0, err := ReadChunk(path, 0, 250, 100)
	require.NoError(t, err)
	assert.Equal(t, data[0:100], chunk0)

	chunk2, err := ReadChunk(path, 2, 250, 100)
	require.NoError(t, err)
	assert.Equal(t, data[200:250], chunk2)
	assert.Len(t, chunk2, 50)
}

func TestReadChunkSizeMismatch(t *testing.T) {
	path := writeTempFile(t, []byte("short"))

	_, err := ReadChunk(path, 0, 9999, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size changed")
}

func TestReadChunkBeyondEOF(t *testing.T) {
	path := writeTempFile(t, make([]byte, 250))

	_, err := ReadChunk(path, 3, 250, 100)
	require.Error(t, err)
}

func TestReadChunkNegativeIndex(t *testing.T) {
	path := writeTempFile(t, make([]byte, 10))

	_, err := ReadChunk(path, -1, 10, 100)
	require.Error(t, err)
}
