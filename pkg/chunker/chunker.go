// Package chunker handles chunk-level segmentation of a backup archive.
//
// A chunk is a fixed-size byte range of the source file, the unit of
// transfer and retry. Chunk 0 is sent first and the next chunk to send is
// always the record's chunk number; resuming after a crash means re-reading
// the local file from that byte offset.
package chunker

import (
	"fmt"
	"io"
	"os"
)

// TotalChunks returns ceil(fileSize / chunkSize).
// A zero-byte file still occupies one (empty) chunk so that a remote record
// is created and completed for it.
func TotalChunks(fileSize, chunkSize int64) (int, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if fileSize < 0 {
		return 0, fmt.Errorf("file size must not be negative, got %d", fileSize)
	}
	if fileSize == 0 {
		return 1, nil
	}
	return int((fileSize + chunkSize - 1) / chunkSize), nil
}

// Bounds returns the byte range [start, end) for a chunk index, clipped to
// the file size. The final chunk may be shorter than chunkSize.
func Bounds(index int, fileSize, chunkSize int64) (start, end int64) {
	start = int64(index) * chunkSize
	end = start + chunkSize
	if end > fileSize {
		end = fileSize
	}
	if start > fileSize {
		start = fileSize
	}
	return start, end
}

// ReadChunk reads chunk index from the file at path.
// It validates the on-disk size against expectedSize so that a file modified
// between runs is caught before a stale byte range is uploaded.
func ReadChunk(path string, index int, expectedSize, chunkSize int64) ([]byte, error) {
	if index < 0 {
		return nil, fmt.Errorf("chunk index must not be negative, got %d", index)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	if info.Size() != expectedSize {
		return nil, fmt.Errorf("archive size changed: recorded %d bytes, found %d", expectedSize, info.Size())
	}

	start, end := Bounds(index, expectedSize, chunkSize)
	if start == end && expectedSize > 0 {
		return nil, fmt.Errorf("chunk %d is beyond end of file", index)
	}

	buf := make([]byte, end-start)
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := f.ReadAt(buf, start); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read chunk %d: %w", index, err)
	}
	return buf, nil
}
