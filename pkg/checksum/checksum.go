// Package checksum implements the content-verification hashes exchanged
// with the vault service.
//
// Two hashes are in play:
//
//   - Chunk hash: MD5 of the original (pre-base64) chunk bytes. The server
//     echoes its own hash of the decoded payload; a mismatch is treated as a
//     corruption signal, never silently retried.
//   - Backup signature: MD5 of the comma-joined tuple
//     (fileId, uuid, filename, filesize), confirming that the remote record
//     created by initialise-backup describes the same archive. Order matters;
//     values are stringified as-is.
//
// MD5 is the wire contract of the vault protocol, not a security boundary.
package checksum

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// DateLayout is the normalized form both sides reduce timestamps to before
// comparing course start dates during conflict reconciliation. No timezone
// conversion is performed; that is the metadata source's responsibility.
const DateLayout = "2006-01-02 15:04:05"

// HashBytes returns the lowercase hex MD5 digest of data.
func HashBytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// HashFile returns the lowercase hex MD5 digest of a file's contents,
// streaming so large archives are not loaded into memory.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether data hashes to want. The comparison is
// constant-time; an empty want never verifies.
func Verify(want string, data []byte) bool {
	if want == "" {
		return false
	}
	got := HashBytes(data)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// BackupSignature computes the verification hash for a backup record:
// md5("<fileId>,<uuid>,<filename>,<filesize>").
func BackupSignature(fileID int64, uuid, filename string, fileSize int64) string {
	tuple := fmt.Sprintf("%d,%s,%s,%d", fileID, uuid, filename, fileSize)
	return HashBytes([]byte(tuple))
}

// NormalizeDate reduces a timestamp to DateLayout for conflict comparison.
func NormalizeDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DatesEqual compares a local timestamp against a remote date string after
// normalizing both sides to DateLayout. The remote value is accepted either
// already normalized or in RFC3339.
func DatesEqual(local time.Time, remote string) bool {
	if NormalizeDate(local) == remote {
		return true
	}
	if parsed, err := time.Parse(time.RFC3339, remote); err == nil {
		return NormalizeDate(local) == NormalizeDate(parsed)
	}
	if parsed, err := time.Parse(DateLayout, remote); err == nil {
		return NormalizeDate(local) == NormalizeDate(parsed)
	}
	return false
}
