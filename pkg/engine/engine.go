// Package engine moves individual chunks between the local archive and the
// vault.
//
// Chunks travel base64-encoded inside JSON bodies, but every hash on the
// wire is computed over the original bytes, never the encoded form. A chunk
// upload only counts as delivered when the vault echoes the matching hash
// back; anything else is reported to the caller for retry accounting.
package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/coursevault/coursevault/internal/logger"
	"github.com/coursevault/coursevault/pkg/checksum"
	"github.com/coursevault/coursevault/pkg/session"
	"github.com/coursevault/coursevault/pkg/transport"
)

// Engine uploads and deletes chunks through an authenticated session.
type Engine struct {
	auth *session.Authenticator
}

// New creates a chunk transfer engine.
func New(auth *session.Authenticator) *Engine {
	return &Engine{auth: auth}
}

// PutChunk uploads one chunk of original (pre-encoding) bytes.
//
// It returns true only when the vault acknowledged with HTTP 200 and echoed
// the MD5 of the original bytes. On any other outcome the raw Result is
// returned unchanged so the caller can decide how to account for it.
func (e *Engine) PutChunk(ctx context.Context, data []byte, remoteID string, chunkIndex int,
	retries int, timeout time.Duration) (bool, *transport.Result) {

	hash := checksum.HashBytes(data)
	payload := map[string]any{
		"data":      base64.StdEncoding.EncodeToString(data),
		"chunkhash": hash,
	}

	resource := fmt.Sprintf("chunks/%s/%d", remoteID, chunkIndex)
	result := e.auth.Send(ctx, resource, payload, http.MethodPut, "", retries, timeout)

	if result.OK() && result.Body.ChunkHash == hash {
		return true, result
	}

	if result.OK() {
		logger.Warn("Chunk hash mismatch from vault",
			logger.UniqueID(remoteID),
			logger.Chunk(chunkIndex),
			"want", hash,
			"got", result.Body.ChunkHash)
	}

	return false, result
}

// DeleteChunk removes a chunk from the vault. It is idempotent: a 404 for a
// chunk that was never stored is treated as success.
func (e *Engine) DeleteChunk(ctx context.Context, remoteID string, chunkIndex int,
	retries int, timeout time.Duration) (bool, *transport.Result) {

	resource := fmt.Sprintf("chunks/%s/%d", remoteID, chunkIndex)
	result := e.auth.Send(ctx, resource, nil, http.MethodDelete, "", retries, timeout)

	ok := result.OK() || result.Status == http.StatusNotFound
	return ok, result
}
