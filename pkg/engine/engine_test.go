package engine

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursevault/coursevault/pkg/session"
	"github.com/coursevault/coursevault/pkg/transport"
)

type memSettings struct {
	values map[string]string
}

func (m *memSettings) GetSetting(_ context.Context, key string) (string, error) {
	return m.values[key], nil
}

func (m *memSettings) SetSetting(_ context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func (m *memSettings) DeleteSetting(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func newEngine(t *testing.T, baseURL string) *Engine {
	t.Helper()
	client, err := transport.New(baseURL, transport.Options{})
	require.NoError(t, err)

	settings := &memSettings{values: map[string]string{session.SettingSessionToken: "tok-1"}}
	return New(session.New(client, settings, nil, "hash", 0, time.Second))
}

func TestPutChunkDelivered(t *testing.T) {
	data := []byte("chunk payload bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/chunks/uuid-1/0", r.URL.Path)
		assert.Equal(t, "tok-1", r.Header.Get(transport.HeaderSessionKey))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		// The wire body is base64, the hash covers the original bytes
		decoded, err := base64.StdEncoding.DecodeString(body["data"])
		require.NoError(t, err)
		assert.Equal(t, data, decoded)

		sum := md5.Sum(decoded)
		assert.Equal(t, hex.EncodeToString(sum[:]), body["chunkhash"])

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"chunkhash": body["chunkhash"]})
	}))
	defer server.Close()

	eng := newEngine(t, server.URL)
	ok, result := eng.PutChunk(context.Background(), data, "uuid-1", 0, 0, time.Second)

	assert.True(t, ok)
	assert.True(t, result.OK())
}

func TestPutChunkHashMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"chunkhash": "0000"})
	}))
	defer server.Close()

	eng := newEngine(t, server.URL)
	ok, result := eng.PutChunk(context.Background(), []byte("abc"), "uuid-1", 2, 0, time.Second)

	// A 200 with the wrong hash is not delivery; the raw result still
	// reaches the caller.
	assert.False(t, ok)
	assert.True(t, result.OK())
	assert.Equal(t, "0000", result.Body.ChunkHash)
}

func TestPutChunkServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "E_STORE", "error_desc": "disk full"})
	}))
	defer server.Close()

	eng := newEngine(t, server.URL)
	ok, result := eng.PutChunk(context.Background(), []byte("abc"), "uuid-1", 0, 0, time.Second)

	assert.False(t, ok)
	code, _ := result.RemoteError()
	assert.Equal(t, "E_STORE", code)
}

func TestDeleteChunkIdempotent(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusOK)
			return
		}
		// Already gone
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	eng := newEngine(t, server.URL)

	ok, _ := eng.DeleteChunk(context.Background(), "uuid-1", 3, 0, time.Second)
	assert.True(t, ok)

	ok, result := eng.DeleteChunk(context.Background(), "uuid-1", 3, 0, time.Second)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, result.Status)
}

func TestDeleteChunkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	eng := newEngine(t, server.URL)
	ok, result := eng.DeleteChunk(context.Background(), "uuid-1", 0, 0, time.Second)

	assert.False(t, ok)
	assert.Equal(t, http.StatusInternalServerError, result.Status)
}
