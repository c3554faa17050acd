package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursevault/coursevault/internal/logger"
)

// recordingSink captures audit events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) LogEvent(_ context.Context, kind, _ string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind)
}

func (r *recordingSink) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newTestClient(t *testing.T, baseURL string, opts Options) *Client {
	t.Helper()
	c, err := New(baseURL, opts)
	require.NoError(t, err)
	return c
}

func TestSendSuccess(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"hash": "abc123"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, Options{})

	result := client.Send(context.Background(), "backup/uuid-1",
		map[string]any{"fileid": 7}, http.MethodPut, nil, 2, time.Second)

	assert.True(t, result.Received())
	assert.True(t, result.OK())
	assert.Equal(t, "abc123", result.Body.Hash)
	assert.Equal(t, 1, result.Attempts)

	// Protocol metadata is merged into every request body
	assert.Equal(t, ProtocolVersion, gotBody["protocol_version"])
	assert.Equal(t, float64(7), gotBody["fileid"])
}

func TestSendExtraHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-1", r.Header.Get(HeaderSessionKey))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, Options{})
	result := client.Send(context.Background(), "downloadcount", nil, http.MethodGet,
		map[string]string{HeaderSessionKey: "tok-1"}, 0, time.Second)

	assert.True(t, result.OK())
}

func TestSendHTTPErrorIsTerminal(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "E500", "error_desc": "boom"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, Options{})
	result := client.Send(context.Background(), "backup", nil, http.MethodPost, nil, 3, time.Second)

	// A received status, even an error status, is never retried
	assert.Equal(t, 1, requests)
	assert.Equal(t, http.StatusInternalServerError, result.Status)
	code, desc := result.RemoteError()
	assert.Equal(t, "E500", code)
	assert.Equal(t, "boom", desc)
}

func TestSendConnectionFailureRetriesUpToBound(t *testing.T) {
	// Grab a port that nothing listens on
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := server.URL
	server.Close()

	client := newTestClient(t, deadURL, Options{})
	result := client.Send(context.Background(), "backup", nil, http.MethodPost, nil, 2, time.Second)

	assert.False(t, result.Received())
	assert.Equal(t, ErrCodeConnection, result.ErrCode)
	assert.Equal(t, 3, result.Attempts) // maxRetries + 1
}

func TestRetriedSuccessClearsFailureCodes(t *testing.T) {
	var mu sync.Mutex
	var calls int

	// First attempt dies at connection level; the retry succeeds. The
	// final result must not carry the earlier failure classification.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()

		if first {
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"count": 2})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, Options{})
	result := client.Send(context.Background(), "downloadcount", nil, http.MethodGet, nil, 2, time.Second)

	require.True(t, result.OK())
	assert.Equal(t, 2, result.Attempts)
	assert.Empty(t, result.ErrCode)
	assert.Empty(t, result.ErrDesc)
}

func TestSendTimeoutIsTerminal(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		server.Close()
	}()

	client := newTestClient(t, server.URL, Options{})
	result := client.Send(context.Background(), "backupcomplete/u", nil, http.MethodPut, nil, 5, 50*time.Millisecond)

	// Timeouts are terminal, not retried: the remote may still be working
	assert.False(t, result.Received())
	assert.Equal(t, ErrCodeTimeout, result.ErrCode)
	assert.Equal(t, 1, result.Attempts)
}

func TestSendInvalidPayload(t *testing.T) {
	client := newTestClient(t, "http://localhost:1", Options{})

	result := client.Send(context.Background(), "backup", make(chan int), http.MethodPost, nil, 0, time.Second)
	assert.False(t, result.Received())
	assert.Equal(t, ErrCodeRequest, result.ErrCode)
}

func TestNewRejectsBadProxy(t *testing.T) {
	_, err := New("http://vault.example", Options{ProxyURL: "://bad"})
	require.Error(t, err)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New("", Options{})
	require.Error(t, err)
}

func TestEveryExchangeIsObservedOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := &recordingSink{}
	client := newTestClient(t, server.URL, Options{Events: sink})

	client.Send(context.Background(), "downloads", nil, http.MethodGet, nil, 0, time.Second)

	kinds := sink.kinds()
	require.Len(t, kinds, 1)
	assert.Equal(t, "http-request", kinds[0])
}

func TestFailedExchangeObservedAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := server.URL
	server.Close()

	sink := &recordingSink{}
	client := newTestClient(t, deadURL, Options{Events: sink})

	client.Send(context.Background(), "backup", nil, http.MethodPost, nil, 0, time.Second)

	kinds := sink.kinds()
	require.Len(t, kinds, 1)
	assert.Equal(t, "http-request-failed", kinds[0])
}

func TestChunkPutSuppressedBelowDebug(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger.SetLevel("INFO")

	sink := &recordingSink{}
	client := newTestClient(t, server.URL, Options{Events: sink})

	client.Send(context.Background(), "chunks/uuid-1/0", nil, http.MethodPut, nil, 0, time.Second)
	assert.Empty(t, sink.kinds())

	logger.SetLevel("DEBUG")
	defer logger.SetLevel("INFO")

	client.Send(context.Background(), "chunks/uuid-1/1", nil, http.MethodPut, nil, 0, time.Second)
	assert.Len(t, sink.kinds(), 1)
}

func TestIsChunkPut(t *testing.T) {
	assert.True(t, IsChunkPut(http.MethodPut, "chunks/uuid/3"))
	assert.False(t, IsChunkPut(http.MethodDelete, "chunks/uuid/3"))
	assert.False(t, IsChunkPut(http.MethodPut, "backup/uuid"))
}
