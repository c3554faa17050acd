// Package transport wraps single HTTP exchanges with the vault service.
//
// Every call returns a Result, never an error, for HTTP-level outcomes:
// callers inspect status codes and the decoded envelope. Connection-level
// failures are retried up to the caller's budget; a received status (even an
// error status) and a timeout are both terminal. Timeouts are not retried
// because the remote may still be processing the previous attempt and a
// blind resend risks duplicate side effects.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coursevault/coursevault/internal/logger"
	"github.com/coursevault/coursevault/pkg/store"
)

// ProtocolVersion is attached to every request body so the vault can
// reject clients it no longer supports.
const ProtocolVersion = "1.1"

// HeaderSessionKey carries the session token.
const HeaderSessionKey = "X-Session-Key"

// clientIdent identifies this client implementation in request bodies.
const clientIdent = "coursevault"

// LogPolicy decides whether an exchange is recorded in the audit log.
// The default policy suppresses routine chunk uploads below debug
// verbosity so the event log is not flooded by large transfers.
type LogPolicy func(method, resource string) bool

// DefaultLogPolicy logs everything except chunk PUTs, which are only
// logged at debug verbosity.
func DefaultLogPolicy(method, resource string) bool {
	if IsChunkPut(method, resource) {
		return logger.IsDebug()
	}
	return true
}

// IsChunkPut reports whether an exchange matches the high-volume
// chunk-upload shape.
func IsChunkPut(method, resource string) bool {
	return method == http.MethodPut && strings.HasPrefix(resource, "chunks/")
}

// Options configures a Client.
type Options struct {
	// ProxyURL routes requests through an HTTP proxy when set.
	ProxyURL string

	// Events receives one audit entry per exchange, subject to LogPolicy.
	// May be nil.
	Events store.EventSink

	// LogPolicy defaults to DefaultLogPolicy when nil.
	LogPolicy LogPolicy
}

// Client issues vault exchanges.
type Client struct {
	baseURL    string
	httpClient *http.Client
	events     store.EventSink
	logPolicy  LogPolicy
}

// New creates a transport client for the vault at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("vault base URL is required")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.ProxyURL != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", opts.ProxyURL, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	policy := opts.LogPolicy
	if policy == nil {
		policy = DefaultLogPolicy
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Per-attempt timeouts come from the caller via context; the
		// client itself has no global deadline.
		httpClient: &http.Client{Transport: transport},
		events:     opts.Events,
		logPolicy:  policy,
	}, nil
}

// Send performs one logical exchange: up to maxRetries+1 attempts while no
// response was received, a single attempt otherwise. timeout bounds each
// individual attempt.
//
// payload may be nil (empty body) or any JSON-marshalable value; protocol
// metadata fields are merged in automatically. headers are added verbatim
// on top of the JSON content headers.
func (c *Client) Send(ctx context.Context, resource string, payload any, method string,
	headers map[string]string, maxRetries int, timeout time.Duration) *Result {

	start := time.Now()
	result := &Result{
		Method:   method,
		Resource: resource,
	}

	body, err := c.encodePayload(payload)
	if err != nil {
		result.ErrCode = ErrCodeRequest
		result.ErrDesc = err.Error()
		c.observe(ctx, result, time.Since(start))
		return result
	}

	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result.Attempts = attempt + 1

		status, respBody, err := c.attempt(ctx, method, resource, body, headers, timeout)
		if err == nil {
			result.Status = status
			result.RawBody = respBody
			// Earlier attempts may have recorded a connection failure;
			// a received response supersedes it.
			result.ErrCode = ""
			result.ErrDesc = ""
			if len(respBody) > 0 {
				// A non-JSON body is preserved raw; the envelope stays zero.
				_ = json.Unmarshal(respBody, &result.Body)
			}
			break
		}

		if isTimeout(err) {
			// Terminal: the remote may still be processing this attempt.
			result.ErrCode = ErrCodeTimeout
			result.ErrDesc = err.Error()
			break
		}

		result.ErrCode = ErrCodeConnection
		result.ErrDesc = err.Error()

		if attempt < maxRetries {
			logger.Debug("Retrying after connection failure",
				"method", method,
				"resource", resource,
				"attempt", attempt+1,
				"error", err)
		}
	}

	result.Duration = time.Since(start)
	c.observe(ctx, result, result.Duration)
	return result
}

// attempt issues a single HTTP request and returns the status and body.
func (c *Client) attempt(ctx context.Context, method, resource string, body []byte,
	headers map[string]string, timeout time.Duration) (int, []byte, error) {

	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+"/"+resource, reader)
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := readBody(resp)
	if err != nil {
		return 0, nil, err
	}

	return resp.StatusCode, respBody, nil
}

// encodePayload marshals the payload and merges protocol metadata fields.
func (c *Client) encodePayload(payload any) ([]byte, error) {
	fields := map[string]any{}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request payload: %w", err)
		}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("request payload must be a JSON object: %w", err)
		}
	}

	fields["protocol_version"] = ProtocolVersion
	fields["client"] = clientIdent

	return json.Marshal(fields)
}

// observe records the exchange in the audit log, subject to the policy.
// Every exchange is observed exactly once.
func (c *Client) observe(ctx context.Context, result *Result, elapsed time.Duration) {
	if c.events == nil || !c.logPolicy(result.Method, result.Resource) {
		return
	}

	fields := map[string]any{
		"method":      result.Method,
		"resource":    result.Resource,
		"attempts":    result.Attempts,
		"duration_ms": float64(elapsed.Microseconds()) / 1000.0,
	}

	if result.Received() {
		fields["status"] = result.Status
		if code, desc := result.RemoteError(); code != "" {
			fields["error_code"] = code
			fields["error_desc"] = desc
		}
		c.events.LogEvent(ctx, store.EventHTTPRequest,
			fmt.Sprintf("%s %s -> %d", result.Method, result.Resource, result.Status), fields)
		return
	}

	fields["error_code"] = result.ErrCode
	fields["error_desc"] = result.ErrDesc
	c.events.LogEvent(ctx, store.EventHTTPRequestFailed,
		fmt.Sprintf("%s %s failed: %s", result.Method, result.Resource, result.ErrCode), fields)
}

// isTimeout classifies an attempt error as a timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// readBody drains a response body with a sane cap; vault responses are
// small JSON documents.
func readBody(resp *http.Response) ([]byte, error) {
	const maxBody = 8 << 20
	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}
