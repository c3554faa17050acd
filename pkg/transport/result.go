package transport

import (
	"net/http"
	"time"
)

// Envelope is the decoded response body of a vault exchange. The protocol
// is JSON with a closed set of optional fields; everything the client ever
// inspects is decoded once here, so callers pattern-match on struct fields
// instead of probing raw maps.
type Envelope struct {
	// Session creation.
	Token string `json:"token,omitempty"`

	// Verification hashes.
	Hash      string `json:"hash,omitempty"`
	ChunkHash string `json:"chunkhash,omitempty"`

	// Remote completion flag, echoed on conflicts.
	IsCompleted *bool `json:"is_completed,omitempty"`

	// Remote error reporting.
	Error     string `json:"error,omitempty"`
	ErrorDesc string `json:"error_desc,omitempty"`

	// Record echo, returned on 409 so the client can reconcile.
	UUID            string `json:"uuid,omitempty"`
	FileID          *int64 `json:"fileid,omitempty"`
	Filename        string `json:"filename,omitempty"`
	FileHash        string `json:"filehash,omitempty"`
	FileSize        *int64 `json:"filesize,omitempty"`
	ChunkSize       *int64 `json:"chunksize,omitempty"`
	TotalChunks     *int   `json:"totalchunks,omitempty"`
	CourseID        *int64 `json:"courseid,omitempty"`
	CourseName      string `json:"coursename,omitempty"`
	CategoryID      *int64 `json:"categoryid,omitempty"`
	CategoryName    string `json:"categoryname,omitempty"`
	CourseStartDate string `json:"coursestartdate,omitempty"`

	// Listing endpoints.
	Downloads []Download `json:"downloads,omitempty"`
	Count     *int       `json:"count,omitempty"`
}

// Download is one entry of the remote downloads listing.
type Download struct {
	UUID        string `json:"uuid"`
	Filename    string `json:"filename"`
	FileSize    int64  `json:"filesize"`
	CourseName  string `json:"coursename"`
	IsCompleted bool   `json:"is_completed"`
	TimeCreated string `json:"timecreated"`
}

// Error code classifications for exchanges that never produced a response.
const (
	ErrCodeTimeout    = "timeout"
	ErrCodeConnection = "connection"
	ErrCodeRequest    = "bad-request"
)

// Result is the outcome of one logical exchange (including transport-level
// retries). It is always returned; HTTP-level failures are states of the
// Result, not Go errors.
type Result struct {
	// Status is the HTTP status code, or 0 when no response was received.
	Status int

	// Body is the decoded response envelope. Zero-valued when the body was
	// absent or not JSON.
	Body Envelope

	// RawBody preserves the undecoded response for diagnostics.
	RawBody []byte

	// Request echo, for the audit log.
	Method   string
	Resource string

	// ErrCode and ErrDesc describe the transport-level failure when no
	// response was received.
	ErrCode string
	ErrDesc string

	// Attempts is the number of HTTP attempts actually issued.
	Attempts int

	// Duration covers the whole exchange including retries.
	Duration time.Duration
}

// Received reports whether any HTTP response arrived.
func (r *Result) Received() bool {
	return r.Status != 0
}

// OK reports HTTP 200.
func (r *Result) OK() bool {
	return r.Status == http.StatusOK
}

// Created reports HTTP 201.
func (r *Result) Created() bool {
	return r.Status == http.StatusCreated
}

// Conflict reports HTTP 409.
func (r *Result) Conflict() bool {
	return r.Status == http.StatusConflict
}

// Unauthorized reports HTTP 401.
func (r *Result) Unauthorized() bool {
	return r.Status == http.StatusUnauthorized
}

// RemoteError returns the remote error code and description, if the
// envelope carried any.
func (r *Result) RemoteError() (code, desc string) {
	return r.Body.Error, r.Body.ErrorDesc
}
