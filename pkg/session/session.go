// Package session obtains and refreshes the vault session token.
//
// A long-lived credential hash is exchanged for a short-lived session token
// via POST /session. The token is persisted in the state store so that
// subsequent runs reuse it until the vault rejects it with 401, at which
// point exactly one re-authentication cycle is attempted per call.
package session

import (
	"context"
	"net/http"
	"time"

	"github.com/coursevault/coursevault/internal/logger"
	"github.com/coursevault/coursevault/pkg/store"
	"github.com/coursevault/coursevault/pkg/transport"
)

// SettingSessionToken is the state-store key holding the current token.
const SettingSessionToken = "session_token"

// resourceSession is the session-creation endpoint.
const resourceSession = "session"

// Authenticator manages the session token and composes authenticated
// requests.
type Authenticator struct {
	client         *transport.Client
	settings       store.SettingsStore
	events         store.EventSink
	credentialHash string
	retries        int
	timeout        time.Duration
}

// New creates an Authenticator. retries and timeout apply to the
// session-creation exchange itself.
func New(client *transport.Client, settings store.SettingsStore, events store.EventSink,
	credentialHash string, retries int, timeout time.Duration) *Authenticator {
	return &Authenticator{
		client:         client,
		settings:       settings,
		events:         events,
		credentialHash: credentialHash,
		retries:        retries,
		timeout:        timeout,
	}
}

// Authenticate exchanges the credential hash for a fresh session token and
// persists it. It returns whether a token was obtained. Every call emits
// exactly one audit event, session-created or session-create-failed.
func (a *Authenticator) Authenticate(ctx context.Context) bool {
	payload := map[string]any{"hash": a.credentialHash}

	result := a.client.Send(ctx, resourceSession, payload, http.MethodPost, nil, a.retries, a.timeout)

	if result.Created() && result.Body.Token != "" {
		if err := a.settings.SetSetting(ctx, SettingSessionToken, result.Body.Token); err != nil {
			logger.Error("Failed to persist session token", "error", err)
			a.logOutcome(ctx, false, result)
			return false
		}
		a.logOutcome(ctx, true, result)
		return true
	}

	a.logOutcome(ctx, false, result)
	return false
}

// logOutcome emits the single audit event for an Authenticate call.
func (a *Authenticator) logOutcome(ctx context.Context, ok bool, result *transport.Result) {
	if a.events == nil {
		return
	}

	fields := map[string]any{"status": result.Status}
	if result.ErrCode != "" {
		fields["error_code"] = result.ErrCode
		fields["error_desc"] = result.ErrDesc
	}

	if ok {
		a.events.LogEvent(ctx, store.EventSessionCreated, "vault session established", fields)
	} else {
		a.events.LogEvent(ctx, store.EventSessionCreateFailed, "vault session creation failed", fields)
	}
}

// Token returns the persisted session token, or "".
func (a *Authenticator) Token(ctx context.Context) string {
	token, err := a.settings.GetSetting(ctx, SettingSessionToken)
	if err != nil {
		logger.Warn("Failed to read session token", "error", err)
		return ""
	}
	return token
}

// Send performs an authenticated exchange.
//
// When token is "", the persisted token is used, authenticating first if
// none is stored. A 401 response triggers exactly one re-authentication
// followed by a single resend; whatever comes back from that resend is
// final. At most one authentication happens per call: when Send already
// authenticated up front, a 401 on the fresh token is returned as is.
func (a *Authenticator) Send(ctx context.Context, resource string, payload any, method string,
	token string, retries int, timeout time.Duration) *transport.Result {

	authenticated := false

	if token == "" {
		token = a.Token(ctx)
	}
	if token == "" {
		if !a.Authenticate(ctx) {
			// Issue the request anyway so the caller gets a uniform
			// Result describing the rejection.
			return a.sendWithToken(ctx, resource, payload, method, "", retries, timeout)
		}
		authenticated = true
		token = a.Token(ctx)
	}

	result := a.sendWithToken(ctx, resource, payload, method, token, retries, timeout)
	if !result.Unauthorized() || authenticated {
		// One authentication per call, whether it happened up front or
		// in response to a 401.
		return result
	}

	logger.Debug("Session token rejected, re-authenticating",
		"resource", resource, "method", method)

	if !a.Authenticate(ctx) {
		return result
	}

	return a.sendWithToken(ctx, resource, payload, method, a.Token(ctx), retries, timeout)
}

func (a *Authenticator) sendWithToken(ctx context.Context, resource string, payload any,
	method, token string, retries int, timeout time.Duration) *transport.Result {

	var headers map[string]string
	if token != "" {
		headers = map[string]string{transport.HeaderSessionKey: token}
	}
	return a.client.Send(ctx, resource, payload, method, headers, retries, timeout)
}
