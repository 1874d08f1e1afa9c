// Package transport implements the HTTP pipeline of the session core: bearer
// token attachment, 401 detection with a single coordinated refresh-and-retry
// cycle, and a JSON convenience client on top.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/viant/authkit/store"
)

// RoundTripper attaches the current access token to outgoing requests and
// recovers a 401 by refreshing the token and replaying the request once.
type RoundTripper struct {
	transport  http.RoundTripper
	store      store.Store
	refreshURL string
	logger     *slog.Logger
	onExpired  func()

	mu      sync.Mutex
	pending *refreshCall
}

// refreshCall is the shared single-flight handle: the first 401 creates it,
// concurrent 401s wait on done and reuse its outcome.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// New creates a RoundTripper reading and writing tokens through credentials,
// refreshing them against refreshURL.
func New(credentials store.Store, refreshURL string, options ...Option) (*RoundTripper, error) {
	if credentials == nil {
		return nil, errors.New("credential store was nil")
	}
	if refreshURL == "" {
		return nil, errors.New("refresh URL was empty")
	}
	ret := &RoundTripper{
		transport:  http.DefaultTransport,
		store:      credentials,
		refreshURL: refreshURL,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret, nil
}

// Store returns the credential store backing this transport.
func (r *RoundTripper) Store() store.Store {
	return r.store
}

// OnExpired registers the expiry escalation callback; it replaces any handler
// installed before.
func (r *RoundTripper) OnExpired(handler func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpired = handler
}

// RoundTrip sends the request with a bearer credential when one exists. A 401
// on a request that carried a token triggers the refresh protocol and one
// replay; a 401 on the replay is surfaced as-is.
func (r *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	attached := false
	out := clone(req)
	if token, ok := r.store.Token(ctx); ok && token.AccessToken != "" {
		out.Header.Set("Authorization", "Bearer "+token.AccessToken)
		attached = true
	}
	resp, err := r.transport.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !attached || isRetried(ctx) {
		return resp, nil
	}
	// Drain the 401 so the connection can be reused before replaying.
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if _, err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	// The replay re-enters RoundTrip so it picks up the refreshed token from
	// the store; the context marker bounds it to a single retry.
	return r.RoundTrip(req.WithContext(markRetried(ctx)))
}

// Refresh obtains a new access token using the persisted refresh token. At
// most one refresh is in flight per credential set: concurrent callers attach
// to the pending call and share its outcome.
func (r *RoundTripper) Refresh(ctx context.Context) (string, error) {
	r.mu.Lock()
	if pending := r.pending; pending != nil {
		r.mu.Unlock()
		select {
		case <-pending.done:
			return pending.token, pending.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	r.pending = call
	r.mu.Unlock()

	call.token, call.err = r.refresh(ctx)

	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
	close(call.done)
	return call.token, call.err
}

func (r *RoundTripper) refresh(ctx context.Context) (string, error) {
	token, ok := r.store.Token(ctx)
	if !ok || token.RefreshToken == "" {
		r.logger.Warn("refresh token absent, expiring session")
		r.expire(ctx)
		return "", ErrMissingRefreshToken
	}

	body, err := json.Marshal(map[string]string{"refreshToken": token.RefreshToken})
	if err != nil {
		return "", err
	}
	// The refresh call bypasses this round tripper so its own 401 cannot
	// recurse into another refresh.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.refreshURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.transport.RoundTrip(req)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Explicit rejection is terminal; transient failures above are not.
		r.logger.Warn("refresh token rejected, expiring session", "status", resp.StatusCode)
		r.expire(ctx)
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, newHTTPError(resp.StatusCode, data).Message)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", newHTTPError(resp.StatusCode, data)
	}

	var parsed struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil || parsed.AccessToken == "" {
		r.logger.Warn("refresh response missing access token, expiring session")
		r.expire(ctx)
		return "", fmt.Errorf("%w: malformed refresh response", ErrRefreshFailed)
	}

	expiry, _ := TokenExpiry(parsed.AccessToken)
	if err := r.store.SetAccessToken(ctx, parsed.AccessToken, expiry); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	r.logger.Debug("access token refreshed")
	return parsed.AccessToken, nil
}

// expire clears the persisted credentials and notifies the session layer.
func (r *RoundTripper) expire(ctx context.Context) {
	if err := r.store.Clear(ctx); err != nil {
		r.logger.Error("failed to clear credential store", "error", err)
	}
	r.mu.Lock()
	handler := r.onExpired
	r.mu.Unlock()
	if handler != nil {
		handler()
	}
}

// clone copies a request, rewinding its body via GetBody so replays carry the
// original payload.
func clone(req *http.Request) *http.Request {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			out.Body = body
		}
	}
	return out
}
