package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/viant/authkit/permission"
	"github.com/viant/authkit/store"
	"github.com/viant/authkit/transport"
	"golang.org/x/oauth2"
)

const (
	loginPath  = "/auth/login"
	logoutPath = "/auth/logout"
	mePath     = "/auth/me"
)

// Refresher obtains a fresh access token; the transport RoundTripper
// implements it with single-flight coordination.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Option customises the session service.
type Option func(*Service)

// WithLogger attaches a diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRefresher wires the refresh coordinator used by RefreshAccessToken.
func WithRefresher(refresher Refresher) Option {
	return func(s *Service) {
		s.refresher = refresher
	}
}

// WithExpiryListener registers the UI-boundary callback invoked when the
// session transitions to expired, typically to present the sign-in flow.
func WithExpiryListener(listener func()) Option {
	return func(s *Service) {
		s.onExpired = listener
	}
}

// Service owns the Session entity; it is the only writer of session state and
// pushes every role change to the permission engine through an explicit
// synchronisation call.
type Service struct {
	credentials store.Store
	engine      *permission.Engine
	client      *transport.Client
	refresher   Refresher
	logger      *slog.Logger
	onExpired   func()

	// opMu serializes state-mutating operations end to end so a login in
	// flight cannot interleave with a logout and persist mixed state.
	opMu sync.Mutex

	mu        sync.RWMutex
	state     State
	user      *store.User
	token     oauth2.Token
	lastError string
	// gen changes whenever the session is cleared; an operation whose
	// response lands under a different generation discards it.
	gen uint64
}

// New creates the session service, restoring persisted state when present and
// re-synchronising the permission engine from it.
func New(ctx context.Context, credentials store.Store, engine *permission.Engine, client *transport.Client, options ...Option) (*Service, error) {
	if credentials == nil {
		return nil, errors.New("credential store was nil")
	}
	if engine == nil {
		return nil, errors.New("permission engine was nil")
	}
	if client == nil {
		return nil, errors.New("client was nil")
	}
	ret := &Service{
		credentials: credentials,
		engine:      engine,
		client:      client,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range options {
		opt(ret)
	}
	if err := ret.restore(ctx); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Service) restore(ctx context.Context) error {
	snapshot, err := s.credentials.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session snapshot: %w", err)
	}
	if snapshot == nil || !snapshot.Authenticated || snapshot.Token.AccessToken == "" {
		return nil
	}
	s.state = StateAuthenticated
	s.user = snapshot.User
	s.token = snapshot.Token

	permissions, err := s.credentials.LoadPermissions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load permission snapshot: %w", err)
	}
	if permissions != nil {
		s.engine.Restore(permission.Role(permissions.Role), permissions.CustomPermissions)
	} else if s.user != nil {
		s.engine.Restore(permission.Role(s.user.Role), s.user.Permissions)
	}
	if s.user != nil {
		s.logger.Debug("session restored", "user", s.user.Username)
	}
	return nil
}

// Login authenticates with the identity service. It never fails with an
// error: the result carries the outcome and, on failure, the recorded
// message. The state returns to its prior value on failure.
func (s *Service) Login(ctx context.Context, credentials Credentials) *LoginResult {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	prior := s.state
	gen := s.gen
	s.state = StateAuthenticating
	s.lastError = ""
	s.mu.Unlock()

	var response struct {
		AccessToken  string      `json:"accessToken"`
		RefreshToken string      `json:"refreshToken"`
		User         *store.User `json:"user"`
	}
	err := s.client.Post(ctx, loginPath, &credentials, &response)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		// Superseded by an expiry or logout while in flight; keep whatever
		// state the later transition left behind.
		message := statusMessage(err)
		if message == "" {
			message = "Sign-in was superseded by a sign-out."
		}
		return &LoginResult{Message: message}
	}
	if err == nil && (response.AccessToken == "" || response.User == nil) {
		err = errors.New("malformed login response")
	}
	if err != nil {
		s.state = prior
		s.lastError = statusMessage(err)
		s.logger.Debug("login failed", "error", err)
		return &LoginResult{Message: s.lastError}
	}

	s.state = StateAuthenticated
	s.user = response.User
	s.token = oauth2.Token{
		AccessToken:  response.AccessToken,
		RefreshToken: response.RefreshToken,
		TokenType:    "Bearer",
	}
	if expiry, err := transport.TokenExpiry(response.AccessToken); err == nil {
		s.token.Expiry = expiry
	}
	s.syncEngineLocked()
	s.persistLocked(ctx)
	s.logger.Info("login succeeded", "user", response.User.Username, "role", response.User.Role)
	return &LoginResult{OK: true, User: s.user.Clone()}
}

// Logout notifies the server best-effort and always clears local state, the
// permission engine and the credential store.
func (s *Service) Logout(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.state = StateAuthenticating
	s.mu.Unlock()

	if err := s.client.Post(ctx, logoutPath, nil, nil); err != nil {
		// Failure to notify never blocks a local logout.
		s.logger.Debug("logout notification failed", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(ctx, StateAnonymous)
	s.logger.Info("logged out")
}

// RefreshAccessToken exchanges the refresh token for a new access token.
// Explicit rejection expires the session terminally; network failures leave
// the authenticated state untouched for caller-level retry.
func (s *Service) RefreshAccessToken(ctx context.Context) *RefreshResult {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateAuthenticated {
		s.mu.Unlock()
		return &RefreshResult{Message: "not authenticated"}
	}
	gen := s.gen
	s.mu.Unlock()

	if s.refresher == nil {
		return &RefreshResult{Message: "refresh not configured"}
	}
	token, err := s.refresher.Refresh(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		// The refresher escalated (or a logout raced); state is settled.
		return &RefreshResult{Message: statusMessage(err)}
	}
	if err == nil {
		s.token.AccessToken = token
		if expiry, tErr := transport.TokenExpiry(token); tErr == nil {
			s.token.Expiry = expiry
		}
		// The refresher already persisted the token through the shared store.
		return &RefreshResult{OK: true, AccessToken: token}
	}
	if errors.Is(err, transport.ErrMissingRefreshToken) || errors.Is(err, transport.ErrRefreshFailed) {
		s.clearLocked(ctx, StateExpired)
		s.lastError = statusMessage(err)
		s.notifyExpired()
		return &RefreshResult{Message: s.lastError}
	}
	// Transient failure: remain authenticated.
	return &RefreshResult{Message: statusMessage(err)}
}

// UpdateUser merges a partial update into the current user and
// re-synchronises the permission engine when role or permissions change.
func (s *Service) UpdateUser(ctx context.Context, patch UserPatch) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated || s.user == nil {
		return ErrNotAuthenticated
	}
	if patch.Role != nil && !permission.KnownRole(permission.Role(*patch.Role)) {
		return fmt.Errorf("%w: %v", permission.ErrInvalidRole, *patch.Role)
	}
	if patch.Name != nil {
		s.user.Name = *patch.Name
	}
	if patch.Username != nil {
		s.user.Username = *patch.Username
	}
	if patch.Role != nil {
		s.user.Role = *patch.Role
	}
	if patch.Permissions != nil {
		s.user.Permissions = append([]string{}, patch.Permissions...)
	}
	if patch.Role != nil || patch.Permissions != nil {
		s.syncEngineLocked()
	}
	s.persistLocked(ctx)
	return nil
}

// MarkExpired transitions the session to expired; it is the transport's
// escalation hook for terminal refresh failures. Calling it when nothing is
// authenticated is a no-op.
func (s *Service) MarkExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated && s.state != StateAuthenticating {
		return
	}
	// The transport already cleared the persisted credentials.
	s.user = nil
	s.token = oauth2.Token{}
	s.state = StateExpired
	s.lastError = statusMessages401
	s.gen++
	s.engine.Clear()
	s.logger.Warn("session expired")
	s.notifyExpired()
}

// Me probes the session endpoint and returns the server's view of the
// current user; the request flows through the refreshing transport.
func (s *Service) Me(ctx context.Context) (*store.User, error) {
	var response struct {
		User *store.User `json:"user"`
	}
	if err := s.client.Get(ctx, mePath, &response); err != nil {
		return nil, err
	}
	return response.User, nil
}

// IsTokenExpired decodes the access token's expiry claim and compares it to
// the current time; any decode failure counts as expired.
func (s *Service) IsTokenExpired() bool {
	s.mu.RLock()
	raw := s.token.AccessToken
	s.mu.RUnlock()
	if raw == "" {
		return true
	}
	expiry, err := transport.TokenExpiry(raw)
	if err != nil {
		return true
	}
	return expiry.Before(time.Now())
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Authenticated reports whether a live access token is held.
func (s *Service) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateAuthenticated && s.token.AccessToken != ""
}

// Loading reports whether a login or logout is in flight.
func (s *Service) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateAuthenticating
}

// User returns a copy of the current user, nil when anonymous.
func (s *Service) User() *store.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Clone()
}

// AccessToken returns the current access token, empty when anonymous.
func (s *Service) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token.AccessToken
}

// LastError returns the most recent recorded failure message.
func (s *Service) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// clearLocked resets local and persisted state; the caller holds s.mu.
func (s *Service) clearLocked(ctx context.Context, next State) {
	s.user = nil
	s.token = oauth2.Token{}
	s.state = next
	s.gen++
	s.engine.Clear()
	if err := s.credentials.Clear(ctx); err != nil {
		s.logger.Error("failed to clear credential store", "error", err)
	}
}

// syncEngineLocked pushes the current role and overrides to the permission
// engine; the caller holds s.mu.
func (s *Service) syncEngineLocked() {
	if s.user == nil {
		s.engine.Clear()
		return
	}
	if !s.engine.SetRole(permission.Role(s.user.Role)) {
		s.logger.Warn("rejected role from identity service", "role", s.user.Role)
	}
	s.engine.SetCustomPermissions(s.user.Permissions)
}

// persistLocked writes both snapshots whole; the caller holds s.mu.
func (s *Service) persistLocked(ctx context.Context) {
	snapshot := &store.SessionSnapshot{
		Authenticated: s.state == StateAuthenticated && s.token.AccessToken != "",
		User:          s.user,
		Token:         s.token,
	}
	if err := s.credentials.SaveSession(ctx, snapshot); err != nil {
		s.logger.Error("failed to persist session snapshot", "error", err)
	}
	role, custom := s.engine.Snapshot()
	permissions := &store.PermissionSnapshot{Role: string(role), CustomPermissions: custom}
	if err := s.credentials.SavePermissions(ctx, permissions); err != nil {
		s.logger.Error("failed to persist permission snapshot", "error", err)
	}
}

func (s *Service) notifyExpired() {
	if s.onExpired != nil {
		go s.onExpired()
	}
}

const statusMessages401 = "Your session has expired. Please sign in again."

// statusMessage renders an error for presentation code: transport errors
// carry a per-kind human-readable message, anything else gets a generic one.
func statusMessage(err error) string {
	if err == nil {
		return ""
	}
	var httpErr *transport.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Message
	}
	var networkErr *transport.NetworkError
	if errors.As(err, &networkErr) {
		return networkErr.Message()
	}
	if errors.Is(err, transport.ErrMissingRefreshToken) || errors.Is(err, transport.ErrRefreshFailed) {
		return statusMessages401
	}
	return "An unknown error occurred. Try again."
}
