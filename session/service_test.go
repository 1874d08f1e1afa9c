package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/authkit/mock"
	"github.com/viant/authkit/permission"
	"github.com/viant/authkit/store"
	"github.com/viant/authkit/transport"
)

type stack struct {
	identity    *mock.Service
	service     *Service
	credentials store.Store
	engine      *permission.Engine
}

func newStack(t *testing.T, listener func(), mockOptions ...mock.Option) *stack {
	identity, err := mock.New(mockOptions...)
	if !assert.Nil(t, err) {
		t.FailNow()
	}
	server := httptest.NewServer(identity.Handler())
	t.Cleanup(server.Close)

	credentials := store.NewMemoryStore()
	engine := permission.NewEngine()
	roundTripper, err := transport.New(credentials, server.URL+"/auth/refresh")
	if !assert.Nil(t, err) {
		t.FailNow()
	}
	client := transport.NewClient(server.URL, transport.WithRoundTripper(roundTripper))

	options := []Option{WithRefresher(roundTripper)}
	if listener != nil {
		options = append(options, WithExpiryListener(listener))
	}
	service, err := New(context.Background(), credentials, engine, client, options...)
	if !assert.Nil(t, err) {
		t.FailNow()
	}
	roundTripper.OnExpired(service.MarkExpired)
	return &stack{identity: identity, service: service, credentials: credentials, engine: engine}
}

func TestService_LoginSuccess(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, nil)

	assert.EqualValues(t, StateAnonymous, s.service.State())
	result := s.service.Login(ctx, Credentials{Username: "admin", Password: "Password1!"})
	if !assert.True(t, result.OK, result.Message) {
		t.FailNow()
	}
	assert.EqualValues(t, StateAuthenticated, s.service.State())
	assert.True(t, s.service.Authenticated())
	assert.EqualValues(t, "admin", result.User.Role)
	assert.False(t, s.service.IsTokenExpired())

	snapshot, err := s.credentials.LoadSession(ctx)
	assert.Nil(t, err)
	assert.True(t, snapshot.Authenticated)
	assert.NotEmpty(t, snapshot.Token.AccessToken)
	assert.NotEmpty(t, snapshot.Token.RefreshToken)

	assert.True(t, s.engine.HasRoleAtLeast(permission.RoleAdmin))
	assert.True(t, s.engine.MenuVisibility().SystemConfig)
}

func TestService_LoginFailure(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, nil)

	result := s.service.Login(ctx, Credentials{Username: "admin", Password: "wrong"})
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Message)
	assert.EqualValues(t, StateAnonymous, s.service.State(), "failure returns to prior state")
	assert.EqualValues(t, result.Message, s.service.LastError())

	snapshot, err := s.credentials.LoadSession(ctx)
	assert.Nil(t, err)
	assert.Nil(t, snapshot, "nothing persisted on failure")
}

func TestService_LoginWithCustomPermissions(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, nil, mock.WithUser("poweruser", "Password1!", "Power User", "manager", permission.ExternalAPI))

	result := s.service.Login(ctx, Credentials{Username: "poweruser", Password: "Password1!"})
	if !assert.True(t, result.OK, result.Message) {
		t.FailNow()
	}
	assert.True(t, s.engine.HasPermission(permission.DataCreate), "role-granted")
	assert.True(t, s.engine.HasPermission(permission.ExternalAPI), "override-granted")
	assert.False(t, s.engine.HasPermission(permission.SystemConfig))
}

func TestService_Logout(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, nil)

	s.service.Login(ctx, Credentials{Username: "manager", Password: "Password1!"})
	assert.True(t, s.service.Authenticated())

	s.service.Logout(ctx)
	assert.EqualValues(t, StateAnonymous, s.service.State())
	assert.False(t, s.service.Authenticated())
	assert.Nil(t, s.service.User())
	assert.Empty(t, s.engine.EffectivePermissions())
	assert.EqualValues(t, permission.Role(""), s.engine.Role())

	snapshot, err := s.credentials.LoadSession(ctx)
	assert.Nil(t, err)
	assert.Nil(t, snapshot)
}

func TestService_RefreshAccessToken(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, nil)

	result := s.service.Login(ctx, Credentials{Username: "admin", Password: "Password1!"})
	if !assert.True(t, result.OK) {
		t.FailNow()
	}
	refreshed := s.service.RefreshAccessToken(ctx)
	assert.True(t, refreshed.OK, refreshed.Message)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.EqualValues(t, StateAuthenticated, s.service.State())

	snapshot, err := s.credentials.LoadSession(ctx)
	assert.Nil(t, err)
	assert.EqualValues(t, refreshed.AccessToken, snapshot.Token.AccessToken)
}

func TestService_RefreshRejectedExpiresSession(t *testing.T) {
	ctx := context.Background()
	expired := make(chan struct{}, 1)
	s := newStack(t, func() { expired <- struct{}{} })

	s.service.Login(ctx, Credentials{Username: "admin", Password: "Password1!"})
	s.identity.RevokeRefreshTokens()

	result := s.service.RefreshAccessToken(ctx)
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Message)
	assert.EqualValues(t, StateExpired, s.service.State())
	assert.Nil(t, s.service.User())
	assert.Empty(t, s.engine.EffectivePermissions())

	snapshot, err := s.credentials.LoadSession(ctx)
	assert.Nil(t, err)
	assert.Nil(t, snapshot, "credentials cleared on terminal refresh failure")

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Error("expiry listener was not invoked")
	}

	// An explicit re-login resets the terminal state.
	relogin := s.service.Login(ctx, Credentials{Username: "admin", Password: "Password1!"})
	assert.True(t, relogin.OK, relogin.Message)
	assert.EqualValues(t, StateAuthenticated, s.service.State())
}

func TestService_RefreshNotAuthenticated(t *testing.T) {
	s := newStack(t, nil)
	result := s.service.RefreshAccessToken(context.Background())
	assert.False(t, result.OK)
}

func TestService_UpdateUser(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, nil)

	s.service.Login(ctx, Credentials{Username: "user", Password: "Password1!"})
	assert.False(t, s.engine.IsManagerOrAbove())

	role := "manager"
	assert.Nil(t, s.service.UpdateUser(ctx, UserPatch{Role: &role, Permissions: []string{permission.ExternalAPI, "bogus:perm"}}))
	assert.True(t, s.engine.IsManagerOrAbove())
	assert.True(t, s.engine.HasPermission(permission.ExternalAPI))
	assert.False(t, s.engine.HasPermission("bogus:perm"))

	snapshot, err := s.credentials.LoadPermissions(ctx)
	assert.Nil(t, err)
	assert.EqualValues(t, "manager", snapshot.Role)
	assert.EqualValues(t, []string{permission.ExternalAPI}, snapshot.CustomPermissions)

	invalid := "superuser"
	err = s.service.UpdateUser(ctx, UserPatch{Role: &invalid})
	assert.NotNil(t, err)
	assert.EqualValues(t, "manager", s.service.User().Role, "invalid patch must not mutate")
}

func TestService_UpdateUserRequiresAuthentication(t *testing.T) {
	s := newStack(t, nil)
	name := "Someone"
	err := s.service.UpdateUser(context.Background(), UserPatch{Name: &name})
	assert.EqualValues(t, ErrNotAuthenticated, err)
}

func TestService_AutoRefreshOnExpiredToken(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, nil, mock.WithAccessTTL(-time.Minute))

	result := s.service.Login(ctx, Credentials{Username: "admin", Password: "Password1!"})
	if !assert.True(t, result.OK, result.Message) {
		t.FailNow()
	}
	assert.True(t, s.service.IsTokenExpired(), "minted token is already expired")

	// Valid tokens from now on: the probe 401s, refreshes once and succeeds.
	s.identity.SetAccessTTL(15 * time.Minute)
	user, err := s.service.Me(ctx)
	assert.Nil(t, err)
	assert.EqualValues(t, "admin", user.Username)
	assert.EqualValues(t, 1, s.identity.RefreshCalls())
}

func TestService_MissingRefreshTokenExpiresWithoutNetworkCall(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, nil, mock.WithAccessTTL(-time.Minute))

	result := s.service.Login(ctx, Credentials{Username: "admin", Password: "Password1!"})
	if !assert.True(t, result.OK, result.Message) {
		t.FailNow()
	}
	// Drop the refresh token from the persisted record.
	snapshot, err := s.credentials.LoadSession(ctx)
	assert.Nil(t, err)
	snapshot.Token.RefreshToken = ""
	assert.Nil(t, s.credentials.SaveSession(ctx, snapshot))

	_, err = s.service.Me(ctx)
	assert.NotNil(t, err)
	assert.EqualValues(t, 0, s.identity.RefreshCalls(), "no refresh call without a refresh token")

	assert.Eventuallyf(t, func() bool {
		return s.service.State() == StateExpired
	}, time.Second, 10*time.Millisecond, "session should expire")
}

func TestService_StaleLoginDiscardedAfterExpiry(t *testing.T) {
	ctx := context.Background()
	identity, err := mock.New()
	if !assert.Nil(t, err) {
		t.FailNow()
	}
	// Gate the login endpoint so the session can be expired while the login
	// response is still in flight.
	arrived := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	inner := identity.Handler()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/login" {
			once.Do(func() { close(arrived) })
			<-release
		}
		inner.ServeHTTP(w, r)
	}))
	defer server.Close()

	credentials := store.NewMemoryStore()
	engine := permission.NewEngine()
	client := transport.NewClient(server.URL)
	service, err := New(ctx, credentials, engine, client)
	if !assert.Nil(t, err) {
		t.FailNow()
	}

	results := make(chan *LoginResult, 1)
	go func() {
		results <- service.Login(ctx, Credentials{Username: "admin", Password: "Password1!"})
	}()
	<-arrived
	assert.True(t, service.Loading())
	service.MarkExpired()
	close(release)

	result := <-results
	assert.False(t, result.OK, "a response landing after expiry must be discarded")
	assert.NotEmpty(t, result.Message)
	assert.EqualValues(t, StateExpired, service.State())
	assert.Nil(t, service.User())
	assert.Empty(t, service.AccessToken())
	assert.Empty(t, engine.EffectivePermissions())
}

func TestService_RefreshNetworkErrorKeepsSession(t *testing.T) {
	ctx := context.Background()
	identity, err := mock.New()
	if !assert.Nil(t, err) {
		t.FailNow()
	}
	server := httptest.NewServer(identity.Handler())
	defer server.Close()

	// Point the refresh endpoint at a server that is already gone.
	deadServer := httptest.NewServer(http.NotFoundHandler())
	deadURL := deadServer.URL
	deadServer.Close()

	credentials := store.NewMemoryStore()
	engine := permission.NewEngine()
	roundTripper, err := transport.New(credentials, deadURL+"/auth/refresh")
	if !assert.Nil(t, err) {
		t.FailNow()
	}
	client := transport.NewClient(server.URL, transport.WithRoundTripper(roundTripper))
	service, err := New(ctx, credentials, engine, client, WithRefresher(roundTripper))
	if !assert.Nil(t, err) {
		t.FailNow()
	}
	roundTripper.OnExpired(service.MarkExpired)

	result := service.Login(ctx, Credentials{Username: "admin", Password: "Password1!"})
	if !assert.True(t, result.OK, result.Message) {
		t.FailNow()
	}

	refreshed := service.RefreshAccessToken(ctx)
	assert.False(t, refreshed.OK)
	assert.NotEmpty(t, refreshed.Message)
	assert.EqualValues(t, StateAuthenticated, service.State(), "a transient refresh failure is not terminal")
	assert.True(t, service.Authenticated())
	assert.True(t, engine.IsAdmin())

	token, ok := credentials.Token(ctx)
	assert.True(t, ok, "credentials kept for caller-level retry")
	assert.NotEmpty(t, token.RefreshToken)
}

func TestService_RestoreFromPersistedState(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, nil)

	s.service.Login(ctx, Credentials{Username: "internal", Password: "Password1!"})
	assert.True(t, s.service.Authenticated())

	// A new process over the same store resumes the session.
	engine := permission.NewEngine()
	client := transport.NewClient("http://unused.invalid")
	restored, err := New(ctx, s.credentials, engine, client)
	assert.Nil(t, err)
	assert.True(t, restored.Authenticated())
	assert.EqualValues(t, "internal", restored.User().Username)
	assert.EqualValues(t, permission.RoleInternal, engine.Role())
}

func TestService_IsTokenExpiredFailClosed(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, nil)
	assert.True(t, s.service.IsTokenExpired(), "no token counts as expired")

	s.service.Login(ctx, Credentials{Username: "admin", Password: "Password1!"})
	snapshot, _ := s.credentials.LoadSession(ctx)
	snapshot.Token.AccessToken = "garbage"
	_ = s.credentials.SaveSession(ctx, snapshot)

	// The in-memory view still holds the valid token; a fresh service over
	// the mangled store fails closed.
	engine := permission.NewEngine()
	client := transport.NewClient("http://unused.invalid")
	restored, err := New(ctx, s.credentials, engine, client)
	assert.Nil(t, err)
	assert.True(t, restored.IsTokenExpired())
}

func TestState_String(t *testing.T) {
	assert.EqualValues(t, "anonymous", StateAnonymous.String())
	assert.EqualValues(t, "authenticating", StateAuthenticating.String())
	assert.EqualValues(t, "authenticated", StateAuthenticated.String())
	assert.EqualValues(t, "expired", StateExpired.String())
	assert.EqualValues(t, "unknown", State(42).String())
}
