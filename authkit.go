package authkit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/viant/authkit/permission"
	"github.com/viant/authkit/session"
	"github.com/viant/authkit/store"
	"github.com/viant/authkit/transport"
)

const refreshPath = "/auth/refresh"

// Config describes a session core instance.
type Config struct {
	// BaseURL is the identity service root, e.g. "https://api.example.com/api".
	BaseURL string
	// Timeout bounds each request; zero uses the transport default.
	Timeout time.Duration
}

// Service bundles the explicitly wired components of the session core. There
// are no ambient singletons: every instance owns its state, so tests can
// create isolated ones.
type Service struct {
	Store       store.Store
	Permissions *permission.Engine
	Transport   *transport.RoundTripper
	Client      *transport.Client
	Session     *session.Service
}

// Option customises the assembly.
type Option func(*assembly)

type assembly struct {
	store         store.Store
	logger        *slog.Logger
	httpTransport http.RoundTripper
	onExpired     func()
}

// WithStore overrides the credential store; the default is in-memory.
func WithStore(credentials store.Store) Option {
	return func(a *assembly) {
		a.store = credentials
	}
}

// WithLogger attaches a diagnostic logger to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(a *assembly) {
		a.logger = logger
	}
}

// WithHTTPTransport overrides the underlying HTTP round tripper.
func WithHTTPTransport(httpTransport http.RoundTripper) Option {
	return func(a *assembly) {
		a.httpTransport = httpTransport
	}
}

// WithExpiryListener registers the UI-boundary callback invoked when the
// session expires terminally.
func WithExpiryListener(listener func()) Option {
	return func(a *assembly) {
		a.onExpired = listener
	}
}

// New assembles a session core against config.BaseURL: credential store,
// permission engine, refreshing transport, JSON client and session service,
// wired together explicitly.
func New(ctx context.Context, config *Config, options ...Option) (*Service, error) {
	if config == nil || config.BaseURL == "" {
		return nil, errors.New("base URL was empty")
	}
	wiring := &assembly{
		store:  store.NewMemoryStore(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range options {
		opt(wiring)
	}

	refreshURL := strings.TrimRight(config.BaseURL, "/") + refreshPath
	transportOptions := []transport.Option{transport.WithLogger(wiring.logger)}
	if wiring.httpTransport != nil {
		transportOptions = append(transportOptions, transport.WithTransport(wiring.httpTransport))
	}
	roundTripper, err := transport.New(wiring.store, refreshURL, transportOptions...)
	if err != nil {
		return nil, err
	}

	clientOptions := []transport.ClientOption{
		transport.WithRoundTripper(roundTripper),
		transport.WithClientLogger(wiring.logger),
	}
	if config.Timeout > 0 {
		clientOptions = append(clientOptions, transport.WithTimeout(config.Timeout))
	}
	client := transport.NewClient(config.BaseURL, clientOptions...)

	engine := permission.NewEngine()
	sessionOptions := []session.Option{
		session.WithLogger(wiring.logger),
		session.WithRefresher(roundTripper),
	}
	if wiring.onExpired != nil {
		sessionOptions = append(sessionOptions, session.WithExpiryListener(wiring.onExpired))
	}
	sessionService, err := session.New(ctx, wiring.store, engine, client, sessionOptions...)
	if err != nil {
		return nil, err
	}
	roundTripper.OnExpired(sessionService.MarkExpired)

	return &Service{
		Store:       wiring.store,
		Permissions: engine,
		Transport:   roundTripper,
		Client:      client,
		Session:     sessionService,
	}, nil
}
