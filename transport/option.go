package transport

import (
	"log/slog"
	"net/http"
)

// Option customises a RoundTripper.
type Option func(*RoundTripper)

// WithTransport overrides the underlying round tripper.
func WithTransport(transport http.RoundTripper) Option {
	return func(r *RoundTripper) {
		r.transport = transport
	}
}

// WithLogger attaches a diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *RoundTripper) {
		r.logger = logger
	}
}

// WithExpiryHandler registers the callback invoked when the session becomes
// terminally expired (missing refresh token or rejected refresh).
func WithExpiryHandler(handler func()) Option {
	return func(r *RoundTripper) {
		r.onExpired = handler
	}
}
