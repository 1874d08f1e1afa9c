// Package session owns the authentication state machine: anonymous through
// authenticated to expired, with durable persistence and explicit
// synchronisation of the permission engine after every role change.
package session

import (
	"errors"

	"github.com/viant/authkit/store"
)

// State enumerates the session lifecycle states.
type State int

const (
	// StateAnonymous is the initial state, no credentials present.
	StateAnonymous State = iota
	// StateAuthenticating is transient while a login or logout is in flight.
	StateAuthenticating
	// StateAuthenticated holds a live token pair.
	StateAuthenticated
	// StateExpired is terminal until an explicit re-login.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	}
	return "unknown"
}

// ErrNotAuthenticated is returned by operations valid only in the
// authenticated state.
var ErrNotAuthenticated = errors.New("not authenticated")

// Credentials carry the primary login secret.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult reports the outcome of a login; callers inspect it instead of
// handling an error.
type LoginResult struct {
	OK      bool
	User    *store.User
	Message string
}

// RefreshResult reports the outcome of a token refresh.
type RefreshResult struct {
	OK          bool
	AccessToken string
	Message     string
}

// UserPatch is a partial user update; nil fields are left unchanged.
type UserPatch struct {
	Name        *string
	Username    *string
	Role        *string
	Permissions []string
}
