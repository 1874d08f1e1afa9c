package store

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// User describes the authenticated principal as returned by the identity
// service and persisted alongside the token pair.
type User struct {
	ID          int      `json:"id"`
	Username    string   `json:"username,omitempty"`
	Name        string   `json:"name,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Permissions != nil {
		out.Permissions = append([]string{}, u.Permissions...)
	}
	return &out
}

// SessionSnapshot is the session record persisted by the store. It is always
// written whole; the storage layer never patches individual fields.
type SessionSnapshot struct {
	Authenticated bool         `json:"authenticated"`
	User          *User        `json:"user,omitempty"`
	Token         oauth2.Token `json:"token"`
}

// Clone returns a deep copy of the snapshot.
func (s *SessionSnapshot) Clone() *SessionSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.User = s.User.Clone()
	return &out
}

// PermissionSnapshot is the permission record persisted by the store.
type PermissionSnapshot struct {
	Role              string   `json:"currentUserRole,omitempty"`
	CustomPermissions []string `json:"customPermissions,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (p *PermissionSnapshot) Clone() *PermissionSnapshot {
	if p == nil {
		return nil
	}
	out := *p
	if p.CustomPermissions != nil {
		out.CustomPermissions = append([]string{}, p.CustomPermissions...)
	}
	return &out
}

// Store is a pluggable persistence layer for the session and permission
// snapshots. The in-memory default is fine for tests and short-lived
// processes; the file and secure backends survive restarts.
//
// The session service writes user and role state, the transport writes the
// access token during refresh; both go through the same session record so
// neither can diverge from the other's view.
type Store interface {
	// LoadSession returns the persisted session snapshot, or nil when absent.
	LoadSession(ctx context.Context) (*SessionSnapshot, error)
	// SaveSession overwrites the session record with the supplied snapshot.
	SaveSession(ctx context.Context, snapshot *SessionSnapshot) error
	// LoadPermissions returns the persisted permission snapshot, or nil when absent.
	LoadPermissions(ctx context.Context) (*PermissionSnapshot, error)
	// SavePermissions overwrites the permission record with the supplied snapshot.
	SavePermissions(ctx context.Context, snapshot *PermissionSnapshot) error
	// Token returns the current token pair; ok is false when no session record exists.
	Token(ctx context.Context) (token *oauth2.Token, ok bool)
	// SetAccessToken replaces the access token on the persisted session record.
	// It is a no-op when no session record exists, so a refresh settling after
	// logout cannot resurrect cleared credentials.
	SetAccessToken(ctx context.Context, access string, expiry time.Time) error
	// Clear removes both records.
	Clear(ctx context.Context) error
}
