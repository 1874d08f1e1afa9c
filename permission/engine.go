// Package permission implements the role/permission engine: deterministic,
// side-effect-free authorization decisions derived from a fixed role catalog
// plus per-user permission overrides.
package permission

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrInvalidRole is returned when a role outside the fixed catalog is used.
var ErrInvalidRole = errors.New("invalid role")

// Engine derives effective permissions from the current role and custom
// overrides. Effective permissions are recomputed on every query so role or
// override changes are immediately visible.
type Engine struct {
	mu      sync.RWMutex
	role    Role
	custom  []string
	lastErr string
}

// NewEngine creates an engine with no role set.
func NewEngine() *Engine {
	return &Engine{}
}

// SetRole sets the current role. A role outside the catalog is refused: the
// engine keeps its prior state and records an inspectable error instead of
// failing across the API boundary.
func (e *Engine) SetRole(role Role) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !KnownRole(role) {
		e.lastErr = fmt.Sprintf("invalid role: %v", role)
		return false
	}
	e.role = role
	e.lastErr = ""
	return true
}

// Role returns the current role, empty when none is set.
func (e *Engine) Role() Role {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.role
}

// LastError returns the most recent recorded error message.
func (e *Engine) LastError() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// ClearError discards the recorded error.
func (e *Engine) ClearError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = ""
}

// SetCustomPermissions replaces the per-user overrides with list filtered to
// catalog-valid identifiers. Invalid entries are dropped silently; the
// accepted list is returned so callers can detect drops.
func (e *Engine) SetCustomPermissions(list []string) []string {
	accepted := make([]string, 0, len(list))
	for _, id := range list {
		if KnownPermission(id) {
			accepted = append(accepted, id)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.custom = accepted
	return append([]string{}, accepted...)
}

// AddCustomPermission grants a single override. Unknown identifiers are
// refused with a recorded error.
func (e *Engine) AddCustomPermission(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !KnownPermission(id) {
		e.lastErr = fmt.Sprintf("invalid permission: %v", id)
		return false
	}
	for _, existing := range e.custom {
		if existing == id {
			return true
		}
	}
	e.custom = append(e.custom, id)
	e.lastErr = ""
	return true
}

// RemoveCustomPermission revokes a single override.
func (e *Engine) RemoveCustomPermission(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	filtered := e.custom[:0]
	for _, existing := range e.custom {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	e.custom = filtered
}

// CustomPermissions returns a copy of the current overrides.
func (e *Engine) CustomPermissions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string{}, e.custom...)
}

// EffectivePermissions returns the union of the role set and the overrides,
// sorted, recomputed on each call.
func (e *Engine) EffectivePermissions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	effective := e.effective()
	out := make([]string, 0, len(effective))
	for id := range effective {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// effective computes the permission set under a held lock.
func (e *Engine) effective() map[string]bool {
	out := map[string]bool{}
	if e.role == "" {
		for _, id := range e.custom {
			out[id] = true
		}
		return out
	}
	for _, id := range rolePermissions[e.role] {
		out[id] = true
	}
	for _, id := range e.custom {
		out[id] = true
	}
	return out
}

// HasPermission reports whether id is granted by the role set or an override.
func (e *Engine) HasPermission(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.effective()[id]
}

// HasAnyPermission reports whether at least one of ids is granted.
func (e *Engine) HasAnyPermission(ids ...string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	effective := e.effective()
	for _, id := range ids {
		if effective[id] {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every one of ids is granted.
func (e *Engine) HasAllPermissions(ids ...string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	effective := e.effective()
	for _, id := range ids {
		if !effective[id] {
			return false
		}
	}
	return true
}

// HasRole reports whether the current role equals role.
func (e *Engine) HasRole(role Role) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.role != "" && e.role == role
}

// HasRoleAtLeast reports whether the current role ranks at or above role.
// It returns false when no role is set.
func (e *Engine) HasRoleAtLeast(role Role) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.role == "" {
		return false
	}
	return roleRank[e.role] >= roleRank[role]
}

// IsAdmin reports whether the current role is admin.
func (e *Engine) IsAdmin() bool {
	return e.HasRole(RoleAdmin)
}

// IsManagerOrAbove reports whether the current role ranks at least manager.
func (e *Engine) IsManagerOrAbove() bool {
	return e.HasRoleAtLeast(RoleManager)
}

// IsInternalUser reports whether the current role belongs to the organisation
// (admin, manager or internal).
func (e *Engine) IsInternalUser() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch e.role {
	case RoleAdmin, RoleManager, RoleInternal:
		return true
	}
	return false
}

// IsExternalUser reports whether the current role is external.
func (e *Engine) IsExternalUser() bool {
	return e.HasRole(RoleExternal)
}

// Clear resets the role and overrides; calling it repeatedly is idempotent.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.role = ""
	e.custom = nil
	e.lastErr = ""
}

// Snapshot returns the state to persist: the current role and overrides.
func (e *Engine) Snapshot() (Role, []string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.role, append([]string{}, e.custom...)
}

// Restore re-applies persisted state, filtering it through the same
// validation as the setters.
func (e *Engine) Restore(role Role, custom []string) {
	if role != "" {
		e.SetRole(role)
	}
	e.SetCustomPermissions(custom)
}
