package common

import "errors"

var (
	// ErrModulePaused gates every mutating operation while the module's
	// pause flag is set.
	ErrModulePaused = errors.New("module paused")
	// ErrBlacklisted is returned when the caller is barred from the
	// operation.
	ErrBlacklisted = errors.New("caller blacklisted")
	// ErrUnauthorized is returned when the caller lacks the required role.
	ErrUnauthorized = errors.New("caller unauthorized")
)

// PauseView exposes per-module pause flags.
type PauseView interface {
	IsPaused(module string) bool
}

// RoleView exposes role membership checks.
type RoleView interface {
	HasRole(role string, addr []byte) bool
}

// BlacklistView exposes blacklist membership checks.
type BlacklistView interface {
	IsBlacklisted(addr []byte) bool
}

// Guard rejects the call when the module is paused. A nil view or empty
// module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// RequireRole rejects the call when addr does not hold the role.
func RequireRole(r RoleView, role string, addr [20]byte) error {
	if r == nil || !r.HasRole(role, addr[:]) {
		return ErrUnauthorized
	}
	return nil
}

// RequireNotBlacklisted rejects the call when addr is blacklisted.
func RequireNotBlacklisted(b BlacklistView, addr [20]byte) error {
	if b != nil && b.IsBlacklisted(addr[:]) {
		return ErrBlacklisted
	}
	return nil
}
