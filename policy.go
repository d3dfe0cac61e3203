package sitecookie

import (
	"context"
	"time"
)

// RoleAdministrator is the role that earns the extended cookie lifetime.
const RoleAdministrator = "administrator"

// Expiration adjustments applied on top of the default expiration.
const (
	AdministratorBonus = 24 * time.Hour
	MemberPenalty      = time.Hour
	AnonymousPenalty   = 30 * time.Minute
)

// Expirations maps a role or group name to a base expiration in seconds.
// It is one tenant's cookie settings.
type Expirations map[string]int64

// RoleSet is a set of capability tags held by a visitor.
type RoleSet map[string]struct{}

// NewRoleSet builds a RoleSet from role names.
func NewRoleSet(roles ...string) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Has reports whether the set contains role.
func (s RoleSet) Has(role string) bool {
	_, ok := s[role]
	return ok
}

// Identity is the login state of the visitor behind a request.
type Identity struct {
	LoggedIn bool
	Roles    RoleSet
}

// Anonymous is the identity of a visitor who is not logged in.
var Anonymous = Identity{}

// ResolveExpiration maps tenant settings and an identity to a cookie lifetime.
// Rules apply in order, first match wins:
//
//  1. no settings: def, ok=false
//  2. logged-in administrator: def + 24h
//  3. any other logged-in visitor: def - 1h
//  4. anonymous: def - 30m
//
// Only the presence of settings matters; the per-role values are not read.
// The result is not clamped, so a small def can produce a zero or negative
// lifetime, which browsers treat as an already-expired cookie.
func ResolveExpiration(settings Expirations, id Identity, def time.Duration) (time.Duration, bool) {
	if len(settings) == 0 {
		return def, false
	}

	switch {
	case id.LoggedIn && id.Roles.Has(RoleAdministrator):
		return def + AdministratorBonus, true
	case id.LoggedIn:
		return def - MemberPenalty, true
	default:
		return def - AnonymousPenalty, true
	}
}

// ResolveExpiration loads the tenant's settings and applies the expiration policy.
// Settings that cannot be loaded count as missing.
func (m *Manager) ResolveExpiration(ctx context.Context, tenantID int64, id Identity) time.Duration {
	settings, err := m.settings.GetExpirations(ctx, tenantID)
	if err != nil {
		m.log.Warn().Err(err).Int64("tenant_id", tenantID).Msg("failed to load cookie expiration settings")
		settings = nil
	}

	expiration, ok := ResolveExpiration(settings, id, m.config.DefaultExpiration)
	if !ok {
		m.log.Warn().Int64("tenant_id", tenantID).Msg("no custom cookie expirations configured, using default")
	}
	return expiration
}
