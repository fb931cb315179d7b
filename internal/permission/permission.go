// Package permission maps user identities to the three access tiers and
// enforces the coarse use gate (admin-only / whitelist modes).
package permission

import (
	"strings"
	"sync"

	"wavebot/internal/transport"
)

// Tier is an access level required by a command or continuation.
type Tier int

const (
	TierEveryone Tier = iota
	TierGroupAdmin
	TierBotAdmin
)

// Describe returns the tier in user-facing terms, used in rejection notices.
func (t Tier) Describe() string {
	switch t {
	case TierGroupAdmin:
		return "group admin or bot admin"
	case TierBotAdmin:
		return "bot admin only"
	default:
		return "everyone"
	}
}

// Canonical strips transport decoration from a user identifier, leaving the
// numeric account part used for admin list comparisons. The host and device
// suffix are cut first so device digits never leak into the account number.
func Canonical(id string) string {
	if at := strings.IndexByte(id, '@'); at >= 0 {
		id = id[:at]
	}
	if colon := strings.IndexByte(id, ':'); colon >= 0 {
		id = id[:colon]
	}
	var b strings.Builder
	for _, r := range id {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Resolver decides tiers and use-gate outcomes. Safe for concurrent use; the
// admin and whitelist sets are fixed at construction.
type Resolver struct {
	mu        sync.RWMutex
	admins    map[string]struct{}
	adminOnly bool
	whitelist map[string]struct{} // nil when whitelist mode is off
}

// NewResolver builds a resolver from canonical numeric admin IDs. whitelist
// may be nil to disable whitelist mode.
func NewResolver(admins []string, adminOnly bool, whitelist []string) *Resolver {
	r := &Resolver{
		admins:    make(map[string]struct{}, len(admins)),
		adminOnly: adminOnly,
	}
	for _, a := range admins {
		r.admins[Canonical(a)] = struct{}{}
	}
	if whitelist != nil {
		r.whitelist = make(map[string]struct{}, len(whitelist))
		for _, w := range whitelist {
			r.whitelist[Canonical(w)] = struct{}{}
		}
	}
	return r
}

// IsBotAdmin reports membership in the static admin list.
func (r *Resolver) IsBotAdmin(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.admins[Canonical(userID)]
	return ok
}

// CanUseBot is the coarse allow/deny gate, evaluated before any tier check.
func (r *Resolver) CanUseBot(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id := Canonical(userID)
	if _, ok := r.admins[id]; ok {
		return true
	}
	if r.adminOnly {
		return false
	}
	if r.whitelist != nil {
		_, ok := r.whitelist[id]
		return ok
	}
	return true
}

// Tier resolves the highest tier the user holds. Group admin status requires
// group metadata naming the user as admin; outside group context only the
// bot-admin list can raise the tier.
func (r *Resolver) Tier(userID string, meta *transport.GroupMetadata) Tier {
	if r.IsBotAdmin(userID) {
		return TierBotAdmin
	}
	if meta != nil {
		id := Canonical(userID)
		for _, p := range meta.Participants {
			if Canonical(p.ID) == id && (p.Admin || p.SuperAdmin) {
				return TierGroupAdmin
			}
		}
	}
	return TierEveryone
}

// Allows reports whether the user meets the required tier.
func (r *Resolver) Allows(userID string, meta *transport.GroupMetadata, required Tier) bool {
	return r.Tier(userID, meta) >= required
}
