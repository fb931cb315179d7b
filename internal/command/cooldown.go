package command

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// CooldownLedger tracks per-(command,sender) cooldown expiries. Entries in
// the past count as absent, so lazy pruning can never produce a false
// "still cooling down".
type CooldownLedger struct {
	mu     sync.Mutex
	expiry map[string]time.Time
	now    func() time.Time
}

func NewCooldownLedger() *CooldownLedger {
	return &CooldownLedger{
		expiry: make(map[string]time.Time),
		now:    time.Now,
	}
}

func cooldownKey(name, sender string) string {
	return name + "|" + sender
}

// Check returns the remaining cooldown without consuming anything. ok is
// false when the sender is immediately eligible.
func (l *CooldownLedger) Check(name, sender string) (remaining time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remainingLocked(name, sender)
}

// Reserve is the atomic check-and-set used on dispatch: when the sender is
// eligible it records expiry = now + d and reports success, so of two racing
// messages exactly one wins. Recording happens before the handler runs; a
// slow or failing handler cannot be re-triggered inside its own window.
func (l *CooldownLedger) Reserve(name, sender string, d time.Duration) (remaining time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rem, active := l.remainingLocked(name, sender); active {
		return rem, false
	}
	if d > 0 {
		l.expiry[cooldownKey(name, sender)] = l.now().Add(d)
	}
	return 0, true
}

func (l *CooldownLedger) remainingLocked(name, sender string) (time.Duration, bool) {
	exp, exists := l.expiry[cooldownKey(name, sender)]
	if !exists {
		return 0, false
	}
	rem := exp.Sub(l.now())
	if rem <= 0 {
		delete(l.expiry, cooldownKey(name, sender))
		return 0, false
	}
	return rem, true
}

// Prune drops expired entries. Purely housekeeping; correctness does not
// depend on it.
func (l *CooldownLedger) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for k, exp := range l.expiry {
		if !exp.After(now) {
			delete(l.expiry, k)
			removed++
		}
	}
	return removed
}

// RunCooldownCleaner prunes the ledger every minute until ctx is done.
func RunCooldownCleaner(ctx context.Context, l *CooldownLedger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Prune(); n > 0 {
				log.Debug().Int("removed", n).Msg("pruned expired cooldowns")
			}
		}
	}
}
