package alerting

import (
	"sync"
	"time"
)

// CooldownTracker suppresses repeat triggers of a rule within its configured
// window. State is in-memory and resets on restart. TryTrigger is a single
// atomic check-and-arm so two near-simultaneous evaluations of the same rule
// cannot both pass the cooldown check.
type CooldownTracker struct {
	mu      sync.Mutex
	expires map[uint]time.Time // rule ID → suppression end
}

// NewCooldownTracker creates an empty tracker.
func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{
		expires: make(map[uint]time.Time),
	}
}

// IsSuppressed reports whether the rule is currently inside its cooldown
// window. Read-only; evaluation uses it as a cheap pre-filter before doing
// any condition work.
func (t *CooldownTracker) IsSuppressed(ruleID uint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Now().Before(t.expires[ruleID])
}

// TryTrigger atomically checks the cooldown and, if the rule is not
// suppressed, arms it for the given window. Returns true when the caller
// won the trigger; false when another evaluation already armed it.
func (t *CooldownTracker) TryTrigger(ruleID uint, window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if now.Before(t.expires[ruleID]) {
		return false
	}
	t.expires[ruleID] = now.Add(window)
	return true
}

// Sweep removes expired entries. Only needed for memory reclamation;
// correctness never depends on it.
func (t *CooldownTracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, expiry := range t.expires {
		if now.After(expiry) {
			delete(t.expires, id)
			removed++
		}
	}
	return removed
}
