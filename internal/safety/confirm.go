package safety

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// TokenTTL is how long a confirmation token stays valid.
const TokenTTL = 5 * time.Minute

type pendingConfirmation struct {
	action    string
	target    string
	createdAt time.Time
}

// ConfirmationTracker issues single-use, time-limited tokens for actions
// that must be requested twice (reboot, shutdown, forgetting a network).
// A token is bound to the action it was issued for.
type ConfirmationTracker struct {
	guarded map[string]struct{}
	now     func() time.Time

	mu     sync.Mutex
	tokens map[string]pendingConfirmation
}

// NewConfirmationTracker returns a tracker guarding the given actions.
func NewConfirmationTracker(actions []string) *ConfirmationTracker {
	ct := &ConfirmationTracker{
		guarded: make(map[string]struct{}, len(actions)),
		now:     time.Now,
		tokens:  make(map[string]pendingConfirmation),
	}
	for _, a := range actions {
		ct.guarded[a] = struct{}{}
	}
	return ct
}

// NeedsConfirmation reports whether action is guarded.
func (ct *ConfirmationTracker) NeedsConfirmation(action string) bool {
	_, ok := ct.guarded[action]
	return ok
}

// RequestConfirmation issues a token for action on target.
func (ct *ConfirmationTracker) RequestConfirmation(action, target string) string {
	token := generateToken()

	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.sweepExpired()
	ct.tokens[token] = pendingConfirmation{action: action, target: target, createdAt: ct.now()}
	return token
}

// Confirm consumes token and reports whether it was issued for action and
// target and has not expired. A token is removed on first use whatever the
// outcome.
func (ct *ConfirmationTracker) Confirm(token, action, target string) bool {
	if token == "" {
		return false
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	pending, ok := ct.tokens[token]
	if !ok {
		return false
	}
	delete(ct.tokens, token)

	if ct.now().Sub(pending.createdAt) > TokenTTL {
		return false
	}
	return pending.action == action && pending.target == target
}

// Pending returns the number of outstanding tokens.
func (ct *ConfirmationTracker) Pending() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.sweepExpired()
	return len(ct.tokens)
}

// sweepExpired requires ct.mu.
func (ct *ConfirmationTracker) sweepExpired() {
	now := ct.now()
	for token, p := range ct.tokens {
		if now.Sub(p.createdAt) > TokenTTL {
			delete(ct.tokens, token)
		}
	}
}

func generateToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(b[:])
}
