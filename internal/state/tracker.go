package state

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff parameters: delay doubles per consecutive failure, capped at
// ten minutes, with up to a second of jitter so accounts that failed
// together do not retry together.
const (
	backoffCap      = 600 * time.Second
	maxBackoffShift = 6
)

// AccountState is a point-in-time snapshot of one account's runtime status
type AccountState struct {
	Connected           bool
	LastSuccessAt       time.Time
	LastError           string
	ConsecutiveFailures int
	NextRetryAt         time.Time
}

type accountEntry struct {
	AccountState
	startNotified bool
	errorNotified bool
	firstPass     bool
}

// Tracker owns all per-account runtime state, keyed by user then account.
// It is the only writer; readers get copies.
type Tracker struct {
	mu    sync.Mutex
	users map[int64]map[int64]*accountEntry
	now   func() time.Time
	rand  *rand.Rand
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		users: make(map[int64]map[int64]*accountEntry),
		now:   time.Now,
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (t *Tracker) entry(userID, accountID int64) *accountEntry {
	accounts, ok := t.users[userID]
	if !ok {
		accounts = make(map[int64]*accountEntry)
		t.users[userID] = accounts
	}
	e, ok := accounts[accountID]
	if !ok {
		e = &accountEntry{}
		accounts[accountID] = e
	}
	return e
}

// RecordSuccess marks the account connected and resets its backoff.
// The returned flag is true exactly once per connect transition: the
// caller emits the "stream started" notification when it is set.
func (t *Tracker) RecordSuccess(userID, accountID int64) (notifyStart bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entry(userID, accountID)
	e.Connected = true
	e.LastSuccessAt = t.now()
	e.LastError = ""
	e.ConsecutiveFailures = 0
	e.NextRetryAt = time.Time{}
	// Re-arm the error notification so the next failure is reported again
	e.errorNotified = false

	if !e.startNotified {
		e.startNotified = true
		return true
	}
	return false
}

// RecordFailure marks the account disconnected, advances its failure
// count and schedules the next retry. The returned flag is true only for
// the first failure since the last success, so repeated failures are
// recorded without re-notifying.
func (t *Tracker) RecordFailure(userID, accountID int64, cause error) (notifyError bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entry(userID, accountID)
	e.Connected = false
	if cause != nil {
		msg := cause.Error()
		if len(msg) > 300 {
			msg = msg[:300]
		}
		e.LastError = msg
	}
	e.ConsecutiveFailures++

	shift := e.ConsecutiveFailures
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	backoff := time.Duration(1<<uint(shift)) * time.Second
	if backoff > backoffCap {
		backoff = backoffCap
	}
	jitter := time.Duration(t.rand.Float64() * float64(time.Second))
	e.NextRetryAt = t.now().Add(backoff + jitter)

	if !e.errorNotified {
		e.errorNotified = true
		return true
	}
	return false
}

// IsEligible reports whether the account may be polled at the given time
func (t *Tracker) IsEligible(userID, accountID int64, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	accounts, ok := t.users[userID]
	if !ok {
		return true
	}
	e, ok := accounts[accountID]
	if !ok {
		return true
	}
	return e.NextRetryAt.IsZero() || !e.NextRetryAt.After(now)
}

// Snapshot returns a copy of every tracked account state for the user
func (t *Tracker) Snapshot(userID int64) map[int64]AccountState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[int64]AccountState)
	for id, e := range t.users[userID] {
		out[id] = e.AccountState
	}
	return out
}

// MarkAllDisconnected flips every tracked account of the user to
// disconnected. Called when the user's poll loop stops.
func (t *Tracker) MarkAllDisconnected(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.users[userID] {
		e.Connected = false
	}
}

// Forget drops all runtime state of an account (disable or delete)
func (t *Tracker) Forget(userID, accountID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if accounts, ok := t.users[userID]; ok {
		delete(accounts, accountID)
	}
}

// MarkFirstPass flags a freshly registered account so its pre-existing
// unread backlog is silently consumed on the first poll. Idempotent.
func (t *Tracker) MarkFirstPass(userID, accountID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entry(userID, accountID).firstPass = true
}

// PendingFirstPass reports whether the first-pass flag is still armed,
// without consuming it.
func (t *Tracker) PendingFirstPass(userID, accountID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	accounts, ok := t.users[userID]
	if !ok {
		return false
	}
	e, ok := accounts[accountID]
	return ok && e.firstPass
}

// ConsumeFirstPass reads and clears the first-pass flag. The flag fires
// at most once per account, ever.
func (t *Tracker) ConsumeFirstPass(userID, accountID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	accounts, ok := t.users[userID]
	if !ok {
		return false
	}
	e, ok := accounts[accountID]
	if !ok || !e.firstPass {
		return false
	}
	e.firstPass = false
	return true
}
