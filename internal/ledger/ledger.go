// Package ledger is the integrated credit + stake ledger (spec.md §4.4).
// All mutations go through apply so that every observable point keeps
// the invariant 0 <= locked <= credits for every touched account — mirroring
// the mutex-guarded map-of-accounts shape used throughout the teacher's
// reputation and escrow packages.
package ledger

import (
	"fmt"
	"sync"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

// ErrInvariantViolation is returned (and never surfaced on the wire) when an
// operation would push an account outside 0 <= locked <= credits. Per
// spec.md §7 tier 3, the handler that triggers this must abort without
// applying any partial mutation — apply computes the full delta set
// before writing anything.
var ErrInvariantViolation = fmt.Errorf("ledger invariant violation")

// Ledger holds one Account per agent.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*core.Account
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{accounts: make(map[string]*core.Account)}
}

// delta is one account's proposed credits/locked change.
type delta struct {
	agentID      string
	creditsDelta int64
	lockedDelta  int64
}

// EnsureAccount creates an account with the given starting credits if one
// does not already exist; idempotent.
func (l *Ledger) EnsureAccount(agentID string, startingCredits int64) core.Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[agentID]
	if !ok {
		acct = &core.Account{Credits: startingCredits, Locked: 0}
		l.accounts[agentID] = acct
	}
	return *acct
}

// Snapshot returns the account by value; the zero Account if unknown.
func (l *Ledger) Snapshot(agentID string) (core.Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[agentID]
	if !ok {
		return core.Account{}, false
	}
	return *acct, true
}

// Spendable returns credits-locked for an agent, or false if no account
// exists.
func (l *Ledger) Spendable(agentID string) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[agentID]
	if !ok {
		return 0, false
	}
	return acct.Spendable(), true
}

// apply validates and commits a set of per-account deltas atomically. All
// referenced accounts must already exist. On any invariant violation, no
// account is mutated.
func (l *Ledger) apply(deltas []delta) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	proposed := make(map[string]core.Account, len(deltas))
	for _, d := range deltas {
		acct, ok := l.accounts[d.agentID]
		if !ok {
			return fmt.Errorf("%w: unknown account %s", ErrInvariantViolation, d.agentID)
		}
		cur, seen := proposed[d.agentID]
		if !seen {
			cur = *acct
		}
		cur.Credits += d.creditsDelta
		cur.Locked += d.lockedDelta
		proposed[d.agentID] = cur
	}

	for agentID, acct := range proposed {
		if acct.Locked < 0 || acct.Credits < 0 || acct.Locked > acct.Credits {
			return fmt.Errorf("%w: agent %s would have credits=%d locked=%d", ErrInvariantViolation, agentID, acct.Credits, acct.Locked)
		}
	}

	for agentID, acct := range proposed {
		*l.accounts[agentID] = acct
	}
	return nil
}

// ReserveLock increases an agent's locked amount by amount, requiring
// sufficient spendable balance. Used for the requester's award lock and the
// worker's stake lock.
func (l *Ledger) ReserveLock(agentID string, amount int64) error {
	if amount == 0 {
		return nil
	}
	return l.apply([]delta{{agentID: agentID, lockedDelta: amount}})
}

// ReserveLocks atomically reserves multiple accounts' locks in one step —
// used by award, where the requester's budget lock and the worker's stake
// lock must both succeed or neither does (spec.md §7 tier 3: no partial
// mutation may escape a failed award attempt).
func (l *Ledger) ReserveLocks(byAgent map[string]int64) error {
	deltas := make([]delta, 0, len(byAgent))
	for agentID, amount := range byAgent {
		if amount == 0 {
			continue
		}
		deltas = append(deltas, delta{agentID: agentID, lockedDelta: amount})
	}
	if len(deltas) == 0 {
		return nil
	}
	return l.apply(deltas)
}

// ReleaseLock decreases an agent's locked amount by amount without moving
// credits — used to return a reservation (stake returned, budget refunded
// on reopen) when no payment is due.
func (l *Ledger) ReleaseLock(agentID string, amount int64) error {
	if amount == 0 {
		return nil
	}
	return l.apply([]delta{{agentID: agentID, lockedDelta: -amount}})
}

// Pay moves amount out of fromAgent's locked reservation and into toAgent's
// credits in a single atomic step (award settlement, upfront payment).
func (l *Ledger) Pay(fromAgent, toAgent string, amount int64) error {
	if amount == 0 {
		return nil
	}
	return l.apply([]delta{
		{agentID: fromAgent, creditsDelta: -amount, lockedDelta: -amount},
		{agentID: toAgent, creditsDelta: amount},
	})
}

// Slash releases stakeHeld from the worker's lock, debits slashAmount from
// the worker's credits, and credits slashAmount to the requester — all in
// one atomic step (spec.md §4.4 settlement-failure).
func (l *Ledger) Slash(worker, requester string, stakeHeld, slashAmount int64) error {
	return l.apply([]delta{
		{agentID: worker, creditsDelta: -slashAmount, lockedDelta: -stakeHeld},
		{agentID: requester, creditsDelta: slashAmount},
	})
}
