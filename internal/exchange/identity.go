package exchange

import (
	"context"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

// AuthenticateAgent is called by the wire layer once a signed-nonce
// handshake verifies (spec.md §4.1). It ensures a ledger account and
// reputation row exist, persists the new identity atomically, and returns
// the resulting account. A persistence failure here is fatal for the
// handshake — the caller must not treat the agent as authenticated.
func (e *Exchange) AuthenticateAgent(ctx context.Context, agentID, agentName string) (core.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct := e.ledg.EnsureAccount(agentID, e.cfg.StartingCredits)
	rep := e.rep.Ensure(agentID)

	view, existed := e.agents[agentID]
	if !existed {
		view = &core.AgentView{AgentID: agentID}
		e.agents[agentID] = view
	}
	view.AgentName = agentName
	view.Account = acct
	view.Reputation = rep

	if e.store != nil {
		if err := e.store.UpsertAgent(ctx, *view); err != nil {
			return core.Account{}, fmtErr("db_error_auth", err)
		}
	}

	e.bus.EmitAgentAuthed(agentID)
	return acct, nil
}

// SystemEnsureAccount is the System Control API's idempotent identity
// creation entry (spec.md §4.8), used by collaborators that mint synthetic
// identities (e.g. the GitHub ingress) without a signed handshake.
func (e *Exchange) SystemEnsureAccount(ctx context.Context, agentID, agentName string, startingCredits int64) (core.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct := e.ledg.EnsureAccount(agentID, startingCredits)
	rep := e.rep.Ensure(agentID)

	view, existed := e.agents[agentID]
	if !existed {
		view = &core.AgentView{AgentID: agentID}
		e.agents[agentID] = view
	}
	if agentName != "" {
		view.AgentName = agentName
	}
	view.Account = acct
	view.Reputation = rep

	if e.store != nil {
		if err := e.store.UpsertAgent(ctx, *view); err != nil {
			e.logger.Printf("⚠️ db_error_ensure_account: %v", err)
		}
	}
	return acct, nil
}
