package exchange_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjy919100-del/synapse-proto/internal/config"
	"github.com/cjy919100-del/synapse-proto/internal/core"
	"github.com/cjy919100-del/synapse-proto/internal/exchange"
	"github.com/cjy919100-del/synapse-proto/internal/ledger"
	"github.com/cjy919100-del/synapse-proto/internal/ledgertape"
	"github.com/cjy919100-del/synapse-proto/internal/reputation"
	"github.com/cjy919100-del/synapse-proto/internal/scheduler"
)

// recordingOutbox captures every broadcast/directed send the exchange makes
// during a scenario, so assertions can inspect the exact wire events spec.md
// §8's end-to-end scenarios name without standing up a real websocket.
type recordingOutbox struct {
	broadcasts []recordedSend
	directed   []recordedSend
}

type recordedSend struct {
	agentID string
	msgType string
	body    interface{}
}

func (o *recordingOutbox) SendTo(agentID, msgType string, body interface{}) bool {
	o.directed = append(o.directed, recordedSend{agentID: agentID, msgType: msgType, body: body})
	return true
}

func (o *recordingOutbox) Broadcast(msgType string, body interface{}) {
	o.broadcasts = append(o.broadcasts, recordedSend{msgType: msgType, body: body})
}

func (o *recordingOutbox) last(msgType string) (recordedSend, bool) {
	for i := len(o.broadcasts) - 1; i >= 0; i-- {
		if o.broadcasts[i].msgType == msgType {
			return o.broadcasts[i], true
		}
	}
	return recordedSend{}, false
}

// newTestExchange builds a fully in-memory Exchange (no store, no audit
// sink) wired the way cmd/server/main.go wires the real one, so these
// scenarios exercise the exact state machine a deployed exchange runs.
func newTestExchange(t *testing.T, cfg *config.Config) (*exchange.Exchange, *recordingOutbox) {
	t.Helper()
	sched := scheduler.New(nil)
	ex := exchange.New(cfg, ledger.New(), reputation.New(), sched, ledgertape.NewVault(func() int64 { return time.Now().UnixMilli() }), ledgertape.NewBus(), nil, exchange.NewReferenceEvaluator(), nil)
	out := &recordingOutbox{}
	ex.SetOutbox(out)
	return ex, out
}

func authenticate(t *testing.T, ex *exchange.Exchange, agentID, name string) core.Account {
	t.Helper()
	acct, err := ex.AuthenticateAgent(context.Background(), agentID, name)
	require.NoError(t, err)
	return acct
}

func creditsOf(t *testing.T, ex *exchange.Exchange, agentID string) core.Account {
	t.Helper()
	snap := ex.Snapshot(context.Background())
	view, ok := snap.Agents[agentID]
	require.True(t, ok, "agent %s missing from snapshot", agentID)
	return view.Account
}

// Scenario 1: happy path (spec.md §8 #1).
func TestScenarioHappyPath(t *testing.T) {
	ctx := context.Background()
	ex, _ := newTestExchange(t, config.Default())

	authenticate(t, ex, "requester1", "Requester")
	authenticate(t, ex, "worker1", "Worker")

	job, err := ex.PostJob(ctx, "requester1", "t", "", 25, "simple", nil)
	require.NoError(t, err)

	_, err = ex.Bid(ctx, "worker1", job.ID, 10, 2, "", nil)
	require.NoError(t, err)

	require.NoError(t, ex.Award(ctx, "requester1", job.ID, "worker1"))
	require.NoError(t, ex.Submit(ctx, "worker1", job.ID, "done"))
	require.NoError(t, ex.Review(ctx, "requester1", job.ID, "accept", ""))

	reqAcct := creditsOf(t, ex, "requester1")
	workerAcct := creditsOf(t, ex, "worker1")
	assert.Equal(t, int64(975), reqAcct.Credits)
	assert.Equal(t, int64(0), reqAcct.Locked)
	assert.Equal(t, int64(1025), workerAcct.Credits)
	assert.Equal(t, int64(0), workerAcct.Locked)

	snap := ex.Snapshot(ctx)
	assert.Equal(t, int64(1), snap.Agents["worker1"].Reputation.Completed)
}

// Scenario 2: negotiation + upfront (spec.md §8 #2).
func TestScenarioNegotiationWithUpfront(t *testing.T) {
	ctx := context.Background()
	ex, _ := newTestExchange(t, config.Default())

	authenticate(t, ex, "requester1", "Requester")
	authenticate(t, ex, "worker1", "Worker")

	job, err := ex.PostJob(ctx, "requester1", "t", "", 100, "simple", nil)
	require.NoError(t, err)

	_, err = ex.Bid(ctx, "worker1", job.ID, 80, 5, "", &core.Terms{UpfrontPct: 0.2})
	require.NoError(t, err)

	require.NoError(t, ex.CounterOffer(ctx, "requester1", job.ID, "worker1", 70, core.Terms{UpfrontPct: 0.2, DeadlineSeconds: 8, MaxRevisions: 1}, ""))
	require.NoError(t, ex.OfferDecision(ctx, "worker1", job.ID, "accept"))

	reqAfterAward := creditsOf(t, ex, "requester1")
	workerAfterAward := creditsOf(t, ex, "worker1")
	assert.Equal(t, int64(986), reqAfterAward.Credits)
	assert.Equal(t, int64(56), reqAfterAward.Locked)
	assert.Equal(t, int64(1014), workerAfterAward.Credits)

	require.NoError(t, ex.Submit(ctx, "worker1", job.ID, "done"))
	require.NoError(t, ex.Review(ctx, "requester1", job.ID, "accept", ""))

	reqFinal := creditsOf(t, ex, "requester1")
	workerFinal := creditsOf(t, ex, "worker1")
	assert.Equal(t, int64(930), reqFinal.Credits)
	assert.Equal(t, int64(0), reqFinal.Locked)
	assert.Equal(t, int64(1070), workerFinal.Credits)
	assert.Equal(t, int64(0), workerFinal.Locked)
}

// Scenario 3: timeout + reopen (spec.md §8 #3).
func TestScenarioTimeoutAndReopen(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	ex, _ := newTestExchange(t, cfg)

	authenticate(t, ex, "requester1", "Requester")
	authenticate(t, ex, "worker1", "Worker")

	one := int64(1)
	job, err := ex.PostJob(ctx, "requester1", "t", "", 100, "simple", map[string]interface{}{"timeoutSeconds": one})
	require.NoError(t, err)

	_, err = ex.Bid(ctx, "worker1", job.ID, 100, 5, "", nil)
	require.NoError(t, err)
	require.NoError(t, ex.Award(ctx, "requester1", job.ID, "worker1"))

	reqAfterAward := creditsOf(t, ex, "requester1")
	assert.Equal(t, int64(100), reqAfterAward.Locked, "requester's budget should be locked at award")

	require.Eventually(t, func() bool {
		snap := ex.Snapshot(ctx)
		for _, j := range snap.Jobs {
			if j.ID == job.ID {
				return j.Status == core.JobOpen
			}
		}
		return false
	}, 3*time.Second, 50*time.Millisecond, "job should timeout to failed then reopen to open")

	snap := ex.Snapshot(ctx)
	assert.GreaterOrEqual(t, snap.Agents["worker1"].Reputation.Failed, int64(1))
	assert.Equal(t, int64(0), snap.Agents["worker1"].Account.Locked)
	assert.Equal(t, int64(0), snap.Agents["requester1"].Account.Locked)

	foundSettlement := false
	for _, ev := range snap.Evidence {
		if ev.JobID == job.ID && ev.Kind == "settlement" {
			foundSettlement = true
			break
		}
	}
	assert.True(t, foundSettlement, "expected a settlement evidence entry for the timed-out job")
}

// Scenario 4: reputation smoothing (spec.md §8 #4).
func TestScenarioReputationSmoothing(t *testing.T) {
	ctx := context.Background()
	ex, _ := newTestExchange(t, config.Default())

	authenticate(t, ex, "requester1", "Requester")
	authenticate(t, ex, "worker1", "Worker")

	jobA, err := ex.PostJob(ctx, "requester1", "a", "", 20, "simple", nil)
	require.NoError(t, err)
	_, err = ex.Bid(ctx, "worker1", jobA.ID, 20, 1, "", nil)
	require.NoError(t, err)
	require.NoError(t, ex.Award(ctx, "requester1", jobA.ID, "worker1"))
	require.NoError(t, ex.Submit(ctx, "worker1", jobA.ID, "done"))
	require.NoError(t, ex.Review(ctx, "requester1", jobA.ID, "accept", ""))

	jobB, err := ex.PostJob(ctx, "requester1", "b", "", 20, "simple", nil)
	require.NoError(t, err)
	_, err = ex.Bid(ctx, "worker1", jobB.ID, 20, 1, "", nil)
	require.NoError(t, err)
	require.NoError(t, ex.Award(ctx, "requester1", jobB.ID, "worker1"))
	require.NoError(t, ex.Submit(ctx, "worker1", jobB.ID, "done"))
	require.NoError(t, ex.Review(ctx, "requester1", jobB.ID, "reject", ""))

	snap := ex.Snapshot(ctx)
	rep := snap.Agents["worker1"].Reputation
	assert.Equal(t, int64(1), rep.Completed)
	assert.Equal(t, int64(1), rep.Failed)
	assert.InDelta(t, 0.5, rep.Score(), 0.01)
}

// Scenario 5: max negotiation rounds (spec.md §8 #5).
func TestScenarioNegotiationMaxRounds(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.NegotiationMaxRounds = 2
	ex, out := newTestExchange(t, cfg)

	authenticate(t, ex, "requester1", "Requester")
	authenticate(t, ex, "worker1", "Worker")

	job, err := ex.PostJob(ctx, "requester1", "t", "", 100, "simple", nil)
	require.NoError(t, err)
	_, err = ex.Bid(ctx, "worker1", job.ID, 80, 5, "", nil)
	require.NoError(t, err)

	require.NoError(t, ex.CounterOffer(ctx, "requester1", job.ID, "worker1", 70, core.Terms{}, "")) // round 1
	require.NoError(t, ex.WorkerCounter(ctx, "worker1", job.ID, 75, core.Terms{}, ""))               // round 2

	err = ex.CounterOffer(ctx, "requester1", job.ID, "worker1", 72, core.Terms{}, "") // would be round 3
	assert.ErrorIs(t, err, core.ErrNegotiationMaxRounds)

	ended, ok := out.last("negotiation_ended")
	require.True(t, ok, "expected a negotiation_ended broadcast")
	body, ok := ended.body.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "max_rounds", body["reason"])
	assert.Equal(t, 2, body["round"])

	snap := ex.Snapshot(ctx)
	for _, j := range snap.Jobs {
		if j.ID == job.ID {
			assert.Equal(t, core.JobOpen, j.Status)
		}
	}
}

// Scenario 6: identity stability (spec.md §8 #6).
func TestScenarioIdentityStability(t *testing.T) {
	ctx := context.Background()
	ex, _ := newTestExchange(t, config.Default())

	first, err := ex.AuthenticateAgent(ctx, "agent-stable", "Agent")
	require.NoError(t, err)

	_, err = ex.PostJob(ctx, "agent-stable", "t", "", 10, "simple", nil)
	require.NoError(t, err)

	second, err := ex.AuthenticateAgent(ctx, "agent-stable", "Agent")
	require.NoError(t, err)

	assert.Equal(t, first.Credits, second.Credits, "re-authenticating the same identity must not reset its ledger")

	snap := ex.Snapshot(ctx)
	assert.Contains(t, snap.Agents, "agent-stable")
	assert.Equal(t, "agent-stable", snap.Agents["agent-stable"].AgentID)
}
