// Package exchange is the job/bid/negotiation/review state machine (spec.md
// §4.3) plus the ledger/stake/reputation wiring that makes every transition
// move money and emit events (§4.4/§4.5/§4.7). It has no direct teacher
// analog — the shape (constructor takes its collaborators, methods are thin
// coordination over them) follows internal/api/server.go's wiring style, and
// the single-mutex serialization follows spec.md §5's "behaves as if every
// handler executes atomically" requirement the way a single global lock
// would in the teacher's own handler dispatch.
package exchange

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjy919100-del/synapse-proto/internal/config"
	"github.com/cjy919100-del/synapse-proto/internal/core"
	"github.com/cjy919100-del/synapse-proto/internal/ledger"
	"github.com/cjy919100-del/synapse-proto/internal/ledgertape"
	"github.com/cjy919100-del/synapse-proto/internal/reputation"
	"github.com/cjy919100-del/synapse-proto/internal/scheduler"
)

// Outbox is the narrow delivery surface the exchange needs from the wire
// layer: a directed send to one agent's live session and a fan-out to every
// live session. internal/wire.Hub satisfies this without either package
// importing the other.
type Outbox interface {
	SendTo(agentID, msgType string, body interface{}) bool
	Broadcast(msgType string, body interface{})
}

// Persister is the Persistence Port (spec.md §4.9). A nil Persister is
// valid — the exchange then serves everything from memory.
type Persister interface {
	UpsertAgent(ctx context.Context, view core.AgentView) error
	UpsertJob(ctx context.Context, job core.Job) error
	UpsertBid(ctx context.Context, bid core.Bid) error
	AppendEvidence(ctx context.Context, item core.EvidenceItem) error
	AppendEvent(ctx context.Context, kind string, payload interface{}) error
	LinkGithubIssue(ctx context.Context, owner, repo string, issue int, jobID string) error
	LinkGithubPr(ctx context.Context, owner, repo string, pr int, jobID string) error
	Snapshot(ctx context.Context) (core.Snapshot, error)
}

// Evaluator is the external, advisory code-submission checker for "coding"
// jobs (spec.md §9 Open Question). It must be pure, deterministic, and
// time-bounded; its verdict never auto-settles a job.
type Evaluator interface {
	Evaluate(ctx context.Context, job core.Job, result string) core.AutoVerifyResult
}

// AuditSink optionally mirrors settlement events to a secondary collector
// (internal/auditsink). A no-op implementation is always valid.
type AuditSink interface {
	MirrorSettlement(ctx context.Context, jobID, outcome string, job core.Job)
}

// Exchange owns every in-memory entity and serializes all mutating access
// behind mu, per spec.md §5.
type Exchange struct {
	mu sync.Mutex

	cfg   *config.Config
	ledg  *ledger.Ledger
	rep   *reputation.Manager
	sched *scheduler.Scheduler
	tape  *ledgertape.Vault
	bus   *ledgertape.Bus
	store Persister
	eval  Evaluator
	audit AuditSink
	out   Outbox

	agents      map[string]*core.AgentView // agentId -> view (name, account mirrors ledger)
	jobs        map[string]*core.Job
	bidsByJob   map[string][]core.Bid
	githubIssue map[string]string // "owner/repo#issue" -> jobId
	githubPR    map[string]string // "owner/repo#pr" -> jobId

	logger *log.Logger
}

// New constructs an Exchange. out may be nil until the wire layer is wired
// in (tests commonly run with a nil/no-op Outbox).
func New(cfg *config.Config, ledg *ledger.Ledger, rep *reputation.Manager, sched *scheduler.Scheduler, tape *ledgertape.Vault, bus *ledgertape.Bus, store Persister, eval Evaluator, audit AuditSink) *Exchange {
	ex := &Exchange{
		cfg:         cfg,
		ledg:        ledg,
		rep:         rep,
		sched:       sched,
		tape:        tape,
		bus:         bus,
		store:       store,
		eval:        eval,
		audit:       audit,
		agents:      make(map[string]*core.AgentView),
		jobs:        make(map[string]*core.Job),
		bidsByJob:   make(map[string][]core.Bid),
		githubIssue: make(map[string]string),
		githubPR:    make(map[string]string),
		logger:      log.New(log.Writer(), "[EXCHANGE] ", log.LstdFlags),
	}
	sched.SetOnFire(ex.onDeadline) // internal/scheduler callback wired after construction (avoids an import cycle at package init)
	return ex
}

// SetOutbox wires the delivery surface in after hub construction (main.go
// builds Exchange and Hub in either order).
func (e *Exchange) SetOutbox(out Outbox) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.out = out
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// addEvidenceLocked appends an evidence item, mirrors it to the tape bus,
// and write-throughs to the store. Caller must hold mu.
func (e *Exchange) addEvidenceLocked(jobID, kind, detail string, payload map[string]interface{}) {
	item := e.tape.Append(jobID, kind, detail, payload)
	e.bus.EmitEvidence(item)
	if e.store != nil {
		if err := e.store.AppendEvidence(context.Background(), item); err != nil {
			e.logger.Printf("⚠️ db_error_evidence: %v", err)
			e.bus.Publish(ledgertape.TapeEvent{Kind: ledgertape.TapeKind("db_error_evidence"), Payload: map[string]interface{}{"jobId": jobID, "error": err.Error()}})
		}
	}
}

// broadcastLocked fans a message out to every live session, mirrors it on
// the tape, and write-throughs the event log. Caller must hold mu.
func (e *Exchange) broadcastLocked(msgType string, body interface{}) {
	if e.out != nil {
		e.out.Broadcast(msgType, body)
	}
	e.bus.EmitBroadcast(msgType, body)
	if e.store != nil {
		if err := e.store.AppendEvent(context.Background(), msgType, body); err != nil {
			e.logger.Printf("⚠️ db_error_event: %v", err)
		}
	}
}

// sendToLocked directs a message at one agent's live session, if any.
// Caller must hold mu.
func (e *Exchange) sendToLocked(agentID, msgType string, body interface{}) {
	if e.out != nil {
		e.out.SendTo(agentID, msgType, body)
	}
}

// ledgerUpdateLocked emits the directed ledger_update + tape event required
// after every ledger mutation touching agentID (spec.md §4.4 last
// paragraph). Caller must hold mu.
func (e *Exchange) ledgerUpdateLocked(agentID string) {
	acct, ok := e.ledg.Snapshot(agentID)
	if !ok {
		return
	}
	e.sendToLocked(agentID, "ledger_update", map[string]interface{}{"credits": acct.Credits, "locked": acct.Locked})
	e.bus.EmitLedgerUpdate(agentID, acct)
	if view, ok := e.agents[agentID]; ok {
		view.Account = acct
		if e.store != nil {
			if err := e.store.UpsertAgent(context.Background(), *view); err != nil {
				e.logger.Printf("⚠️ db_error_ledger: %v", err)
			}
		}
	}
}

// reputationUpdateLocked emits the rep_update tape event after a settlement
// changes an agent's reputation counters. Caller must hold mu.
func (e *Exchange) reputationUpdateLocked(agentID string, rep core.Reputation) {
	e.bus.EmitRepUpdate(agentID, rep)
	if view, ok := e.agents[agentID]; ok {
		view.Reputation = rep
		if e.store != nil {
			if err := e.store.UpsertAgent(context.Background(), *view); err != nil {
				e.logger.Printf("⚠️ db_error_reputation: %v", err)
			}
		}
	}
}

// Snapshot returns the observer-facing projection of every entity, reading
// from the store when persistence is enabled, otherwise from memory
// (spec.md §4.9).
func (e *Exchange) Snapshot(ctx context.Context) core.Snapshot {
	if e.store != nil {
		if snap, err := e.store.Snapshot(ctx); err == nil {
			return snap
		}
		e.logger.Printf("⚠️ db_error_snapshot: falling back to in-memory projection")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	agents := make(map[string]core.AgentView, len(e.agents))
	for id, v := range e.agents {
		agents[id] = *v
	}
	jobs := make([]core.Job, 0, len(e.jobs))
	for _, j := range e.jobs {
		jobs = append(jobs, *j)
	}
	bids := make([]core.Bid, 0)
	for _, bs := range e.bidsByJob {
		bids = append(bids, bs...)
	}
	return core.Snapshot{
		Agents:   agents,
		Jobs:     jobs,
		Bids:     bids,
		Evidence: e.tape.All(),
	}
}

func fmtErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// OpenJobCount reports the number of jobs currently in the "open" status
// (internal/metrics gauge source).
func (e *Exchange) OpenJobCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, job := range e.jobs {
		if job.Status == core.JobOpen {
			n++
		}
	}
	return n
}

// JobsPostedTotal reports the cumulative number of jobs ever posted (jobs
// are never deleted from e.jobs, only status-transitioned).
func (e *Exchange) JobsPostedTotal() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.jobs)
}

// BidsPlacedTotal reports the cumulative number of bids ever placed.
func (e *Exchange) BidsPlacedTotal() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, bids := range e.bidsByJob {
		n += len(bids)
	}
	return n
}

// LockedTotals sums LockedBudget and LockedStake across every job currently
// awarded or in review (internal/metrics gauge source).
func (e *Exchange) LockedTotals() (lockedCredits, lockedStake int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, job := range e.jobs {
		if job.Status == core.JobAwarded || job.Status == core.JobInReview {
			lockedCredits += job.LockedBudget - job.PaidUpfront
			lockedStake += job.LockedStake
		}
	}
	return lockedCredits, lockedStake
}

// JobsByStatus returns a count per terminal/non-terminal status, for the
// settlement-outcome gauge (internal/metrics).
func (e *Exchange) JobsByStatus() map[core.JobStatus]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[core.JobStatus]int)
	for _, job := range e.jobs {
		out[job.Status]++
	}
	return out
}

// ArmedTimerCount delegates to the scheduler (internal/metrics gauge
// source).
func (e *Exchange) ArmedTimerCount() int {
	return e.sched.Count()
}

// EvidenceRingSize delegates to the tape vault (internal/metrics gauge
// source).
func (e *Exchange) EvidenceRingSize() int {
	return e.tape.RingSize()
}

// EvidenceAppendedTotal delegates to the tape vault (internal/metrics
// counter source).
func (e *Exchange) EvidenceAppendedTotal() int64 {
	return e.tape.AppendedTotal()
}
