// Package core holds the entity types shared across the exchange: agents,
// jobs, bids, negotiations, evidence, and the tape events fanned out to
// observers. Nothing here mutates state — mutation lives in the packages
// that own the invariants (ledger, reputation, exchange).
package core

import (
	"encoding/json"
	"time"
)

// JobStatus is the job lifecycle state (spec.md §4.3).
type JobStatus string

const (
	JobOpen      JobStatus = "open"
	JobAwarded   JobStatus = "awarded"
	JobInReview  JobStatus = "in_review"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
)

// NegotiationStatus is the state of a single negotiation sub-document.
type NegotiationStatus string

const (
	NegotiationPending   NegotiationStatus = "pending"
	NegotiationAccept    NegotiationStatus = "accept"
	NegotiationReject    NegotiationStatus = "reject"
	NegotiationMaxRounds NegotiationStatus = "max_rounds"
)

// NegotiationRole identifies which side made a negotiation round.
type NegotiationRole string

const (
	RoleBoss   NegotiationRole = "boss"
	RoleWorker NegotiationRole = "worker"
)

// Terms is the negotiable contract shape attached to a bid or negotiation.
type Terms struct {
	UpfrontPct      float64 `json:"upfrontPct"`
	DeadlineSeconds int64   `json:"deadlineSeconds"`
	MaxRevisions    int     `json:"maxRevisions"`
}

// NegotiationRound is one entry in a negotiation's chronological history.
type NegotiationRound struct {
	Round    int             `json:"round"`
	FromRole NegotiationRole `json:"fromRole"`
	Price    int64           `json:"price"`
	Terms    Terms           `json:"terms"`
	Notes    string          `json:"notes,omitempty"`
	AtMs     int64           `json:"atMs"`
}

// Negotiation is the at-most-one-per-(job,worker) counter-offer exchange.
// It is stored as a sub-document of the job's payload so persistence is a
// single job update, per spec.md §3.
type Negotiation struct {
	WorkerID string             `json:"workerId"`
	BidID    string             `json:"bidId"`
	BidPrice int64              `json:"bidPrice"`
	Price    int64              `json:"price"`
	Terms    Terms              `json:"terms"`
	Status   NegotiationStatus  `json:"status"`
	Round    int                `json:"round"`
	History  []NegotiationRound `json:"history"`
}

// Submission records the most recent submit{} call on a job.
type Submission struct {
	AtMs   int64  `json:"atMs"`
	By     string `json:"by"`
	Result string `json:"result"`
}

// AutoVerifyResult is the advisory evaluator outcome attached to a "coding"
// submission; it never auto-settles the job.
type AutoVerifyResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// GithubLink records the bidirectional mapping between a job and a GitHub
// issue or PR, when the job originated from (or was attached to) the GitHub
// ingress collaborator.
type GithubLink struct {
	Owner       string `json:"owner,omitempty"`
	Repo        string `json:"repo,omitempty"`
	IssueNumber int    `json:"issueNumber,omitempty"`
	PRNumber    int    `json:"prNumber,omitempty"`
}

// JobPayloadKnownKeys enumerates the payload keys JobPayload has a
// first-class field for. Any other key posted on a job round-trips through
// Extra instead of being dropped (spec.md §9: "unknown keys are preserved
// verbatim for forward compatibility").
var JobPayloadKnownKeys = map[string]struct{}{
	"timeoutSeconds":  {},
	"acceptedPrice":   {},
	"acceptedTerms":   {},
	"negotiation":     {},
	"lastSubmission":  {},
	"autoVerify":      {},
	"requiredKeyword": {},
	"github":          {},
}

// JobPayload is the typed projection of the job's free-form payload bag.
// Known keys get first-class fields; anything else is preserved verbatim in
// Extra and re-merged alongside the known fields on marshal, so it survives
// the wire and persistence round-trip untouched (spec.md §9 design note).
type JobPayload struct {
	TimeoutSeconds  *int64                     `json:"timeoutSeconds,omitempty"`
	AcceptedPrice   *int64                     `json:"acceptedPrice,omitempty"`
	AcceptedTerms   *Terms                     `json:"acceptedTerms,omitempty"`
	Negotiation     *Negotiation               `json:"negotiation,omitempty"`
	LastSubmission  *Submission                `json:"lastSubmission,omitempty"`
	AutoVerify      *AutoVerifyResult          `json:"autoVerify,omitempty"`
	RequiredKeyword string                     `json:"requiredKeyword,omitempty"`
	Github          *GithubLink                `json:"github,omitempty"`
	Extra           map[string]json.RawMessage `json:"-"`
}

// jobPayloadAlias shares JobPayload's fields without its custom Marshal/
// Unmarshal methods, so those methods can delegate the known-field half of
// the work to the default struct codec without recursing.
type jobPayloadAlias JobPayload

// MarshalJSON flattens Extra's unknown keys back alongside the known fields
// on the wire.
func (p JobPayload) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(jobPayloadAlias(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(p.Extra)+8)
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if _, known := JobPayloadKnownKeys[k]; known {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known fields normally, then stashes every
// remaining key into Extra.
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	var alias jobPayloadAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*p = JobPayload(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if _, known := JobPayloadKnownKeys[k]; known {
			continue
		}
		extra[k] = v
	}
	if len(extra) > 0 {
		p.Extra = extra
	}
	return nil
}

// Job is a unit of work posted by a requester.
type Job struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Budget       int64      `json:"budget"`
	RequesterID  string     `json:"requesterId"`
	CreatedAt    time.Time  `json:"createdAt"`
	Status       JobStatus  `json:"status"`
	WorkerID     string     `json:"workerId,omitempty"`
	Kind         string     `json:"kind"`
	Payload      JobPayload `json:"payload"`
	LockedBudget int64      `json:"lockedBudget"`
	LockedStake  int64      `json:"lockedStake"`
	PaidUpfront  int64      `json:"paidUpfront"`
	AwardedAtMs  int64      `json:"awardedAtMs,omitempty"`
}

// ReputationSnapshot freezes a bidder's reputation at bid time.
type ReputationSnapshot struct {
	Completed int64   `json:"completed"`
	Failed    int64   `json:"failed"`
	Score     float64 `json:"score"`
}

// Bid is a worker's offer to perform a job.
type Bid struct {
	ID         string             `json:"id"`
	JobID      string             `json:"jobId"`
	BidderID   string             `json:"bidderId"`
	Price      int64              `json:"price"`
	EtaSeconds int64              `json:"etaSeconds"`
	CreatedAt  time.Time          `json:"createdAt"`
	Pitch      string             `json:"pitch,omitempty"`
	Terms      *Terms             `json:"terms,omitempty"`
	Reputation ReputationSnapshot `json:"reputation"`
}

// EvidenceItem is an append-only, human-readable audit entry keyed by job.
type EvidenceItem struct {
	ID        string                 `json:"id"`
	AtMs      int64                  `json:"atMs"`
	JobID     string                 `json:"jobId"`
	Kind      string                 `json:"kind"`
	Detail    string                 `json:"detail"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	ChainHash string                 `json:"chainHash"`
}

// Account is a per-agent ledger row. Invariant: 0 <= Locked <= Credits.
type Account struct {
	Credits int64 `json:"credits"`
	Locked  int64 `json:"locked"`
}

// Spendable returns the portion of credits not reserved by a lock.
func (a Account) Spendable() int64 {
	return a.Credits - a.Locked
}

// Reputation is the per-agent completed/failed counter pair.
type Reputation struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Score is the Laplace-smoothed success rate in [0,1]; undefined agents
// (zero interactions) score 0.5.
func (r Reputation) Score() float64 {
	return float64(r.Completed+1) / float64(r.Completed+r.Failed+2)
}

// Snapshot is the read-only projection served by the observer's initial
// subscribe and by the Persistence Port's snapshot query.
type Snapshot struct {
	Agents   map[string]AgentView `json:"agents"`
	Jobs     []Job                `json:"jobs"`
	Bids     []Bid                `json:"bids"`
	Evidence []EvidenceItem       `json:"evidence"`
}

// AgentView is the observer-facing projection of an agent: identity plus
// its current ledger and reputation rows.
type AgentView struct {
	AgentID    string     `json:"agentId"`
	AgentName  string     `json:"agentName,omitempty"`
	Account    Account    `json:"account"`
	Reputation Reputation `json:"reputation"`
}
