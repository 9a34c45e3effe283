package exchange

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

// PostJob implements spec.md §4.3 "Posting" for the client wire path.
func (e *Exchange) PostJob(ctx context.Context, requesterID, title, description string, budget int64, kind string, payload map[string]interface{}) (core.Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.postJobLocked(ctx, requesterID, title, description, budget, kind, payload)
}

func (e *Exchange) postJobLocked(ctx context.Context, requesterID, title, description string, budget int64, kind string, payload map[string]interface{}) (core.Job, error) {
	if title == "" || budget <= 0 {
		return core.Job{}, core.ErrInvalidMessage
	}
	spendable, ok := e.ledg.Spendable(requesterID)
	if !ok {
		return core.Job{}, core.ErrNoLedgerAccount
	}
	if spendable < budget {
		return core.Job{}, core.ErrInsufficientCredits
	}
	if kind == "" {
		kind = "simple"
	}

	job := core.Job{
		ID:          newID("job"),
		Title:       title,
		Description: description,
		Budget:      budget,
		RequesterID: requesterID,
		CreatedAt:   timeNow(),
		Status:      core.JobOpen,
		Kind:        kind,
		Payload:     decodeJobPayload(payload),
	}
	e.jobs[job.ID] = &job

	if e.store != nil {
		if err := e.store.UpsertJob(ctx, job); err != nil {
			e.logger.Printf("⚠️ db_error_post_job: %v", err)
		}
	}
	e.broadcastLocked("job_posted", map[string]interface{}{"job": job})
	return job, nil
}

// Bid implements spec.md §4.3 "Bidding".
func (e *Exchange) Bid(ctx context.Context, bidderID, jobID string, price, etaSeconds int64, pitch string, terms *core.Terms) (core.Bid, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return core.Bid{}, core.ErrJobNotFound
	}
	if job.Status != core.JobOpen {
		return core.Bid{}, core.ErrJobNotOpen
	}
	if price > job.Budget {
		return core.Bid{}, core.ErrBidOverBudget
	}

	rep := e.rep.Get(bidderID)
	bid := core.Bid{
		ID:         newID("bid"),
		JobID:      jobID,
		BidderID:   bidderID,
		Price:      price,
		EtaSeconds: etaSeconds,
		CreatedAt:  timeNow(),
		Pitch:      pitch,
		Terms:      terms,
		Reputation: core.ReputationSnapshot{Completed: rep.Completed, Failed: rep.Failed, Score: rep.Score()},
	}
	e.bidsByJob[jobID] = append(e.bidsByJob[jobID], bid)

	if e.store != nil {
		if err := e.store.UpsertBid(ctx, bid); err != nil {
			e.logger.Printf("⚠️ db_error_bid: %v", err)
		}
	}
	e.broadcastLocked("bid_posted", map[string]interface{}{"bid": bid})
	return bid, nil
}

// Award implements spec.md §4.3 "Direct award" for the client wire path
// (requester-initiated, no prior negotiation).
func (e *Exchange) Award(ctx context.Context, requesterID, jobID, workerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return core.ErrJobNotFound
	}
	if job.RequesterID != requesterID {
		return core.ErrNotJobOwner
	}
	if job.Status != core.JobOpen {
		return core.ErrJobNotOpen
	}
	if !e.workerHasBidLocked(jobID, workerID) {
		return core.ErrWorkerHasNoBid
	}

	price := job.Budget
	return e.awardLocked(ctx, job, workerID, price, nil)
}

// awardLocked is the shared award path used by direct award, negotiation
// acceptance, and the System Control API. Caller must hold mu. acceptedTerms
// is non-nil only when the award follows a completed negotiation.
func (e *Exchange) awardLocked(ctx context.Context, job *core.Job, workerID string, price int64, acceptedTerms *core.Terms) error {
	if _, ok := e.ledg.Snapshot(job.RequesterID); !ok {
		return core.ErrNoLedgerAccount
	}
	workerAcct, ok := e.ledg.Snapshot(workerID)
	if !ok {
		return core.ErrWorkerNoLedgerAccount
	}

	stake := computeStake(job.Budget, e.cfg.WorkerStakePct, e.rep.Get(workerID).Score())
	if stake > 0 && workerAcct.Spendable() < stake {
		return core.ErrWorkerInsufficientStake
	}
	if spendable, _ := e.ledg.Spendable(job.RequesterID); spendable < price {
		return core.ErrInsufficientCredits
	}

	if err := e.ledg.ReserveLocks(map[string]int64{job.RequesterID: price, workerID: stake}); err != nil {
		return core.ErrInsufficientCredits
	}

	job.WorkerID = workerID
	job.Status = core.JobAwarded
	job.LockedBudget = price
	job.LockedStake = stake
	job.AwardedAtMs = nowMs()
	if acceptedTerms != nil {
		job.Payload.AcceptedPrice = &price
		job.Payload.AcceptedTerms = acceptedTerms
	}

	e.ledgerUpdateLocked(job.RequesterID)
	e.ledgerUpdateLocked(workerID)
	e.addEvidenceLocked(job.ID, "award", "job awarded to worker", map[string]interface{}{"workerId": workerID, "price": price, "stake": stake})

	deadline := defaultDeadline(job.Payload.TimeoutSeconds, e.cfg.DefaultDeadlineSeconds)
	e.sched.Arm(job.ID, deadline)

	if e.store != nil {
		if err := e.store.UpsertJob(ctx, *job); err != nil {
			e.logger.Printf("⚠️ db_error_award: %v", err)
		}
	}
	e.broadcastLocked("job_awarded", map[string]interface{}{"jobId": job.ID, "workerId": workerID, "budgetLocked": price})

	if acceptedTerms != nil && acceptedTerms.UpfrontPct > 0 {
		e.payUpfrontLocked(ctx, job)
	}
	return nil
}

// payUpfrontLocked pays the negotiated upfront portion immediately at award
// time (spec.md §4.4 "Upfront"). Caller must hold mu.
func (e *Exchange) payUpfrontLocked(ctx context.Context, job *core.Job) {
	upfront := computeUpfront(job.LockedBudget, job.Payload.AcceptedTerms.UpfrontPct)
	if upfront <= 0 {
		return
	}
	if err := e.ledg.Pay(job.RequesterID, job.WorkerID, upfront); err != nil {
		e.logger.Printf("⚠️ upfront payment failed for job %s: %v", job.ID, err)
		return
	}
	job.PaidUpfront = upfront
	e.ledgerUpdateLocked(job.RequesterID)
	e.ledgerUpdateLocked(job.WorkerID)
	e.addEvidenceLocked(job.ID, "upfront", "upfront payment settled", map[string]interface{}{"amount": upfront})
	if e.store != nil {
		if err := e.store.UpsertJob(ctx, *job); err != nil {
			e.logger.Printf("⚠️ db_error_upfront: %v", err)
		}
	}
}

func (e *Exchange) workerHasBidLocked(jobID, workerID string) bool {
	for _, b := range e.bidsByJob[jobID] {
		if b.BidderID == workerID {
			return true
		}
	}
	return false
}

func decodeJobPayload(raw map[string]interface{}) core.JobPayload {
	p := core.JobPayload{}
	if raw == nil {
		return p
	}
	if v, ok := raw["timeoutSeconds"]; ok {
		if n, ok := toInt64(v); ok {
			p.TimeoutSeconds = &n
		}
	}
	if v, ok := raw["requiredKeyword"]; ok {
		if s, ok := v.(string); ok {
			p.RequiredKeyword = strings.TrimSpace(s)
		}
	}

	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if _, known := core.JobPayloadKnownKeys[k]; known {
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		extra[k] = b
	}
	if len(extra) > 0 {
		p.Extra = extra
	}
	return p
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
