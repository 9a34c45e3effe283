package exchange

import (
	"context"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

// CounterOffer implements spec.md §4.3 "Negotiation": the requester's
// counter-offer to a specific bidder.
func (e *Exchange) CounterOffer(ctx context.Context, requesterID, jobID, workerID string, price int64, terms core.Terms, notes string) error {
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
	if price > job.Budget {
		return core.ErrOfferOverBudget
	}

	neg := job.Payload.Negotiation
	if neg != nil && neg.Status == core.NegotiationPending && neg.WorkerID != workerID {
		return core.ErrNegotiationInProgress
	}

	fresh := neg == nil || neg.WorkerID != workerID
	round := 1
	if !fresh {
		round = neg.Round + 1
	}

	if round > e.cfg.NegotiationMaxRounds {
		e.closeNegotiationMaxRoundsLocked(ctx, job, neg)
		return core.ErrNegotiationMaxRounds
	}

	if fresh {
		bid := e.bidByWorkerLocked(jobID, workerID)
		neg = &core.Negotiation{WorkerID: workerID, BidID: bid.ID, BidPrice: bid.Price}
	}
	neg.Price = price
	neg.Terms = terms
	neg.Status = core.NegotiationPending
	neg.Round = round
	neg.History = append(neg.History, core.NegotiationRound{Round: round, FromRole: core.RoleBoss, Price: price, Terms: terms, Notes: notes, AtMs: nowMs()})
	job.Payload.Negotiation = neg

	e.addEvidenceLocked(jobID, "counter", "requester countered", map[string]interface{}{"workerId": workerID, "price": price, "round": round})
	e.broadcastLocked("counter_made", map[string]interface{}{"jobId": jobID, "workerId": workerID, "fromRole": core.RoleBoss, "price": price, "terms": terms, "round": round})
	if fresh {
		e.sendToLocked(workerID, "offer_made", map[string]interface{}{"jobId": jobID, "workerId": workerID, "price": price, "terms": terms, "round": round})
	}
	e.persistJobLocked(ctx, job)
	return nil
}

// WorkerCounter implements the worker's response leg of a negotiation.
func (e *Exchange) WorkerCounter(ctx context.Context, workerID, jobID string, price int64, terms core.Terms, notes string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return core.ErrJobNotFound
	}
	if job.Status != core.JobOpen {
		return core.ErrJobNotOpen
	}
	neg := job.Payload.Negotiation
	if neg == nil {
		return core.ErrNoActiveOffer
	}
	if neg.WorkerID != workerID {
		return core.ErrNotOfferTarget
	}
	if neg.Status != core.NegotiationPending {
		return core.ErrNegotiationNotPending
	}
	if price > job.Budget {
		return core.ErrCounterOverBudget
	}

	round := neg.Round + 1
	if round > e.cfg.NegotiationMaxRounds {
		e.closeNegotiationMaxRoundsLocked(ctx, job, neg)
		return core.ErrNegotiationMaxRounds
	}

	neg.Price = price
	neg.Terms = terms
	neg.Round = round
	neg.History = append(neg.History, core.NegotiationRound{Round: round, FromRole: core.RoleWorker, Price: price, Terms: terms, Notes: notes, AtMs: nowMs()})

	e.addEvidenceLocked(jobID, "counter", "worker countered", map[string]interface{}{"workerId": workerID, "price": price, "round": round})
	e.broadcastLocked("counter_made", map[string]interface{}{"jobId": jobID, "workerId": workerID, "fromRole": core.RoleWorker, "price": price, "terms": terms, "round": round})
	e.persistJobLocked(ctx, job)
	return nil
}

// OfferDecision implements the worker's accept/reject of the requester's
// standing offer. Accept triggers the Direct Award path.
func (e *Exchange) OfferDecision(ctx context.Context, workerID, jobID, decision string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return core.ErrJobNotFound
	}
	if job.Status != core.JobOpen {
		return core.ErrJobNotOpen
	}
	neg := job.Payload.Negotiation
	if neg == nil {
		return core.ErrNoActiveOffer
	}
	if neg.WorkerID != workerID {
		return core.ErrNotOfferTarget
	}
	if neg.Status != core.NegotiationPending {
		return core.ErrNegotiationNotPending
	}

	switch decision {
	case "reject":
		neg.Status = core.NegotiationReject
		e.addEvidenceLocked(jobID, "offer_response", "worker rejected offer", map[string]interface{}{"workerId": workerID, "round": neg.Round})
		e.broadcastLocked("offer_response", map[string]interface{}{"jobId": jobID, "workerId": workerID, "decision": core.NegotiationReject, "round": neg.Round})
		job.Payload.Negotiation = nil
		e.persistJobLocked(ctx, job)
		return nil
	case "accept":
		agreedPrice := neg.Price
		terms := neg.Terms
		round := neg.Round
		if agreedPrice > job.Budget {
			return core.ErrAgreedPriceOverBudget
		}
		if err := e.awardLocked(ctx, job, workerID, agreedPrice, &terms); err != nil {
			return err
		}
		e.addEvidenceLocked(jobID, "offer_response", "worker accepted offer", map[string]interface{}{"workerId": workerID, "round": round})
		e.broadcastLocked("offer_response", map[string]interface{}{"jobId": jobID, "workerId": workerID, "decision": core.NegotiationAccept, "round": round})
		job.Payload.Negotiation = nil
		e.persistJobLocked(ctx, job)
		return nil
	default:
		return core.ErrInvalidMessage
	}
}

func (e *Exchange) closeNegotiationMaxRoundsLocked(ctx context.Context, job *core.Job, neg *core.Negotiation) {
	if neg == nil {
		return
	}
	neg.Status = core.NegotiationMaxRounds
	e.addEvidenceLocked(job.ID, "negotiation_end", "negotiation closed: max rounds reached", map[string]interface{}{"workerId": neg.WorkerID, "round": neg.Round})
	e.broadcastLocked("negotiation_ended", map[string]interface{}{"jobId": job.ID, "workerId": neg.WorkerID, "reason": "max_rounds", "round": neg.Round})
	job.Payload.Negotiation = nil
	e.persistJobLocked(ctx, job)
}

func (e *Exchange) bidByWorkerLocked(jobID, workerID string) core.Bid {
	for _, b := range e.bidsByJob[jobID] {
		if b.BidderID == workerID {
			return b
		}
	}
	return core.Bid{}
}

func (e *Exchange) persistJobLocked(ctx context.Context, job *core.Job) {
	if e.store == nil {
		return
	}
	if err := e.store.UpsertJob(ctx, *job); err != nil {
		e.logger.Printf("⚠️ db_error_job: %v", err)
	}
}
