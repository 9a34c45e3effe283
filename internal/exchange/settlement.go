package exchange

import (
	"context"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

// settleSuccessLocked implements spec.md §4.4 "Settlement-success". Caller
// must hold mu.
func (e *Exchange) settleSuccessLocked(ctx context.Context, job *core.Job) error {
	remainder := job.LockedBudget - job.PaidUpfront
	if remainder < 0 {
		remainder = 0
	}

	if err := e.ledg.Pay(job.RequesterID, job.WorkerID, remainder); err != nil {
		return err
	}
	if err := e.ledg.ReleaseLock(job.WorkerID, job.LockedStake); err != nil {
		return err
	}

	rep := e.rep.RecordCompletion(job.WorkerID)
	job.Status = core.JobCompleted

	e.ledgerUpdateLocked(job.RequesterID)
	e.ledgerUpdateLocked(job.WorkerID)
	e.reputationUpdateLocked(job.WorkerID, rep)
	e.addEvidenceLocked(job.ID, "settlement", "job completed, payment settled", map[string]interface{}{"paid": job.LockedBudget})
	e.persistJobLocked(ctx, job)
	e.broadcastLocked("job_completed", map[string]interface{}{"jobId": job.ID, "paid": job.LockedBudget})

	if e.audit != nil {
		e.audit.MirrorSettlement(ctx, job.ID, "completed", *job)
	}
	return nil
}

// settleFailureLocked implements spec.md §4.4 "Settlement-failure". Caller
// must hold mu.
func (e *Exchange) settleFailureLocked(ctx context.Context, job *core.Job, reason string) error {
	refund := job.LockedBudget - job.PaidUpfront
	if refund < 0 {
		refund = 0
	}
	if err := e.ledg.ReleaseLock(job.RequesterID, refund); err != nil {
		return err
	}

	if job.LockedStake > 0 {
		slash := computeSlash(job.LockedStake, e.cfg.WorkerSlashPct)
		if err := e.ledg.Slash(job.WorkerID, job.RequesterID, job.LockedStake, slash); err != nil {
			return err
		}
	}

	rep := e.rep.RecordFailure(job.WorkerID)
	job.Status = core.JobFailed

	e.ledgerUpdateLocked(job.RequesterID)
	e.ledgerUpdateLocked(job.WorkerID)
	e.reputationUpdateLocked(job.WorkerID, rep)
	e.addEvidenceLocked(job.ID, "settlement", "job failed: "+reason, map[string]interface{}{"reason": reason})
	e.persistJobLocked(ctx, job)
	e.broadcastLocked("job_failed", map[string]interface{}{"jobId": job.ID, "reason": reason})

	if e.audit != nil {
		e.audit.MirrorSettlement(ctx, job.ID, "failed", *job)
	}
	return nil
}

// reopenLocked implements spec.md §4.6 systemReopenJob. Caller must hold mu.
func (e *Exchange) reopenLocked(ctx context.Context, job *core.Job) {
	e.sched.Disarm(job.ID)

	// Outstanding locked remainder: the original lock minus whatever upfront
	// portion already left requester.locked at award time (upfront is never
	// reclaimed on reopen). settleFailureLocked already released this same
	// remainder when it ran immediately before us (job.Status is JobFailed in
	// that case), so only release here when reopenLocked is reached without a
	// prior settlement — e.g. SystemReopenJob forcing an awarded job back open.
	if job.Status != core.JobFailed {
		remainder := job.LockedBudget - job.PaidUpfront
		if remainder < 0 {
			remainder = 0
		}
		if remainder > 0 {
			if err := e.ledg.ReleaseLock(job.RequesterID, remainder); err != nil {
				e.logger.Printf("⚠️ reopen refund failed for job %s: %v", job.ID, err)
			} else {
				e.ledgerUpdateLocked(job.RequesterID)
			}
		}
	}

	job.WorkerID = ""
	job.LockedBudget = 0
	job.LockedStake = 0
	job.PaidUpfront = 0
	job.AwardedAtMs = 0
	job.Payload.Negotiation = nil
	job.Status = core.JobOpen

	e.persistJobLocked(ctx, job)
	e.broadcastLocked("job_updated", map[string]interface{}{"job": *job})
	if e.store != nil {
		if err := e.store.AppendEvent(ctx, "job_reopened", map[string]interface{}{"jobId": job.ID}); err != nil {
			e.logger.Printf("⚠️ db_error_reopen: %v", err)
		}
	}
}
