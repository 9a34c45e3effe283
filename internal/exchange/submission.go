package exchange

import (
	"context"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

const submissionPreviewLen = 120

// Submit implements spec.md §4.3 "Submission".
func (e *Exchange) Submit(ctx context.Context, workerID, jobID, result string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return core.ErrJobNotFound
	}
	if job.Status != core.JobAwarded {
		return core.ErrJobNotAwarded
	}
	if job.WorkerID != workerID {
		return core.ErrNotAssignedWorker
	}

	e.sched.Disarm(jobID)
	job.Status = core.JobInReview
	job.Payload.LastSubmission = &core.Submission{AtMs: nowMs(), By: workerID, Result: result}

	e.addEvidenceLocked(jobID, "submit", "worker submitted result", map[string]interface{}{"workerId": workerID})
	e.persistJobLocked(ctx, job)
	e.broadcastLocked("job_submitted", map[string]interface{}{"jobId": jobID, "workerId": workerID, "bytes": len(result), "preview": preview(result, submissionPreviewLen)})

	if job.Kind == "coding" && e.eval != nil {
		verdict := e.eval.Evaluate(ctx, *job, result)
		job.Payload.AutoVerify = &verdict
		payload := map[string]interface{}{"ok": verdict.OK}
		if verdict.Reason != "" {
			payload["reason"] = verdict.Reason
		}
		e.addEvidenceLocked(jobID, "auto_verify", "automated evaluator verdict", payload)
		e.persistJobLocked(ctx, job)
	}
	return nil
}

// Review implements spec.md §4.3 "Review".
func (e *Exchange) Review(ctx context.Context, requesterID, jobID, decision, notes string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return core.ErrJobNotFound
	}
	if job.RequesterID != requesterID {
		return core.ErrNotJobOwner
	}
	if job.Status != core.JobInReview {
		return core.ErrJobNotInReview
	}

	payload := map[string]interface{}{"decision": decision}
	if notes != "" {
		payload["notes"] = notes
	}
	e.addEvidenceLocked(jobID, "review", "requester reviewed submission", payload)
	e.broadcastLocked("job_reviewed", map[string]interface{}{"jobId": jobID, "decision": decision})

	switch decision {
	case "accept":
		return e.settleSuccessLocked(ctx, job)
	case "reject":
		if err := e.settleFailureLocked(ctx, job, "rejected"); err != nil {
			return err
		}
		e.reopenLocked(ctx, job)
		return nil
	case "changes":
		job.Status = core.JobAwarded
		e.addEvidenceLocked(jobID, "changes", "requester requested changes", nil)
		deadline := defaultDeadline(job.Payload.TimeoutSeconds, e.cfg.DefaultDeadlineSeconds)
		e.sched.Arm(jobID, deadline)
		e.persistJobLocked(ctx, job)
		e.broadcastLocked("job_updated", map[string]interface{}{"job": *job})
		return nil
	default:
		return core.ErrInvalidMessage
	}
}

func preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
