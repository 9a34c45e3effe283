// System Control API (spec.md §4.8): in-process entry points for
// collaborators (GitHub ingress, demo endpoints) that bypass session auth
// but preserve every invariant and event the client wire paths do.
package exchange

import (
	"context"
	"fmt"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

// SystemCreateJob is systemCreateJob — same rules as PostJob but with no
// session attached.
func (e *Exchange) SystemCreateJob(ctx context.Context, requesterID, title, description string, budget int64, kind string, payload map[string]interface{}) (core.Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.postJobLocked(ctx, requesterID, title, description, budget, kind, payload)
}

// SystemAwardJob is systemAwardJob — direct award, no negotiation.
func (e *Exchange) SystemAwardJob(ctx context.Context, jobID, workerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return core.ErrJobNotFound
	}
	if job.Status != core.JobOpen {
		return core.ErrJobNotOpen
	}
	if !e.workerHasBidLocked(jobID, workerID) {
		return core.ErrWorkerHasNoBid
	}
	return e.awardLocked(ctx, job, workerID, job.Budget, nil)
}

// SystemCompleteJob is systemCompleteJob — Settlement-success from awarded
// or in_review.
func (e *Exchange) SystemCompleteJob(ctx context.Context, jobID, workerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return core.ErrJobNotFound
	}
	if job.Status != core.JobAwarded && job.Status != core.JobInReview {
		return core.ErrJobNotAwarded
	}
	if job.WorkerID != workerID {
		return core.ErrNotAssignedWorker
	}
	return e.settleSuccessLocked(ctx, job)
}

// SystemFailJob is systemFailJob — Settlement-failure from awarded or
// in_review.
func (e *Exchange) SystemFailJob(ctx context.Context, jobID, workerID, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return core.ErrJobNotFound
	}
	if job.Status != core.JobAwarded && job.Status != core.JobInReview {
		return core.ErrJobNotAwarded
	}
	if job.WorkerID != workerID {
		return core.ErrNotAssignedWorker
	}
	return e.settleFailureLocked(ctx, job, reason)
}

// SystemReopenJob is systemReopenJob (spec.md §4.6), also callable directly
// by an operator/ingress collaborator outside the timeout path. Only an
// awarded or in_review job holds a live lock to unwind; a job already
// terminal (completed/cancelled/failed) or still open has nothing to
// reopen.
func (e *Exchange) SystemReopenJob(ctx context.Context, jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return core.ErrJobNotFound
	}
	if job.Status != core.JobAwarded && job.Status != core.JobInReview {
		return core.ErrJobNotAwarded
	}
	e.reopenLocked(ctx, job)
	return nil
}

// SystemCancelJob is the SPEC_FULL.md-supplemented systemCancelJob:
// permitted only from open, with no refund obligation since nothing is
// locked yet on an unawarded job.
func (e *Exchange) SystemCancelJob(ctx context.Context, jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return core.ErrJobNotFound
	}
	if job.Status != core.JobOpen {
		return core.ErrJobNotOpen
	}
	job.Status = core.JobCancelled
	e.addEvidenceLocked(jobID, "settlement", "job cancelled by operator", nil)
	e.persistJobLocked(ctx, job)
	e.broadcastLocked("job_updated", map[string]interface{}{"job": *job})
	return nil
}

// SystemForceTimeout disarms jobID's deadline timer and immediately runs the
// same failure-settlement + reopen path the scheduler would have run on
// natural expiry. Backs the demo HTTP endpoint (SPEC_FULL.md §6 supplement)
// that lets an operator trigger a timeout without waiting out the real
// deadline.
func (e *Exchange) SystemForceTimeout(ctx context.Context, jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return core.ErrJobNotFound
	}
	if job.Status != core.JobAwarded {
		return core.ErrJobNotAwarded
	}
	e.sched.Disarm(jobID)
	if err := e.settleFailureLocked(ctx, job, "timeout"); err != nil {
		return err
	}
	e.reopenLocked(ctx, job)
	return nil
}

// SystemAddEvidence is systemAddEvidence.
func (e *Exchange) SystemAddEvidence(ctx context.Context, jobID, kind, detail string, payload map[string]interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.jobs[jobID]; !ok {
		return core.ErrJobNotFound
	}
	e.addEvidenceLocked(jobID, kind, detail, payload)
	return nil
}

// SystemListJobs is the SPEC_FULL.md-supplemented read-only filter query
// over the in-memory jobs. Snapshot and the GitHub issue/PR lookups do not
// call it.
func (e *Exchange) SystemListJobs(ctx context.Context, status core.JobStatus, requesterID, workerID string) []core.Job {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]core.Job, 0)
	for _, job := range e.jobs {
		if status != "" && job.Status != status {
			continue
		}
		if requesterID != "" && job.RequesterID != requesterID {
			continue
		}
		if workerID != "" && job.WorkerID != workerID {
			continue
		}
		out = append(out, *job)
	}
	return out
}

// SystemLinkIssue / SystemLinkPr record the bidirectional GitHub mapping.
func (e *Exchange) SystemLinkIssue(ctx context.Context, owner, repo string, issue int, jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return core.ErrJobNotFound
	}
	key := githubIssueKey(owner, repo, issue)
	e.githubIssue[key] = jobID
	if job.Payload.Github == nil {
		job.Payload.Github = &core.GithubLink{}
	}
	job.Payload.Github.Owner = owner
	job.Payload.Github.Repo = repo
	job.Payload.Github.IssueNumber = issue
	e.persistJobLocked(ctx, job)
	if e.store != nil {
		if err := e.store.LinkGithubIssue(ctx, owner, repo, issue, jobID); err != nil {
			e.logger.Printf("⚠️ db_error_github_issue: %v", err)
		}
	}
	return nil
}

func (e *Exchange) SystemLinkPr(ctx context.Context, owner, repo string, pr int, jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return core.ErrJobNotFound
	}
	key := githubPrKey(owner, repo, pr)
	e.githubPR[key] = jobID
	if job.Payload.Github == nil {
		job.Payload.Github = &core.GithubLink{}
	}
	job.Payload.Github.Owner = owner
	job.Payload.Github.Repo = repo
	job.Payload.Github.PRNumber = pr
	e.persistJobLocked(ctx, job)
	if e.store != nil {
		if err := e.store.LinkGithubPr(ctx, owner, repo, pr, jobID); err != nil {
			e.logger.Printf("⚠️ db_error_github_pr: %v", err)
		}
	}
	return nil
}

// SystemGetJobIdByGithubIssue / Pr resolve the mapping recorded above.
func (e *Exchange) SystemGetJobIdByGithubIssue(ctx context.Context, owner, repo string, issue int) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	jobID, ok := e.githubIssue[githubIssueKey(owner, repo, issue)]
	return jobID, ok
}

func (e *Exchange) SystemGetJobIdByGithubPr(ctx context.Context, owner, repo string, pr int) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	jobID, ok := e.githubPR[githubPrKey(owner, repo, pr)]
	return jobID, ok
}

func githubIssueKey(owner, repo string, issue int) string {
	return fmt.Sprintf("%s/%s#%d", owner, repo, issue)
}

func githubPrKey(owner, repo string, pr int) string {
	return fmt.Sprintf("%s/%s#pr%d", owner, repo, pr)
}
