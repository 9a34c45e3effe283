package exchange

import (
	"context"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

// onDeadline is the scheduler's fire callback (spec.md §4.6). The scheduler
// already re-checked that the timer was still armed before invoking this;
// we still re-verify job status here, since a submission or review can
// complete in the window between the timer elapsing and this callback
// acquiring mu (spec.md §5 guarantee 5).
func (e *Exchange) onDeadline(jobID string) {
	ctx := context.Background()

	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok || job.Status != core.JobAwarded {
		return
	}

	if err := e.settleFailureLocked(ctx, job, "timeout"); err != nil {
		e.logger.Printf("⚠️ timeout settlement failed for job %s: %v", jobID, err)
		return
	}
	e.reopenLocked(ctx, job)
}
