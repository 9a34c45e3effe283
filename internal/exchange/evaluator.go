package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

// ReferenceEvaluator is the reference Evaluator (spec.md §9 Open Question):
// pure, deterministic, and time-bounded. It never executes submitted code —
// it checks the submission against the job's requiredKeyword payload field
// within a fixed wall-clock budget, and reports advisory evidence only.
type ReferenceEvaluator struct {
	Budget time.Duration
}

// NewReferenceEvaluator constructs an evaluator with a default 2s budget.
func NewReferenceEvaluator() *ReferenceEvaluator {
	return &ReferenceEvaluator{Budget: 2 * time.Second}
}

// Evaluate implements Evaluator.
func (r *ReferenceEvaluator) Evaluate(ctx context.Context, job core.Job, result string) core.AutoVerifyResult {
	deadline := time.Now().Add(r.Budget)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	done := make(chan core.AutoVerifyResult, 1)
	go func() {
		done <- r.check(job, result)
	}()

	select {
	case verdict := <-done:
		return verdict
	case <-ctx.Done():
		return core.AutoVerifyResult{OK: false, Reason: "evaluator_timeout"}
	}
}

func (r *ReferenceEvaluator) check(job core.Job, result string) core.AutoVerifyResult {
	keyword := strings.TrimSpace(job.Payload.RequiredKeyword)
	if keyword == "" {
		return core.AutoVerifyResult{OK: true}
	}
	if strings.Contains(result, keyword) {
		return core.AutoVerifyResult{OK: true}
	}
	return core.AutoVerifyResult{OK: false, Reason: "missing_required_keyword"}
}
