// Package scheduler owns the per-job deadline timers (spec.md §4.6). Timers
// are started and cancelled only through Arm/Disarm (plus Stop on shutdown);
// IsArmed and Count are read-only queries. It is grounded on
// the teacher's internal/reputation/decay_scheduler.go background-goroutine
// shape, narrowed from a periodic sweep to a one-shot timer per job id.
package scheduler

import (
	"log"
	"sync"
	"time"
)

// FireFunc is invoked when a job's deadline elapses without a competing
// transition having disarmed it. It must re-check job state itself (the
// timer can race with a submission, per spec.md §5 guarantee 5) before
// mutating anything.
type FireFunc func(jobID string)

// Scheduler arms and disarms single-shot per-job timers.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	onFire FireFunc
	logger *log.Logger
}

// New creates a scheduler that calls onFire when an armed timer elapses.
func New(onFire FireFunc) *Scheduler {
	return &Scheduler{
		timers: make(map[string]*time.Timer),
		onFire: onFire,
		logger: log.New(log.Writer(), "[SCHEDULER] ", log.LstdFlags),
	}
}

// Arm starts (or restarts) a single-shot timer for jobID. Arming an
// already-armed job disarms the previous timer first, so at most one timer
// per job id is ever live (spec.md §8 "Timer correctness").
func (s *Scheduler) Arm(jobID string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[jobID]; ok {
		existing.Stop()
		delete(s.timers, jobID)
	}

	s.timers[jobID] = time.AfterFunc(d, func() {
		s.fire(jobID)
	})
}

// SetOnFire rebinds the fire callback. Used when the scheduler is
// constructed before its owner (the exchange needs a scheduler reference
// before it can hand back a bound method as the callback).
func (s *Scheduler) SetOnFire(onFire FireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFire = onFire
}

// Disarm cancels jobID's timer, if any. No-op if not armed.
func (s *Scheduler) Disarm(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[jobID]; ok {
		t.Stop()
		delete(s.timers, jobID)
	}
}

// IsArmed reports whether jobID currently has a live timer.
func (s *Scheduler) IsArmed(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.timers[jobID]
	return ok
}

// Count returns the number of currently-armed timers (the armed-timers
// metrics gauge and tests read it).
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) fire(jobID string) {
	s.mu.Lock()
	if _, ok := s.timers[jobID]; !ok {
		// Disarmed between the timer elapsing and this callback running.
		s.mu.Unlock()
		return
	}
	delete(s.timers, jobID)
	s.mu.Unlock()

	s.logger.Printf("⏰ deadline elapsed for job %s", jobID)
	s.onFire(jobID)
}

// Stop cancels every armed timer. Used on graceful shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jobID, t := range s.timers {
		t.Stop()
		delete(s.timers, jobID)
	}
}
