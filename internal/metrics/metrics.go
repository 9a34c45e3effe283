// Package metrics exposes the exchange's live state as Prometheus metrics
// (SPEC_FULL.md ambient-stack section), grounded on the teacher's
// internal/escrow/metrics.go: a Metrics struct built once in a constructor,
// fields are prometheus.GaugeFunc/prometheus.CounterFunc collectors
// registered via promauto so New() panics on duplicate registration exactly
// like the teacher's rather than silently re-registering.
//
// Unlike the teacher, most of what this package reports is a point-in-time
// snapshot derived from the exchange's own maps (open jobs, locked credits,
// armed timers) rather than something incremented at the call site, so
// gauges here are backed by promauto.NewGaugeFunc/NewCounterFunc closures
// supplied by the caller instead of Set() calls sprinkled through
// internal/exchange. This keeps internal/metrics a leaf package with no
// dependency on internal/exchange or internal/wire.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GaugeSources supplies the current-value readers backing every gauge.
// All fields are required; New does not check them, and a nil field panics
// when that gauge is scraped.
type GaugeSources struct {
	OpenJobs         func() float64
	LockedCredits    func() float64
	LockedStake      func() float64
	ArmedTimers      func() float64
	EvidenceRingSize func() float64
	ActiveSessions   func() float64
}

// CounterSources supplies the cumulative-value readers backing every
// counter. Values must be non-decreasing for the life of the process.
type CounterSources struct {
	JobsPosted       func() float64
	BidsPlaced       func() float64
	EvidenceAppended func() float64
}

// Metrics holds every Prometheus collector the exchange reports.
type Metrics struct {
	OpenJobs         prometheus.GaugeFunc
	LockedCredits    prometheus.GaugeFunc
	LockedStake      prometheus.GaugeFunc
	ArmedTimers      prometheus.GaugeFunc
	EvidenceRingSize prometheus.GaugeFunc
	ActiveSessions   prometheus.GaugeFunc

	JobsPosted       prometheus.CounterFunc
	BidsPlaced       prometheus.CounterFunc
	EvidenceAppended prometheus.CounterFunc

	JobsByStatus *JobStatusCollector
}

// New builds and registers every metric with the default registry. gs and
// cs must be fully populated; jobsByStatus may be nil to omit the
// settlement-outcome breakdown (e.g. in tests that don't wire an exchange).
func New(gs GaugeSources, cs CounterSources, jobsByStatus func() map[string]int) *Metrics {
	m := &Metrics{
		OpenJobs: promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "synapse_open_jobs",
			Help: "Number of jobs currently in the open status.",
		}, gs.OpenJobs),

		LockedCredits: promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "synapse_locked_credits_total",
			Help: "Sum of escrowed (unpaid) budget across all awarded/in-review jobs.",
		}, gs.LockedCredits),

		LockedStake: promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "synapse_locked_stake_total",
			Help: "Sum of worker stake currently held across all awarded/in-review jobs.",
		}, gs.LockedStake),

		ArmedTimers: promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "synapse_armed_timers",
			Help: "Number of deadline timers currently armed in the scheduler.",
		}, gs.ArmedTimers),

		EvidenceRingSize: promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "synapse_evidence_ring_size",
			Help: "Number of evidence items currently held in the in-memory ring.",
		}, gs.EvidenceRingSize),

		ActiveSessions: promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "synapse_active_sessions",
			Help: "Number of authenticated websocket sessions currently registered.",
		}, gs.ActiveSessions),

		JobsPosted: promauto.NewCounterFunc(prometheus.CounterOpts{
			Name: "synapse_jobs_posted_total",
			Help: "Cumulative number of jobs ever posted.",
		}, cs.JobsPosted),

		BidsPlaced: promauto.NewCounterFunc(prometheus.CounterOpts{
			Name: "synapse_bids_placed_total",
			Help: "Cumulative number of bids ever placed.",
		}, cs.BidsPlaced),

		EvidenceAppended: promauto.NewCounterFunc(prometheus.CounterOpts{
			Name: "synapse_evidence_appended_total",
			Help: "Cumulative number of evidence items ever appended, including ones since evicted from the ring.",
		}, cs.EvidenceAppended),
	}

	if jobsByStatus != nil {
		m.JobsByStatus = newJobStatusCollector(jobsByStatus)
		prometheus.MustRegister(m.JobsByStatus)
	}

	return m
}

// JobStatusCollector reports the current job count per lifecycle status as
// a labeled gauge (synapse_jobs_by_status{status="..."}). It is a custom
// prometheus.Collector rather than a GaugeVec because the set of labels to
// report is only known at scrape time (derived from whatever statuses are
// actually present), and GaugeVec has no "recompute on scrape" hook.
type JobStatusCollector struct {
	desc   *prometheus.Desc
	lookup func() map[string]int
}

func newJobStatusCollector(lookup func() map[string]int) *JobStatusCollector {
	return &JobStatusCollector{
		desc: prometheus.NewDesc(
			"synapse_jobs_by_status",
			"Number of jobs currently in each lifecycle status.",
			[]string{"status"},
			nil,
		),
		lookup: lookup,
	}
}

func (c *JobStatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *JobStatusCollector) Collect(ch chan<- prometheus.Metric) {
	for status, count := range c.lookup() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(count), status)
	}
}
