// Package store is the Persistence Port (spec.md §4.9): an idempotent
// write-through of every entity plus a snapshot query, backed by Postgres.
// Grounded on internal/reputation/wallet.go's database/sql usage (there:
// sql.Open("sqlite", ...); here: sql.Open("postgres", ...) via the
// blank-imported github.com/lib/pq driver, matching DATABASE_URL naming
// used throughout the teacher's config).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

// Store is a Postgres-backed Persister (internal/exchange.Persister).
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open connects to databaseURL and creates the schema idempotently.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: pinging postgres: %w", err)
	}

	s := &Store{db: db, logger: log.New(log.Writer(), "[STORE] ", log.LstdFlags)}
	if err := s.createSchema(ctx); err != nil {
		return nil, fmt.Errorf("store: creating schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			agent_name TEXT,
			credits BIGINT NOT NULL DEFAULT 0,
			locked BIGINT NOT NULL DEFAULT 0,
			completed BIGINT NOT NULL DEFAULT 0,
			failed BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			budget BIGINT NOT NULL,
			requester_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			worker_id TEXT,
			kind TEXT NOT NULL,
			payload JSONB,
			locked_budget BIGINT NOT NULL DEFAULT 0,
			locked_stake BIGINT NOT NULL DEFAULT 0,
			paid_upfront BIGINT NOT NULL DEFAULT 0,
			awarded_at_ms BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS jobs_created_at_idx ON jobs (created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs (status)`,
		`CREATE TABLE IF NOT EXISTS bids (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			bidder_id TEXT NOT NULL,
			price BIGINT NOT NULL,
			eta_seconds BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			pitch TEXT,
			terms JSONB,
			reputation JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS bids_job_id_idx ON bids (job_id)`,
		`CREATE INDEX IF NOT EXISTS bids_created_at_idx ON bids (created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS job_evidence (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			at_ms BIGINT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT,
			payload JSONB,
			chain_hash TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS job_evidence_job_id_idx ON job_evidence (job_id)`,
		`CREATE INDEX IF NOT EXISTS job_evidence_created_at_idx ON job_evidence (created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			kind TEXT NOT NULL,
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS github_issue_jobs (
			owner TEXT NOT NULL,
			repo TEXT NOT NULL,
			issue_number INT NOT NULL,
			job_id TEXT NOT NULL,
			PRIMARY KEY (owner, repo, issue_number)
		)`,
		`CREATE TABLE IF NOT EXISTS github_pr_jobs (
			owner TEXT NOT NULL,
			repo TEXT NOT NULL,
			pr_number INT NOT NULL,
			job_id TEXT NOT NULL,
			PRIMARY KEY (owner, repo, pr_number)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertAgent writes agents idempotently (insert-or-update on agent_id).
func (s *Store) UpsertAgent(ctx context.Context, view core.AgentView) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (agent_id, agent_name, credits, locked, completed, failed)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (agent_id) DO UPDATE SET
			agent_name = EXCLUDED.agent_name,
			credits = EXCLUDED.credits,
			locked = EXCLUDED.locked,
			completed = EXCLUDED.completed,
			failed = EXCLUDED.failed
	`, view.AgentID, view.AgentName, view.Account.Credits, view.Account.Locked, view.Reputation.Completed, view.Reputation.Failed)
	return err
}

// UpsertJob writes a job idempotently.
func (s *Store) UpsertJob(ctx context.Context, job core.Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("store: marshaling job payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, title, description, budget, requester_id, created_at, status, worker_id, kind, payload, locked_budget, locked_stake, paid_upfront, awarded_at_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			worker_id = EXCLUDED.worker_id,
			payload = EXCLUDED.payload,
			locked_budget = EXCLUDED.locked_budget,
			locked_stake = EXCLUDED.locked_stake,
			paid_upfront = EXCLUDED.paid_upfront,
			awarded_at_ms = EXCLUDED.awarded_at_ms
	`, job.ID, job.Title, job.Description, job.Budget, job.RequesterID, job.CreatedAt, job.Status, nullableString(job.WorkerID), job.Kind, payload, job.LockedBudget, job.LockedStake, job.PaidUpfront, job.AwardedAtMs)
	return err
}

// UpsertBid writes a bid; bids are immutable once placed so conflict is a
// no-op (spec.md §4.9 "inserts use do-nothing on conflict").
func (s *Store) UpsertBid(ctx context.Context, bid core.Bid) error {
	terms, err := json.Marshal(bid.Terms)
	if err != nil {
		return fmt.Errorf("store: marshaling bid terms: %w", err)
	}
	rep, err := json.Marshal(bid.Reputation)
	if err != nil {
		return fmt.Errorf("store: marshaling bid reputation: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bids (id, job_id, bidder_id, price, eta_seconds, created_at, pitch, terms, reputation)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO NOTHING
	`, bid.ID, bid.JobID, bid.BidderID, bid.Price, bid.EtaSeconds, bid.CreatedAt, bid.Pitch, terms, rep)
	return err
}

// AppendEvidence writes one evidence item; evidence is append-only so
// conflict is a no-op.
func (s *Store) AppendEvidence(ctx context.Context, item core.EvidenceItem) error {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("store: marshaling evidence payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_evidence (id, job_id, at_ms, kind, detail, payload, chain_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO NOTHING
	`, item.ID, item.JobID, item.AtMs, item.Kind, item.Detail, payload, item.ChainHash)
	return err
}

// AppendEvent writes one tape/broadcast mirror to the durable event log.
func (s *Store) AppendEvent(ctx context.Context, kind string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("store: marshaling event payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO events (kind, payload) VALUES ($1, $2)`, kind, data)
	return err
}

// LinkGithubIssue / LinkGithubPr persist the bidirectional GitHub mapping.
func (s *Store) LinkGithubIssue(ctx context.Context, owner, repo string, issue int, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO github_issue_jobs (owner, repo, issue_number, job_id)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (owner, repo, issue_number) DO UPDATE SET job_id = EXCLUDED.job_id
	`, owner, repo, issue, jobID)
	return err
}

func (s *Store) LinkGithubPr(ctx context.Context, owner, repo string, pr int, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO github_pr_jobs (owner, repo, pr_number, job_id)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (owner, repo, pr_number) DO UPDATE SET job_id = EXCLUDED.job_id
	`, owner, repo, pr, jobID)
	return err
}

// Snapshot reads the full entity projection directly from Postgres
// (spec.md §4.9 "snapshot queries read directly from the store when
// enabled").
func (s *Store) Snapshot(ctx context.Context) (core.Snapshot, error) {
	snap := core.Snapshot{Agents: make(map[string]core.AgentView)}

	agentRows, err := s.db.QueryContext(ctx, `SELECT agent_id, agent_name, credits, locked, completed, failed FROM agents`)
	if err != nil {
		return snap, err
	}
	defer agentRows.Close()
	for agentRows.Next() {
		var v core.AgentView
		if err := agentRows.Scan(&v.AgentID, &v.AgentName, &v.Account.Credits, &v.Account.Locked, &v.Reputation.Completed, &v.Reputation.Failed); err != nil {
			return snap, err
		}
		snap.Agents[v.AgentID] = v
	}

	jobRows, err := s.db.QueryContext(ctx, `SELECT id, title, description, budget, requester_id, created_at, status, worker_id, kind, payload, locked_budget, locked_stake, paid_upfront, awarded_at_ms FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return snap, err
	}
	defer jobRows.Close()
	for jobRows.Next() {
		var j core.Job
		var workerID sql.NullString
		var payload []byte
		if err := jobRows.Scan(&j.ID, &j.Title, &j.Description, &j.Budget, &j.RequesterID, &j.CreatedAt, &j.Status, &workerID, &j.Kind, &payload, &j.LockedBudget, &j.LockedStake, &j.PaidUpfront, &j.AwardedAtMs); err != nil {
			return snap, err
		}
		j.WorkerID = workerID.String
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &j.Payload); err != nil {
				s.logger.Printf("⚠️ failed to decode job payload for %s: %v", j.ID, err)
			}
		}
		snap.Jobs = append(snap.Jobs, j)
	}

	bidRows, err := s.db.QueryContext(ctx, `SELECT id, job_id, bidder_id, price, eta_seconds, created_at, pitch, terms, reputation FROM bids ORDER BY created_at DESC`)
	if err != nil {
		return snap, err
	}
	defer bidRows.Close()
	for bidRows.Next() {
		var b core.Bid
		var terms, rep []byte
		if err := bidRows.Scan(&b.ID, &b.JobID, &b.BidderID, &b.Price, &b.EtaSeconds, &b.CreatedAt, &b.Pitch, &terms, &rep); err != nil {
			return snap, err
		}
		if len(terms) > 0 {
			_ = json.Unmarshal(terms, &b.Terms)
		}
		_ = json.Unmarshal(rep, &b.Reputation)
		snap.Bids = append(snap.Bids, b)
	}

	evRows, err := s.db.QueryContext(ctx, `SELECT id, job_id, at_ms, kind, detail, payload, chain_hash FROM job_evidence ORDER BY created_at DESC`)
	if err != nil {
		return snap, err
	}
	defer evRows.Close()
	for evRows.Next() {
		var item core.EvidenceItem
		var payload []byte
		if err := evRows.Scan(&item.ID, &item.JobID, &item.AtMs, &item.Kind, &item.Detail, &payload, &item.ChainHash); err != nil {
			return snap, err
		}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &item.Payload)
		}
		snap.Evidence = append(snap.Evidence, item)
	}

	return snap, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
