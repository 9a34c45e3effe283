// Package auditsink is the optional secondary settlement mirror
// (SPEC_FULL.md's DOMAIN STACK table): strictly supplementary to
// internal/store, which remains the system of record for snapshot queries.
// Grounded on internal/ledger/client.go's AuditLogger (DI'd over a
// pb.LedgerServiceClient interface so a mock or the real gRPC stub can be
// swapped in, fire-and-forget goroutine dispatch, log-and-continue on
// failure) and pb/mock.go's hand-rolled service-client shape — the teacher
// repo defines its RPC types directly in Go rather than compiling a .proto,
// and this package does the same rather than fabricating a .proto file.
package auditsink

import (
	"context"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

// SettlementEntry is the wire shape mirrored to the audit collector.
type SettlementEntry struct {
	JobID       string
	RequesterID string
	WorkerID    string
	Outcome     string // "completed" | "failed"
	Budget      int64
	LockedStake int64
	Timestamp   *timestamppb.Timestamp
}

// SettlementServiceClient is the gRPC client surface, shaped like
// pb.LedgerServiceClient in the teacher repo (method signature matches a
// generated protoc-gen-go-grpc client so swapping in a real compiled stub
// requires no change here).
type SettlementServiceClient interface {
	RecordSettlement(ctx context.Context, in *SettlementEntry, opts ...grpc.CallOption) (*SettlementEntry, error)
}

// NoopClient accepts every settlement and discards it — the default when no
// audit collector address is configured.
type NoopClient struct{}

func (NoopClient) RecordSettlement(ctx context.Context, in *SettlementEntry, opts ...grpc.CallOption) (*SettlementEntry, error) {
	return in, nil
}

// Sink mirrors settlement events to client, off the exchange's critical
// path. It satisfies internal/exchange.AuditSink.
type Sink struct {
	client SettlementServiceClient
	logger *log.Logger
}

// New builds a Sink over client. Pass NoopClient{} to disable mirroring
// without special-casing nil checks at call sites.
func New(client SettlementServiceClient) *Sink {
	return &Sink{
		client: client,
		logger: log.New(log.Writer(), "[AUDITSINK] ", log.LstdFlags),
	}
}

// MirrorSettlement fires the RPC asynchronously; a failure is logged and
// otherwise has no effect on the exchange, since internal/store already
// holds the durable record.
func (s *Sink) MirrorSettlement(ctx context.Context, jobID, outcome string, job core.Job) {
	go func() {
		entry := &SettlementEntry{
			JobID:       jobID,
			RequesterID: job.RequesterID,
			WorkerID:    job.WorkerID,
			Outcome:     outcome,
			Budget:      job.Budget,
			LockedStake: job.LockedStake,
			Timestamp:   timestamppb.Now(),
		}
		if _, err := s.client.RecordSettlement(context.Background(), entry); err != nil {
			s.logger.Printf("⚠️ audit collector unreachable for job %s: %v", jobID, err)
		}
	}()
}
