// Package ledgertape is the append-only evidence vault and the tape event
// bus (spec.md §4.7). The evidence hash-chaining is a repurposing of the
// teacher's internal/ledger/merkle.go leaf-hashing idea (there: a Merkle
// root per tenant over free-form log lines; here: a running blake2b chain
// over ordered evidence items, so an external auditor can detect removal or
// reordering). The subscribe/publish mechanics are grounded on
// internal/events/bus.go's channel-based pub/sub, trimmed of the CloudEvents
// envelope since nothing downstream in this spec consumes CNCF events.
package ledgertape

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

const evidenceRingCap = 500

// TapeKind enumerates the tape variants of spec.md §6.
type TapeKind string

const (
	TapeAgentAuthed TapeKind = "agent_authed"
	TapeLedgerUpdate TapeKind = "ledger_update"
	TapeRepUpdate    TapeKind = "rep_update"
	TapeEvidence     TapeKind = "evidence"
	TapeBroadcast    TapeKind = "broadcast"
)

// TapeEvent is one entry in the ordered stream observed by spectators.
type TapeEvent struct {
	Kind    TapeKind    `json:"kind"`
	Payload interface{} `json:"payload"`
}

// Vault is the evidence ring (capped at 500 in memory, unbounded once
// mirrored durably by the caller) plus the hash chain over every append.
type Vault struct {
	mu        sync.Mutex
	items     []core.EvidenceItem // most-recent-first
	prevHash  string
	nowMs     func() int64
	appended  int64 // cumulative count, survives ring eviction
}

// NewVault creates an empty evidence vault. nowMs supplies the current time
// in epoch milliseconds (injected for testability).
func NewVault(nowMs func() int64) *Vault {
	return &Vault{nowMs: nowMs}
}

// Append adds a new evidence item, computes its chain hash, and trims the
// in-memory ring to the most recent 500 items. The returned item (with
// ID/AtMs/ChainHash populated) is what callers should mirror to durable
// storage, where it is kept unbounded.
func (v *Vault) Append(jobID, kind, detail string, payload map[string]interface{}) core.EvidenceItem {
	v.mu.Lock()
	defer v.mu.Unlock()

	item := core.EvidenceItem{
		ID:      uuid.NewString(),
		AtMs:    v.nowMs(),
		JobID:   jobID,
		Kind:    kind,
		Detail:  detail,
		Payload: payload,
	}
	item.ChainHash = v.chainHash(item)
	v.prevHash = item.ChainHash

	v.items = append([]core.EvidenceItem{item}, v.items...)
	if len(v.items) > evidenceRingCap {
		v.items = v.items[:evidenceRingCap]
	}
	v.appended++
	return item
}

// AppendedTotal returns the cumulative number of items ever appended,
// unaffected by ring eviction (internal/metrics exposes this as a counter).
func (v *Vault) AppendedTotal() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.appended
}

// RingSize returns the current number of items held in memory (<=
// evidenceRingCap).
func (v *Vault) RingSize() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.items)
}

// chainHash computes blake2b-256(prevHash || jobId || kind || detail ||
// payloadJSON); falls back to a plain sha256 hash of the same material if
// the 256-bit blake2b constructor ever fails (it cannot with a nil key, but
// a hard failure here must not panic the exchange).
func (v *Vault) chainHash(item core.EvidenceItem) string {
	payloadJSON, _ := json.Marshal(item.Payload)

	h, err := blake2b.New256(nil)
	if err != nil {
		sum := sha256.Sum256([]byte(v.prevHash + item.JobID + item.Kind + item.Detail + string(payloadJSON)))
		return hex.EncodeToString(sum[:])
	}
	h.Write([]byte(v.prevHash))
	h.Write([]byte(item.JobID))
	h.Write([]byte(item.Kind))
	h.Write([]byte(item.Detail))
	h.Write(payloadJSON)
	return hex.EncodeToString(h.Sum(nil))
}

// Recent returns up to limit evidence items for jobID, most-recent-first.
// limit <= 0 means unbounded.
func (v *Vault) Recent(jobID string, limit int) []core.EvidenceItem {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]core.EvidenceItem, 0, len(v.items))
	for _, item := range v.items {
		if item.JobID == jobID {
			out = append(out, item)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// All returns the full in-memory ring, most-recent-first.
func (v *Vault) All() []core.EvidenceItem {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]core.EvidenceItem, len(v.items))
	copy(out, v.items)
	return out
}

// Bus is a typed, channel-based pub/sub for tape events. Subscribers receive
// every published event in order; a full subscriber channel drops the event
// rather than blocking the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan TapeEvent]struct{}
	bufferSize  int
}

// NewBus creates an empty tape bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[chan TapeEvent]struct{}),
		bufferSize:  256,
	}
}

// Subscribe returns a channel that receives every future tape event.
func (b *Bus) Subscribe() chan TapeEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan TapeEvent, b.bufferSize)
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Bus) Unsubscribe(ch chan TapeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Publish fans out event to every current subscriber.
func (b *Bus) Publish(event TapeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber too slow; drop rather than block the exchange.
		}
	}
}

// EmitAgentAuthed publishes an agent_authed tape event.
func (b *Bus) EmitAgentAuthed(agentID string) {
	b.Publish(TapeEvent{Kind: TapeAgentAuthed, Payload: map[string]interface{}{"agentId": agentID}})
}

// EmitLedgerUpdate publishes a ledger_update tape event.
func (b *Bus) EmitLedgerUpdate(agentID string, acct core.Account) {
	b.Publish(TapeEvent{Kind: TapeLedgerUpdate, Payload: map[string]interface{}{
		"agentId": agentID,
		"credits": acct.Credits,
		"locked":  acct.Locked,
	}})
}

// EmitRepUpdate publishes a rep_update tape event.
func (b *Bus) EmitRepUpdate(agentID string, rep core.Reputation) {
	b.Publish(TapeEvent{Kind: TapeRepUpdate, Payload: map[string]interface{}{
		"agentId":   agentID,
		"completed": rep.Completed,
		"failed":    rep.Failed,
		"score":     rep.Score(),
	}})
}

// EmitEvidence publishes an evidence tape event.
func (b *Bus) EmitEvidence(item core.EvidenceItem) {
	b.Publish(TapeEvent{Kind: TapeEvidence, Payload: item})
}

// EmitBroadcast publishes a broadcast tape event; its payload mirrors the
// client wire type exactly, per spec.md §6.
func (b *Bus) EmitBroadcast(wireType string, payload interface{}) {
	b.Publish(TapeEvent{Kind: TapeBroadcast, Payload: map[string]interface{}{
		"type": wireType,
		"data": payload,
	}})
}
