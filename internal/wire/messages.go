// Package wire implements the duplex session protocol: message framing,
// the authenticated-session hub, and the observer tape stream. Every frame
// is a UTF-8 JSON object carrying `v` and `type` (spec.md §6); this file
// defines the closed set of inbound/outbound payload shapes.
package wire

import (
	"encoding/json"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

// ProtocolVersion is the only protocol version this exchange understands.
const ProtocolVersion = 1

// Envelope is the outer shape every frame shares. Fields are flat on the
// wire (v, type, plus the message's own fields side by side), so Raw keeps
// the entire frame for a second, type-specific Unmarshal.
type Envelope struct {
	V    int             `json:"v"`
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full frame into Raw while still decoding v/type.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type alias struct {
		V    int    `json:"v"`
		Type string `json:"type"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	e.V = a.V
	e.Type = a.Type
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// --- Inbound client message bodies (spec.md §6) ---

type AuthIn struct {
	AgentName string `json:"agentName"`
	PublicKey string `json:"pub"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

type PostJobIn struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Budget      int64                  `json:"budget"`
	Kind        string                 `json:"kind,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

type BidIn struct {
	JobID      string      `json:"jobId"`
	Price      int64       `json:"price"`
	EtaSeconds int64       `json:"etaSeconds"`
	Pitch      string      `json:"pitch,omitempty"`
	Terms      *core.Terms `json:"terms,omitempty"`
}

type AwardIn struct {
	JobID    string `json:"jobId"`
	WorkerID string `json:"workerId"`
}

type CounterOfferIn struct {
	JobID    string     `json:"jobId"`
	WorkerID string     `json:"workerId"`
	Price    int64      `json:"price"`
	Terms    core.Terms `json:"terms"`
	Notes    string     `json:"notes,omitempty"`
}

type WorkerCounterIn struct {
	JobID string     `json:"jobId"`
	Price int64      `json:"price"`
	Terms core.Terms `json:"terms"`
	Notes string     `json:"notes,omitempty"`
}

type OfferDecisionIn struct {
	JobID    string `json:"jobId"`
	Decision string `json:"decision"` // "accept" | "reject"
}

type SubmitIn struct {
	JobID  string `json:"jobId"`
	Result string `json:"result"`
}

type ReviewIn struct {
	JobID    string `json:"jobId"`
	Decision string `json:"decision"` // accept | reject | changes
	Notes    string `json:"notes,omitempty"`
}

// --- Outbound server message bodies ---

type ChallengeOut struct {
	Nonce string `json:"nonce"`
	AtMs  int64  `json:"atMs"`
}

type AuthedOut struct {
	AgentID string `json:"agentId"`
	Credits int64  `json:"credits"`
}

type ErrorOut struct {
	Message string `json:"message"`
}

type JobPostedOut struct {
	Job core.Job `json:"job"`
}

type JobUpdatedOut struct {
	Job core.Job `json:"job"`
}

type BidPostedOut struct {
	Bid core.Bid `json:"bid"`
}

type JobAwardedOut struct {
	JobID        string `json:"jobId"`
	WorkerID     string `json:"workerId"`
	BudgetLocked int64  `json:"budgetLocked"`
}

type OfferMadeOut struct {
	JobID    string     `json:"jobId"`
	WorkerID string     `json:"workerId"`
	Price    int64      `json:"price"`
	Terms    core.Terms `json:"terms"`
	Round    int        `json:"round"`
}

type CounterMadeOut struct {
	JobID    string                `json:"jobId"`
	WorkerID string                `json:"workerId"`
	FromRole core.NegotiationRole  `json:"fromRole"`
	Price    int64                 `json:"price"`
	Terms    core.Terms            `json:"terms"`
	Round    int                   `json:"round"`
}

type OfferResponseOut struct {
	JobID    string                  `json:"jobId"`
	WorkerID string                  `json:"workerId"`
	Decision core.NegotiationStatus  `json:"decision"`
	Round    int                     `json:"round"`
}

type NegotiationEndedOut struct {
	JobID    string `json:"jobId"`
	WorkerID string `json:"workerId"`
	Reason   string `json:"reason"`
	Round    int    `json:"round"`
}

type JobSubmittedOut struct {
	JobID    string `json:"jobId"`
	WorkerID string `json:"workerId"`
	Bytes    int    `json:"bytes"`
	Preview  string `json:"preview"`
}

type JobReviewedOut struct {
	JobID    string `json:"jobId"`
	Decision string `json:"decision"`
}

type JobCompletedOut struct {
	JobID string `json:"jobId"`
	Paid  int64  `json:"paid"`
}

type JobFailedOut struct {
	JobID  string `json:"jobId"`
	Reason string `json:"reason"`
}

type LedgerUpdateOut struct {
	Credits int64 `json:"credits"`
	Locked  int64 `json:"locked"`
}
