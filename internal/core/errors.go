package core

import "errors"

// Wire error taxonomy (spec.md §6). These are sent verbatim as the
// error{message} string to the offending session; they never carry wrapped
// internal detail onto the wire.
var (
	ErrInvalidMessage             = errors.New("invalid_message")
	ErrUnknownType                = errors.New("unknown_type")
	ErrNotAuthenticated           = errors.New("not_authenticated")
	ErrBadNonce                   = errors.New("bad_nonce")
	ErrBadAgentName               = errors.New("bad_agent_name")
	ErrSignatureVerificationFailed = errors.New("signature_verification_failed")
	ErrDBErrorAuth                = errors.New("db_error_auth")
	ErrNoLedgerAccount            = errors.New("no_ledger_account")
	ErrInsufficientCredits        = errors.New("insufficient_credits")
	ErrWorkerNoLedgerAccount      = errors.New("worker_no_ledger_account")
	ErrWorkerInsufficientStake    = errors.New("worker_insufficient_stake")
	ErrJobNotFound                = errors.New("job_not_found")
	ErrJobNotOpen                 = errors.New("job_not_open")
	ErrJobNotAwarded              = errors.New("job_not_awarded")
	ErrJobNotInReview             = errors.New("job_not_in_review")
	ErrJobMissingWorker           = errors.New("job_missing_worker")
	ErrNotJobOwner                = errors.New("not_job_owner")
	ErrNotAssignedWorker          = errors.New("not_assigned_worker")
	ErrWorkerHasNoBid             = errors.New("worker_has_no_bid")
	ErrBidOverBudget              = errors.New("bid_over_budget")
	ErrAgreedPriceOverBudget      = errors.New("agreed_price_over_budget")
	ErrNegotiationInProgress      = errors.New("negotiation_in_progress")
	ErrNegotiationMaxRounds       = errors.New("negotiation_max_rounds")
	ErrNoActiveOffer              = errors.New("no_active_offer")
	ErrNotOfferTarget             = errors.New("not_offer_target")
	ErrNegotiationNotPending      = errors.New("negotiation_not_pending")
	ErrBadRequester               = errors.New("bad_requester")
	ErrOfferOverBudget            = errors.New("offer_over_budget")
	ErrCounterOverBudget          = errors.New("counter_over_budget")
	ErrLedgerMissing              = errors.New("ledger_missing")
)
