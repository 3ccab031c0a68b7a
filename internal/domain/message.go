package domain

import (
	"time"
)

// Message kinds carried between contexts. Forwarded operations use
// MsgForwardOp with the operation codec; the rest are canvas negotiation and
// notification payloads.
const (
	MsgForwardOp      = "op.forward"
	MsgOutcome        = "op.outcome"
	MsgClaim          = "canvas.claim"
	MsgClaimConfirmed = "canvas.claim_confirmed"
	MsgModified       = "canvas.modified"
	MsgBatchModified  = "canvas.batch_modified"
)

// ForwardedOp wraps an operation submitted on a peer context on its way to
// the authority.
type ForwardedOp struct {
	OpKind string `json:"op_kind"`
	Params []byte `json:"params"`
}

// Outcome reports the authority-side result of a forwarded operation back to
// its origin, correlated by the originating envelope id.
type Outcome struct {
	RequestID string    `json:"request_id"`
	OpKind    string    `json:"op_kind"`
	OK        bool      `json:"ok"`
	Reason    string    `json:"reason,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Claim requests exclusive ownership of one canvas cell. Handled only by the
// authority context.
type Claim struct {
	X           int       `json:"x"`
	Y           int       `json:"y"`
	RequestedBy ContextID `json:"requested_by"`
	At          time.Time `json:"at"`
}

// ClaimConfirmed acknowledges a granted (or idempotently re-confirmed)
// ownership claim.
type ClaimConfirmed struct {
	X     int       `json:"x"`
	Y     int       `json:"y"`
	Owner ContextID `json:"owner"`
	At    time.Time `json:"at"`
}

// Modified tells a cell's previous owner (or an unsuccessful claimant) the
// cell's current color and owner.
type Modified struct {
	X          int       `json:"x"`
	Y          int       `json:"y"`
	NewColor   *Color    `json:"new_color,omitempty"`
	ModifiedBy ContextID `json:"modified_by"`
	At         time.Time `json:"at"`
}

// BatchModified groups modifications displacing one prior owner.
type BatchModified struct {
	Pixels     []PixelModification `json:"pixels"`
	ModifiedBy ContextID           `json:"modified_by"`
	At         time.Time           `json:"at"`
}
