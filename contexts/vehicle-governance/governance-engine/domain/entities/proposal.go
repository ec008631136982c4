package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProposalKind string

const (
	KindOwnershipChange        ProposalKind = "ownership_change"
	KindMaintenanceExpenditure ProposalKind = "maintenance_expenditure"
)

type ProposalStatus string

const (
	StatusPending  ProposalStatus = "pending"
	StatusApproved ProposalStatus = "approved"
	// StatusApprovedUnfulfilled marks a proposal whose vote passed but whose
	// effect could not be executed (insufficient funds). Kept distinct from
	// rejected so the audit trail never conflates vote outcome with execution
	// outcome.
	StatusApprovedUnfulfilled ProposalStatus = "approved_unfulfilled"
	StatusRejected            ProposalStatus = "rejected"
	StatusCancelled           ProposalStatus = "cancelled"
	StatusExpired             ProposalStatus = "expired"
)

// IsTerminal reports whether the status is a sink state. Terminal proposals
// accept no further votes and are never finalized again.
func (s ProposalStatus) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusApprovedUnfulfilled, StatusRejected, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// OwnershipSplit is one co-owner's share of the vehicle, as a percentage with
// two decimal places.
type OwnershipSplit struct {
	OwnerID string
	Percent decimal.Decimal
}

// Payload is the kind-specific body of a proposal. Exactly one of the
// kind-specific parts is populated; the payload is immutable after creation.
type Payload struct {
	Kind      ProposalKind
	Splits    []OwnershipSplit
	Amount    decimal.Decimal
	Reference string
	Reason    string
}

type Proposal struct {
	ProposalID string
	AssetID    string
	Kind       ProposalKind
	ProposerID string
	Payload    Payload
	Status     ProposalStatus
	// SnapshotVersion is the ownership-table version observed at creation.
	// Effect application re-checks it so a proposal raced by another applied
	// ownership change is forced to rejected instead of applied.
	SnapshotVersion int64
	OutcomeReason   string
	CreatedAt       time.Time
	Deadline        time.Time
	FinalizedAt     *time.Time
}

// EligibleVoter is a creation-time snapshot of one co-owner permitted to vote,
// weighted by ownership percentage. Weights of a proposal's voters sum to
// exactly 100.00.
type EligibleVoter struct {
	ProposalID string
	VoterID    string
	Weight     decimal.Decimal
}

type VoteDecision string

const (
	DecisionApprove VoteDecision = "approve"
	DecisionReject  VoteDecision = "reject"
)

type Vote struct {
	ProposalID string
	VoterID    string
	Decision   VoteDecision
	Comment    string
	CastAt     time.Time
}

// HistoryRecord is an immutable audit entry written when finalization applies
// an effect, or records why an approved effect could not execute.
type HistoryRecord struct {
	RecordID   string
	AssetID    string
	ProposalID string
	ChangeType string
	Before     []byte
	After      []byte
	AppliedAt  time.Time
	AppliedBy  string
}

const (
	ChangeTypeOwnershipReplaced      = "ownership_replaced"
	ChangeTypeFundDebited            = "fund_debited"
	ChangeTypeExpenditureUnfulfilled = "expenditure_unfulfilled"
)
