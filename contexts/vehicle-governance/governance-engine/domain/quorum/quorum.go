// Package quorum holds the pure decision arithmetic that converts a proposal's
// eligible-voter snapshot and cast votes into a tally and a decision. All
// weight math runs on two-decimal fixed-point values; floating comparison is
// never used.
package quorum

import (
	"github.com/shopspring/decimal"

	"wheelshare/contexts/vehicle-governance/governance-engine/domain/entities"
)

type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Tally is the weighted breakdown of a proposal's votes. Weights are
// percentages; ApprovalWeight + RejectionWeight + UndecidedWeight equals the
// total eligible weight (100.00 for a well-formed snapshot).
type Tally struct {
	Decision        Decision
	ApprovalWeight  decimal.Decimal
	RejectionWeight decimal.Decimal
	UndecidedWeight decimal.Decimal
	ApproveCount    int
	RejectCount     int
	EligibleCount   int
}

var majorityThreshold = decimal.RequireFromString("50.00")

// Evaluate computes the current tally and decision for a proposal.
//
// Ownership changes require unanimity: every eligible voter must approve, and
// a single reject decides the proposal immediately. Maintenance expenditures
// require a weighted majority: strictly more than half of the total eligible
// weight on one side decides early; anything else stays pending until the
// deadline resolver applies the fail-safe default.
func Evaluate(eligible []entities.EligibleVoter, votes []entities.Vote, kind entities.ProposalKind) Tally {
	byVoter := make(map[string]entities.Vote, len(votes))
	for _, vote := range votes {
		byVoter[vote.VoterID] = vote
	}

	tally := Tally{
		Decision:        DecisionPending,
		ApprovalWeight:  decimal.Zero,
		RejectionWeight: decimal.Zero,
		UndecidedWeight: decimal.Zero,
		EligibleCount:   len(eligible),
	}
	total := decimal.Zero
	for _, voter := range eligible {
		total = total.Add(voter.Weight)
		vote, ok := byVoter[voter.VoterID]
		if !ok {
			tally.UndecidedWeight = tally.UndecidedWeight.Add(voter.Weight)
			continue
		}
		switch vote.Decision {
		case entities.DecisionApprove:
			tally.ApprovalWeight = tally.ApprovalWeight.Add(voter.Weight)
			tally.ApproveCount++
		case entities.DecisionReject:
			tally.RejectionWeight = tally.RejectionWeight.Add(voter.Weight)
			tally.RejectCount++
		default:
			tally.UndecidedWeight = tally.UndecidedWeight.Add(voter.Weight)
		}
	}

	switch kind {
	case entities.KindOwnershipChange:
		// Unanimity counts heads, not weight. A single reject fails fast.
		if tally.RejectCount > 0 {
			tally.Decision = DecisionRejected
		} else if tally.ApproveCount == tally.EligibleCount && tally.EligibleCount > 0 {
			tally.Decision = DecisionApproved
		}
	case entities.KindMaintenanceExpenditure:
		// The majority threshold is half of the total eligible weight, which
		// is 50.00 for a well-formed snapshot. Using the actual total keeps
		// the rule correct even if a snapshot carries rounding residue.
		threshold := majorityThreshold
		if !total.IsZero() {
			threshold = total.Div(decimal.NewFromInt(2))
		}
		if tally.ApprovalWeight.GreaterThan(threshold) {
			tally.Decision = DecisionApproved
		} else if tally.RejectionWeight.GreaterThan(threshold) {
			tally.Decision = DecisionRejected
		}
	}
	return tally
}

// ResolveAtDeadline maps a still-pending tally to the fail-safe outcome used
// once the proposal deadline has elapsed: no clear decision means rejected,
// including an exact 50.00/50.00 weighted split.
func ResolveAtDeadline(tally Tally) Decision {
	if tally.Decision == DecisionPending {
		return DecisionRejected
	}
	return tally.Decision
}
