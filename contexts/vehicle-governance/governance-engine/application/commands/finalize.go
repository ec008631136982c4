package commands

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	application "wheelshare/contexts/vehicle-governance/governance-engine/application"
	"wheelshare/contexts/vehicle-governance/governance-engine/domain/entities"
	domainerrors "wheelshare/contexts/vehicle-governance/governance-engine/domain/errors"
	"wheelshare/contexts/vehicle-governance/governance-engine/domain/quorum"
	"wheelshare/contexts/vehicle-governance/governance-engine/ports"
)

const (
	triggerQuorumDecided   = "quorum_decided"
	triggerDeadlineElapsed = "deadline_elapsed"
)

// FinalizeExpired runs the deadline outcome for one proposal. The sweeper and
// a racing vote-cast finalization share the same path, so re-running on an
// already-terminal proposal is a no-op.
func (uc *GovernanceUseCase) FinalizeExpired(ctx context.Context, proposalID string) error {
	release := uc.proposalLocks.acquire(proposalID)
	defer release()

	proposal, err := uc.Proposals.GetProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	if proposal.Status.IsTerminal() {
		return nil
	}
	now := uc.now()
	if proposal.Deadline.After(now) {
		return nil
	}

	eligible, err := uc.Proposals.ListEligibleVoters(ctx, proposalID)
	if err != nil {
		return err
	}
	votes, err := uc.Votes.ListVotes(ctx, proposalID)
	if err != nil {
		return err
	}
	tally := quorum.Evaluate(eligible, votes, proposal.Kind)
	decision := quorum.ResolveAtDeadline(tally)

	_, err = uc.finalizeLocked(ctx, proposal, eligible, tally, decision, triggerDeadlineElapsed)
	return err
}

// finalizeLocked performs the one-time transition to a terminal status and, on
// approval, the kind-specific effect. Callers must hold the proposal's lock.
//
// The status compare-and-set, the effect writes, the history record, and the
// outbox rows commit as one atomic unit; an infrastructure error leaves the
// proposal pending so the whole finalization retries from scratch. Losing the
// CAS to a concurrent finalizer returns success without re-applying anything.
func (uc *GovernanceUseCase) finalizeLocked(
	ctx context.Context,
	proposal entities.Proposal,
	eligible []entities.EligibleVoter,
	tally quorum.Tally,
	decision quorum.Decision,
	trigger string,
) (entities.ProposalStatus, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	// Effect application is serialized per asset so two proposals for the same
	// vehicle cannot interleave between snapshot re-check and write.
	releaseAsset := uc.assetLocks.acquire(proposal.AssetID)
	defer releaseAsset()

	record := ports.FinalizationRecord{
		ProposalID:  proposal.ProposalID,
		FinalizedAt: now,
	}
	status := entities.StatusRejected
	reason := "quorum_rejected"
	switch {
	case decision == quorum.DecisionApproved:
		var err error
		status, reason, err = uc.prepareEffect(ctx, &record, proposal, now)
		if err != nil {
			return "", err
		}
	case trigger == triggerDeadlineElapsed:
		if tally.ApproveCount+tally.RejectCount == 0 {
			status = entities.StatusExpired
			reason = "deadline_no_votes"
		} else {
			reason = "deadline_no_quorum"
		}
	}
	record.Status = status
	record.Reason = reason

	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return "", err
	}
	envelope, err := newGovernanceEnvelope(eventID, EventProposalFinalized, proposal.AssetID, now, map[string]any{
		"proposal_id":      proposal.ProposalID,
		"asset_id":         proposal.AssetID,
		"kind":             string(proposal.Kind),
		"status":           string(status),
		"reason":           reason,
		"trigger":          trigger,
		"approval_weight":  tally.ApprovalWeight.String(),
		"rejection_weight": tally.RejectionWeight.String(),
		"undecided_weight": tally.UndecidedWeight.String(),
		"eligible_voters":  tally.EligibleCount,
	})
	if err != nil {
		return "", err
	}
	record.Events = append(record.Events, envelope)

	won, err := uc.Finalizations.ApplyFinalization(ctx, record)
	if err != nil {
		logger.Error("finalization failed",
			"event", "governance_finalize_failed",
			"module", "vehicle-governance/governance-engine",
			"layer", "application",
			"proposal_id", proposal.ProposalID,
			"asset_id", proposal.AssetID,
			"status", string(status),
			"error", err.Error(),
		)
		return "", err
	}
	if !won {
		current, err := uc.Proposals.GetProposal(ctx, proposal.ProposalID)
		if err != nil {
			return "", err
		}
		logger.Info("finalization lost race; proposal already terminal",
			"event", "governance_finalize_noop",
			"module", "vehicle-governance/governance-engine",
			"layer", "application",
			"proposal_id", proposal.ProposalID,
			"status", string(current.Status),
		)
		return current.Status, nil
	}

	logger.Info("proposal finalized",
		"event", "governance_proposal_finalized",
		"module", "vehicle-governance/governance-engine",
		"layer", "application",
		"proposal_id", proposal.ProposalID,
		"asset_id", proposal.AssetID,
		"kind", string(proposal.Kind),
		"status", string(status),
		"reason", reason,
		"trigger", trigger,
	)
	return status, nil
}

// prepareEffect stages the kind-specific domain mutation for an approved
// proposal into the finalization record, or downgrades the terminal status
// when the effect's precondition no longer holds.
func (uc *GovernanceUseCase) prepareEffect(
	ctx context.Context,
	record *ports.FinalizationRecord,
	proposal entities.Proposal,
	now time.Time,
) (entities.ProposalStatus, string, error) {
	logger := application.ResolveLogger(uc.Logger)

	switch proposal.Kind {
	case entities.KindOwnershipChange:
		snapshot, err := uc.Ownership.GetOwnershipSnapshot(ctx, proposal.AssetID)
		if err != nil {
			return "", "", err
		}
		if snapshot.Version != proposal.SnapshotVersion {
			logger.Warn("ownership table changed since proposal; forcing rejection",
				"event", "governance_effect_state_changed",
				"module", "vehicle-governance/governance-engine",
				"layer", "application",
				"proposal_id", proposal.ProposalID,
				"asset_id", proposal.AssetID,
				"snapshot_version", proposal.SnapshotVersion,
				"current_version", snapshot.Version,
			)
			return entities.StatusRejected, "state_changed_since_proposal", nil
		}
		if err := validateSplits(proposal.Payload.Splits); err != nil {
			return entities.StatusRejected, "payload_revalidation_failed", nil
		}

		before, err := marshalOwnershipState(snapshot.Splits, snapshot.Version)
		if err != nil {
			return "", "", err
		}
		after, err := marshalOwnershipState(proposal.Payload.Splits, snapshot.Version+1)
		if err != nil {
			return "", "", err
		}
		recordID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return "", "", err
		}
		record.Ownership = &ports.OwnershipWrite{
			AssetID:         proposal.AssetID,
			Splits:          proposal.Payload.Splits,
			ExpectedVersion: snapshot.Version,
		}
		record.History = &entities.HistoryRecord{
			RecordID:   recordID,
			AssetID:    proposal.AssetID,
			ProposalID: proposal.ProposalID,
			ChangeType: entities.ChangeTypeOwnershipReplaced,
			Before:     before,
			After:      after,
			AppliedAt:  now,
			AppliedBy:  "system",
		}
		return entities.StatusApproved, "quorum_approved", nil

	case entities.KindMaintenanceExpenditure:
		fund, err := uc.Funds.GetBalance(ctx, proposal.AssetID)
		if err != nil {
			return "", "", err
		}
		amount := proposal.Payload.Amount
		recordID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return "", "", err
		}
		if fund.Balance.LessThan(amount) {
			logger.Warn("fund balance below approved amount; marking unfulfilled",
				"event", "governance_effect_insufficient_funds",
				"module", "vehicle-governance/governance-engine",
				"layer", "application",
				"proposal_id", proposal.ProposalID,
				"asset_id", proposal.AssetID,
				"balance", fund.Balance.String(),
				"amount", amount.String(),
			)
			state, err := marshalFundState(fund.Balance, fund.Version, &amount, "insufficient_funds")
			if err != nil {
				return "", "", err
			}
			record.History = &entities.HistoryRecord{
				RecordID:   recordID,
				AssetID:    proposal.AssetID,
				ProposalID: proposal.ProposalID,
				ChangeType: entities.ChangeTypeExpenditureUnfulfilled,
				Before:     state,
				After:      state,
				AppliedAt:  now,
				AppliedBy:  "system",
			}
			return entities.StatusApprovedUnfulfilled, "insufficient_funds", nil
		}

		before, err := marshalFundState(fund.Balance, fund.Version, nil, "")
		if err != nil {
			return "", "", err
		}
		after, err := marshalFundState(fund.Balance.Sub(amount), fund.Version+1, &amount, "")
		if err != nil {
			return "", "", err
		}
		record.Fund = &ports.FundWrite{
			AssetID:         proposal.AssetID,
			Amount:          amount,
			ExpectedVersion: fund.Version,
		}
		record.History = &entities.HistoryRecord{
			RecordID:   recordID,
			AssetID:    proposal.AssetID,
			ProposalID: proposal.ProposalID,
			ChangeType: entities.ChangeTypeFundDebited,
			Before:     before,
			After:      after,
			AppliedAt:  now,
			AppliedBy:  "system",
		}
		return entities.StatusApproved, "quorum_approved", nil
	}
	return "", "", domainerrors.ErrInvalidPayload
}

type ownershipStateEntry struct {
	OwnerID string          `json:"owner_id"`
	Percent decimal.Decimal `json:"percent"`
}

type ownershipState struct {
	Splits  []ownershipStateEntry `json:"splits"`
	Version int64                 `json:"version"`
}

type fundState struct {
	Balance         decimal.Decimal  `json:"balance"`
	Version         int64            `json:"version"`
	RequestedAmount *decimal.Decimal `json:"requested_amount,omitempty"`
	FailureReason   string           `json:"failure_reason,omitempty"`
}

func marshalOwnershipState(splits []entities.OwnershipSplit, version int64) ([]byte, error) {
	state := ownershipState{
		Splits:  make([]ownershipStateEntry, 0, len(splits)),
		Version: version,
	}
	for _, split := range splits {
		state.Splits = append(state.Splits, ownershipStateEntry{
			OwnerID: split.OwnerID,
			Percent: split.Percent,
		})
	}
	return json.Marshal(state)
}

func marshalFundState(balance decimal.Decimal, version int64, requested *decimal.Decimal, failureReason string) ([]byte, error) {
	return json.Marshal(fundState{
		Balance:         balance,
		Version:         version,
		RequestedAmount: requested,
		FailureReason:   failureReason,
	})
}
