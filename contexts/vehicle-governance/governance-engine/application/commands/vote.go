package commands

import (
	"context"
	"strings"
	"time"

	application "wheelshare/contexts/vehicle-governance/governance-engine/application"
	"wheelshare/contexts/vehicle-governance/governance-engine/domain/entities"
	domainerrors "wheelshare/contexts/vehicle-governance/governance-engine/domain/errors"
	"wheelshare/contexts/vehicle-governance/governance-engine/domain/quorum"
)

type CastVoteCommand struct {
	ProposalID string
	VoterID    string
	Decision   entities.VoteDecision
	Comment    string
}

// CastVoteResult returns the stored vote, the post-cast tally, and whether the
// cast decided the proposal early.
type CastVoteResult struct {
	Vote      entities.Vote
	Tally     quorum.Tally
	Status    entities.ProposalStatus
	Finalized bool
}

// CastVote records one eligible voter's decision and re-evaluates quorum. A
// voter re-casting before finalization overwrites the prior decision; a cast
// that mathematically decides the proposal triggers finalization on the spot.
//
// The ledger write and the quorum re-check run under the proposal's
// exclusivity scope so concurrent casts cannot race finalization.
func (uc *GovernanceUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (CastVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	proposalID := strings.TrimSpace(cmd.ProposalID)
	voterID := strings.TrimSpace(cmd.VoterID)
	if proposalID == "" || voterID == "" ||
		(cmd.Decision != entities.DecisionApprove && cmd.Decision != entities.DecisionReject) {
		return CastVoteResult{}, domainerrors.ErrInvalidVoteInput
	}

	release := uc.proposalLocks.acquire(proposalID)
	defer release()

	proposal, err := uc.Proposals.GetProposal(ctx, proposalID)
	if err != nil {
		return CastVoteResult{}, err
	}
	if proposal.Status.IsTerminal() {
		logger.Warn("vote rejected on finalized proposal",
			"event", "governance_vote_on_finalized",
			"module", "vehicle-governance/governance-engine",
			"layer", "application",
			"proposal_id", proposalID,
			"voter_id", voterID,
			"status", string(proposal.Status),
		)
		return CastVoteResult{}, domainerrors.ErrProposalFinalized
	}

	eligible, err := uc.Proposals.ListEligibleVoters(ctx, proposalID)
	if err != nil {
		return CastVoteResult{}, err
	}
	if !isEligible(eligible, voterID) {
		return CastVoteResult{}, domainerrors.ErrNotEligible
	}

	now := uc.now()
	if !proposal.Deadline.After(now) {
		// The deadline decides, not the sweeper's schedule. A cast arriving
		// after the deadline resolves the proposal from the votes already in
		// the ledger and is itself refused.
		votes, err := uc.Votes.ListVotes(ctx, proposalID)
		if err != nil {
			return CastVoteResult{}, err
		}
		tally := quorum.Evaluate(eligible, votes, proposal.Kind)
		if _, err := uc.finalizeLocked(ctx, proposal, eligible, tally, quorum.ResolveAtDeadline(tally), triggerDeadlineElapsed); err != nil {
			return CastVoteResult{}, err
		}
		logger.Warn("vote rejected after deadline",
			"event", "governance_vote_after_deadline",
			"module", "vehicle-governance/governance-engine",
			"layer", "application",
			"proposal_id", proposalID,
			"voter_id", voterID,
			"deadline", proposal.Deadline.Format(time.RFC3339),
		)
		return CastVoteResult{}, domainerrors.ErrProposalFinalized
	}
	vote := entities.Vote{
		ProposalID: proposalID,
		VoterID:    voterID,
		Decision:   cmd.Decision,
		Comment:    strings.TrimSpace(cmd.Comment),
		CastAt:     now,
	}
	if err := uc.Votes.UpsertVote(ctx, vote); err != nil {
		return CastVoteResult{}, err
	}
	if err := uc.appendProposalEvent(ctx, EventVoteCast, proposal, now, map[string]any{
		"voter_id": voterID,
		"decision": string(cmd.Decision),
	}); err != nil {
		return CastVoteResult{}, err
	}

	votes, err := uc.Votes.ListVotes(ctx, proposalID)
	if err != nil {
		return CastVoteResult{}, err
	}
	tally := quorum.Evaluate(eligible, votes, proposal.Kind)
	logger.Info("vote cast",
		"event", "governance_vote_cast",
		"module", "vehicle-governance/governance-engine",
		"layer", "application",
		"proposal_id", proposalID,
		"voter_id", voterID,
		"decision", string(cmd.Decision),
		"approval_weight", tally.ApprovalWeight.String(),
		"rejection_weight", tally.RejectionWeight.String(),
		"quorum_decision", string(tally.Decision),
	)

	if tally.Decision == quorum.DecisionPending {
		return CastVoteResult{Vote: vote, Tally: tally, Status: proposal.Status}, nil
	}

	status, err := uc.finalizeLocked(ctx, proposal, eligible, tally, tally.Decision, triggerQuorumDecided)
	if err != nil {
		return CastVoteResult{}, err
	}
	return CastVoteResult{Vote: vote, Tally: tally, Status: status, Finalized: true}, nil
}

func isEligible(eligible []entities.EligibleVoter, voterID string) bool {
	for _, voter := range eligible {
		if strings.EqualFold(voter.VoterID, voterID) {
			return true
		}
	}
	return false
}
