package queries

import (
	"context"
	"strings"

	"wheelshare/contexts/vehicle-governance/governance-engine/domain/entities"
	"wheelshare/contexts/vehicle-governance/governance-engine/domain/quorum"
	"wheelshare/contexts/vehicle-governance/governance-engine/ports"
)

// VoterStatus is one eligible voter's standing within a proposal view.
type VoterStatus struct {
	Voter    entities.EligibleVoter
	Decision entities.VoteDecision
	Comment  string
	HasVoted bool
}

// ProposalView is the read model for one proposal: the proposal itself, the
// live tally, and per-voter status.
type ProposalView struct {
	Proposal entities.Proposal
	Tally    quorum.Tally
	Voters   []VoterStatus
}

// ProposalUseCase serves the governance read side.
type ProposalUseCase struct {
	Proposals ports.ProposalRepository
	Votes     ports.VoteRepository
	History   ports.HistoryRepository
}

func (uc ProposalUseCase) GetProposal(ctx context.Context, proposalID string) (ProposalView, error) {
	proposal, err := uc.Proposals.GetProposal(ctx, strings.TrimSpace(proposalID))
	if err != nil {
		return ProposalView{}, err
	}
	eligible, err := uc.Proposals.ListEligibleVoters(ctx, proposal.ProposalID)
	if err != nil {
		return ProposalView{}, err
	}
	votes, err := uc.Votes.ListVotes(ctx, proposal.ProposalID)
	if err != nil {
		return ProposalView{}, err
	}

	byVoter := make(map[string]entities.Vote, len(votes))
	for _, vote := range votes {
		byVoter[vote.VoterID] = vote
	}
	voters := make([]VoterStatus, 0, len(eligible))
	for _, voter := range eligible {
		status := VoterStatus{Voter: voter}
		if vote, ok := byVoter[voter.VoterID]; ok {
			status.Decision = vote.Decision
			status.Comment = vote.Comment
			status.HasVoted = true
		}
		voters = append(voters, status)
	}

	return ProposalView{
		Proposal: proposal,
		Tally:    quorum.Evaluate(eligible, votes, proposal.Kind),
		Voters:   voters,
	}, nil
}

func (uc ProposalUseCase) ListProposals(
	ctx context.Context,
	assetID string,
	status entities.ProposalStatus,
) ([]entities.Proposal, error) {
	return uc.Proposals.ListProposalsByAsset(ctx, strings.TrimSpace(assetID), status)
}

func (uc ProposalUseCase) ListHistory(ctx context.Context, assetID string) ([]entities.HistoryRecord, error) {
	return uc.History.ListHistoryByAsset(ctx, strings.TrimSpace(assetID))
}
