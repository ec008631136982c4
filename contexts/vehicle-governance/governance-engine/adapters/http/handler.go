package httpadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wheelshare/contexts/vehicle-governance/governance-engine/application/commands"
	"wheelshare/contexts/vehicle-governance/governance-engine/application/queries"
	"wheelshare/contexts/vehicle-governance/governance-engine/domain/entities"
	domainerrors "wheelshare/contexts/vehicle-governance/governance-engine/domain/errors"
	"wheelshare/contexts/vehicle-governance/governance-engine/domain/quorum"
	httptransport "wheelshare/contexts/vehicle-governance/governance-engine/transport/http"
)

type Handler struct {
	Governance *commands.GovernanceUseCase
	Queries    queries.ProposalUseCase
	Logger     *slog.Logger
}

func (h Handler) CreateOwnershipChangeHandler(
	ctx context.Context,
	assetID string,
	proposerID string,
	req httptransport.CreateOwnershipChangeRequest,
) (httptransport.ProposalResponse, error) {
	splits, err := parseSplits(req.Splits)
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	proposal, err := h.Governance.CreateOwnershipChange(ctx, commands.CreateOwnershipChangeCommand{
		AssetID:    assetID,
		ProposerID: proposerID,
		Splits:     splits,
		Reason:     req.Reason,
		Deadline:   deadline,
	})
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	return mapProposal(proposal), nil
}

func (h Handler) CreateExpenditureHandler(
	ctx context.Context,
	assetID string,
	proposerID string,
	req httptransport.CreateExpenditureRequest,
) (httptransport.ProposalResponse, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return httptransport.ProposalResponse{}, domainerrors.ErrInvalidPayload
	}
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	proposal, err := h.Governance.CreateMaintenanceExpenditure(ctx, commands.CreateExpenditureCommand{
		AssetID:    assetID,
		ProposerID: proposerID,
		Amount:     amount,
		Reference:  req.Reference,
		Reason:     req.Reason,
		Deadline:   deadline,
	})
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	return mapProposal(proposal), nil
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	proposalID string,
	voterID string,
	req httptransport.CastVoteRequest,
) (httptransport.VoteResponse, error) {
	result, err := h.Governance.CastVote(ctx, commands.CastVoteCommand{
		ProposalID: proposalID,
		VoterID:    voterID,
		Decision:   entities.VoteDecision(strings.ToLower(strings.TrimSpace(req.Decision))),
		Comment:    req.Comment,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return httptransport.VoteResponse{
		ProposalID: result.Vote.ProposalID,
		VoterID:    result.Vote.VoterID,
		Decision:   string(result.Vote.Decision),
		Status:     string(result.Status),
		Finalized:  result.Finalized,
		Tally:      mapTally(result.Tally),
	}, nil
}

func (h Handler) CancelProposalHandler(ctx context.Context, proposalID string, byUserID string) error {
	return h.Governance.CancelProposal(ctx, commands.CancelProposalCommand{
		ProposalID: proposalID,
		ByUserID:   byUserID,
	})
}

func (h Handler) GetProposalHandler(ctx context.Context, proposalID string) (httptransport.ProposalViewResponse, error) {
	view, err := h.Queries.GetProposal(ctx, proposalID)
	if err != nil {
		return httptransport.ProposalViewResponse{}, err
	}

	voters := make([]httptransport.VoterStatusView, 0, len(view.Voters))
	for _, voter := range view.Voters {
		voters = append(voters, httptransport.VoterStatusView{
			VoterID:  voter.Voter.VoterID,
			Weight:   voter.Voter.Weight.StringFixed(2),
			HasVoted: voter.HasVoted,
			Decision: string(voter.Decision),
			Comment:  voter.Comment,
		})
	}
	return httptransport.ProposalViewResponse{
		Proposal: mapProposal(view.Proposal),
		Payload:  mapPayload(view.Proposal.Payload),
		Tally:    mapTally(view.Tally),
		Voters:   voters,
	}, nil
}

func (h Handler) ListProposalsHandler(
	ctx context.Context,
	assetID string,
	status string,
) (httptransport.ProposalListResponse, error) {
	proposals, err := h.Queries.ListProposals(ctx, assetID, entities.ProposalStatus(strings.ToLower(strings.TrimSpace(status))))
	if err != nil {
		return httptransport.ProposalListResponse{}, err
	}
	items := make([]httptransport.ProposalResponse, 0, len(proposals))
	for _, proposal := range proposals {
		items = append(items, mapProposal(proposal))
	}
	return httptransport.ProposalListResponse{Items: items}, nil
}

func (h Handler) ListHistoryHandler(ctx context.Context, assetID string) (httptransport.HistoryListResponse, error) {
	records, err := h.Queries.ListHistory(ctx, assetID)
	if err != nil {
		return httptransport.HistoryListResponse{}, err
	}
	items := make([]httptransport.HistoryRecordView, 0, len(records))
	for _, record := range records {
		items = append(items, httptransport.HistoryRecordView{
			RecordID:   record.RecordID,
			ProposalID: record.ProposalID,
			ChangeType: record.ChangeType,
			Before:     append([]byte(nil), record.Before...),
			After:      append([]byte(nil), record.After...),
			AppliedAt:  record.AppliedAt.UTC().Format(time.RFC3339),
			AppliedBy:  record.AppliedBy,
		})
	}
	return httptransport.HistoryListResponse{
		AssetID: strings.TrimSpace(assetID),
		Items:   items,
	}, nil
}

func parseSplits(inputs []httptransport.SplitInput) ([]entities.OwnershipSplit, error) {
	splits := make([]entities.OwnershipSplit, 0, len(inputs))
	for _, input := range inputs {
		percent, err := decimal.NewFromString(strings.TrimSpace(input.Percent))
		if err != nil {
			return nil, domainerrors.ErrInvalidPayload
		}
		splits = append(splits, entities.OwnershipSplit{
			OwnerID: input.OwnerID,
			Percent: percent,
		})
	}
	return splits, nil
}

func parseDeadline(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	deadline, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domainerrors.ErrInvalidPayload
	}
	return deadline, nil
}

func mapProposal(proposal entities.Proposal) httptransport.ProposalResponse {
	resp := httptransport.ProposalResponse{
		ProposalID:    proposal.ProposalID,
		AssetID:       proposal.AssetID,
		Kind:          string(proposal.Kind),
		ProposerID:    proposal.ProposerID,
		Status:        string(proposal.Status),
		OutcomeReason: proposal.OutcomeReason,
		CreatedAt:     proposal.CreatedAt.UTC().Format(time.RFC3339),
		Deadline:      proposal.Deadline.UTC().Format(time.RFC3339),
	}
	if proposal.FinalizedAt != nil {
		resp.FinalizedAt = proposal.FinalizedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func mapPayload(payload entities.Payload) httptransport.PayloadView {
	view := httptransport.PayloadView{
		Reference: payload.Reference,
		Reason:    payload.Reason,
	}
	for _, split := range payload.Splits {
		view.Splits = append(view.Splits, httptransport.SplitInput{
			OwnerID: split.OwnerID,
			Percent: split.Percent.StringFixed(2),
		})
	}
	if payload.Kind == entities.KindMaintenanceExpenditure {
		view.Amount = payload.Amount.StringFixed(2)
	}
	return view
}

func mapTally(tally quorum.Tally) httptransport.TallyView {
	return httptransport.TallyView{
		Decision:        string(tally.Decision),
		ApprovalWeight:  tally.ApprovalWeight.StringFixed(2),
		RejectionWeight: tally.RejectionWeight.StringFixed(2),
		UndecidedWeight: tally.UndecidedWeight.StringFixed(2),
		ApproveCount:    tally.ApproveCount,
		RejectCount:     tally.RejectCount,
		EligibleCount:   tally.EligibleCount,
	}
}
