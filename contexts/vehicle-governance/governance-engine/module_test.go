package governanceengine

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"wheelshare/contexts/vehicle-governance/governance-engine/domain/entities"
	domainerrors "wheelshare/contexts/vehicle-governance/governance-engine/domain/errors"
	httptransport "wheelshare/contexts/vehicle-governance/governance-engine/transport/http"
)

func seedTwoOwnerAsset(module Module) {
	module.Store.SetOwnership("asset-1", []entities.OwnershipSplit{
		{OwnerID: "owner-a", Percent: decimal.RequireFromString("50.00")},
		{OwnerID: "owner-b", Percent: decimal.RequireFromString("50.00")},
	})
	module.Store.SetFundBalance("asset-1", decimal.RequireFromString("1000.00"))
}

func seedThreeOwnerAsset(module Module) {
	module.Store.SetOwnership("asset-1", []entities.OwnershipSplit{
		{OwnerID: "owner-a", Percent: decimal.RequireFromString("50.00")},
		{OwnerID: "owner-b", Percent: decimal.RequireFromString("30.00")},
		{OwnerID: "owner-c", Percent: decimal.RequireFromString("20.00")},
	})
	module.Store.SetFundBalance("asset-1", decimal.RequireFromString("1000.00"))
}

func castVote(t *testing.T, module Module, proposalID string, voterID string, decision string) httptransport.VoteResponse {
	t.Helper()
	resp, err := module.Handler.CastVoteHandler(context.Background(), proposalID, voterID, httptransport.CastVoteRequest{
		Decision: decision,
	})
	if err != nil {
		t.Fatalf("cast vote %s by %s failed: %v", decision, voterID, err)
	}
	return resp
}

func TestOwnershipChangeUnanimousApprovalReplacesOwnership(t *testing.T) {
	module := NewInMemoryModule(nil)
	seedTwoOwnerAsset(module)

	proposal, err := module.Handler.CreateOwnershipChangeHandler(context.Background(), "asset-1", "owner-a", httptransport.CreateOwnershipChangeRequest{
		Splits: []httptransport.SplitInput{
			{OwnerID: "owner-a", Percent: "70.00"},
			{OwnerID: "owner-b", Percent: "30.00"},
		},
	})
	if err != nil {
		t.Fatalf("create ownership change failed: %v", err)
	}
	if proposal.Status != string(entities.StatusPending) {
		t.Fatalf("expected pending proposal, got %s", proposal.Status)
	}

	first := castVote(t, module, proposal.ProposalID, "owner-a", "approve")
	if first.Finalized {
		t.Fatalf("one of two approvals must not finalize a unanimity proposal")
	}
	second := castVote(t, module, proposal.ProposalID, "owner-b", "approve")
	if !second.Finalized || second.Status != string(entities.StatusApproved) {
		t.Fatalf("expected finalized approved, got finalized=%v status=%s", second.Finalized, second.Status)
	}

	snapshot, err := module.Store.GetOwnershipSnapshot(context.Background(), "asset-1")
	if err != nil {
		t.Fatalf("ownership snapshot failed: %v", err)
	}
	if snapshot.Version != 2 {
		t.Fatalf("expected ownership version 2 after replacement, got %d", snapshot.Version)
	}
	byOwner := make(map[string]string, len(snapshot.Splits))
	for _, split := range snapshot.Splits {
		byOwner[split.OwnerID] = split.Percent.StringFixed(2)
	}
	if byOwner["owner-a"] != "70.00" || byOwner["owner-b"] != "30.00" {
		t.Fatalf("unexpected splits after replacement: %v", byOwner)
	}

	history, err := module.Handler.ListHistoryHandler(context.Background(), "asset-1")
	if err != nil {
		t.Fatalf("list history failed: %v", err)
	}
	if len(history.Items) != 1 || history.Items[0].ChangeType != entities.ChangeTypeOwnershipReplaced {
		t.Fatalf("expected one ownership_replaced record, got %+v", history.Items)
	}
}

func TestOwnershipChangeSingleRejectFinalizesRejected(t *testing.T) {
	module := NewInMemoryModule(nil)
	seedTwoOwnerAsset(module)

	proposal, err := module.Handler.CreateOwnershipChangeHandler(context.Background(), "asset-1", "owner-a", httptransport.CreateOwnershipChangeRequest{
		Splits: []httptransport.SplitInput{
			{OwnerID: "owner-a", Percent: "100.00"},
		},
	})
	if err != nil {
		t.Fatalf("create ownership change failed: %v", err)
	}

	resp := castVote(t, module, proposal.ProposalID, "owner-b", "reject")
	if !resp.Finalized || resp.Status != string(entities.StatusRejected) {
		t.Fatalf("expected immediate rejection, got finalized=%v status=%s", resp.Finalized, resp.Status)
	}

	snapshot, err := module.Store.GetOwnershipSnapshot(context.Background(), "asset-1")
	if err != nil {
		t.Fatalf("ownership snapshot failed: %v", err)
	}
	if snapshot.Version != 1 {
		t.Fatalf("rejected proposal must not touch ownership, version=%d", snapshot.Version)
	}

	if _, err := module.Handler.CastVoteHandler(context.Background(), proposal.ProposalID, "owner-a", httptransport.CastVoteRequest{
		Decision: "approve",
	}); !errors.Is(err, domainerrors.ErrProposalFinalized) {
		t.Fatalf("expected ErrProposalFinalized voting after finalization, got %v", err)
	}
}

func TestExpenditureMajorityDebitsFund(t *testing.T) {
	module := NewInMemoryModule(nil)
	seedThreeOwnerAsset(module)

	proposal, err := module.Handler.CreateExpenditureHandler(context.Background(), "asset-1", "owner-b", httptransport.CreateExpenditureRequest{
		Amount:    "250.00",
		Reference: "invoice-42",
		Reason:    "brake pads",
	})
	if err != nil {
		t.Fatalf("create expenditure failed: %v", err)
	}

	half := castVote(t, module, proposal.ProposalID, "owner-a", "approve")
	if half.Finalized {
		t.Fatalf("exactly half the weight must not decide early")
	}
	decided := castVote(t, module, proposal.ProposalID, "owner-b", "approve")
	if !decided.Finalized || decided.Status != string(entities.StatusApproved) {
		t.Fatalf("expected approved at 80.00 weight, got finalized=%v status=%s", decided.Finalized, decided.Status)
	}

	balance, err := module.Store.GetBalance(context.Background(), "asset-1")
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if balance.Balance.StringFixed(2) != "750.00" {
		t.Fatalf("expected balance 750.00 after debit, got %s", balance.Balance.StringFixed(2))
	}
	if balance.Version != 2 {
		t.Fatalf("expected fund version 2 after debit, got %d", balance.Version)
	}

	history, err := module.Handler.ListHistoryHandler(context.Background(), "asset-1")
	if err != nil {
		t.Fatalf("list history failed: %v", err)
	}
	if len(history.Items) != 1 || history.Items[0].ChangeType != entities.ChangeTypeFundDebited {
		t.Fatalf("expected one fund_debited record, got %+v", history.Items)
	}
}

func TestExpenditureInsufficientFundsMarksUnfulfilled(t *testing.T) {
	module := NewInMemoryModule(nil)
	seedTwoOwnerAsset(module)
	module.Store.SetFundBalance("asset-1", decimal.RequireFromString("100.00"))

	proposal, err := module.Handler.CreateExpenditureHandler(context.Background(), "asset-1", "owner-a", httptransport.CreateExpenditureRequest{
		Amount: "250.00",
	})
	if err != nil {
		t.Fatalf("create expenditure failed: %v", err)
	}

	castVote(t, module, proposal.ProposalID, "owner-a", "approve")
	decided := castVote(t, module, proposal.ProposalID, "owner-b", "approve")
	if !decided.Finalized || decided.Status != string(entities.StatusApprovedUnfulfilled) {
		t.Fatalf("expected approved_unfulfilled, got finalized=%v status=%s", decided.Finalized, decided.Status)
	}

	balance, err := module.Store.GetBalance(context.Background(), "asset-1")
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if balance.Balance.StringFixed(2) != "100.00" {
		t.Fatalf("unfulfilled expenditure must not debit, balance=%s", balance.Balance.StringFixed(2))
	}

	history, err := module.Handler.ListHistoryHandler(context.Background(), "asset-1")
	if err != nil {
		t.Fatalf("list history failed: %v", err)
	}
	if len(history.Items) != 1 || history.Items[0].ChangeType != entities.ChangeTypeExpenditureUnfulfilled {
		t.Fatalf("expected one expenditure_unfulfilled record, got %+v", history.Items)
	}
}

func TestRecastOverwritesPriorVote(t *testing.T) {
	module := NewInMemoryModule(nil)
	seedThreeOwnerAsset(module)

	proposal, err := module.Handler.CreateExpenditureHandler(context.Background(), "asset-1", "owner-a", httptransport.CreateExpenditureRequest{
		Amount: "50.00",
	})
	if err != nil {
		t.Fatalf("create expenditure failed: %v", err)
	}

	first := castVote(t, module, proposal.ProposalID, "owner-a", "reject")
	if first.Tally.RejectionWeight != "50.00" {
		t.Fatalf("expected rejection weight 50.00, got %s", first.Tally.RejectionWeight)
	}

	recast := castVote(t, module, proposal.ProposalID, "owner-a", "approve")
	if recast.Tally.RejectionWeight != "0.00" || recast.Tally.ApprovalWeight != "50.00" {
		t.Fatalf("recast must replace the prior decision, tally=%+v", recast.Tally)
	}
	if recast.Finalized {
		t.Fatalf("50.00 approval weight must not decide early")
	}

	decided := castVote(t, module, proposal.ProposalID, "owner-b", "approve")
	if !decided.Finalized || decided.Status != string(entities.StatusApproved) {
		t.Fatalf("expected approval after recast plus majority, got %+v", decided)
	}
}

func TestCancelProposalByProposerOnly(t *testing.T) {
	module := NewInMemoryModule(nil)
	seedTwoOwnerAsset(module)

	proposal, err := module.Handler.CreateExpenditureHandler(context.Background(), "asset-1", "owner-a", httptransport.CreateExpenditureRequest{
		Amount: "10.00",
	})
	if err != nil {
		t.Fatalf("create expenditure failed: %v", err)
	}

	if err := module.Handler.CancelProposalHandler(context.Background(), proposal.ProposalID, "owner-b"); !errors.Is(err, domainerrors.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for non-proposer cancel, got %v", err)
	}
	if err := module.Handler.CancelProposalHandler(context.Background(), proposal.ProposalID, "owner-a"); err != nil {
		t.Fatalf("proposer cancel failed: %v", err)
	}

	view, err := module.Handler.GetProposalHandler(context.Background(), proposal.ProposalID)
	if err != nil {
		t.Fatalf("get proposal failed: %v", err)
	}
	if view.Proposal.Status != string(entities.StatusCancelled) {
		t.Fatalf("expected cancelled, got %s", view.Proposal.Status)
	}

	if _, err := module.Handler.CastVoteHandler(context.Background(), proposal.ProposalID, "owner-b", httptransport.CastVoteRequest{
		Decision: "approve",
	}); !errors.Is(err, domainerrors.ErrProposalFinalized) {
		t.Fatalf("expected ErrProposalFinalized voting on cancelled proposal, got %v", err)
	}
}

func TestOwnershipVersionChangeForcesRejection(t *testing.T) {
	module := NewInMemoryModule(nil)
	seedTwoOwnerAsset(module)

	stale, err := module.Handler.CreateOwnershipChangeHandler(context.Background(), "asset-1", "owner-a", httptransport.CreateOwnershipChangeRequest{
		Splits: []httptransport.SplitInput{
			{OwnerID: "owner-a", Percent: "60.00"},
			{OwnerID: "owner-b", Percent: "40.00"},
		},
	})
	if err != nil {
		t.Fatalf("create stale proposal failed: %v", err)
	}
	fresh, err := module.Handler.CreateOwnershipChangeHandler(context.Background(), "asset-1", "owner-b", httptransport.CreateOwnershipChangeRequest{
		Splits: []httptransport.SplitInput{
			{OwnerID: "owner-a", Percent: "40.00"},
			{OwnerID: "owner-b", Percent: "60.00"},
		},
	})
	if err != nil {
		t.Fatalf("create fresh proposal failed: %v", err)
	}

	castVote(t, module, fresh.ProposalID, "owner-a", "approve")
	decided := castVote(t, module, fresh.ProposalID, "owner-b", "approve")
	if decided.Status != string(entities.StatusApproved) {
		t.Fatalf("expected fresh proposal approved, got %s", decided.Status)
	}

	castVote(t, module, stale.ProposalID, "owner-a", "approve")
	staleDecided := castVote(t, module, stale.ProposalID, "owner-b", "approve")
	if staleDecided.Status != string(entities.StatusRejected) {
		t.Fatalf("expected stale proposal forced to rejected, got %s", staleDecided.Status)
	}

	view, err := module.Handler.GetProposalHandler(context.Background(), stale.ProposalID)
	if err != nil {
		t.Fatalf("get stale proposal failed: %v", err)
	}
	if view.Proposal.OutcomeReason != "state_changed_since_proposal" {
		t.Fatalf("expected state_changed_since_proposal reason, got %q", view.Proposal.OutcomeReason)
	}

	snapshot, err := module.Store.GetOwnershipSnapshot(context.Background(), "asset-1")
	if err != nil {
		t.Fatalf("ownership snapshot failed: %v", err)
	}
	if snapshot.Version != 2 {
		t.Fatalf("stale proposal must not re-apply ownership, version=%d", snapshot.Version)
	}
}

func TestProposalCreationGuards(t *testing.T) {
	module := NewInMemoryModule(nil)
	seedTwoOwnerAsset(module)

	if _, err := module.Handler.CreateOwnershipChangeHandler(context.Background(), "asset-1", "stranger", httptransport.CreateOwnershipChangeRequest{
		Splits: []httptransport.SplitInput{
			{OwnerID: "owner-a", Percent: "100.00"},
		},
	}); !errors.Is(err, domainerrors.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible for non-owner proposer, got %v", err)
	}

	if _, err := module.Handler.CreateOwnershipChangeHandler(context.Background(), "asset-1", "owner-a", httptransport.CreateOwnershipChangeRequest{
		Splits: []httptransport.SplitInput{
			{OwnerID: "owner-a", Percent: "60.00"},
			{OwnerID: "owner-b", Percent: "30.00"},
		},
	}); !errors.Is(err, domainerrors.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for splits summing to 90.00, got %v", err)
	}

	if _, err := module.Handler.CreateExpenditureHandler(context.Background(), "asset-1", "owner-a", httptransport.CreateExpenditureRequest{
		Amount: "-5.00",
	}); !errors.Is(err, domainerrors.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for negative amount, got %v", err)
	}

	if _, err := module.Handler.CreateExpenditureHandler(context.Background(), "missing-asset", "owner-a", httptransport.CreateExpenditureRequest{
		Amount: "5.00",
	}); !errors.Is(err, domainerrors.ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound for unknown asset, got %v", err)
	}

	if _, err := module.Handler.CastVoteHandler(context.Background(), "missing-proposal", "owner-a", httptransport.CastVoteRequest{
		Decision: "approve",
	}); !errors.Is(err, domainerrors.ErrProposalNotFound) {
		t.Fatalf("expected ErrProposalNotFound, got %v", err)
	}
}

func TestIneligibleVoterRejected(t *testing.T) {
	module := NewInMemoryModule(nil)
	seedTwoOwnerAsset(module)

	proposal, err := module.Handler.CreateExpenditureHandler(context.Background(), "asset-1", "owner-a", httptransport.CreateExpenditureRequest{
		Amount: "10.00",
	})
	if err != nil {
		t.Fatalf("create expenditure failed: %v", err)
	}

	if _, err := module.Handler.CastVoteHandler(context.Background(), proposal.ProposalID, "stranger", httptransport.CastVoteRequest{
		Decision: "approve",
	}); !errors.Is(err, domainerrors.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
	if _, err := module.Handler.CastVoteHandler(context.Background(), proposal.ProposalID, "owner-a", httptransport.CastVoteRequest{
		Decision: "maybe",
	}); !errors.Is(err, domainerrors.ErrInvalidVoteInput) {
		t.Fatalf("expected ErrInvalidVoteInput, got %v", err)
	}
}

func TestGetProposalViewListsVoterStatuses(t *testing.T) {
	module := NewInMemoryModule(nil)
	seedThreeOwnerAsset(module)

	proposal, err := module.Handler.CreateExpenditureHandler(context.Background(), "asset-1", "owner-a", httptransport.CreateExpenditureRequest{
		Amount: "10.00",
	})
	if err != nil {
		t.Fatalf("create expenditure failed: %v", err)
	}
	castVote(t, module, proposal.ProposalID, "owner-c", "reject")

	view, err := module.Handler.GetProposalHandler(context.Background(), proposal.ProposalID)
	if err != nil {
		t.Fatalf("get proposal failed: %v", err)
	}
	if len(view.Voters) != 3 {
		t.Fatalf("expected 3 voter statuses, got %d", len(view.Voters))
	}
	voted := 0
	for _, voter := range view.Voters {
		if voter.HasVoted {
			voted++
			if voter.VoterID != "owner-c" || voter.Decision != "reject" {
				t.Fatalf("unexpected voted entry: %+v", voter)
			}
		}
	}
	if voted != 1 {
		t.Fatalf("expected exactly one cast vote, got %d", voted)
	}
	if view.Tally.RejectionWeight != "20.00" {
		t.Fatalf("expected rejection weight 20.00, got %s", view.Tally.RejectionWeight)
	}
}

func TestListProposalsFiltersByStatus(t *testing.T) {
	module := NewInMemoryModule(nil)
	seedTwoOwnerAsset(module)

	open, err := module.Handler.CreateExpenditureHandler(context.Background(), "asset-1", "owner-a", httptransport.CreateExpenditureRequest{
		Amount: "10.00",
	})
	if err != nil {
		t.Fatalf("create first expenditure failed: %v", err)
	}
	cancelled, err := module.Handler.CreateExpenditureHandler(context.Background(), "asset-1", "owner-a", httptransport.CreateExpenditureRequest{
		Amount: "20.00",
	})
	if err != nil {
		t.Fatalf("create second expenditure failed: %v", err)
	}
	if err := module.Handler.CancelProposalHandler(context.Background(), cancelled.ProposalID, "owner-a"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	all, err := module.Handler.ListProposalsHandler(context.Background(), "asset-1", "")
	if err != nil {
		t.Fatalf("list all failed: %v", err)
	}
	if len(all.Items) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(all.Items))
	}

	pending, err := module.Handler.ListProposalsHandler(context.Background(), "asset-1", "pending")
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending.Items) != 1 || pending.Items[0].ProposalID != open.ProposalID {
		t.Fatalf("expected only the open proposal, got %+v", pending.Items)
	}
}
