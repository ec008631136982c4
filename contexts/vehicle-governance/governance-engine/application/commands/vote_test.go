package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wheelshare/contexts/vehicle-governance/governance-engine/adapters/memory"
	"wheelshare/contexts/vehicle-governance/governance-engine/domain/entities"
	domainerrors "wheelshare/contexts/vehicle-governance/governance-engine/domain/errors"
)

type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time { return c.now }

func newClockedEngine(store *memory.Store, clock *stubClock) *GovernanceUseCase {
	return &GovernanceUseCase{
		Proposals:     store,
		Votes:         store,
		Finalizations: store,
		Ownership:     store,
		Funds:         store,
		Outbox:        store,
		Clock:         clock,
		IDGen:         store,
	}
}

func TestCastVoteAfterDeadlineIsRefusedAndExpiresUnvotedProposal(t *testing.T) {
	store := memory.NewStore()
	store.SetOwnership("asset-1", []entities.OwnershipSplit{
		{OwnerID: "owner-a", Percent: decimal.RequireFromString("60.00")},
		{OwnerID: "owner-b", Percent: decimal.RequireFromString("40.00")},
	})
	store.SetFundBalance("asset-1", decimal.RequireFromString("1000.00"))

	clock := &stubClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	engine := newClockedEngine(store, clock)

	proposal, err := engine.CreateMaintenanceExpenditure(context.Background(), CreateExpenditureCommand{
		AssetID:    "asset-1",
		ProposerID: "owner-a",
		Amount:     decimal.RequireFromString("250.00"),
		Deadline:   clock.now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create proposal failed: %v", err)
	}

	// The majority holder arrives after the window closed. The cast must not
	// be counted even though its weight alone would carry the quorum.
	clock.now = clock.now.Add(2 * time.Hour)
	_, err = engine.CastVote(context.Background(), CastVoteCommand{
		ProposalID: proposal.ProposalID,
		VoterID:    "owner-a",
		Decision:   entities.DecisionApprove,
	})
	if !errors.Is(err, domainerrors.ErrProposalFinalized) {
		t.Fatalf("expected ErrProposalFinalized for a cast past the deadline, got %v", err)
	}

	current, err := store.GetProposal(context.Background(), proposal.ProposalID)
	if err != nil {
		t.Fatalf("get proposal failed: %v", err)
	}
	if current.Status != entities.StatusExpired {
		t.Fatalf("expected expired for a voteless proposal, got %s", current.Status)
	}
	if current.OutcomeReason != "deadline_no_votes" {
		t.Fatalf("unexpected outcome reason %q", current.OutcomeReason)
	}

	balance, err := store.GetBalance(context.Background(), "asset-1")
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if balance.Balance.StringFixed(2) != "1000.00" {
		t.Fatalf("late cast must not debit the fund, balance=%s", balance.Balance.StringFixed(2))
	}
}

func TestCastVoteAfterDeadlineResolvesFromPriorVotesOnly(t *testing.T) {
	store := memory.NewStore()
	store.SetOwnership("asset-1", []entities.OwnershipSplit{
		{OwnerID: "owner-a", Percent: decimal.RequireFromString("50.00")},
		{OwnerID: "owner-b", Percent: decimal.RequireFromString("50.00")},
	})
	store.SetFundBalance("asset-1", decimal.RequireFromString("1000.00"))

	clock := &stubClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	engine := newClockedEngine(store, clock)

	proposal, err := engine.CreateMaintenanceExpenditure(context.Background(), CreateExpenditureCommand{
		AssetID:    "asset-1",
		ProposerID: "owner-a",
		Amount:     decimal.RequireFromString("250.00"),
		Deadline:   clock.now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create proposal failed: %v", err)
	}
	if _, err := engine.CastVote(context.Background(), CastVoteCommand{
		ProposalID: proposal.ProposalID,
		VoterID:    "owner-a",
		Decision:   entities.DecisionApprove,
	}); err != nil {
		t.Fatalf("in-window vote failed: %v", err)
	}

	// owner-b's approve would complete the majority, but it lands after the
	// deadline: the proposal resolves from owner-a's lone vote and is
	// rejected for lack of quorum.
	clock.now = clock.now.Add(2 * time.Hour)
	_, err = engine.CastVote(context.Background(), CastVoteCommand{
		ProposalID: proposal.ProposalID,
		VoterID:    "owner-b",
		Decision:   entities.DecisionApprove,
	})
	if !errors.Is(err, domainerrors.ErrProposalFinalized) {
		t.Fatalf("expected ErrProposalFinalized for a cast past the deadline, got %v", err)
	}

	current, err := store.GetProposal(context.Background(), proposal.ProposalID)
	if err != nil {
		t.Fatalf("get proposal failed: %v", err)
	}
	if current.Status != entities.StatusRejected {
		t.Fatalf("expected rejection from the in-window tally, got %s", current.Status)
	}
	if current.OutcomeReason != "deadline_no_quorum" {
		t.Fatalf("unexpected outcome reason %q", current.OutcomeReason)
	}

	votes, err := store.ListVotes(context.Background(), proposal.ProposalID)
	if err != nil {
		t.Fatalf("list votes failed: %v", err)
	}
	if len(votes) != 1 {
		t.Fatalf("late cast must not enter the ledger, got %d votes", len(votes))
	}

	balance, err := store.GetBalance(context.Background(), "asset-1")
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if balance.Balance.StringFixed(2) != "1000.00" {
		t.Fatalf("late cast must not debit the fund, balance=%s", balance.Balance.StringFixed(2))
	}
}
