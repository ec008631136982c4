package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	application "wheelshare/contexts/vehicle-governance/governance-engine/application"
	"wheelshare/contexts/vehicle-governance/governance-engine/domain/entities"
	domainerrors "wheelshare/contexts/vehicle-governance/governance-engine/domain/errors"
	"wheelshare/contexts/vehicle-governance/governance-engine/ports"
)

// CreateOwnershipChangeCommand proposes replacing the asset's ownership table
// with new splits. Splits are percentages with two decimal places summing to
// exactly 100.00.
type CreateOwnershipChangeCommand struct {
	AssetID    string
	ProposerID string
	Splits     []entities.OwnershipSplit
	Reason     string
	Deadline   time.Time
}

// CreateExpenditureCommand proposes debiting the asset's shared maintenance
// fund.
type CreateExpenditureCommand struct {
	AssetID    string
	ProposerID string
	Amount     decimal.Decimal
	Reference  string
	Reason     string
	Deadline   time.Time
}

type CancelProposalCommand struct {
	ProposalID string
	ByUserID   string
}

// GovernanceUseCase orchestrates proposal lifecycle commands: creation with an
// eligible-voter snapshot, vote casting with quorum re-evaluation, proposer
// cancellation, and exactly-once finalization with effect application.
//
// Use the struct through a pointer; the embedded lock arenas provide the
// per-proposal and per-asset exclusivity scopes.
type GovernanceUseCase struct {
	Proposals     ports.ProposalRepository
	Votes         ports.VoteRepository
	Finalizations ports.FinalizationStore
	Ownership     ports.OwnershipStore
	Funds         ports.FundStore
	Outbox        ports.OutboxWriter
	Clock         ports.Clock
	IDGen         ports.IDGenerator
	// VotingWindow is the default deadline horizon when a command does not
	// carry an explicit deadline.
	VotingWindow time.Duration
	// CancelOnlyBeforeVotes restricts proposer cancellation to proposals with
	// no cast votes when enabled.
	CancelOnlyBeforeVotes bool
	Logger                *slog.Logger

	proposalLocks lockArena
	assetLocks    lockArena
}

var hundredPercent = decimal.RequireFromString("100.00")

// CreateOwnershipChange validates the proposed splits, snapshots the current
// co-owners as eligible voters, and persists the proposal as pending.
func (uc *GovernanceUseCase) CreateOwnershipChange(
	ctx context.Context,
	cmd CreateOwnershipChangeCommand,
) (entities.Proposal, error) {
	logger := application.ResolveLogger(uc.Logger)
	assetID := strings.TrimSpace(cmd.AssetID)
	proposerID := strings.TrimSpace(cmd.ProposerID)
	if assetID == "" || proposerID == "" {
		return entities.Proposal{}, domainerrors.ErrInvalidPayload
	}
	if err := validateSplits(cmd.Splits); err != nil {
		logger.Warn("ownership change payload rejected",
			"event", "governance_proposal_payload_rejected",
			"module", "vehicle-governance/governance-engine",
			"layer", "application",
			"asset_id", assetID,
			"proposer_id", proposerID,
			"error", err.Error(),
		)
		return entities.Proposal{}, err
	}

	payload := entities.Payload{
		Kind:   entities.KindOwnershipChange,
		Splits: normalizeSplits(cmd.Splits),
		Reason: strings.TrimSpace(cmd.Reason),
	}
	return uc.createProposal(ctx, assetID, proposerID, entities.KindOwnershipChange, payload, cmd.Deadline)
}

// CreateMaintenanceExpenditure validates the requested amount and persists the
// proposal as pending with the co-owner snapshot.
func (uc *GovernanceUseCase) CreateMaintenanceExpenditure(
	ctx context.Context,
	cmd CreateExpenditureCommand,
) (entities.Proposal, error) {
	logger := application.ResolveLogger(uc.Logger)
	assetID := strings.TrimSpace(cmd.AssetID)
	proposerID := strings.TrimSpace(cmd.ProposerID)
	if assetID == "" || proposerID == "" {
		return entities.Proposal{}, domainerrors.ErrInvalidPayload
	}
	if !cmd.Amount.IsPositive() || !cmd.Amount.Equal(cmd.Amount.Round(2)) {
		logger.Warn("expenditure payload rejected",
			"event", "governance_proposal_payload_rejected",
			"module", "vehicle-governance/governance-engine",
			"layer", "application",
			"asset_id", assetID,
			"proposer_id", proposerID,
			"amount", cmd.Amount.String(),
		)
		return entities.Proposal{}, domainerrors.ErrInvalidPayload
	}

	payload := entities.Payload{
		Kind:      entities.KindMaintenanceExpenditure,
		Amount:    cmd.Amount,
		Reference: strings.TrimSpace(cmd.Reference),
		Reason:    strings.TrimSpace(cmd.Reason),
	}
	return uc.createProposal(ctx, assetID, proposerID, entities.KindMaintenanceExpenditure, payload, cmd.Deadline)
}

func (uc *GovernanceUseCase) createProposal(
	ctx context.Context,
	assetID string,
	proposerID string,
	kind entities.ProposalKind,
	payload entities.Payload,
	deadline time.Time,
) (entities.Proposal, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	snapshot, err := uc.Ownership.GetOwnershipSnapshot(ctx, assetID)
	if err != nil {
		return entities.Proposal{}, err
	}
	if len(snapshot.Splits) == 0 {
		return entities.Proposal{}, domainerrors.ErrAssetNotFound
	}
	if !isCoOwner(snapshot, proposerID) {
		return entities.Proposal{}, domainerrors.ErrNotEligible
	}

	proposalID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Proposal{}, err
	}
	if deadline.IsZero() {
		deadline = now.Add(uc.resolveVotingWindow())
	}
	if !deadline.After(now) {
		return entities.Proposal{}, domainerrors.ErrInvalidPayload
	}

	proposal := entities.Proposal{
		ProposalID:      proposalID,
		AssetID:         assetID,
		Kind:            kind,
		ProposerID:      proposerID,
		Payload:         payload,
		Status:          entities.StatusPending,
		SnapshotVersion: snapshot.Version,
		CreatedAt:       now,
		Deadline:        deadline.UTC(),
	}
	voters := make([]entities.EligibleVoter, 0, len(snapshot.Splits))
	for _, split := range snapshot.Splits {
		voters = append(voters, entities.EligibleVoter{
			ProposalID: proposalID,
			VoterID:    split.OwnerID,
			Weight:     split.Percent,
		})
	}

	if err := uc.Proposals.CreateProposal(ctx, proposal, voters); err != nil {
		return entities.Proposal{}, err
	}
	if err := uc.appendProposalEvent(ctx, EventProposalCreated, proposal, now, map[string]any{
		"kind":     string(kind),
		"deadline": proposal.Deadline.Format(time.RFC3339),
	}); err != nil {
		return entities.Proposal{}, err
	}

	logger.Info("proposal created",
		"event", "governance_proposal_created",
		"module", "vehicle-governance/governance-engine",
		"layer", "application",
		"proposal_id", proposalID,
		"asset_id", assetID,
		"kind", string(kind),
		"proposer_id", proposerID,
		"eligible_voters", len(voters),
		"deadline", proposal.Deadline.Format(time.RFC3339),
	)
	return proposal, nil
}

// CancelProposal transitions a pending proposal to cancelled. Only the
// proposer may cancel, and only while the proposal is pending; the configured
// policy can additionally require that no votes were cast yet.
func (uc *GovernanceUseCase) CancelProposal(ctx context.Context, cmd CancelProposalCommand) error {
	logger := application.ResolveLogger(uc.Logger)
	proposalID := strings.TrimSpace(cmd.ProposalID)
	byUserID := strings.TrimSpace(cmd.ByUserID)
	if proposalID == "" || byUserID == "" {
		return domainerrors.ErrInvalidTransition
	}

	release := uc.proposalLocks.acquire(proposalID)
	defer release()

	proposal, err := uc.Proposals.GetProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	if proposal.Status.IsTerminal() {
		return domainerrors.ErrProposalFinalized
	}
	if !strings.EqualFold(proposal.ProposerID, byUserID) {
		return domainerrors.ErrInvalidTransition
	}
	if uc.CancelOnlyBeforeVotes {
		count, err := uc.Votes.CountVotes(ctx, proposalID)
		if err != nil {
			return err
		}
		if count > 0 {
			return domainerrors.ErrInvalidTransition
		}
	}

	now := uc.now()
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	envelope, err := newGovernanceEnvelope(eventID, EventProposalCancelled, proposal.AssetID, now, map[string]any{
		"proposal_id":  proposalID,
		"asset_id":     proposal.AssetID,
		"kind":         string(proposal.Kind),
		"status":       string(entities.StatusCancelled),
		"cancelled_by": byUserID,
	})
	if err != nil {
		return err
	}

	won, err := uc.Finalizations.ApplyFinalization(ctx, ports.FinalizationRecord{
		ProposalID:  proposalID,
		Status:      entities.StatusCancelled,
		Reason:      "cancelled_by_proposer",
		FinalizedAt: now,
		Events:      []ports.EventEnvelope{envelope},
	})
	if err != nil {
		return err
	}
	if !won {
		return domainerrors.ErrProposalFinalized
	}

	logger.Info("proposal cancelled",
		"event", "governance_proposal_cancelled",
		"module", "vehicle-governance/governance-engine",
		"layer", "application",
		"proposal_id", proposalID,
		"asset_id", proposal.AssetID,
		"cancelled_by", byUserID,
	)
	return nil
}

func (uc *GovernanceUseCase) appendProposalEvent(
	ctx context.Context,
	eventType string,
	proposal entities.Proposal,
	occurredAt time.Time,
	metadata map[string]any,
) error {
	// Outbox is optional for pure read/test wiring, so nil is treated as no-op.
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	data := map[string]any{
		"proposal_id": proposal.ProposalID,
		"asset_id":    proposal.AssetID,
		"proposer_id": proposal.ProposerID,
		"status":      string(proposal.Status),
		"occurred_at": occurredAt.Format(time.RFC3339),
	}
	for key, value := range metadata {
		data[key] = value
	}
	envelope, err := newGovernanceEnvelope(eventID, eventType, proposal.AssetID, occurredAt, data)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, envelope)
}

func (uc *GovernanceUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc *GovernanceUseCase) resolveVotingWindow() time.Duration {
	if uc.VotingWindow <= 0 {
		return 7 * 24 * time.Hour
	}
	return uc.VotingWindow
}

func isCoOwner(snapshot ports.OwnershipSnapshot, userID string) bool {
	for _, split := range snapshot.Splits {
		if strings.EqualFold(split.OwnerID, userID) {
			return true
		}
	}
	return false
}

func normalizeSplits(splits []entities.OwnershipSplit) []entities.OwnershipSplit {
	normalized := make([]entities.OwnershipSplit, 0, len(splits))
	for _, split := range splits {
		normalized = append(normalized, entities.OwnershipSplit{
			OwnerID: strings.TrimSpace(split.OwnerID),
			Percent: split.Percent.Round(2),
		})
	}
	return normalized
}

// validateSplits enforces the fixed-point payload contract: unique non-empty
// owners, strictly positive two-decimal percentages, and a sum of exactly
// 100.00.
func validateSplits(splits []entities.OwnershipSplit) error {
	if len(splits) == 0 {
		return domainerrors.ErrInvalidPayload
	}
	seen := make(map[string]struct{}, len(splits))
	sum := decimal.Zero
	for _, split := range splits {
		ownerID := strings.TrimSpace(split.OwnerID)
		if ownerID == "" {
			return domainerrors.ErrInvalidPayload
		}
		key := strings.ToLower(ownerID)
		if _, dup := seen[key]; dup {
			return domainerrors.ErrInvalidPayload
		}
		seen[key] = struct{}{}
		if !split.Percent.IsPositive() {
			return domainerrors.ErrInvalidPayload
		}
		if !split.Percent.Equal(split.Percent.Round(2)) {
			return domainerrors.ErrInvalidPayload
		}
		sum = sum.Add(split.Percent)
	}
	if !sum.Equal(hundredPercent) {
		return domainerrors.ErrInvalidPayload
	}
	return nil
}
