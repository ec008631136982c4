package workers

import (
	"context"
	"log/slog"
	"time"

	application "wheelshare/contexts/vehicle-governance/governance-engine/application"
	"wheelshare/contexts/vehicle-governance/governance-engine/application/commands"
	"wheelshare/contexts/vehicle-governance/governance-engine/ports"
)

// ExpirationSweeper finalizes pending proposals whose deadline has elapsed,
// through the same finalize path vote-triggered finalization uses. Re-running
// on an already-finalized proposal is a no-op, so the sweeper tolerates racing
// a vote-cast finalization.
type ExpirationSweeper struct {
	Proposals ports.ProposalRepository
	Engine    *commands.GovernanceUseCase
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

func (s ExpirationSweeper) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(s.Logger)
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}
	limit := s.BatchSize
	if limit <= 0 {
		limit = 100
	}

	due, err := s.Proposals.ListPendingPastDeadline(ctx, now, limit)
	if err != nil {
		logger.Error("expiration sweep query failed",
			"event", "governance_sweep_query_failed",
			"module", "vehicle-governance/governance-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(due) == 0 {
		logger.Debug("expiration sweep found no due proposals",
			"event", "governance_sweep_noop",
			"module", "vehicle-governance/governance-engine",
			"layer", "worker",
		)
		return nil
	}

	for _, proposal := range due {
		if err := s.Engine.FinalizeExpired(ctx, proposal.ProposalID); err != nil {
			logger.Error("expiration sweep finalize failed",
				"event", "governance_sweep_finalize_failed",
				"module", "vehicle-governance/governance-engine",
				"layer", "worker",
				"proposal_id", proposal.ProposalID,
				"asset_id", proposal.AssetID,
				"error", err.Error(),
			)
			return err
		}
	}

	logger.Info("expiration sweep completed",
		"event", "governance_sweep_completed",
		"module", "vehicle-governance/governance-engine",
		"layer", "worker",
		"finalized_count", len(due),
	)
	return nil
}
