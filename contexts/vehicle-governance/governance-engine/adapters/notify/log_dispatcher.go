package notify

import (
	"context"
	"log/slog"

	"wheelshare/contexts/vehicle-governance/governance-engine/ports"
)

// LogDispatcher emits each notification to the structured log. It stands in
// for the push/email channel until one is wired.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d LogDispatcher) Notify(_ context.Context, voterIDs []string, event ports.NotificationEvent) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("governance notification",
		"event", "governance_notification",
		"module", "vehicle-governance/governance-engine",
		"layer", "adapter",
		"kind", event.Kind,
		"asset_id", event.AssetID,
		"proposal_id", event.ProposalID,
		"status", event.Status,
		"reason", event.Reason,
		"recipients", len(voterIDs),
	)
	return nil
}

var _ ports.NotificationDispatcher = LogDispatcher{}
