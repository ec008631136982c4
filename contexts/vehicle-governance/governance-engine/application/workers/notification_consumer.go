package workers

import (
	"context"
	"encoding/json"
	"log/slog"

	application "wheelshare/contexts/vehicle-governance/governance-engine/application"
	"wheelshare/contexts/vehicle-governance/governance-engine/application/commands"
	"wheelshare/contexts/vehicle-governance/governance-engine/ports"
)

// NotificationConsumer subscribes to committed governance events and fans them
// out to the notification collaborator. Dispatch is best-effort: a failed
// notification is logged and the event is still acknowledged, so notification
// outages never block finalization.
type NotificationConsumer struct {
	Subscriber    ports.EventSubscriber
	Proposals     ports.ProposalRepository
	Notifier      ports.NotificationDispatcher
	ConsumerGroup string
	Logger        *slog.Logger
}

type finalizationEventData struct {
	ProposalID string `json:"proposal_id"`
	AssetID    string `json:"asset_id"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
}

func (c NotificationConsumer) Start(ctx context.Context) error {
	for _, topic := range []string{commands.EventProposalFinalized, commands.EventProposalCancelled} {
		if err := c.Subscriber.Subscribe(ctx, topic, c.ConsumerGroup, c.handle); err != nil {
			return err
		}
	}
	return nil
}

func (c NotificationConsumer) handle(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)

	var data finalizationEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		logger.Error("governance notification decode failed",
			"event", "governance_notify_decode_failed",
			"module", "vehicle-governance/governance-engine",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}

	eligible, err := c.Proposals.ListEligibleVoters(ctx, data.ProposalID)
	if err != nil {
		logger.Error("governance notification voter lookup failed",
			"event", "governance_notify_lookup_failed",
			"module", "vehicle-governance/governance-engine",
			"layer", "worker",
			"proposal_id", data.ProposalID,
			"error", err.Error(),
		)
		return err
	}
	voterIDs := make([]string, 0, len(eligible))
	for _, voter := range eligible {
		voterIDs = append(voterIDs, voter.VoterID)
	}

	notifyErr := c.Notifier.Notify(ctx, voterIDs, ports.NotificationEvent{
		Kind:       event.EventType,
		AssetID:    data.AssetID,
		ProposalID: data.ProposalID,
		Status:     data.Status,
		Reason:     data.Reason,
	})
	if notifyErr != nil {
		logger.Warn("governance notification dispatch failed",
			"event", "governance_notify_dispatch_failed",
			"module", "vehicle-governance/governance-engine",
			"layer", "worker",
			"proposal_id", data.ProposalID,
			"recipients", len(voterIDs),
			"error", notifyErr.Error(),
		)
		return nil
	}

	logger.Info("governance notification dispatched",
		"event", "governance_notify_dispatched",
		"module", "vehicle-governance/governance-engine",
		"layer", "worker",
		"proposal_id", data.ProposalID,
		"event_type", event.EventType,
		"recipients", len(voterIDs),
	)
	return nil
}
