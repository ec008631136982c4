package commands

import (
	"encoding/json"
	"time"

	"wheelshare/contexts/vehicle-governance/governance-engine/ports"
)

const (
	EventProposalCreated   = "governance.proposal.created"
	EventVoteCast          = "governance.vote.cast"
	EventProposalFinalized = "governance.proposal.finalized"
	EventProposalCancelled = "governance.proposal.cancelled"
)

func newGovernanceEnvelope(
	eventID string,
	eventType string,
	assetID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	// Governance events are partitioned by asset so consumers observe one
	// asset's decisions in order.
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "governance-engine",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "asset_id",
		PartitionKey:     assetID,
		Data:             payload,
	}, nil
}
