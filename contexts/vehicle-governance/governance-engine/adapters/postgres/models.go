package postgresadapter

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wheelshare/contexts/vehicle-governance/governance-engine/domain/entities"
)

type proposalModel struct {
	ID              string     `gorm:"column:id;primaryKey"`
	AssetID         string     `gorm:"column:asset_id"`
	Kind            string     `gorm:"column:kind"`
	ProposerID      string     `gorm:"column:proposer_id"`
	Payload         []byte     `gorm:"column:payload"`
	Status          string     `gorm:"column:status"`
	SnapshotVersion int64      `gorm:"column:snapshot_version"`
	OutcomeReason   string     `gorm:"column:outcome_reason"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	Deadline        time.Time  `gorm:"column:deadline"`
	FinalizedAt     *time.Time `gorm:"column:finalized_at"`
}

func (proposalModel) TableName() string {
	return "governance_proposals"
}

// payloadDoc is the JSON shape of the kind-specific payload column.
type payloadDoc struct {
	Kind      string           `json:"kind"`
	Splits    []splitDoc       `json:"splits,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Reference string           `json:"reference,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

type splitDoc struct {
	OwnerID string          `json:"owner_id"`
	Percent decimal.Decimal `json:"percent"`
}

func proposalModelFromEntity(proposal entities.Proposal) (proposalModel, error) {
	doc := payloadDoc{
		Kind:      string(proposal.Payload.Kind),
		Reference: proposal.Payload.Reference,
		Reason:    proposal.Payload.Reason,
	}
	for _, split := range proposal.Payload.Splits {
		doc.Splits = append(doc.Splits, splitDoc{OwnerID: split.OwnerID, Percent: split.Percent})
	}
	if proposal.Payload.Kind == entities.KindMaintenanceExpenditure {
		amount := proposal.Payload.Amount
		doc.Amount = &amount
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return proposalModel{}, err
	}

	row := proposalModel{
		ID:              strings.TrimSpace(proposal.ProposalID),
		AssetID:         strings.TrimSpace(proposal.AssetID),
		Kind:            string(proposal.Kind),
		ProposerID:      strings.TrimSpace(proposal.ProposerID),
		Payload:         payload,
		Status:          string(proposal.Status),
		SnapshotVersion: proposal.SnapshotVersion,
		OutcomeReason:   proposal.OutcomeReason,
		CreatedAt:       proposal.CreatedAt.UTC(),
		Deadline:        proposal.Deadline.UTC(),
	}
	if proposal.FinalizedAt != nil {
		finalizedAt := proposal.FinalizedAt.UTC()
		row.FinalizedAt = &finalizedAt
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return row, nil
}

func (m proposalModel) toEntity() (entities.Proposal, error) {
	var doc payloadDoc
	if err := json.Unmarshal(m.Payload, &doc); err != nil {
		return entities.Proposal{}, err
	}
	payload := entities.Payload{
		Kind:      entities.ProposalKind(doc.Kind),
		Reference: doc.Reference,
		Reason:    doc.Reason,
	}
	for _, split := range doc.Splits {
		payload.Splits = append(payload.Splits, entities.OwnershipSplit{
			OwnerID: split.OwnerID,
			Percent: split.Percent,
		})
	}
	if doc.Amount != nil {
		payload.Amount = *doc.Amount
	}

	proposal := entities.Proposal{
		ProposalID:      m.ID,
		AssetID:         m.AssetID,
		Kind:            entities.ProposalKind(m.Kind),
		ProposerID:      m.ProposerID,
		Payload:         payload,
		Status:          entities.ProposalStatus(m.Status),
		SnapshotVersion: m.SnapshotVersion,
		OutcomeReason:   m.OutcomeReason,
		CreatedAt:       m.CreatedAt.UTC(),
		Deadline:        m.Deadline.UTC(),
	}
	if m.FinalizedAt != nil {
		finalizedAt := m.FinalizedAt.UTC()
		proposal.FinalizedAt = &finalizedAt
	}
	return proposal, nil
}

func toProposalEntities(rows []proposalModel) ([]entities.Proposal, error) {
	items := make([]entities.Proposal, 0, len(rows))
	for _, row := range rows {
		proposal, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		items = append(items, proposal)
	}
	return items, nil
}

type eligibleVoterModel struct {
	ProposalID string          `gorm:"column:proposal_id;primaryKey"`
	VoterID    string          `gorm:"column:voter_id;primaryKey"`
	Weight     decimal.Decimal `gorm:"column:weight;type:numeric(5,2)"`
}

func (eligibleVoterModel) TableName() string {
	return "governance_eligible_voters"
}

type voteModel struct {
	ProposalID string    `gorm:"column:proposal_id;primaryKey"`
	VoterID    string    `gorm:"column:voter_id;primaryKey"`
	Decision   string    `gorm:"column:decision"`
	Comment    string    `gorm:"column:comment"`
	CastAt     time.Time `gorm:"column:cast_at"`
}

func (voteModel) TableName() string {
	return "governance_votes"
}

type historyModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	AssetID    string    `gorm:"column:asset_id"`
	ProposalID string    `gorm:"column:proposal_id"`
	ChangeType string    `gorm:"column:change_type"`
	Before     []byte    `gorm:"column:before_state"`
	After      []byte    `gorm:"column:after_state"`
	AppliedAt  time.Time `gorm:"column:applied_at"`
	AppliedBy  string    `gorm:"column:applied_by"`
}

func (historyModel) TableName() string {
	return "governance_history"
}

func historyModelFromEntity(record entities.HistoryRecord) historyModel {
	return historyModel{
		ID:         strings.TrimSpace(record.RecordID),
		AssetID:    strings.TrimSpace(record.AssetID),
		ProposalID: strings.TrimSpace(record.ProposalID),
		ChangeType: record.ChangeType,
		Before:     append([]byte(nil), record.Before...),
		After:      append([]byte(nil), record.After...),
		AppliedAt:  record.AppliedAt.UTC(),
		AppliedBy:  record.AppliedBy,
	}
}

func (m historyModel) toEntity() entities.HistoryRecord {
	return entities.HistoryRecord{
		RecordID:   m.ID,
		AssetID:    m.AssetID,
		ProposalID: m.ProposalID,
		ChangeType: m.ChangeType,
		Before:     append([]byte(nil), m.Before...),
		After:      append([]byte(nil), m.After...),
		AppliedAt:  m.AppliedAt.UTC(),
		AppliedBy:  m.AppliedBy,
	}
}

type ownershipModel struct {
	AssetID string `gorm:"column:asset_id;primaryKey"`
	Splits  []byte `gorm:"column:splits"`
	Version int64  `gorm:"column:version"`
}

func (ownershipModel) TableName() string {
	return "asset_ownership"
}

type fundModel struct {
	AssetID string          `gorm:"column:asset_id;primaryKey"`
	Balance decimal.Decimal `gorm:"column:balance;type:numeric(14,2)"`
	Version int64           `gorm:"column:version"`
}

func (fundModel) TableName() string {
	return "asset_funds"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "governance_outbox"
}

func encodeSplits(splits []entities.OwnershipSplit) ([]byte, error) {
	docs := make([]splitDoc, 0, len(splits))
	for _, split := range splits {
		docs = append(docs, splitDoc{OwnerID: split.OwnerID, Percent: split.Percent})
	}
	return json.Marshal(docs)
}

func decodeSplits(payload []byte) ([]entities.OwnershipSplit, error) {
	var docs []splitDoc
	if err := json.Unmarshal(payload, &docs); err != nil {
		return nil, err
	}
	splits := make([]entities.OwnershipSplit, 0, len(docs))
	for _, doc := range docs {
		splits = append(splits, entities.OwnershipSplit{
			OwnerID: doc.OwnerID,
			Percent: doc.Percent,
		})
	}
	return splits, nil
}
