package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"wheelshare/contexts/vehicle-governance/governance-engine/domain/entities"
)

type ProposalRepository interface {
	// CreateProposal persists the proposal together with its eligible-voter
	// snapshot in one unit.
	CreateProposal(ctx context.Context, proposal entities.Proposal, voters []entities.EligibleVoter) error
	GetProposal(ctx context.Context, proposalID string) (entities.Proposal, error)
	ListProposalsByAsset(ctx context.Context, assetID string, status entities.ProposalStatus) ([]entities.Proposal, error)
	ListEligibleVoters(ctx context.Context, proposalID string) ([]entities.EligibleVoter, error)
	// ListPendingPastDeadline returns pending proposals whose deadline is at or
	// before now, oldest deadline first.
	ListPendingPastDeadline(ctx context.Context, now time.Time, limit int) ([]entities.Proposal, error)
}

type VoteRepository interface {
	// UpsertVote stores the voter's latest decision; re-casting before
	// finalization overwrites the prior row.
	UpsertVote(ctx context.Context, vote entities.Vote) error
	ListVotes(ctx context.Context, proposalID string) ([]entities.Vote, error)
	CountVotes(ctx context.Context, proposalID string) (int, error)
}

type HistoryRepository interface {
	ListHistoryByAsset(ctx context.Context, assetID string) ([]entities.HistoryRecord, error)
}

// OwnershipSnapshot is the current co-owner split table for an asset plus the
// version used for optimistic concurrency on effect application.
type OwnershipSnapshot struct {
	AssetID string
	Splits  []entities.OwnershipSplit
	Version int64
}

type OwnershipStore interface {
	GetOwnershipSnapshot(ctx context.Context, assetID string) (OwnershipSnapshot, error)
}

// FundBalance is the shared maintenance fund state for an asset.
type FundBalance struct {
	AssetID string
	Balance decimal.Decimal
	Version int64
}

type FundStore interface {
	GetBalance(ctx context.Context, assetID string) (FundBalance, error)
}

// OwnershipWrite replaces the asset's split table, guarded by the version read
// when the write was prepared.
type OwnershipWrite struct {
	AssetID         string
	Splits          []entities.OwnershipSplit
	ExpectedVersion int64
}

// FundWrite debits the asset's fund, guarded by the version read when the
// write was prepared.
type FundWrite struct {
	AssetID         string
	Amount          decimal.Decimal
	ExpectedVersion int64
}

// FinalizationRecord captures everything a winning finalization writes: the
// terminal status transition plus optional effect, history, and outbox rows.
type FinalizationRecord struct {
	ProposalID  string
	Status      entities.ProposalStatus
	Reason      string
	FinalizedAt time.Time
	Ownership   *OwnershipWrite
	Fund        *FundWrite
	History     *entities.HistoryRecord
	Events      []EventEnvelope
}

type FinalizationStore interface {
	// ApplyFinalization compare-and-sets the proposal from pending to the
	// record's terminal status and applies the record's writes in one atomic
	// unit. It returns false with no error when the proposal is already
	// terminal, so concurrent finalizers degrade to a no-op.
	ApplyFinalization(ctx context.Context, record FinalizationRecord) (bool, error)
}

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string, consumerGroup string, handler func(context.Context, EventEnvelope) error) error
}

// NotificationEvent is the best-effort payload handed to the notification
// collaborator after a committed state change.
type NotificationEvent struct {
	Kind       string
	AssetID    string
	ProposalID string
	Status     string
	Reason     string
}

type NotificationDispatcher interface {
	Notify(ctx context.Context, voterIDs []string, event NotificationEvent) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
