package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wheelshare/contexts/vehicle-governance/governance-engine/domain/entities"
	domainerrors "wheelshare/contexts/vehicle-governance/governance-engine/domain/errors"
	"wheelshare/contexts/vehicle-governance/governance-engine/ports"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

type ownershipRecord struct {
	splits  []entities.OwnershipSplit
	version int64
}

type fundRecord struct {
	balance decimal.Decimal
	version int64
}

// Store is the in-memory implementation of every governance port. One lock
// guards all maps, which makes ApplyFinalization trivially atomic.
type Store struct {
	mu sync.RWMutex

	proposals map[string]entities.Proposal
	voters    map[string][]entities.EligibleVoter
	votes     map[string]map[string]entities.Vote
	history   map[string][]entities.HistoryRecord
	outbox    map[string]outboxRecord
	ownership map[string]ownershipRecord
	funds     map[string]fundRecord
}

func NewStore() *Store {
	return &Store{
		proposals: make(map[string]entities.Proposal),
		voters:    make(map[string][]entities.EligibleVoter),
		votes:     make(map[string]map[string]entities.Vote),
		history:   make(map[string][]entities.HistoryRecord),
		outbox:    make(map[string]outboxRecord),
		ownership: make(map[string]ownershipRecord),
		funds:     make(map[string]fundRecord),
	}
}

// SetOwnership seeds an asset's co-owner table at version 1.
func (s *Store) SetOwnership(assetID string, splits []entities.OwnershipSplit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownership[strings.TrimSpace(assetID)] = ownershipRecord{
		splits:  cloneSplits(splits),
		version: 1,
	}
}

// SetFundBalance seeds an asset's maintenance fund at version 1.
func (s *Store) SetFundBalance(assetID string, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funds[strings.TrimSpace(assetID)] = fundRecord{
		balance: balance,
		version: 1,
	}
}

func (s *Store) CreateProposal(_ context.Context, proposal entities.Proposal, voters []entities.EligibleVoter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	proposalID := strings.TrimSpace(proposal.ProposalID)
	if _, exists := s.proposals[proposalID]; exists {
		return domainerrors.ErrConflict
	}
	s.proposals[proposalID] = proposal
	s.voters[proposalID] = append([]entities.EligibleVoter(nil), voters...)
	return nil
}

func (s *Store) GetProposal(_ context.Context, proposalID string) (entities.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	proposal, ok := s.proposals[strings.TrimSpace(proposalID)]
	if !ok {
		return entities.Proposal{}, domainerrors.ErrProposalNotFound
	}
	return proposal, nil
}

func (s *Store) ListProposalsByAsset(
	_ context.Context,
	assetID string,
	status entities.ProposalStatus,
) ([]entities.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assetID = strings.TrimSpace(assetID)
	items := make([]entities.Proposal, 0)
	for _, proposal := range s.proposals {
		if proposal.AssetID != assetID {
			continue
		}
		if status != "" && proposal.Status != status {
			continue
		}
		items = append(items, proposal)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) ListEligibleVoters(_ context.Context, proposalID string) ([]entities.EligibleVoter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	voters, ok := s.voters[strings.TrimSpace(proposalID)]
	if !ok {
		return nil, domainerrors.ErrProposalNotFound
	}
	return append([]entities.EligibleVoter(nil), voters...), nil
}

func (s *Store) ListPendingPastDeadline(_ context.Context, now time.Time, limit int) ([]entities.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	items := make([]entities.Proposal, 0)
	for _, proposal := range s.proposals {
		if proposal.Status != entities.StatusPending {
			continue
		}
		if proposal.Deadline.After(now) {
			continue
		}
		items = append(items, proposal)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Deadline.Before(items[j].Deadline)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) UpsertVote(_ context.Context, vote entities.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	proposalID := strings.TrimSpace(vote.ProposalID)
	byVoter, ok := s.votes[proposalID]
	if !ok {
		byVoter = make(map[string]entities.Vote)
		s.votes[proposalID] = byVoter
	}
	byVoter[strings.TrimSpace(vote.VoterID)] = vote
	return nil
}

func (s *Store) ListVotes(_ context.Context, proposalID string) ([]entities.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Vote, 0)
	for _, vote := range s.votes[strings.TrimSpace(proposalID)] {
		items = append(items, vote)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CastAt.Before(items[j].CastAt)
	})
	return items, nil
}

func (s *Store) CountVotes(_ context.Context, proposalID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.votes[strings.TrimSpace(proposalID)]), nil
}

func (s *Store) ListHistoryByAsset(_ context.Context, assetID string) ([]entities.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.history[strings.TrimSpace(assetID)]
	items := append([]entities.HistoryRecord(nil), records...)
	sort.Slice(items, func(i, j int) bool {
		return items[i].AppliedAt.Before(items[j].AppliedAt)
	})
	return items, nil
}

func (s *Store) GetOwnershipSnapshot(_ context.Context, assetID string) (ports.OwnershipSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.ownership[strings.TrimSpace(assetID)]
	if !ok {
		return ports.OwnershipSnapshot{}, domainerrors.ErrAssetNotFound
	}
	return ports.OwnershipSnapshot{
		AssetID: strings.TrimSpace(assetID),
		Splits:  cloneSplits(record.splits),
		Version: record.version,
	}, nil
}

func (s *Store) GetBalance(_ context.Context, assetID string) (ports.FundBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.funds[strings.TrimSpace(assetID)]
	if !ok {
		return ports.FundBalance{}, domainerrors.ErrAssetNotFound
	}
	return ports.FundBalance{
		AssetID: strings.TrimSpace(assetID),
		Balance: record.balance,
		Version: record.version,
	}, nil
}

// ApplyFinalization performs the pending-to-terminal compare-and-set plus all
// of the record's writes under the store lock, so the whole finalization is
// one atomic unit: either every write lands or none does.
func (s *Store) ApplyFinalization(_ context.Context, record ports.FinalizationRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proposalID := strings.TrimSpace(record.ProposalID)
	proposal, ok := s.proposals[proposalID]
	if !ok {
		return false, domainerrors.ErrProposalNotFound
	}
	if proposal.Status != entities.StatusPending {
		return false, nil
	}

	// Validate every guarded write before mutating anything.
	if record.Ownership != nil {
		current, ok := s.ownership[strings.TrimSpace(record.Ownership.AssetID)]
		if !ok {
			return false, domainerrors.ErrAssetNotFound
		}
		if current.version != record.Ownership.ExpectedVersion {
			return false, domainerrors.ErrVersionConflict
		}
	}
	if record.Fund != nil {
		current, ok := s.funds[strings.TrimSpace(record.Fund.AssetID)]
		if !ok {
			return false, domainerrors.ErrAssetNotFound
		}
		if current.version != record.Fund.ExpectedVersion {
			return false, domainerrors.ErrVersionConflict
		}
		if current.balance.LessThan(record.Fund.Amount) {
			return false, domainerrors.ErrInsufficientFunds
		}
	}

	if record.Ownership != nil {
		assetID := strings.TrimSpace(record.Ownership.AssetID)
		current := s.ownership[assetID]
		s.ownership[assetID] = ownershipRecord{
			splits:  cloneSplits(record.Ownership.Splits),
			version: current.version + 1,
		}
	}
	if record.Fund != nil {
		assetID := strings.TrimSpace(record.Fund.AssetID)
		current := s.funds[assetID]
		s.funds[assetID] = fundRecord{
			balance: current.balance.Sub(record.Fund.Amount),
			version: current.version + 1,
		}
	}
	if record.History != nil {
		assetID := strings.TrimSpace(record.History.AssetID)
		s.history[assetID] = append(s.history[assetID], *record.History)
	}
	for _, envelope := range record.Events {
		if err := s.appendOutboxLocked(envelope); err != nil {
			return false, err
		}
	}

	finalizedAt := record.FinalizedAt.UTC()
	proposal.Status = record.Status
	proposal.OutcomeReason = record.Reason
	proposal.FinalizedAt = &finalizedAt
	s.proposals[proposalID] = proposal
	return true, nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendOutboxLocked(envelope)
}

func (s *Store) appendOutboxLocked(envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func cloneSplits(splits []entities.OwnershipSplit) []entities.OwnershipSplit {
	return append([]entities.OwnershipSplit(nil), splits...)
}

var _ ports.ProposalRepository = (*Store)(nil)
var _ ports.VoteRepository = (*Store)(nil)
var _ ports.HistoryRepository = (*Store)(nil)
var _ ports.OwnershipStore = (*Store)(nil)
var _ ports.FundStore = (*Store)(nil)
var _ ports.FinalizationStore = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
