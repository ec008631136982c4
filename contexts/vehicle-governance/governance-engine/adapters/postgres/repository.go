package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wheelshare/contexts/vehicle-governance/governance-engine/domain/entities"
	domainerrors "wheelshare/contexts/vehicle-governance/governance-engine/domain/errors"
	"wheelshare/contexts/vehicle-governance/governance-engine/ports"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) CreateProposal(
	ctx context.Context,
	proposal entities.Proposal,
	voters []entities.EligibleVoter,
) error {
	row, err := proposalModelFromEntity(proposal)
	if err != nil {
		return r.logError("governance_repo_encode_proposal_failed", err,
			"proposal_id", strings.TrimSpace(proposal.ProposalID),
		)
	}
	voterRows := make([]eligibleVoterModel, 0, len(voters))
	for _, voter := range voters {
		voterRows = append(voterRows, eligibleVoterModel{
			ProposalID: strings.TrimSpace(voter.ProposalID),
			VoterID:    strings.TrimSpace(voter.VoterID),
			Weight:     voter.Weight,
		})
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if len(voterRows) > 0 {
			if err := tx.Create(&voterRows).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return r.logError("governance_repo_create_proposal_failed", err,
			"proposal_id", row.ID,
			"asset_id", row.AssetID,
		)
	}
	return nil
}

func (r *Repository) GetProposal(ctx context.Context, proposalID string) (entities.Proposal, error) {
	var row proposalModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(proposalID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Proposal{}, domainerrors.ErrProposalNotFound
		}
		return entities.Proposal{}, r.logError("governance_repo_get_proposal_failed", err,
			"proposal_id", strings.TrimSpace(proposalID),
		)
	}
	return row.toEntity()
}

func (r *Repository) ListProposalsByAsset(
	ctx context.Context,
	assetID string,
	status entities.ProposalStatus,
) ([]entities.Proposal, error) {
	tx := r.db.WithContext(ctx).Model(&proposalModel{}).
		Where("asset_id = ?", strings.TrimSpace(assetID))
	if status != "" {
		tx = tx.Where("status = ?", string(status))
	}
	var rows []proposalModel
	if err := tx.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_proposals_failed", err,
			"asset_id", strings.TrimSpace(assetID),
		)
	}
	return toProposalEntities(rows)
}

func (r *Repository) ListEligibleVoters(ctx context.Context, proposalID string) ([]entities.EligibleVoter, error) {
	var rows []eligibleVoterModel
	if err := r.db.WithContext(ctx).
		Where("proposal_id = ?", strings.TrimSpace(proposalID)).
		Order("voter_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_voters_failed", err,
			"proposal_id", strings.TrimSpace(proposalID),
		)
	}
	items := make([]entities.EligibleVoter, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.EligibleVoter{
			ProposalID: row.ProposalID,
			VoterID:    row.VoterID,
			Weight:     row.Weight,
		})
	}
	return items, nil
}

func (r *Repository) ListPendingPastDeadline(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]entities.Proposal, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []proposalModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(entities.StatusPending)).
		Where("deadline <= ?", now.UTC()).
		Order("deadline ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_due_proposals_failed", err, "limit", limit)
	}
	return toProposalEntities(rows)
}

func (r *Repository) UpsertVote(ctx context.Context, vote entities.Vote) error {
	row := voteModel{
		ProposalID: strings.TrimSpace(vote.ProposalID),
		VoterID:    strings.TrimSpace(vote.VoterID),
		Decision:   string(vote.Decision),
		Comment:    strings.TrimSpace(vote.Comment),
		CastAt:     vote.CastAt.UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "proposal_id"}, {Name: "voter_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"decision": row.Decision,
			"comment":  row.Comment,
			"cast_at":  row.CastAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("governance_repo_upsert_vote_failed", create.Error,
			"proposal_id", row.ProposalID,
			"voter_id", row.VoterID,
		)
	}
	return nil
}

func (r *Repository) ListVotes(ctx context.Context, proposalID string) ([]entities.Vote, error) {
	var rows []voteModel
	if err := r.db.WithContext(ctx).
		Where("proposal_id = ?", strings.TrimSpace(proposalID)).
		Order("cast_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_votes_failed", err,
			"proposal_id", strings.TrimSpace(proposalID),
		)
	}
	items := make([]entities.Vote, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.Vote{
			ProposalID: row.ProposalID,
			VoterID:    row.VoterID,
			Decision:   entities.VoteDecision(row.Decision),
			Comment:    row.Comment,
			CastAt:     row.CastAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) CountVotes(ctx context.Context, proposalID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&voteModel{}).
		Where("proposal_id = ?", strings.TrimSpace(proposalID)).
		Count(&count).Error; err != nil {
		return 0, r.logError("governance_repo_count_votes_failed", err,
			"proposal_id", strings.TrimSpace(proposalID),
		)
	}
	return int(count), nil
}

func (r *Repository) ListHistoryByAsset(ctx context.Context, assetID string) ([]entities.HistoryRecord, error) {
	var rows []historyModel
	if err := r.db.WithContext(ctx).
		Where("asset_id = ?", strings.TrimSpace(assetID)).
		Order("applied_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_history_failed", err,
			"asset_id", strings.TrimSpace(assetID),
		)
	}
	items := make([]entities.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetOwnershipSnapshot(ctx context.Context, assetID string) (ports.OwnershipSnapshot, error) {
	var row ownershipModel
	err := r.db.WithContext(ctx).
		Where("asset_id = ?", strings.TrimSpace(assetID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.OwnershipSnapshot{}, domainerrors.ErrAssetNotFound
		}
		return ports.OwnershipSnapshot{}, r.logError("governance_repo_get_ownership_failed", err,
			"asset_id", strings.TrimSpace(assetID),
		)
	}
	splits, err := decodeSplits(row.Splits)
	if err != nil {
		return ports.OwnershipSnapshot{}, r.logError("governance_repo_decode_ownership_failed", err,
			"asset_id", row.AssetID,
		)
	}
	return ports.OwnershipSnapshot{
		AssetID: row.AssetID,
		Splits:  splits,
		Version: row.Version,
	}, nil
}

func (r *Repository) GetBalance(ctx context.Context, assetID string) (ports.FundBalance, error) {
	var row fundModel
	err := r.db.WithContext(ctx).
		Where("asset_id = ?", strings.TrimSpace(assetID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.FundBalance{}, domainerrors.ErrAssetNotFound
		}
		return ports.FundBalance{}, r.logError("governance_repo_get_fund_failed", err,
			"asset_id", strings.TrimSpace(assetID),
		)
	}
	return ports.FundBalance{
		AssetID: row.AssetID,
		Balance: row.Balance,
		Version: row.Version,
	}, nil
}

// ApplyFinalization runs the pending-to-terminal compare-and-set plus every
// effect, history, and outbox write in one database transaction. A lost CAS
// commits nothing and reports won=false; a version-guard miss aborts the whole
// transaction so the proposal stays pending for retry.
func (r *Repository) ApplyFinalization(ctx context.Context, record ports.FinalizationRecord) (bool, error) {
	won := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cas := tx.Model(&proposalModel{}).
			Where("id = ? AND status = ?", strings.TrimSpace(record.ProposalID), string(entities.StatusPending)).
			Updates(map[string]any{
				"status":         string(record.Status),
				"outcome_reason": record.Reason,
				"finalized_at":   record.FinalizedAt.UTC(),
			})
		if cas.Error != nil {
			return cas.Error
		}
		if cas.RowsAffected == 0 {
			return nil
		}
		won = true

		if record.Ownership != nil {
			splits, err := encodeSplits(record.Ownership.Splits)
			if err != nil {
				return err
			}
			result := tx.Model(&ownershipModel{}).
				Where("asset_id = ? AND version = ?",
					strings.TrimSpace(record.Ownership.AssetID), record.Ownership.ExpectedVersion).
				Updates(map[string]any{
					"splits":  splits,
					"version": record.Ownership.ExpectedVersion + 1,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return domainerrors.ErrVersionConflict
			}
		}
		if record.Fund != nil {
			result := tx.Model(&fundModel{}).
				Where("asset_id = ? AND version = ? AND balance >= ?",
					strings.TrimSpace(record.Fund.AssetID), record.Fund.ExpectedVersion, record.Fund.Amount).
				Updates(map[string]any{
					"balance": gorm.Expr("balance - ?", record.Fund.Amount),
					"version": record.Fund.ExpectedVersion + 1,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return domainerrors.ErrVersionConflict
			}
		}
		if record.History != nil {
			row := historyModelFromEntity(*record.History)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		for _, envelope := range record.Events {
			if err := appendOutboxTx(tx, envelope); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		won = false
		return false, r.logError("governance_repo_apply_finalization_failed", err,
			"proposal_id", strings.TrimSpace(record.ProposalID),
			"status", string(record.Status),
		)
	}
	return won, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	if err := appendOutboxTx(r.db.WithContext(ctx), envelope); err != nil {
		return r.logError("governance_repo_append_outbox_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	return nil
}

func appendOutboxTx(tx *gorm.DB, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row).Error
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("governance_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "vehicle-governance/governance-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("governance repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.ProposalRepository = (*Repository)(nil)
var _ ports.VoteRepository = (*Repository)(nil)
var _ ports.HistoryRepository = (*Repository)(nil)
var _ ports.OwnershipStore = (*Repository)(nil)
var _ ports.FundStore = (*Repository)(nil)
var _ ports.FinalizationStore = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
