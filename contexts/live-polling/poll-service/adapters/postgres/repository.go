package postgresadapter

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"livepoll/contexts/live-polling/poll-service/domain/entities"
	domainerrors "livepoll/contexts/live-polling/poll-service/domain/errors"
	"livepoll/contexts/live-polling/poll-service/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the relational ledger: polls, options and votes. It also
// serves as the fallback score store (option_scores) when Redis is not
// configured.
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

// Migrate creates or updates the ledger tables and indexes.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(
		&pollModel{},
		&pollOptionModel{},
		&voteModel{},
		&optionScoreModel{},
	); err != nil {
		return r.logError("polling_repo_migrate_failed", err)
	}
	return nil
}

func (r *Repository) CreatePoll(ctx context.Context, poll entities.Poll) error {
	row := pollModelFromEntity(poll)
	options := make([]pollOptionModel, 0, len(poll.Options))
	for _, option := range poll.Options {
		options = append(options, pollOptionModelFromEntity(option))
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if len(options) == 0 {
			return nil
		}
		return tx.Create(&options).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrInvalidPollInput
		}
		return r.logError("polling_repo_create_poll_failed", err,
			"poll_id", strings.TrimSpace(poll.PollID),
		)
	}
	return nil
}

func (r *Repository) GetPoll(ctx context.Context, pollID string) (entities.Poll, error) {
	pollID = strings.TrimSpace(pollID)
	var row pollModel
	err := r.db.WithContext(ctx).
		Where("id = ?", pollID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Poll{}, domainerrors.ErrPollNotFound
		}
		return entities.Poll{}, r.logError("polling_repo_get_poll_failed", err, "poll_id", pollID)
	}

	var options []pollOptionModel
	if err := r.db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Order("position ASC").
		Find(&options).Error; err != nil {
		return entities.Poll{}, r.logError("polling_repo_list_options_failed", err, "poll_id", pollID)
	}

	poll := row.toEntity()
	poll.Options = make([]entities.Option, 0, len(options))
	for _, option := range options {
		poll.Options = append(poll.Options, option.toEntity())
	}
	return poll, nil
}

func (r *Repository) ListPollIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&pollModel{}).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, r.logError("polling_repo_list_polls_failed", err)
	}
	return ids, nil
}

func (r *Repository) GetVoteBySession(ctx context.Context, sessionID string, pollID string) (entities.Vote, bool, error) {
	var row voteModel
	err := r.db.WithContext(ctx).
		Where("session_id = ?", strings.TrimSpace(sessionID)).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Vote{}, false, nil
		}
		return entities.Vote{}, false, r.logError("polling_repo_get_vote_by_session_failed", err,
			"poll_id", strings.TrimSpace(pollID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) CreateVote(ctx context.Context, vote entities.Vote) error {
	row := voteModelFromEntity(vote)
	pendingSince := time.Now().UTC()
	row.PendingSince = &pendingSince
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrVoteConflict
		}
		return r.logError("polling_repo_create_vote_failed", err,
			"vote_id", row.ID,
			"poll_id", row.PollID,
			"option_id", row.OptionID,
		)
	}
	return nil
}

// ClaimVote takes the pending mark with one conditional UPDATE, so two
// writers moving the same vote cannot both pass.
func (r *Repository) ClaimVote(ctx context.Context, voteID string) error {
	voteID = strings.TrimSpace(voteID)
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&voteModel{}).
		Where("id = ?", voteID).
		Where("pending_since IS NULL OR pending_since <= ?", now.Add(-entities.PendingVoteTTL)).
		Update("pending_since", now)
	if result.Error != nil {
		return r.logError("polling_repo_claim_vote_failed", result.Error, "vote_id", voteID)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&voteModel{}).
		Where("id = ?", voteID).
		Count(&count).Error; err != nil {
		return r.logError("polling_repo_claim_vote_failed", err, "vote_id", voteID)
	}
	if count == 0 {
		return domainerrors.ErrVoteNotFound
	}
	return domainerrors.ErrVoteConflict
}

func (r *Repository) SettleVote(ctx context.Context, voteID string) error {
	voteID = strings.TrimSpace(voteID)
	result := r.db.WithContext(ctx).
		Model(&voteModel{}).
		Where("id = ?", voteID).
		Update("pending_since", nil)
	if result.Error != nil {
		return r.logError("polling_repo_settle_vote_failed", result.Error, "vote_id", voteID)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrVoteNotFound
	}
	return nil
}

func (r *Repository) HasPendingVotes(ctx context.Context, pollID string) (bool, error) {
	pollID = strings.TrimSpace(pollID)
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&voteModel{}).
		Where("poll_id = ?", pollID).
		Where("pending_since > ?", time.Now().UTC().Add(-entities.PendingVoteTTL)).
		Count(&count).Error; err != nil {
		return false, r.logError("polling_repo_pending_votes_failed", err, "poll_id", pollID)
	}
	return count > 0, nil
}

func (r *Repository) DeleteVote(ctx context.Context, voteID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(voteID)).
		Delete(&voteModel{})
	if result.Error != nil {
		return r.logError("polling_repo_delete_vote_failed", result.Error,
			"vote_id", strings.TrimSpace(voteID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrVoteNotFound
	}
	return nil
}

func (r *Repository) CountVotesByOption(ctx context.Context, pollID string) (map[string]int64, error) {
	type optionCount struct {
		OptionID string
		Total    int64
	}
	var rows []optionCount
	if err := r.db.WithContext(ctx).
		Model(&voteModel{}).
		Select("option_id, COUNT(*) AS total").
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Group("option_id").
		Scan(&rows).Error; err != nil {
		return nil, r.logError("polling_repo_count_votes_failed", err,
			"poll_id", strings.TrimSpace(pollID),
		)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.OptionID] = row.Total
	}
	return counts, nil
}

// IncrementScore upserts the option row and adds delta in one statement, so
// concurrent increments on the same option never lose an update.
func (r *Repository) IncrementScore(ctx context.Context, pollID string, optionID string, delta int64) (int64, error) {
	row := optionScoreModel{
		PollID:    strings.TrimSpace(pollID),
		OptionID:  strings.TrimSpace(optionID),
		Score:     delta,
		UpdatedAt: time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "poll_id"}, {Name: "option_id"}},
				DoUpdates: clause.Assignments(map[string]any{
					"score":      gorm.Expr("option_scores.score + ?", delta),
					"updated_at": row.UpdatedAt,
				}),
			},
			clause.Returning{Columns: []clause.Column{{Name: "score"}}},
		).
		Create(&row).
		Error
	if err != nil {
		return 0, r.logError("polling_repo_increment_score_failed", err,
			"poll_id", row.PollID,
			"option_id", row.OptionID,
		)
	}
	return row.Score, nil
}

func (r *Repository) ListScores(ctx context.Context, pollID string) (map[string]int64, error) {
	var rows []optionScoreModel
	if err := r.db.WithContext(ctx).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Find(&rows).Error; err != nil {
		return nil, r.logError("polling_repo_list_scores_failed", err,
			"poll_id", strings.TrimSpace(pollID),
		)
	}
	scores := make(map[string]int64, len(rows))
	for _, row := range rows {
		scores[row.OptionID] = row.Score
	}
	return scores, nil
}

// ReplaceScores runs at REPEATABLE READ with the poll's rows locked: an
// increment committed after the snapshot either shows up as a mismatch or
// aborts the transaction with a serialization failure.
func (r *Repository) ReplaceScores(ctx context.Context, pollID string, expected map[string]int64, scores map[string]int64) error {
	pollID = strings.TrimSpace(pollID)
	now := time.Now().UTC()
	rows := make([]optionScoreModel, 0, len(scores))
	optionIDs := make([]string, 0, len(scores))
	for optionID, score := range scores {
		rows = append(rows, optionScoreModel{
			PollID:    pollID,
			OptionID:  optionID,
			Score:     score,
			UpdatedAt: now,
		})
		optionIDs = append(optionIDs, optionID)
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked []optionScoreModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("poll_id = ?", pollID).
			Find(&locked).Error; err != nil {
			return err
		}
		current := make(map[string]int64, len(locked))
		for _, row := range locked {
			current[row.OptionID] = row.Score
		}
		if !entities.SameScores(current, expected) {
			return domainerrors.ErrScoreConflict
		}

		stale := tx.Where("poll_id = ?", pollID)
		if len(optionIDs) > 0 {
			stale = stale.Where("option_id NOT IN ?", optionIDs)
		}
		if err := stale.Delete(&optionScoreModel{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "poll_id"}, {Name: "option_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "updated_at"}),
		}).Create(&rows).Error
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		if errors.Is(err, domainerrors.ErrScoreConflict) || isSerializationFailure(err) {
			return domainerrors.ErrScoreConflict
		}
		return r.logError("polling_repo_replace_scores_failed", err, "poll_id", pollID)
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "live-polling/poll-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("polling repository operation failed", fields...)
	return err
}

type pollModel struct {
	ID        string    `gorm:"column:id;primaryKey;type:uuid"`
	Title     string    `gorm:"column:title;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (pollModel) TableName() string {
	return "polls"
}

func pollModelFromEntity(poll entities.Poll) pollModel {
	return pollModel{
		ID:        strings.TrimSpace(poll.PollID),
		Title:     poll.Title,
		CreatedAt: poll.CreatedAt.UTC(),
	}
}

func (m pollModel) toEntity() entities.Poll {
	return entities.Poll{
		PollID:    m.ID,
		Title:     m.Title,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

type pollOptionModel struct {
	ID       string `gorm:"column:id;primaryKey;type:uuid"`
	PollID   string `gorm:"column:poll_id;type:uuid;not null;index:idx_poll_options_poll"`
	Title    string `gorm:"column:title;not null"`
	Position int    `gorm:"column:position;not null"`
}

func (pollOptionModel) TableName() string {
	return "poll_options"
}

func pollOptionModelFromEntity(option entities.Option) pollOptionModel {
	return pollOptionModel{
		ID:       strings.TrimSpace(option.OptionID),
		PollID:   strings.TrimSpace(option.PollID),
		Title:    option.Title,
		Position: option.Position,
	}
}

func (m pollOptionModel) toEntity() entities.Option {
	return entities.Option{
		OptionID: m.ID,
		PollID:   m.PollID,
		Title:    m.Title,
		Position: m.Position,
	}
}

type voteModel struct {
	ID           string     `gorm:"column:id;primaryKey;type:uuid"`
	SessionID    string     `gorm:"column:session_id;not null;uniqueIndex:idx_votes_session_poll"`
	PollID       string     `gorm:"column:poll_id;type:uuid;not null;uniqueIndex:idx_votes_session_poll;index:idx_votes_poll"`
	OptionID     string     `gorm:"column:option_id;type:uuid;not null"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	PendingSince *time.Time `gorm:"column:pending_since"`
}

func (voteModel) TableName() string {
	return "votes"
}

func voteModelFromEntity(vote entities.Vote) voteModel {
	return voteModel{
		ID:        strings.TrimSpace(vote.VoteID),
		SessionID: strings.TrimSpace(vote.SessionID),
		PollID:    strings.TrimSpace(vote.PollID),
		OptionID:  strings.TrimSpace(vote.OptionID),
		CreatedAt: vote.CreatedAt.UTC(),
	}
}

func (m voteModel) toEntity() entities.Vote {
	vote := entities.Vote{
		VoteID:    m.ID,
		SessionID: m.SessionID,
		PollID:    m.PollID,
		OptionID:  m.OptionID,
		CreatedAt: m.CreatedAt.UTC(),
	}
	if m.PendingSince != nil {
		vote.PendingSince = m.PendingSince.UTC()
	}
	return vote
}

type optionScoreModel struct {
	PollID    string    `gorm:"column:poll_id;primaryKey;type:uuid"`
	OptionID  string    `gorm:"column:option_id;primaryKey;type:uuid"`
	Score     int64     `gorm:"column:score;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (optionScoreModel) TableName() string {
	return "option_scores"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

var _ ports.PollRepository = (*Repository)(nil)
var _ ports.VoteLedger = (*Repository)(nil)
var _ ports.ScoreStore = (*Repository)(nil)
