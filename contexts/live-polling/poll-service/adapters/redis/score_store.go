package redisadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"livepoll/contexts/live-polling/poll-service/domain/entities"
	domainerrors "livepoll/contexts/live-polling/poll-service/domain/errors"
	"livepoll/contexts/live-polling/poll-service/ports"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "poll:"

// ScoreStore keeps one sorted set per poll, member = option id, score = votes.
type ScoreStore struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *slog.Logger
}

func NewScoreStore(client redis.UniversalClient, keyPrefix string, logger *slog.Logger) *ScoreStore {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &ScoreStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

func (s *ScoreStore) IncrementScore(ctx context.Context, pollID string, optionID string, delta int64) (int64, error) {
	score, err := s.client.ZIncrBy(ctx, s.key(pollID), float64(delta), strings.TrimSpace(optionID)).Result()
	if err != nil {
		return 0, s.logError("polling_scores_increment_failed", err,
			"poll_id", strings.TrimSpace(pollID),
			"option_id", strings.TrimSpace(optionID),
		)
	}
	return int64(score), nil
}

func (s *ScoreStore) ListScores(ctx context.Context, pollID string) (map[string]int64, error) {
	items, err := s.client.ZRangeWithScores(ctx, s.key(pollID), 0, -1).Result()
	if err != nil {
		return nil, s.logError("polling_scores_list_failed", err, "poll_id", strings.TrimSpace(pollID))
	}
	return scoresFrom(items), nil
}

// ReplaceScores WATCHes the poll's set, checks it against expected and swaps
// it in one MULTI/EXEC. A write to the set after the check aborts the EXEC.
func (s *ScoreStore) ReplaceScores(ctx context.Context, pollID string, expected map[string]int64, scores map[string]int64) error {
	key := s.key(pollID)
	members := make([]redis.Z, 0, len(scores))
	for optionID, score := range scores {
		members = append(members, redis.Z{Score: float64(score), Member: optionID})
	}
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		items, err := tx.ZRangeWithScores(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		if !entities.SameScores(scoresFrom(items), expected) {
			return domainerrors.ErrScoreConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(members) > 0 {
				pipe.ZAdd(ctx, key, members...)
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, domainerrors.ErrScoreConflict) || errors.Is(err, redis.TxFailedErr) {
			return domainerrors.ErrScoreConflict
		}
		return s.logError("polling_scores_replace_failed", err, "poll_id", strings.TrimSpace(pollID))
	}
	return nil
}

func scoresFrom(items []redis.Z) map[string]int64 {
	scores := make(map[string]int64, len(items))
	for _, item := range items {
		member, ok := item.Member.(string)
		if !ok {
			continue
		}
		scores[member] = int64(item.Score)
	}
	return scores
}

func (s *ScoreStore) key(pollID string) string {
	return s.keyPrefix + strings.TrimSpace(pollID)
}

func (s *ScoreStore) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "live-polling/poll-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	s.logger.Error("polling score store operation failed", fields...)
	return err
}

var _ ports.ScoreStore = (*ScoreStore)(nil)
