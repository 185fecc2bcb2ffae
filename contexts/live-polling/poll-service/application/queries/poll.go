package queries

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	application "livepoll/contexts/live-polling/poll-service/application"
	"livepoll/contexts/live-polling/poll-service/domain/entities"
	domainerrors "livepoll/contexts/live-polling/poll-service/domain/errors"
	"livepoll/contexts/live-polling/poll-service/ports"
)

type PollQuery struct {
	Polls  ports.PollRepository
	Scores ports.ScoreStore
	Logger *slog.Logger
}

// GetPoll returns the poll with every option paired to its current score.
// Options without a score entry report 0.
func (q PollQuery) GetPoll(ctx context.Context, pollID string) (entities.PollResult, error) {
	logger := application.ResolveLogger(q.Logger)
	pollID, ok := application.CanonicalID(pollID)
	if !ok {
		return entities.PollResult{}, domainerrors.ErrInvalidPollID
	}

	poll, err := q.Polls.GetPoll(ctx, pollID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrPollNotFound) {
			return entities.PollResult{}, err
		}
		return entities.PollResult{}, fmt.Errorf("%w: %w", domainerrors.ErrDependencyUnavailable, err)
	}
	scores, err := q.Scores.ListScores(ctx, pollID)
	if err != nil {
		logger.Error("poll score lookup failed",
			"event", "polling_poll_scores_failed",
			"module", "live-polling/poll-service",
			"layer", "application",
			"poll_id", pollID,
			"error", err.Error(),
		)
		return entities.PollResult{}, fmt.Errorf("%w: %w", domainerrors.ErrDependencyUnavailable, err)
	}

	return entities.PollResult{
		Poll:    poll,
		Options: entities.MergeScores(poll, scores),
	}, nil
}
