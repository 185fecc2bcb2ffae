package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "livepoll/contexts/live-polling/poll-service/application"
	"livepoll/contexts/live-polling/poll-service/domain/entities"
	domainerrors "livepoll/contexts/live-polling/poll-service/domain/errors"
	"livepoll/contexts/live-polling/poll-service/ports"
)

// ScoreReconciler rebuilds the score projection from the vote ledger.
//
// Votes keep being cast while it runs. A poll is rebuilt only when no vote of
// it is pending around the recount, and only if its scores still match the
// snapshot the rebuild was computed against.
type ScoreReconciler struct {
	Polls  ports.PollRepository
	Votes  ports.VoteLedger
	Scores ports.ScoreStore
	// Bus receives one score event per repaired option. Nil disables it.
	Bus    ports.NotificationBus
	Clock  ports.Clock
	Logger *slog.Logger
}

// RunOnce recounts every poll and overwrites drifted scores, writing 0 for
// options without votes. Busy or concurrently changed polls are left for the
// next cycle. It stops on the first store failure so the next cycle starts
// clean.
func (r ScoreReconciler) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	logger.Info("score reconcile cycle started",
		"event", "polling_score_reconcile_started",
		"module", "live-polling/poll-service",
		"layer", "worker",
	)

	pollIDs, err := r.Polls.ListPollIDs(ctx)
	if err != nil {
		logger.Error("score reconcile poll listing failed",
			"event", "polling_score_reconcile_list_failed",
			"module", "live-polling/poll-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	repaired, deferred := 0, 0
	for _, pollID := range pollIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome, err := r.reconcilePoll(ctx, logger, pollID)
		if err != nil {
			return r.fail(logger, pollID, err)
		}
		switch outcome {
		case pollRepaired:
			repaired++
		case pollDeferred:
			deferred++
		}
	}

	logger.Info("score reconcile cycle completed",
		"event", "polling_score_reconcile_completed",
		"module", "live-polling/poll-service",
		"layer", "worker",
		"poll_count", len(pollIDs),
		"repaired_count", repaired,
		"deferred_count", deferred,
	)
	return nil
}

type pollOutcome int

const (
	pollConsistent pollOutcome = iota
	pollRepaired
	pollDeferred
)

func (r ScoreReconciler) reconcilePoll(ctx context.Context, logger *slog.Logger, pollID string) (pollOutcome, error) {
	poll, err := r.Polls.GetPoll(ctx, pollID)
	if err != nil {
		return pollConsistent, err
	}
	// Scores are read first: any score write after this point fails the
	// compare-and-set below.
	before, err := r.Scores.ListScores(ctx, pollID)
	if err != nil {
		return pollConsistent, err
	}
	if busy, err := r.Votes.HasPendingVotes(ctx, pollID); err != nil || busy {
		return r.deferBusy(logger, pollID, err)
	}
	counts, err := r.Votes.CountVotesByOption(ctx, pollID)
	if err != nil {
		return pollConsistent, err
	}
	// A vote created after the first check is still pending here unless its
	// increment already landed, and then the compare-and-set catches it.
	if busy, err := r.Votes.HasPendingVotes(ctx, pollID); err != nil || busy {
		return r.deferBusy(logger, pollID, err)
	}

	expected := make(map[string]int64, len(poll.Options))
	drifted := len(before) != len(poll.Options)
	for _, option := range poll.Options {
		expected[option.OptionID] = counts[option.OptionID]
		if got, ok := before[option.OptionID]; !ok || got != expected[option.OptionID] {
			drifted = true
		}
	}
	if !drifted {
		return pollConsistent, nil
	}

	if err := r.Scores.ReplaceScores(ctx, pollID, before, expected); err != nil {
		if errors.Is(err, domainerrors.ErrScoreConflict) {
			logger.Info("score rebuild lost to a concurrent vote",
				"event", "polling_score_reconcile_conflict",
				"module", "live-polling/poll-service",
				"layer", "worker",
				"poll_id", pollID,
			)
			return pollDeferred, nil
		}
		return pollConsistent, err
	}

	logger.Warn("score projection repaired",
		"event", "polling_score_reconciled",
		"module", "live-polling/poll-service",
		"layer", "worker",
		"poll_id", pollID,
	)
	r.publishRepairs(ctx, logger, poll, before, expected)
	return pollRepaired, nil
}

func (r ScoreReconciler) deferBusy(logger *slog.Logger, pollID string, err error) (pollOutcome, error) {
	if err != nil {
		return pollConsistent, err
	}
	logger.Debug("score reconcile skipped poll with votes in flight",
		"event", "polling_score_reconcile_busy",
		"module", "live-polling/poll-service",
		"layer", "worker",
		"poll_id", pollID,
	)
	return pollDeferred, nil
}

// publishRepairs tells live viewers about every option whose visible score
// changed. Viewers treat a missing score as 0, so 0 to 0 is not a change.
func (r ScoreReconciler) publishRepairs(
	ctx context.Context,
	logger *slog.Logger,
	poll entities.Poll,
	before map[string]int64,
	after map[string]int64,
) {
	if r.Bus == nil {
		return
	}
	for _, option := range poll.Options {
		score := after[option.OptionID]
		if before[option.OptionID] == score {
			continue
		}
		event := ports.ScoreEvent{
			PollID:     poll.PollID,
			OptionID:   option.OptionID,
			Score:      score,
			OccurredAt: r.now(),
		}
		if err := r.Bus.Publish(ctx, poll.PollID, event); err != nil {
			logger.Warn("repaired score publish failed",
				"event", "polling_score_reconcile_publish_failed",
				"module", "live-polling/poll-service",
				"layer", "worker",
				"poll_id", poll.PollID,
				"option_id", option.OptionID,
				"error", err.Error(),
			)
		}
	}
}

func (r ScoreReconciler) now() time.Time {
	if r.Clock != nil {
		return r.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (r ScoreReconciler) fail(logger *slog.Logger, pollID string, err error) error {
	logger.Error("score reconcile failed",
		"event", "polling_score_reconcile_failed",
		"module", "live-polling/poll-service",
		"layer", "worker",
		"poll_id", pollID,
		"error", err.Error(),
	)
	return err
}
