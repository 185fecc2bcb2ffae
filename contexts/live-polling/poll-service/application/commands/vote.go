package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "livepoll/contexts/live-polling/poll-service/application"
	"livepoll/contexts/live-polling/poll-service/domain/entities"
	domainerrors "livepoll/contexts/live-polling/poll-service/domain/errors"
	"livepoll/contexts/live-polling/poll-service/ports"

	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"
	"github.com/juju/retry"
)

const (
	defaultConflictAttempts = 3
	defaultRetryDelay       = 10 * time.Millisecond
)

// CastVoteCommand is the write-model input for a vote request. SessionID is
// resolved or minted by the transport before the command is built.
type CastVoteCommand struct {
	PollID    string
	OptionID  string
	SessionID string
}

// CastVoteResult acknowledges the vote. ChangedFrom holds the previously chosen
// option when the request moved an existing vote.
type CastVoteResult struct {
	Vote        entities.Vote
	ChangedFrom string
}

// VoteUseCase records votes in the ledger, keeps the score projection in step
// and publishes one score event per score mutation.
//
// The ledger is the source of truth. A vote stays pending in the ledger while
// its score update is in flight, which keeps the score reconciler off the
// poll. A failed score update triggers a compensating ledger write; the
// reconciler repairs whatever a failed compensation leaves behind.
type VoteUseCase struct {
	Polls  ports.PollRepository
	Votes  ports.VoteLedger
	Scores ports.ScoreStore
	Bus    ports.NotificationBus
	// Clock stamps votes and events.
	Clock ports.Clock
	// RetryClock paces conflict retries; nil means the wall clock.
	RetryClock ports.Clock
	IDGen      ports.IDGenerator
	// Locks serializes mutations per (session, poll) inside this process. The
	// ledger unique index and vote claims cover the multi-process case.
	Locks            *kmutex.Kmutex
	ConflictAttempts int
	RetryDelay       time.Duration
	Logger           *slog.Logger
}

// CastVote creates, or moves, the session's vote for a poll.
func (uc VoteUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (CastVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	pollID, pollOK := application.CanonicalID(cmd.PollID)
	optionID, optionOK := application.CanonicalID(cmd.OptionID)
	cmd = CastVoteCommand{
		PollID:    pollID,
		OptionID:  optionID,
		SessionID: strings.TrimSpace(cmd.SessionID),
	}
	logger.Info("vote cast processing started",
		"event", "polling_vote_cast_started",
		"module", "live-polling/poll-service",
		"layer", "application",
		"poll_id", cmd.PollID,
		"option_id", cmd.OptionID,
	)
	if cmd.SessionID == "" || !pollOK || !optionOK {
		logger.Warn("vote cast validation failed",
			"event", "polling_vote_cast_validation_failed",
			"module", "live-polling/poll-service",
			"layer", "application",
			"poll_id", cmd.PollID,
			"option_id", cmd.OptionID,
		)
		return CastVoteResult{}, domainerrors.ErrInvalidVoteInput
	}

	poll, err := uc.Polls.GetPoll(ctx, cmd.PollID)
	if err != nil {
		return CastVoteResult{}, wrapDependency(err)
	}
	if !poll.HasOption(cmd.OptionID) {
		logger.Warn("vote cast option not in poll",
			"event", "polling_vote_cast_option_not_found",
			"module", "live-polling/poll-service",
			"layer", "application",
			"poll_id", cmd.PollID,
			"option_id", cmd.OptionID,
		)
		return CastVoteResult{}, domainerrors.ErrOptionNotFound
	}

	if uc.Locks != nil {
		key := cmd.SessionID + "/" + cmd.PollID
		uc.Locks.Lock(key)
		defer uc.Locks.Unlock(key)
	}

	var result CastVoteResult
	err = retry.Call(retry.CallArgs{
		Func: func() error {
			var castErr error
			result, castErr = uc.castOnce(ctx, cmd)
			return castErr
		},
		IsFatalError: func(err error) bool {
			return !errors.Is(err, domainerrors.ErrVoteConflict)
		},
		NotifyFunc: func(lastErr error, attempt int) {
			logger.Warn("vote cast conflict; retrying",
				"event", "polling_vote_cast_conflict_retry",
				"module", "live-polling/poll-service",
				"layer", "application",
				"poll_id", cmd.PollID,
				"attempt", attempt,
				"error", lastErr.Error(),
			)
		},
		Attempts: uc.resolveConflictAttempts(),
		Delay:    uc.resolveRetryDelay(),
		Clock:    uc.resolveRetryClock(),
	})
	if retry.IsAttemptsExceeded(err) {
		err = retry.LastError(err)
	}
	if err != nil {
		if errors.Is(err, domainerrors.ErrDuplicateVote) {
			logger.Info("vote cast rejected as duplicate",
				"event", "polling_vote_cast_duplicate",
				"module", "live-polling/poll-service",
				"layer", "application",
				"poll_id", cmd.PollID,
				"option_id", cmd.OptionID,
			)
		} else {
			logger.Error("vote cast failed",
				"event", "polling_vote_cast_failed",
				"module", "live-polling/poll-service",
				"layer", "application",
				"poll_id", cmd.PollID,
				"option_id", cmd.OptionID,
				"error", err.Error(),
			)
		}
		return CastVoteResult{}, err
	}

	logger.Info("vote cast",
		"event", "polling_vote_cast",
		"module", "live-polling/poll-service",
		"layer", "application",
		"vote_id", result.Vote.VoteID,
		"poll_id", result.Vote.PollID,
		"option_id", result.Vote.OptionID,
		"changed_from", result.ChangedFrom,
	)
	return result, nil
}

func (uc VoteUseCase) castOnce(ctx context.Context, cmd CastVoteCommand) (CastVoteResult, error) {
	existing, found, err := uc.Votes.GetVoteBySession(ctx, cmd.SessionID, cmd.PollID)
	if err != nil {
		return CastVoteResult{}, wrapDependency(err)
	}

	changedFrom := ""
	if found {
		if existing.OptionID == cmd.OptionID {
			return CastVoteResult{}, domainerrors.ErrDuplicateVote
		}
		if err := uc.retract(ctx, existing); err != nil {
			return CastVoteResult{}, err
		}
		changedFrom = existing.OptionID
	}

	voteID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CastVoteResult{}, err
	}
	vote := entities.Vote{
		VoteID:    voteID,
		SessionID: cmd.SessionID,
		PollID:    cmd.PollID,
		OptionID:  cmd.OptionID,
		CreatedAt: uc.now(),
	}
	if err := uc.Votes.CreateVote(ctx, vote); err != nil {
		return CastVoteResult{}, wrapDependency(err)
	}
	score, err := uc.Scores.IncrementScore(ctx, cmd.PollID, cmd.OptionID, 1)
	if err != nil {
		uc.compensate("remove_new_vote", vote, func() error {
			return uc.Votes.DeleteVote(context.WithoutCancel(ctx), vote.VoteID)
		})
		return CastVoteResult{}, wrapDependency(err)
	}
	uc.publish(ctx, cmd.PollID, cmd.OptionID, score)
	uc.settle(ctx, vote)

	return CastVoteResult{Vote: vote, ChangedFrom: changedFrom}, nil
}

// retract removes a session's previous vote. The claim keeps the vote pending
// from before its decrement until its row is gone, so the ledger never looks
// settled while it disagrees with the scores.
func (uc VoteUseCase) retract(ctx context.Context, existing entities.Vote) error {
	if err := uc.Votes.ClaimVote(ctx, existing.VoteID); err != nil {
		if errors.Is(err, domainerrors.ErrVoteNotFound) {
			// Another writer moved the vote between read and claim.
			return domainerrors.ErrVoteConflict
		}
		return wrapDependency(err)
	}
	score, err := uc.Scores.IncrementScore(ctx, existing.PollID, existing.OptionID, -1)
	if err != nil {
		uc.compensate("release_prior_vote", existing, func() error {
			return uc.Votes.SettleVote(context.WithoutCancel(ctx), existing.VoteID)
		})
		return wrapDependency(err)
	}
	uc.publish(ctx, existing.PollID, existing.OptionID, score)

	if err := uc.Votes.DeleteVote(ctx, existing.VoteID); err != nil {
		uc.compensate("restore_prior_score", existing, func() error {
			detached := context.WithoutCancel(ctx)
			restored, err := uc.Scores.IncrementScore(detached, existing.PollID, existing.OptionID, 1)
			if err != nil {
				return err
			}
			uc.publish(detached, existing.PollID, existing.OptionID, restored)
			return uc.Votes.SettleVote(detached, existing.VoteID)
		})
		if errors.Is(err, domainerrors.ErrVoteNotFound) {
			return domainerrors.ErrVoteConflict
		}
		return wrapDependency(err)
	}
	return nil
}

// settle clears the pending mark once the vote's increment has landed. A
// failure here is harmless: the mark expires after entities.PendingVoteTTL.
func (uc VoteUseCase) settle(ctx context.Context, vote entities.Vote) {
	if err := uc.Votes.SettleVote(context.WithoutCancel(ctx), vote.VoteID); err != nil {
		application.ResolveLogger(uc.Logger).Warn("vote settle failed",
			"event", "polling_vote_settle_failed",
			"module", "live-polling/poll-service",
			"layer", "application",
			"vote_id", vote.VoteID,
			"poll_id", vote.PollID,
			"error", err.Error(),
		)
	}
}

// compensate undoes the half of a mutation that landed when its pair failed. A
// failed compensation is logged and left to the score reconciler.
func (uc VoteUseCase) compensate(action string, vote entities.Vote, undo func() error) {
	logger := application.ResolveLogger(uc.Logger)
	if err := undo(); err != nil {
		logger.Error("vote compensation failed",
			"event", "polling_vote_compensation_failed",
			"module", "live-polling/poll-service",
			"layer", "application",
			"action", action,
			"vote_id", vote.VoteID,
			"poll_id", vote.PollID,
			"option_id", vote.OptionID,
			"error", err.Error(),
		)
		return
	}
	logger.Warn("vote compensation applied",
		"event", "polling_vote_compensated",
		"module", "live-polling/poll-service",
		"layer", "application",
		"action", action,
		"vote_id", vote.VoteID,
		"poll_id", vote.PollID,
	)
}

// publish never fails the vote: the bus isolates subscribers, and a closed bus
// only means nobody is listening anymore. The score is committed by now, so
// delivery is detached from the voter's request lifetime.
func (uc VoteUseCase) publish(ctx context.Context, pollID string, optionID string, score int64) {
	if uc.Bus == nil {
		return
	}
	event := ports.ScoreEvent{
		PollID:     pollID,
		OptionID:   optionID,
		Score:      score,
		OccurredAt: uc.now(),
	}
	if err := uc.Bus.Publish(context.WithoutCancel(ctx), pollID, event); err != nil {
		application.ResolveLogger(uc.Logger).Warn("score event publish failed",
			"event", "polling_score_publish_failed",
			"module", "live-polling/poll-service",
			"layer", "application",
			"poll_id", pollID,
			"option_id", optionID,
			"error", err.Error(),
		)
	}
}

func (uc VoteUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (uc VoteUseCase) resolveRetryClock() clock.Clock {
	if uc.RetryClock != nil {
		return uc.RetryClock
	}
	return clock.WallClock
}

func (uc VoteUseCase) resolveConflictAttempts() int {
	if uc.ConflictAttempts <= 0 {
		return defaultConflictAttempts
	}
	return uc.ConflictAttempts
}

func (uc VoteUseCase) resolveRetryDelay() time.Duration {
	if uc.RetryDelay <= 0 {
		return defaultRetryDelay
	}
	return uc.RetryDelay
}
