package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "livepoll/contexts/live-polling/poll-service/application"
	"livepoll/contexts/live-polling/poll-service/domain/entities"
	domainerrors "livepoll/contexts/live-polling/poll-service/domain/errors"
	"livepoll/contexts/live-polling/poll-service/ports"
)

const minPollOptions = 2

// CreatePollCommand is the write-model input for poll creation.
type CreatePollCommand struct {
	Title   string
	Options []string
}

type CreatePollResult struct {
	Poll entities.Poll
}

// PollUseCase creates polls together with their option batch.
type PollUseCase struct {
	Polls  ports.PollRepository
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

func (uc PollUseCase) CreatePoll(ctx context.Context, cmd CreatePollCommand) (CreatePollResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	title := strings.TrimSpace(cmd.Title)
	logger.Info("poll create processing started",
		"event", "polling_poll_create_started",
		"module", "live-polling/poll-service",
		"layer", "application",
		"option_count", len(cmd.Options),
	)

	optionTitles := make([]string, 0, len(cmd.Options))
	for _, raw := range cmd.Options {
		value := strings.TrimSpace(raw)
		if value == "" {
			optionTitles = nil
			break
		}
		optionTitles = append(optionTitles, value)
	}
	if title == "" || len(optionTitles) < minPollOptions {
		logger.Warn("poll create validation failed",
			"event", "polling_poll_create_validation_failed",
			"module", "live-polling/poll-service",
			"layer", "application",
			"title_empty", title == "",
			"option_count", len(cmd.Options),
		)
		return CreatePollResult{}, fmt.Errorf(
			"%w: title is required and at least %d non-empty options are needed",
			domainerrors.ErrInvalidPollInput,
			minPollOptions,
		)
	}

	pollID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CreatePollResult{}, err
	}
	poll := entities.Poll{
		PollID:    pollID,
		Title:     title,
		CreatedAt: uc.now(),
		Options:   make([]entities.Option, 0, len(optionTitles)),
	}
	for position, optionTitle := range optionTitles {
		optionID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return CreatePollResult{}, err
		}
		poll.Options = append(poll.Options, entities.Option{
			OptionID: optionID,
			PollID:   pollID,
			Title:    optionTitle,
			Position: position,
		})
	}

	if err := uc.Polls.CreatePoll(ctx, poll); err != nil {
		logger.Error("poll create persistence failed",
			"event", "polling_poll_create_failed",
			"module", "live-polling/poll-service",
			"layer", "application",
			"poll_id", pollID,
			"error", err.Error(),
		)
		return CreatePollResult{}, wrapDependency(err)
	}

	logger.Info("poll created",
		"event", "polling_poll_created",
		"module", "live-polling/poll-service",
		"layer", "application",
		"poll_id", poll.PollID,
		"option_count", len(poll.Options),
	)
	return CreatePollResult{Poll: poll}, nil
}

func (uc PollUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

// wrapDependency marks store failures as dependency errors while letting domain
// errors raised by adapters pass through untouched.
func wrapDependency(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		domainerrors.ErrInvalidPollInput,
		domainerrors.ErrInvalidVoteInput,
		domainerrors.ErrInvalidPollID,
		domainerrors.ErrPollNotFound,
		domainerrors.ErrOptionNotFound,
		domainerrors.ErrVoteNotFound,
		domainerrors.ErrDuplicateVote,
		domainerrors.ErrVoteConflict,
		domainerrors.ErrDependencyUnavailable,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", domainerrors.ErrDependencyUnavailable, err)
}
