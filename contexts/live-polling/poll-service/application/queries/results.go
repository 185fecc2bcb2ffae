package queries

import (
	"context"
	"log/slog"

	application "livepoll/contexts/live-polling/poll-service/application"
	domainerrors "livepoll/contexts/live-polling/poll-service/domain/errors"
	"livepoll/contexts/live-polling/poll-service/ports"
)

// ResultsUseCase attaches live result listeners to a poll's score channel.
type ResultsUseCase struct {
	Bus    ports.NotificationBus
	Logger *slog.Logger
}

// Subscribe registers handler for score events of pollID until ctx is done or
// the returned subscription is cancelled. The poll's existence is not checked:
// a listener on an unknown poll simply never receives anything.
func (uc ResultsUseCase) Subscribe(
	ctx context.Context,
	pollID string,
	handler ports.ScoreEventHandler,
) (ports.Subscription, error) {
	pollID, ok := application.CanonicalID(pollID)
	if !ok {
		return nil, domainerrors.ErrInvalidPollID
	}
	subscription, err := uc.Bus.Subscribe(ctx, pollID, handler)
	if err != nil {
		application.ResolveLogger(uc.Logger).Warn("results subscribe failed",
			"event", "polling_results_subscribe_failed",
			"module", "live-polling/poll-service",
			"layer", "application",
			"poll_id", pollID,
			"error", err.Error(),
		)
		return nil, err
	}
	application.ResolveLogger(uc.Logger).Debug("results listener attached",
		"event", "polling_results_subscribed",
		"module", "live-polling/poll-service",
		"layer", "application",
		"poll_id", pollID,
	)
	return subscription, nil
}
