package httpadapter

import (
	"context"
	"log/slog"

	"livepoll/contexts/live-polling/poll-service/application/commands"
	"livepoll/contexts/live-polling/poll-service/application/queries"
	"livepoll/contexts/live-polling/poll-service/ports"
	httptransport "livepoll/contexts/live-polling/poll-service/transport/http"
)

const voteRecordedMessage = "vote recorded"

type Handler struct {
	Polls     commands.PollUseCase
	Votes     commands.VoteUseCase
	PollReads queries.PollQuery
	Results   queries.ResultsUseCase
	Logger    *slog.Logger
}

func (h Handler) CreatePollHandler(
	ctx context.Context,
	req httptransport.CreatePollRequest,
) (httptransport.CreatePollResponse, error) {
	result, err := h.Polls.CreatePoll(ctx, commands.CreatePollCommand{
		Title:   req.Title,
		Options: req.Options,
	})
	if err != nil {
		return httptransport.CreatePollResponse{}, err
	}
	return httptransport.CreatePollResponse{PollID: result.Poll.PollID}, nil
}

func (h Handler) GetPollHandler(ctx context.Context, pollID string) (httptransport.PollResponse, error) {
	result, err := h.PollReads.GetPoll(ctx, pollID)
	if err != nil {
		return httptransport.PollResponse{}, err
	}
	options := make([]httptransport.OptionResponse, 0, len(result.Options))
	for _, item := range result.Options {
		options = append(options, httptransport.OptionResponse{
			ID:    item.Option.OptionID,
			Title: item.Option.Title,
			Score: item.Score,
		})
	}
	return httptransport.PollResponse{
		ID:        result.Poll.PollID,
		CreatedAt: result.Poll.CreatedAt,
		Title:     result.Poll.Title,
		Options:   options,
	}, nil
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	sessionID string,
	pollID string,
	req httptransport.VoteRequest,
) (httptransport.VoteResponse, error) {
	if _, err := h.Votes.CastVote(ctx, commands.CastVoteCommand{
		PollID:    pollID,
		OptionID:  req.PollOptionID,
		SessionID: sessionID,
	}); err != nil {
		return httptransport.VoteResponse{}, err
	}
	return httptransport.VoteResponse{Message: voteRecordedMessage}, nil
}

// SubscribeResultsHandler forwards every score event for pollID to send as a
// wire frame until the subscription ends.
func (h Handler) SubscribeResultsHandler(
	ctx context.Context,
	pollID string,
	send func(httptransport.VoteUpdateMessage) error,
) (ports.Subscription, error) {
	return h.Results.Subscribe(ctx, pollID, func(_ context.Context, event ports.ScoreEvent) error {
		return send(httptransport.VoteUpdateMessage{
			PollOptionID: event.OptionID,
			Vote:         event.Score,
		})
	})
}
