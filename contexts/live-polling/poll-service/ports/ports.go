package ports

import (
	"context"
	"time"

	"livepoll/contexts/live-polling/poll-service/domain/entities"

	"github.com/juju/clock"
)

// PollRepository is the relational side of the ledger for polls and options.
type PollRepository interface {
	CreatePoll(ctx context.Context, poll entities.Poll) error
	GetPoll(ctx context.Context, pollID string) (entities.Poll, error)
	ListPollIDs(ctx context.Context) ([]string, error)
}

// VoteLedger holds one durable vote per (session, poll).
//
// CreateVote stores the vote pending and returns ErrVoteConflict when the pair
// already has a vote. SettleVote clears the pending mark. ClaimVote marks a
// settled vote pending ahead of its removal and returns ErrVoteConflict when
// another writer holds a fresh claim. HasPendingVotes ignores marks older than
// entities.PendingVoteTTL.
type VoteLedger interface {
	GetVoteBySession(ctx context.Context, sessionID string, pollID string) (entities.Vote, bool, error)
	CreateVote(ctx context.Context, vote entities.Vote) error
	ClaimVote(ctx context.Context, voteID string) error
	SettleVote(ctx context.Context, voteID string) error
	DeleteVote(ctx context.Context, voteID string) error
	CountVotesByOption(ctx context.Context, pollID string) (map[string]int64, error)
	HasPendingVotes(ctx context.Context, pollID string) (bool, error)
}

// ScoreStore is the tally projection keyed by poll. IncrementScore is atomic
// per (poll, option) and returns the score after the change. ReplaceScores
// swaps the poll's scores only while they still equal expected, and returns
// ErrScoreConflict otherwise.
type ScoreStore interface {
	IncrementScore(ctx context.Context, pollID string, optionID string, delta int64) (int64, error)
	ListScores(ctx context.Context, pollID string) (map[string]int64, error)
	ReplaceScores(ctx context.Context, pollID string, expected map[string]int64, scores map[string]int64) error
}

// ScoreEvent is the vote delta published for a poll after a score mutation.
type ScoreEvent struct {
	PollID     string
	OptionID   string
	Score      int64
	OccurredAt time.Time
}

type ScoreEventHandler func(ctx context.Context, event ScoreEvent) error

// Subscription is the cancellation handle returned by Subscribe. Done is closed
// once the subscription has ended for any reason.
type Subscription interface {
	Unsubscribe()
	Done() <-chan struct{}
}

type NotificationBus interface {
	Publish(ctx context.Context, pollID string, event ScoreEvent) error
	Subscribe(ctx context.Context, pollID string, handler ScoreEventHandler) (Subscription, error)
}

type Clock = clock.Clock

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
