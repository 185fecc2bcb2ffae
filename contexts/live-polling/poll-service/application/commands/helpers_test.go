package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"livepoll/contexts/live-polling/poll-service/adapters/memory"
	"livepoll/contexts/live-polling/poll-service/domain/entities"
	domainerrors "livepoll/contexts/live-polling/poll-service/domain/errors"
	"livepoll/contexts/live-polling/poll-service/ports"

	"github.com/im7mortal/kmutex"
	"github.com/juju/clock/testclock"
)

var fixedNow = time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingBus struct {
	mu     sync.Mutex
	events []ports.ScoreEvent
	err    error
}

// Publish rejects a done context the way the process bus does.
func (b *recordingBus) Publish(ctx context.Context, _ string, event ports.ScoreEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string, ports.ScoreEventHandler) (ports.Subscription, error) {
	return nil, errors.New("not supported")
}

func (b *recordingBus) Events() []ports.ScoreEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ports.ScoreEvent(nil), b.events...)
}

// flakyScores fails IncrementScore for the deltas listed in failDeltas.
type flakyScores struct {
	*memory.Store
	failDeltas map[int64]bool
}

func (s flakyScores) IncrementScore(ctx context.Context, pollID string, optionID string, delta int64) (int64, error) {
	if s.failDeltas[delta] {
		return 0, errors.New("score store offline")
	}
	return s.Store.IncrementScore(ctx, pollID, optionID, delta)
}

// cancellingScores cancels the voter's context once an increment committed,
// as a client hanging up mid-request would.
type cancellingScores struct {
	*memory.Store
	cancel context.CancelFunc
}

func (s cancellingScores) IncrementScore(ctx context.Context, pollID string, optionID string, delta int64) (int64, error) {
	score, err := s.Store.IncrementScore(ctx, pollID, optionID, delta)
	s.cancel()
	return score, err
}

// conflictingLedger rejects the first conflicts CreateVote calls as a
// concurrent writer would.
type conflictingLedger struct {
	*memory.Store
	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (l *conflictingLedger) CreateVote(ctx context.Context, vote entities.Vote) error {
	l.mu.Lock()
	l.attempts++
	if l.conflicts > 0 {
		l.conflicts--
		l.mu.Unlock()
		return domainerrors.ErrVoteConflict
	}
	l.mu.Unlock()
	return l.Store.CreateVote(ctx, vote)
}

type fixture struct {
	store  *memory.Store
	bus    *recordingBus
	polls  PollUseCase
	votes  VoteUseCase
	poll   entities.Poll
	goID   string
	rustID string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStore(nil)
	bus := &recordingBus{}
	clk := testclock.NewClock(fixedNow)
	polls := PollUseCase{
		Polls:  store,
		Clock:  clk,
		IDGen:  store,
		Logger: discardLogger(),
	}
	created, err := polls.CreatePoll(context.Background(), CreatePollCommand{
		Title:   "Lang?",
		Options: []string{"Go", "Rust"},
	})
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}
	return fixture{
		store: store,
		bus:   bus,
		polls: polls,
		votes: VoteUseCase{
			Polls:      store,
			Votes:      store,
			Scores:     store,
			Bus:        bus,
			Clock:      clk,
			IDGen:      store,
			Locks:      kmutex.New(),
			RetryDelay: time.Millisecond,
			Logger:     discardLogger(),
		},
		poll:   created.Poll,
		goID:   created.Poll.Options[0].OptionID,
		rustID: created.Poll.Options[1].OptionID,
	}
}

func (f fixture) cast(t *testing.T, sessionID string, optionID string) (CastVoteResult, error) {
	t.Helper()
	return f.votes.CastVote(context.Background(), CastVoteCommand{
		PollID:    f.poll.PollID,
		OptionID:  optionID,
		SessionID: sessionID,
	})
}

func (f fixture) scores(t *testing.T) map[string]int64 {
	t.Helper()
	scores, err := f.store.ListScores(context.Background(), f.poll.PollID)
	if err != nil {
		t.Fatalf("list scores: %v", err)
	}
	return scores
}
