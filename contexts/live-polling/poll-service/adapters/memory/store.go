package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"livepoll/contexts/live-polling/poll-service/domain/entities"
	domainerrors "livepoll/contexts/live-polling/poll-service/domain/errors"

	"github.com/google/uuid"
	"github.com/juju/clock"
)

// Store keeps polls, the vote ledger and the score projection in process. It
// implements every persistence port and is used by tests and local runs.
type Store struct {
	// Clock stamps pending marks; nil means the wall clock.
	Clock clock.Clock

	mu sync.RWMutex

	polls     map[string]entities.Poll
	pollOrder []string
	votes     map[string]entities.Vote
	// bySession indexes the active vote id per sessionID/pollID.
	bySession map[string]string
	scores    map[string]map[string]int64
}

func NewStore(seed []entities.Poll) *Store {
	store := &Store{
		polls:     make(map[string]entities.Poll, len(seed)),
		votes:     make(map[string]entities.Vote),
		bySession: make(map[string]string),
		scores:    make(map[string]map[string]int64),
	}
	for _, poll := range seed {
		store.polls[poll.PollID] = clonePoll(poll)
		store.pollOrder = append(store.pollOrder, poll.PollID)
	}
	return store
}

func (s *Store) CreatePoll(_ context.Context, poll entities.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pollID := strings.TrimSpace(poll.PollID)
	if _, exists := s.polls[pollID]; exists {
		return domainerrors.ErrInvalidPollInput
	}
	s.polls[pollID] = clonePoll(poll)
	s.pollOrder = append(s.pollOrder, pollID)
	return nil
}

func (s *Store) GetPoll(_ context.Context, pollID string) (entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	poll, ok := s.polls[strings.TrimSpace(pollID)]
	if !ok {
		return entities.Poll{}, domainerrors.ErrPollNotFound
	}
	return clonePoll(poll), nil
}

func (s *Store) ListPollIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.pollOrder...), nil
}

func (s *Store) GetVoteBySession(_ context.Context, sessionID string, pollID string) (entities.Vote, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	voteID, ok := s.bySession[sessionKey(sessionID, pollID)]
	if !ok {
		return entities.Vote{}, false, nil
	}
	return s.votes[voteID], true, nil
}

func (s *Store) CreateVote(_ context.Context, vote entities.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(vote.SessionID, vote.PollID)
	if _, exists := s.bySession[key]; exists {
		return domainerrors.ErrVoteConflict
	}
	if _, exists := s.votes[vote.VoteID]; exists {
		return domainerrors.ErrVoteConflict
	}
	vote.PendingSince = s.now()
	s.votes[vote.VoteID] = vote
	s.bySession[key] = vote.VoteID
	return nil
}

func (s *Store) ClaimVote(_ context.Context, voteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vote, ok := s.votes[strings.TrimSpace(voteID)]
	if !ok {
		return domainerrors.ErrVoteNotFound
	}
	now := s.now()
	if s.freshLocked(vote, now) {
		return domainerrors.ErrVoteConflict
	}
	vote.PendingSince = now
	s.votes[vote.VoteID] = vote
	return nil
}

func (s *Store) SettleVote(_ context.Context, voteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vote, ok := s.votes[strings.TrimSpace(voteID)]
	if !ok {
		return domainerrors.ErrVoteNotFound
	}
	vote.PendingSince = time.Time{}
	s.votes[vote.VoteID] = vote
	return nil
}

func (s *Store) DeleteVote(_ context.Context, voteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vote, ok := s.votes[strings.TrimSpace(voteID)]
	if !ok {
		return domainerrors.ErrVoteNotFound
	}
	delete(s.votes, vote.VoteID)
	delete(s.bySession, sessionKey(vote.SessionID, vote.PollID))
	return nil
}

func (s *Store) CountVotesByOption(_ context.Context, pollID string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pollID = strings.TrimSpace(pollID)
	counts := make(map[string]int64)
	for _, vote := range s.votes {
		if vote.PollID == pollID {
			counts[vote.OptionID]++
		}
	}
	return counts, nil
}

func (s *Store) HasPendingVotes(_ context.Context, pollID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pollID = strings.TrimSpace(pollID)
	now := s.now()
	for _, vote := range s.votes {
		if vote.PollID == pollID && s.freshLocked(vote, now) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) IncrementScore(_ context.Context, pollID string, optionID string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pollID = strings.TrimSpace(pollID)
	scores, ok := s.scores[pollID]
	if !ok {
		scores = make(map[string]int64)
		s.scores[pollID] = scores
	}
	scores[optionID] += delta
	return scores[optionID], nil
}

func (s *Store) ListScores(_ context.Context, pollID string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make(map[string]int64)
	for optionID, score := range s.scores[strings.TrimSpace(pollID)] {
		items[optionID] = score
	}
	return items, nil
}

func (s *Store) ReplaceScores(_ context.Context, pollID string, expected map[string]int64, scores map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pollID = strings.TrimSpace(pollID)
	if !entities.SameScores(s.scores[pollID], expected) {
		return domainerrors.ErrScoreConflict
	}
	next := make(map[string]int64, len(scores))
	for optionID, score := range scores {
		next[optionID] = score
	}
	s.scores[pollID] = next
	return nil
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

// Votes returns a snapshot of the ledger ordered by creation time.
func (s *Store) Votes() []entities.Vote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Vote, 0, len(s.votes))
	for _, vote := range s.votes {
		items = append(items, vote)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].VoteID < items[j].VoteID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

func (s *Store) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Store) freshLocked(vote entities.Vote, now time.Time) bool {
	return vote.Pending() && now.Sub(vote.PendingSince) < entities.PendingVoteTTL
}

func sessionKey(sessionID string, pollID string) string {
	return strings.TrimSpace(sessionID) + "/" + strings.TrimSpace(pollID)
}

func clonePoll(poll entities.Poll) entities.Poll {
	poll.Options = append([]entities.Option(nil), poll.Options...)
	return poll
}
