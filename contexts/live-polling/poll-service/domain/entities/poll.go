package entities

import (
	"sort"
	"time"
)

type Poll struct {
	PollID    string
	Title     string
	CreatedAt time.Time
	Options   []Option
}

// Option belongs to exactly one poll. Position is the 0-based insertion index
// and defines the order options are returned in.
type Option struct {
	OptionID string
	PollID   string
	Title    string
	Position int
}

// PendingVoteTTL bounds how long a pending mark blocks the score reconciler. A
// mark older than this belongs to a mutation that died midway and is ignored.
const PendingVoteTTL = 30 * time.Second

// Vote is a session's current choice for a poll. The ledger holds at most one
// per (SessionID, PollID).
//
// PendingSince is set while the vote's score update is in flight: from
// creation until its increment lands, and from a move's claim until the vote
// is deleted. Zero means the score projection already reflects the vote.
type Vote struct {
	VoteID       string
	SessionID    string
	PollID       string
	OptionID     string
	CreatedAt    time.Time
	PendingSince time.Time
}

func (v Vote) Pending() bool {
	return !v.PendingSince.IsZero()
}

type OptionScore struct {
	Option Option
	Score  int64
}

type PollResult struct {
	Poll    Poll
	Options []OptionScore
}

// HasOption reports whether optionID belongs to the poll.
func (p Poll) HasOption(optionID string) bool {
	for _, option := range p.Options {
		if option.OptionID == optionID {
			return true
		}
	}
	return false
}

// MergeScores pairs every option with its score, defaulting to 0 for options
// that never received a vote. Result order follows option insertion order.
func MergeScores(poll Poll, scores map[string]int64) []OptionScore {
	options := append([]Option(nil), poll.Options...)
	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Position < options[j].Position
	})
	items := make([]OptionScore, 0, len(options))
	for _, option := range options {
		items = append(items, OptionScore{
			Option: option,
			Score:  scores[option.OptionID],
		})
	}
	return items
}

// SameScores compares two score maps, treating a missing option as 0.
func SameScores(a map[string]int64, b map[string]int64) bool {
	for optionID, score := range a {
		if b[optionID] != score {
			return false
		}
	}
	for optionID, score := range b {
		if a[optionID] != score {
			return false
		}
	}
	return true
}
