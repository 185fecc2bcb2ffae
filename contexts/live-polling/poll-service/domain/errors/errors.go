package errors

import "errors"

var (
	ErrInvalidPollInput      = errors.New("invalid poll input")
	ErrInvalidVoteInput      = errors.New("invalid vote input")
	ErrInvalidPollID         = errors.New("invalid poll id")
	ErrPollNotFound          = errors.New("poll not found")
	ErrOptionNotFound        = errors.New("poll option not found")
	ErrVoteNotFound          = errors.New("vote not found")
	ErrDuplicateVote         = errors.New("session already voted for this option")
	ErrVoteConflict          = errors.New("concurrent vote conflict")
	ErrScoreConflict         = errors.New("scores changed during rebuild")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
