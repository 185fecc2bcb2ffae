package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreatePollRequest struct {
	Title   string   `json:"title"`
	Options []string `json:"options"`
}

type CreatePollResponse struct {
	PollID string `json:"pollId"`
}

type OptionResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Score int64  `json:"score"`
}

type PollResponse struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"createdAt"`
	Title     string           `json:"title"`
	Options   []OptionResponse `json:"options"`
}

type VoteRequest struct {
	PollOptionID string `json:"pollOptionId"`
}

type VoteResponse struct {
	Message string `json:"message"`
}

// VoteUpdateMessage is one frame pushed on the result stream.
type VoteUpdateMessage struct {
	PollOptionID string `json:"pollOptionId"`
	Vote         int64  `json:"vote"`
}
