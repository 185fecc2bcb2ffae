package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	pollerrors "livepoll/contexts/live-polling/poll-service/domain/errors"
	pollhttp "livepoll/contexts/live-polling/poll-service/transport/http"
)

const maxBodyBytes = 64 << 10

func (s *Server) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	var req pollhttp.CreatePollRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writePollError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.polls.Handler.CreatePollHandler(r.Context(), req)
	if err != nil {
		s.writePollDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	resp, err := s.polls.Handler.GetPollHandler(r.Context(), r.PathValue("pollId"))
	if err != nil {
		s.writePollDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req pollhttp.VoteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writePollError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	sessionID, _, err := s.sessions.Resolve(w, r)
	if err != nil {
		s.logger.Error("session resolution failed",
			"event", "http_session_resolve_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"error", err.Error(),
		)
		writePollError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	resp, err := s.polls.Handler.CastVoteHandler(r.Context(), sessionID, r.PathValue("pollId"), req)
	if err != nil {
		s.writePollDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) writePollDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pollerrors.ErrInvalidPollID):
		writePollError(w, http.StatusBadRequest, "invalid_poll_id", err.Error())
	case errors.Is(err, pollerrors.ErrInvalidPollInput),
		errors.Is(err, pollerrors.ErrInvalidVoteInput):
		writePollError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, pollerrors.ErrPollNotFound):
		writePollError(w, http.StatusBadRequest, "poll_not_found", err.Error())
	case errors.Is(err, pollerrors.ErrOptionNotFound):
		writePollError(w, http.StatusBadRequest, "option_not_found", err.Error())
	case errors.Is(err, pollerrors.ErrDuplicateVote):
		writePollError(w, http.StatusUnauthorized, "duplicate_vote", err.Error())
	case errors.Is(err, pollerrors.ErrVoteConflict):
		writePollError(w, http.StatusConflict, "vote_conflict", err.Error())
	case errors.Is(err, pollerrors.ErrDependencyUnavailable):
		writePollError(w, http.StatusServiceUnavailable, "dependency_unavailable", "a backing store is unavailable")
	default:
		s.logger.Error("unmapped poll error",
			"event", "http_poll_error_unmapped",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writePollError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writePollError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, pollhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}
