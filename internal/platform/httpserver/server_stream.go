package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	pollhttp "livepoll/contexts/live-polling/poll-service/transport/http"

	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	streamBufferSize = 32
)

var errStreamBacklog = errors.New("result stream backlog full")

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.allowedOrigin == "*" || origin == s.allowedOrigin
		},
	}
}

// handlePollResults streams score updates for one poll over a websocket. The
// subscription is registered before the upgrade so a malformed poll id still
// gets a plain HTTP error, and it is released whenever the stream ends.
func (s *Server) handlePollResults(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("pollId")
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	frames := make(chan pollhttp.VoteUpdateMessage, streamBufferSize)
	sub, err := s.polls.Handler.SubscribeResultsHandler(ctx, pollID, func(frame pollhttp.VoteUpdateMessage) error {
		select {
		case frames <- frame:
			return nil
		default:
			return errStreamBacklog
		}
	})
	if err != nil {
		s.writePollDomainError(w, r, err)
		return
	}
	defer sub.Unsubscribe()

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("result stream upgrade failed",
			"event", "http_stream_upgrade_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"poll_id", pollID,
			"error", err.Error(),
		)
		return
	}
	defer conn.Close()

	s.logger.Info("result stream opened",
		"event", "http_stream_opened",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"poll_id", pollID,
	)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	clientGone := readUntilClosed(conn)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-clientGone:
			s.logStreamClosed(pollID, "client_closed")
			return
		case <-sub.Done():
			deadline := time.Now().Add(writeWait)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
			s.logStreamClosed(pollID, "subscription_ended")
			return
		case frame := <-frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				s.logStreamClosed(pollID, "write_failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logStreamClosed(pollID, "ping_failed")
				return
			}
		}
	}
}

// readUntilClosed drains inbound frames so control messages are processed.
// The returned channel closes when the peer goes away or the socket closes.
func readUntilClosed(conn *websocket.Conn) <-chan struct{} {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return gone
}

func (s *Server) logStreamClosed(pollID string, reason string) {
	s.logger.Info("result stream closed",
		"event", "http_stream_closed",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"poll_id", pollID,
		"reason", reason,
	)
}
