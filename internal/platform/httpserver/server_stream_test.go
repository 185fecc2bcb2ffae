package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	pollhttp "livepoll/contexts/live-polling/poll-service/transport/http"

	"github.com/gorilla/websocket"
)

func dialResults(t *testing.T, baseURL string, pollID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/polls/" + pollID + "/result"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", url, err, status)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) pollhttp.VoteUpdateMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame pollhttp.VoteUpdateMessage
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func waitForSubscribers(t *testing.T, server testServer, pollID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if server.bus.SubscriberCount(pollID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d subscribers for %s, got %d", want, pollID, server.bus.SubscriberCount(pollID))
}

func TestResultStreamDeliversVoteScenario(t *testing.T) {
	server := newTestServer(t)
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	pollID, poll := server.createPoll(t, "Lang?", "Go", "Rust")
	goID, rustID := poll.Options[0].ID, poll.Options[1].ID
	conn := dialResults(t, httpServer.URL, pollID)
	waitForSubscribers(t, server, pollID, 1)

	first := server.do(t, http.MethodPost, "/polls/"+pollID+"/vote", pollhttp.VoteRequest{PollOptionID: goID})
	if first.Code != http.StatusCreated {
		t.Fatalf("vote Go: %d", first.Code)
	}
	if frame := readFrame(t, conn); frame.PollOptionID != goID || frame.Vote != 1 {
		t.Fatalf("expected Go:1, got %+v", frame)
	}

	cookie := first.Result().Cookies()[0]
	if rr := server.do(t, http.MethodPost, "/polls/"+pollID+"/vote", pollhttp.VoteRequest{PollOptionID: rustID}, cookie); rr.Code != http.StatusCreated {
		t.Fatalf("vote change: %d", rr.Code)
	}
	if frame := readFrame(t, conn); frame.PollOptionID != goID || frame.Vote != 0 {
		t.Fatalf("expected Go:0 first, got %+v", frame)
	}
	if frame := readFrame(t, conn); frame.PollOptionID != rustID || frame.Vote != 1 {
		t.Fatalf("expected Rust:1 second, got %+v", frame)
	}

	if rr := server.do(t, http.MethodPost, "/polls/"+pollID+"/vote", pollhttp.VoteRequest{PollOptionID: rustID}); rr.Code != http.StatusCreated {
		t.Fatalf("second session vote: %d", rr.Code)
	}
	if frame := readFrame(t, conn); frame.PollOptionID != rustID || frame.Vote != 2 {
		t.Fatalf("expected Rust:2, got %+v", frame)
	}
}

func TestResultStreamReleasesSubscriptionOnClose(t *testing.T) {
	server := newTestServer(t)
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	pollID, _ := server.createPoll(t, "Lang?", "Go", "Rust")
	conn := dialResults(t, httpServer.URL, pollID)
	waitForSubscribers(t, server, pollID, 1)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	waitForSubscribers(t, server, pollID, 0)
}

func TestResultStreamEndsWhenBusCloses(t *testing.T) {
	server := newTestServer(t)
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	pollID, _ := server.createPoll(t, "Lang?", "Go", "Rust")
	conn := dialResults(t, httpServer.URL, pollID)
	waitForSubscribers(t, server, pollID, 1)

	if err := server.bus.Close(); err != nil {
		t.Fatalf("close bus: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
}

func TestResultStreamRejectsMalformedPollID(t *testing.T) {
	server := newTestServer(t)
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/polls/not-a-uuid/result"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected dial to fail for malformed id")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 handshake response, got %+v", resp)
	}
}

func TestResultStreamRejectsForeignOrigin(t *testing.T) {
	server := newTestServer(t)
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	pollID, _ := server.createPoll(t, "Lang?", "Go", "Rust")
	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/polls/" + pollID + "/result"
	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatalf("expected origin check to reject handshake")
	}
	waitForSubscribers(t, server, pollID, 0)
}
