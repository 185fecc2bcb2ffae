package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"livepoll/contexts/live-polling/poll-service/ports"

	"go.uber.org/goleak"
)

const waitTimeout = 2 * time.Second

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestBus(buffer int) *Bus {
	return NewBus(buffer, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func collect(t *testing.T) (ports.ScoreEventHandler, <-chan ports.ScoreEvent) {
	t.Helper()
	events := make(chan ports.ScoreEvent, 16)
	return func(_ context.Context, event ports.ScoreEvent) error {
		events <- event
		return nil
	}, events
}

func receive(t *testing.T, events <-chan ports.ScoreEvent) ports.ScoreEvent {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for score event")
		return ports.ScoreEvent{}
	}
}

func waitDone(t *testing.T, sub ports.Subscription) {
	t.Helper()
	select {
	case <-sub.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for subscription to end")
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := newTestBus(0)
	defer bus.Close()

	if err := bus.Publish(context.Background(), "poll-1", ports.ScoreEvent{OptionID: "a", Score: 1}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestPublishDeliversOnlyToMatchingPoll(t *testing.T) {
	bus := newTestBus(0)
	defer bus.Close()
	ctx := context.Background()

	handlerA, eventsA := collect(t)
	handlerB, eventsB := collect(t)
	if _, err := bus.Subscribe(ctx, "poll-a", handlerA); err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	if _, err := bus.Subscribe(ctx, "poll-b", handlerB); err != nil {
		t.Fatalf("subscribe b: %v", err)
	}

	if err := bus.Publish(ctx, "poll-a", ports.ScoreEvent{PollID: "poll-a", OptionID: "x", Score: 3}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	event := receive(t, eventsA)
	if event.OptionID != "x" || event.Score != 3 {
		t.Fatalf("unexpected event: %+v", event)
	}
	select {
	case unexpected := <-eventsB:
		t.Fatalf("poll-b subscriber received %+v", unexpected)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriberReceivesEventsInPublishOrder(t *testing.T) {
	bus := newTestBus(0)
	defer bus.Close()
	ctx := context.Background()

	handler, events := collect(t)
	if _, err := bus.Subscribe(ctx, "poll-1", handler); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	for i := int64(1); i <= 10; i++ {
		if err := bus.Publish(ctx, "poll-1", ports.ScoreEvent{OptionID: "a", Score: i}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	for i := int64(1); i <= 10; i++ {
		if got := receive(t, events).Score; got != i {
			t.Fatalf("expected score %d, got %d", i, got)
		}
	}
}

func TestUnsubscribeRemovesRegistryEntry(t *testing.T) {
	bus := newTestBus(0)
	defer bus.Close()

	handler, _ := collect(t)
	sub, err := bus.Subscribe(context.Background(), "poll-1", handler)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got := bus.SubscriberCount("poll-1"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	waitDone(t, sub)
	if got := bus.SubscriberCount("poll-1"); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
}

func TestContextCancellationEndsSubscription(t *testing.T) {
	bus := newTestBus(0)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	handler, _ := collect(t)
	sub, err := bus.Subscribe(ctx, "poll-1", handler)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	waitDone(t, sub)
	if got := bus.SubscriberCount("poll-1"); got != 0 {
		t.Fatalf("expected registry cleanup after cancel, got %d", got)
	}
}

func TestFailingSubscribersDoNotAffectOthers(t *testing.T) {
	bus := newTestBus(0)
	defer bus.Close()
	ctx := context.Background()

	if _, err := bus.Subscribe(ctx, "poll-1", func(context.Context, ports.ScoreEvent) error {
		panic("boom")
	}); err != nil {
		t.Fatalf("subscribe panicking: %v", err)
	}
	if _, err := bus.Subscribe(ctx, "poll-1", func(context.Context, ports.ScoreEvent) error {
		return errors.New("handler failed")
	}); err != nil {
		t.Fatalf("subscribe failing: %v", err)
	}
	handler, events := collect(t)
	if _, err := bus.Subscribe(ctx, "poll-1", handler); err != nil {
		t.Fatalf("subscribe healthy: %v", err)
	}

	for i := int64(1); i <= 2; i++ {
		if err := bus.Publish(ctx, "poll-1", ports.ScoreEvent{OptionID: "a", Score: i}); err != nil {
			t.Fatalf("publish returned subscriber failure: %v", err)
		}
	}
	if got := receive(t, events).Score; got != 1 {
		t.Fatalf("expected first event, got %d", got)
	}
	if got := receive(t, events).Score; got != 2 {
		t.Fatalf("expected second event, got %d", got)
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := newTestBus(1)
	defer bus.Close()
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	if _, err := bus.Subscribe(ctx, "poll-1", func(context.Context, ports.ScoreEvent) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}); err != nil {
		t.Fatalf("subscribe slow: %v", err)
	}
	handler, events := collect(t)
	if _, err := bus.Subscribe(ctx, "poll-1", handler); err != nil {
		t.Fatalf("subscribe fast: %v", err)
	}

	if err := bus.Publish(ctx, "poll-1", ports.ScoreEvent{OptionID: "a", Score: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	<-started
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := int64(2); i <= 5; i++ {
			_ = bus.Publish(ctx, "poll-1", ports.ScoreEvent{OptionID: "a", Score: i})
		}
	}()
	select {
	case <-finished:
	case <-time.After(waitTimeout):
		t.Fatalf("publish blocked on slow subscriber")
	}
	close(release)

	if got := receive(t, events).Score; got != 1 {
		t.Fatalf("fast subscriber expected first event, got %d", got)
	}
}

func TestCloseEndsSubscriptionsAndRejectsUse(t *testing.T) {
	bus := newTestBus(0)
	ctx := context.Background()

	handler, _ := collect(t)
	subs := make([]ports.Subscription, 0, 3)
	for _, pollID := range []string{"poll-1", "poll-1", "poll-2"} {
		sub, err := bus.Subscribe(ctx, pollID, handler)
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		subs = append(subs, sub)
	}

	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, sub := range subs {
		waitDone(t, sub)
	}
	if err := bus.Publish(ctx, "poll-1", ports.ScoreEvent{}); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed on publish, got %v", err)
	}
	if _, err := bus.Subscribe(ctx, "poll-1", handler); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed on subscribe, got %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestUnsubscribeFromInsideHandler(t *testing.T) {
	bus := newTestBus(0)
	defer bus.Close()
	ctx := context.Background()

	var sub ports.Subscription
	ready := make(chan struct{})
	sub, err := bus.Subscribe(ctx, "poll-1", func(context.Context, ports.ScoreEvent) error {
		<-ready
		sub.Unsubscribe()
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	close(ready)
	if err := bus.Publish(ctx, "poll-1", ports.ScoreEvent{OptionID: "a", Score: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitDone(t, sub)
}
