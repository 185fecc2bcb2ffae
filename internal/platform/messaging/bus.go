package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"livepoll/contexts/live-polling/poll-service/ports"
)

const DefaultSubscriberBuffer = 64

var ErrBusClosed = errors.New("notification bus closed")

// Bus is the in-process score notification bus. Each subscriber owns a bounded
// queue drained by a single goroutine, so delivery to one subscriber follows
// publish order while a slow or failing subscriber never blocks the publisher
// or its neighbours.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscription
	closed      bool
	buffer      int
	logger      *slog.Logger
	wg          sync.WaitGroup
}

func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string][]*subscription),
		buffer:      buffer,
		logger:      logger,
	}
}

type subscription struct {
	bus     *Bus
	pollID  string
	handler ports.ScoreEventHandler
	queue   chan ports.ScoreEvent
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Unsubscribe detaches the subscriber. Safe to call more than once and from
// inside the handler.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.stop)
	})
}

// Done is closed once the delivery goroutine has exited.
func (s *subscription) Done() <-chan struct{} {
	return s.done
}

func (b *Bus) Publish(ctx context.Context, pollID string, event ports.ScoreEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	subs := append([]*subscription(nil), b.subscribers[pollID]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.queue <- event:
		default:
			b.logger.Warn("dropping score event for slow subscriber",
				"event", "bus_publish_drop",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"poll_id", pollID,
				"option_id", event.OptionID,
			)
		}
	}

	b.logger.Debug("score event published",
		"event", "bus_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"poll_id", pollID,
		"option_id", event.OptionID,
		"score", event.Score,
		"subscriber_count", len(subs),
	)
	return nil
}

// Subscribe registers handler for pollID. The subscription ends when ctx is
// done, when Unsubscribe is called, or when the bus is closed.
func (b *Bus) Subscribe(
	ctx context.Context,
	pollID string,
	handler ports.ScoreEventHandler,
) (ports.Subscription, error) {
	if handler == nil {
		return nil, errors.New("score event handler is required")
	}
	sub := &subscription{
		bus:     b,
		pollID:  pollID,
		handler: handler,
		queue:   make(chan ports.ScoreEvent, b.buffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	b.subscribers[pollID] = append(b.subscribers[pollID], sub)
	b.wg.Add(1)
	b.mu.Unlock()

	go b.run(ctx, sub)

	b.logger.Debug("score subscriber registered",
		"event", "bus_subscribe",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"poll_id", pollID,
	)
	return sub, nil
}

func (b *Bus) run(ctx context.Context, sub *subscription) {
	defer b.wg.Done()
	defer close(sub.done)
	for {
		select {
		case <-sub.stop:
			return
		case <-ctx.Done():
			sub.Unsubscribe()
			return
		case event := <-sub.queue:
			b.deliver(ctx, sub, event)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, sub *subscription, event ports.ScoreEvent) {
	defer func() {
		if recovered := recover(); recovered != nil {
			b.logger.Error("score subscriber panicked",
				"event", "bus_subscriber_panic",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"poll_id", sub.pollID,
				"panic", fmt.Sprint(recovered),
			)
		}
	}()
	if err := sub.handler(ctx, event); err != nil {
		b.logger.Warn("score subscriber handler failed",
			"event", "bus_subscriber_failed",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"poll_id", sub.pollID,
			"option_id", event.OptionID,
			"error", err.Error(),
		)
	}
}

// SubscriberCount reports how many live subscriptions pollID has.
func (b *Bus) SubscriberCount(pollID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[pollID])
}

// Close ends every subscription and waits for delivery goroutines to exit.
// Later Publish and Subscribe calls return ErrBusClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*subscription
	for _, items := range b.subscribers {
		subs = append(subs, items...)
	}
	b.subscribers = make(map[string][]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	b.wg.Wait()

	b.logger.Info("notification bus closed",
		"event", "bus_closed",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"subscriber_count", len(subs),
	)
	return nil
}

func (b *Bus) remove(target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.subscribers[target.pollID]
	if len(items) == 0 {
		return
	}
	filtered := make([]*subscription, 0, len(items))
	for _, item := range items {
		if item != target {
			filtered = append(filtered, item)
		}
	}
	if len(filtered) == 0 {
		delete(b.subscribers, target.pollID)
		return
	}
	b.subscribers[target.pollID] = filtered
}

var _ ports.NotificationBus = (*Bus)(nil)
