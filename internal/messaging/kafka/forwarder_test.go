package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cart/internal/cart"
	"github.com/vladislavdragonenkov/cart/internal/domain"
)

type stubPublisher struct {
	mu     sync.Mutex
	events []*CartEvent
	topics []string
	err    error
}

func (p *stubPublisher) PublishEvent(topic string, _ string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event.(*CartEvent))
	return nil
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func testLogger() *log.Entry {
	return log.WithField("component", "forwarder-test")
}

func TestForwarder_PublishesInOrder(t *testing.T) {
	publisher := &stubPublisher{}
	forwarder := NewForwarder(publisher, WithLogger(testLogger()), WithTopic("cart.test"))

	store := cart.NewStore()
	store.Subscribe(func(change cart.Change) { forwarder.Observe("session-1", change) })
	store.Add(domain.CartLine{ID: 1, Quantity: 1})
	store.UpdateQuantity(1, 4)
	store.Remove(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		forwarder.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for publisher.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if publisher.count() != 3 {
		t.Fatalf("expected 3 events, got %d", publisher.count())
	}
	for i, event := range publisher.events {
		if event.Version != uint64(i+1) {
			t.Errorf("event %d: expected version %d, got %d", i, i+1, event.Version)
		}
		if publisher.topics[i] != "cart.test" {
			t.Errorf("event %d: unexpected topic %s", i, publisher.topics[i])
		}
	}
	if publisher.events[2].EventType != EventTypeLineRemoved {
		t.Errorf("expected last event %s, got %s", EventTypeLineRemoved, publisher.events[2].EventType)
	}
}

func TestForwarder_DropsWhenBufferFull(t *testing.T) {
	forwarder := NewForwarder(&stubPublisher{}, WithLogger(testLogger()), WithBufferSize(1))

	if err := forwarder.Enqueue(&CartEvent{SessionID: "s"}); err != nil {
		t.Fatalf("first enqueue should succeed, got %v", err)
	}
	err := forwarder.Enqueue(&CartEvent{SessionID: "s"})
	if !errors.Is(err, domain.ErrForwarderFull) {
		t.Fatalf("expected ErrForwarderFull, got %v", err)
	}

	// Observe не должен блокироваться при переполнении.
	forwarder.Observe("s", cart.Change{Op: domain.CartOpClear})
	if forwarder.Pending() != 1 {
		t.Fatalf("expected 1 pending event, got %d", forwarder.Pending())
	}
}

func TestForwarder_DrainsOnStop(t *testing.T) {
	publisher := &stubPublisher{}
	forwarder := NewForwarder(publisher, WithLogger(testLogger()), WithDrainTimeout(time.Second))

	for i := 0; i < 5; i++ {
		if err := forwarder.Enqueue(&CartEvent{SessionID: "s", Version: uint64(i + 1)}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	forwarder.Run(ctx)

	if forwarder.Pending() != 0 {
		t.Fatalf("expected empty buffer after drain, got %d", forwarder.Pending())
	}
	if publisher.count() != 5 {
		t.Fatalf("expected 5 published events, got %d", publisher.count())
	}
}

func TestForwarder_PublishErrorIsNotFatal(t *testing.T) {
	publisher := &stubPublisher{err: errors.New("broker down")}
	forwarder := NewForwarder(publisher, WithLogger(testLogger()))

	if err := forwarder.Enqueue(&CartEvent{SessionID: "s"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	forwarder.Run(ctx)

	if forwarder.Pending() != 0 {
		t.Fatalf("expected event to be consumed, got %d pending", forwarder.Pending())
	}
}

func TestNewForwarder_Defaults(t *testing.T) {
	forwarder := NewForwarder(&stubPublisher{}, WithTopic(""), WithBufferSize(0), WithDrainTimeout(-1))

	if forwarder.topic != TopicCartEvents {
		t.Errorf("expected default topic, got %s", forwarder.topic)
	}
	if cap(forwarder.events) != defaultBufferSize {
		t.Errorf("expected default buffer %d, got %d", defaultBufferSize, cap(forwarder.events))
	}
	if forwarder.drainTimeout != defaultDrainTimeout {
		t.Errorf("expected default drain timeout, got %s", forwarder.drainTimeout)
	}
}
