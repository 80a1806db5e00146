package kafka

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cart/internal/cart"
	"github.com/vladislavdragonenkov/cart/internal/domain"
)

const (
	defaultBufferSize   = 1024
	defaultDrainTimeout = 5 * time.Second
)

var cartEventsForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cart_events_forwarded_total",
	Help: "Total number of cart events handed to kafka grouped by result.",
}, []string{"result"})

// EventPublisher отправляет событие наружу (реализуется Producer).
type EventPublisher interface {
	PublishEvent(topic string, key string, event interface{}) error
}

// ForwarderOptions задаёт параметры Forwarder.
type ForwarderOptions struct {
	Logger       *log.Entry
	Topic        string
	BufferSize   int
	DrainTimeout time.Duration
}

// ForwarderOption настраивает Forwarder.
type ForwarderOption func(*ForwarderOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) ForwarderOption {
	return func(opts *ForwarderOptions) {
		opts.Logger = logger
	}
}

// WithTopic задаёт topic событий.
func WithTopic(topic string) ForwarderOption {
	return func(opts *ForwarderOptions) {
		opts.Topic = topic
	}
}

// WithBufferSize задаёт размер буфера событий.
func WithBufferSize(size int) ForwarderOption {
	return func(opts *ForwarderOptions) {
		opts.BufferSize = size
	}
}

// WithDrainTimeout ограничивает дообработку буфера после остановки.
func WithDrainTimeout(timeout time.Duration) ForwarderOption {
	return func(opts *ForwarderOptions) {
		opts.DrainTimeout = timeout
	}
}

// Forwarder асинхронно публикует изменения корзин в Kafka.
// Observe не блокирует: при переполненном буфере событие отбрасывается.
type Forwarder struct {
	publisher    EventPublisher
	logger       *log.Entry
	topic        string
	drainTimeout time.Duration
	events       chan *CartEvent
}

// NewForwarder создаёт Forwarder поверх publisher.
func NewForwarder(publisher EventPublisher, options ...ForwarderOption) *Forwarder {
	opts := ForwarderOptions{
		Topic:        TopicCartEvents,
		BufferSize:   defaultBufferSize,
		DrainTimeout: defaultDrainTimeout,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-event-forwarder")
	}
	if opts.Topic == "" {
		opts.Topic = TopicCartEvents
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}

	return &Forwarder{
		publisher:    publisher,
		logger:       logger,
		topic:        opts.Topic,
		drainTimeout: opts.DrainTimeout,
		events:       make(chan *CartEvent, opts.BufferSize),
	}
}

// Observe ставит изменение корзины в очередь публикации; подходит как наблюдатель сессии.
func (f *Forwarder) Observe(sessionID string, change cart.Change) {
	if err := f.Enqueue(NewCartEvent(sessionID, change)); err != nil {
		f.logger.WithError(err).WithFields(log.Fields{
			"session_id": sessionID,
			"version":    change.Snapshot.Version,
		}).Warn("cart event dropped")
	}
}

// Enqueue ставит событие в буфер или возвращает domain.ErrForwarderFull.
func (f *Forwarder) Enqueue(event *CartEvent) error {
	select {
	case f.events <- event:
		return nil
	default:
		cartEventsForwarded.WithLabelValues("dropped").Inc()
		return domain.ErrForwarderFull
	}
}

// Pending возвращает количество событий в буфере.
func (f *Forwarder) Pending() int {
	return len(f.events)
}

// Run публикует события до отмены ctx, затем дообрабатывает буфер в пределах DrainTimeout.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.drain()
			return
		case event := <-f.events:
			f.publish(event)
		}
	}
}

func (f *Forwarder) drain() {
	deadline := time.After(f.drainTimeout)
	for {
		select {
		case event := <-f.events:
			f.publish(event)
		case <-deadline:
			if pending := len(f.events); pending > 0 {
				f.logger.WithField("pending", pending).Warn("cart event drain timed out")
			}
			return
		default:
			return
		}
	}
}

func (f *Forwarder) publish(event *CartEvent) {
	if err := f.publisher.PublishEvent(f.topic, event.SessionID, event); err != nil {
		cartEventsForwarded.WithLabelValues("error").Inc()
		f.logger.WithError(err).WithFields(log.Fields{
			"session_id": event.SessionID,
			"event_type": event.EventType,
		}).Warn("failed to publish cart event")
		return
	}
	cartEventsForwarded.WithLabelValues("ok").Inc()
}
