package kafka

import (
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/cart/internal/cart"
	"github.com/vladislavdragonenkov/cart/internal/domain"
)

// EventType определяет тип события корзины
type EventType string

const (
	EventTypeLineAdded       EventType = "cart.line_added"
	EventTypeQuantityUpdated EventType = "cart.quantity_updated"
	EventTypeLineRemoved     EventType = "cart.line_removed"
	EventTypeCleared         EventType = "cart.cleared"
	EventTypeClosed          EventType = "cart.closed"
)

// TopicCartEvents: topic по умолчанию для событий корзин.
const TopicCartEvents = "cart.events"

// CartEvent: snapshot корзины после изменения.
type CartEvent struct {
	EventID   string            `json:"event_id"`
	EventType EventType         `json:"event_type"`
	SessionID string            `json:"session_id"`
	Version   uint64            `json:"version"`
	Lines     []domain.CartLine `json:"lines"`
	Timestamp time.Time         `json:"timestamp"`
}

// EventTypeFor сопоставляет операцию корзины с типом события.
func EventTypeFor(op domain.CartOp) EventType {
	switch op {
	case domain.CartOpAdd:
		return EventTypeLineAdded
	case domain.CartOpUpdateQuantity:
		return EventTypeQuantityUpdated
	case domain.CartOpRemove:
		return EventTypeLineRemoved
	case domain.CartOpClear:
		return EventTypeCleared
	case domain.CartOpClose:
		return EventTypeClosed
	default:
		return EventType("cart." + string(op))
	}
}

// NewCartEvent создает событие из изменения корзины сессии.
func NewCartEvent(sessionID string, change cart.Change) *CartEvent {
	return &CartEvent{
		EventID:   uuid.NewString(),
		EventType: EventTypeFor(change.Op),
		SessionID: sessionID,
		Version:   change.Snapshot.Version,
		Lines:     change.Snapshot.Lines,
		Timestamp: time.Now().UTC(),
	}
}
