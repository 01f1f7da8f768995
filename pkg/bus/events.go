package bus

import (
	"context"
	"sync"
	"time"

	"ocppgate/pkg/ocpp"
)

type EventType string

const (
	EventCallSent        EventType = "call_sent"
	EventCallReceived    EventType = "call_received"
	EventResultReceived  EventType = "result_received"
	EventErrorReceived   EventType = "error_received"
	EventSerializeFailed EventType = "serialize_failed"
)

// Event describes one step of a request/response exchange. Subscribers
// correlate them by MessageID.
type Event struct {
	Type        EventType       `json:"type"`
	At          time.Time       `json:"at"`
	ChargeBoxID string          `json:"charge_box_id,omitempty"`
	MessageID   string          `json:"message_id,omitempty"`
	Action      string          `json:"action,omitempty"`
	Origin      ocpp.TaskOrigin `json:"origin,omitempty"`
	ErrorCode   ocpp.ErrorCode  `json:"error_code,omitempty"`
	Error       string          `json:"error,omitempty"`
	// Payload is the raw JSON payload of a received result, if any.
	Payload string `json:"payload,omitempty"`
}

func (mb *MessageBus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	mb.mu.RLock()
	defer mb.mu.RUnlock()
	for _, ch := range mb.eventSubscribers {
		select {
		case ch <- event:
		default:
			// Slow subscribers lose events rather than stall the gateway.
		}
	}

	return true
}

func (mb *MessageBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := mb.nextEventSubscriberID
	mb.nextEventSubscriberID++
	mb.eventSubscribers[id] = ch
	mb.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			mb.mu.Lock()
			if eventCh, ok := mb.eventSubscribers[id]; ok {
				delete(mb.eventSubscribers, id)
				close(eventCh)
			}
			mb.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-mb.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}
