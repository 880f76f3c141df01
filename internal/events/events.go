// Package events publishes broker-session lifecycle events to a message bus.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeSessionRefreshed = "session.refreshed"
	TypeSessionFailed    = "session.failed"
	TypeFallbackServed   = "marketdata.fallback_served"
)

// Event is the envelope written to the bus.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Type          string          `json:"event_type"`
	Service       string          `json:"service"`
	Venue         string          `json:"venue"`
	ClientCode    string          `json:"client_code,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// New stamps a fresh event of type typ for venue.
func New(typ, venue string) Event {
	return Event{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Type:          typ,
		Venue:         venue,
		Timestamp:     time.Now().UTC(),
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
