package core

import (
	"time"

	"github.com/google/uuid"
)

// EventPacket wraps an event with tracking metadata on its way to a
// presenter.
type EventPacket struct {
	Event     IEvent
	Uid       string    // Unique identifier for tracking the event packet.
	Relayer   string    // Identifier of the component that emitted the event.
	Timestamp time.Time // When the packet was created.
}

func NewEventPacket(event IEvent, relayer string) *EventPacket {
	return &EventPacket{
		Event:     event,
		Uid:       uuid.New().String(),
		Relayer:   relayer,
		Timestamp: time.Now().UTC(),
	}
}
