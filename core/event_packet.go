package core

import (
	"time"

	"github.com/google/uuid"
)

// EventPacket wraps an event for delivery outside the process (control plane, logs).
type EventPacket struct {
	Event     IEvent
	Uid       string    // Unique identifier for tracking the event packet.
	Relayer   string    // Identifier of the component that emitted the event.
	Timestamp time.Time // Emission time.
}

func NewEventPacket(event IEvent, relayer string) *EventPacket {
	return &EventPacket{
		Event:     event,
		Uid:       uuid.New().String(),
		Relayer:   relayer,
		Timestamp: time.Now().UTC(),
	}
}
