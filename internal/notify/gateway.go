// Package notify delivers dispatch events to patients and nurses over
// websockets and to downstream consumers over AMQP. Delivery is best
// effort everywhere: dispatch state never depends on a message landing.
package notify

import (
	"context"
	"log"
)

// Recipient roles.
const (
	RolePatient = "patient"
	RoleNurse   = "nurse"
)

// Event types.
const (
	EventNewRequest    = "new_request"
	EventStatusChanged = "status_changed"
	EventNurseArriving = "nurse_arriving"
	EventLocationPing  = "location_update"
)

// Event is one notification addressed to a single recipient.
type Event struct {
	Type        string `json:"type"`
	RecipientID string `json:"-"`
	Role        string `json:"-"`
	Payload     any    `json:"payload"`
}

// Gateway fans an event out to a recipient. Implementations must not
// block the caller on slow consumers.
type Gateway interface {
	Notify(ctx context.Context, ev Event)
}

// Nop discards all events. Used in tests and when no transport is wired.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// Multi delivers the same event to every underlying gateway.
type Multi []Gateway

func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, g := range m {
		g.Notify(ctx, ev)
	}
}

// Recorder keeps delivered events in memory for test assertions.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Notify(_ context.Context, ev Event) {
	r.Events = append(r.Events, ev)
}

// logMisroute flags events with no recipient, which indicates a caller bug.
func logMisroute(ev Event) {
	if ev.RecipientID == "" || ev.Role == "" {
		log.Printf("[notify] dropping unaddressed event type=%s", ev.Type)
	}
}
