package sse

import "time"

// Event types used by the server and clients.
const (
	// EventTypeMessage is the type of an event without an explicit name.
	EventTypeMessage = "message"

	// EventTypeKeepAlive is written as a comment to keep idle connections open.
	EventTypeKeepAlive = "keepalive"

	// ContentType is the media type of an event stream.
	ContentType = "text/event-stream"

	// HeaderLastEventID carries the id of the last event a client saw.
	HeaderLastEventID = "Last-Event-ID"
)

// Event is one frame of an event stream.
type Event struct {
	// ID is the event id. HasID distinguishes an empty "id:" field, which
	// resets the client's last event id, from a frame with no id at all.
	ID    string
	HasID bool
	// Name is the "event:" field. Empty means EventTypeMessage.
	Name string
	// Data holds the "data:" lines joined with newlines. HasData is set
	// when the frame carried a data field, even an empty one.
	Data    string
	HasData bool
	// Comment holds the ":" lines joined with newlines.
	Comment string
	// Retry is the reconnection delay the server asked for, if any.
	Retry time.Duration
}

// IsEmpty reports whether the frame carries no fields at all.
func (e Event) IsEmpty() bool {
	return !e.HasID && e.Name == "" && e.Data == "" && !e.HasData && e.Comment == "" && e.Retry == 0
}

// Type returns the event name, defaulting to EventTypeMessage.
func (e Event) Type() string {
	if e.Name == "" {
		return EventTypeMessage
	}
	return e.Name
}

// Dispatchable reports whether the frame should reach event listeners.
// Only frames with a data field are dispatched; a bare "event:" line is
// dropped like a comment.
func (e Event) Dispatchable() bool {
	return e.HasData || e.Data != ""
}

// WithID returns a copy of e carrying id.
func (e Event) WithID(id string) Event {
	e.ID = id
	e.HasID = true
	return e
}
