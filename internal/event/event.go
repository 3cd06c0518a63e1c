// Package event holds the broadcast event value and the ordered collection
// the daemon schedules from.
package event

import (
	"time"
	"unicode/utf8"
)

// MaxDescriptionLen is the largest description, in bytes, an Event carries.
// Longer text is truncated; the wire payload adds one terminator byte.
const MaxDescriptionLen = 254

// Event is one scheduled announcement. It is a plain value: workers receive
// their own copy and never share it with the list it came from.
type Event struct {
	// RepeatAfter is the pause between two sends.
	RepeatAfter time.Duration
	// RepeatDuring bounds how long the schedule stays active. Zero means forever.
	RepeatDuring time.Duration
	Description  string
}

// New builds an Event from whole seconds, truncating the description.
func New(repeatAfter, repeatDuring int64, description string) Event {
	return Event{
		RepeatAfter:  time.Duration(repeatAfter) * time.Second,
		RepeatDuring: time.Duration(repeatDuring) * time.Second,
		Description:  TruncateDescription(description),
	}
}

// Infinite reports whether the event repeats until it is cancelled.
func (e Event) Infinite() bool { return e.RepeatDuring == 0 }

// Payload returns the datagram body: the description followed by a NUL byte.
func (e Event) Payload() []byte {
	b := make([]byte, len(e.Description)+1)
	copy(b, e.Description)
	return b
}

// TruncateDescription cuts s to MaxDescriptionLen bytes without splitting a
// UTF-8 sequence.
func TruncateDescription(s string) string {
	if len(s) <= MaxDescriptionLen {
		return s
	}
	cut := MaxDescriptionLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
