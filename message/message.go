package message

import (
	"fmt"
	"time"
)

// Message is the payload exchanged between components through queues.
type Message struct {
	// Body holds the raw payload. Treat it as read-only.
	Body []byte `json:"body"`
	// Timestamp is the creation time in unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// New creates a message with a private copy of body.
func New(body []byte, timestamp int64) Message {
	return Message{Body: clone(body), Timestamp: timestamp}
}

// Now creates a message stamped with the current wall clock.
func Now(body []byte) Message {
	return New(body, time.Now().UnixMilli())
}

// FromString creates a message from a string payload.
func FromString(body string, timestamp int64) Message {
	return Message{Body: []byte(body), Timestamp: timestamp}
}

// Size returns the payload length in bytes.
func (m Message) Size() int {
	return len(m.Body)
}

// Time returns Timestamp as a time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Clone returns a deep copy.
func (m Message) Clone() Message {
	return Message{Body: clone(m.Body), Timestamp: m.Timestamp}
}

// String implements fmt.Stringer for log output.
func (m Message) String() string {
	return fmt.Sprintf("Message{size=%d, timestamp=%d}", len(m.Body), m.Timestamp)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
