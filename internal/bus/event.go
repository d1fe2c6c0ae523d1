package bus

import "time"

// Event represents a domain event published on the bus.
//
// SessionID scopes the event to one session's subscribers (a dashboard
// "room"). Global marks events that every connected subscriber should also
// receive regardless of room membership, such as list-refresh signals.
type Event struct {
	Kind      string
	SessionID string
	Global    bool
	Timestamp time.Time
	Payload   any
}
