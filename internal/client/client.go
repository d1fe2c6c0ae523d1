// Package client defines the boundary to the underlying messaging-network
// automation client. The manager drives implementations of Client through
// their lifecycle and receives everything they observe as tagged events.
package client

import (
	"context"
	"strings"
	"time"
)

// EventKind tags events emitted by an automation client.
type EventKind string

const (
	EventPairingCode   EventKind = "pairing_code"
	EventAuthenticated EventKind = "authenticated"
	EventReady         EventKind = "ready"
	EventAuthFailure   EventKind = "auth_failure"
	EventDisconnected  EventKind = "disconnected"
	EventMessage       EventKind = "message"
	EventAck           EventKind = "ack"
)

// Acknowledgement codes on the provider's scale.
const (
	AckPending   = 0
	AckSent      = 1
	AckDelivered = 2
	AckRead      = 3
	AckFailed    = -1
)

// Identity describes the paired phone account.
type Identity struct {
	PhoneNumber string
	AvatarURL   string
}

// IncomingMessage is a normalized message observed by the client.
type IncomingMessage struct {
	ProviderMsgID string
	PeerAddress   string // provider address form, e.g. "5511999999999@s.whatsapp.net"
	Body          string
	MediaURL      string
	MediaType     string
	FromMe        bool
	Timestamp     time.Time
}

// Ack is a delivery acknowledgement for a previously sent message.
type Ack struct {
	ProviderMsgID string
	Code          int
}

// Event is the tagged union delivered to the manager. Exactly the fields for
// the given Kind are populated.
type Event struct {
	Kind        EventKind
	PairingCode string
	Identity    Identity
	Reason      string
	Message     *IncomingMessage
	Ack         *Ack
}

// Handler receives client events. Implementations deliver events
// sequentially; the manager relies on per-session FIFO order.
type Handler func(Event)

// Client is one live connection to the messaging network.
type Client interface {
	// Start begins asynchronous bring-up. Pairing payloads, readiness and
	// failures arrive through the handler, not as a return value.
	Start(ctx context.Context) error
	// SendText dispatches a text message and returns the provider-assigned
	// message id.
	SendText(ctx context.Context, peerAddress, body string) (string, error)
	// ProfilePicture is a best-effort avatar lookup for a peer. Returns ""
	// without error when the peer has no visible picture.
	ProfilePicture(ctx context.Context, peerAddress string) (string, error)
	// Stop tears down the connection. Safe to call more than once.
	Stop()
	// Logout invalidates the stored credentials.
	Logout(ctx context.Context) error
}

// Factory creates clients bound to a session's credential store.
type Factory interface {
	New(ctx context.Context, sessionID string, h Handler) (Client, error)
}

// PeerToken extracts the phone-like token from a provider address:
// "5511999999999@s.whatsapp.net" -> "5511999999999".
func PeerToken(addr string) string {
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		return addr[:i]
	}
	return addr
}
