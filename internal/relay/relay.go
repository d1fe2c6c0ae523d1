// Package relay persists messages exactly once per provider-assigned id and
// advances delivery status monotonically.
package relay

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cesar59xxx/eeeeeeee/internal/client"
	"github.com/cesar59xxx/eeeeeeee/internal/store"
)

// ErrMessageNotFound is returned by UpdateStatus when no message matches the
// provider id. Callers processing acknowledgement streams should ignore it.
var ErrMessageNotFound = errors.New("message not found")

// Delivery statuses in ack order. "received" marks inbound messages and
// never advances.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
	StatusReceived  = "received"
)

// statusRank orders the forward-only delivery statuses. failed and received
// are outside the ordered set.
var statusRank = map[string]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// AckStatus maps a provider acknowledgement code to a delivery status.
func AckStatus(code int) string {
	switch code {
	case client.AckSent:
		return StatusSent
	case client.AckDelivered:
		return StatusDelivered
	case client.AckRead:
		return StatusRead
	case client.AckFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Relay is the persistence pipeline for message records.
type Relay struct {
	db     *store.DB
	logger *zap.Logger
}

// New creates a message relay.
func New(db *store.DB, logger *zap.Logger) *Relay {
	return &Relay{db: db, logger: logger}
}

// Record persists a message exactly once per (session, provider id).
// Replays return the existing row with created false. Messages without a
// provider id get a locally generated one.
func (r *Relay) Record(m *store.Message) (*store.Message, bool, error) {
	if m.ProviderMsgID == "" {
		m.ProviderMsgID = uuid.New().String()
	}
	stored, inserted, err := r.db.InsertMessageIfAbsent(m)
	if err != nil {
		return nil, false, fmt.Errorf("record message: %w", err)
	}
	if !inserted {
		r.logger.Debug("duplicate message ignored",
			zap.String("session", m.SessionID),
			zap.String("provider_msg_id", m.ProviderMsgID))
	}
	return stored, inserted, nil
}

// UpdateStatus advances a message's delivery status. Returns the stored row
// and whether anything changed. Status only moves forward through
// pending -> sent -> delivered -> read; failed is accepted from any
// non-terminal state; anything else is a no-op.
func (r *Relay) UpdateStatus(sessionID, providerMsgID, newStatus string) (*store.Message, bool, error) {
	cur, err := r.db.GetMessageByProviderID(sessionID, providerMsgID)
	if err != nil {
		return nil, false, fmt.Errorf("lookup message: %w", err)
	}
	if cur == nil {
		return nil, false, ErrMessageNotFound
	}

	if !advances(cur.Status, newStatus) {
		return cur, false, nil
	}
	if err := r.db.UpdateMessageStatus(cur.ID, newStatus); err != nil {
		return nil, false, fmt.Errorf("update status: %w", err)
	}
	cur.Status = newStatus
	return cur, true, nil
}

func advances(current, next string) bool {
	if current == StatusFailed || current == StatusRead {
		return false // terminal
	}
	if next == StatusFailed {
		return true
	}
	curRank, curOK := statusRank[current]
	nextRank, nextOK := statusRank[next]
	if !nextOK {
		return false
	}
	if current == StatusReceived || !curOK {
		// Inbound messages keep their received status.
		return false
	}
	return nextRank > curRank
}
