package store

// Session is the durable projection of a session's in-memory state machine.
type Session struct {
	ID                   string
	TenantID             string
	Name                 string
	Status               string
	PhoneNumber          string
	AvatarURL            string
	QRCode               string
	LastError            string
	ReconnectAttempts    int
	MaxReconnectAttempts int
	IsActive             bool
	CreatedAt            int64
	UpdatedAt            int64
}

// Contact represents a peer observed by a session, scoped to the tenant and
// session that first saw it.
type Contact struct {
	ID             int64
	TenantID       string
	SessionID      string
	PeerID         string
	Name           string
	AvatarURL      string
	LastActivityAt int64
	CreatedAt      int64
}

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message represents a persisted message. ProviderMsgID is the id assigned
// by the messaging network when available, or a locally generated id.
type Message struct {
	ID            int64
	SessionID     string
	ContactID     int64
	ProviderMsgID string
	Direction     string
	Body          string
	MediaURL      string
	MediaType     string
	Status        string
	Timestamp     int64
}
