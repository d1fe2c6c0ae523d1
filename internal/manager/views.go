package manager

import "github.com/cesar59xxx/eeeeeeee/internal/store"

// Views are the JSON shapes shared by the REST responses and the realtime
// broadcasts, so the pull and push paths can never drift apart.

// Identity is the paired phone account of a connected session.
type Identity struct {
	PhoneNumber string `json:"phoneNumber"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// SessionView is the wire shape of a session.
type SessionView struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenantId"`
	Name              string    `json:"name"`
	Status            string    `json:"status"`
	Identity          *Identity `json:"identity,omitempty"`
	PairingPayload    string    `json:"pairingPayload,omitempty"`
	LastError         string    `json:"lastError,omitempty"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
	IsActive          bool      `json:"isActive"`
	CreatedAt         int64     `json:"createdAt"`
	UpdatedAt         int64     `json:"updatedAt"`
}

// ContactView is the wire shape of a contact.
type ContactView struct {
	ID             int64  `json:"id"`
	TenantID       string `json:"tenantId"`
	SessionID      string `json:"sessionId"`
	PeerID         string `json:"peerId"`
	Name           string `json:"name"`
	AvatarURL      string `json:"avatarUrl,omitempty"`
	LastActivityAt int64  `json:"lastActivityAt"`
}

// MessageView is the wire shape of a message.
type MessageView struct {
	ID            int64  `json:"id"`
	SessionID     string `json:"sessionId"`
	ContactID     int64  `json:"contactId"`
	ProviderMsgID string `json:"providerMsgId"`
	Direction     string `json:"direction"`
	Body          string `json:"body"`
	MediaURL      string `json:"mediaUrl,omitempty"`
	MediaType     string `json:"mediaType,omitempty"`
	Status        string `json:"status"`
	Timestamp     int64  `json:"timestamp"`
}

// StatusEvent is the status-changed broadcast payload.
type StatusEvent struct {
	SessionID string    `json:"sessionId"`
	Status    string    `json:"status"`
	Identity  *Identity `json:"identity,omitempty"`
}

// PairingEvent is the pairing-payload-available broadcast payload.
type PairingEvent struct {
	SessionID string `json:"sessionId"`
	Payload   string `json:"payload"`
}

// MessageEvent is the message-received broadcast payload.
type MessageEvent struct {
	SessionID string      `json:"sessionId"`
	Message   MessageView `json:"message"`
	Contact   ContactView `json:"contact"`
}

// MessageStatusEvent is the message-status-changed broadcast payload.
type MessageStatusEvent struct {
	SessionID     string `json:"sessionId"`
	ProviderMsgID string `json:"providerMsgId"`
	Status        string `json:"status"`
}

// SessionToView converts a stored session row.
func SessionToView(s *store.Session) SessionView {
	v := SessionView{
		ID:                s.ID,
		TenantID:          s.TenantID,
		Name:              s.Name,
		Status:            s.Status,
		PairingPayload:    s.QRCode,
		LastError:         s.LastError,
		ReconnectAttempts: s.ReconnectAttempts,
		IsActive:          s.IsActive,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
	if s.PhoneNumber != "" {
		v.Identity = &Identity{PhoneNumber: s.PhoneNumber, AvatarURL: s.AvatarURL}
	}
	return v
}

// ContactToView converts a stored contact row.
func ContactToView(c *store.Contact) ContactView {
	return ContactView{
		ID:             c.ID,
		TenantID:       c.TenantID,
		SessionID:      c.SessionID,
		PeerID:         c.PeerID,
		Name:           c.Name,
		AvatarURL:      c.AvatarURL,
		LastActivityAt: c.LastActivityAt,
	}
}

// MessageToView converts a stored message row.
func MessageToView(m *store.Message) MessageView {
	return MessageView{
		ID:            m.ID,
		SessionID:     m.SessionID,
		ContactID:     m.ContactID,
		ProviderMsgID: m.ProviderMsgID,
		Direction:     m.Direction,
		Body:          m.Body,
		MediaURL:      m.MediaURL,
		MediaType:     m.MediaType,
		Status:        m.Status,
		Timestamp:     m.Timestamp,
	}
}
