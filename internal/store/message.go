package store

import (
	"database/sql"
	"time"
)

// InsertMessageIfAbsent persists a message once per (session, provider id).
// Returns the stored row and whether this call inserted it. Replays of the
// same provider id return the existing row unchanged.
func (db *DB) InsertMessageIfAbsent(m *Message) (*Message, bool, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO messages (session_id, contact_id, provider_msg_id, direction, body,
			media_url, media_type, status, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, provider_msg_id) DO NOTHING`,
		m.SessionID, m.ContactID, m.ProviderMsgID, m.Direction, m.Body,
		m.MediaURL, m.MediaType, m.Status, m.Timestamp, now)
	if err != nil {
		return nil, false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	stored, err := db.GetMessageByProviderID(m.SessionID, m.ProviderMsgID)
	if err != nil {
		return nil, false, err
	}
	return stored, inserted > 0, nil
}

// GetMessageByProviderID returns a message by provider id, or nil.
func (db *DB) GetMessageByProviderID(sessionID, providerMsgID string) (*Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT id, session_id, contact_id, provider_msg_id, direction, body,
			media_url, media_type, status, timestamp
		FROM messages WHERE session_id = ? AND provider_msg_id = ?`,
		sessionID, providerMsgID).
		Scan(&m.ID, &m.SessionID, &m.ContactID, &m.ProviderMsgID, &m.Direction, &m.Body,
			&m.MediaURL, &m.MediaType, &m.Status, &m.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMessageStatus sets the delivery status of a message row.
// Monotonicity is enforced by the relay, which is the sole writer for a
// session's acknowledgements.
func (db *DB) UpdateMessageStatus(id int64, status string) error {
	_, err := db.Exec(`UPDATE messages SET status = ? WHERE id = ?`, status, id)
	return err
}

// ListMessages returns a session's messages for one contact using keyset
// pagination. Rows come back oldest first within the page so arrival order
// is preserved for equal timestamps (ordered by insertion id, not re-sorted).
func (db *DB) ListMessages(sessionID string, contactID int64, beforeID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeID <= 0 {
		beforeID = int64(^uint64(0) >> 1)
	}
	rows, err := db.Query(`
		SELECT id, session_id, contact_id, provider_msg_id, direction, body,
			media_url, media_type, status, timestamp
		FROM messages
		WHERE session_id = ? AND contact_id = ? AND id < ?
		ORDER BY id ASC
		LIMIT ?`, sessionID, contactID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.ContactID, &m.ProviderMsgID, &m.Direction,
			&m.Body, &m.MediaURL, &m.MediaType, &m.Status, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the total number of messages for a session.
func (db *DB) MessageCount(sessionID string) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&count)
	return count, err
}
