package store

import (
	"database/sql"
	"time"
)

// InsertContact creates a contact row. Returns the stored row. A concurrent
// insert for the same (tenant, session, peer) triple loses the uniqueness
// race; callers should re-fetch on conflict (see contacts.Resolver).
func (db *DB) InsertContact(c *Contact) (*Contact, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO contacts (tenant_id, session_id, peer_id, name, avatar_url, last_activity_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.TenantID, c.SessionID, c.PeerID, c.Name, c.AvatarURL, now, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	stored := *c
	stored.ID = id
	stored.LastActivityAt = now
	stored.CreatedAt = now
	return &stored, nil
}

// GetContact returns the contact for a (tenant, session, peer) triple, or nil.
func (db *DB) GetContact(tenantID, sessionID, peerID string) (*Contact, error) {
	var c Contact
	err := db.QueryRow(`
		SELECT id, tenant_id, session_id, peer_id, name, avatar_url, last_activity_at, created_at
		FROM contacts WHERE tenant_id = ? AND session_id = ? AND peer_id = ?`,
		tenantID, sessionID, peerID).
		Scan(&c.ID, &c.TenantID, &c.SessionID, &c.PeerID, &c.Name, &c.AvatarURL, &c.LastActivityAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// TouchContact bumps the last-activity timestamp.
func (db *DB) TouchContact(id int64, at int64) error {
	_, err := db.Exec(`UPDATE contacts SET last_activity_at = MAX(last_activity_at, ?) WHERE id = ?`, at, id)
	return err
}

// UpdateContactProfile applies best-effort enrichment. Empty fields keep the
// existing values.
func (db *DB) UpdateContactProfile(id int64, name, avatarURL string) error {
	_, err := db.Exec(`
		UPDATE contacts SET
			name = CASE WHEN ? != '' THEN ? ELSE name END,
			avatar_url = CASE WHEN ? != '' THEN ? ELSE avatar_url END
		WHERE id = ?`,
		name, name, avatarURL, avatarURL, id)
	return err
}

// ListContactsBySession returns a session's contacts, most recently active first.
func (db *DB) ListContactsBySession(sessionID string, limit int) ([]Contact, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, tenant_id, session_id, peer_id, name, avatar_url, last_activity_at, created_at
		FROM contacts WHERE session_id = ?
		ORDER BY last_activity_at DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.TenantID, &c.SessionID, &c.PeerID, &c.Name, &c.AvatarURL,
			&c.LastActivityAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
