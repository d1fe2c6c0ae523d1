package store

import (
	"database/sql"
	"time"

	"github.com/cesar59xxx/eeeeeeee/internal/state"
)

// InsertSession persists a new session row.
func (db *DB) InsertSession(s *Session) error {
	now := time.Now().UnixMilli()
	s.CreatedAt = now
	s.UpdatedAt = now
	_, err := db.Exec(`
		INSERT INTO sessions (id, tenant_id, name, status, phone_number, avatar_url, qr_code,
			last_error, reconnect_attempts, max_reconnect_attempts, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.TenantID, s.Name, string(state.Canonical(s.Status)), s.PhoneNumber, s.AvatarURL,
		s.QRCode, s.LastError, s.ReconnectAttempts, s.MaxReconnectAttempts, s.IsActive, now, now)
	return err
}

// UpdateSessionStatus sets the status and pairing payload. The payload is
// stored only while awaiting pairing; any later status clears it.
func (db *DB) UpdateSessionStatus(id string, status state.Status, qrCode string) error {
	if status != state.AwaitingPairing {
		qrCode = ""
	}
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE sessions SET status = ?, qr_code = ?, last_error = '', updated_at = ? WHERE id = ?`,
		string(status), qrCode, now, id)
	return err
}

// UpdateSessionError marks the session as errored with a human-readable
// cause, clearing any pending pairing payload.
func (db *DB) UpdateSessionError(id, reason string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE sessions SET status = ?, qr_code = '', last_error = ?, updated_at = ? WHERE id = ?`,
		string(state.Error), reason, now, id)
	return err
}

// UpdateSessionIdentity sets the paired phone identity and profile picture.
func (db *DB) UpdateSessionIdentity(id, phoneNumber, avatarURL string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE sessions SET phone_number = ?, avatar_url = ?, updated_at = ? WHERE id = ?`,
		phoneNumber, avatarURL, now, id)
	return err
}

// UpdateSessionActive flips the is-active flag. Reconnects only run while
// the session is active.
func (db *DB) UpdateSessionActive(id string, active bool) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE sessions SET is_active = ?, updated_at = ? WHERE id = ?`, active, now, id)
	return err
}

// UpdateSessionReconnectAttempts records the reconnect attempt counter.
func (db *DB) UpdateSessionReconnectAttempts(id string, attempts int) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE sessions SET reconnect_attempts = ?, updated_at = ? WHERE id = ?`,
		attempts, now, id)
	return err
}

// GetSession returns a session by id, or nil if it does not exist.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(`
		SELECT id, tenant_id, name, status, phone_number, avatar_url, qr_code,
			last_error, reconnect_attempts, max_reconnect_attempts, is_active, created_at, updated_at
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListSessionsByTenant returns all sessions owned by a tenant, newest first.
func (db *DB) ListSessionsByTenant(tenantID string) ([]Session, error) {
	rows, err := db.Query(`
		SELECT id, tenant_id, name, status, phone_number, avatar_url, qr_code,
			last_error, reconnect_attempts, max_reconnect_attempts, is_active, created_at, updated_at
		FROM sessions WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// ListActiveSessions returns every session marked active, across tenants.
// Used at daemon start to resume connections.
func (db *DB) ListActiveSessions() ([]Session, error) {
	rows, err := db.Query(`
		SELECT id, tenant_id, name, status, phone_number, avatar_url, qr_code,
			last_error, reconnect_attempts, max_reconnect_attempts, is_active, created_at, updated_at
		FROM sessions WHERE is_active = 1 ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func collectSessions(rows *sql.Rows) ([]Session, error) {
	defer func() { _ = rows.Close() }()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.Status, &s.PhoneNumber, &s.AvatarURL,
			&s.QRCode, &s.LastError, &s.ReconnectAttempts, &s.MaxReconnectAttempts, &s.IsActive,
			&s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Status = string(state.Canonical(s.Status))
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session row and its contacts and messages.
func (db *DB) DeleteSession(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM contacts WHERE session_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.TenantID, &s.Name, &s.Status, &s.PhoneNumber, &s.AvatarURL,
		&s.QRCode, &s.LastError, &s.ReconnectAttempts, &s.MaxReconnectAttempts, &s.IsActive,
		&s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Status = string(state.Canonical(s.Status))
	return &s, nil
}
