package store

import (
	"path/filepath"
	"testing"

	"github.com/cesar59xxx/eeeeeeee/internal/state"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func insertTestSession(t *testing.T, db *DB, id string) *Session {
	t.Helper()
	s := &Session{
		ID:                   id,
		TenantID:             "t1",
		Name:                 "Support",
		MaxReconnectAttempts: 5,
	}
	if err := db.InsertSession(s); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate; a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	db := testDB(t)
	insertTestSession(t, db, "s1")

	s, err := db.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if s == nil {
		t.Fatal("session not found after insert")
	}
	if s.Status != string(state.Created) {
		t.Errorf("status = %q, want created", s.Status)
	}
	if s.TenantID != "t1" || s.Name != "Support" {
		t.Errorf("unexpected row: %+v", s)
	}
	if s.CreatedAt == 0 || s.UpdatedAt == 0 {
		t.Error("timestamps not set")
	}
}

func TestGetSessionMissing(t *testing.T) {
	db := testDB(t)
	s, err := db.GetSession("nope")
	if err != nil {
		t.Fatal(err)
	}
	if s != nil {
		t.Errorf("expected nil for missing session, got %+v", s)
	}
}

func TestUpdateSessionStatusClearsPairingPayload(t *testing.T) {
	db := testDB(t)
	insertTestSession(t, db, "s1")

	if err := db.UpdateSessionStatus("s1", state.AwaitingPairing, "payload-1"); err != nil {
		t.Fatal(err)
	}
	s, _ := db.GetSession("s1")
	if s.QRCode != "payload-1" {
		t.Errorf("qr = %q, want payload-1", s.QRCode)
	}

	// Any status other than awaiting_pairing must clear the payload even if
	// a stale one is passed in.
	if err := db.UpdateSessionStatus("s1", state.Connected, "payload-1"); err != nil {
		t.Fatal(err)
	}
	s, _ = db.GetSession("s1")
	if s.QRCode != "" {
		t.Errorf("qr = %q, want cleared", s.QRCode)
	}
	if s.Status != string(state.Connected) {
		t.Errorf("status = %q, want connected", s.Status)
	}
}

func TestUpdateSessionError(t *testing.T) {
	db := testDB(t)
	insertTestSession(t, db, "s1")

	if err := db.UpdateSessionError("s1", "reconnect attempts exhausted"); err != nil {
		t.Fatal(err)
	}
	s, _ := db.GetSession("s1")
	if s.Status != string(state.Error) {
		t.Errorf("status = %q, want error", s.Status)
	}
	if s.LastError != "reconnect attempts exhausted" {
		t.Errorf("last error = %q", s.LastError)
	}

	// A later healthy status clears the cause.
	if err := db.UpdateSessionStatus("s1", state.Initializing, ""); err != nil {
		t.Fatal(err)
	}
	s, _ = db.GetSession("s1")
	if s.LastError != "" {
		t.Errorf("last error = %q, want cleared", s.LastError)
	}
}

func TestStatusCanonicalizedOnRead(t *testing.T) {
	db := testDB(t)
	insertTestSession(t, db, "s1")

	// Simulate a row written by an older build with a legacy spelling.
	if _, err := db.Exec(`UPDATE sessions SET status = 'ready' WHERE id = 's1'`); err != nil {
		t.Fatal(err)
	}
	s, _ := db.GetSession("s1")
	if s.Status != string(state.Connected) {
		t.Errorf("status = %q, want connected", s.Status)
	}
}

func TestListActiveSessions(t *testing.T) {
	db := testDB(t)
	insertTestSession(t, db, "s1")
	insertTestSession(t, db, "s2")

	if err := db.UpdateSessionActive("s2", true); err != nil {
		t.Fatal(err)
	}

	active, err := db.ListActiveSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != "s2" {
		t.Errorf("active sessions = %+v, want only s2", active)
	}
}

func TestContactUniqueness(t *testing.T) {
	db := testDB(t)

	c1, err := db.InsertContact(&Contact{TenantID: "t1", SessionID: "s1", PeerID: "5511999999999", Name: "5511999999999"})
	if err != nil {
		t.Fatal(err)
	}
	if c1.ID == 0 {
		t.Error("inserted contact has no id")
	}

	// Same triple must violate the uniqueness constraint.
	if _, err := db.InsertContact(&Contact{TenantID: "t1", SessionID: "s1", PeerID: "5511999999999"}); err == nil {
		t.Error("duplicate (tenant, session, peer) insert should fail")
	}

	// Same peer under another session is a distinct contact.
	if _, err := db.InsertContact(&Contact{TenantID: "t1", SessionID: "s2", PeerID: "5511999999999"}); err != nil {
		t.Errorf("same peer in another session should insert: %v", err)
	}
}

func TestTouchContactNeverMovesBackwards(t *testing.T) {
	db := testDB(t)
	c, err := db.InsertContact(&Contact{TenantID: "t1", SessionID: "s1", PeerID: "p1"})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.TouchContact(c.ID, 5000); err != nil {
		t.Fatal(err)
	}
	// An older timestamp must not regress the activity marker.
	if err := db.TouchContact(c.ID, 1000); err != nil {
		t.Fatal(err)
	}

	got, _ := db.GetContact("t1", "s1", "p1")
	if got.LastActivityAt != 5000 {
		t.Errorf("last activity = %d, want 5000", got.LastActivityAt)
	}
}

func TestUpdateContactProfileKeepsExistingOnEmpty(t *testing.T) {
	db := testDB(t)
	c, err := db.InsertContact(&Contact{TenantID: "t1", SessionID: "s1", PeerID: "p1", Name: "p1"})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.UpdateContactProfile(c.ID, "Alice", "http://pic"); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateContactProfile(c.ID, "", ""); err != nil {
		t.Fatal(err)
	}

	got, _ := db.GetContact("t1", "s1", "p1")
	if got.Name != "Alice" || got.AvatarURL != "http://pic" {
		t.Errorf("profile = %q/%q, want Alice/http://pic", got.Name, got.AvatarURL)
	}
}

func TestInsertMessageIfAbsent(t *testing.T) {
	db := testDB(t)

	m := &Message{SessionID: "s1", ContactID: 1, ProviderMsgID: "m1", Direction: DirectionInbound, Body: "oi", Status: "received", Timestamp: 1000}
	first, inserted, err := db.InsertMessageIfAbsent(m)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Error("first insert should report inserted=true")
	}

	// Replay with different body: existing row wins untouched.
	replay := &Message{SessionID: "s1", ContactID: 1, ProviderMsgID: "m1", Direction: DirectionInbound, Body: "changed", Status: "received", Timestamp: 2000}
	second, inserted, err := db.InsertMessageIfAbsent(replay)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("replay should report inserted=false")
	}
	if second.ID != first.ID || second.Body != "oi" {
		t.Errorf("replay returned %+v, want original row", second)
	}

	count, _ := db.MessageCount("s1")
	if count != 1 {
		t.Errorf("message count = %d, want 1", count)
	}
}

func TestListMessagesKeysetPagination(t *testing.T) {
	db := testDB(t)
	for _, id := range []string{"m1", "m2", "m3"} {
		// Equal timestamps on purpose: order must follow insertion id.
		if _, _, err := db.InsertMessageIfAbsent(&Message{
			SessionID: "s1", ContactID: 7, ProviderMsgID: id,
			Direction: DirectionInbound, Body: id, Status: "received", Timestamp: 1000,
		}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := db.ListMessages("s1", 7, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Body != "m1" || page[1].Body != "m2" {
		t.Errorf("page = %+v, want m1,m2 in insertion order", page)
	}

	next, err := db.ListMessages("s1", 7, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(next) != 3 {
		t.Errorf("full list = %d rows, want 3", len(next))
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	db := testDB(t)
	insertTestSession(t, db, "s1")
	c, err := db.InsertContact(&Contact{TenantID: "t1", SessionID: "s1", PeerID: "p1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := db.InsertMessageIfAbsent(&Message{SessionID: "s1", ContactID: c.ID, ProviderMsgID: "m1", Direction: DirectionInbound, Status: "received", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteSession("s1"); err != nil {
		t.Fatal(err)
	}

	if s, _ := db.GetSession("s1"); s != nil {
		t.Error("session row survived delete")
	}
	if got, _ := db.GetContact("t1", "s1", "p1"); got != nil {
		t.Error("contact row survived delete")
	}
	if count, _ := db.MessageCount("s1"); count != 0 {
		t.Errorf("message count = %d after delete, want 0", count)
	}
}
