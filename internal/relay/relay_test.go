package relay

import (
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/cesar59xxx/eeeeeeee/internal/client"
	"github.com/cesar59xxx/eeeeeeee/internal/store"
)

func testRelay(t *testing.T) *Relay {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, zap.NewNop())
}

func TestRecordIsIdempotentPerProviderID(t *testing.T) {
	r := testRelay(t)

	first, created, err := r.Record(&store.Message{
		SessionID: "s1", ContactID: 1, ProviderMsgID: "m1",
		Direction: store.DirectionInbound, Body: "oi", Status: StatusReceived, Timestamp: 1000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("first Record should report created=true")
	}

	second, created, err := r.Record(&store.Message{
		SessionID: "s1", ContactID: 1, ProviderMsgID: "m1",
		Direction: store.DirectionInbound, Body: "oi", Status: StatusReceived, Timestamp: 1000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("replay should report created=false")
	}
	if second.ID != first.ID {
		t.Errorf("replay row id = %d, want %d", second.ID, first.ID)
	}
}

func TestRecordGeneratesProviderIDWhenMissing(t *testing.T) {
	r := testRelay(t)

	m1, _, err := r.Record(&store.Message{SessionID: "s1", Direction: store.DirectionOutbound, Body: "a", Status: StatusSent, Timestamp: 1})
	if err != nil {
		t.Fatal(err)
	}
	m2, _, err := r.Record(&store.Message{SessionID: "s1", Direction: store.DirectionOutbound, Body: "b", Status: StatusSent, Timestamp: 2})
	if err != nil {
		t.Fatal(err)
	}
	if m1.ProviderMsgID == "" || m2.ProviderMsgID == "" {
		t.Error("generated provider id is empty")
	}
	if m1.ProviderMsgID == m2.ProviderMsgID {
		t.Error("generated provider ids collide")
	}
}

func TestUpdateStatusMonotonic(t *testing.T) {
	r := testRelay(t)
	if _, _, err := r.Record(&store.Message{
		SessionID: "s1", ProviderMsgID: "m1",
		Direction: store.DirectionOutbound, Status: StatusSent, Timestamp: 1,
	}); err != nil {
		t.Fatal(err)
	}

	// Forward moves apply.
	msg, changed, err := r.UpdateStatus("s1", "m1", StatusDelivered)
	if err != nil || !changed {
		t.Fatalf("delivered: changed=%v err=%v", changed, err)
	}
	if msg.Status != StatusDelivered {
		t.Errorf("status = %q, want delivered", msg.Status)
	}

	// A late "sent" ack must not regress.
	msg, changed, err = r.UpdateStatus("s1", "m1", StatusSent)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("regression to sent should be a no-op")
	}
	if msg.Status != StatusDelivered {
		t.Errorf("status = %q after stale ack, want delivered", msg.Status)
	}

	// read is terminal.
	if _, changed, _ := r.UpdateStatus("s1", "m1", StatusRead); !changed {
		t.Error("read should apply")
	}
	if _, changed, _ := r.UpdateStatus("s1", "m1", StatusFailed); changed {
		t.Error("failed after read should be a no-op")
	}
}

func TestUpdateStatusFailedFromNonTerminal(t *testing.T) {
	r := testRelay(t)
	if _, _, err := r.Record(&store.Message{
		SessionID: "s1", ProviderMsgID: "m1",
		Direction: store.DirectionOutbound, Status: StatusPending, Timestamp: 1,
	}); err != nil {
		t.Fatal(err)
	}

	msg, changed, err := r.UpdateStatus("s1", "m1", StatusFailed)
	if err != nil || !changed {
		t.Fatalf("failed: changed=%v err=%v", changed, err)
	}
	if msg.Status != StatusFailed {
		t.Errorf("status = %q, want failed", msg.Status)
	}

	// failed is terminal too.
	if _, changed, _ := r.UpdateStatus("s1", "m1", StatusDelivered); changed {
		t.Error("delivered after failed should be a no-op")
	}
}

func TestUpdateStatusInboundNeverAdvances(t *testing.T) {
	r := testRelay(t)
	if _, _, err := r.Record(&store.Message{
		SessionID: "s1", ProviderMsgID: "m1",
		Direction: store.DirectionInbound, Status: StatusReceived, Timestamp: 1,
	}); err != nil {
		t.Fatal(err)
	}

	msg, changed, err := r.UpdateStatus("s1", "m1", StatusRead)
	if err != nil {
		t.Fatal(err)
	}
	if changed || msg.Status != StatusReceived {
		t.Errorf("inbound message advanced to %q, want received", msg.Status)
	}
}

func TestUpdateStatusUnknownMessage(t *testing.T) {
	r := testRelay(t)
	_, _, err := r.UpdateStatus("s1", "missing", StatusDelivered)
	if !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("err = %v, want ErrMessageNotFound", err)
	}
}

func TestAckStatus(t *testing.T) {
	cases := []struct {
		code int
		want string
	}{
		{client.AckPending, StatusPending},
		{client.AckSent, StatusSent},
		{client.AckDelivered, StatusDelivered},
		{client.AckRead, StatusRead},
		{client.AckFailed, StatusFailed},
		{42, StatusPending},
	}
	for _, tc := range cases {
		if got := AckStatus(tc.code); got != tc.want {
			t.Errorf("AckStatus(%d) = %q, want %q", tc.code, got, tc.want)
		}
	}
}
