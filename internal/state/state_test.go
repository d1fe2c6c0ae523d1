package state

import "testing"

func TestValidTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{Created, Initializing, true},
		{Initializing, AwaitingPairing, true},
		{Initializing, Connected, true},
		{AwaitingPairing, Authenticated, true},
		{Authenticated, Connected, true},
		{Connected, Disconnected, true},
		{Disconnected, Reconnecting, true},
		{Reconnecting, Initializing, true},
		{Error, Initializing, true},
		{Connected, Removed, true},

		{Created, Connected, false},
		{Connected, AwaitingPairing, false},
		{AwaitingPairing, AwaitingPairing, false},
		{Removed, Initializing, false},
		{Error, Connected, false},
	}
	for _, tc := range cases {
		m := NewMachine(tc.from)
		err := m.Transition(tc.to)
		if tc.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s -> %s: expected error", tc.from, tc.to)
		}
	}
}

func TestTransitionKeepsStatusOnError(t *testing.T) {
	m := NewMachine(Created)
	if err := m.Transition(Connected); err == nil {
		t.Fatal("expected invalid transition error")
	}
	if got := m.Current(); got != Created {
		t.Errorf("status after rejected transition = %s, want created", got)
	}
}

func TestCanonical(t *testing.T) {
	cases := []struct {
		raw  string
		want Status
	}{
		{"connected", Connected},
		{"CONNECTED", Connected},
		{" ready ", Connected},
		{"open", Connected},
		{"qr", AwaitingPairing},
		{"auth_failure", Error},
		{"failed", Error},
		{"", Created},
		{"garbage", Error},
	}
	for _, tc := range cases {
		if got := Canonical(tc.raw); got != tc.want {
			t.Errorf("Canonical(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestResting(t *testing.T) {
	for _, live := range []Status{Initializing, AwaitingPairing, Authenticated, Connected, Reconnecting} {
		if got := Resting(live); got != Disconnected {
			t.Errorf("Resting(%s) = %s, want disconnected", live, got)
		}
	}
	for _, rest := range []Status{Created, Disconnected, Error, Removed} {
		if got := Resting(rest); got != rest {
			t.Errorf("Resting(%s) = %s, want unchanged", rest, got)
		}
	}
}

func TestCanSend(t *testing.T) {
	if NewMachine(Connected).CanSend() != true {
		t.Error("connected session should allow sends")
	}
	if NewMachine(AwaitingPairing).CanSend() {
		t.Error("awaiting_pairing session should not allow sends")
	}
}
