package broadcast_test

import (
	"testing"
	"time"

	"perch/internal/broadcast"
)

func TestParseStateAcceptsStoredValues(t *testing.T) {
	for _, state := range broadcast.AllStates() {
		parsed, err := broadcast.ParseState(string(state))
		if err != nil {
			t.Fatalf("ParseState(%q): %v", state, err)
		}
		if parsed != state {
			t.Fatalf("round trip mismatch: %q != %q", parsed, state)
		}
	}
	if _, err := broadcast.ParseState("rewinding"); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestTransitionFollowsLifecycle(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	b := &broadcast.Broadcast{RemoteID: "b-1", State: broadcast.StatePending}

	steps := []broadcast.State{
		broadcast.StateScheduled,
		broadcast.StateLive,
		broadcast.StateEnded,
		broadcast.StateEnriched,
	}
	for _, next := range steps {
		if err := b.Transition(next, now); err != nil {
			t.Fatalf("Transition to %s: %v", next, err)
		}
	}
	if !b.WentLiveAt.Equal(now) {
		t.Fatalf("expected live timestamp %v, got %v", now, b.WentLiveAt)
	}
	if !b.EndedAt.Equal(now) {
		t.Fatalf("expected ended timestamp %v, got %v", now, b.EndedAt)
	}
	if !b.State.IsTerminal() {
		t.Fatal("enriched should be terminal")
	}
}

func TestTransitionRejectsSkips(t *testing.T) {
	b := &broadcast.Broadcast{State: broadcast.StateScheduled}
	if err := b.Transition(broadcast.StateEnded, time.Now()); err == nil {
		t.Fatal("expected error skipping live")
	}
	if b.State != broadcast.StateScheduled {
		t.Fatalf("state mutated on rejected transition: %s", b.State)
	}
}

func TestAbandonedReachableFromEveryActiveState(t *testing.T) {
	for _, state := range []broadcast.State{
		broadcast.StatePending,
		broadcast.StateScheduled,
		broadcast.StateLive,
		broadcast.StateEnded,
	} {
		if !state.CanTransition(broadcast.StateAbandoned) {
			t.Fatalf("expected %s -> abandoned to be allowed", state)
		}
	}
	if broadcast.StateEnriched.CanTransition(broadcast.StateAbandoned) {
		t.Fatal("terminal state must not transition")
	}
}

func TestActiveExcludesEndedAndTerminal(t *testing.T) {
	cases := map[broadcast.State]bool{
		broadcast.StatePending:   true,
		broadcast.StateScheduled: true,
		broadcast.StateLive:      true,
		broadcast.StateEnded:     false,
		broadcast.StateEnriched:  false,
		broadcast.StateAbandoned: false,
	}
	for state, want := range cases {
		b := &broadcast.Broadcast{State: state}
		if b.Active() != want {
			t.Fatalf("Active() for %s: got %v want %v", state, b.Active(), want)
		}
	}
}
