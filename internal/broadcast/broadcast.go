package broadcast

import (
	"fmt"
	"strings"
	"time"
)

// State represents the lifecycle of a broadcast part.
type State string

const (
	StatePending   State = "pending"
	StateScheduled State = "scheduled"
	StateLive      State = "live"
	StateEnded     State = "ended"
	StateEnriched  State = "enriched"
	StateAbandoned State = "abandoned"
)

var allStates = []State{
	StatePending,
	StateScheduled,
	StateLive,
	StateEnded,
	StateEnriched,
	StateAbandoned,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

var forwardTransitions = map[State][]State{
	StatePending:   {StateScheduled, StateAbandoned},
	StateScheduled: {StateLive, StateAbandoned},
	StateLive:      {StateEnded, StateAbandoned},
	StateEnded:     {StateEnriched, StateAbandoned},
	StateEnriched:  {},
	StateAbandoned: {},
}

// ParseState validates a stored state string.
func ParseState(value string) (State, error) {
	state := State(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := stateSet[state]; !ok {
		return "", fmt.Errorf("unknown broadcast state %q", value)
	}
	return state, nil
}

// AllStates returns every state in lifecycle order.
func AllStates() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// IsTerminal reports whether no further transitions can occur.
func (s State) IsTerminal() bool {
	return len(forwardTransitions[s]) == 0
}

// CanTransition reports whether the lifecycle permits moving to next.
func (s State) CanTransition(next State) bool {
	for _, candidate := range forwardTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Broadcast represents one part of the continuous stream, keyed by its
// window start. RemoteID is empty until the platform accepts the part.
type Broadcast struct {
	ID          int64
	RemoteID    string
	StreamID    string
	State       State
	Title       string
	Description string
	PlaylistKey string
	WindowStart time.Time
	WindowEnd   time.Time
	WentLiveAt  time.Time
	EndedAt     time.Time
	MotionNote  string
	MotionCount int
	FailureNote string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Transition moves the broadcast to next, stamping the matching timestamp.
func (b *Broadcast) Transition(next State, now time.Time) error {
	if !b.State.CanTransition(next) {
		return fmt.Errorf("broadcast %s cannot move from %s to %s", b.RemoteID, b.State, next)
	}
	b.State = next
	b.UpdatedAt = now.UTC()
	switch next {
	case StateLive:
		b.WentLiveAt = now.UTC()
	case StateEnded:
		b.EndedAt = now.UTC()
	}
	return nil
}

// Active reports whether the broadcast still needs lifecycle supervision.
func (b *Broadcast) Active() bool {
	return !b.State.IsTerminal() && b.State != StateEnded
}

// HealthSummary describes aggregated broadcast counts per lifecycle state.
type HealthSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Scheduled int `json:"scheduled"`
	Live      int `json:"live"`
	Ended     int `json:"ended"`
	Enriched  int `json:"enriched"`
	Abandoned int `json:"abandoned"`
}
