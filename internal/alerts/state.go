package alerts

import (
	"fmt"
)

// StateVersion is the persisted document format version.
const StateVersion = 1

// pruneAfter is how long an acknowledged or vanished alert's state is kept.
const pruneAfter = 90 * DayMillis

// Supported lifecycle actions.
const (
	ActionAck      = "ack"
	ActionSnooze1d = "snooze_1d"
	ActionSnooze3d = "snooze_3d"
)

// StateItem records the lifecycle of one alert. Zero timestamps mean unset.
// Meta is the fingerprint the suppression was granted against; when the
// freshly generated candidate disagrees, the suppression no longer applies.
type StateItem struct {
	AckAt       int64 `json:"ackAt,omitempty"`
	SnoozeUntil int64 `json:"snoozeUntil,omitempty"`
	LastShownAt int64 `json:"lastShownAt,omitempty"`
	Meta        Meta  `json:"meta"`
}

// State is the persisted alert lifecycle document.
type State struct {
	Version int                  `json:"version"`
	Items   map[string]StateItem `json:"items"`
}

// NewState returns an empty lifecycle state.
func NewState() State {
	return State{Version: StateVersion, Items: make(map[string]StateItem)}
}

func (s State) clone() State {
	out := State{Version: StateVersion, Items: make(map[string]StateItem, len(s.Items))}
	for id, item := range s.Items {
		out.Items[id] = item
	}
	return out
}

// Reconcile merges stored lifecycle state with freshly generated candidates.
// Items whose fingerprint no longer matches the candidate's are dropped, so
// the alert surfaces again as new. Items whose ack and snooze are both older
// than the retention window are pruned, and items for alerts absent from the
// candidate set are pruned once they have not been shown within the window.
// Pure function: the input state is not mutated.
func Reconcile(state State, candidates []Candidate, now int64) State {
	current := make(map[string]Meta, len(candidates))
	for _, c := range candidates {
		current[c.ID] = c.Meta
	}

	threshold := now - pruneAfter
	out := NewState()
	for id, item := range state.Items {
		meta, present := current[id]
		if present && meta != item.Meta {
			continue
		}
		if item.AckAt < threshold && item.SnoozeUntil < threshold {
			continue
		}
		if !present && item.LastShownAt < threshold {
			continue
		}
		out.Items[id] = item
	}
	return out
}

// ApplyAction records an explicit user action on one alert. The stored meta
// follows the candidate the user acted on. Pure function.
func ApplyAction(state State, alertID string, meta Meta, action string, now int64) (State, error) {
	out := state.clone()
	item := out.Items[alertID]
	switch action {
	case ActionAck:
		item.AckAt = now
	case ActionSnooze1d:
		item.SnoozeUntil = now + DayMillis
	case ActionSnooze3d:
		item.SnoozeUntil = now + 3*DayMillis
	default:
		return state, fmt.Errorf("unknown alert action %q", action)
	}
	item.LastShownAt = now
	item.Meta = meta
	out.Items[alertID] = item
	return out, nil
}

// Hidden reports whether a candidate is suppressed by the stored state: the
// item must exist, its fingerprint must still match, and it must be either
// acknowledged or inside its snooze window.
func Hidden(state State, cand Candidate, now int64) bool {
	item, ok := state.Items[cand.ID]
	if !ok {
		return false
	}
	if item.Meta != cand.Meta {
		return false
	}
	if item.AckAt != 0 {
		return true
	}
	return item.SnoozeUntil != 0 && now < item.SnoozeUntil
}

// Visible filters candidates through the stored state, preserving order.
func Visible(state State, candidates []Candidate, now int64) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !Hidden(state, c, now) {
			out = append(out, c)
		}
	}
	return out
}
