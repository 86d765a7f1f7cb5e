package timeline

import "sort"

// coupling is the last-known tractor/trailer pair carried forward per badge.
type coupling struct {
	motrice   string
	rimorchio string
}

// DeriveChangeHistory reconstructs coupling continuity over an aggregated
// timeline. One forward pass in ascending time order, one carried state per
// badge: change events with an unset before get the carried value, an unset
// after gets the event's own current state, then the carried state advances.
// Fields are filled at most once; a first-ever event for a badge may keep
// both sides empty, and the renderer shows that as unavailable rather than
// guessing.
func DeriveChangeHistory(events []Event) {
	idx := make([]int, len(events))
	for i := range events {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return events[idx[a]].TS < events[idx[b]].TS
	})

	last := make(map[string]coupling)
	for _, i := range idx {
		ev := &events[i]
		if !ev.IsChange {
			continue
		}
		carried := last[ev.Badge]

		if ev.BeforeMotrice == "" && carried.motrice != "" {
			ev.BeforeMotrice = carried.motrice
		}
		if ev.BeforeRimorchio == "" && carried.rimorchio != "" {
			ev.BeforeRimorchio = carried.rimorchio
		}
		if ev.AfterMotrice == "" && ev.Motrice != "" {
			ev.AfterMotrice = ev.Motrice
		}
		if ev.AfterRimorchio == "" && ev.Rimorchio != "" {
			ev.AfterRimorchio = ev.Rimorchio
		}

		if ev.AfterMotrice != "" {
			carried.motrice = ev.AfterMotrice
		} else if ev.Motrice != "" {
			carried.motrice = ev.Motrice
		}
		if ev.AfterRimorchio != "" {
			carried.rimorchio = ev.AfterRimorchio
		} else if ev.Rimorchio != "" {
			carried.rimorchio = ev.Rimorchio
		}
		last[ev.Badge] = carried
	}
}
