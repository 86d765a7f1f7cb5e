// Package timeline merges every source collection into one chronologically
// ordered event list per driver or vehicle, then reconstructs coupling
// continuity across events that individually only record current state.
package timeline

// EventType classifies a timeline entry.
type EventType string

const (
	TypeHookup   EventType = "HOOKUP"
	TypeUnhookup EventType = "UNHOOKUP"
	TypeReport   EventType = "REPORT"
	TypeCheck    EventType = "CHECK"
	TypeRefuel   EventType = "REFUEL"
	TypeRequest  EventType = "REQUEST"
	TypeTire     EventType = "TIRE"
	TypeHistory  EventType = "HISTORY"
)

// Event is one entry of an aggregated timeline. TS defaults to 0 for records
// with no recoverable timestamp, which sorts them last in the descending
// view. Before/after coupling fields start from whatever the source record
// carried; the deriver fills the gaps, once per field, and nothing else
// mutates an emitted event.
type Event struct {
	ID        string    `json:"id"`
	TS        int64     `json:"ts"`
	DateLabel string    `json:"dateLabel"`
	Type      EventType `json:"type"`
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle,omitempty"`
	Targa     string    `json:"targa"`
	Badge     string    `json:"badge,omitempty"`
	Match     string    `json:"matchConfidence"`
	IsChange  bool      `json:"isChangeEvent"`

	Motrice   string `json:"motrice,omitempty"`
	Rimorchio string `json:"rimorchio,omitempty"`

	BeforeMotrice   string `json:"beforeMotrice,omitempty"`
	AfterMotrice    string `json:"afterMotrice,omitempty"`
	BeforeRimorchio string `json:"beforeRimorchio,omitempty"`
	AfterRimorchio  string `json:"afterRimorchio,omitempty"`
}
