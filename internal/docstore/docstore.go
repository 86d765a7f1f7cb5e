// Package docstore wraps the shared key-value document store the dashboard
// keeps its collections in. Values are arbitrary JSON documents: either an
// array directly or an object {"value": [...]}, so every read goes through
// UnwrapList before use.
package docstore

import (
	"context"
	"encoding/json"
	"log"
)

// Keys of the source collections consumed by the reconciliation core.
// Each holds an array of loosely-typed records.
const (
	KeySessions     = "agganci_attivi"
	KeyReports      = "segnalazioni"
	KeyChecks       = "controlli_mezzi"
	KeyRefuels      = "rifornimenti"
	KeyRequests     = "richieste_materiale"
	KeyTireDrafts   = "cambi_gomme_bozze"
	KeyTireEvents   = "cambi_gomme"
	KeyVehicles     = "mezzi"
	KeyHistory      = "storico_operativo"
	KeyAlertsState  = "alerts_state"
)

// SourceKeys lists every read-only collection, in no particular order.
var SourceKeys = []string{
	KeySessions, KeyReports, KeyChecks, KeyRefuels, KeyRequests,
	KeyTireDrafts, KeyTireEvents, KeyVehicles, KeyHistory,
}

// Store is the external document store. Get returns nil (not an error) for a
// missing key. Both calls can fail; callers degrade rather than abort.
type Store interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Set(ctx context.Context, key string, value any) error
}

// Record is a loosely-typed source record as stored.
type Record = map[string]any

// UnwrapList normalizes a raw document to a slice of records: a JSON array is
// used as-is, an object with a "value" array is unwrapped, anything else
// (including nil) yields an empty slice.
func UnwrapList(raw json.RawMessage) []Record {
	if len(raw) == 0 {
		return []Record{}
	}
	var direct []Record
	if err := json.Unmarshal(raw, &direct); err == nil {
		return nonNil(direct)
	}
	var wrapped struct {
		Value []Record `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return nonNil(wrapped.Value)
	}
	return []Record{}
}

func nonNil(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// ReadList fetches a collection and unwraps it. A failed read logs and
// degrades to an empty slice so one unavailable source never aborts a pass.
func ReadList(ctx context.Context, s Store, key string) []Record {
	raw, err := s.Get(ctx, key)
	if err != nil {
		log.Printf("docstore: read %s failed, treating as empty: %v", key, err)
		return []Record{}
	}
	return UnwrapList(raw)
}
