package timeline

import (
	"fmt"
	"sort"

	"flotta/api/internal/docstore"
	"flotta/api/internal/identity"
	"flotta/api/internal/normalize"
)

// Collections maps a collection key to its unwrapped records.
type Collections map[string][]normalize.Record

// BuildResolver feeds every badge/name co-occurrence of a pass into a fresh
// resolver. Built once per reconciliation pass, never cached across passes.
func BuildResolver(cols Collections, reg *normalize.Registry) *identity.Resolver {
	res := identity.NewResolver()
	for key, records := range cols {
		sc := reg.Schema(key)
		for _, rec := range records {
			res.ObserveRecord(rec, sc)
		}
	}
	return res
}

// Aggregate builds the full timeline for one badge: every record of every
// collection that resolves to the badge becomes one or two events. Running it
// twice over unchanged data yields identical ids in identical order.
func Aggregate(cols Collections, reg *normalize.Registry, res *identity.Resolver, badge string) []Event {
	var events []Event
	for _, key := range docstore.SourceKeys {
		sc := reg.Schema(key)
		for idx, rec := range cols[key] {
			conf := res.Match(rec, sc, badge)
			if conf == identity.None {
				continue
			}
			events = append(events, emit(key, idx, rec, sc, badge, conf)...)
		}
	}
	sortEvents(events)
	return events
}

// AggregateForPlate builds the vehicle-centric timeline: no identity
// resolution, records are selected by plate, tolerating one character of
// free-text noise via the near-match rule.
func AggregateForPlate(cols Collections, reg *normalize.Registry, targa string) []Event {
	target := normalize.NormalizePlate(targa)
	var events []Event
	for _, key := range docstore.SourceKeys {
		if key == docstore.KeyVehicles {
			continue
		}
		sc := reg.Schema(key)
		for idx, rec := range cols[key] {
			match := ""
			for _, cand := range normalize.PlateCandidates(rec, sc) {
				if cand == target {
					match = identity.Exact.String()
					break
				}
				if identity.PlatesAlike(cand, target) {
					match = identity.Weak.String()
				}
			}
			if match == "" {
				continue
			}
			badge := normalize.Badge(rec, sc)
			evs := emit(key, idx, rec, sc, badge, identity.Exact)
			for i := range evs {
				evs[i].Match = match
			}
			events = append(events, evs...)
		}
	}
	sortEvents(events)
	return events
}

func sortEvents(events []Event) {
	// Descending ts; ties keep emission order, ts=0 lands at the bottom.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].TS > events[j].TS
	})
}

// eventID builds the stable event identity: collection key plus the record's
// native id when present, else the record's index in the collection. Index
// fallback is deterministic as long as the stored array is unchanged.
func eventID(key string, idx int, rec normalize.Record) string {
	if native := normalize.FirstString(rec, []string{"id", "_id", "uid"}); native != "" {
		return key + ":" + native
	}
	return fmt.Sprintf("%s:#%d", key, idx)
}

func emit(key string, idx int, rec normalize.Record, sc normalize.Schema, badge string, conf identity.Confidence) []Event {
	canon := normalize.Canonical(rec, sc)
	base := Event{
		ID:    eventID(key, idx, rec),
		Targa: normalize.Plate(rec, sc),
		Badge: badge,
		Match: conf.String(),
	}
	if canon.TimestampOK {
		base.TS = canon.Timestamp
		base.DateLabel = canon.RawTimestampLabel
	}
	base.Motrice = normalize.NormalizePlate(normalize.FirstString(rec, sc.Motrice))
	base.Rimorchio = normalize.NormalizePlate(normalize.FirstString(rec, sc.Rimorchio))

	switch key {
	case docstore.KeySessions:
		return emitSession(base, rec, sc)
	case docstore.KeyReports:
		base.Type = TypeReport
		base.Title = "Segnalazione"
		base.Subtitle = normalize.FirstString(rec, []string{"tipoProblema", "problema", "descrizione"})
	case docstore.KeyChecks:
		base.Type = TypeCheck
		base.Title = "Controllo mezzo"
		base.Subtitle = normalize.FirstString(rec, []string{"esito", "note"})
	case docstore.KeyRefuels:
		base.Type = TypeRefuel
		base.Title = "Rifornimento"
		if litri := normalize.FirstString(rec, []string{"litri", "quantita"}); litri != "" {
			base.Subtitle = litri + " litri"
		}
	case docstore.KeyRequests:
		base.Type = TypeRequest
		base.Title = "Richiesta materiale"
		base.Subtitle = normalize.FirstString(rec, []string{"materiale", "descrizione"})
	case docstore.KeyTireDrafts:
		base.Type = TypeTire
		base.Title = "Cambio gomme (bozza)"
		base.Subtitle = normalize.FirstString(rec, []string{"posizione", "note"})
	case docstore.KeyTireEvents:
		base.Type = TypeTire
		base.Title = "Cambio gomme"
		base.Subtitle = normalize.FirstString(rec, []string{"posizione", "note"})
	case docstore.KeyHistory:
		return emitHistory(base, rec)
	default:
		base.Type = TypeHistory
		base.Title = key
	}
	return []Event{base}
}

// emitSession turns one active-session record into a hookup event at its
// start and, when an end time is recorded, an unhookup event at its end.
func emitSession(base Event, rec normalize.Record, sc normalize.Schema) []Event {
	hook := base
	hook.Type = TypeHookup
	hook.Title = "Aggancio"
	hook.Subtitle = coupleLabel(base.Motrice, base.Rimorchio)
	hook.IsChange = true
	hook.AfterMotrice = base.Motrice
	hook.AfterRimorchio = base.Rimorchio
	out := []Event{hook}

	if endTS, ok, endLabel := normalize.FirstTimestamp(rec, sc.EndTimestamp); ok {
		unhook := base
		unhook.ID = base.ID + ":fine"
		unhook.TS = endTS
		unhook.DateLabel = endLabel
		if unhook.DateLabel == "" {
			unhook.DateLabel = normalize.FormatMillis(endTS)
		}
		unhook.Type = TypeUnhookup
		unhook.Title = "Sgancio"
		unhook.Subtitle = coupleLabel(base.Motrice, base.Rimorchio)
		unhook.IsChange = true
		out = append(out, unhook)
	}
	return out
}

// emitHistory carries over whatever partial before/after snapshot the
// operational-history record already has; the deriver fills the rest.
func emitHistory(base Event, rec normalize.Record) []Event {
	ev := base
	ev.Type = TypeHistory
	ev.Title = "Storico operativo"
	ev.Subtitle = normalize.FirstString(rec, []string{"tipo", "evento", "descrizione"})
	ev.IsChange = true
	if prima, ok := normalize.Lookup(rec, "prima"); ok {
		if m, ok := prima.(map[string]any); ok {
			ev.BeforeMotrice = normalize.NormalizePlate(normalize.AsString(m["motrice"]))
			ev.BeforeRimorchio = normalize.NormalizePlate(normalize.AsString(m["rimorchio"]))
		}
	}
	if dopo, ok := normalize.Lookup(rec, "dopo"); ok {
		if m, ok := dopo.(map[string]any); ok {
			ev.AfterMotrice = normalize.NormalizePlate(normalize.AsString(m["motrice"]))
			ev.AfterRimorchio = normalize.NormalizePlate(normalize.AsString(m["rimorchio"]))
		}
	}
	return []Event{ev}
}

func coupleLabel(motrice, rimorchio string) string {
	switch {
	case motrice != "" && rimorchio != "":
		return motrice + " + " + rimorchio
	case motrice != "":
		return motrice
	case rimorchio != "":
		return rimorchio
	default:
		return ""
	}
}
