// Package alerts derives the actionable alert set from fleet-wide snapshots
// and keeps the persisted acknowledge/snooze lifecycle stable across data
// churn. Alert identity is deterministic; the content fingerprint, not the
// raw record, decides when an acknowledged alert comes back.
package alerts

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"flotta/api/internal/normalize"
)

// DayMillis is one day in epoch milliseconds.
const DayMillis int64 = 86_400_000

// Severity levels, matched by the dashboard's styling.
const (
	SeverityDanger  = "danger"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Meta identifies what an alert is about. Ref is a content fingerprint:
// cosmetic edits leave it alone, meaningful edits change it and drop any
// stored acknowledgement.
type Meta struct {
	Type string `json:"type"`
	Ref  string `json:"ref"`
}

// Candidate is one alert-worthy condition found in the current snapshots.
// ID is stable across regenerations as long as the underlying entity exists.
type Candidate struct {
	ID         string `json:"id"`
	Meta       Meta   `json:"meta"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	Severity   string `json:"severity"`
	SortBucket int    `json:"-"`
	SortValue  int64  `json:"-"`
}

func fingerprint(parts ...string) string {
	h := sha1.Sum([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:])
}

// Generate runs all three rules and returns the candidates in presentation
// order: ascending (bucket, value, title).
func Generate(vehicles, reports, sessions []normalize.Record, reg *normalize.Registry, now int64) []Candidate {
	var out []Candidate
	out = append(out, GenerateConflicts(sessions, reg)...)
	out = append(out, GenerateDeadlines(vehicles, now)...)
	out = append(out, GenerateUnread(reports, reg)...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SortBucket != b.SortBucket {
			return a.SortBucket < b.SortBucket
		}
		if a.SortValue != b.SortValue {
			return a.SortValue < b.SortValue
		}
		return a.Title < b.Title
	})
	return out
}

// GenerateDeadlines emits one candidate per vehicle whose next inspection is
// due within 30 days or already past. The deadline comes from the explicit
// stored date when present, otherwise from the registration schedule (first
// inspection after 4 years, every 2 years after) against last-inspection+2y,
// whichever is later.
func GenerateDeadlines(vehicles []normalize.Record, now int64) []Candidate {
	var out []Candidate
	for _, v := range vehicles {
		targa := normalize.NormalizePlate(normalize.FirstString(v, []string{"targa"}))
		if targa == "" {
			continue
		}
		due, ok := nextInspection(v, now)
		if !ok {
			continue
		}
		days := daysBetween(now, due)
		if days > 30 {
			continue
		}
		out = append(out, Candidate{
			ID:         "scadenza:" + targa,
			Meta:       Meta{Type: "scadenza", Ref: fingerprint("scadenza", targa, strconv.FormatInt(due, 10))},
			Title:      "Revisione " + targa,
			Detail:     normalize.DaysLabel(days),
			Severity:   SeverityDanger,
			SortBucket: 1,
			SortValue:  int64(days),
		})
	}
	return out
}

func nextInspection(v normalize.Record, now int64) (int64, bool) {
	if explicit, ok := firstMillis(v, "scadenzaRevisione", "prossimaRevisione"); ok {
		return explicit, true
	}
	var due int64
	if reg, ok := firstMillis(v, "immatricolazione", "dataImmatricolazione"); ok {
		due = addYears(reg, 4)
		// Once the first slot has passed, the due date advances in two-year
		// cycles; the most recent slot not yet two years old is the one that
		// counts, so an uninspected old vehicle shows as expired.
		for addYears(due, 2) <= now {
			due = addYears(due, 2)
		}
	}
	if last, ok := firstMillis(v, "ultimaRevisione", "dataUltimaRevisione"); ok {
		if d := addYears(last, 2); d > due {
			due = d
		}
	}
	return due, due > 0
}

func firstMillis(rec normalize.Record, paths ...string) (int64, bool) {
	ms, ok, _ := normalize.FirstTimestamp(rec, paths)
	return ms, ok
}

func addYears(ms int64, years int) int64 {
	return time.UnixMilli(ms).UTC().AddDate(years, 0, 0).UnixMilli()
}

// daysBetween floors toward negative infinity so a deadline passed by any
// amount yesterday counts as -1, today as 0.
func daysBetween(now, due int64) int {
	delta := due - now
	if delta >= 0 {
		return int(delta / DayMillis)
	}
	return -int((-delta + DayMillis - 1) / DayMillis)
}

// GenerateUnread emits one candidate per incident report still marked new or
// unread. The id prefers the record's native id; without one it falls back
// to a stable hash of the report's identifying content.
func GenerateUnread(reports []normalize.Record, reg *normalize.Registry) []Candidate {
	sc := reg.Schema("segnalazioni")
	var out []Candidate
	for _, r := range reports {
		if !reportUnread(r) {
			continue
		}
		ts, _, _ := normalize.FirstTimestamp(r, sc.Timestamp)
		targa := normalize.Plate(r, sc)
		badge := normalize.Badge(r, sc)
		problem := normalize.FirstString(r, []string{"tipoProblema", "problema"})
		descr := normalize.FirstString(r, []string{"descrizione", "note"})
		ambito := normalize.FirstString(r, []string{"ambito"})

		id := normalize.FirstString(r, []string{"id", "_id", "uid"})
		if id == "" {
			id = fingerprint(strconv.FormatInt(ts, 10), targa, badge, problem, descr)
		}
		out = append(out, Candidate{
			ID: "segnalazione:" + id,
			Meta: Meta{
				Type: "segnalazione",
				Ref:  fingerprint(strconv.FormatInt(ts, 10), targa, badge, problem, descr, ambito),
			},
			Title:      "Segnalazione non letta " + targa,
			Detail:     problem,
			Severity:   SeverityWarning,
			SortBucket: 2,
			SortValue:  -ts,
		})
	}
	return out
}

func reportUnread(r normalize.Record) bool {
	status := strings.ToLower(normalize.FirstString(r, []string{"stato", "status"}))
	if status == "nuova" || status == "new" {
		return true
	}
	if read, ok := normalize.AsBool(r["letta"]); ok {
		return !read
	}
	return false
}

// GenerateConflicts finds plates claimed by more than one driver at once.
// Tractor and trailer assignments are checked independently. The fingerprint
// hashes the sorted, deduplicated party labels, so the alert resets only
// when the set of conflicting drivers actually changes.
func GenerateConflicts(sessions []normalize.Record, reg *normalize.Registry) []Candidate {
	sc := reg.Schema("agganci_attivi")
	var out []Candidate
	out = append(out, conflictsForScope(sessions, sc, "motrice", sc.Motrice)...)
	out = append(out, conflictsForScope(sessions, sc, "rimorchio", sc.Rimorchio)...)
	return out
}

func conflictsForScope(sessions []normalize.Record, sc normalize.Schema, scope string, plateChain []string) []Candidate {
	type party struct {
		badge string
		label string
	}
	byPlate := make(map[string][]party)
	for _, s := range sessions {
		plate := normalize.NormalizePlate(normalize.FirstString(s, plateChain))
		badge := normalize.Badge(s, sc)
		if plate == "" || badge == "" {
			continue
		}
		label := badge
		if name := normalize.Name(s, sc); name != "" {
			label = badge + " (" + name + ")"
		}
		byPlate[plate] = append(byPlate[plate], party{badge: badge, label: label})
	}

	var plates []string
	for plate := range byPlate {
		plates = append(plates, plate)
	}
	sort.Strings(plates)

	var out []Candidate
	for _, plate := range plates {
		seen := make(map[string]struct{})
		var labels []string
		for _, p := range byPlate[plate] {
			if _, dup := seen[p.badge]; dup {
				continue
			}
			seen[p.badge] = struct{}{}
			labels = append(labels, p.label)
		}
		if len(labels) < 2 {
			continue
		}
		sort.Strings(labels)
		out = append(out, Candidate{
			ID:         "conflict:" + scope + ":" + plate,
			Meta:       Meta{Type: "conflict", Ref: fingerprint(labels...)},
			Title:      "Assegnazione in conflitto " + plate,
			Detail:     strings.Join(labels, ", "),
			Severity:   SeverityDanger,
			SortBucket: 0,
			SortValue:  -int64(len(labels)),
		})
	}
	return out
}
