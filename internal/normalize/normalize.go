// Package normalize extracts canonical fields from the loosely-typed records
// the dashboard collections hold. Every source schema drifts: the same concept
// shows up under different keys, as a number or a string, sometimes nested.
// Extraction therefore walks an explicit priority-ordered list of candidate
// paths per field and takes the first usable value. Nothing in this package
// returns an error; malformed fields degrade to zero values.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// PlaceholderPlate is returned when no plate can be extracted from a record.
const PlaceholderPlate = "N/D"

// CanonicalRecord is the shared shape every source record reduces to.
type CanonicalRecord struct {
	IdentifierCandidates []string
	DisplayName          string
	Timestamp            int64
	TimestampOK          bool
	RawTimestampLabel    string
}

// Record is a raw source record.
type Record = map[string]any

// Lookup resolves a dotted path ("prima.motrice") inside a record. Any
// segment of unexpected type counts as absent.
func Lookup(rec Record, path string) (any, bool) {
	cur := any(rec)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// FirstString walks the candidate paths in order and returns the first
// non-empty string value, trimmed.
func FirstString(rec Record, paths []string) string {
	for _, p := range paths {
		v, ok := Lookup(rec, p)
		if !ok {
			continue
		}
		s := asString(v)
		if strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// FirstTimestamp walks the candidate paths in order and returns the first
// value that converts to a finite epoch-millisecond number, plus the raw
// textual form of that value for display.
func FirstTimestamp(rec Record, paths []string) (int64, bool, string) {
	for _, p := range paths {
		v, ok := Lookup(rec, p)
		if !ok {
			continue
		}
		if ms, ok := ToEpochMillis(v); ok {
			return ms, true, asString(v)
		}
	}
	return 0, false, ""
}

// ToEpochMillis coerces a value of unknown type to epoch milliseconds.
// Numbers (and numeric strings) below 1e12 are treated as seconds. Date
// strings in the layouts the dashboard produces are accepted too.
func ToEpochMillis(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return millisFromNumber(t)
	case int64:
		return millisFromNumber(float64(t))
	case int:
		return millisFromNumber(float64(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return millisFromNumber(n)
		}
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UnixMilli(), true
			}
		}
	}
	return 0, false
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

func millisFromNumber(n float64) (int64, bool) {
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return 0, false
	}
	if n < 1e12 {
		n *= 1000
	}
	return int64(n), true
}

// NormalizePlate uppercases a plate and strips all internal whitespace.
// An empty result stays empty; callers decide whether to substitute the
// placeholder.
func NormalizePlate(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// NormalizeBadge trims and lowercases a badge code.
func NormalizeBadge(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeName lowercases a display name and collapses runs of whitespace.
func NormalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// AsString exposes the lenient string coercion for other packages.
func AsString(v any) string { return asString(v) }

// AsBool coerces truthy values ("true", "si", 1, true) leniently.
func AsBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "si", "sì", "1", "yes":
			return true, true
		case "false", "no", "0":
			return false, true
		}
	case float64:
		return t != 0, true
	}
	return false, false
}

// Canonical extracts the shared canonical shape using the given schema.
func Canonical(rec Record, sc Schema) CanonicalRecord {
	ts, ok, label := FirstTimestamp(rec, sc.Timestamp)
	if label == "" && ok {
		label = FormatMillis(ts)
	}
	return CanonicalRecord{
		IdentifierCandidates: PlateCandidates(rec, sc),
		DisplayName:          FirstString(rec, sc.Name),
		Timestamp:            ts,
		TimestampOK:          ok,
		RawTimestampLabel:    label,
	}
}

// PlateCandidates collects every distinct normalized plate reachable through
// the schema's plate paths, in path order.
func PlateCandidates(rec Record, sc Schema) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range sc.Plate {
		v, ok := Lookup(rec, p)
		if !ok {
			continue
		}
		plate := NormalizePlate(asString(v))
		if plate == "" {
			continue
		}
		if _, dup := seen[plate]; dup {
			continue
		}
		seen[plate] = struct{}{}
		out = append(out, plate)
	}
	return out
}

// Plate returns the first extractable plate or the placeholder.
func Plate(rec Record, sc Schema) string {
	for _, p := range sc.Plate {
		v, ok := Lookup(rec, p)
		if !ok {
			continue
		}
		if plate := NormalizePlate(asString(v)); plate != "" {
			return plate
		}
	}
	return PlaceholderPlate
}

// Badge returns the record's normalized badge, or "" when absent.
func Badge(rec Record, sc Schema) string {
	return NormalizeBadge(FirstString(rec, sc.Badge))
}

// Name returns the record's display name as entered, or "".
func Name(rec Record, sc Schema) string {
	return FirstString(rec, sc.Name)
}

// FormatMillis renders an epoch-millisecond value as the dashboard's
// date label.
func FormatMillis(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format("02/01/2006 15:04")
}

// DaysLabel renders a days-remaining count the way the alert list shows it.
func DaysLabel(days int) string {
	if days < 0 {
		return fmt.Sprintf("scaduta da %d giorni", -days)
	}
	if days == 0 {
		return "scade oggi"
	}
	return fmt.Sprintf("scade tra %d giorni", days)
}
