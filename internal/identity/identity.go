// Package identity resolves driver identity across collections that share no
// foreign keys. A badge code is authoritative when present; free-text names
// are only trusted as a fallback, after a majority vote over every name seen
// next to that badge across all sources.
package identity

import (
	"sort"

	"flotta/api/internal/normalize"
)

// Confidence grades a record-to-identity match.
type Confidence int

const (
	None Confidence = iota
	Weak
	Exact
)

func (c Confidence) String() string {
	switch c {
	case Exact:
		return "EXACT"
	case Weak:
		return "WEAK"
	default:
		return "NONE"
	}
}

// nameVote counts one observed (badge, name) pairing.
type nameVote struct {
	label string
	count int
	seen  int // first-seen order, breaks ties
}

// Resolver holds the name observations of one reconciliation pass. Build it,
// use it, discard it; it is never shared across passes.
type Resolver struct {
	votes map[string][]*nameVote // badge -> observed display names
	order int
}

func NewResolver() *Resolver {
	return &Resolver{votes: make(map[string][]*nameVote)}
}

// Observe records a badge/name co-occurrence from any source collection.
// Empty badges or names are ignored.
func (r *Resolver) Observe(badge, name string) {
	b := normalize.NormalizeBadge(badge)
	n := normalize.NormalizeName(name)
	if b == "" || n == "" {
		return
	}
	for _, v := range r.votes[b] {
		if normalize.NormalizeName(v.label) == n {
			v.count++
			return
		}
	}
	r.order++
	r.votes[b] = append(r.votes[b], &nameVote{label: name, count: 1, seen: r.order})
}

// ObserveRecord extracts badge and name through the schema and observes them.
func (r *Resolver) ObserveRecord(rec normalize.Record, sc normalize.Schema) {
	r.Observe(normalize.FirstString(rec, sc.Badge), normalize.Name(rec, sc))
}

// PrimaryName returns the most frequent display name seen with a badge.
// Ties go to the name seen first. Empty when the badge was never observed.
func (r *Resolver) PrimaryName(badge string) string {
	b := normalize.NormalizeBadge(badge)
	var best *nameVote
	for _, v := range r.votes[b] {
		if best == nil || v.count > best.count || (v.count == best.count && v.seen < best.seen) {
			best = v
		}
	}
	if best == nil {
		return ""
	}
	return best.label
}

// Match grades one record against a target badge. The badge is authoritative:
// a record carrying a different badge never matches, whatever its name says.
// Records with no badge at all match Weak when their name equals the target's
// primary name.
func (r *Resolver) Match(rec normalize.Record, sc normalize.Schema, targetBadge string) Confidence {
	target := normalize.NormalizeBadge(targetBadge)
	if target == "" {
		return None
	}
	recBadge := normalize.Badge(rec, sc)
	if recBadge != "" {
		if recBadge == target {
			return Exact
		}
		return None
	}
	name := normalize.NormalizeName(normalize.Name(rec, sc))
	if name == "" {
		return None
	}
	if name == normalize.NormalizeName(r.PrimaryName(target)) {
		return Weak
	}
	return None
}

// NameMatch is one candidate identity for a name-only query.
type NameMatch struct {
	Badge       string `json:"badge"`
	DisplayName string `json:"displayName"`
	Occurrences int    `json:"occurrences"`
}

// SearchByName returns every badge whose observed names contain the query
// name (normalized equality), ranked by how often the pairing was seen.
// More than one entry means the name is ambiguous; the caller disambiguates.
func (r *Resolver) SearchByName(name string) []NameMatch {
	q := normalize.NormalizeName(name)
	if q == "" {
		return nil
	}
	var out []NameMatch
	for badge, votes := range r.votes {
		for _, v := range votes {
			if normalize.NormalizeName(v.label) == q {
				out = append(out, NameMatch{Badge: badge, DisplayName: v.label, Occurrences: v.count})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].Badge < out[j].Badge
	})
	return out
}

// PlatesAlike reports whether two normalized plates refer to the same
// vehicle, tolerating one character of OCR or typing noise: equal, or length
// differs by at most one and at most one position differs over the shorter
// string. Only used to correlate legacy free-text plate fields, never for
// primary identity.
func PlatesAlike(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	la, lb := len(a), len(b)
	diff := la - lb
	if diff < -1 || diff > 1 {
		return false
	}
	short := la
	if lb < la {
		short = lb
	}
	mismatches := 0
	for i := 0; i < short; i++ {
		if a[i] != b[i] {
			mismatches++
			if mismatches > 1 {
				return false
			}
		}
	}
	return true
}
