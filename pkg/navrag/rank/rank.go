// Package rank orders retrieved rules and cases by legal weight.
package rank

import (
	"sort"

	"github.com/cognicore/navrag/pkg/navrag/store"
)

// Rules deduplicates rules by id (first occurrence wins), sorts them by
// legal weight descending with id ascending as tie-break, and keeps at most
// limit entries. limit <= 0 keeps everything. The result is never nil.
func Rules(in []store.Rule, limit int) []store.Rule {
	return top(in, limit,
		func(r store.Rule) string { return r.ID },
		func(r store.Rule) float64 { return r.LegalWeight },
		store.Rule.Clone,
	)
}

// Cases is Rules for precedent cases, keyed by case id.
func Cases(in []store.Case, limit int) []store.Case {
	return top(in, limit,
		func(c store.Case) string { return c.CaseID },
		func(c store.Case) float64 { return c.LegalWeight },
		store.Case.Clone,
	)
}

func top[T any](in []T, limit int, key func(T) string, weight func(T) float64, clone func(T) T) []T {
	seen := make(map[string]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, item := range in {
		k := key(item)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, clone(item))
	}

	sort.SliceStable(out, func(i, j int) bool {
		wi, wj := weight(out[i]), weight(out[j])
		if wi != wj {
			return wi > wj
		}
		return key(out[i]) < key(out[j])
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// IDs returns the rule ids in order.
func IDs(rules []store.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.ID
	}
	return out
}

// Overlap returns the Jaccard similarity between a rule's situations and the
// classified tags.
func Overlap(tags, situations []string) float64 {
	return jaccard(tags, situations)
}

// jaccard calculates Jaccard similarity between two string slices
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	aSet := make(map[string]struct{}, len(a))
	for _, s := range a {
		aSet[s] = struct{}{}
	}

	bSet := make(map[string]struct{}, len(b))
	for _, s := range b {
		bSet[s] = struct{}{}
	}

	intersection := 0
	for s := range aSet {
		if _, ok := bSet[s]; ok {
			intersection++
		}
	}

	union := len(aSet) + len(bSet) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}
