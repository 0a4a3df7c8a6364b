package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cognicore/navrag/pkg/navrag/knowledge"
	"github.com/cognicore/navrag/pkg/navrag/store"
)

// Store is an in-memory implementation of store.Store. It holds the graph as
// adjacency maps built from a knowledge.Base.
type Store struct {
	mu    sync.RWMutex
	rules map[string]store.Rule
	cases map[string]store.Case

	// situation -> rule ids (APPLIES_TO) and case ids (OCCURRED_IN)
	situationRules map[string]map[string]struct{}
	situationCases map[string]map[string]struct{}
	// rule id -> case ids (VIOLATED)
	violations map[string]map[string]struct{}
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		rules:          make(map[string]store.Rule),
		cases:          make(map[string]store.Case),
		situationRules: make(map[string]map[string]struct{}),
		situationCases: make(map[string]map[string]struct{}),
		violations:     make(map[string]map[string]struct{}),
	}
}

// FromBase builds a store holding every rule and case of b.
func FromBase(b *knowledge.Base) *Store {
	s := New()
	s.Load(b)
	return s
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Load merges b into the store, replacing rules and cases with the same id.
func (s *Store) Load(b *knowledge.Base) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range b.Rules {
		s.rules[r.ID] = store.Rule{
			ID:          r.ID,
			Title:       r.Title,
			Summary:     r.Summary,
			FullText:    r.FullText,
			LegalWeight: r.LegalWeight,
			Situations:  uniqueSorted(r.TriggerSituations),
		}
		for _, sit := range r.TriggerSituations {
			link(s.situationRules, sit, r.ID)
		}
	}

	for _, c := range b.Cases {
		s.cases[c.CaseID] = store.Case{
			CaseID:              c.CaseID,
			Title:               c.Title,
			SituationType:       c.SituationType,
			IncidentDescription: c.IncidentDescription,
			Analysis:            c.Analysis,
			Judgment:            c.Judgment,
			Penalty:             c.Penalty,
			LegalWeight:         c.LegalWeight,
			Lessons:             uniqueInOrder(c.LessonsLearned),
		}
		if c.SituationType != "" {
			link(s.situationCases, c.SituationType, c.CaseID)
		}
		for _, rid := range c.ColregsViolated {
			link(s.violations, rid, c.CaseID)
		}
	}
}

// SituationContext implements store.Store.
func (s *Store) SituationContext(ctx context.Context, tags []string) ([]store.SituationCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.SituationCount, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}

		rules, hasRules := s.situationRules[tag]
		cases, hasCases := s.situationCases[tag]
		if !hasRules && !hasCases {
			continue
		}
		out = append(out, store.SituationCount{
			SituationType: tag,
			RuleCount:     len(rules),
			CaseCount:     len(cases),
		})
	}
	return out, nil
}

// RulesForSituations implements store.Store.
func (s *Store) RulesForSituations(ctx context.Context, tags []string, limit int) ([]store.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]struct{})
	for _, tag := range tags {
		for id := range s.situationRules[tag] {
			ids[id] = struct{}{}
		}
	}

	results := make([]store.Rule, 0, len(ids))
	for id := range ids {
		results = append(results, s.rules[id].Clone())
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].LegalWeight != results[j].LegalWeight {
			return results[i].LegalWeight > results[j].LegalWeight
		}
		return results[i].ID < results[j].ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CasesViolating implements store.Store.
func (s *Store) CasesViolating(ctx context.Context, ruleIDs []string, limit int) ([]store.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]struct{})
	for _, rid := range ruleIDs {
		for id := range s.violations[rid] {
			ids[id] = struct{}{}
		}
	}

	results := make([]store.Case, 0, len(ids))
	for id := range ids {
		if c, ok := s.cases[id]; ok {
			results = append(results, c.Clone())
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].LegalWeight != results[j].LegalWeight {
			return results[i].LegalWeight > results[j].LegalWeight
		}
		return results[i].CaseID < results[j].CaseID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Statement implements store.Store. The in-memory store has no query
// language, so it describes the traversal instead.
func (s *Store) Statement(q store.Query) string {
	switch q {
	case store.QuerySituationContext:
		return "memstore: count rules APPLIES_TO and cases OCCURRED_IN each situation tag"
	case store.QueryRules:
		return "memstore: rules APPLIES_TO any situation tag ORDER BY legal_weight DESC, id ASC"
	case store.QueryCases:
		return "memstore: cases VIOLATED any rule id with TEACHES lessons ORDER BY legal_weight DESC, case_id ASC"
	}
	return fmt.Sprintf("memstore: %s", q)
}

func link(index map[string]map[string]struct{}, from, to string) {
	from = strings.TrimSpace(from)
	if from == "" || to == "" {
		return
	}
	set, ok := index[from]
	if !ok {
		set = make(map[string]struct{})
		index[from] = set
	}
	set[to] = struct{}{}
}

func uniqueSorted(in []string) []string {
	out := uniqueInOrder(in)
	sort.Strings(out)
	return out
}

func uniqueInOrder(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
