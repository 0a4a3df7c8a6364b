package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/cognicore/navrag/pkg/navrag/knowledge"
	"github.com/cognicore/navrag/pkg/navrag/store"
)

var _ store.Store = (*Store)(nil)

func newDefault(t *testing.T) *Store {
	t.Helper()
	base, err := knowledge.Default()
	if err != nil {
		t.Fatalf("knowledge.Default: %v", err)
	}
	return FromBase(base)
}

func ruleIDs(rules []store.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.ID
	}
	return out
}

func TestRulesForSituations_OrderAndLimit(t *testing.T) {
	s := newDefault(t)
	tags := []string{"restricted visibility", "crossing", "vessel-category duty"}

	rules, err := s.RulesForSituations(context.Background(), tags, 5)
	if err != nil {
		t.Fatalf("RulesForSituations: %v", err)
	}
	want := []string{"rule_19", "rule_15", "rule_08", "rule_16", "rule_18"}
	got := ruleIDs(rules)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRulesForSituations_OneRowPerRule(t *testing.T) {
	s := newDefault(t)
	// rule_05 applies to all of these tags
	rules, err := s.RulesForSituations(context.Background(), []string{"crossing", "head-on", "overtaking"}, 0)
	if err != nil {
		t.Fatalf("RulesForSituations: %v", err)
	}
	seen := map[string]bool{}
	for _, r := range rules {
		if seen[r.ID] {
			t.Fatalf("rule %s returned twice", r.ID)
		}
		seen[r.ID] = true
	}
	if !seen["rule_05"] {
		t.Fatalf("expected rule_05 in %v", ruleIDs(rules))
	}
}

func TestRulesForSituations_UnknownTag(t *testing.T) {
	s := newDefault(t)
	rules, err := s.RulesForSituations(context.Background(), []string{"iceberg"}, 5)
	if err != nil {
		t.Fatalf("RulesForSituations: %v", err)
	}
	if rules == nil || len(rules) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", rules)
	}
}

func TestCasesViolating(t *testing.T) {
	s := newDefault(t)
	ids := []string{"rule_19", "rule_15", "rule_08", "rule_16", "rule_18"}

	cases, err := s.CasesViolating(context.Background(), ids, 3)
	if err != nil {
		t.Fatalf("CasesViolating: %v", err)
	}
	want := []string{"KMST-2022-007", "KMST-2023-001", "KMST-2024-012"}
	if len(cases) != len(want) {
		t.Fatalf("expected %d cases, got %d", len(want), len(cases))
	}
	for i, c := range cases {
		if c.CaseID != want[i] {
			t.Fatalf("case %d: expected %s, got %s", i, want[i], c.CaseID)
		}
	}
	if len(cases[0].Lessons) != 2 {
		t.Fatalf("expected 2 lessons for %s, got %v", cases[0].CaseID, cases[0].Lessons)
	}
}

func TestCasesViolating_ReturnsCopies(t *testing.T) {
	s := newDefault(t)
	cases, err := s.CasesViolating(context.Background(), []string{"rule_19"}, 1)
	if err != nil || len(cases) != 1 {
		t.Fatalf("CasesViolating: %v %v", cases, err)
	}
	cases[0].Lessons[0] = "mutated"

	again, _ := s.CasesViolating(context.Background(), []string{"rule_19"}, 1)
	if again[0].Lessons[0] == "mutated" {
		t.Fatal("store leaked internal slice")
	}
}

func TestSituationContext(t *testing.T) {
	s := newDefault(t)
	rows, err := s.SituationContext(context.Background(), []string{"restricted visibility", "iceberg", "restricted visibility"})
	if err != nil {
		t.Fatalf("SituationContext: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %v", rows)
	}
	// rules 05 06 07 08 19 35; case KMST-2023-001
	if rows[0].RuleCount != 6 || rows[0].CaseCount != 1 {
		t.Fatalf("unexpected counts: %+v", rows[0])
	}
}

func TestCancelledContext(t *testing.T) {
	s := newDefault(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.RulesForSituations(ctx, []string{"crossing"}, 5); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStatement(t *testing.T) {
	s := New()
	for _, q := range []store.Query{store.QuerySituationContext, store.QueryRules, store.QueryCases} {
		if s.Statement(q) == "" {
			t.Fatalf("empty statement for %s", q)
		}
	}
}
