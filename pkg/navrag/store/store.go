package store

import (
	"context"
)

// Store is the read-only view of the regulation knowledge graph used by the
// reasoning pipeline. Implementations must be safe for concurrent use.
type Store interface {
	Close() error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// SituationContext returns, per SituationType named in tags, the number of
	// distinct rules and cases linked to it. Unknown tags are omitted.
	SituationContext(ctx context.Context, tags []string) ([]SituationCount, error)

	// RulesForSituations returns rules that apply to any of the tags, one row
	// per rule id, ordered by legal weight descending then id ascending.
	// limit <= 0 means no limit.
	RulesForSituations(ctx context.Context, tags []string, limit int) ([]Rule, error)

	// CasesViolating returns cases that violated any of the rule ids, one row
	// per case id with its lessons, ordered by legal weight descending then
	// case id ascending. limit <= 0 means no limit.
	CasesViolating(ctx context.Context, ruleIDs []string, limit int) ([]Case, error)

	// Statement returns the query text issued for q, for the reasoning trace.
	Statement(q Query) string
}

// Query identifies one of the three read queries.
type Query string

const (
	QuerySituationContext Query = "situation_context"
	QueryRules            Query = "rules_for_situations"
	QueryCases            Query = "cases_violating"
)

// SituationCount is a row of the situation context query.
type SituationCount struct {
	SituationType string `json:"situation_type"`
	RuleCount     int    `json:"rule_count"`
	CaseCount     int    `json:"case_count"`
}

// Rule is a navigation regulation row.
type Rule struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary,omitempty"`
	FullText    string   `json:"full_text,omitempty"`
	LegalWeight float64  `json:"legal_weight"`
	Situations  []string `json:"situations"`
}

// Case is a precedent ruling row.
type Case struct {
	CaseID              string   `json:"case_id"`
	Title               string   `json:"title"`
	SituationType       string   `json:"situation_type,omitempty"`
	IncidentDescription string   `json:"incident_description,omitempty"`
	Analysis            string   `json:"analysis,omitempty"`
	Judgment            string   `json:"judgment,omitempty"`
	Penalty             string   `json:"penalty,omitempty"`
	LegalWeight         float64  `json:"legal_weight"`
	Lessons             []string `json:"lessons"`
}

// Clone returns a deep copy of r.
func (r Rule) Clone() Rule {
	r.Situations = append(make([]string, 0, len(r.Situations)), r.Situations...)
	return r
}

// Clone returns a deep copy of c.
func (c Case) Clone() Case {
	c.Lessons = append(make([]string, 0, len(c.Lessons)), c.Lessons...)
	return c
}
