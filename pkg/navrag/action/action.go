// Package action turns retrieved rules, precedent cases and scenario ground
// truth into a ranked recommendation.
package action

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cognicore/navrag/pkg/navrag/internalerr"
	"github.com/cognicore/navrag/pkg/navrag/situation"
	"github.com/cognicore/navrag/pkg/navrag/store"
)

const (
	SourceGroundTruth = "ground_truth"
	SourceDerived     = "derived"
	SourceNone        = "none"

	groundTruthActions = 3
	groundTruthBasis   = 2

	SeverityCritical = "CRITICAL"
	cpaThresholdNM   = 1.0
)

// Recommendation is the canonical action plan. Slices are never nil so the
// JSON shape is identical on every path.
type Recommendation struct {
	PriorityActions []situation.Action `json:"priority_actions"`
	Warnings        []Warning          `json:"warnings"`
	LegalBasis      []Basis            `json:"legal_basis"`
	KeyLessons      []string           `json:"key_lessons"`
	Source          string             `json:"source"`
}

// Warning is a safety warning attached to a recommendation.
type Warning struct {
	Warning  string `json:"warning"`
	Reason   string `json:"reason,omitempty"`
	Severity string `json:"severity"`
}

// Basis cites a rule supporting the recommendation.
type Basis struct {
	RuleID      string  `json:"rule_id"`
	Title       string  `json:"title"`
	LegalWeight float64 `json:"legal_weight"`
}

// Empty returns the recommendation used on failure paths.
func Empty() Recommendation {
	return Recommendation{
		PriorityActions: []situation.Action{},
		Warnings:        []Warning{},
		LegalBasis:      []Basis{},
		KeyLessons:      []string{},
		Source:          SourceNone,
	}
}

// Roles of the own vessel implied by a family.
const (
	RoleGiveWay = "give-way"
	RoleStandOn = "stand-on"
)

// Family groups rules that call for the same manoeuvre.
type Family struct {
	Name     string            `yaml:"name" json:"name"`
	Rules    []string          `yaml:"rules" json:"rules"`
	Action   string            `yaml:"action" json:"action"`
	Priority int               `yaml:"priority" json:"priority"`
	Role     string            `yaml:"role,omitempty" json:"role,omitempty"`
	Details  map[string]string `yaml:"details,omitempty" json:"details,omitempty"`
}

// Table maps rule ids to action families.
type Table struct {
	families []Family
	byRule   map[string]int
}

// NewTable indexes families by normalized rule id. A rule may belong to one
// family only.
func NewTable(families []Family) (*Table, error) {
	t := &Table{byRule: make(map[string]int)}
	for i, f := range families {
		if strings.TrimSpace(f.Action) == "" {
			return nil, fmt.Errorf("%w: action family %q has no action", internalerr.ErrInvalidConfig, f.Name)
		}
		if len(f.Rules) == 0 {
			return nil, fmt.Errorf("%w: action family %q has no rules", internalerr.ErrInvalidConfig, f.Name)
		}
		if f.Name == "" {
			f.Name = fmt.Sprintf("family_%d", i)
		}
		switch f.Role {
		case "", RoleGiveWay, RoleStandOn:
		default:
			return nil, fmt.Errorf("%w: action family %q has unknown role %q", internalerr.ErrInvalidConfig, f.Name, f.Role)
		}
		idx := len(t.families)
		for _, rid := range f.Rules {
			id := NormalizeRuleID(rid)
			if prev, dup := t.byRule[id]; dup {
				return nil, fmt.Errorf("%w: rule %s in families %q and %q", internalerr.ErrInvalidConfig, id, t.families[prev].Name, f.Name)
			}
			t.byRule[id] = idx
		}
		t.families = append(t.families, f)
	}
	return t, nil
}

// Lookup returns the family for a rule id in any accepted spelling.
func (t *Table) Lookup(ruleID string) (Family, bool) {
	i, ok := t.byRule[NormalizeRuleID(ruleID)]
	if !ok {
		return Family{}, false
	}
	return t.families[i], true
}

// Families returns the table contents.
func (t *Table) Families() []Family {
	return append([]Family(nil), t.families...)
}

var ruleIDPattern = regexp.MustCompile(`^rule[\s_\-]*0*(\d+)$`)

// NormalizeRuleID maps "Rule 19", "rule-19" and "RULE_19" to "rule_19".
// Numbers are zero-padded to two digits. Other inputs are lowercased and
// trimmed.
func NormalizeRuleID(id string) string {
	s := strings.ToLower(strings.TrimSpace(id))
	m := ruleIDPattern.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return s
	}
	return fmt.Sprintf("rule_%02d", n)
}

// Synthesizer builds recommendations.
type Synthesizer struct {
	table *Table
}

// NewSynthesizer creates a synthesizer. A nil table uses DefaultFamilies.
func NewSynthesizer(table *Table) *Synthesizer {
	if table == nil {
		table = mustTable(DefaultFamilies())
	}
	return &Synthesizer{table: table}
}

func mustTable(families []Family) *Table {
	t, err := NewTable(families)
	if err != nil {
		panic(err)
	}
	return t
}

// Synthesize builds the recommendation for one analysis. Inputs carrying
// correct_actions use them as ground truth; otherwise actions are derived
// from the rules through the family table.
func (s *Synthesizer) Synthesize(in situation.Input, p situation.Perception, rules []store.Rule, cases []store.Case) Recommendation {
	rec := Empty()

	if len(in.CorrectActions) > 0 {
		rec.Source = SourceGroundTruth
		n := min(groundTruthActions, len(in.CorrectActions))
		rec.PriorityActions = append(rec.PriorityActions, in.CorrectActions[:n]...)
		rec.LegalBasis = basis(rules, groundTruthBasis)
	} else {
		rec.Source = SourceDerived
		rec.PriorityActions = s.derive(rules)
		rec.LegalBasis = basis(rules, 0)
	}

	for _, w := range in.CriticalWarnings {
		if w.Warning.String() == "" {
			continue
		}
		rec.Warnings = append(rec.Warnings, Warning{
			Warning:  w.Warning.String(),
			Reason:   w.Reason.String(),
			Severity: strings.ToUpper(w.Severity.String()),
		})
	}
	if w, ok := cpaWarning(p); ok {
		rec.Warnings = append(rec.Warnings, w)
	}

	rec.KeyLessons = lessons(cases)
	return rec
}

func (s *Synthesizer) derive(rules []store.Rule) []situation.Action {
	// a vessel told to give way is not also the stand-on vessel
	giveWay := false
	for _, r := range rules {
		if f, ok := s.table.Lookup(r.ID); ok && f.Role == RoleGiveWay {
			giveWay = true
			break
		}
	}

	out := []situation.Action{}
	emitted := make(map[string]struct{})
	for _, r := range rules {
		f, ok := s.table.Lookup(r.ID)
		if !ok {
			continue
		}
		if _, done := emitted[f.Name]; done {
			continue
		}
		if giveWay && f.Role == RoleStandOn {
			continue
		}
		emitted[f.Name] = struct{}{}

		a := situation.Action{
			Action:   f.Action,
			Priority: f.Priority,
			Colregs:  NormalizeRuleID(r.ID),
		}
		if len(f.Details) > 0 {
			a.Details = make(map[string]string, len(f.Details))
			for k, v := range f.Details {
				a.Details[k] = v
			}
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func basis(rules []store.Rule, limit int) []Basis {
	out := []Basis{}
	for _, r := range rules {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, Basis{RuleID: r.ID, Title: r.Title, LegalWeight: r.LegalWeight})
	}
	return out
}

// lessons returns the union of case lessons in first-occurrence order.
func lessons(cases []store.Case) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, c := range cases {
		for _, l := range c.Lessons {
			l = strings.TrimSpace(l)
			if l == "" {
				continue
			}
			if _, dup := seen[l]; dup {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}

// cpaWarning fires when the nearest target's CPA is under one nautical mile.
func cpaWarning(p situation.Perception) (Warning, bool) {
	var (
		nearest situation.Measure
		target  situation.Contact
		found   bool
	)
	for _, t := range p.Targets {
		m, ok := situation.ParseMeasure(t.CPA)
		if !ok {
			continue
		}
		if !found || m.Value < nearest.Value {
			nearest, target, found = m, t, true
		}
	}
	if !found || !nearest.LessThan(cpaThresholdNM) {
		return Warning{}, false
	}
	return Warning{
		Warning:  fmt.Sprintf("Close-quarters situation developing with %s (CPA %s)", target.Label(), target.CPA),
		Reason:   "Closest point of approach is under 1 nautical mile",
		Severity: SeverityCritical,
	}, true
}
