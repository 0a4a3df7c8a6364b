// Package knowledge holds the regulation/precedent fixtures that the local
// stores are built from, plus the demo scenario catalog.
package knowledge

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/navrag/pkg/navrag/internalerr"
)

//go:embed data/colregs.yaml
var defaultBase []byte

// Base is a complete regulation graph in document form.
type Base struct {
	Rules []RuleDoc `yaml:"rules" json:"rules"`
	Cases []CaseDoc `yaml:"cases" json:"cases"`
}

// RuleDoc is a regulation with its outgoing edges.
type RuleDoc struct {
	ID                string   `yaml:"id" json:"id"`
	Title             string   `yaml:"title" json:"title"`
	Category          string   `yaml:"category" json:"category,omitempty"`
	Summary           string   `yaml:"summary" json:"summary"`
	FullText          string   `yaml:"full_text" json:"full_text,omitempty"`
	LegalWeight       float64  `yaml:"legal_weight" json:"legal_weight"`
	TriggerSituations []string `yaml:"trigger_situations" json:"trigger_situations"`
	VesselTypes       []string `yaml:"vessel_types" json:"vessel_types,omitempty"`
	Actions           []string `yaml:"actions" json:"actions,omitempty"`
}

// CaseDoc is a tribunal ruling with its outgoing edges.
type CaseDoc struct {
	CaseID              string   `yaml:"case_id" json:"case_id"`
	Title               string   `yaml:"title" json:"title"`
	Date                string   `yaml:"date" json:"date,omitempty"`
	Location            string   `yaml:"location" json:"location,omitempty"`
	SituationType       string   `yaml:"situation_type" json:"situation_type"`
	IncidentDescription string   `yaml:"incident_description" json:"incident_description,omitempty"`
	Analysis            string   `yaml:"analysis" json:"analysis,omitempty"`
	Judgment            string   `yaml:"judgment" json:"judgment,omitempty"`
	Penalty             string   `yaml:"penalty" json:"penalty,omitempty"`
	LegalWeight         float64  `yaml:"legal_weight" json:"legal_weight"`
	ColregsViolated     []string `yaml:"colregs_violated" json:"colregs_violated"`
	LessonsLearned      []string `yaml:"lessons_learned" json:"lessons_learned,omitempty"`
}

// Default returns the embedded COLREGs knowledge base.
func Default() (*Base, error) {
	return Parse(defaultBase)
}

// Load reads a knowledge base from a YAML (or JSON) file.
func Load(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates a knowledge base document.
func Parse(data []byte) (*Base, error) {
	var b Base
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: knowledge base: %v", internalerr.ErrInvalidInput, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks identifier uniqueness and that every violated rule exists.
func (b *Base) Validate() error {
	rules := make(map[string]struct{}, len(b.Rules))
	for i, r := range b.Rules {
		if r.ID == "" {
			return fmt.Errorf("%w: rule %d has no id", internalerr.ErrInvalidInput, i)
		}
		if _, dup := rules[r.ID]; dup {
			return fmt.Errorf("%w: duplicate rule id %q", internalerr.ErrInvalidInput, r.ID)
		}
		rules[r.ID] = struct{}{}
	}

	cases := make(map[string]struct{}, len(b.Cases))
	for i, c := range b.Cases {
		if c.CaseID == "" {
			return fmt.Errorf("%w: case %d has no case_id", internalerr.ErrInvalidInput, i)
		}
		if _, dup := cases[c.CaseID]; dup {
			return fmt.Errorf("%w: duplicate case id %q", internalerr.ErrInvalidInput, c.CaseID)
		}
		cases[c.CaseID] = struct{}{}
		for _, rid := range c.ColregsViolated {
			if _, ok := rules[rid]; !ok {
				return fmt.Errorf("%w: case %q violates unknown rule %q", internalerr.ErrInvalidInput, c.CaseID, rid)
			}
		}
	}
	return nil
}

// Rule looks up a rule by id.
func (b *Base) Rule(id string) (RuleDoc, bool) {
	for _, r := range b.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return RuleDoc{}, false
}

// Case looks up a case by id.
func (b *Base) Case(id string) (CaseDoc, bool) {
	for _, c := range b.Cases {
		if c.CaseID == id {
			return c, true
		}
	}
	return CaseDoc{}, false
}

// SituationTypes returns every situation name referenced by rules or cases,
// sorted.
func (b *Base) SituationTypes() []string {
	set := make(map[string]struct{})
	for _, r := range b.Rules {
		for _, s := range r.TriggerSituations {
			if s != "" {
				set[s] = struct{}{}
			}
		}
	}
	for _, c := range b.Cases {
		if c.SituationType != "" {
			set[c.SituationType] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
