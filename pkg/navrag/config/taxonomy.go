package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/navrag/pkg/navrag/action"
	"github.com/cognicore/navrag/pkg/navrag/classify"
	"github.com/cognicore/navrag/pkg/navrag/internalerr"
)

// Taxonomy represents the situation taxonomy configuration
type Taxonomy struct {
	DefaultTag string      `yaml:"default_tag"`
	Predicates []Predicate `yaml:"predicates"`
}

// Predicate is one keyword rule of the taxonomy file.
type Predicate struct {
	Tag      string   `yaml:"tag"`
	Field    string   `yaml:"field"`
	Keywords []string `yaml:"keywords"`
}

// LoadTaxonomy loads the situation taxonomy from a YAML file
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tax Taxonomy
	if err := yaml.Unmarshal(data, &tax); err != nil {
		return nil, fmt.Errorf("%w: taxonomy: %v", internalerr.ErrInvalidConfig, err)
	}
	return &tax, nil
}

// Classifier builds a classifier from the taxonomy.
func (t *Taxonomy) Classifier() (*classify.Classifier, error) {
	preds := make([]classify.Predicate, 0, len(t.Predicates))
	for i, p := range t.Predicates {
		if p.Tag == "" {
			return nil, fmt.Errorf("%w: taxonomy predicate %d has no tag", internalerr.ErrInvalidConfig, i)
		}
		field := classify.Field(p.Field)
		switch field {
		case classify.FieldVisibility, classify.FieldTargetAspect, classify.FieldTargetType, classify.FieldOwnPosition:
		default:
			return nil, fmt.Errorf("%w: taxonomy predicate %q has unknown field %q", internalerr.ErrInvalidConfig, p.Tag, p.Field)
		}
		preds = append(preds, classify.Predicate{Tag: p.Tag, Field: field, Keywords: p.Keywords})
	}
	return classify.New(preds, t.DefaultTag), nil
}

// Actions represents the action family table configuration
type Actions struct {
	Families []action.Family `yaml:"families"`
}

// LoadActions loads the action family table from a YAML file
func LoadActions(path string) (*Actions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var acts Actions
	if err := yaml.Unmarshal(data, &acts); err != nil {
		return nil, fmt.Errorf("%w: actions: %v", internalerr.ErrInvalidConfig, err)
	}
	return &acts, nil
}
