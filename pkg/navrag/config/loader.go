package config

import (
	"fmt"

	"github.com/cognicore/navrag/pkg/navrag/action"
	"github.com/cognicore/navrag/pkg/navrag/classify"
)

// Loader loads the optional taxonomy and action files and constructs the
// classifier and action table
type Loader struct {
	TaxonomyPath string
	ActionsPath  string
}

// Components holds all loaded configuration components
type Components struct {
	Classifier *classify.Classifier
	Actions    *action.Table
}

// Load reads all configuration files and returns initialized components.
// Empty paths fall back to the built-in taxonomy and action table.
func (l *Loader) Load() (*Components, error) {
	comp := &Components{}

	if l.TaxonomyPath != "" {
		tax, err := LoadTaxonomy(l.TaxonomyPath)
		if err != nil {
			return nil, fmt.Errorf("load taxonomy: %w", err)
		}
		comp.Classifier, err = tax.Classifier()
		if err != nil {
			return nil, fmt.Errorf("load taxonomy: %w", err)
		}
	} else {
		comp.Classifier = classify.Default()
	}

	families := action.DefaultFamilies()
	if l.ActionsPath != "" {
		acts, err := LoadActions(l.ActionsPath)
		if err != nil {
			return nil, fmt.Errorf("load actions: %w", err)
		}
		families = acts.Families
	}
	table, err := action.NewTable(families)
	if err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}
	comp.Actions = table

	return comp, nil
}
