package knowledge

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cognicore/navrag/pkg/navrag/internalerr"
	"github.com/cognicore/navrag/pkg/navrag/situation"
)

//go:embed data/scenarios.json
var defaultScenarios []byte

// Scenario is a demo fixture: a situation payload plus display metadata.
type Scenario struct {
	ScenarioSummary
	Input situation.Input
	Raw   json.RawMessage
}

// ScenarioSummary is the list view of a scenario.
type ScenarioSummary struct {
	ScenarioID    string `json:"scenario_id"`
	Title         string `json:"title"`
	ThumbnailDesc string `json:"thumbnail_desc,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`
	RiskLevel     int    `json:"risk_level"`
}

// Catalog is an ordered, id-indexed scenario collection.
type Catalog struct {
	scenarios []Scenario
	index     map[string]int
}

// DefaultScenarios returns the embedded demo catalog.
func DefaultScenarios() (*Catalog, error) {
	return ParseScenarios(defaultScenarios)
}

// LoadScenarios reads a JSON array of scenarios from path.
func LoadScenarios(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenarios(data)
}

// ParseScenarios decodes a JSON array of scenarios. Entries without a
// scenario_id are rejected.
func ParseScenarios(data []byte) (*Catalog, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: scenarios: %v", internalerr.ErrInvalidInput, err)
	}

	cat := &Catalog{index: make(map[string]int, len(raws))}
	for i, raw := range raws {
		var meta struct {
			ScenarioID    situation.Text `json:"scenario_id"`
			Title         situation.Text `json:"title"`
			ThumbnailDesc situation.Text `json:"thumbnail_desc"`
			Difficulty    situation.Text `json:"difficulty"`
			RiskLevel     situation.Int  `json:"risk_level"`
		}
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("%w: scenario %d: %v", internalerr.ErrInvalidInput, i, err)
		}
		id := meta.ScenarioID.String()
		if id == "" {
			return nil, fmt.Errorf("%w: scenario %d has no scenario_id", internalerr.ErrInvalidInput, i)
		}
		if _, dup := cat.index[id]; dup {
			return nil, fmt.Errorf("%w: duplicate scenario id %q", internalerr.ErrInvalidInput, id)
		}
		in, err := situation.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", id, err)
		}

		cat.index[id] = len(cat.scenarios)
		cat.scenarios = append(cat.scenarios, Scenario{
			ScenarioSummary: ScenarioSummary{
				ScenarioID:    id,
				Title:         meta.Title.String(),
				ThumbnailDesc: meta.ThumbnailDesc.String(),
				Difficulty:    meta.Difficulty.String(),
				RiskLevel:     int(meta.RiskLevel),
			},
			Input: in,
			Raw:   raw,
		})
	}
	return cat, nil
}

// List returns scenario summaries in file order.
func (c *Catalog) List() []ScenarioSummary {
	out := make([]ScenarioSummary, len(c.scenarios))
	for i, s := range c.scenarios {
		out[i] = s.ScenarioSummary
	}
	return out
}

// Get returns the scenario with the given id.
func (c *Catalog) Get(id string) (Scenario, bool) {
	i, ok := c.index[id]
	if !ok {
		return Scenario{}, false
	}
	return c.scenarios[i], true
}

// Len reports the number of scenarios.
func (c *Catalog) Len() int { return len(c.scenarios) }
