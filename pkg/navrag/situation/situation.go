// Package situation decodes analysis payloads and normalizes them into a
// flat perception snapshot.
//
// Decoding is lenient: optional fields with the wrong JSON type are treated as
// absent. Only a payload that is not a JSON object at the top level is
// rejected.
package situation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cognicore/navrag/pkg/navrag/internalerr"
)

// Text is a scalar field that accepts any JSON scalar. Numbers and booleans
// keep their literal form; objects, arrays and null decode to "".
type Text string

// UnmarshalJSON implements json.Unmarshaler and never fails.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*t = ""
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			*t = Text(s)
		}
	case '{', '[', 'n':
	default:
		*t = Text(b)
	}
	return nil
}

// String returns the trimmed text.
func (t Text) String() string { return strings.TrimSpace(string(t)) }

// Int is an integer field that accepts numbers and numeric strings.
type Int int

// UnmarshalJSON implements json.Unmarshaler and never fails.
func (n *Int) UnmarshalJSON(b []byte) error {
	var txt Text
	_ = txt.UnmarshalJSON(b)
	*n = 0
	f, err := strconv.ParseFloat(txt.String(), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	*n = Int(f)
	return nil
}

// Input is the analysis payload: a scenario fixture or a live situation.
type Input struct {
	ScenarioID       Text      `json:"scenario_id,omitempty"`
	Title            Text      `json:"title,omitempty"`
	Situation        Situation `json:"situation"`
	CorrectActions   []Action  `json:"correct_actions,omitempty"`
	CriticalWarnings []Warning `json:"critical_warnings,omitempty"`
}

// Situation is the navigational picture reported by the bridge.
type Situation struct {
	Visibility    Text     `json:"visibility"`
	Weather       Text     `json:"weather,omitempty"`
	Time          Text     `json:"time,omitempty"`
	SeaState      Text     `json:"sea_state,omitempty"`
	OwnShip       OwnShip  `json:"own_ship"`
	TargetVessels []Target `json:"target_vessels"`
}

// OwnShip describes the vessel running the analysis.
type OwnShip struct {
	Type     Text `json:"type"`
	Speed    Text `json:"speed"`
	Heading  Text `json:"heading"`
	Position Text `json:"position,omitempty"`
}

// Target is one detected vessel with precomputed CPA/TCPA.
type Target struct {
	ID               Text `json:"id,omitempty"`
	Type             Text `json:"type"`
	Bearing          Text `json:"bearing"`
	Distance         Text `json:"distance"`
	Speed            Text `json:"speed,omitempty"`
	CPA              Text `json:"cpa"`
	TCPA             Text `json:"tcpa"`
	RelativePosition Text `json:"relative_position"`
	VesselStatus     Text `json:"vessel_status"`
}

// Action is a recommended maneuver. Fields other than action, priority and
// colregs are kept in Details and flattened back on encode.
type Action struct {
	Action   string            `json:"action"`
	Priority int               `json:"priority"`
	Colregs  string            `json:"colregs,omitempty"`
	Details  map[string]string `json:"-"`
}

// Warning is a hazard notice attached to a recommendation.
type Warning struct {
	Warning  Text `json:"warning"`
	Reason   Text `json:"reason"`
	Severity Text `json:"severity"`
}

// Decode parses a raw payload. It fails only when the payload is not a JSON
// object.
func Decode(data []byte) (Input, error) {
	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return Input{}, fmt.Errorf("%w: %v", internalerr.ErrInvalidInput, err)
	}
	return in, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (in *Input) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("situation payload must be an object: %w", err)
	}
	*in = Input{}
	decodeInto(fields["scenario_id"], &in.ScenarioID)
	decodeInto(fields["title"], &in.Title)
	decodeInto(fields["situation"], &in.Situation)
	in.CorrectActions = decodeList[Action](fields["correct_actions"])
	in.CriticalWarnings = decodeList[Warning](fields["critical_warnings"])
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Situation) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*s = Situation{}
	decodeInto(fields["visibility"], &s.Visibility)
	decodeInto(fields["weather"], &s.Weather)
	decodeInto(fields["time"], &s.Time)
	decodeInto(fields["sea_state"], &s.SeaState)
	decodeInto(fields["own_ship"], &s.OwnShip)
	s.TargetVessels = decodeList[Target](fields["target_vessels"])
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Action) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*a = Action{}
	var name, colregs Text
	var prio Int
	decodeInto(fields["action"], &name)
	decodeInto(fields["priority"], &prio)
	decodeInto(fields["colregs"], &colregs)
	a.Action = name.String()
	a.Priority = int(prio)
	a.Colregs = colregs.String()

	for key, raw := range fields {
		switch key {
		case "action", "priority", "colregs":
			continue
		}
		var val Text
		decodeInto(raw, &val)
		if val.String() == "" {
			continue
		}
		if a.Details == nil {
			a.Details = make(map[string]string)
		}
		a.Details[key] = val.String()
	}
	return nil
}

// MarshalJSON flattens Details next to the fixed fields.
func (a Action) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Details)+3)
	for k, v := range a.Details {
		out[k] = v
	}
	out["action"] = a.Action
	out["priority"] = a.Priority
	if a.Colregs != "" {
		out["colregs"] = a.Colregs
	}
	return json.Marshal(out)
}

// DetailKeys returns the detail keys in sorted order.
func (a Action) DetailKeys() []string {
	keys := make([]string, 0, len(a.Details))
	for k := range a.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UnmarshalJSON accepts either an object or a bare string.
func (w *Warning) UnmarshalJSON(b []byte) error {
	type plain Warning
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		*w = Warning{}
		return w.Warning.UnmarshalJSON(b)
	}
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*w = Warning(p)
	return nil
}

func decodeInto(raw json.RawMessage, dst any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, dst)
}

func decodeList[T any](raw json.RawMessage) []T {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
