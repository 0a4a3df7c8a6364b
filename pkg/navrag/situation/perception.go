package situation

import (
	"regexp"
	"strconv"
	"strings"
)

// Perception is the normalized snapshot the rest of the pipeline reads.
type Perception struct {
	Visibility  string    `json:"visibility"`
	Weather     string    `json:"weather,omitempty"`
	Time        string    `json:"time,omitempty"`
	SeaState    string    `json:"sea_state,omitempty"`
	OwnShip     Vessel    `json:"own_ship"`
	TargetCount int       `json:"target_count"`
	Targets     []Contact `json:"targets"`
}

// Vessel holds own-ship descriptors.
type Vessel struct {
	Type     string `json:"type,omitempty"`
	Speed    string `json:"speed,omitempty"`
	Heading  string `json:"heading,omitempty"`
	Position string `json:"position,omitempty"`
}

// Contact holds one target's descriptors.
type Contact struct {
	ID               string `json:"id,omitempty"`
	Type             string `json:"type,omitempty"`
	Bearing          string `json:"bearing,omitempty"`
	Distance         string `json:"distance,omitempty"`
	Speed            string `json:"speed,omitempty"`
	CPA              string `json:"cpa,omitempty"`
	TCPA             string `json:"tcpa,omitempty"`
	RelativePosition string `json:"relative_position,omitempty"`
	Status           string `json:"status,omitempty"`
}

// Label names the contact for human-readable output.
func (c Contact) Label() string {
	switch {
	case c.ID != "" && c.Type != "":
		return c.ID + " (" + c.Type + ")"
	case c.ID != "":
		return c.ID
	case c.Type != "":
		return c.Type
	}
	return "unidentified target"
}

// Normalize flattens an input payload into a Perception. Missing fields
// become empty strings.
func Normalize(in Input) Perception {
	s := in.Situation
	p := Perception{
		Visibility: s.Visibility.String(),
		Weather:    s.Weather.String(),
		Time:       s.Time.String(),
		SeaState:   s.SeaState.String(),
		OwnShip: Vessel{
			Type:     s.OwnShip.Type.String(),
			Speed:    s.OwnShip.Speed.String(),
			Heading:  s.OwnShip.Heading.String(),
			Position: s.OwnShip.Position.String(),
		},
		TargetCount: len(s.TargetVessels),
		Targets:     make([]Contact, 0, len(s.TargetVessels)),
	}

	for _, t := range s.TargetVessels {
		p.Targets = append(p.Targets, Contact{
			ID:               t.ID.String(),
			Type:             t.Type.String(),
			Bearing:          t.Bearing.String(),
			Distance:         t.Distance.String(),
			Speed:            t.Speed.String(),
			CPA:              t.CPA.String(),
			TCPA:             t.TCPA.String(),
			RelativePosition: t.RelativePosition.String(),
			Status:           t.VesselStatus.String(),
		})
	}
	return p
}

// Measure is a number read out of free-form text such as "0.1 nm" or "< 1 mile".
type Measure struct {
	Value float64
	// Below is set when the text bounds the value from above ("< 1").
	Below bool
}

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?|\.\d+`)

// ParseMeasure extracts the first number in s. It reports false when s holds
// no number.
func ParseMeasure(s string) (Measure, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	loc := numberPattern.FindStringIndex(s)
	if loc == nil {
		return Measure{}, false
	}
	v, err := strconv.ParseFloat(s[loc[0]:loc[1]], 64)
	if err != nil {
		return Measure{}, false
	}
	prefix := s[:loc[0]]
	return Measure{
		Value: v,
		Below: strings.Contains(prefix, "<") || strings.Contains(strings.ToLower(prefix), "less than"),
	}, true
}

// LessThan reports whether the measured quantity is certainly below limit.
func (m Measure) LessThan(limit float64) bool {
	if m.Below {
		return m.Value <= limit
	}
	return m.Value < limit
}
