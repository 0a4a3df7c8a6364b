// Package trace records the ordered reasoning steps of one analysis.
package trace

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/navrag/pkg/navrag/internalerr"
)

// Step names in pipeline order.
const (
	StepPerception   = "Perception"
	StepGraphContext = "Graph Context"
	StepRules        = "Rule Retrieval"
	StepCases        = "Case Retrieval"
	StepNarrative    = "Narrative Analysis"
	StepAction       = "Action Recommendation"
)

// Verbosity controls how much of each step reaches the response.
type Verbosity string

const (
	VerbositySummary Verbosity = "summary"
	VerbosityFull    Verbosity = "full"
)

// ParseVerbosity accepts "summary", "full" or empty (summary).
func ParseVerbosity(s string) (Verbosity, error) {
	switch Verbosity(strings.ToLower(strings.TrimSpace(s))) {
	case "", VerbositySummary:
		return VerbositySummary, nil
	case VerbosityFull:
		return VerbosityFull, nil
	}
	return "", fmt.Errorf("%w: verbosity %q", internalerr.ErrInvalidConfig, s)
}

// Step is one reasoning step.
type Step struct {
	Ordinal     int           `json:"step"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Query       string        `json:"query,omitempty"`
	Results     any           `json:"results,omitempty"`
	Rationale   string        `json:"rationale"`
	Duration    time.Duration `json:"-"`
	DurationMS  float64       `json:"duration_ms"`
}

// Recorder is an append-only step log owned by a single analysis. It is not
// safe for concurrent use.
type Recorder struct {
	verbosity Verbosity
	steps     []Step
}

// New creates a recorder.
func New(v Verbosity) *Recorder {
	if v != VerbosityFull {
		v = VerbositySummary
	}
	return &Recorder{verbosity: v}
}

// Verbosity reports the recorder's verbosity.
func (r *Recorder) Verbosity() Verbosity { return r.verbosity }

// Record appends s with the next ordinal and returns the stored step. In
// summary mode the query text and raw results are dropped.
func (r *Recorder) Record(s Step) Step {
	s.Ordinal = len(r.steps) + 1
	s.DurationMS = float64(s.Duration.Microseconds()) / 1000
	if r.verbosity == VerbositySummary {
		s.Query = ""
		s.Results = nil
	}
	r.steps = append(r.steps, s)
	return s
}

// Steps returns a copy of the recorded steps in order.
func (r *Recorder) Steps() []Step {
	return append(make([]Step, 0, len(r.steps)), r.steps...)
}

// Len reports the number of recorded steps.
func (r *Recorder) Len() int { return len(r.steps) }

// IDSource issues monotonic ULIDs. It is safe for concurrent use.
type IDSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewIDSource creates an ID source.
func NewIDSource() *IDSource {
	return &IDSource{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewID returns a new analysis id.
func (s *IDSource) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Now(), s.entropy).String()
}
