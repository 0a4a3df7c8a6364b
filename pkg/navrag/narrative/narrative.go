// Package narrative obtains a free-text risk analysis from a language model
// and degrades to a deterministic baseline when the model is unavailable.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cognicore/navrag/pkg/navrag/internalerr"
	"github.com/cognicore/navrag/pkg/navrag/situation"
	"github.com/cognicore/navrag/pkg/navrag/store"
)

const (
	DefaultTemperature    float32 = 0.3
	DefaultMaxTokens              = 1000
	DefaultTimeout                = 20 * time.Second
	DefaultMaxPromptBytes         = 8 << 10
	judgmentRunes                 = 100
)

// ErrEmptyResponse is reported when the generator returns only whitespace.
var ErrEmptyResponse = errors.New("empty narrative response")

// ReasonDisabled is the degrade reason when no generator is configured.
const ReasonDisabled = "no generator configured"

// Params are the sampling settings passed to a Generator.
type Params struct {
	Temperature float32
	MaxTokens   int
}

// Generator produces text from a prompt. Implementations must be safe for
// concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string, p Params) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, p Params) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	return f(ctx, prompt, p)
}

// Config tunes the analyzer. Zero fields take the defaults.
type Config struct {
	Params         Params
	Timeout        time.Duration
	MaxPromptBytes int
}

// Result is the narrative outcome of one analysis.
type Result struct {
	Text     string
	Degraded bool
	Reason   string // why the fallback was used; empty when not degraded
	Prompt   string
}

// Analyzer builds prompts and calls the generator.
type Analyzer struct {
	gen Generator
	cfg Config
}

// NewAnalyzer creates an analyzer. A nil generator always yields the fallback.
func NewAnalyzer(gen Generator, cfg Config) *Analyzer {
	if cfg.Params.Temperature <= 0 {
		cfg.Params.Temperature = DefaultTemperature
	}
	if cfg.Params.MaxTokens <= 0 {
		cfg.Params.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxPromptBytes <= 0 {
		cfg.MaxPromptBytes = DefaultMaxPromptBytes
	}
	return &Analyzer{gen: gen, cfg: cfg}
}

// Params returns the sampling settings in use.
func (a *Analyzer) Params() Params { return a.cfg.Params }

// Analyze returns the model's analysis, or the fallback text with Degraded
// set. The only error returned is ErrCancelled, when ctx itself is done.
func (a *Analyzer) Analyze(ctx context.Context, p situation.Perception, rules []store.Rule, cases []store.Case) (Result, error) {
	res := Result{Prompt: BuildPrompt(p, rules, cases, a.cfg.MaxPromptBytes)}

	if a.gen == nil {
		return a.degrade(res, len(rules), len(cases), ReasonDisabled), nil
	}

	gctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	text, err := a.gen.Generate(gctx, res.Prompt, a.cfg.Params)
	cancel()

	if cerr := ctx.Err(); cerr != nil {
		return Result{}, fmt.Errorf("%w: narrative: %w", internalerr.ErrCancelled, cerr)
	}
	if err != nil {
		return a.degrade(res, len(rules), len(cases), err.Error()), nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return a.degrade(res, len(rules), len(cases), ErrEmptyResponse.Error()), nil
	}
	res.Text = text
	return res, nil
}

func (a *Analyzer) degrade(res Result, nRules, nCases int, reason string) Result {
	res.Text = Fallback(nRules, nCases)
	res.Degraded = true
	res.Reason = reason
	return res
}

// Fallback is the deterministic narrative used when the generator fails.
func Fallback(nRules, nCases int) string {
	return fmt.Sprintf(
		"Narrative analysis unavailable. Baseline review: %d applicable rules and %d precedent cases retrieved; consult them directly.",
		nRules, nCases)
}
