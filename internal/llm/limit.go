package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/cognicore/navrag/pkg/navrag/narrative"
)

// Limited throttles calls to a generator shared by concurrent analyses.
type Limited struct {
	gen narrative.Generator
	lim *rate.Limiter
}

// NewLimited wraps gen with a token bucket. rps <= 0 returns gen unchanged.
func NewLimited(gen narrative.Generator, rps float64, burst int) narrative.Generator {
	if rps <= 0 {
		return gen
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{gen: gen, lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Generate waits for a token, then delegates.
func (l *Limited) Generate(ctx context.Context, prompt string, p narrative.Params) (string, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm: rate limit: %w", err)
	}
	return l.gen.Generate(ctx, prompt, p)
}
