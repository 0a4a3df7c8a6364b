package llm

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/cognicore/navrag/pkg/navrag/config"
	"github.com/cognicore/navrag/pkg/navrag/internalerr"
	"github.com/cognicore/navrag/pkg/navrag/narrative"
)

// New builds the rate-limited generator selected by cfg. Provider "none"
// returns a nil generator, which makes every analysis use the fallback text.
func New(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (narrative.Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var gen narrative.Generator
	switch cfg.Provider {
	case "", config.ProviderNone:
		logger.Info("narrative generation disabled")
		return nil, nil
	case config.ProviderOpenAI:
		gen = NewClient(cfg.APIKey, cfg.BaseURL, cfg.Model, httpClient)
	case config.ProviderGemini:
		g, err := NewGeminiClient(ctx, cfg.APIKey, cfg.BaseURL, cfg.Model, httpClient)
		if err != nil {
			return nil, err
		}
		gen = g
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", internalerr.ErrInvalidConfig, cfg.Provider)
	}

	logger.Info("narrative generator ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Float64("requests_per_second", cfg.RequestsPerSecond),
	)
	return NewLimited(gen, cfg.RequestsPerSecond, cfg.Burst), nil
}
