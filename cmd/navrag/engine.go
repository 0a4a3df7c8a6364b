package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cognicore/navrag/internal/llm"
	"github.com/cognicore/navrag/pkg/navrag"
	"github.com/cognicore/navrag/pkg/navrag/config"
	"github.com/cognicore/navrag/pkg/navrag/internalerr"
	"github.com/cognicore/navrag/pkg/navrag/knowledge"
	"github.com/cognicore/navrag/pkg/navrag/metrics"
	"github.com/cognicore/navrag/pkg/navrag/store"
	"github.com/cognicore/navrag/pkg/navrag/store/memstore"
	"github.com/cognicore/navrag/pkg/navrag/store/neo4jstore"
	"github.com/cognicore/navrag/pkg/navrag/store/sqlite"
	"github.com/cognicore/navrag/pkg/navrag/trace"
)

// loadBase returns the configured knowledge base or the embedded one.
func loadBase(cfg *config.Config) (*knowledge.Base, error) {
	if cfg.Store.KnowledgePath == "" {
		return knowledge.Default()
	}
	return knowledge.Load(cfg.Store.KnowledgePath)
}

// loadScenarios returns the configured scenario catalog or the embedded one.
func loadScenarios(cfg *config.Config) (*knowledge.Catalog, error) {
	if cfg.ScenariosPath == "" {
		return knowledge.DefaultScenarios()
	}
	return knowledge.LoadScenarios(cfg.ScenariosPath)
}

// openStore opens the configured backend. The sqlite snapshot is refreshed
// from base on open; neo4j is only written by the seed command.
func openStore(ctx context.Context, cfg config.StoreConfig, base *knowledge.Base, logger *zap.Logger) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memstore.FromBase(base), nil
	case config.BackendSQLite:
		s, err := sqlite.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("%w: open sqlite: %w", internalerr.ErrStoreUnavailable, err)
		}
		if err := s.Import(ctx, base); err != nil {
			s.Close()
			return nil, fmt.Errorf("import knowledge: %w", err)
		}
		logger.Info("sqlite store ready",
			zap.String("path", cfg.SQLitePath),
			zap.Int("rules", len(base.Rules)),
			zap.Int("cases", len(base.Cases)),
		)
		return s, nil
	case config.BackendNeo4j:
		s, err := neo4jstore.Open(ctx, neo4jConfig(cfg.Neo4j))
		if err != nil {
			return nil, err
		}
		logger.Info("neo4j store ready", zap.String("uri", cfg.Neo4j.URI))
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown store backend %q", internalerr.ErrInvalidConfig, cfg.Backend)
}

func neo4jConfig(n config.Neo4jConfig) neo4jstore.Config {
	return neo4jstore.Config{
		URI:      n.URI,
		Username: n.Username,
		Password: n.Password,
		Database: n.Database,
	}
}

// buildEngine wires the store, taxonomy, action table, generator and metrics
// from cfg. The returned cleanup closes the store.
func buildEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*navrag.Engine, *knowledge.Base, func(), error) {
	base, err := loadBase(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load knowledge: %w", err)
	}

	loader := config.Loader{
		TaxonomyPath: cfg.TaxonomyPath,
		ActionsPath:  cfg.ActionsPath,
	}
	components, err := loader.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	gen, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	st, err := openStore(ctx, cfg.Store, base, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	verbosity, err := trace.ParseVerbosity(cfg.Pipeline.Verbosity)
	if err != nil {
		st.Close()
		return nil, nil, nil, err
	}

	var collector *metrics.Collector
	if reg != nil {
		collector = metrics.NewCollector(reg)
	}

	engine, err := navrag.New(navrag.Options{
		Store:            st,
		Classifier:       components.Classifier,
		Generator:        gen,
		Actions:          components.Actions,
		Logger:           logger,
		Metrics:          collector,
		Verbosity:        verbosity,
		RuleLimit:        cfg.Pipeline.RuleLimit,
		CaseLimit:        cfg.Pipeline.CaseLimit,
		QueryTimeout:     cfg.Pipeline.QueryTimeout,
		NarrativeTimeout: cfg.Pipeline.NarrativeTimeout,
		MaxPromptBytes:   cfg.Pipeline.MaxPromptBytes,
		Temperature:      cfg.LLM.Temperature,
		MaxTokens:        cfg.LLM.MaxTokens,
	})
	if err != nil {
		st.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := engine.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}
	return engine, base, cleanup, nil
}
