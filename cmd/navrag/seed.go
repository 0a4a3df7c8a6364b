package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/navrag/pkg/navrag/config"
	"github.com/cognicore/navrag/pkg/navrag/internalerr"
	"github.com/cognicore/navrag/pkg/navrag/store/neo4jstore"
	"github.com/cognicore/navrag/pkg/navrag/store/sqlite"
)

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write the knowledge base into the configured sqlite or neo4j store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			base, err := loadBase(a.cfg)
			if err != nil {
				return fmt.Errorf("load knowledge: %w", err)
			}

			switch a.cfg.Store.Backend {
			case config.BackendSQLite:
				s, err := sqlite.OpenSQLite(ctx, a.cfg.Store.SQLitePath)
				if err != nil {
					return err
				}
				defer s.Close()
				if err := s.Import(ctx, base); err != nil {
					return err
				}
			case config.BackendNeo4j:
				s, err := neo4jstore.Open(ctx, neo4jConfig(a.cfg.Store.Neo4j))
				if err != nil {
					return err
				}
				defer s.Close()
				if err := s.Seed(ctx, base); err != nil {
					return err
				}
			default:
				return fmt.Errorf("%w: backend %q has nothing to seed", internalerr.ErrInvalidConfig, a.cfg.Store.Backend)
			}

			a.logger.Info("knowledge seeded",
				zap.String("backend", a.cfg.Store.Backend),
				zap.Int("rules", len(base.Rules)),
				zap.Int("cases", len(base.Cases)),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d rules and %d cases into %s\n", len(base.Rules), len(base.Cases), a.cfg.Store.Backend)
			return nil
		},
	}
}
