// Command navrag analyzes collision-avoidance situations against the COLREGs
// knowledge graph, serves the analysis API and maintains the knowledge stores.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/navrag/pkg/navrag/config"
)

// app carries state resolved once by the root command.
type app struct {
	configPath string
	envFiles   []string
	debug      bool

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "navrag",
		Short:         "COLREGs reasoning over a regulation knowledge graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file (optional)")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env", nil, ".env files to load (default .env)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable development logging")

	root.AddCommand(
		newAnalyzeCmd(a),
		newServeCmd(a),
		newScenariosCmd(a),
		newCheckCmd(a),
		newSeedCmd(a),
	)
	return root
}

func (a *app) init() error {
	config.LoadDotEnv(a.envFiles...)

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	if a.debug {
		a.logger, err = zap.NewDevelopment()
	} else {
		a.logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	return nil
}
