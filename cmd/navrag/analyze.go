package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/navrag/pkg/navrag"
	"github.com/cognicore/navrag/pkg/navrag/internalerr"
	"github.com/cognicore/navrag/pkg/navrag/situation"
	"github.com/cognicore/navrag/pkg/navrag/trace"
)

type analyzeFlags struct {
	scenario  string
	input     string
	all       bool
	verbosity string
	parallel  int
}

func newAnalyzeCmd(a *app) *cobra.Command {
	f := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a scenario or a situation file and print the JSON response",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, a, f)
		},
	}
	cmd.Flags().StringVar(&f.scenario, "scenario", "", "Scenario id from the catalog")
	cmd.Flags().StringVar(&f.input, "input", "", "Situation JSON file (- for stdin)")
	cmd.Flags().BoolVar(&f.all, "all", false, "Analyze every catalog scenario")
	cmd.Flags().StringVar(&f.verbosity, "verbosity", "", "Trace verbosity: summary or full (default from config)")
	cmd.Flags().IntVar(&f.parallel, "parallel", 4, "Concurrent analyses with --all")
	cmd.MarkFlagsMutuallyExclusive("scenario", "input", "all")
	cmd.MarkFlagsOneRequired("scenario", "input", "all")
	return cmd
}

func runAnalyze(cmd *cobra.Command, a *app, f *analyzeFlags) error {
	ctx := cmd.Context()
	if f.verbosity != "" {
		a.cfg.Pipeline.Verbosity = f.verbosity
	}
	if _, err := trace.ParseVerbosity(a.cfg.Pipeline.Verbosity); err != nil {
		return err
	}

	inputs, err := collectInputs(cmd.InOrStdin(), a, f)
	if err != nil {
		return err
	}

	engine, _, cleanup, err := buildEngine(ctx, a.cfg, a.logger, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	results := make([]*navrag.Response, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(f.parallel, 1))
	for i, in := range inputs {
		g.Go(func() error {
			resp, err := engine.Analyze(gctx, in)
			if err != nil {
				return fmt.Errorf("analyze %s: %w", in.ScenarioID, err)
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if f.all {
		return enc.Encode(results)
	}
	return enc.Encode(results[0])
}

func collectInputs(stdin io.Reader, a *app, f *analyzeFlags) ([]situation.Input, error) {
	if f.input != "" {
		var (
			data []byte
			err  error
		)
		if f.input == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(f.input)
		}
		if err != nil {
			return nil, err
		}
		in, err := situation.Decode(data)
		if err != nil {
			return nil, err
		}
		return []situation.Input{in}, nil
	}

	catalog, err := loadScenarios(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("load scenarios: %w", err)
	}
	if f.all {
		inputs := make([]situation.Input, 0, catalog.Len())
		for _, s := range catalog.List() {
			sc, _ := catalog.Get(s.ScenarioID)
			inputs = append(inputs, sc.Input)
		}
		return inputs, nil
	}
	sc, ok := catalog.Get(f.scenario)
	if !ok {
		return nil, fmt.Errorf("%w: scenario %q", internalerr.ErrNotFound, f.scenario)
	}
	return []situation.Input{sc.Input}, nil
}
