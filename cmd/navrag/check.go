package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newCheckCmd reports store reachability and graph support per situation
// type, which is how missing knowledge shows up before analyses degrade.
func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Ping the store and print graph support for every situation type",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, _, cleanup, err := buildEngine(ctx, a.cfg, a.logger, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := engine.Ping(ctx); err != nil {
				return err
			}
			gc, err := engine.Support(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "store: %s ok\n\n", a.cfg.Store.Backend)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SITUATION TYPE\tRULES\tCASES")
			for _, c := range gc.Counts {
				fmt.Fprintf(w, "%s\t%d\t%d\n", c.SituationType, c.RuleCount, c.CaseCount)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if len(gc.Unsupported) > 0 {
				fmt.Fprintf(out, "\nno graph support: %s\n", strings.Join(gc.Unsupported, ", "))
			}
			return nil
		},
	}
}
