package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newScenariosCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the scenario catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadScenarios(a.cfg)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDIFFICULTY\tRISK\tTITLE")
			for _, s := range catalog.List() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ScenarioID, s.Difficulty, s.RiskLevel, s.Title)
			}
			return w.Flush()
		},
	}
}
