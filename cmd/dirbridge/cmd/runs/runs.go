// Package runs provides the run history command.
package runs

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dirbridge/dirbridge/internal/cli"
)

// NewCommand creates the runs command.
func NewCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent reconciliation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bridge, err := cli.NewBridge(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = bridge.Close() }()

			history, err := bridge.Store().ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded yet")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTARTED\tDURATION\tCREATED\tCHANGED\tDELETED\tFAILED")
			for _, run := range history {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					run.ID,
					run.BeganAt.Local().Format(time.RFC3339),
					run.Duration().Round(time.Millisecond),
					run.Created, run.Changed, run.Deleted, run.Failed)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list, 0 for all")
	return cmd
}
