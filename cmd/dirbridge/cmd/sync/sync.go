// Package sync provides the command running one reconciliation pass.
package sync

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dirbridge/dirbridge/internal/cli"
)

// NewCommand creates the sync command.
func NewCommand() *cobra.Command {
	var importOnly bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass",
		Long: `Sync pulls the current source snapshot, classifies every record and
applies the pending creates, updates and deletes to the target
directory. With --import-only the target is left untouched and only the
classification is reported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bridge, err := cli.NewBridge(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = bridge.Close() }()

			ctx := cmd.Context()
			if importOnly {
				result, err := bridge.Engine().Import(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "import:", result.Summary())
				return nil
			}

			result, err := bridge.Sync(ctx)
			if err != nil {
				return err
			}
			if result.Import != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "import:", result.Import.Summary())
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Summary())
			if result.HasFailures() {
				fmt.Fprintln(cmd.OutOrStdout(), "failed records are held for conflict resolution; see 'dirbridge conflicts'")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&importOnly, "import-only", false, "classify the snapshot without touching the target")
	return cmd
}
