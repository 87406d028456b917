// Package retry provides the command re-attempting a failed create.
package retry

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dirbridge/dirbridge/internal/cli"
)

// NewCommand creates the retry command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <record-id>",
		Short: "Re-attempt the create of a record stuck on a failed create",
		Long: `Retry re-runs the create for a record whose create was rejected,
without touching any colliding principal. Useful after the conflict was
cleaned up in the target directory by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bridge, err := cli.NewBridge(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = bridge.Close() }()

			rec, err := bridge.Engine().RetryFailedCreate(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "record %s created as target principal %s\n",
				rec.InternalID, rec.TargetImmutableID)
			return nil
		},
	}
	return cmd
}
