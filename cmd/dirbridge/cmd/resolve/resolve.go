// Package resolve provides the command resolving create conflicts.
package resolve

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dirbridge/dirbridge"
	"github.com/dirbridge/dirbridge/internal/cli"
)

// NewCommand creates the resolve command.
func NewCommand() *cobra.Command {
	var strategy string

	cmd := &cobra.Command{
		Use:   "resolve <record-id> <target-id>",
		Short: "Resolve a failed create against a colliding target principal",
		Long: `Resolve binds a record stuck on a failed create to one of the
colliding principals 'dirbridge conflicts' listed.

With --strategy merge the colliding principal is adopted: restored from
the trash if needed and patched to the record's attributes. With
--strategy recreate it is removed from the target, trash included, and
the record's principal is created fresh.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := dirbridge.ParseStrategy(strategy)
			if err != nil {
				return err
			}

			bridge, err := cli.NewBridge(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = bridge.Close() }()

			rec, err := bridge.Engine().Resolve(cmd.Context(), args[0], args[1], parsed)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "record %s resolved (%s): bound to target principal %s\n",
				rec.InternalID, parsed, rec.TargetImmutableID)
			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "resolution strategy: merge or recreate")
	_ = cmd.MarkFlagRequired("strategy")
	return cmd
}
