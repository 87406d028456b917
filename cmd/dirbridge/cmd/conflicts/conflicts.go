// Package conflicts provides the command inspecting create conflicts.
package conflicts

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dirbridge/dirbridge"
	"github.com/dirbridge/dirbridge/internal/cli"
	"github.com/dirbridge/dirbridge/pkg/record"
)

// NewCommand creates the conflicts command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts [record-id]",
		Short: "List records stuck on failed creates and their colliding principals",
		Long: `Without arguments, conflicts lists every record whose create was
rejected by the target directory. Given a record id, it queries the
target for principals colliding with that record, which 'dirbridge
resolve' can merge with or recreate over.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bridge, err := cli.NewBridge(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = bridge.Close() }()

			if len(args) == 0 {
				return listFailed(cmd, bridge)
			}
			return listCandidates(cmd, bridge, args[0])
		},
	}
	return cmd
}

// listFailed prints every record held at a failed create.
func listFailed(cmd *cobra.Command, bridge dirbridge.Dirbridge) error {
	records, err := bridge.Store().List(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECORD ID\tSOURCE ID\tPRINCIPAL\tSTATE")
	count := 0
	for _, rec := range records {
		if rec.OutcomeState != record.OutcomeFailed || rec.ReconcileState != record.ReconcileNew {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s/%s\n",
			rec.InternalID, rec.SourceImmutableID, rec.PrincipalName,
			rec.ReconcileState, rec.OutcomeState)
		count++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if count == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no records stuck on failed creates")
	}
	return nil
}

// listCandidates prints the target principals colliding with the record.
func listCandidates(cmd *cobra.Command, bridge dirbridge.Dirbridge, recordID string) error {
	candidates, err := bridge.Engine().ListConflicts(cmd.Context(), recordID)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no colliding principals found in the target directory")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET ID\tPRINCIPAL\tDISPLAY NAME\tSOURCE ID\tTRASH")
	for _, p := range candidates {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n",
			p.ID, p.PrincipalName, p.DisplayName, p.SourceImmutableID, p.SoftDeleted)
	}
	return w.Flush()
}
