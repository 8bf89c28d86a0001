package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the scope's catalog summaries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeMgr, err := openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer closeMgr()

			summaries, err := mgr.List(limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tTITLE\tPINNED\tUPDATED")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", s.ID, s.Type, s.Title, s.Pinned, s.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of summaries to list (0 = unbounded)")
	return cmd
}
