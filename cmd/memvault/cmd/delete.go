package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memvault/memvault/internal/cliutil"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a memory item by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeMgr, err := openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer closeMgr()

			existed, err := mgr.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			styles := cliutil.For(cmd.OutOrStdout())
			if !existed {
				fmt.Fprintln(cmd.OutOrStdout(), styles.Warning.Render(fmt.Sprintf("no item with id %q", args[0])))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render(fmt.Sprintf("deleted %s", args[0])))
			return nil
		},
	}
}
