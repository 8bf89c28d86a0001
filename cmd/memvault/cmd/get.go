package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a single memory item by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeMgr, err := openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer closeMgr()

			item, err := mgr.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if item == nil {
				return fmt.Errorf("no item with id %q", args[0])
			}
			return printJSON(cmd, item)
		},
	}
}
