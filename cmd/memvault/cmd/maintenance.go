package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memvault/memvault/internal/cliutil"
)

func newRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the scope's BM25 and vector indexes from its catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeMgr, err := openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer closeMgr()

			if err := mgr.Rebuild(cmd.Context()); err != nil {
				return err
			}
			styles := cliutil.For(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render("indexes rebuilt"))
			return nil
		},
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Walk the scope's journal hash chain and report its integrity",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeMgr, err := openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer closeMgr()

			result, err := mgr.Verify()
			if err != nil {
				return err
			}

			styles := cliutil.For(cmd.OutOrStdout())
			if result.Valid {
				fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render(
					fmt.Sprintf("chain intact: %d records checked", result.Checked)))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.Error.Render(
				fmt.Sprintf("chain broken at byte offset %d after %d good records (integrity %.2f)",
					result.BrokenAt, result.Checked, result.IntegrityScore)))
			return fmt.Errorf("journal integrity check failed")
		},
	}
}

func newSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Append a snapshot journal record capturing the current catalog digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeMgr, err := openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer closeMgr()

			if err := mgr.Snapshot(actor()); err != nil {
				return err
			}
			styles := cliutil.For(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render("snapshot recorded"))
			return nil
		},
	}
}

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Archive the journal behind a snapshot and restart its chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeMgr, err := openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer closeMgr()

			if err := mgr.Compact(actor()); err != nil {
				return err
			}
			styles := cliutil.For(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render("journal compacted"))
			return nil
		},
	}
}
