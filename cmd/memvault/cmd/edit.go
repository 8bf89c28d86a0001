package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memvault/memvault/internal/cliutil"
	"github.com/memvault/memvault/internal/model"
)

func newLinkCmd() *cobra.Command {
	var rel string

	cmd := &cobra.Command{
		Use:   "link <from> <to>",
		Short: "Record a directed, typed edge from one item to another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			relation, err := parseRelation(rel)
			if err != nil {
				return err
			}
			mgr, closeMgr, err := openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer closeMgr()

			if err := mgr.Link(cmd.Context(), args[0], args[1], relation); err != nil {
				return err
			}
			styles := cliutil.For(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render(fmt.Sprintf("linked %s -%s-> %s", args[0], relation, args[1])))
			return nil
		},
	}

	cmd.Flags().StringVar(&rel, "rel", string(model.RelRelates), "relation: refines, duplicates, depends, fixes, relates")
	return cmd
}

func newPinCmd() *cobra.Command {
	var unpin bool

	cmd := &cobra.Command{
		Use:   "pin <id>",
		Short: "Pin or unpin a memory item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeMgr, err := openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer closeMgr()

			if err := mgr.Pin(cmd.Context(), args[0], !unpin); err != nil {
				return err
			}
			styles := cliutil.For(cmd.OutOrStdout())
			verb := "pinned"
			if unpin {
				verb = "unpinned"
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render(fmt.Sprintf("%s %s", verb, args[0])))
			return nil
		},
	}

	cmd.Flags().BoolVar(&unpin, "off", false, "unpin instead of pin")
	return cmd
}

func newTagCmd() *cobra.Command {
	var add, remove []string

	cmd := &cobra.Command{
		Use:   "tag <id>",
		Short: "Add or remove facet tags on a memory item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeMgr, err := openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer closeMgr()

			if err := mgr.Tag(cmd.Context(), args[0], add, remove); err != nil {
				return err
			}
			styles := cliutil.For(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render(fmt.Sprintf("tagged %s", args[0])))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&add, "add", nil, "tag to add (repeatable)")
	cmd.Flags().StringSliceVar(&remove, "remove", nil, "tag to remove (repeatable)")
	return cmd
}

func newFeedbackCmd() *cobra.Command {
	var notHelpful bool

	cmd := &cobra.Command{
		Use:   "feedback <id>",
		Short: "Record a reuse/helpfulness signal for a memory item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeMgr, err := openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer closeMgr()

			if err := mgr.Feedback(cmd.Context(), args[0], !notHelpful); err != nil {
				return err
			}
			styles := cliutil.For(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render(fmt.Sprintf("recorded feedback for %s", args[0])))
			return nil
		},
	}

	cmd.Flags().BoolVar(&notHelpful, "not-helpful", false, "mark as unhelpful instead of helpful")
	return cmd
}

func newUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Mark a memory item as freshly surfaced, refreshing its updated_at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeMgr, err := openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer closeMgr()

			if err := mgr.Use(cmd.Context(), args[0]); err != nil {
				return err
			}
			styles := cliutil.For(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render(fmt.Sprintf("refreshed %s", args[0])))
			return nil
		},
	}
}

func parseRelation(s string) (model.LinkRelation, error) {
	rel := model.LinkRelation(s)
	switch rel {
	case model.RelRefines, model.RelDuplicates, model.RelDepends, model.RelFixes, model.RelRelates:
		return rel, nil
	default:
		return "", fmt.Errorf("unknown relation %q", s)
	}
}
