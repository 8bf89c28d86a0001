package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memvault/memvault/internal/cliutil"
	"github.com/memvault/memvault/internal/memory"
	"github.com/memvault/memvault/internal/model"
)

type upsertOptions struct {
	id          string
	itemType    string
	title       string
	text        string
	code        string
	language    string
	tags        []string
	files       []string
	sensitivity string
	pinned      bool
}

func newUpsertCmd() *cobra.Command {
	var opts upsertOptions

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create or update a memory item",
		Long: `Creates a new item when --id is omitted, or updates the item
named by --id otherwise (bumping its version). At least one of
--title, --text, or --code is required.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpsert(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "item id to update (omit to create a new item)")
	cmd.Flags().StringVar(&opts.itemType, "type", string(model.TypeNote), "item type: snippet, pattern, config, insight, runbook, fact, note")
	cmd.Flags().StringVar(&opts.title, "title", "", "item title")
	cmd.Flags().StringVar(&opts.text, "text", "", "item body text")
	cmd.Flags().StringVar(&opts.code, "code", "", "item code body")
	cmd.Flags().StringVar(&opts.language, "language", "", "source language of --code")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "facet tag (repeatable)")
	cmd.Flags().StringSliceVar(&opts.files, "file", nil, "facet file path (repeatable)")
	cmd.Flags().StringVar(&opts.sensitivity, "sensitivity", string(model.SensitivityPrivate), "sharing sensitivity: public, team, private")
	cmd.Flags().BoolVar(&opts.pinned, "pinned", false, "pin the item")

	return cmd
}

func runUpsert(cmd *cobra.Command, opts upsertOptions) error {
	itemType, err := parseItemType(opts.itemType)
	if err != nil {
		return err
	}
	sensitivity, err := parseSensitivity(opts.sensitivity)
	if err != nil {
		return err
	}

	mgr, closeMgr, err := openManager(cmd.Context())
	if err != nil {
		return err
	}
	defer closeMgr()

	item, err := mgr.Upsert(cmd.Context(), memory.UpsertInput{
		ID:       opts.id,
		Type:     itemType,
		Title:    opts.title,
		Text:     opts.text,
		Code:     opts.code,
		Language: opts.language,
		Facets:   model.Facets{Tags: opts.tags, Files: opts.files},
		Quality:  model.Quality{Pinned: opts.pinned},
		Security: model.Security{Sensitivity: sensitivity},
	})
	if err != nil {
		return err
	}

	styles := cliutil.For(cmd.OutOrStdout())
	fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render(fmt.Sprintf("upserted %s (version %d)", item.ID, item.Version)))
	return printJSON(cmd, item)
}

func parseItemType(s string) (model.ItemType, error) {
	t := model.ItemType(s)
	for _, valid := range model.ValidTypes {
		if t == valid {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown item type %q", s)
}

func parseSensitivity(s string) (model.Sensitivity, error) {
	switch model.Sensitivity(s) {
	case model.SensitivityPublic, model.SensitivityTeam, model.SensitivityPrivate:
		return model.Sensitivity(s), nil
	default:
		return "", fmt.Errorf("unknown sensitivity %q", s)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
