package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/memvault/memvault/internal/memory"
	"github.com/memvault/memvault/internal/ranker"
)

type queryOptions struct {
	k           int
	types       []string
	tags        []string
	files       []string
	since       string
	until       string
	pinned      bool
	minScore    float64
	contextPack bool
	budget      int
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a hybrid BM25+vector search over the scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVar(&opts.k, "k", 10, "maximum number of hits")
	cmd.Flags().StringSliceVar(&opts.types, "type", nil, "filter by item type (repeatable)")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "filter by facet tag (repeatable)")
	cmd.Flags().StringSliceVar(&opts.files, "file", nil, "filter by facet file glob pattern (repeatable)")
	cmd.Flags().StringVar(&opts.since, "since", "", "only items updated at or after this RFC3339 timestamp")
	cmd.Flags().StringVar(&opts.until, "until", "", "only items updated at or before this RFC3339 timestamp")
	cmd.Flags().BoolVar(&opts.pinned, "pinned-only", false, "only pinned items")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "drop hits below this fused score")
	cmd.Flags().BoolVar(&opts.contextPack, "context-pack", false, "return only the top-ranked items whose combined size fits --budget")
	cmd.Flags().IntVar(&opts.budget, "budget", 4000, "character budget for --context-pack")

	return cmd
}

func runQuery(cmd *cobra.Command, text string, opts queryOptions) error {
	filters, err := buildFilters(opts)
	if err != nil {
		return err
	}

	mgr, closeMgr, err := openManager(cmd.Context())
	if err != nil {
		return err
	}
	defer closeMgr()

	mode := memory.ReturnItems
	budget := 0
	if opts.contextPack {
		mode = memory.ReturnContextPack
		budget = opts.budget
	}

	result, err := mgr.Query(cmd.Context(), memory.QueryRequest{
		Text:       text,
		K:          opts.k,
		Filters:    filters,
		ReturnMode: mode,
		Budget:     budget,
	})
	if err != nil {
		return err
	}

	for _, hit := range result.Hits {
		fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %s  %s\n", hit.Score, hit.Item.ID, hit.Item.Title)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d hits in %s\n", len(result.Hits), result.Elapsed)
	return nil
}

func buildFilters(opts queryOptions) (ranker.Filters, error) {
	filters := ranker.Filters{
		Tags:         opts.tags,
		FilePatterns: opts.files,
		PinnedOnly:   opts.pinned,
		MinScore:     opts.minScore,
	}
	for _, t := range opts.types {
		itemType, err := parseItemType(t)
		if err != nil {
			return ranker.Filters{}, err
		}
		filters.Types = append(filters.Types, itemType)
	}
	if opts.since != "" {
		ts, err := time.Parse(time.RFC3339, opts.since)
		if err != nil {
			return ranker.Filters{}, fmt.Errorf("--since: %w", err)
		}
		filters.Since = &ts
	}
	if opts.until != "" {
		ts, err := time.Parse(time.RFC3339, opts.until)
		if err != nil {
			return ranker.Filters{}, fmt.Errorf("--until: %w", err)
		}
		filters.Until = &ts
	}
	return filters, nil
}
