package memory

import (
	"context"
	"time"

	"github.com/memvault/memvault/internal/model"
	"github.com/memvault/memvault/internal/ranker"
	"github.com/memvault/memvault/internal/telemetry"
)

// ReturnMode selects how QueryResult.Items is shaped.
type ReturnMode int

const (
	// ReturnItems returns full MemoryItem bodies for the top-k.
	ReturnItems ReturnMode = iota
	// ReturnContextPack keeps hits in rank order while their combined
	// title, text and code length stays within Budget bytes, and drops
	// the first hit that would exceed it together with every hit ranked
	// below it. The top hit is always kept; no item text is truncated.
	ReturnContextPack
)

// QueryRequest is one call to Query.
type QueryRequest struct {
	Text       string
	Embedding  []float32
	K          int
	Filters    ranker.Filters
	ReturnMode ReturnMode
	// Budget bounds total character count when ReturnMode is
	// ReturnContextPack; 0 means unbounded.
	Budget int
}

// QueryHit is one ranked, materialized result.
type QueryHit struct {
	Item  *model.MemoryItem
	Score float64
}

// QueryResult is the response to Query.
type QueryResult struct {
	Hits    []QueryHit
	Facets  model.Facets
	Elapsed time.Duration
}

// Query runs the hybrid ranker, late-materializes the final top-k via
// the backend's ReadItems, and (in context-pack mode) trims to a
// character budget, dropping lowest-ranked hits first.
func (m *Manager) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	start := time.Now()

	k := req.K
	if k <= 0 {
		k = 10
	}

	lookup := func(id string) (model.Summary, bool) {
		j, ok := m.journaledBackend()
		if !ok {
			return model.Summary{}, false
		}
		return j.Catalog().Get(id)
	}

	candidates, err := m.rank.Query(ctx, ranker.Query{
		Text:      req.Text,
		Embedding: req.Embedding,
		K:         k,
		Filters:   req.Filters,
	}, lookup)
	if err != nil {
		m.recordQuery(req, 0, time.Since(start))
		return QueryResult{}, err
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}

	items, err := m.backend.ReadItems(ctx, ids)
	if err != nil {
		m.recordQuery(req, 0, time.Since(start))
		return QueryResult{}, err
	}

	hits := make([]QueryHit, 0, len(candidates))
	facets := model.Facets{}
	for _, c := range candidates {
		item := items[c.ID]
		if item == nil {
			continue
		}
		if !req.Filters.MatchFacets(item.Facets) {
			continue
		}
		hits = append(hits, QueryHit{Item: item, Score: c.Score})
		facets.Tags = appendUnique(facets.Tags, item.Facets.Tags...)
		facets.Files = appendUnique(facets.Files, item.Facets.Files...)
		facets.Symbols = appendUnique(facets.Symbols, item.Facets.Symbols...)
	}

	if req.ReturnMode == ReturnContextPack && req.Budget > 0 {
		hits = trimToBudget(hits, req.Budget)
	}

	elapsed := time.Since(start)
	m.recordQuery(req, len(hits), elapsed)
	return QueryResult{Hits: hits, Facets: facets, Elapsed: elapsed}, nil
}

// trimToBudget keeps hits in ranked order until their combined
// title+text+code length would exceed budget characters, dropping the
// remainder (lowest-ranked first, since hits arrive sorted desc).
func trimToBudget(hits []QueryHit, budget int) []QueryHit {
	out := make([]QueryHit, 0, len(hits))
	used := 0
	for _, h := range hits {
		size := len(h.Item.Title) + len(h.Item.Text) + len(h.Item.Code)
		if used > 0 && used+size > budget {
			break
		}
		out = append(out, h)
		used += size
	}
	return out
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

func (m *Manager) recordQuery(req QueryRequest, hitCount int, elapsed time.Duration) {
	if m.metrics == nil {
		return
	}
	m.metrics.Record(telemetry.QueryEvent{
		Query:       req.Text,
		QueryType:   queryType(req),
		ResultCount: hitCount,
		Latency:     elapsed,
		Timestamp:   time.Now().UTC(),
	})
}

func queryType(req QueryRequest) telemetry.QueryType {
	switch {
	case req.Text != "" && len(req.Embedding) > 0:
		return telemetry.QueryTypeMixed
	case len(req.Embedding) > 0:
		return telemetry.QueryTypeSemantic
	default:
		return telemetry.QueryTypeLexical
	}
}
