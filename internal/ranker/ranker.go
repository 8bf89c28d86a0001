// Package ranker implements the hybrid BM25+vector fusion search
// described by spec.md's Hybrid Ranker. The candidate/weights shape is
// grounded on the teacher's RRFFusion (internal/search/fusion.go): the
// same getOrCreate-by-id accumulation, the same deterministic
// sort-with-tiebreak, and the same "normalize to 0-1 then sort" two
// pass structure, adapted from reciprocal-rank fusion to the
// min-max-normalize-then-adaptive-alpha scheme spec.md specifies
// instead. Candidate generation fans the BM25 and vector searches out
// concurrently with golang.org/x/sync/errgroup, grounded on how the
// rest of the pack uses errgroup for bounded concurrent fan-out.
package ranker

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/memvault/memvault/internal/bm25"
	"github.com/memvault/memvault/internal/model"
	"github.com/memvault/memvault/internal/vector"
)

// Config mirrors spec.md's search.vector.weight_floor/ceiling.
type Config struct {
	WeightFloor   float64
	WeightCeiling float64
}

// DefaultConfig returns spec.md's documented clamp bounds.
func DefaultConfig() Config {
	return Config{WeightFloor: 0.2, WeightCeiling: 0.8}
}

// SummaryLookup resolves a candidate id to its catalog summary, used
// to apply post-filters before late materialization.
type SummaryLookup func(id string) (model.Summary, bool)

// Query is one hybrid search request.
type Query struct {
	Text      string
	Embedding []float32 // optional; nil skips vector candidate generation
	K         int
	Filters   Filters
}

// Candidate is one fused, filtered, ranked hit. Full item bodies are
// fetched separately by the caller for only the final top-k (late
// materialization), so Candidate intentionally carries no body.
type Candidate struct {
	ID    string
	Score float64
}

// Ranker fuses BM25 and vector candidates per query.
type Ranker struct {
	bm25 *bm25.Index
	vec  *vector.Index
	cfg  Config
}

// New builds a Ranker over the given indexes. vec may be nil if the
// scope has no vector index configured.
func New(bm25Index *bm25.Index, vecIndex *vector.Index, cfg Config) *Ranker {
	return &Ranker{bm25: bm25Index, vec: vecIndex, cfg: cfg}
}

// Query generates candidates, fuses them by the adaptive-alpha
// formula, applies post-filters via lookup, and returns the top-k
// sorted by descending fused score.
func (r *Ranker) Query(ctx context.Context, q Query, lookup SummaryLookup) ([]Candidate, error) {
	k := q.K
	if k <= 0 {
		k = 10
	}
	fanout := 6 * k

	var bm25Results []bm25.Result
	var vecResults []vector.Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bm25Results = r.bm25.Search(q.Text, fanout)
		return gctx.Err()
	})
	if r.vec != nil && len(q.Embedding) > 0 {
		g.Go(func() error {
			res, err := r.vec.Search(q.Embedding, fanout)
			if err != nil {
				return err
			}
			vecResults = res
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bm25Norm := normalizeBM25(bm25Results)
	vecNorm := normalizeVector(vecResults)

	alpha := r.alpha(q.Text)

	type fused struct {
		id       string
		bm25Norm float64
		vecNorm  float64
		hasBM25  bool
		hasVec   bool
	}
	byID := make(map[string]*fused)
	for id, score := range bm25Norm {
		byID[id] = &fused{id: id, bm25Norm: score, hasBM25: true}
	}
	for id, score := range vecNorm {
		f, ok := byID[id]
		if !ok {
			f = &fused{id: id}
			byID[id] = f
		}
		f.vecNorm = score
		f.hasVec = true
	}

	candidates := make([]Candidate, 0, len(byID))
	for id, f := range byID {
		score := alpha*f.bm25Norm + (1-alpha)*f.vecNorm
		summary, ok := lookup(id)
		if !ok {
			continue
		}
		if !q.Filters.Match(summary) {
			continue
		}
		if score < q.Filters.MinScore {
			continue
		}
		candidates = append(candidates, Candidate{ID: id, Score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// alpha computes spec.md's adaptive fusion weight:
// clamp(0.5 + 0.15*tanh(mean_idf/6) - 0.25*oov_rate, floor, ceiling).
func (r *Ranker) alpha(query string) float64 {
	tokens := bm25.Tokenize(query)
	meanIDF := r.bm25.MeanIDF(tokens)
	oovRate := r.bm25.OOVRate(tokens)

	a := 0.5 + 0.15*math.Tanh(meanIDF/6) - 0.25*oovRate
	if a < r.cfg.WeightFloor {
		a = r.cfg.WeightFloor
	}
	if a > r.cfg.WeightCeiling {
		a = r.cfg.WeightCeiling
	}
	return a
}

func normalizeBM25(results []bm25.Result) map[string]float64 {
	if len(results) == 0 {
		return map[string]float64{}
	}
	min, max := results[0].Score, results[0].Score
	for _, r := range results {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	out := make(map[string]float64, len(results))
	span := max - min
	for _, r := range results {
		if span == 0 {
			out[r.ID] = 1.0
			continue
		}
		out[r.ID] = (r.Score - min) / span
	}
	return out
}

func normalizeVector(results []vector.Result) map[string]float64 {
	if len(results) == 0 {
		return map[string]float64{}
	}
	min, max := results[0].Cosine, results[0].Cosine
	for _, r := range results {
		if r.Cosine < min {
			min = r.Cosine
		}
		if r.Cosine > max {
			max = r.Cosine
		}
	}
	out := make(map[string]float64, len(results))
	span := float64(max - min)
	for _, r := range results {
		if span == 0 {
			out[r.ID] = 1.0
			continue
		}
		out[r.ID] = float64(r.Cosine-min) / span
	}
	return out
}
