package bm25

import (
	"sort"
	"sync"
	"time"

	"github.com/memvault/memvault/internal/model"
)

// field names a tokenized facet of a MemoryItem.
type field int

const (
	fieldTitle field = iota
	fieldText
	fieldCode
	fieldTag
	fieldFile
	fieldSymbol
)

// Config mirrors spec.md's search.bm25.* and search.boosts.* settings.
type Config struct {
	K1 float64
	B  float64

	BoostTitle      float64
	BoostPinned     float64
	BoostExactTitle float64
	BoostTag        float64

	RecencyHalfLife time.Duration
	RecencyCap      float64

	MinScore float64
}

// DefaultConfig returns spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		K1:              1.2,
		B:               0.75,
		BoostTitle:      2.0,
		BoostPinned:     2.0,
		BoostExactTitle: 3.0,
		BoostTag:        1.2,
		RecencyHalfLife: 30 * 24 * time.Hour,
		RecencyCap:      1.3,
		MinScore:        0,
	}
}

// doc is one indexed item's tokenized state.
type doc struct {
	id        string
	title     string
	length    int
	termFreq  map[string]int
	tagTokens map[string]struct{}
	pinned    bool
	updatedAt time.Time
}

// Result is one scored hit from Search.
type Result struct {
	ID    string
	Score float64
}

// Index is an in-memory inverted index with BM25 scoring plus the
// additive field/recency boosts spec.md's ranker applies. It holds no
// state on disk; Rebuild re-derives everything from a catalog sweep,
// the recovery path the Memory Manager drives during REPLAYING.
type Index struct {
	mu       sync.RWMutex
	cfg      Config
	docs     map[string]*doc
	postings map[string]map[string]int // term -> docID -> term frequency
	totalLen int
	now      func() time.Time
}

// New creates an empty index.
func New(cfg Config) *Index {
	return &Index{
		cfg:      cfg,
		docs:     make(map[string]*doc),
		postings: make(map[string]map[string]int),
		now:      time.Now,
	}
}

// IndexItem tokenizes item's fields and inserts or replaces its
// posting entries. Updates are incremental: a prior entry for the same
// id is removed first.
func (idx *Index) IndexItem(item *model.MemoryItem) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(item.ID)
	idx.insertLocked(item)
}

// RemoveItem deletes id's posting entries. Reports whether id was present.
func (idx *Index) RemoveItem(id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.docs[id]; !ok {
		return false
	}
	idx.removeLocked(id)
	return true
}

// Rebuild replaces the whole index with a fresh tokenization of items,
// atomically from the caller's point of view (readers see either the
// old or the new index state, never a partial one).
func (idx *Index) Rebuild(items []*model.MemoryItem) {
	fresh := New(idx.cfg)
	fresh.now = idx.now
	for _, item := range items {
		fresh.insertLocked(item)
	}

	idx.mu.Lock()
	idx.docs = fresh.docs
	idx.postings = fresh.postings
	idx.totalLen = fresh.totalLen
	idx.mu.Unlock()
}

func (idx *Index) removeLocked(id string) {
	d, ok := idx.docs[id]
	if !ok {
		return
	}
	for term := range d.termFreq {
		byDoc := idx.postings[term]
		delete(byDoc, id)
		if len(byDoc) == 0 {
			delete(idx.postings, term)
		}
	}
	idx.totalLen -= d.length
	delete(idx.docs, id)
}

func (idx *Index) insertLocked(item *model.MemoryItem) {
	termFreq := make(map[string]int)
	add := func(text string, weight int) {
		for _, tok := range Tokenize(text) {
			termFreq[tok] += weight
		}
	}
	add(item.Title, 1)
	add(item.Text, 1)
	add(item.Code, 1)
	for _, t := range item.Facets.Tags {
		add(t, 1)
	}
	for _, f := range item.Facets.Files {
		add(f, 1)
	}
	for _, s := range item.Facets.Symbols {
		add(s, 1)
	}

	tagTokens := make(map[string]struct{})
	for _, t := range item.Facets.Tags {
		for _, tok := range Tokenize(t) {
			tagTokens[tok] = struct{}{}
		}
	}

	length := 0
	for _, f := range termFreq {
		length += f
	}

	d := &doc{
		id:        item.ID,
		title:     item.Title,
		length:    length,
		termFreq:  termFreq,
		tagTokens: tagTokens,
		pinned:    item.Quality.Pinned,
		updatedAt: item.UpdatedAt,
	}
	idx.docs[item.ID] = d
	idx.totalLen += length

	for term, freq := range termFreq {
		byDoc := idx.postings[term]
		if byDoc == nil {
			byDoc = make(map[string]int)
			idx.postings[term] = byDoc
		}
		byDoc[d.id] = freq
	}
}

// Search tokenizes query, scores every document containing at least
// one query term with BM25 plus spec.md's additive boosts, and returns
// the top-k hits sorted by descending score, score floor applied.
func (idx *Index) Search(query string, k int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	tokens := Tokenize(query)
	if len(tokens) == 0 || len(idx.docs) == 0 {
		return nil
	}

	avgLen := idx.avgLengthLocked()
	scores := make(map[string]float64)
	for _, term := range tokens {
		byDoc := idx.postings[term]
		if len(byDoc) == 0 {
			continue
		}
		idf := idx.idfLocked(term)
		for id, freq := range byDoc {
			d := idx.docs[id]
			scores[id] += bm25Term(idf, float64(freq), float64(d.length), avgLen, idx.cfg.K1, idx.cfg.B)
		}
	}

	exactQuery := normalizeTitle(query)
	now := idx.now()
	results := make([]Result, 0, len(scores))
	for id, base := range scores {
		d := idx.docs[id]
		score := base * idx.boostLocked(d, tokens, exactQuery, now)
		if score < idx.cfg.MinScore {
			continue
		}
		results = append(results, Result{ID: id, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

func (idx *Index) boostLocked(d *doc, queryTokens []string, exactQuery string, now time.Time) float64 {
	boost := 1.0

	titleTokens := make(map[string]struct{})
	for _, t := range Tokenize(d.title) {
		titleTokens[t] = struct{}{}
	}
	for _, qt := range queryTokens {
		if _, ok := titleTokens[qt]; ok {
			boost *= idx.cfg.BoostTitle
			break
		}
	}

	if exactQuery != "" && exactQuery == normalizeTitle(d.title) {
		boost *= idx.cfg.BoostExactTitle
	}

	if d.pinned {
		boost *= idx.cfg.BoostPinned
	}

	for _, qt := range queryTokens {
		if _, ok := d.tagTokens[qt]; ok {
			boost *= idx.cfg.BoostTag
			break
		}
	}

	boost *= idx.recencyFactor(d.updatedAt, now)
	return boost
}

// recencyFactor applies exponential decay with the configured
// half-life, capped so it can never exceed RecencyCap.
func (idx *Index) recencyFactor(updatedAt, now time.Time) float64 {
	if idx.cfg.RecencyHalfLife <= 0 {
		return 1.0
	}
	age := now.Sub(updatedAt)
	if age < 0 {
		age = 0
	}
	decay := exp2(-float64(age) / float64(idx.cfg.RecencyHalfLife))
	factor := 1.0 + decay*(idx.cfg.RecencyCap-1.0)
	if factor > idx.cfg.RecencyCap {
		factor = idx.cfg.RecencyCap
	}
	return factor
}

func (idx *Index) avgLengthLocked() float64 {
	if len(idx.docs) == 0 {
		return 0
	}
	return float64(idx.totalLen) / float64(len(idx.docs))
}

func (idx *Index) idfLocked(term string) float64 {
	n := float64(len(idx.docs))
	df := float64(len(idx.postings[term]))
	if df == 0 {
		return 0
	}
	return logBM25((n-df+0.5)/(df+0.5) + 1)
}

// MeanIDF returns the mean BM25 IDF of tokens against the current
// index, used by the hybrid ranker's adaptive-alpha formula.
func (idx *Index) MeanIDF(tokens []string) float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tokens {
		sum += idx.idfLocked(t)
	}
	return sum / float64(len(tokens))
}

// OOVRate returns the fraction of tokens never seen by the index.
func (idx *Index) OOVRate(tokens []string) float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if len(tokens) == 0 {
		return 0
	}
	var oov int
	for _, t := range tokens {
		if len(idx.postings[t]) == 0 {
			oov++
		}
	}
	return float64(oov) / float64(len(tokens))
}

// Len reports the number of indexed documents.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

func normalizeTitle(s string) string {
	tokens := Tokenize(s)
	if len(tokens) == 0 {
		return ""
	}
	out := tokens[0]
	for _, t := range tokens[1:] {
		out += " " + t
	}
	return out
}
