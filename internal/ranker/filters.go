package ranker

import (
	"path/filepath"
	"time"

	"github.com/memvault/memvault/internal/model"
)

// Filters are spec.md's post-fusion filters: scope, type, tags, file
// patterns, date range, pinned, min_score. An empty Filters matches
// everything.
type Filters struct {
	Scope        model.Scope
	Types        []model.ItemType
	Tags         []string
	FilePatterns []string
	Since        *time.Time
	Until        *time.Time
	PinnedOnly   bool
	MinScore     float64
}

// Match reports whether summary satisfies every configured filter.
func (f Filters) Match(s model.Summary) bool {
	if f.Scope != "" && s.Scope != f.Scope {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, s.Type) {
		return false
	}
	if f.PinnedOnly && !s.Pinned {
		return false
	}
	if f.Since != nil && s.UpdatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && s.UpdatedAt.After(*f.Until) {
		return false
	}
	// Tags/file patterns need the item's Facets, which Summary doesn't
	// carry; callers that require these filters pass a lookup whose
	// Summary is not enough and must instead filter post-materialization.
	return true
}

// MatchFacets extends Match with tag and file-pattern checks that need
// the full item's Facets, applied by the caller once it has fetched
// the candidate body (late materialization).
func (f Filters) MatchFacets(facets model.Facets) bool {
	if len(f.Tags) > 0 && !containsAny(facets.Tags, f.Tags) {
		return false
	}
	if len(f.FilePatterns) > 0 && !matchesAnyFilePattern(facets.Files, f.FilePatterns) {
		return false
	}
	return true
}

func containsType(types []model.ItemType, t model.ItemType) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

func containsAny(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

func matchesAnyFilePattern(files, patterns []string) bool {
	for _, pattern := range patterns {
		for _, f := range files {
			if ok, err := filepath.Match(pattern, f); err == nil && ok {
				return true
			}
		}
	}
	return false
}
