package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// canonicalItem is MemoryItem reshaped so that map-typed fields marshal
// with sorted keys and json.Marshal's own deterministic struct-field
// order gives the rest of the document a fixed key order. Embedding is
// excluded: it is derived data, not part of an item's identity.
type canonicalItem struct {
	ID          string      `json:"id"`
	Type        ItemType    `json:"type"`
	Scope       Scope       `json:"scope"`
	Title       string      `json:"title"`
	Text        string      `json:"text"`
	Code        string      `json:"code"`
	Language    string      `json:"language"`
	Tags        []string    `json:"tags"`
	Files       []string    `json:"files"`
	Symbols     []string    `json:"symbols"`
	Context     []kv        `json:"context"`
	Confidence  float64     `json:"confidence"`
	ReuseCount  uint64      `json:"reuse_count"`
	Pinned      bool        `json:"pinned"`
	Sensitivity Sensitivity `json:"sensitivity"`
	Links       []Link      `json:"links"`
}

type kv struct {
	K string `json:"k"`
	V string `json:"v"`
}

// CanonicalBytes renders the item's identity-bearing fields as stable,
// deterministically ordered UTF-8 JSON, suitable for content hashing.
func CanonicalBytes(item *MemoryItem) ([]byte, error) {
	c := canonicalItem{
		ID:          item.ID,
		Type:        item.Type,
		Scope:       item.Scope,
		Title:       item.Title,
		Text:        item.Text,
		Code:        item.Code,
		Language:    item.Language,
		Tags:        sortedCopy(item.Facets.Tags),
		Files:       sortedCopy(item.Facets.Files),
		Symbols:     sortedCopy(item.Facets.Symbols),
		Confidence:  item.Quality.Confidence,
		ReuseCount:  item.Quality.ReuseCount,
		Pinned:      item.Quality.Pinned,
		Sensitivity: item.Security.Sensitivity,
		Links:       append([]Link(nil), item.Links...),
	}
	for k, v := range item.Context {
		c.Context = append(c.Context, kv{K: k, V: v})
	}
	sort.Slice(c.Context, func(i, j int) bool { return c.Context[i].K < c.Context[j].K })
	sort.Slice(c.Links, func(i, j int) bool {
		if c.Links[i].To != c.Links[j].To {
			return c.Links[i].To < c.Links[j].To
		}
		return c.Links[i].Rel < c.Links[j].Rel
	})
	return json.Marshal(c)
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// ContentHash returns the lowercase hex SHA-256 digest of the item's
// canonical serialization.
func ContentHash(item *MemoryItem) (string, error) {
	b, err := CanonicalBytes(item)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
