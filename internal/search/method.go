package search

import (
	"context"
	"sort"
	"strings"

	"github.com/eakyurek/context-search/internal/models"
)

// Method scores catalog products against one query. Implementations are pure
// functions of (query, product, static rule tables) and safe for concurrent
// use.
type Method interface {
	ID() models.MethodID
	Search(ctx context.Context, query string, products []models.Product, limit int) ([]models.SearchMatch, error)
}

// productText is the searchable text of a product: name plus color plus the
// free-form attribute values.
func productText(p models.Product) string {
	parts := []string{p.Name}
	if p.Color != "" {
		parts = append(parts, p.Color)
	}
	if p.Category != "" {
		parts = append(parts, p.Category)
	}
	// Sorted keys keep the concatenation stable so distance-based scores do
	// not drift between runs.
	keys := make([]string, 0, len(p.Attributes))
	for k := range p.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, p.Attributes[k])
	}
	return strings.Join(parts, " ")
}

// topMatches sorts by score descending and truncates to limit.
func topMatches(matches []models.SearchMatch, limit int) []models.SearchMatch {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
