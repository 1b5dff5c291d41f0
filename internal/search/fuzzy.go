package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/eakyurek/context-search/internal/models"
	"github.com/eakyurek/context-search/internal/textnorm"
)

// FuzzyMethod tolerates typos and word-order differences by taking the best
// of plain edit-distance ratio, sorted-token ratio, and common-token ratio.
type FuzzyMethod struct {
	normalizer *textnorm.Normalizer
	threshold  float64
}

func NewFuzzyMethod(normalizer *textnorm.Normalizer, threshold float64) *FuzzyMethod {
	return &FuzzyMethod{normalizer: normalizer, threshold: threshold}
}

func (m *FuzzyMethod) ID() models.MethodID { return models.MethodFuzzy }

func (m *FuzzyMethod) Search(ctx context.Context, query string, products []models.Product, limit int) ([]models.SearchMatch, error) {
	normalizedQuery := m.normalizer.Normalize(query)

	var matches []models.SearchMatch
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		normalizedProduct := m.normalizer.Normalize(productText(p))

		ratio := levenshteinRatio(normalizedQuery, normalizedProduct)
		tokenSort := levenshteinRatio(sortTokens(normalizedQuery), sortTokens(normalizedProduct))
		tokenSet := tokenSetRatio(normalizedQuery, normalizedProduct)
		tokenPair := tokenPairRatio(normalizedQuery, normalizedProduct)

		score := ratio
		if tokenSort > score {
			score = tokenSort
		}
		if tokenSet > score {
			score = tokenSet
		}
		if tokenPair > score {
			score = tokenPair
		}

		if score <= m.threshold {
			continue
		}
		matches = append(matches, models.SearchMatch{
			Product:     p,
			Score:       score,
			Method:      m.ID(),
			Confidence:  score * 0.9,
			Explanation: fmt.Sprintf("fuzzy match (ratio %.2f, token set %.2f)", ratio, tokenSet),
		})
	}
	return topMatches(matches, limit), nil
}

// levenshteinRatio maps edit distance to [0,1]: 1 for identical strings.
func levenshteinRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	la := len([]rune(a))
	lb := len([]rune(b))
	max := la
	if lb > max {
		max = lb
	}
	if max == 0 {
		return 1
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	r := 1 - float64(dist)/float64(max)
	if r < 0 {
		return 0
	}
	return r
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// tokenSetRatio compares only the shared and distinct token sets, so a query
// that is a subset of a longer product name still scores high.
func tokenSetRatio(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for t := range setA {
		if _, ok := setB[t]; ok {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if _, ok := setA[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	combinedA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := levenshteinRatio(base, combinedA)
	if r := levenshteinRatio(base, combinedB); r > best {
		best = r
	}
	if r := levenshteinRatio(combinedA, combinedB); r > best {
		best = r
	}
	return best
}

// tokenPairRatio pairs each query token with its closest product token and
// averages the ratios, so a single typo in one word degrades the score only
// proportionally.
func tokenPairRatio(query, product string) float64 {
	queryTokens := strings.Fields(query)
	productTokens := strings.Fields(product)
	if len(queryTokens) == 0 || len(productTokens) == 0 {
		return 0
	}

	sum := 0.0
	for _, qt := range queryTokens {
		best := 0.0
		for _, pt := range productTokens {
			if r := levenshteinRatio(qt, pt); r > best {
				best = r
			}
		}
		sum += best
	}
	return sum / float64(len(queryTokens))
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		set[t] = struct{}{}
	}
	return set
}
