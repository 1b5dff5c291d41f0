package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/eakyurek/context-search/internal/models"
	"github.com/eakyurek/context-search/internal/textnorm"
)

// KeywordMethod matches on plain word containment over the synonym-expanded
// query variants, keeping the best-scoring variant per product.
type KeywordMethod struct {
	normalizer *textnorm.Normalizer
	threshold  float64
}

func NewKeywordMethod(normalizer *textnorm.Normalizer, threshold float64) *KeywordMethod {
	return &KeywordMethod{normalizer: normalizer, threshold: threshold}
}

func (m *KeywordMethod) ID() models.MethodID { return models.MethodKeyword }

func (m *KeywordMethod) Search(ctx context.Context, query string, products []models.Product, limit int) ([]models.SearchMatch, error) {
	expanded := m.normalizer.ExpandQuery(query)

	var matches []models.SearchMatch
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text := m.normalizer.Normalize(productText(p))

		best := 0.0
		bestExplanation := ""
		for _, variant := range expanded {
			words := strings.Fields(variant)
			if len(words) == 0 {
				continue
			}
			matched := 0
			for _, w := range words {
				if strings.Contains(text, w) {
					matched++
				}
			}
			score := float64(matched) / float64(len(words))
			if score > best {
				best = score
				bestExplanation = fmt.Sprintf("keyword match: %d/%d words", matched, len(words))
			}
		}

		if best <= m.threshold {
			continue
		}
		matches = append(matches, models.SearchMatch{
			Product:     p,
			Score:       best,
			Method:      m.ID(),
			Confidence:  best * 0.7,
			Explanation: bestExplanation,
		})
	}
	return topMatches(matches, limit), nil
}
