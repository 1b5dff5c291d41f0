package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/eakyurek/context-search/internal/feature"
	"github.com/eakyurek/context-search/internal/models"
	"github.com/eakyurek/context-search/internal/textnorm"
)

// AttributeMethod scores products by direct feature-set overlap with the
// query, blended with plain word overlap. Multi-feature queries that match
// only one feature are penalized so that "siyah dantelli gecelik" does not
// rank every black product highly.
type AttributeMethod struct {
	extractor  *feature.Extractor
	normalizer *textnorm.Normalizer
	threshold  float64
}

func NewAttributeMethod(extractor *feature.Extractor, normalizer *textnorm.Normalizer, threshold float64) *AttributeMethod {
	return &AttributeMethod{extractor: extractor, normalizer: normalizer, threshold: threshold}
}

func (m *AttributeMethod) ID() models.MethodID { return models.MethodAttribute }

func (m *AttributeMethod) Search(ctx context.Context, query string, products []models.Product, limit int) ([]models.SearchMatch, error) {
	queryFeatures := m.extractor.Extract(query)
	queryValues := featureValues(queryFeatures)

	var matches []models.SearchMatch
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		productValues := featureValues(m.extractor.Extract(productText(p)))
		common := intersect(queryValues, productValues)

		var overlap float64
		if len(queryValues) > 0 {
			overlap = float64(len(common)) / float64(len(queryValues))
			switch {
			case len(queryValues) >= 3 && len(common) <= 1:
				overlap *= 0.3
			case len(queryValues) >= 2 && len(common) <= 1:
				overlap *= 0.5
			}
			if len(common) >= 2 {
				overlap *= 1.2
			}
		}

		textSim := wordJaccard(m.normalizer.Normalize(query), m.normalizer.Normalize(productText(p)))
		score := overlap*0.7 + textSim*0.3
		if score <= m.threshold {
			continue
		}

		confidence := score * 1.2
		if confidence > 1 {
			confidence = 1
		}
		matches = append(matches, models.SearchMatch{
			Product:        p,
			Score:          score,
			Method:         m.ID(),
			Confidence:     confidence,
			Explanation:    fmt.Sprintf("attribute match with %d common features", len(common)),
			FeatureMatches: common,
		})
	}
	return topMatches(matches, limit), nil
}

func featureValues(features []models.Feature) []string {
	values := make([]string, 0, len(features))
	for _, f := range features {
		values = append(values, f.Value)
	}
	return values
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []string
	seen := make(map[string]struct{})
	for _, v := range a {
		if _, ok := set[v]; !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func wordJaccard(a, b string) float64 {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(wordsB))
	for _, w := range wordsB {
		setB[w] = struct{}{}
	}
	inter := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
