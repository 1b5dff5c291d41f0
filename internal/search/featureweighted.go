package search

import (
	"context"
	"fmt"

	"github.com/eakyurek/context-search/internal/feature"
	"github.com/eakyurek/context-search/internal/models"
)

// FeatureWeightedMethod compares typed feature sets, counting direct value
// matches at full weight and same-category synonym matches at a reduced
// weight. Queries with no extractable features yield no matches.
type FeatureWeightedMethod struct {
	extractor *feature.Extractor
	threshold float64
}

func NewFeatureWeightedMethod(extractor *feature.Extractor, threshold float64) *FeatureWeightedMethod {
	return &FeatureWeightedMethod{extractor: extractor, threshold: threshold}
}

func (m *FeatureWeightedMethod) ID() models.MethodID { return models.MethodFeature }

func (m *FeatureWeightedMethod) Search(ctx context.Context, query string, products []models.Product, limit int) ([]models.SearchMatch, error) {
	queryFeatures := m.extractor.Extract(query)
	if len(queryFeatures) == 0 {
		return nil, nil
	}

	var matches []models.SearchMatch
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		productFeatures := m.extractor.Extract(productText(p))
		score := m.featureScore(queryFeatures, productFeatures)
		if score <= m.threshold {
			continue
		}

		confidence := score * 1.1
		if confidence > 1 {
			confidence = 1
		}
		matched := matchedFeatures(queryFeatures, productFeatures)
		matches = append(matches, models.SearchMatch{
			Product:        p,
			Score:          score,
			Method:         m.ID(),
			Confidence:     confidence,
			Explanation:    fmt.Sprintf("feature match with %d features", len(matched)),
			FeatureMatches: matched,
		})
	}
	return topMatches(matches, limit), nil
}

func (m *FeatureWeightedMethod) featureScore(queryFeatures, productFeatures []models.Feature) float64 {
	if len(queryFeatures) == 0 || len(productFeatures) == 0 {
		return 0
	}

	productValues := make(map[string]struct{}, len(productFeatures))
	for _, f := range productFeatures {
		productValues[f.Value] = struct{}{}
	}

	direct := 0
	synonym := 0
	for _, qf := range queryFeatures {
		if _, ok := productValues[qf.Value]; ok {
			direct++
			continue
		}
		for _, pf := range productFeatures {
			if qf.Category == pf.Category && featureSynonymMatch(qf, pf) {
				synonym++
				break
			}
		}
	}

	directScore := float64(direct) / float64(len(queryFeatures))
	synonymScore := float64(synonym) / float64(len(queryFeatures))
	return directScore*0.7 + synonymScore*0.3
}

func matchedFeatures(queryFeatures, productFeatures []models.Feature) []string {
	productValues := make(map[string]struct{}, len(productFeatures))
	for _, f := range productFeatures {
		productValues[f.Value] = struct{}{}
	}

	var matched []string
	for _, qf := range queryFeatures {
		if _, ok := productValues[qf.Value]; ok {
			matched = append(matched, qf.Value)
			continue
		}
		for _, pf := range productFeatures {
			if qf.Category == pf.Category && featureSynonymMatch(qf, pf) {
				matched = append(matched, qf.Value+"~"+pf.Value)
				break
			}
		}
	}
	return matched
}

func featureSynonymMatch(a, b models.Feature) bool {
	for _, s := range a.Synonyms {
		if s == b.Value {
			return true
		}
	}
	for _, s := range b.Synonyms {
		if s == a.Value {
			return true
		}
	}
	return false
}
