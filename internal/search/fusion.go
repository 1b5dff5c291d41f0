package search

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/eakyurek/context-search/internal/config"
	"github.com/eakyurek/context-search/internal/feature"
	"github.com/eakyurek/context-search/internal/models"
	"github.com/eakyurek/context-search/internal/textnorm"
)

// FusionEngine merges disagreeing per-method match lists into one ranked,
// confidence-rated result list.
type FusionEngine struct {
	cfg        config.FusionConfig
	extractor  *feature.Extractor
	normalizer *textnorm.Normalizer
	logger     *zap.Logger
}

func NewFusionEngine(cfg config.FusionConfig, extractor *feature.Extractor, normalizer *textnorm.Normalizer, logger *zap.Logger) *FusionEngine {
	return &FusionEngine{cfg: cfg, extractor: extractor, normalizer: normalizer, logger: logger}
}

func (f *FusionEngine) reliability(id models.MethodID) float64 {
	switch id {
	case models.MethodAttribute:
		return f.cfg.AttributeReliability
	case models.MethodFeature:
		return f.cfg.FeatureReliability
	case models.MethodFuzzy:
		return f.cfg.FuzzyReliability
	case models.MethodKeyword:
		return f.cfg.KeywordReliability
	default:
		return 0.5
	}
}

type productGroup struct {
	product    models.Product
	scores     map[models.MethodID]float64
	ranks      map[models.MethodID]int
	confidence map[models.MethodID]float64
	features   []string
}

// Fuse groups matches by product, combines per-method scores with the
// configured strategy, applies agreement bonuses, and attaches a validation
// score cross-checking query features against product features.
func (f *FusionEngine) Fuse(perMethod map[models.MethodID][]models.SearchMatch, query string) []models.FusedResult {
	groups := f.groupByProduct(perMethod)
	if len(groups) == 0 {
		return nil
	}

	queryFeatures := f.extractor.Extract(query)

	results := make([]models.FusedResult, 0, len(groups))
	for _, g := range groups {
		combined := f.combine(g)
		combined = f.applyBonuses(combined, g)
		if combined > f.cfg.ScoreCap {
			combined = f.cfg.ScoreCap
		}

		confidence := f.confidence(combined, g)
		validation := f.validate(queryFeatures, g.product, query)

		results = append(results, models.FusedResult{
			Product:         g.product,
			FinalScore:      combined,
			Confidence:      confidence,
			MethodScores:    g.scores,
			MethodRanks:     g.ranks,
			ValidationScore: validation,
			FeatureMatches:  g.features,
			Explanation:     f.explain(g),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
	return results
}

func (f *FusionEngine) groupByProduct(perMethod map[models.MethodID][]models.SearchMatch) map[string]*productGroup {
	groups := make(map[string]*productGroup)
	for method, matches := range perMethod {
		for rank, match := range matches {
			g, ok := groups[match.Product.ID]
			if !ok {
				g = &productGroup{
					product:    match.Product,
					scores:     make(map[models.MethodID]float64),
					ranks:      make(map[models.MethodID]int),
					confidence: make(map[models.MethodID]float64),
				}
				groups[match.Product.ID] = g
			}
			g.scores[method] = match.Score
			g.ranks[method] = rank + 1
			g.confidence[method] = match.Confidence
			g.features = mergeUnique(g.features, match.FeatureMatches)
		}
	}
	return groups
}

func (f *FusionEngine) combine(g *productGroup) float64 {
	switch f.cfg.Strategy {
	case "max_score":
		best := 0.0
		for _, s := range g.scores {
			if s > best {
				best = s
			}
		}
		return best
	case "rank_fusion":
		sum := 0.0
		weightSum := 0.0
		for method, rank := range g.ranks {
			w := f.reliability(method)
			sum += w / float64(rank)
			weightSum += w
		}
		if weightSum == 0 {
			return 0
		}
		return sum / weightSum
	case "bayesian":
		sum := 0.0
		weightSum := 0.0
		for method, score := range g.scores {
			w := f.reliability(method) * g.confidence[method]
			sum += score * w
			weightSum += w
		}
		if weightSum == 0 {
			return 0
		}
		return sum / weightSum
	default: // weighted_average
		sum := 0.0
		weightSum := 0.0
		for method, score := range g.scores {
			w := f.reliability(method)
			sum += score * w
			weightSum += w
		}
		if weightSum == 0 {
			return 0
		}
		return sum / weightSum
	}
}

func (f *FusionEngine) applyBonuses(score float64, g *productGroup) float64 {
	if len(g.scores) >= 2 {
		score += f.cfg.MultiMethodBoost
	}
	if len(g.scores) >= 2 && scoreStdDev(g.scores) < 0.3 {
		score += f.cfg.ConsistencyBoost
	}
	highConf := 0
	for _, c := range g.confidence {
		if c > 0.8 {
			highConf++
		}
	}
	if highConf >= 2 {
		score += f.cfg.HighConfidenceBoost
	}
	return score
}

// confidence blends the final score, inter-method agreement, method count,
// and the average per-method confidence. Monotonic in agreement, always in
// [0,1].
func (f *FusionEngine) confidence(finalScore float64, g *productGroup) float64 {
	base := finalScore / 1.5
	if base > 1 {
		base = 1
	}

	agreement := 0.0
	if len(g.scores) >= 2 {
		spread := scoreRange(g.scores)
		agreement = (0.5 - spread) * 0.4
		if agreement < 0 {
			agreement = 0
		}
	}

	countBonus := float64(len(g.scores)) * 0.05
	if countBonus > 0.2 {
		countBonus = 0.2
	}

	structural := base + agreement + countBonus

	avgMethodConf := 0.0
	for _, c := range g.confidence {
		avgMethodConf += c
	}
	avgMethodConf /= float64(len(g.confidence))

	conf := (structural + avgMethodConf) / 2
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

// validate re-compares query features against the product independently of
// the method scores. Neutral 0.5 when the query has no extractable features.
func (f *FusionEngine) validate(queryFeatures []models.Feature, product models.Product, query string) float64 {
	if len(queryFeatures) == 0 {
		return 0.5
	}
	productFeatures := f.extractor.Extract(productText(product))
	overlap := f.extractor.Similarity(queryFeatures, productFeatures)
	textSim := f.normalizer.Similarity(query, productText(product))
	return overlap*0.6 + textSim*0.4
}

// ValidateAndFilter folds the validation score into the final score and
// drops low-quality results.
func (f *FusionEngine) ValidateAndFilter(results []models.FusedResult) []models.FusedResult {
	w := f.cfg.ValidationWeight
	filtered := make([]models.FusedResult, 0, len(results))
	for _, r := range results {
		r.FinalScore = r.FinalScore*(1-w) + r.ValidationScore*w
		if r.Confidence > f.cfg.MinResultConfidence && r.ValidationScore > f.cfg.MinValidationScore {
			filtered = append(filtered, r)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].FinalScore > filtered[j].FinalScore
	})
	return filtered
}

// OverallConfidence weights the top three results 1.0/0.7/0.4.
func (f *FusionEngine) OverallConfidence(results []models.FusedResult) float64 {
	if len(results) == 0 {
		return 0
	}
	weights := []float64{1.0, 0.7, 0.4}
	sum := 0.0
	weightSum := 0.0
	for i, r := range results {
		if i >= len(weights) {
			break
		}
		sum += r.Confidence * weights[i]
		weightSum += weights[i]
	}
	return sum / weightSum
}

// GenerateAlternatives proposes reworded queries when confidence is low:
// feature synonyms first, then synonym expansions of the whole query, then
// feature refinement suggestions. At most five, never nil.
func (f *FusionEngine) GenerateAlternatives(query string) []models.Alternative {
	alternatives := make([]models.Alternative, 0, 5)
	seen := map[string]struct{}{}

	add := func(suggestion, reason string, confidence float64) {
		if len(alternatives) >= 5 || suggestion == "" || suggestion == query {
			return
		}
		if _, dup := seen[suggestion]; dup {
			return
		}
		seen[suggestion] = struct{}{}
		alternatives = append(alternatives, models.Alternative{
			Suggestion: suggestion,
			Reason:     reason,
			Confidence: confidence,
		})
	}

	queryFeatures := f.extractor.Extract(query)
	for _, qf := range queryFeatures {
		for _, syn := range qf.Synonyms {
			add(syn, fmt.Sprintf("%s yerine eş anlamlı", qf.Value), 0.7)
		}
	}

	for i, variant := range f.normalizer.ExpandQuery(query) {
		if i == 0 {
			continue
		}
		add(variant, "benzer arama", 0.6)
	}

	if len(queryFeatures) < 2 {
		for _, hint := range []string{"siyah " + f.normalizer.Normalize(query), f.normalizer.Normalize(query) + " takım"} {
			add(hint, "özellik ekleyerek daraltın", 0.5)
		}
	}

	return alternatives
}

func (f *FusionEngine) explain(g *productGroup) string {
	return fmt.Sprintf("fused from %d methods, %d feature matches", len(g.scores), len(g.features))
}

func scoreStdDev(scores map[models.MethodID]float64) float64 {
	n := float64(len(scores))
	if n == 0 {
		return 0
	}
	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= n
	variance := 0.0
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	return math.Sqrt(variance / n)
}

func scoreRange(scores map[models.MethodID]float64) float64 {
	min := math.Inf(1)
	max := math.Inf(-1)
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	if min > max {
		return 0
	}
	return max - min
}

func mergeUnique(dst, src []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range src {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}
