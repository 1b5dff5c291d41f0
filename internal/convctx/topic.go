package convctx

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/eakyurek/context-search/internal/feature"
	"github.com/eakyurek/context-search/internal/models"
	"github.com/eakyurek/context-search/internal/observability"
	"github.com/eakyurek/context-search/internal/textnorm"
)

// Explicit wording beats similarity: a query saying "şimdi" or "başka" is a
// switch even when the topics look alike.
var (
	hardSwitchIndicators = compilePattern(`şimdi|artık|bunun yerine|başka|farklı|yeni|değiştir|geç|bırak|unut`)
	returnIndicators     = compilePattern(`geri|tekrar|önce|ilk|başta|o|önceki`)
	softIndicators       = compilePattern(`ayrıca|ek olarak|benzer|aynı|ilgili|hakkında|daha|ve`)
)

// Similarity thresholds between the current and the incoming topic.
const (
	noChangeSimilarity   = 0.8
	refinementSimilarity = 0.7
	softSimilarity       = 0.4
)

// TopicDetector classifies how an incoming query relates to the session's
// current topic and picks the context transition strategy.
type TopicDetector struct {
	extractor  *feature.Extractor
	normalizer *textnorm.Normalizer
	logger     *zap.Logger
}

func NewTopicDetector(extractor *feature.Extractor, normalizer *textnorm.Normalizer, logger *zap.Logger) *TopicDetector {
	return &TopicDetector{extractor: extractor, normalizer: normalizer, logger: logger}
}

// Detect compares the query topic against the session topic. The context is
// read only; applying the resulting strategy is the store's job.
func (d *TopicDetector) Detect(query string, ctx *models.ConversationContext) models.TopicChangeResult {
	oldTopic := d.currentTopic(ctx)
	newTopic := d.topicFromQuery(query)

	similarity := d.topicSimilarity(oldTopic, newTopic)
	changeType := d.classify(query, similarity)
	changed := changeType != models.TopicNoChange

	result := models.TopicChangeResult{
		Changed:          changed,
		Type:             changeType,
		Confidence:       d.changeConfidence(query, changeType, similarity, ctx),
		OldTopic:         oldTopic,
		NewTopic:         newTopic,
		Similarity:       similarity,
		Strategy:         transitionStrategy(changeType, ctx),
		Explanation:      explainChange(changeType, oldTopic, newTopic),
		RelatedEntityIDs: relatedEntities(oldTopic, newTopic, ctx),
	}

	observability.TopicChangesTotal.WithLabelValues(string(changeType)).Inc()
	if changed {
		d.logger.Info("topic change detected",
			zap.String("session_id", ctx.SessionID),
			zap.String("old_topic", oldTopic),
			zap.String("new_topic", newTopic),
			zap.String("type", string(changeType)),
		)
	}
	return result
}

func (d *TopicDetector) currentTopic(ctx *models.ConversationContext) string {
	if ctx.CurrentTopic != "" {
		return ctx.CurrentTopic
	}
	if last, ok := ctx.LastProduct(); ok {
		return last.Value
	}
	if len(ctx.ContextStack) > 0 {
		return string(ctx.ContextStack[len(ctx.ContextStack)-1])
	}
	return ""
}

// topicFromQuery prefers garment types, then any high-weight feature, then a
// raw category mention.
func (d *TopicDetector) topicFromQuery(query string) string {
	features := d.extractor.Extract(query)
	for _, f := range features {
		if f.Category == models.CategoryGarmentType {
			return f.Value
		}
	}
	for _, f := range features {
		if f.Weight > 0.7 {
			return f.Value
		}
	}

	lower := strings.ToLower(query)
	for _, category := range categoryNames {
		if strings.Contains(lower, category) {
			return category
		}
	}
	return ""
}

func (d *TopicDetector) topicSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	similarity := d.normalizer.Similarity(a, b)

	// Same-category topics are closer than their words suggest.
	if sharesCategory(d.extractor.Extract(a), d.extractor.Extract(b)) {
		similarity += 0.3
	}
	if similarity > 1 {
		return 1
	}
	return similarity
}

func (d *TopicDetector) classify(query string, similarity float64) models.TopicChangeType {
	lower := strings.ToLower(query)

	switch {
	case hardSwitchIndicators.MatchString(lower):
		return models.TopicHardSwitch
	case returnIndicators.MatchString(lower):
		return models.TopicReturn
	case softIndicators.MatchString(lower):
		return models.TopicSoftTransition
	}

	switch {
	case similarity >= noChangeSimilarity:
		return models.TopicNoChange
	case similarity >= refinementSimilarity:
		return models.TopicRefinement
	case similarity >= softSimilarity:
		return models.TopicSoftTransition
	default:
		return models.TopicHardSwitch
	}
}

func (d *TopicDetector) changeConfidence(query string, changeType models.TopicChangeType, similarity float64, ctx *models.ConversationContext) float64 {
	indicatorBoost := 0.0
	lower := strings.ToLower(query)
	for _, re := range []*regexp.Regexp{hardSwitchIndicators, softIndicators, returnIndicators} {
		if re.MatchString(lower) {
			indicatorBoost = 0.2
			break
		}
	}

	similarityConfidence := 1 - similarity
	if changeType == models.TopicNoChange {
		similarityConfidence = similarity
	}

	consistency := 0.0
	if len(ctx.History) > 0 {
		recent := ctx.History
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		withEntities := 0
		for _, turn := range recent {
			if len(turn.Entities) > 0 {
				withEntities++
			}
		}
		consistency = float64(withEntities) / 3
		if consistency > 1 {
			consistency = 1
		}
	}

	confidence := 0.5*0.4 + indicatorBoost*0.3 + similarityConfidence*0.2 + consistency*0.1
	if confidence < 0.1 {
		return 0.1
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// transitionStrategy maps the change type to how much context survives. A hard
// switch late in a long conversation keeps recent products; early on it wipes
// everything.
func transitionStrategy(changeType models.TopicChangeType, ctx *models.ConversationContext) models.TransitionStrategy {
	switch changeType {
	case models.TopicNoChange, models.TopicRefinement:
		return models.StrategyPreserveContext
	case models.TopicSoftTransition:
		return models.StrategyMergeContexts
	case models.TopicReturn:
		return models.StrategyStackContext
	case models.TopicHardSwitch:
		if len(ctx.History) > 5 {
			return models.StrategyPartialReset
		}
		return models.StrategyFullReset
	default:
		return models.StrategyPreserveContext
	}
}

func relatedEntities(oldTopic, newTopic string, ctx *models.ConversationContext) []string {
	if oldTopic == "" || newTopic == "" {
		return nil
	}
	var related []string
	oldLower := strings.ToLower(oldTopic)
	newLower := strings.ToLower(newTopic)
	for id, entity := range ctx.ActiveEntities {
		value := strings.ToLower(entity.Value)
		if strings.Contains(value, oldLower) || strings.Contains(value, newLower) {
			related = append(related, id)
		}
	}
	return related
}

func explainChange(changeType models.TopicChangeType, oldTopic, newTopic string) string {
	if oldTopic == "" {
		oldTopic = "unknown"
	}
	if newTopic == "" {
		newTopic = "unknown"
	}
	switch changeType {
	case models.TopicNoChange:
		return "no topic change detected"
	case models.TopicHardSwitch:
		return fmt.Sprintf("hard switch from %q to %q", oldTopic, newTopic)
	case models.TopicSoftTransition:
		return fmt.Sprintf("soft transition from %q to %q", oldTopic, newTopic)
	case models.TopicRefinement:
		return fmt.Sprintf("refinement of %q", oldTopic)
	case models.TopicReturn:
		return fmt.Sprintf("return to previous topic %q", newTopic)
	default:
		return string(changeType)
	}
}

func sharesCategory(a, b []models.Feature) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	categories := make(map[models.FeatureCategory]struct{}, len(a))
	for _, f := range a {
		categories[f.Category] = struct{}{}
	}
	for _, f := range b {
		if _, ok := categories[f.Category]; ok {
			return true
		}
	}
	return false
}
