package convctx

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/eakyurek/context-search/internal/feature"
	"github.com/eakyurek/context-search/internal/models"
	"github.com/eakyurek/context-search/internal/observability"
)

var (
	implicitReferencePattern = compilePattern(`bu|o|şu|bunun|onun|şunun|bunlar|onlar`)
	followUpPattern          = compilePattern(`fiyatı|kaç para|ne kadar|özellikleri|nasıl|var mı|stok|mevcut|rengi|bedeni|malzemesi|kumaşı`)
	contextualPattern        = compilePattern(`daha|başka|farklı|benzer|aynı|alternatif|seçenek`)
)

var implicitPronouns = map[string]struct{}{
	"bu": {}, "o": {}, "şu": {}, "bunun": {}, "onun": {}, "şunun": {}, "bunlar": {}, "onlar": {},
}

// followUpExpansions rewrite a bare attribute question into a full query about
// the last discussed product. First match wins.
var followUpExpansions = []struct {
	keyword string
	suffix  string
}{
	{"fiyatı", "fiyatı"},
	{"özellikleri", "özellikleri"},
	{"var", "var mı"},
	{"rengi", "rengi"},
	{"bedeni", "bedeni"},
	{"malzemesi", "malzemesi"},
}

// QueryResolver rewrites underspecified queries into searchable ones using the
// session context. It never mutates the context.
type QueryResolver struct {
	extractor *feature.Extractor
	logger    *zap.Logger
}

func NewQueryResolver(extractor *feature.Extractor, logger *zap.Logger) *QueryResolver {
	return &QueryResolver{extractor: extractor, logger: logger}
}

// Resolve classifies the query and applies the matching rewrite strategy.
func (r *QueryResolver) Resolve(query string, ctx *models.ConversationContext) models.ResolvedQuery {
	queryType := r.classify(query)

	var resolved models.ResolvedQuery
	switch queryType {
	case models.QueryExplicit:
		resolved = explicitResolution(query)
	case models.QueryImplicitReference:
		resolved = resolveImplicit(query, ctx)
	case models.QueryFollowUp:
		resolved = resolveFollowUp(query, ctx)
	case models.QueryContextual:
		resolved = resolveContextual(query, ctx)
	default:
		resolved = resolveAmbiguous(query, ctx)
	}

	observability.QueryResolutionsTotal.WithLabelValues(string(resolved.Type), string(resolved.Strategy)).Inc()
	if resolved.Resolved != resolved.Original {
		r.logger.Debug("query resolved",
			zap.String("session_id", ctx.SessionID),
			zap.String("original", resolved.Original),
			zap.String("resolved", resolved.Resolved),
			zap.String("type", string(resolved.Type)),
		)
	}
	return resolved
}

// IsFollowUp reports whether a query depends on the previous turn: follow-up
// wording, an implicit reference, or a very short query while products are in
// play.
func (r *QueryResolver) IsFollowUp(query string, ctx *models.ConversationContext) bool {
	lower := strings.ToLower(query)
	if followUpPattern.MatchString(lower) || implicitReferencePattern.MatchString(lower) {
		return true
	}
	return len(strings.Fields(query)) <= 3 && len(ctx.DiscussedProducts) > 0
}

func (r *QueryResolver) classify(query string) models.QueryType {
	lower := strings.ToLower(query)

	switch {
	case implicitReferencePattern.MatchString(lower):
		return models.QueryImplicitReference
	case followUpPattern.MatchString(lower):
		return models.QueryFollowUp
	case contextualPattern.MatchString(lower):
		return models.QueryContextual
	case r.isExplicit(query):
		return models.QueryExplicit
	default:
		return models.QueryAmbiguous
	}
}

// isExplicit holds when the query carries enough detail to search directly:
// at least two extracted features, or a category plus descriptors.
func (r *QueryResolver) isExplicit(query string) bool {
	if len(r.extractor.Extract(query)) >= 2 {
		return true
	}

	lower := strings.ToLower(query)
	hasCategory := false
	for _, category := range categoryNames {
		if strings.Contains(lower, category) {
			hasCategory = true
			break
		}
	}
	return hasCategory && len(strings.Fields(query)) >= 3
}

func explicitResolution(query string) models.ResolvedQuery {
	return models.ResolvedQuery{
		Original:    query,
		Resolved:    query,
		Type:        models.QueryExplicit,
		Strategy:    models.ResolveEntitySubstitution,
		Confidence:  1.0,
		Explanation: "query is explicit and complete",
	}
}

func resolveImplicit(query string, ctx *models.ConversationContext) models.ResolvedQuery {
	resolved := query
	var usedEntities, additions []string

	if last, ok := ctx.LastProduct(); ok {
		words := strings.Fields(query)
		replaced := false
		for i, w := range words {
			if _, pronoun := implicitPronouns[strings.ToLower(w)]; pronoun && !replaced {
				words[i] = last.Value
				replaced = true
			}
		}
		if replaced {
			resolved = strings.Join(words, " ")
			usedEntities = append(usedEntities, last.ID)
			additions = append(additions, last.Value)
		}
	}

	confidence := 0.3
	if len(usedEntities) > 0 {
		confidence = 0.9
	}
	return models.ResolvedQuery{
		Original:         query,
		Resolved:         resolved,
		Type:             models.QueryImplicitReference,
		Strategy:         models.ResolveEntitySubstitution,
		Confidence:       confidence,
		UsedEntities:     usedEntities,
		ContextAdditions: additions,
		Explanation:      fmt.Sprintf("resolved implicit reference using %d entities", len(usedEntities)),
	}
}

func resolveFollowUp(query string, ctx *models.ConversationContext) models.ResolvedQuery {
	resolved := query
	var usedEntities, additions []string

	if last, ok := ctx.LastProduct(); ok {
		lower := strings.ToLower(query)
		for _, exp := range followUpExpansions {
			if strings.Contains(lower, exp.keyword) {
				resolved = last.Value + " " + exp.suffix
				usedEntities = append(usedEntities, last.ID)
				additions = append(additions, last.Value)
				break
			}
		}
		if len(usedEntities) == 0 && !strings.Contains(lower, strings.ToLower(last.Value)) {
			resolved = last.Value + " " + query
			usedEntities = append(usedEntities, last.ID)
			additions = append(additions, last.Value)
		}
	}

	confidence := 0.4
	if len(usedEntities) > 0 {
		confidence = 0.8
	}
	return models.ResolvedQuery{
		Original:         query,
		Resolved:         resolved,
		Type:             models.QueryFollowUp,
		Strategy:         models.ResolveContextExpansion,
		Confidence:       confidence,
		UsedEntities:     usedEntities,
		ContextAdditions: additions,
		Explanation:      "resolved follow-up query with product context",
	}
}

func resolveContextual(query string, ctx *models.ConversationContext) models.ResolvedQuery {
	resolved := query
	var usedEntities, additions []string
	lower := strings.ToLower(query)

	switch {
	case strings.Contains(lower, "daha") || strings.Contains(lower, "başka"):
		if categories := recentEntities(ctx, models.EntityCategory, 1); len(categories) > 0 {
			resolved = categories[0].Value + " " + query
			usedEntities = append(usedEntities, categories[0].ID)
			additions = append(additions, categories[0].Value)
		}
	case strings.Contains(lower, "benzer") || strings.Contains(lower, "aynı"):
		for _, f := range recentEntities(ctx, models.EntityFeature, 2) {
			usedEntities = append(usedEntities, f.ID)
			additions = append(additions, f.Value)
		}
		if len(additions) > 0 {
			resolved = strings.Join(additions, " ") + " " + query
		}
	}

	// Sticky preferences ride along unless already present.
	for _, value := range sortedPreferenceValues(ctx.Preferences) {
		if !strings.Contains(strings.ToLower(resolved), strings.ToLower(value)) {
			resolved += " " + value
			additions = append(additions, value)
		}
	}

	confidence := 0.5
	if len(usedEntities) > 0 {
		confidence = 0.7
	}
	return models.ResolvedQuery{
		Original:         query,
		Resolved:         resolved,
		Type:             models.QueryContextual,
		Strategy:         models.ResolvePreferenceInjection,
		Confidence:       confidence,
		UsedEntities:     usedEntities,
		ContextAdditions: additions,
		Explanation:      fmt.Sprintf("added contextual information from %d entities", len(usedEntities)),
	}
}

func resolveAmbiguous(query string, ctx *models.ConversationContext) models.ResolvedQuery {
	resolved := query
	var additions []string

	if ctx.CurrentTopic != "" {
		resolved = ctx.CurrentTopic + " " + query
		additions = append(additions, ctx.CurrentTopic)
	}

	var options []string
	start := len(ctx.DiscussedProducts) - 3
	if start < 0 {
		start = 0
	}
	for _, p := range ctx.DiscussedProducts[start:] {
		options = append(options, p.Value+" hakkında mı?")
	}
	for _, c := range recentEntities(ctx, models.EntityCategory, 2) {
		options = append(options, c.Value+" kategorisinde mi?")
	}

	needsClarification := len(options) > 0
	confidence := 0.3
	if needsClarification {
		confidence = 0.2
	}
	return models.ResolvedQuery{
		Original:             query,
		Resolved:             resolved,
		Type:                 models.QueryAmbiguous,
		Strategy:             models.ResolveClarificationRequest,
		Confidence:           confidence,
		ContextAdditions:     additions,
		Explanation:          "query is ambiguous, may need clarification",
		NeedsClarification:   needsClarification,
		ClarificationOptions: options,
	}
}

// recentEntities returns up to n active entities of a type, newest first.
func recentEntities(ctx *models.ConversationContext, entityType models.EntityType, n int) []models.ContextEntity {
	var entities []models.ContextEntity
	for _, e := range ctx.ActiveEntities {
		if e.Type == entityType {
			entities = append(entities, e)
		}
	}
	sort.Slice(entities, func(i, j int) bool {
		if !entities[i].MentionedAt.Equal(entities[j].MentionedAt) {
			return entities[i].MentionedAt.After(entities[j].MentionedAt)
		}
		return entities[i].ID < entities[j].ID
	})
	if len(entities) > n {
		entities = entities[:n]
	}
	return entities
}

func sortedPreferenceValues(prefs map[string]string) []string {
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, prefs[k])
	}
	return values
}
