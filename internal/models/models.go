package models

import "time"

// MethodID identifies one of the independent search strategies.
type MethodID string

const (
	MethodAttribute MethodID = "attribute"
	MethodFuzzy     MethodID = "fuzzy"
	MethodKeyword   MethodID = "keyword"
	MethodFeature   MethodID = "feature"
)

// AllMethods lists every registered strategy in dispatch order.
func AllMethods() []MethodID {
	return []MethodID{MethodAttribute, MethodFuzzy, MethodKeyword, MethodFeature}
}

// Product is the catalog record supplied by the catalog collaborator.
// The engine never mutates it.
type Product struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Price      float64           `json:"price"`
	Stock      int               `json:"stock"`
	Category   string            `json:"category,omitempty"`
	Color      string            `json:"color,omitempty"`
	Size       string            `json:"size,omitempty"`
	Code       string            `json:"code,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// FeatureCategory is the closed set of attribute kinds the extractor produces.
type FeatureCategory string

const (
	CategoryColor       FeatureCategory = "color"
	CategoryMaterial    FeatureCategory = "material"
	CategoryGarmentType FeatureCategory = "garment_type"
	CategoryPattern     FeatureCategory = "pattern"
	CategoryClosure     FeatureCategory = "closure"
	CategoryNeckline    FeatureCategory = "neckline"
	CategorySleeve      FeatureCategory = "sleeve"
	CategoryTargetGroup FeatureCategory = "target_group"
	CategorySize        FeatureCategory = "size"
	CategoryStyle       FeatureCategory = "style"
)

// Feature is a typed attribute pulled out of free text. Immutable once created.
type Feature struct {
	Category   FeatureCategory `json:"category"`
	Value      string          `json:"value"`
	Weight     float64         `json:"weight"`
	Confidence float64         `json:"confidence"`
	Synonyms   []string        `json:"synonyms,omitempty"`
}

// SearchMatch is one method's verdict on one product. Owned by the method
// that produced it; the fusion stage reads but never mutates it.
type SearchMatch struct {
	Product        Product  `json:"product"`
	Score          float64  `json:"score"`
	Method         MethodID `json:"method"`
	Confidence     float64  `json:"confidence"`
	Explanation    string   `json:"explanation"`
	FeatureMatches []string `json:"feature_matches,omitempty"`
}

// FusedResult is the per-product outcome of combining all method scores.
// Ordering by FinalScore descending defines presentation order.
type FusedResult struct {
	Product         Product              `json:"product"`
	FinalScore      float64              `json:"final_score"`
	Confidence      float64              `json:"confidence"`
	MethodScores    map[MethodID]float64 `json:"method_scores"`
	MethodRanks     map[MethodID]int     `json:"method_ranks"`
	ValidationScore float64              `json:"validation_score"`
	FeatureMatches  []string             `json:"feature_matches,omitempty"`
	Explanation     string               `json:"explanation"`
}

// Alternative is a query suggestion offered when confidence is low.
// It is a rewording hint, not a match.
type Alternative struct {
	Suggestion string  `json:"suggestion"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// SearchResult is the full outcome of one dispatched search.
type SearchResult struct {
	Query             string                     `json:"query"`
	Results           []FusedResult              `json:"results"`
	Alternatives      []Alternative              `json:"alternatives,omitempty"`
	OverallConfidence float64                    `json:"overall_confidence"`
	MethodTimings     map[MethodID]time.Duration `json:"-"`
	DegradedMethods   []MethodID                 `json:"degraded_methods,omitempty"`
}

// ContextType classifies what a conversation turn was about.
type ContextType string

const (
	ContextProductInquiry   ContextType = "product_inquiry"
	ContextComparison       ContextType = "product_comparison"
	ContextGeneralInfo      ContextType = "general_info"
	ContextSearchRefinement ContextType = "search_refinement"
	ContextFollowUp         ContextType = "follow_up"
)

// EntityType is the closed set of conversational entity kinds.
type EntityType string

const (
	EntityProduct    EntityType = "product"
	EntityCategory   EntityType = "category"
	EntityFeature    EntityType = "feature"
	EntityPrice      EntityType = "price"
	EntityPreference EntityType = "preference"
)

// ContextEntity is a typed piece of conversational state tracked per session.
// Entities with the same ID replace rather than duplicate.
type ContextEntity struct {
	ID          string            `json:"id"`
	Type        EntityType        `json:"type"`
	Value       string            `json:"value"`
	Confidence  float64           `json:"confidence"`
	MentionedAt time.Time         `json:"mentioned_at"`
	Origin      ContextType       `json:"origin"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ConversationTurn is one user/bot exchange.
type ConversationTurn struct {
	ID          string          `json:"id"`
	UserMessage string          `json:"user_message"`
	BotResponse string          `json:"bot_response"`
	Timestamp   time.Time       `json:"timestamp"`
	ContextType ContextType     `json:"context_type"`
	Entities    []ContextEntity `json:"entities,omitempty"`
	Intent      string          `json:"intent,omitempty"`
	Confidence  float64         `json:"confidence"`
}

// ConversationContext is the per-session state. Bounds: DiscussedProducts ≤ 5
// (most recent last), ActiveEntities ≤ 10 (LRU by MentionedAt),
// History ≤ 20. The store owns all mutation.
type ConversationContext struct {
	SessionID         string                   `json:"session_id"`
	CurrentTopic      string                   `json:"current_topic,omitempty"`
	DiscussedProducts []ContextEntity          `json:"discussed_products"`
	ActiveEntities    map[string]ContextEntity `json:"active_entities"`
	ContextStack      []ContextType            `json:"context_stack"`
	History           []ConversationTurn       `json:"history"`
	Preferences       map[string]string        `json:"preferences"`
	LastActivity      time.Time                `json:"last_activity"`
	Confidence        float64                  `json:"context_confidence"`
}

// LastProduct returns the most recently discussed product entity, if any.
func (c *ConversationContext) LastProduct() (ContextEntity, bool) {
	if len(c.DiscussedProducts) == 0 {
		return ContextEntity{}, false
	}
	return c.DiscussedProducts[len(c.DiscussedProducts)-1], true
}

// TopicChangeType classifies how a new query relates to the current topic.
type TopicChangeType string

const (
	TopicNoChange       TopicChangeType = "no_change"
	TopicRefinement     TopicChangeType = "refinement"
	TopicSoftTransition TopicChangeType = "soft_transition"
	TopicHardSwitch     TopicChangeType = "hard_switch"
	TopicReturn         TopicChangeType = "return"
)

// TransitionStrategy decides which parts of the context survive a topic change.
type TransitionStrategy string

const (
	StrategyPreserveContext TransitionStrategy = "preserve_context"
	StrategyMergeContexts   TransitionStrategy = "merge_contexts"
	StrategyStackContext    TransitionStrategy = "stack_context"
	StrategyPartialReset    TransitionStrategy = "partial_reset"
	StrategyFullReset       TransitionStrategy = "full_reset"
)

// TopicChangeResult is the detector's verdict for one query.
type TopicChangeResult struct {
	Changed          bool               `json:"changed"`
	Type             TopicChangeType    `json:"type"`
	Confidence       float64            `json:"confidence"`
	OldTopic         string             `json:"old_topic,omitempty"`
	NewTopic         string             `json:"new_topic,omitempty"`
	Similarity       float64            `json:"similarity"`
	Strategy         TransitionStrategy `json:"strategy"`
	Explanation      string             `json:"explanation"`
	RelatedEntityIDs []string           `json:"related_entity_ids,omitempty"`
}

// QueryType classifies how much context a query needs to become searchable.
type QueryType string

const (
	QueryExplicit          QueryType = "explicit"
	QueryImplicitReference QueryType = "implicit_reference"
	QueryFollowUp          QueryType = "follow_up"
	QueryContextual        QueryType = "contextual"
	QueryAmbiguous         QueryType = "ambiguous"
)

// ResolutionStrategy names the rewrite applied by the resolver.
type ResolutionStrategy string

const (
	ResolveEntitySubstitution   ResolutionStrategy = "entity_substitution"
	ResolveContextExpansion     ResolutionStrategy = "context_expansion"
	ResolvePreferenceInjection  ResolutionStrategy = "preference_injection"
	ResolveHistoryBased         ResolutionStrategy = "history_based"
	ResolveClarificationRequest ResolutionStrategy = "clarification_request"
)

// ResolvedQuery is the resolver's rewrite of an inbound query.
type ResolvedQuery struct {
	Original             string             `json:"original"`
	Resolved             string             `json:"resolved"`
	Type                 QueryType          `json:"type"`
	Strategy             ResolutionStrategy `json:"strategy"`
	Confidence           float64            `json:"confidence"`
	UsedEntities         []string           `json:"used_entities,omitempty"`
	ContextAdditions     []string           `json:"context_additions,omitempty"`
	Explanation          string             `json:"explanation"`
	NeedsClarification   bool               `json:"needs_clarification"`
	ClarificationOptions []string           `json:"clarification_options,omitempty"`
}

// CacheType scopes TTL defaults and compatibility rules for cache entries.
type CacheType string

const (
	CacheSearchResult      CacheType = "search_result"
	CacheProductInfo       CacheType = "product_info"
	CacheContextResolution CacheType = "context_resolution"
	CacheFeatureExtraction CacheType = "feature_extraction"
	CacheSimilarityScore   CacheType = "similarity_score"
)

// ContextEvent is raised by the caller when conversation state shifts,
// triggering targeted cache invalidation.
type ContextEvent string

const (
	EventSessionReset     ContextEvent = "session_reset"
	EventNewProduct       ContextEvent = "new_product"
	EventTopicSwitch      ContextEvent = "topic_switch"
	EventEntityExpiry     ContextEvent = "entity_expiry"
	EventPreferenceUpdate ContextEvent = "preference_update"
)
