package convctx

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eakyurek/context-search/internal/config"
	"github.com/eakyurek/context-search/internal/feature"
	"github.com/eakyurek/context-search/internal/models"
	"github.com/eakyurek/context-search/internal/observability"
)

// compilePattern wraps alternatives with letter-boundary guards. Go's \b is
// ASCII only and never matches next to Turkish letters.
func compilePattern(alternatives string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + alternatives + `)(?:[^\p{L}\p{N}]|$)`)
}

var contextTypePatterns = []struct {
	contextType models.ContextType
	pattern     *regexp.Regexp
}{
	{models.ContextProductInquiry, compilePattern(`fiyat|kaç para|ne kadar|özellik|nasıl|hangi|stok|var mı|mevcut`)},
	{models.ContextComparison, compilePattern(`karşılaştır|fark|hangisi|daha iyi|benzer|alternatif`)},
	{models.ContextGeneralInfo, compilePattern(`kargo|teslimat|iade|değişim|telefon|iletişim`)},
	{models.ContextSearchRefinement, compilePattern(`başka|farklı|daha|az|renk|beden`)},
}

var intentPatterns = []struct {
	intent  string
	pattern *regexp.Regexp
}{
	{"price_inquiry", compilePattern(`fiyat|kaç para|ne kadar`)},
	{"availability_check", compilePattern(`var mı|mevcut|stok`)},
	{"feature_inquiry", compilePattern(`özellik|nasıl|hangi`)},
	{"comparison", compilePattern(`karşılaştır|fark|hangisi`)},
	{"search", compilePattern(`ara|bul|göster`)},
}

var (
	// Substring semantics on purpose: "fiyatı" still counts as a price mention.
	pricePattern  = regexp.MustCompile(`(?i)\d+\s*(?:tl|lira|₺)|fiyat|kaç para|ne kadar|ucuz|pahalı`)
	categoryNames = []string{"gecelik", "pijama", "sabahlık", "takım", "elbise", "bluz"}
)

const (
	priceConfidence    = 0.8
	categoryConfidence = 0.9
)

// StoreStats is a point-in-time summary of all live sessions.
type StoreStats struct {
	ActiveSessions int `json:"active_sessions"`
	TotalTurns     int `json:"total_turns"`
	TotalEntities  int `json:"total_entities"`
}

// ContextSummary is the compact per-session view served over the API.
type ContextSummary struct {
	SessionID         string               `json:"session_id"`
	CurrentTopic      string               `json:"current_topic"`
	DiscussedProducts int                  `json:"discussed_products"`
	ConversationTurns int                  `json:"conversation_turns"`
	ActiveEntities    int                  `json:"active_entities"`
	Confidence        float64              `json:"confidence"`
	LastActivity      time.Time            `json:"last_activity"`
	ContextStack      []models.ContextType `json:"context_stack"`
	Preferences       map[string]string    `json:"preferences"`
}

// Store keeps per-session conversation context in memory with a TTL. Expired
// sessions are dropped lazily on access and periodically by the janitor.
type Store struct {
	mu        sync.RWMutex
	cfg       config.ContextConfig
	contexts  map[string]*models.ConversationContext
	extractor *feature.Extractor
	logger    *zap.Logger
	now       func() time.Time
}

func NewStore(cfg config.ContextConfig, extractor *feature.Extractor, logger *zap.Logger) *Store {
	return &Store{
		cfg:       cfg,
		contexts:  make(map[string]*models.ConversationContext),
		extractor: extractor,
		logger:    logger,
		now:       time.Now,
	}
}

// Get returns the live context for a session, creating a fresh one when none
// exists or the previous one has expired.
func (s *Store) Get(sessionID string) *models.ConversationContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(sessionID)
}

func (s *Store) getLocked(sessionID string) *models.ConversationContext {
	if ctx, ok := s.contexts[sessionID]; ok {
		if s.now().Sub(ctx.LastActivity) < s.cfg.SessionTTL {
			return ctx
		}
		delete(s.contexts, sessionID)
		s.logger.Info("session context expired", zap.String("session_id", sessionID))
	}

	ctx := &models.ConversationContext{
		SessionID:      sessionID,
		ActiveEntities: make(map[string]models.ContextEntity),
		Preferences:    make(map[string]string),
		LastActivity:   s.now(),
		Confidence:     1.0,
	}
	s.contexts[sessionID] = ctx
	observability.ActiveSessions.Set(float64(len(s.contexts)))
	return ctx
}

// Snapshot returns a copy of the session context safe to serialize while other
// requests keep mutating the live one. The second value is false when no live
// session exists.
func (s *Store) Snapshot(sessionID string) (models.ConversationContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, ok := s.contexts[sessionID]
	if !ok || s.now().Sub(ctx.LastActivity) >= s.cfg.SessionTTL {
		return models.ConversationContext{}, false
	}

	out := *ctx
	out.DiscussedProducts = append([]models.ContextEntity(nil), ctx.DiscussedProducts...)
	out.ContextStack = append([]models.ContextType(nil), ctx.ContextStack...)
	out.History = append([]models.ConversationTurn(nil), ctx.History...)
	out.ActiveEntities = make(map[string]models.ContextEntity, len(ctx.ActiveEntities))
	for k, v := range ctx.ActiveEntities {
		out.ActiveEntities[k] = v
	}
	out.Preferences = make(map[string]string, len(ctx.Preferences))
	for k, v := range ctx.Preferences {
		out.Preferences[k] = v
	}
	return out, true
}

// RecordTurn appends one user/bot exchange to the session, extracting entities
// from the user message and refreshing the topic and confidence.
func (s *Store) RecordTurn(sessionID, userMessage, botResponse string, contextType models.ContextType) models.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.getLocked(sessionID)
	entities := s.extractEntities(userMessage, contextType)

	if contextType == "" {
		contextType = s.detectContextType(userMessage, ctx)
	}
	for i := range entities {
		if entities[i].Origin == "" {
			entities[i].Origin = contextType
		}
	}

	turn := models.ConversationTurn{
		ID:          fmt.Sprintf("%s_%d", sessionID, len(ctx.History)),
		UserMessage: userMessage,
		BotResponse: botResponse,
		Timestamp:   s.now(),
		ContextType: contextType,
		Entities:    entities,
		Intent:      extractIntent(userMessage),
		Confidence:  turnConfidence(userMessage, entities),
	}

	ctx.History = append(ctx.History, turn)
	if len(ctx.History) > s.cfg.MaxHistory {
		ctx.History = ctx.History[len(ctx.History)-s.cfg.MaxHistory:]
	}

	for _, e := range entities {
		s.storeEntityLocked(ctx, e)
	}

	s.updateTopic(ctx, turn)
	s.updateConfidence(ctx)
	ctx.LastActivity = s.now()
	observability.ConversationTurns.Inc()
	return turn
}

// StoreEntity records an externally produced entity, such as a product chosen
// from search results.
func (s *Store) StoreEntity(sessionID string, entity models.ContextEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.getLocked(sessionID)
	s.storeEntityLocked(ctx, entity)
	ctx.LastActivity = s.now()
}

func (s *Store) storeEntityLocked(ctx *models.ConversationContext, entity models.ContextEntity) {
	if entity.MentionedAt.IsZero() {
		entity.MentionedAt = s.now()
	}
	ctx.ActiveEntities[entity.ID] = entity

	if entity.Type == models.EntityProduct {
		kept := ctx.DiscussedProducts[:0]
		for _, p := range ctx.DiscussedProducts {
			if p.ID != entity.ID {
				kept = append(kept, p)
			}
		}
		ctx.DiscussedProducts = append(kept, entity)
		if len(ctx.DiscussedProducts) > s.cfg.MaxProducts {
			ctx.DiscussedProducts = ctx.DiscussedProducts[len(ctx.DiscussedProducts)-s.cfg.MaxProducts:]
		}
	}

	if entity.Origin != "" && !containsContextType(ctx.ContextStack, entity.Origin) {
		ctx.ContextStack = append(ctx.ContextStack, entity.Origin)
	}

	s.pruneEntitiesLocked(ctx)
}

// SetPreference stores a sticky user preference that survives topic changes.
func (s *Store) SetPreference(sessionID, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.getLocked(sessionID)
	ctx.Preferences[key] = value
	ctx.LastActivity = s.now()
}

// Clear drops a session entirely.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contexts[sessionID]; ok {
		delete(s.contexts, sessionID)
		observability.ActiveSessions.Set(float64(len(s.contexts)))
		s.logger.Info("session context cleared", zap.String("session_id", sessionID))
	}
}

// ApplyTransition mutates the session context according to a topic change
// decision. Preferences and the session itself always survive.
func (s *Store) ApplyTransition(sessionID string, result models.TopicChangeResult, newTopic string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.getLocked(sessionID)
	switch result.Strategy {
	case models.StrategyFullReset:
		ctx.ActiveEntities = make(map[string]models.ContextEntity)
		ctx.DiscussedProducts = nil
		ctx.ContextStack = nil
		ctx.CurrentTopic = newTopic
	case models.StrategyPartialReset:
		ctx.ActiveEntities = make(map[string]models.ContextEntity)
		ctx.CurrentTopic = newTopic
	case models.StrategyStackContext:
		ctx.ContextStack = append(ctx.ContextStack, models.ContextFollowUp)
		ctx.CurrentTopic = newTopic
	case models.StrategyMergeContexts:
		if newTopic != "" {
			ctx.CurrentTopic = newTopic
		}
	default: // preserve_context
		if ctx.CurrentTopic == "" {
			ctx.CurrentTopic = newTopic
		}
	}
	ctx.LastActivity = s.now()
}

// Summary returns the compact API view of a session.
func (s *Store) Summary(sessionID string) ContextSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.getLocked(sessionID)
	return ContextSummary{
		SessionID:         sessionID,
		CurrentTopic:      ctx.CurrentTopic,
		DiscussedProducts: len(ctx.DiscussedProducts),
		ConversationTurns: len(ctx.History),
		ActiveEntities:    len(ctx.ActiveEntities),
		Confidence:        ctx.Confidence,
		LastActivity:      ctx.LastActivity,
		ContextStack:      append([]models.ContextType(nil), ctx.ContextStack...),
		Preferences:       ctx.Preferences,
	}
}

// Stats aggregates counters across all live sessions.
func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{ActiveSessions: len(s.contexts)}
	for _, ctx := range s.contexts {
		stats.TotalTurns += len(ctx.History)
		stats.TotalEntities += len(ctx.ActiveEntities)
	}
	return stats
}

// StartJanitor sweeps expired sessions until ctx is cancelled.
func (s *Store) StartJanitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, ctx := range s.contexts {
		if now.Sub(ctx.LastActivity) >= s.cfg.SessionTTL {
			delete(s.contexts, id)
			removed++
		}
	}
	if removed > 0 {
		observability.ActiveSessions.Set(float64(len(s.contexts)))
		s.logger.Info("swept expired sessions", zap.Int("removed", removed))
	}
}

func (s *Store) pruneEntitiesLocked(ctx *models.ConversationContext) {
	now := s.now()

	for id, e := range ctx.ActiveEntities {
		if now.Sub(e.MentionedAt) >= s.cfg.SessionTTL {
			delete(ctx.ActiveEntities, id)
		}
	}

	kept := ctx.DiscussedProducts[:0]
	for _, p := range ctx.DiscussedProducts {
		if now.Sub(p.MentionedAt) < s.cfg.SessionTTL {
			kept = append(kept, p)
		}
	}
	ctx.DiscussedProducts = kept

	// Evict oldest mentions over the cap.
	for len(ctx.ActiveEntities) > s.cfg.MaxEntities {
		oldestID := ""
		var oldest time.Time
		for id, e := range ctx.ActiveEntities {
			if oldestID == "" || e.MentionedAt.Before(oldest) {
				oldestID = id
				oldest = e.MentionedAt
			}
		}
		delete(ctx.ActiveEntities, oldestID)
	}
}

// extractEntities pulls features, price mentions, and category mentions out of
// a user message.
func (s *Store) extractEntities(message string, contextType models.ContextType) []models.ContextEntity {
	var entities []models.ContextEntity
	now := s.now()
	origin := contextType
	if origin == "" {
		origin = models.ContextProductInquiry
	}

	for _, f := range s.extractor.Extract(message) {
		entities = append(entities, models.ContextEntity{
			ID:          "feature_" + f.Value,
			Type:        models.EntityFeature,
			Value:       f.Value,
			Confidence:  f.Confidence,
			MentionedAt: now,
			Origin:      origin,
			Metadata: map[string]string{
				"category": string(f.Category),
				"weight":   fmt.Sprintf("%.2f", f.Weight),
			},
		})
	}

	lower := strings.ToLower(message)
	if m := pricePattern.FindString(lower); m != "" {
		entities = append(entities, models.ContextEntity{
			ID:          fmt.Sprintf("price_mention_%d", len(entities)),
			Type:        models.EntityPrice,
			Value:       strings.TrimFunc(m, func(r rune) bool { return r == ' ' || r == ',' || r == '.' || r == '?' }),
			Confidence:  priceConfidence,
			MentionedAt: now,
			Origin:      origin,
		})
	}

	for _, category := range categoryNames {
		if strings.Contains(lower, category) {
			entities = append(entities, models.ContextEntity{
				ID:          "category_" + category,
				Type:        models.EntityCategory,
				Value:       category,
				Confidence:  categoryConfidence,
				MentionedAt: now,
				Origin:      origin,
			})
		}
	}

	return entities
}

func (s *Store) detectContextType(message string, ctx *models.ConversationContext) models.ContextType {
	lower := strings.ToLower(message)
	for _, ct := range contextTypePatterns {
		if ct.pattern.MatchString(lower) {
			return ct.contextType
		}
	}
	if len(ctx.ContextStack) > 0 {
		return ctx.ContextStack[len(ctx.ContextStack)-1]
	}
	return models.ContextProductInquiry
}

func extractIntent(message string) string {
	lower := strings.ToLower(message)
	for _, ip := range intentPatterns {
		if ip.pattern.MatchString(lower) {
			return ip.intent
		}
	}
	return ""
}

// turnConfidence grows with entity count, message length, and the share of
// high-confidence entities. Always in [0.5, 1].
func turnConfidence(message string, entities []models.ContextEntity) float64 {
	confidence := 0.5

	entityBonus := float64(len(entities)) * 0.1
	if entityBonus > 0.3 {
		entityBonus = 0.3
	}
	confidence += entityBonus

	lengthBonus := float64(len(strings.Fields(message))) * 0.02
	if lengthBonus > 0.2 {
		lengthBonus = 0.2
	}
	confidence += lengthBonus

	highConf := 0
	for _, e := range entities {
		if e.Confidence > 0.8 {
			highConf++
		}
	}
	highConfBonus := float64(highConf) * 0.05
	if highConfBonus > 0.15 {
		highConfBonus = 0.15
	}
	confidence += highConfBonus

	if confidence > 1 {
		return 1
	}
	return confidence
}

func (s *Store) updateTopic(ctx *models.ConversationContext, turn models.ConversationTurn) {
	var product, category string
	for _, e := range turn.Entities {
		switch e.Type {
		case models.EntityProduct:
			if product == "" {
				product = e.Value
			}
		case models.EntityCategory:
			if category == "" {
				category = e.Value
			}
		}
	}

	switch {
	case product != "":
		ctx.CurrentTopic = product
	case category != "":
		ctx.CurrentTopic = category
	case turn.ContextType != models.ContextFollowUp:
		ctx.CurrentTopic = ""
	}
}

// updateConfidence averages the last five turn confidences and decays with
// session idle time over the TTL window. Floor 0.5 on the decay.
func (s *Store) updateConfidence(ctx *models.ConversationContext) {
	if len(ctx.History) == 0 {
		ctx.Confidence = 1.0
		return
	}

	recent := ctx.History
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	sum := 0.0
	for _, t := range recent {
		sum += t.Confidence
	}
	avg := sum / float64(len(recent))

	idleMinutes := s.now().Sub(ctx.LastActivity).Minutes()
	decay := 1.0 - idleMinutes/s.cfg.SessionTTL.Minutes()
	if decay < 0.5 {
		decay = 0.5
	}
	ctx.Confidence = avg * decay
}

func containsContextType(stack []models.ContextType, ct models.ContextType) bool {
	for _, v := range stack {
		if v == ct {
			return true
		}
	}
	return false
}
