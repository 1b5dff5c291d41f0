package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eakyurek/context-search/internal/cache"
	"github.com/eakyurek/context-search/internal/catalog"
	"github.com/eakyurek/context-search/internal/config"
	"github.com/eakyurek/context-search/internal/convctx"
	"github.com/eakyurek/context-search/internal/models"
	"github.com/eakyurek/context-search/internal/observability"
	"github.com/eakyurek/context-search/internal/search"
)

// SearchRequest is the inbound contract for one conversational search.
type SearchRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	Limit     int    `json:"limit,omitempty"`
}

// SearchResponse is the full outcome of one pipeline run.
type SearchResponse struct {
	Query             string                   `json:"query"`
	SessionID         string                   `json:"session_id"`
	Resolved          models.ResolvedQuery     `json:"resolved"`
	TopicChange       models.TopicChangeResult `json:"topic_change"`
	Results           []models.FusedResult     `json:"results"`
	Alternatives      []models.Alternative     `json:"alternatives,omitempty"`
	OverallConfidence float64                  `json:"overall_confidence"`
	Presentation      *search.Presentation     `json:"presentation"`
	DegradedMethods   []models.MethodID        `json:"degraded_methods,omitempty"`
	Warnings          []string                 `json:"warnings,omitempty"`
	Cached            bool                     `json:"cached"`
	TookMs            int64                    `json:"took_ms"`
}

// Stats is the combined operational view exposed at /api/v1/stats.
type Stats struct {
	Cache   cache.Stats        `json:"cache"`
	Context convctx.StoreStats `json:"context"`
	Catalog int                `json:"catalog_products"`
}

// cachedSearch is the portion of a response worth caching. Presentation text
// is recomputed on hit; it is a pure function of the cached fields.
type cachedSearch struct {
	Results           []models.FusedResult `json:"results"`
	Alternatives      []models.Alternative `json:"alternatives,omitempty"`
	OverallConfidence float64              `json:"overall_confidence"`
	DegradedMethods   []models.MethodID    `json:"degraded_methods,omitempty"`
}

// Engine wires resolution, dispatch, fusion, presentation and conversation
// state into one pipeline. Degraded collaborators lower quality; only an
// unusable request fails the call.
type Engine struct {
	catalog    *catalog.Catalog
	store      *convctx.Store
	detector   *convctx.TopicDetector
	resolver   *convctx.QueryResolver
	dispatcher *search.Dispatcher
	fusion     *search.FusionEngine
	presenter  *search.Presenter
	cache      *cache.ContextAwareCache
	slow       *observability.SlowQueryDetector
	cfg        config.SearchConfig
	logger     *zap.Logger
}

type Deps struct {
	Catalog    *catalog.Catalog
	Store      *convctx.Store
	Detector   *convctx.TopicDetector
	Resolver   *convctx.QueryResolver
	Dispatcher *search.Dispatcher
	Fusion     *search.FusionEngine
	Presenter  *search.Presenter
	Cache      *cache.ContextAwareCache
	SlowQuery  *observability.SlowQueryDetector
}

func New(deps Deps, cfg config.SearchConfig, logger *zap.Logger) *Engine {
	return &Engine{
		catalog:    deps.Catalog,
		store:      deps.Store,
		detector:   deps.Detector,
		resolver:   deps.Resolver,
		dispatcher: deps.Dispatcher,
		fusion:     deps.Fusion,
		presenter:  deps.Presenter,
		cache:      deps.Cache,
		slow:       deps.SlowQuery,
		cfg:        cfg,
		logger:     logger,
	}
}

// Search runs the full pipeline for one conversational query.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "engine.Search")
	defer span.End()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		observability.SearchRequestsTotal.WithLabelValues("invalid").Inc()
		return nil, &EngineError{Kind: KindInvalidQuery, Op: "search", Err: errors.New("empty query")}
	}
	if req.SessionID == "" {
		observability.SearchRequestsTotal.WithLabelValues("invalid").Inc()
		return nil, &EngineError{Kind: KindInvalidQuery, Op: "search", Err: errors.New("session_id required")}
	}
	limit := e.clampLimit(req.Limit)

	conv := e.sessionSnapshot(req.SessionID)

	topicChange := e.detector.Detect(query, &conv)
	resolved := e.resolver.Resolve(query, &conv)

	// Follow-ups and pronoun references stay on the current topic even when
	// the detector sees no word overlap with it.
	followUp := resolved.Type == models.QueryFollowUp || resolved.Type == models.QueryImplicitReference
	if topicChange.Changed && !followUp {
		e.store.ApplyTransition(req.SessionID, topicChange, topicChange.NewTopic)
		e.cache.InvalidateContext(ctx, req.SessionID, models.EventTopicSwitch, "")
		conv = e.sessionSnapshot(req.SessionID)
	}

	resp := &SearchResponse{
		Query:       query,
		SessionID:   req.SessionID,
		Resolved:    resolved,
		TopicChange: topicChange,
	}

	cacheKey := "search:" + resolved.Resolved
	if payload, ok := e.cache.Get(ctx, cacheKey, models.CacheSearchResult, &conv); ok {
		var cached cachedSearch
		if err := json.Unmarshal(payload, &cached); err != nil {
			e.logger.Warn("discarding undecodable cache entry", zap.String("key", cacheKey), zap.Error(err))
		} else {
			e.fill(resp, cached, true)
			e.finishTurn(ctx, req.SessionID, query, resp)
			e.observe(ctx, resp, resolved, start, "ok")
			return resp, nil
		}
	}

	dispatch := e.dispatcher.Dispatch(ctx, resolved.Resolved, e.catalog.Products(), limit)

	fused := e.fusion.Fuse(dispatch.PerMethod, resolved.Resolved)
	fused = e.fusion.ValidateAndFilter(fused)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	overall := e.fusion.OverallConfidence(fused)
	observability.FusionConfidence.Observe(overall)

	var alternatives []models.Alternative
	if len(fused) == 0 || overall < 0.5 {
		alternatives = e.fusion.GenerateAlternatives(resolved.Resolved)
	}

	result := cachedSearch{
		Results:           fused,
		Alternatives:      alternatives,
		OverallConfidence: overall,
		DegradedMethods:   dispatch.Degraded,
	}
	e.fill(resp, result, false)
	e.finishTurn(ctx, req.SessionID, query, resp)

	// The cache key is derived from the post-turn context so an identical
	// follow-up in the same conversational state hits.
	conv = e.sessionSnapshot(req.SessionID)
	if payload, err := json.Marshal(result); err == nil {
		if err := e.cache.Set(ctx, cacheKey, payload, models.CacheSearchResult, &conv); err != nil {
			resp.Warnings = append(resp.Warnings, string(KindCacheUnavailable))
			e.logger.Warn("cache set failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}

	status := "ok"
	if len(dispatch.Degraded) == len(models.AllMethods()) {
		status = "degraded"
	}
	e.observe(ctx, resp, resolved, start, status)
	return resp, nil
}

// fill copies search output into the response and renders the presentation.
func (e *Engine) fill(resp *SearchResponse, result cachedSearch, cached bool) {
	resp.Results = result.Results
	resp.Alternatives = result.Alternatives
	resp.OverallConfidence = result.OverallConfidence
	resp.DegradedMethods = result.DegradedMethods
	resp.Cached = cached
	resp.Presentation = e.presenter.Present(result.Results, result.Alternatives, result.OverallConfidence)
	for _, m := range result.DegradedMethods {
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("%s: %s", KindMethodDegraded, m))
	}
}

// finishTurn records the exchange and folds the top result back into the
// conversation so follow-ups can reference it.
func (e *Engine) finishTurn(ctx context.Context, sessionID, query string, resp *SearchResponse) {
	e.store.RecordTurn(sessionID, query, resp.Presentation.Summary, "")

	if len(resp.Results) == 0 {
		return
	}
	top := resp.Results[0]

	conv := e.sessionSnapshot(sessionID)
	entityID := "product_" + top.Product.ID
	if last, ok := conv.LastProduct(); !ok || last.ID != entityID {
		e.store.StoreEntity(sessionID, models.ContextEntity{
			ID:         entityID,
			Type:       models.EntityProduct,
			Value:      top.Product.Name,
			Confidence: top.Confidence,
			Origin:     models.ContextProductInquiry,
		})
		e.cache.InvalidateContext(ctx, sessionID, models.EventNewProduct, "")
	}
}

func (e *Engine) observe(ctx context.Context, resp *SearchResponse, resolved models.ResolvedQuery, start time.Time, status string) {
	elapsed := time.Since(start)
	resp.TookMs = elapsed.Milliseconds()
	observability.SearchRequestsTotal.WithLabelValues(status).Inc()
	observability.SearchRequestDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	e.slow.Intercept(ctx, resp.Query, string(resolved.Type), elapsed, len(resp.Results), len(resp.DegradedMethods))
}

// Resolve rewrites a query against the session context without searching.
func (e *Engine) Resolve(sessionID, query string) (models.ResolvedQuery, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.ResolvedQuery{}, &EngineError{Kind: KindInvalidQuery, Op: "resolve", Err: errors.New("empty query")}
	}
	conv := e.sessionSnapshot(sessionID)
	return e.resolver.Resolve(query, &conv), nil
}

// DetectTopicChange classifies a query against the session topic without
// applying the transition.
func (e *Engine) DetectTopicChange(sessionID, query string) (models.TopicChangeResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.TopicChangeResult{}, &EngineError{Kind: KindInvalidQuery, Op: "topic-change", Err: errors.New("empty query")}
	}
	conv := e.sessionSnapshot(sessionID)
	return e.detector.Detect(query, &conv), nil
}

// ContextSummary exposes the compact per-session view.
func (e *Engine) ContextSummary(sessionID string) convctx.ContextSummary {
	return e.store.Summary(sessionID)
}

// RecordTurn lets conversation collaborators feed exchanges that did not go
// through Search.
func (e *Engine) RecordTurn(sessionID, userMessage, botResponse string, contextType models.ContextType) (models.ConversationTurn, error) {
	if strings.TrimSpace(userMessage) == "" {
		return models.ConversationTurn{}, &EngineError{Kind: KindInvalidQuery, Op: "record-turn", Err: errors.New("empty user message")}
	}
	return e.store.RecordTurn(sessionID, userMessage, botResponse, contextType), nil
}

// ResetSession drops all conversation state and cached entries for a session.
func (e *Engine) ResetSession(ctx context.Context, sessionID string) {
	e.store.Clear(sessionID)
	e.cache.InvalidateContext(ctx, sessionID, models.EventSessionReset, "")
}

// Stats aggregates the operational counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Cache:   e.cache.Stats(),
		Context: e.store.Stats(),
		Catalog: e.catalog.Len(),
	}
}

// sessionSnapshot returns a private copy of the session, creating the
// session first when it does not exist yet.
func (e *Engine) sessionSnapshot(sessionID string) models.ConversationContext {
	if conv, ok := e.store.Snapshot(sessionID); ok {
		return conv
	}
	e.store.Get(sessionID)
	conv, _ := e.store.Snapshot(sessionID)
	return conv
}

func (e *Engine) clampLimit(limit int) int {
	if limit <= 0 {
		return e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		return e.cfg.MaxLimit
	}
	return limit
}
