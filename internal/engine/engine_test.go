package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/eakyurek/context-search/internal/cache"
	"github.com/eakyurek/context-search/internal/catalog"
	"github.com/eakyurek/context-search/internal/config"
	"github.com/eakyurek/context-search/internal/convctx"
	"github.com/eakyurek/context-search/internal/feature"
	"github.com/eakyurek/context-search/internal/models"
	"github.com/eakyurek/context-search/internal/observability"
	"github.com/eakyurek/context-search/internal/search"
	"github.com/eakyurek/context-search/internal/textnorm"
)

const testCatalog = `[
	{"id": "p1", "name": "Siyah Dantelli Gecelik", "price": 499.9, "stock": 10, "category": "gecelik"},
	{"id": "p2", "name": "Kırmızı Saten Pijama Takımı", "price": 899.0, "stock": 4, "category": "pijama"},
	{"id": "p3", "name": "Beyaz Hamile Geceliği", "price": 649.5, "stock": 7, "category": "gecelik"}
]`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	path := filepath.Join(t.TempDir(), "products.json")
	if err := os.WriteFile(path, []byte(testCatalog), 0o600); err != nil {
		t.Fatal(err)
	}

	logger := zap.NewNop()
	cfg := config.DefaultConfig()

	normalizer := textnorm.NewNormalizer()
	extractor := feature.NewExtractor(normalizer)

	cat, err := catalog.Load(path, extractor, logger)
	if err != nil {
		t.Fatalf("loading test catalog: %v", err)
	}

	methods := []search.Method{
		search.NewAttributeMethod(extractor, normalizer, cfg.Search.AttributeThreshold),
		search.NewFuzzyMethod(normalizer, cfg.Search.FuzzyThreshold),
		search.NewKeywordMethod(normalizer, cfg.Search.KeywordThreshold),
		search.NewFeatureWeightedMethod(extractor, cfg.Search.FeatureThreshold),
	}

	deps := Deps{
		Catalog:    cat,
		Store:      convctx.NewStore(cfg.Context, extractor, logger),
		Detector:   convctx.NewTopicDetector(extractor, normalizer, logger),
		Resolver:   convctx.NewQueryResolver(extractor, logger),
		Dispatcher: search.NewDispatcher(methods, cfg.Search, logger),
		Fusion:     search.NewFusionEngine(cfg.Fusion, extractor, normalizer, logger),
		Presenter:  search.NewPresenter(),
		Cache:      cache.NewContextAwareCache(cfg.Cache, cache.NewMemoryStore(), logger),
		SlowQuery:  observability.NewSlowQueryDetector(time.Second, 2*time.Second, logger),
	}
	return New(deps, cfg.Search, logger)
}

func TestSearch_RejectsUnusableRequests(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name string
		req  SearchRequest
	}{
		{"empty query", SearchRequest{Query: "  ", SessionID: "s1"}},
		{"missing session", SearchRequest{Query: "gecelik"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Search(context.Background(), tt.req)
			if err == nil {
				t.Fatal("expected an error")
			}
			if KindOf(err) != KindInvalidQuery {
				t.Errorf("expected invalid_query, got %q", KindOf(err))
			}
		})
	}
}

func TestSearch_FindsMatchingProduct(t *testing.T) {
	e := newTestEngine(t)

	resp, err := e.Search(context.Background(), SearchRequest{Query: "siyah gecelik", SessionID: "s1"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected results for an in-catalog query")
	}
	if got := resp.Results[0].Product.ID; got != "p1" {
		t.Errorf("expected the black nightgown first, got %s", got)
	}
	if resp.OverallConfidence <= 0 {
		t.Error("expected positive overall confidence")
	}
	if resp.Presentation == nil || len(resp.Presentation.Results) == 0 {
		t.Error("expected a rendered presentation")
	}
	if resp.Cached {
		t.Error("first search cannot be a cache hit")
	}
}

func TestSearch_NoMatchIsNotAnError(t *testing.T) {
	e := newTestEngine(t)

	resp, err := e.Search(context.Background(), SearchRequest{Query: "zzzz qqqq", SessionID: "s1"})
	if err != nil {
		t.Fatalf("a fruitless search must not fail: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected no results, got %d", len(resp.Results))
	}
	if resp.Presentation.Mode != search.ModeAlternativesFocus {
		t.Errorf("expected alternatives focus, got %s", resp.Presentation.Mode)
	}
	if len(resp.Alternatives) == 0 {
		t.Error("expected alternative suggestions for a fruitless search")
	}
}

func TestSearch_RepeatedQueryHitsCache(t *testing.T) {
	e := newTestEngine(t)
	req := SearchRequest{Query: "siyah gecelik", SessionID: "s1"}

	first, err := e.Search(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Search(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	if !second.Cached {
		t.Error("identical query in an unchanged context should hit the cache")
	}
	if len(second.Results) != len(first.Results) {
		t.Errorf("cached results differ: %d vs %d", len(second.Results), len(first.Results))
	}
}

func TestSearch_LimitBoundsResults(t *testing.T) {
	e := newTestEngine(t)

	resp, err := e.Search(context.Background(), SearchRequest{Query: "gecelik", SessionID: "s1", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) > 1 {
		t.Errorf("expected at most 1 result, got %d", len(resp.Results))
	}
}

func TestSearch_FollowUpResolvesAgainstPriorResult(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.Search(context.Background(), SearchRequest{Query: "siyah gecelik", SessionID: "s3"}); err != nil {
		t.Fatal(err)
	}

	resp, err := e.Search(context.Background(), SearchRequest{Query: "fiyatı nedir", SessionID: "s3"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Resolved.Type != models.QueryFollowUp {
		t.Fatalf("expected follow_up, got %s", resp.Resolved.Type)
	}
	if !strings.Contains(resp.Resolved.Resolved, "Siyah Dantelli Gecelik") {
		t.Errorf("expected the discussed product in the resolved query, got %q", resp.Resolved.Resolved)
	}
}

func TestResolveAndTopicChange_RequireQuery(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.Resolve("s1", ""); KindOf(err) != KindInvalidQuery {
		t.Errorf("expected invalid_query from Resolve, got %v", err)
	}
	if _, err := e.DetectTopicChange("s1", " "); KindOf(err) != KindInvalidQuery {
		t.Errorf("expected invalid_query from DetectTopicChange, got %v", err)
	}
}

func TestResetSession_DropsStateAndCache(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.Search(context.Background(), SearchRequest{Query: "siyah gecelik", SessionID: "s1"}); err != nil {
		t.Fatal(err)
	}
	if e.Stats().Cache.TotalEntries == 0 {
		t.Fatal("expected cached entries before the reset")
	}

	e.ResetSession(context.Background(), "s1")

	stats := e.Stats()
	if stats.Cache.TotalEntries != 0 {
		t.Errorf("expected the session's cache entries gone, got %d", stats.Cache.TotalEntries)
	}
	if summary := e.ContextSummary("s1"); summary.ConversationTurns != 0 {
		t.Errorf("expected a fresh session after reset, got %d turns", summary.ConversationTurns)
	}
}

func TestStats_ReportsCatalogSize(t *testing.T) {
	e := newTestEngine(t)
	if got := e.Stats().Catalog; got != 3 {
		t.Errorf("expected 3 catalog products, got %d", got)
	}
}
