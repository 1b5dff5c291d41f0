package convctx

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/eakyurek/context-search/internal/config"
	"github.com/eakyurek/context-search/internal/feature"
	"github.com/eakyurek/context-search/internal/models"
	"github.com/eakyurek/context-search/internal/textnorm"
)

func newTestStore() (*Store, *time.Time) {
	cfg := config.DefaultConfig().Context
	n := textnorm.NewNormalizer()
	s := NewStore(cfg, feature.NewExtractor(n), zap.NewNop())

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestStore_GetCreatesSession(t *testing.T) {
	s, _ := newTestStore()

	ctx := s.Get("session-1")
	if ctx.SessionID != "session-1" {
		t.Errorf("unexpected session id %q", ctx.SessionID)
	}
	if ctx.Confidence != 1.0 {
		t.Errorf("fresh context confidence should be 1.0, got %f", ctx.Confidence)
	}
	if ctx.ActiveEntities == nil || ctx.Preferences == nil {
		t.Error("maps must be initialized")
	}
}

func TestStore_SessionExpiresAfterTTL(t *testing.T) {
	s, now := newTestStore()

	s.RecordTurn("session-1", "siyah gecelik arıyorum", "buldum", "")
	if _, ok := s.Snapshot("session-1"); !ok {
		t.Fatal("expected live session")
	}

	*now = now.Add(31 * time.Minute)
	if _, ok := s.Snapshot("session-1"); ok {
		t.Error("session should have expired after the TTL")
	}

	// A fresh context replaces the expired one on next access.
	ctx := s.Get("session-1")
	if len(ctx.History) != 0 {
		t.Errorf("expected empty history after expiry, got %d turns", len(ctx.History))
	}
}

func TestStore_RecordTurnExtractsEntities(t *testing.T) {
	s, _ := newTestStore()

	turn := s.RecordTurn("session-1", "siyah gecelik arıyorum", "size uygun gecelikler buldum", "")
	if len(turn.Entities) == 0 {
		t.Fatal("expected entities extracted from the user message")
	}

	var hasFeature, hasCategory bool
	for _, e := range turn.Entities {
		switch e.Type {
		case models.EntityFeature:
			hasFeature = true
		case models.EntityCategory:
			if e.Value == "gecelik" {
				hasCategory = true
			}
		}
	}
	if !hasFeature {
		t.Error("expected feature entities")
	}
	if !hasCategory {
		t.Error("expected gecelik category entity")
	}
	if turn.Confidence < 0.5 || turn.Confidence > 1 {
		t.Errorf("turn confidence out of range: %f", turn.Confidence)
	}

	ctx := s.Get("session-1")
	if ctx.CurrentTopic != "gecelik" {
		t.Errorf("expected current topic gecelik, got %q", ctx.CurrentTopic)
	}
}

func TestStore_RecordTurnDetectsIntent(t *testing.T) {
	s, _ := newTestStore()

	tests := []struct {
		message string
		intent  string
	}{
		{"fiyat nedir", "price_inquiry"},
		{"stok var mı", "availability_check"},
		{"gecelik ara", "search"},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			turn := s.RecordTurn("intent-session", tt.message, "yanıt", "")
			if turn.Intent != tt.intent {
				t.Errorf("intent = %q, want %q", turn.Intent, tt.intent)
			}
		})
	}
}

func TestStore_HistoryBounded(t *testing.T) {
	s, _ := newTestStore()

	for i := 0; i < 30; i++ {
		s.RecordTurn("session-1", fmt.Sprintf("mesaj %d", i), "yanıt", "")
	}

	ctx := s.Get("session-1")
	if len(ctx.History) != 20 {
		t.Errorf("history should be capped at 20, got %d", len(ctx.History))
	}
	// The newest turns survive.
	last := ctx.History[len(ctx.History)-1]
	if last.UserMessage != "mesaj 29" {
		t.Errorf("expected newest turn kept, got %q", last.UserMessage)
	}
}

func TestStore_ActiveEntitiesBounded(t *testing.T) {
	s, now := newTestStore()

	for i := 0; i < 15; i++ {
		*now = now.Add(time.Second)
		s.StoreEntity("session-1", models.ContextEntity{
			ID:    fmt.Sprintf("entity-%d", i),
			Type:  models.EntityFeature,
			Value: fmt.Sprintf("value-%d", i),
		})
	}

	ctx := s.Get("session-1")
	if len(ctx.ActiveEntities) != 10 {
		t.Errorf("active entities should be capped at 10, got %d", len(ctx.ActiveEntities))
	}
	if _, ok := ctx.ActiveEntities["entity-0"]; ok {
		t.Error("oldest entity should have been evicted")
	}
	if _, ok := ctx.ActiveEntities["entity-14"]; !ok {
		t.Error("newest entity should survive")
	}
}

func TestStore_DiscussedProductsBounded(t *testing.T) {
	s, now := newTestStore()

	for i := 0; i < 8; i++ {
		*now = now.Add(time.Second)
		s.StoreEntity("session-1", models.ContextEntity{
			ID:    fmt.Sprintf("product-%d", i),
			Type:  models.EntityProduct,
			Value: fmt.Sprintf("Ürün %d", i),
		})
	}

	ctx := s.Get("session-1")
	if len(ctx.DiscussedProducts) != 5 {
		t.Errorf("discussed products should be capped at 5, got %d", len(ctx.DiscussedProducts))
	}
	last, ok := ctx.LastProduct()
	if !ok || last.ID != "product-7" {
		t.Errorf("expected product-7 last, got %v", last.ID)
	}
}

func TestStore_ProductReplacesByID(t *testing.T) {
	s, now := newTestStore()

	s.StoreEntity("session-1", models.ContextEntity{ID: "p1", Type: models.EntityProduct, Value: "Siyah Gecelik"})
	*now = now.Add(time.Second)
	s.StoreEntity("session-1", models.ContextEntity{ID: "p2", Type: models.EntityProduct, Value: "Beyaz Pijama"})
	*now = now.Add(time.Second)
	s.StoreEntity("session-1", models.ContextEntity{ID: "p1", Type: models.EntityProduct, Value: "Siyah Gecelik"})

	ctx := s.Get("session-1")
	if len(ctx.DiscussedProducts) != 2 {
		t.Fatalf("re-mentioned product must replace, not duplicate: got %d", len(ctx.DiscussedProducts))
	}
	last, _ := ctx.LastProduct()
	if last.ID != "p1" {
		t.Errorf("re-mentioned product should move to the end, got %s", last.ID)
	}
}

func TestStore_ApplyTransition(t *testing.T) {
	s, _ := newTestStore()

	seed := func() {
		s.Clear("session-1")
		s.SetPreference("session-1", "color", "siyah")
		s.StoreEntity("session-1", models.ContextEntity{ID: "p1", Type: models.EntityProduct, Value: "Siyah Gecelik", Origin: models.ContextProductInquiry})
	}

	t.Run("full reset wipes entities but keeps preferences", func(t *testing.T) {
		seed()
		s.ApplyTransition("session-1", models.TopicChangeResult{Strategy: models.StrategyFullReset}, "pijama")
		ctx := s.Get("session-1")
		if len(ctx.ActiveEntities) != 0 || len(ctx.DiscussedProducts) != 0 {
			t.Error("full reset should drop entities and products")
		}
		if ctx.Preferences["color"] != "siyah" {
			t.Error("preferences must survive a full reset")
		}
		if ctx.CurrentTopic != "pijama" {
			t.Errorf("topic should switch, got %q", ctx.CurrentTopic)
		}
	})

	t.Run("partial reset keeps products", func(t *testing.T) {
		seed()
		s.ApplyTransition("session-1", models.TopicChangeResult{Strategy: models.StrategyPartialReset}, "pijama")
		ctx := s.Get("session-1")
		if len(ctx.ActiveEntities) != 0 {
			t.Error("partial reset should drop active entities")
		}
		if len(ctx.DiscussedProducts) != 1 {
			t.Error("partial reset should keep discussed products")
		}
	})

	t.Run("preserve keeps everything", func(t *testing.T) {
		seed()
		s.ApplyTransition("session-1", models.TopicChangeResult{Strategy: models.StrategyPreserveContext}, "gecelik")
		ctx := s.Get("session-1")
		if len(ctx.ActiveEntities) != 1 || len(ctx.DiscussedProducts) != 1 {
			t.Error("preserve should keep all context")
		}
	})
}

func TestStore_Stats(t *testing.T) {
	s, _ := newTestStore()

	s.RecordTurn("a", "siyah gecelik", "yanıt", "")
	s.RecordTurn("b", "beyaz pijama", "yanıt", "")

	stats := s.Stats()
	if stats.ActiveSessions != 2 {
		t.Errorf("expected 2 active sessions, got %d", stats.ActiveSessions)
	}
	if stats.TotalTurns != 2 {
		t.Errorf("expected 2 turns, got %d", stats.TotalTurns)
	}
	if stats.TotalEntities == 0 {
		t.Error("expected entities tracked")
	}
}

func TestStore_ClearAndSummary(t *testing.T) {
	s, _ := newTestStore()

	s.RecordTurn("session-1", "siyah gecelik arıyorum", "buldum", "")
	summary := s.Summary("session-1")
	if summary.ConversationTurns != 1 {
		t.Errorf("expected 1 turn in summary, got %d", summary.ConversationTurns)
	}
	if summary.CurrentTopic != "gecelik" {
		t.Errorf("expected topic gecelik, got %q", summary.CurrentTopic)
	}

	s.Clear("session-1")
	if _, ok := s.Snapshot("session-1"); ok {
		t.Error("snapshot should miss after clear")
	}
}
