package search

import (
	"context"
	"testing"

	"github.com/eakyurek/context-search/internal/feature"
	"github.com/eakyurek/context-search/internal/models"
	"github.com/eakyurek/context-search/internal/textnorm"
)

var testCatalog = []models.Product{
	{ID: "p1", Name: "Siyah Askılı Gecelik", Price: 299.90, Stock: 5, Category: "gecelik", Color: "siyah"},
	{ID: "p2", Name: "Beyaz Pamuklu Pijama Takımı", Price: 399.90, Stock: 8, Category: "pijama", Color: "beyaz"},
	{ID: "p3", Name: "Kırmızı Saten Sabahlık", Price: 549.90, Stock: 2, Category: "sabahlık", Color: "kırmızı"},
	{ID: "p4", Name: "Hamile Lohusa Pijama", Price: 459.90, Stock: 4, Category: "pijama", Color: "pembe"},
	{ID: "p5", Name: "Dantelli Tüllü Gecelik", Price: 629.90, Stock: 3, Category: "gecelik", Color: "bordo"},
}

func testComponents() (*feature.Extractor, *textnorm.Normalizer) {
	n := textnorm.NewNormalizer()
	return feature.NewExtractor(n), n
}

func findProduct(matches []models.SearchMatch, id string) (models.SearchMatch, bool) {
	for _, m := range matches {
		if m.Product.ID == id {
			return m, true
		}
	}
	return models.SearchMatch{}, false
}

func TestAttributeMethod_MatchesBlackNightgown(t *testing.T) {
	e, n := testComponents()
	m := NewAttributeMethod(e, n, 0.2)

	matches, err := m.Search(context.Background(), "siyah gecelik", testCatalog, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected matches for siyah gecelik")
	}
	if matches[0].Product.ID != "p1" {
		t.Errorf("expected p1 first, got %s", matches[0].Product.ID)
	}
	if matches[0].Confidence <= 0 || matches[0].Confidence > 1 {
		t.Errorf("confidence out of range: %f", matches[0].Confidence)
	}
}

func TestAttributeMethod_ComplexQueryPenalty(t *testing.T) {
	e, n := testComponents()
	m := NewAttributeMethod(e, n, 0.0)

	// A three-feature query matching only one feature of a product must
	// score lower than a full match.
	full, err := m.Search(context.Background(), "siyah askılı gecelik", testCatalog, 10)
	if err != nil {
		t.Fatal(err)
	}
	fullMatch, ok := findProduct(full, "p1")
	if !ok {
		t.Fatal("expected p1 in results")
	}
	partial, _ := findProduct(full, "p2")
	if partial.Score >= fullMatch.Score {
		t.Errorf("partial match %f should score below full match %f", partial.Score, fullMatch.Score)
	}
}

func TestFuzzyMethod_ToleratesTypos(t *testing.T) {
	e, n := testComponents()
	_ = e
	m := NewFuzzyMethod(n, 0.6)

	matches, err := m.Search(context.Background(), "siyah geceliik", testCatalog, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := findProduct(matches, "p1"); !ok {
		t.Errorf("expected fuzzy match on p1 despite typo, got %v", matches)
	}
}

func TestFuzzyMethod_ExactSubsetScoresHigh(t *testing.T) {
	_, n := testComponents()
	m := NewFuzzyMethod(n, 0.6)

	matches, err := m.Search(context.Background(), "dantelli gecelik", testCatalog, 10)
	if err != nil {
		t.Fatal(err)
	}
	match, ok := findProduct(matches, "p5")
	if !ok {
		t.Fatal("expected p5 match")
	}
	if match.Score < 0.9 {
		t.Errorf("token subset should score near 1, got %f", match.Score)
	}
}

func TestKeywordMethod_SynonymExpansion(t *testing.T) {
	_, n := testComponents()
	m := NewKeywordMethod(n, 0.5)

	matches, err := m.Search(context.Background(), "siyah gecelik", testCatalog, 10)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := findProduct(matches, "p1"); !ok {
		t.Errorf("expected keyword match on p1, got %v", matches)
	}
	for _, match := range matches {
		if match.Confidence > match.Score {
			t.Errorf("keyword confidence %f should not exceed score %f", match.Confidence, match.Score)
		}
	}
}

func TestFeatureWeightedMethod_NoQueryFeatures(t *testing.T) {
	e, _ := testComponents()
	m := NewFeatureWeightedMethod(e, 0.4)

	matches, err := m.Search(context.Background(), "zzzz qqqq", testCatalog, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches for featureless query, got %v", matches)
	}
}

func TestFeatureWeightedMethod_MatchesByFeatures(t *testing.T) {
	e, _ := testComponents()
	m := NewFeatureWeightedMethod(e, 0.4)

	matches, err := m.Search(context.Background(), "hamile pijama", testCatalog, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) == 0 {
		t.Fatal("expected matches")
	}
	if matches[0].Product.ID != "p4" {
		t.Errorf("expected p4 first, got %s", matches[0].Product.ID)
	}
	if len(matches[0].FeatureMatches) == 0 {
		t.Error("expected feature matches recorded")
	}
}

func TestMethods_RespectLimit(t *testing.T) {
	e, n := testComponents()
	methods := []Method{
		NewAttributeMethod(e, n, 0.0),
		NewFuzzyMethod(n, 0.0),
		NewKeywordMethod(n, 0.0),
		NewFeatureWeightedMethod(e, 0.0),
	}

	for _, m := range methods {
		t.Run(string(m.ID()), func(t *testing.T) {
			matches, err := m.Search(context.Background(), "gecelik", testCatalog, 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(matches) > 2 {
				t.Errorf("expected at most 2 matches, got %d", len(matches))
			}
		})
	}
}

func TestMethods_CancelledContext(t *testing.T) {
	e, n := testComponents()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewAttributeMethod(e, n, 0.2)
	if _, err := m.Search(ctx, "siyah gecelik", testCatalog, 10); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestMethods_EmptyCatalog(t *testing.T) {
	e, n := testComponents()
	methods := []Method{
		NewAttributeMethod(e, n, 0.2),
		NewFuzzyMethod(n, 0.6),
		NewKeywordMethod(n, 0.5),
		NewFeatureWeightedMethod(e, 0.4),
	}

	for _, m := range methods {
		t.Run(string(m.ID()), func(t *testing.T) {
			matches, err := m.Search(context.Background(), "siyah gecelik", nil, 10)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(matches) != 0 {
				t.Errorf("expected no matches on empty catalog, got %d", len(matches))
			}
		})
	}
}

func TestProductText_StableAttributeOrder(t *testing.T) {
	p := models.Product{
		ID:       "p1",
		Name:     "Siyah Askılı Gecelik",
		Category: "gecelik",
		Color:    "siyah",
		Attributes: map[string]string{
			"search_text": "dantelli siyah black",
			"material":    "saten",
			"fit":         "bol kesim",
		},
	}

	want := "Siyah Askılı Gecelik siyah gecelik bol kesim saten dantelli siyah black"
	for i := 0; i < 20; i++ {
		if got := productText(p); got != want {
			t.Fatalf("iteration %d: got %q, want %q", i, got, want)
		}
	}
}
