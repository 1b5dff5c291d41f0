package feature

import (
	"testing"

	"github.com/eakyurek/context-search/internal/models"
	"github.com/eakyurek/context-search/internal/textnorm"
)

func newExtractor() *Extractor {
	return NewExtractor(textnorm.NewNormalizer())
}

func hasFeature(features []models.Feature, category models.FeatureCategory, value string) bool {
	for _, f := range features {
		if f.Category == category && f.Value == value {
			return true
		}
	}
	return false
}

func TestExtract_BasicCategories(t *testing.T) {
	e := newExtractor()

	tests := []struct {
		name     string
		text     string
		category models.FeatureCategory
		value    string
	}{
		{"color", "siyah gecelik", models.CategoryColor, "siyah"},
		{"color english", "black nightgown", models.CategoryColor, "siyah"},
		{"garment type", "siyah gecelik", models.CategoryGarmentType, "gecelik"},
		{"garment type english", "black nightgown", models.CategoryGarmentType, "gecelik"},
		{"material", "dantelli gecelik", models.CategoryMaterial, "dantel"},
		{"target group", "hamile pijama", models.CategoryTargetGroup, "hamile"},
		{"pattern", "çizgili pijama", models.CategoryPattern, "çizgili"},
		{"closure", "düğmeli sabahlık", models.CategoryClosure, "düğmeli"},
		{"style", "dekolteli gecelik", models.CategoryStyle, "dekolteli"},
		{"sleeve", "kolsuz bluz", models.CategorySleeve, "kolsuz"},
		{"inflected garment", "geceliği göster", models.CategoryGarmentType, "gecelik"},
		{"numeric size", "38 beden elbise", models.CategorySize, "numeric_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.text)
			if !hasFeature(got, tt.category, tt.value) {
				t.Errorf("Extract(%q) missing %s/%s, got %v", tt.text, tt.category, tt.value, got)
			}
		})
	}
}

func TestExtract_Empty(t *testing.T) {
	e := newExtractor()
	if got := e.Extract(""); got != nil {
		t.Errorf("expected nil for empty text, got %v", got)
	}
}

func TestExtract_NoDuplicates(t *testing.T) {
	e := newExtractor()

	got := e.Extract("siyah siyah gecelik gecelik")
	type key struct {
		c models.FeatureCategory
		v string
	}
	seen := map[key]bool{}
	for _, f := range got {
		k := key{f.Category, f.Value}
		if seen[k] {
			t.Errorf("duplicate feature %v", k)
		}
		seen[k] = true
	}
}

func TestExtract_CombinationFeatures(t *testing.T) {
	e := newExtractor()

	got := e.Extract("hamile lohusa gecelik")
	if !hasFeature(got, models.CategoryTargetGroup, "hamile_lohusa") {
		t.Errorf("expected hamile_lohusa combination, got %v", got)
	}

	got = e.Extract("dantelli ve tüllü gecelik")
	if !hasFeature(got, models.CategoryMaterial, "dantelli_tüllü") {
		t.Errorf("expected dantelli_tüllü combination, got %v", got)
	}
}

func TestExtract_WeightsAndConfidenceBounds(t *testing.T) {
	e := newExtractor()

	got := e.Extract("siyah dantelli hamile gecelik 38 beden")
	if len(got) == 0 {
		t.Fatal("expected features")
	}
	for _, f := range got {
		if f.Weight < 0 || f.Weight > 1 {
			t.Errorf("weight out of range for %v: %f", f.Value, f.Weight)
		}
		if f.Confidence < 0 || f.Confidence > 1 {
			t.Errorf("confidence out of range for %v: %f", f.Value, f.Confidence)
		}
	}
}

func TestExtract_SortedByImportance(t *testing.T) {
	e := newExtractor()

	got := e.Extract("siyah gecelik")
	if len(got) < 2 {
		t.Fatalf("expected at least 2 features, got %v", got)
	}
	for i := 1; i < len(got); i++ {
		prev := got[i-1].Weight * got[i-1].Confidence
		cur := got[i].Weight * got[i].Confidence
		if cur > prev {
			t.Errorf("features not sorted: %f before %f", prev, cur)
		}
	}
	// Garment type carries the top category weight
	if got[0].Category != models.CategoryGarmentType {
		t.Errorf("expected garment_type first, got %s", got[0].Category)
	}
}

func TestSimilarity(t *testing.T) {
	e := newExtractor()

	a := e.Extract("siyah gecelik")
	b := e.Extract("siyah gecelik")
	c := e.Extract("kırmızı pijama")

	same := e.Similarity(a, b)
	if same < 0.99 {
		t.Errorf("identical feature sets should score ~1, got %f", same)
	}

	diff := e.Similarity(a, c)
	if diff >= same {
		t.Errorf("disjoint sets should score lower: same=%f diff=%f", same, diff)
	}

	if got := e.Similarity(nil, a); got != 0 {
		t.Errorf("empty set should score 0, got %f", got)
	}
}

func TestSimilarity_Bounds(t *testing.T) {
	e := newExtractor()

	a := e.Extract("siyah dantelli hamile gecelik")
	b := e.Extract("beyaz pamuklu pijama takımı")
	got := e.Similarity(a, b)
	if got < 0 || got > 1 {
		t.Errorf("similarity out of range: %f", got)
	}
}
