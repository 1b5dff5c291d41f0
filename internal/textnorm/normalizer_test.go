package textnorm

import (
	"strings"
	"testing"
)

func TestNormalize_IrregularForms(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"accusative nightgown", "geceliği", "gecelik"},
		{"genitive nightgown", "geceliğin", "gecelik"},
		{"misspelled nightgown", "gecelig", "gecelik"},
		{"accusative pajama", "pijamayı", "pijama"},
		{"misspelled pregnant", "hamle", "hamile"},
		{"misspelled lace", "danteli", "dantelli"},
		{"phrase with inflection", "kırmızı geceliği göster", "kırmızı gecelik göster"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.input)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize_SuffixStripping(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		input string
		want  string
	}{
		{"elbiselerin", "elbise"},
		{"gömlekler", "gömlek"},
		{"mağazadan", "mağaza"},
	}

	for _, tt := range tests {
		got := n.Normalize(tt.input)
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := NewNormalizer()

	inputs := []string{"gecelik", "pijama", "sabahlık", "siyah gecelik", "hamile", "dantelli takım"}
	for _, in := range inputs {
		once := n.Normalize(in)
		twice := n.Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestNormalize_Empty(t *testing.T) {
	n := NewNormalizer()
	if got := n.Normalize(""); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestNormalize_Lowercases(t *testing.T) {
	n := NewNormalizer()
	if got := n.Normalize("SİYAH GECELİK"); got != strings.ToLower(got) {
		t.Errorf("expected lowercased output, got %q", got)
	}
}

func TestRootWords_DropsStopwordsAndShortWords(t *testing.T) {
	n := NewNormalizer()

	roots := n.RootWords("siyah ve dantelli bir gecelik var mı")
	for _, r := range roots {
		if r == "ve" || r == "bir" || r == "var" {
			t.Errorf("stopword %q survived in roots %v", r, roots)
		}
		if len([]rune(r)) <= 2 {
			t.Errorf("short word %q survived in roots %v", r, roots)
		}
	}
	if len(roots) == 0 {
		t.Fatal("expected non-empty roots")
	}
}

func TestSimilarity(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "siyah gecelik", "siyah gecelik", 1, 1},
		{"identical after normalization", "siyah geceliği", "siyah gecelik", 1, 1},
		{"partial overlap", "siyah gecelik", "siyah pijama", 0.2, 0.5},
		{"disjoint", "siyah gecelik", "kırmızı elbise", 0, 0},
		{"both empty", "", "", 1, 1},
		{"one empty", "gecelik", "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Similarity(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("Similarity(%q, %q) = %f, want in [%f, %f]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}

func TestExpandQuery(t *testing.T) {
	n := NewNormalizer()

	expanded := n.ExpandQuery("siyah gecelik")
	if len(expanded) < 2 {
		t.Fatalf("expected synonym variants, got %v", expanded)
	}
	if expanded[0] != "siyah gecelik" {
		t.Errorf("expected original query first, got %q", expanded[0])
	}

	seen := map[string]bool{}
	for _, q := range expanded {
		if seen[q] {
			t.Errorf("duplicate expansion %q", q)
		}
		seen[q] = true
	}
}

func TestExpandQuery_NoSynonyms(t *testing.T) {
	n := NewNormalizer()

	expanded := n.ExpandQuery("xyz")
	if len(expanded) != 1 || expanded[0] != "xyz" {
		t.Errorf("expected only original query, got %v", expanded)
	}
}

func TestSynonyms(t *testing.T) {
	n := NewNormalizer()

	if syns := n.Synonyms("gecelik"); len(syns) == 0 {
		t.Error("expected synonyms for gecelik")
	}
	// Inflected form should resolve through normalization
	if syns := n.Synonyms("geceliği"); len(syns) == 0 {
		t.Error("expected synonyms for inflected form")
	}
	if syns := n.Synonyms("nonexistent"); syns != nil {
		t.Errorf("expected nil for unknown word, got %v", syns)
	}
}

func TestIsStopword(t *testing.T) {
	n := NewNormalizer()

	if !n.IsStopword("ve") {
		t.Error("expected 've' to be a stopword")
	}
	if n.IsStopword("gecelik") {
		t.Error("expected 'gecelik' not to be a stopword")
	}
}
