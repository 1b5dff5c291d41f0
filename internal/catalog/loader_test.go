package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/eakyurek/context-search/internal/feature"
	"github.com/eakyurek/context-search/internal/textnorm"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestExtractor() *feature.Extractor {
	return feature.NewExtractor(textnorm.NewNormalizer())
}

func TestLoad_ValidCatalog(t *testing.T) {
	path := writeCatalog(t, `[
		{"id": "p1", "name": "Siyah Dantelli Gecelik", "price": 499.9, "stock": 12, "category": "gecelik"},
		{"id": "p2", "name": "Kırmızı Saten Pijama Takımı", "price": 899.0, "stock": 3, "category": "pijama"}
	]`)

	c, err := Load(path, newTestExtractor(), zap.NewNop())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 products, got %d", c.Len())
	}

	p, ok := c.Product("p1")
	if !ok {
		t.Fatal("expected p1 present")
	}
	if p.Name != "Siyah Dantelli Gecelik" {
		t.Errorf("unexpected product: %+v", p)
	}
}

func TestLoad_PreExtractsFeatures(t *testing.T) {
	path := writeCatalog(t, `[
		{"id": "p1", "name": "Siyah Dantelli Gecelik", "category": "gecelik"}
	]`)

	c, err := Load(path, newTestExtractor(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	features := c.Features("p1")
	if len(features) == 0 {
		t.Fatal("expected pre-extracted features")
	}
	values := make(map[string]bool)
	for _, f := range features {
		values[f.Value] = true
	}
	if !values["siyah"] {
		t.Errorf("expected color feature extracted, got %v", values)
	}

	p, _ := c.Product("p1")
	searchText := p.Attributes["search_text"]
	if !strings.Contains(searchText, "siyah") {
		t.Errorf("expected enhanced search text to carry the color, got %q", searchText)
	}
	if !strings.Contains(searchText, "black") {
		t.Errorf("expected synonyms folded into search text, got %q", searchText)
	}
}

func TestLoad_SkipsInvalidAndDuplicateEntries(t *testing.T) {
	path := writeCatalog(t, `[
		{"id": "p1", "name": "Siyah Gecelik"},
		{"id": "", "name": "İsimsiz"},
		{"id": "p2", "name": ""},
		{"id": "p1", "name": "Kopya Gecelik"}
	]`)

	c, err := Load(path, newTestExtractor(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected only the valid entry kept, got %d", c.Len())
	}
	p, _ := c.Product("p1")
	if p.Name != "Siyah Gecelik" {
		t.Errorf("duplicate id should not replace the original, got %q", p.Name)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json"), newTestExtractor(), zap.NewNop()); err == nil {
		t.Error("expected error for a missing file")
	}

	path := writeCatalog(t, `{"not": "an array"}`)
	if _, err := Load(path, newTestExtractor(), zap.NewNop()); err == nil {
		t.Error("expected error for malformed catalog")
	}
}
