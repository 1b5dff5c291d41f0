package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eakyurek/context-search/internal/feature"
	"github.com/eakyurek/context-search/internal/models"
)

// Catalog is the in-memory product collection the search methods run over.
// Products are enriched at load time: features are extracted once from each
// product name and folded back into the product's searchable text, so the
// per-query hot path never re-derives synonyms for the catalog side.
type Catalog struct {
	products []models.Product
	byID     map[string]int
	features map[string][]models.Feature
	logger   *zap.Logger
}

// Load reads a JSON array of products from path, validates it and
// pre-extracts features for every product.
func Load(path string, extractor *feature.Extractor, logger *zap.Logger) (*Catalog, error) {
	start := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	var raw []models.Product
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing catalog file %s: %w", path, err)
	}

	c := &Catalog{
		byID:     make(map[string]int, len(raw)),
		features: make(map[string][]models.Feature, len(raw)),
		logger:   logger,
	}

	skipped := 0
	for _, p := range raw {
		if p.ID == "" || p.Name == "" {
			skipped++
			logger.Warn("skipping invalid catalog entry",
				zap.String("id", p.ID),
				zap.String("name", p.Name))
			continue
		}
		if _, dup := c.byID[p.ID]; dup {
			skipped++
			logger.Warn("skipping duplicate product id", zap.String("id", p.ID))
			continue
		}

		features := extractor.Extract(p.Name)
		c.features[p.ID] = features
		enhance(&p, features)

		c.byID[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}

	logger.Info("catalog loaded",
		zap.String("path", path),
		zap.Int("products", len(c.products)),
		zap.Int("skipped", skipped),
		zap.Duration("duration", time.Since(start)))

	return c, nil
}

// enhance appends the extracted feature values and their synonyms to the
// product's searchable attributes. The name, category and color fields are
// already part of the search text and are not repeated here.
func enhance(p *models.Product, features []models.Feature) {
	if len(features) == 0 {
		return
	}

	var parts []string
	seen := make(map[string]struct{})
	add := func(word string) {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			return
		}
		if _, ok := seen[word]; ok {
			return
		}
		seen[word] = struct{}{}
		parts = append(parts, word)
	}

	for _, f := range features {
		add(f.Value)
		for _, s := range f.Synonyms {
			add(s)
		}
	}

	if p.Attributes == nil {
		p.Attributes = make(map[string]string, 1)
	}
	p.Attributes["search_text"] = strings.Join(parts, " ")
}

// Products returns the loaded catalog. Callers must not mutate the slice.
func (c *Catalog) Products() []models.Product {
	return c.products
}

// Product looks a product up by id.
func (c *Catalog) Product(id string) (models.Product, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return models.Product{}, false
	}
	return c.products[idx], true
}

// Features returns the pre-extracted features for a product id.
func (c *Catalog) Features(id string) []models.Feature {
	return c.features[id]
}

func (c *Catalog) Len() int {
	return len(c.products)
}
