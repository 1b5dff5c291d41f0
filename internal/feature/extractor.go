package feature

import (
	"regexp"
	"sort"
	"strings"

	"github.com/eakyurek/context-search/internal/models"
	"github.com/eakyurek/context-search/internal/textnorm"
)

// rule maps one alternation pattern to a canonical feature value. Rules are
// evaluated in declaration order within their category.
type rule struct {
	re       *regexp.Regexp
	rawLen   int
	value    string
	synonyms []string
}

// compileRule wraps the alternation in letter/digit boundaries. Go's \b is
// ASCII-only, which breaks on Turkish characters like ı and ç.
func compileRule(pattern, value string, synonyms ...string) rule {
	re := regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + pattern + `)(?:[^\p{L}\p{N}]|$)`)
	return rule{re: re, rawLen: len(pattern), value: value, synonyms: synonyms}
}

type categoryRules struct {
	category models.FeatureCategory
	rules    []rule
}

// combinationRule promotes a multi-feature phrase into a single stronger
// feature.
type combinationRule struct {
	re         *regexp.Regexp
	category   models.FeatureCategory
	value      string
	weight     float64
	confidence float64
	synonyms   []string
}

// Extractor pulls typed features out of free Turkish/English product text.
// All tables are static; an Extractor is safe for concurrent use.
type Extractor struct {
	normalizer   *textnorm.Normalizer
	categories   []categoryRules
	combinations []combinationRule
	weights      map[models.FeatureCategory]float64
}

var categoryWeights = map[models.FeatureCategory]float64{
	models.CategoryGarmentType: 1.0,
	models.CategoryTargetGroup: 0.9,
	models.CategoryStyle:       0.8,
	models.CategoryMaterial:    0.7,
	models.CategoryColor:       0.6,
	models.CategoryPattern:     0.5,
	models.CategoryNeckline:    0.4,
	models.CategorySleeve:      0.4,
	models.CategoryClosure:     0.3,
	models.CategorySize:        0.2,
}

func NewExtractor(normalizer *textnorm.Normalizer) *Extractor {
	return &Extractor{
		normalizer: normalizer,
		categories: []categoryRules{
			{models.CategoryColor, []rule{
				compileRule(`siyah|black`, "siyah", "black", "kara"),
				compileRule(`beyaz|white|ekru`, "beyaz", "white", "ak", "ekru", "krem"),
				compileRule(`kırmızı|red|bordo`, "kırmızı", "red", "al", "bordo"),
				compileRule(`mavi|blue|lacivert|navy`, "mavi", "blue", "lacivert", "navy"),
				compileRule(`yeşil|green`, "yeşil", "green"),
				compileRule(`sarı|yellow|altın|gold`, "sarı", "yellow", "altın"),
				compileRule(`pembe|pink|fuşya`, "pembe", "pink", "fuşya"),
				compileRule(`mor|purple|lila`, "mor", "purple", "lila"),
				compileRule(`gri|gray|grey`, "gri", "gray"),
				compileRule(`kahverengi|brown|bej|beige`, "kahverengi", "brown", "bej"),
				compileRule(`turuncu|orange`, "turuncu", "orange"),
				compileRule(`leopar|leopard`, "leopar"),
			}},
			{models.CategoryStyle, []rule{
				compileRule(`dekolteli|dekolte`, "dekolteli", "dekolte", "açık yakalı"),
				compileRule(`askılı|askı`, "askılı", "strap", "strappy"),
				compileRule(`bol|oversize`, "bol_kesim"),
				compileRule(`dar|slim`, "dar_kesim"),
				compileRule(`maxi`, "uzun"),
				compileRule(`mini`, "kısa"),
				compileRule(`midi|orta`, "orta_boy"),
				compileRule(`yüksek bel(?:li)?`, "yüksek_bel"),
			}},
			{models.CategoryMaterial, []rule{
				compileRule(`pamuk(?:lu)?|cotton`, "pamuk", "cotton"),
				compileRule(`ipek|silk`, "ipek", "silk"),
				compileRule(`saten|satin`, "saten", "satin"),
				compileRule(`dantel(?:li)?|lace`, "dantel", "dantelli", "lace", "güpür"),
				compileRule(`tül(?:lü)?|tulle`, "tül", "tüllü", "tulle"),
				compileRule(`kadife|velvet`, "kadife"),
				compileRule(`viskoz|viscose`, "viskoz"),
				compileRule(`modal`, "modal"),
				compileRule(`bambu|bamboo`, "bambu"),
				compileRule(`polyester`, "polyester"),
			}},
			{models.CategoryPattern, []rule{
				compileRule(`çizgili|striped?`, "çizgili"),
				compileRule(`puantiyeli|noktalı`, "puantiyeli"),
				compileRule(`çiçekli|floral`, "çiçekli"),
				compileRule(`geometrik|geometric`, "geometrik"),
				compileRule(`etnik|ethnic|afrika|african`, "etnik", "afrika"),
				compileRule(`baskılı|printed?`, "baskılı"),
				compileRule(`düz|plain|solid`, "düz"),
				compileRule(`kareli|checkered`, "kareli"),
			}},
			{models.CategoryClosure, []rule{
				compileRule(`düğmeli|buttoned?`, "düğmeli", "button"),
				compileRule(`fermuarlı|zip(?:per)?`, "fermuarlı"),
				compileRule(`bağlamalı|tied?`, "bağlamalı"),
				compileRule(`çıtçıtlı|snap`, "çıtçıtlı"),
				compileRule(`lastikli|elastic`, "lastikli"),
			}},
			{models.CategoryNeckline, []rule{
				compileRule(`v yaka|v neck`, "v_yaka"),
				compileRule(`yuvarlak yaka|round neck`, "yuvarlak_yaka"),
				compileRule(`balık sırt|halter`, "halter"),
				compileRule(`straplez|strapless`, "straplez"),
				compileRule(`göğüs dekolte(?:li)?`, "göğüs_dekolteli"),
				compileRule(`sırt dekolte(?:li)?`, "sırt_dekolteli"),
			}},
			{models.CategorySleeve, []rule{
				compileRule(`kolsuz|sleeveless`, "kolsuz"),
				compileRule(`uzun kol(?:lu)?|long sleeve`, "uzun_kollu"),
				compileRule(`kısa kol(?:lu)?|short sleeve`, "kısa_kollu"),
			}},
			{models.CategoryTargetGroup, []rule{
				compileRule(`hamile|pregnant|maternity`, "hamile", "maternity", "anne adayı"),
				compileRule(`lohusa|nursing|emziren`, "lohusa", "nursing", "emziren"),
				compileRule(`büyük beden|plus size`, "büyük_beden", "plus size"),
				compileRule(`genç|teen(?:ager)?`, "genç"),
				compileRule(`çocuk|kids|child`, "çocuk"),
			}},
			{models.CategoryGarmentType, []rule{
				compileRule(`gecelik|nightgown|nightdress`, "gecelik", "nightgown", "gece elbisesi"),
				compileRule(`pijama|pajama|pyjama`, "pijama", "pajama", "ev kıyafeti"),
				compileRule(`sabahlık|robe|bathrobe`, "sabahlık", "robe"),
				compileRule(`takım|set|suit`, "takım", "set", "kombin"),
				compileRule(`elbise|dress`, "elbise", "dress"),
				compileRule(`bluz|blouse`, "bluz"),
				compileRule(`tişört|t-shirt|tshirt`, "tişört"),
				compileRule(`şort|shorts?`, "şort"),
				compileRule(`pantolon|pants|trousers`, "pantolon"),
				compileRule(`etek|skirt`, "etek"),
				compileRule(`hırka|cardigan`, "hırka"),
			}},
			{models.CategorySize, []rule{
				compileRule(`xs|extra small`, "XS"),
				compileRule(`small`, "S"),
				compileRule(`medium`, "M"),
				compileRule(`large`, "L"),
				compileRule(`xl|extra large`, "XL"),
				compileRule(`xxl|2xl`, "XXL"),
				compileRule(`xxxl|3xl`, "XXXL"),
				compileRule(`\d{2,3}`, "numeric_size"),
			}},
		},
		combinations: []combinationRule{
			{
				re:         regexp.MustCompile(`hamile.*lohusa|lohusa.*hamile`),
				category:   models.CategoryTargetGroup,
				value:      "hamile_lohusa",
				weight:     0.95,
				confidence: 0.9,
				synonyms:   []string{"maternity", "anne"},
			},
			{
				re:         regexp.MustCompile(`göğüs.*sırt.*dekolte|sırt.*göğüs.*dekolte`),
				category:   models.CategoryNeckline,
				value:      "göğüs_sırt_dekolteli",
				weight:     0.8,
				confidence: 0.9,
				synonyms:   []string{"açık yakalı"},
			},
			{
				re:         regexp.MustCompile(`dantelli.*tüllü|tüllü.*dantelli`),
				category:   models.CategoryMaterial,
				value:      "dantelli_tüllü",
				weight:     0.7,
				confidence: 0.8,
				synonyms:   []string{"süslü"},
			},
		},
		weights: categoryWeights,
	}
}

// Extract returns the deduplicated features of the text, sorted by
// weight*confidence descending.
func (e *Extractor) Extract(text string) []models.Feature {
	if text == "" {
		return nil
	}

	// Patterns are tried against both the raw lowercased text and the
	// suffix-stripped form: stripping catches inflections ("geceliği"),
	// the raw pass catches words the stripper mangles ("dekolteli").
	raw := strings.ToLower(strings.TrimSpace(text))
	normalized := e.normalizer.Normalize(text)
	var features []models.Feature

	for _, cat := range e.categories {
		for _, r := range cat.rules {
			matches := r.re.FindAllString(raw, -1)
			if len(matches) == 0 {
				matches = r.re.FindAllString(normalized, -1)
			}
			if len(matches) == 0 {
				continue
			}
			features = append(features, models.Feature{
				Category:   cat.category,
				Value:      r.value,
				Weight:     e.weights[cat.category],
				Confidence: matchConfidence(len(matches), r.rawLen),
				Synonyms:   r.synonyms,
			})
		}
	}

	for _, c := range e.combinations {
		if c.re.MatchString(raw) || c.re.MatchString(normalized) {
			features = append(features, models.Feature{
				Category:   c.category,
				Value:      c.value,
				Weight:     c.weight,
				Confidence: c.confidence,
				Synonyms:   c.synonyms,
			})
		}
	}

	features = dedupe(features)

	sort.SliceStable(features, func(i, j int) bool {
		return features[i].Weight*features[i].Confidence > features[j].Weight*features[j].Confidence
	})
	return features
}

// matchConfidence grows with repeated matches; long alternations get a small
// bonus since they match more specifically.
func matchConfidence(matches, patternLen int) float64 {
	c := float64(matches)*0.3 + 0.7
	if c > 1 {
		c = 1
	}
	if patternLen > 20 {
		c += 0.1
	}
	if c > 1 {
		c = 1
	}
	return c
}

func dedupe(features []models.Feature) []models.Feature {
	type key struct {
		category models.FeatureCategory
		value    string
	}
	seen := make(map[key]struct{}, len(features))
	out := features[:0]
	for _, f := range features {
		k := key{f.Category, f.Value}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Similarity scores the weighted overlap of two feature sets. Direct
// category+value matches count fully; same-category synonym matches count at
// the synonym weight. Result is in [0,1].
func (e *Extractor) Similarity(a, b []models.Feature) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	totalWeight := 0.0
	matched := 0.0
	for _, fa := range a {
		totalWeight += fa.Weight
		best := 0.0
		for _, fb := range b {
			if fa.Category != fb.Category {
				continue
			}
			if fa.Value == fb.Value {
				best = fa.Weight
				break
			}
			if synonymOverlap(fa, fb) {
				if s := fa.Weight * 0.7; s > best {
					best = s
				}
			}
		}
		matched += best
	}
	if totalWeight == 0 {
		return 0
	}
	return matched / totalWeight
}

func synonymOverlap(a, b models.Feature) bool {
	for _, s := range a.Synonyms {
		if s == b.Value {
			return true
		}
	}
	for _, s := range b.Synonyms {
		if s == a.Value {
			return true
		}
	}
	return false
}
