package search

import (
	"fmt"

	"github.com/eakyurek/context-search/internal/models"
)

// ConfidenceTier buckets a continuous confidence score.
type ConfidenceTier string

const (
	TierVeryHigh ConfidenceTier = "very_high"
	TierHigh     ConfidenceTier = "high"
	TierMedium   ConfidenceTier = "medium"
	TierLow      ConfidenceTier = "low"
	TierVeryLow  ConfidenceTier = "very_low"
)

// PresentationMode decides how many results are shown and with how much
// explanation.
type PresentationMode string

const (
	ModeSingleBest        PresentationMode = "single_best"
	ModeMultipleOptions   PresentationMode = "multiple_options"
	ModeAlternativesFocus PresentationMode = "alternatives_focus"
	ModeExplanationHeavy  PresentationMode = "explanation_heavy"
)

type tierTemplate struct {
	Intro          string
	ConfidenceText string
	Guidance       string
}

var tierTemplates = map[ConfidenceTier]tierTemplate{
	TierVeryHigh: {
		Intro:          "Tam olarak aradığınız ürünü bulduk:",
		ConfidenceText: "Çok yüksek eşleşme",
		Guidance:       "Bu ürün arama kriterlerinize mükemmel uyuyor.",
	},
	TierHigh: {
		Intro:          "Size uygun olabilecek ürünü bulduk:",
		ConfidenceText: "Yüksek eşleşme",
		Guidance:       "Bu ürün arama kriterlerinizin çoğuna uyuyor.",
	},
	TierMedium: {
		Intro:          "Benzer özellikli ürünler buldum:",
		ConfidenceText: "Orta seviye eşleşme",
		Guidance:       "Bu ürünler kısmen arama kriterlerinize uyuyor.",
	},
	TierLow: {
		Intro:          "Yakın sonuçlar buldum, ancak tam eşleşme değil:",
		ConfidenceText: "Düşük eşleşme",
		Guidance:       "Bu ürünler arama kriterlerinize kısmen uyuyor. Daha spesifik arama yapabilirsiniz.",
	},
	TierVeryLow: {
		Intro:          "Arama kriterlerinize tam uygun ürün bulamadım:",
		ConfidenceText: "Çok düşük eşleşme",
		Guidance:       "Farklı arama terimleri deneyebilir veya alternatif önerilere bakabilirsiniz.",
	},
}

// PresentedResult is one fused result wrapped with its presentation texts.
type PresentedResult struct {
	Result         models.FusedResult `json:"result"`
	Tier           ConfidenceTier     `json:"tier"`
	Text           string             `json:"text"`
	ConfidenceText string             `json:"confidence_text"`
	Guidance       string             `json:"guidance"`
}

// Presentation is the user-facing rendering of one search.
type Presentation struct {
	Mode              PresentationMode     `json:"mode"`
	Results           []PresentedResult    `json:"results"`
	Alternatives      []models.Alternative `json:"alternatives"`
	OverallConfidence float64              `json:"overall_confidence"`
	Summary           string               `json:"summary"`
	Guidance          string               `json:"guidance"`
}

// Presenter buckets fused results into tiers and renders guidance text.
// Pure function of its inputs; no state.
type Presenter struct{}

func NewPresenter() *Presenter { return &Presenter{} }

// Tier maps a confidence score to its presentation tier.
func (p *Presenter) Tier(confidence float64) ConfidenceTier {
	switch {
	case confidence >= 0.9:
		return TierVeryHigh
	case confidence >= 0.7:
		return TierHigh
	case confidence >= 0.5:
		return TierMedium
	case confidence >= 0.3:
		return TierLow
	default:
		return TierVeryLow
	}
}

// Mode selects how results are shown from the result count and the overall
// confidence.
func (p *Presenter) Mode(resultCount int, overallConfidence float64) PresentationMode {
	switch {
	case resultCount == 0:
		return ModeAlternativesFocus
	case overallConfidence >= 0.8:
		return ModeSingleBest
	case overallConfidence >= 0.5 && resultCount >= 2:
		return ModeMultipleOptions
	case overallConfidence < 0.5:
		return ModeAlternativesFocus
	default:
		return ModeExplanationHeavy
	}
}

// Present renders fused results into tiers and texts.
func (p *Presenter) Present(results []models.FusedResult, alternatives []models.Alternative, overallConfidence float64) *Presentation {
	mode := p.Mode(len(results), overallConfidence)

	var keep int
	switch mode {
	case ModeSingleBest:
		keep = 1
	case ModeMultipleOptions:
		keep = 3
	default:
		keep = 5
	}
	if keep > len(results) {
		keep = len(results)
	}

	presented := make([]PresentedResult, 0, keep)
	for _, r := range results[:keep] {
		tier := p.Tier(r.Confidence)
		tpl := tierTemplates[tier]
		presented = append(presented, PresentedResult{
			Result:         r,
			Tier:           tier,
			Text:           fmt.Sprintf("%s %s (%.2f TL)", tpl.Intro, r.Product.Name, r.Product.Price),
			ConfidenceText: tpl.ConfidenceText,
			Guidance:       tpl.Guidance,
		})
	}

	return &Presentation{
		Mode:              mode,
		Results:           presented,
		Alternatives:      alternatives,
		OverallConfidence: overallConfidence,
		Summary:           p.summary(len(presented), overallConfidence),
		Guidance:          tierTemplates[p.Tier(overallConfidence)].Guidance,
	}
}

func (p *Presenter) summary(count int, confidence float64) string {
	if count == 0 {
		return "Aramanıza uygun ürün bulunamadı."
	}
	tpl := tierTemplates[p.Tier(confidence)]
	return fmt.Sprintf("%s %d sonuç listelendi.", tpl.ConfidenceText+".", count)
}
