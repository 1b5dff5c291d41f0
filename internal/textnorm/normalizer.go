package textnorm

import (
	"sort"
	"strings"
)

// Normalizer folds Turkish text into a canonical searchable form: lowercase,
// irregular-word replacement, suffix stripping, stopword removal. All tables
// are static; a Normalizer is safe for concurrent use.
type Normalizer struct {
	irregulars map[string]string
	suffixes   []string
	synonyms   map[string][]string
	stopwords  map[string]struct{}
}

// Irregular inflections and frequent misspellings that plain suffix
// stripping gets wrong. Checked before the suffix pass.
var irregularWords = map[string]string{
	"geceliği":  "gecelik",
	"geceliğin": "gecelik",
	"gecelig":   "gecelik",
	"geclik":    "gecelik",
	"pijamayı":  "pijama",
	"pijamanın": "pijama",
	"pjama":     "pijama",
	"elbiseyi":  "elbise",
	"elbisenin": "elbise",
	"sabahlığı": "sabahlık",
	"sabahlığın": "sabahlık",
	"takımı":    "takım",
	"takimi":    "takım",
	"bedeni":    "beden",
	"bedenleri": "beden",
	"rengi":     "renk",
	"renkleri":  "renk",
	"stogu":     "stok",
	"stokta":    "stok",
	"fiyatı":    "fiyat",
	"hamle":     "hamile",
	"danteli":   "dantelli",
	"afirka":    "afrika",
}

// Common Turkish suffixes ordered longest first so that the longest
// matching suffix wins ("elbiselerin" strips to "elbise", not "elbiseleri").
var commonSuffixes = []string{
	"lerini", "larını", "lerinin", "larının",
	"lerimiz", "larımız",
	"lerim", "larım",
	"lerin", "ların",
	"sınız", "siniz", "sunuz", "sünüz",
	"daki", "deki",
	"ler", "lar",
	"dan", "den", "tan", "ten",
	"nın", "nin", "nun", "nün",
	"ına", "ine", "una", "üne",
	"ın", "in", "un", "ün",
	"ım", "im", "um", "üm",
	"da", "de", "ta", "te",
	"a", "e", "ı", "i", "u", "ü",
}

var turkishSynonyms = map[string][]string{
	"gecelik":  {"gece elbisesi", "yatak kıyafeti", "uyku kıyafeti"},
	"pijama":   {"ev kıyafeti", "gece kıyafeti", "uyku takımı"},
	"sabahlık": {"ev önlüğü", "robdöşambr", "ev giysisi"},
	"takım":    {"set", "ikili", "komple"},
	"hamile":   {"lohusa", "anne adayı", "bekleyen"},
	"lohusa":   {"hamile", "yeni anne", "emziren"},
	"dantelli": {"danteli", "güpürlü", "işlemeli"},
	"siyah":    {"kara", "koyu"},
	"beyaz":    {"ak", "ekru", "krem"},
	"kırmızı":  {"al", "bordo"},
	"büyük":    {"geniş", "bol", "battal"},
	"küçük":    {"dar", "mini", "ufak"},
	"ucuz":     {"ekonomik", "uygun", "hesaplı"},
	"pamuklu":  {"pamuk", "koton"},
	"saten":    {"ipeksi", "parlak"},
}

var stopwords = map[string]struct{}{
	"ve": {}, "ile": {}, "için": {}, "bir": {},
	"bu": {}, "şu": {}, "o": {}, "mı": {}, "mi": {}, "mu": {}, "mü": {},
	"var": {}, "acaba": {}, "lütfen": {},
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		irregulars: irregularWords,
		suffixes:   commonSuffixes,
		synonyms:   turkishSynonyms,
		stopwords:  stopwords,
	}
}

// Normalize lowercases, replaces irregular forms and strips suffixes per
// word. Normalizing already-normalized text returns it unchanged.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}

	words := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, n.normalizeWord(w))
	}
	return strings.Join(out, " ")
}

func (n *Normalizer) normalizeWord(word string) string {
	if root, ok := n.irregulars[word]; ok {
		return root
	}
	// A word already in canonical form (a known root of the irregular or
	// synonym tables) is left alone so normalization stays idempotent.
	if n.isCanonical(word) {
		return word
	}

	runes := []rune(word)
	for _, suffix := range n.suffixes {
		sr := []rune(suffix)
		if len(runes) <= len(sr) {
			continue
		}
		if strings.HasSuffix(word, suffix) {
			root := string(runes[:len(runes)-len(sr)])
			if len([]rune(root)) > 2 {
				return root
			}
		}
	}
	return word
}

func (n *Normalizer) isCanonical(word string) bool {
	if _, ok := n.synonyms[word]; ok {
		return true
	}
	for _, root := range n.irregulars {
		if word == root {
			return true
		}
	}
	return false
}

// RootWords normalizes the text and returns its non-stopword roots longer
// than two runes.
func (n *Normalizer) RootWords(text string) []string {
	words := strings.Fields(n.Normalize(text))
	roots := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := n.stopwords[w]; stop {
			continue
		}
		if len([]rune(w)) <= 2 {
			continue
		}
		roots = append(roots, w)
	}
	return roots
}

// Similarity computes the Jaccard overlap of the two texts' root words.
// Returns 1 for identical normalized texts, 0 for disjoint ones.
func (n *Normalizer) Similarity(a, b string) float64 {
	rootsA := n.RootWords(a)
	rootsB := n.RootWords(b)
	if len(rootsA) == 0 && len(rootsB) == 0 {
		return 1
	}
	if len(rootsA) == 0 || len(rootsB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(rootsA))
	for _, w := range rootsA {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(rootsB))
	for _, w := range rootsB {
		setB[w] = struct{}{}
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// ExpandQuery produces the normalized query plus variants with each word
// replaced by up to three of its synonyms. The original normalized query is
// always the first element.
func (n *Normalizer) ExpandQuery(query string) []string {
	normalized := n.Normalize(query)
	expanded := []string{normalized}
	seen := map[string]struct{}{normalized: {}}

	words := strings.Fields(normalized)
	for i, w := range words {
		syns, ok := n.synonyms[w]
		if !ok {
			continue
		}
		limit := len(syns)
		if limit > 3 {
			limit = 3
		}
		for _, syn := range syns[:limit] {
			variant := make([]string, len(words))
			copy(variant, words)
			variant[i] = syn
			v := strings.Join(variant, " ")
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			expanded = append(expanded, v)
		}
	}
	return expanded
}

// Synonyms returns the synonym list for a normalized word, or nil.
func (n *Normalizer) Synonyms(word string) []string {
	syns := n.synonyms[n.Normalize(word)]
	if len(syns) == 0 {
		return nil
	}
	out := make([]string, len(syns))
	copy(out, syns)
	sort.Strings(out)
	return out
}

// IsStopword reports whether the word carries no search signal.
func (n *Normalizer) IsStopword(word string) bool {
	_, ok := n.stopwords[strings.ToLower(word)]
	return ok
}
