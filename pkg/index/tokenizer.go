package index

import (
	"regexp"
	"strings"
)

// Token extraction keeps lowercase latin runs with digits, the
// Portuguese accented vowels, and the hyphen so compound words like
// "guarda-chuva" stay whole; everything else is a separator.
var tokenRe = regexp.MustCompile(`[a-z0-9áàâãéèêíìîóòôõúùûç-]+`)

const minTokenLen = 3

// Stopwords for the two languages the corpus actually carries. A term
// present here never reaches the index or a query.
var stopwords = buildStopwords(
	// Portuguese
	"a", "o", "as", "os", "um", "uma", "uns", "umas", "de", "do", "da",
	"dos", "das", "em", "no", "na", "nos", "nas", "por", "para", "com",
	"sem", "sob", "sobre", "que", "quem", "qual", "quais", "e", "ou",
	"mas", "se", "ao", "aos", "à", "às", "pelo", "pela", "pelos",
	"pelas", "não", "sim", "já", "mais", "menos", "muito", "muita",
	"muitos", "muitas", "como", "quando", "onde", "porque", "também",
	"até", "entre", "depois", "antes", "ser", "estar", "ter", "foi",
	"era", "são", "está", "este", "esta", "isto", "esse", "essa",
	"isso", "aquele", "aquela", "aquilo", "seu", "sua", "seus", "suas",
	"ele", "ela", "eles", "elas", "nós", "você", "vocês",
	// English
	"the", "a", "an", "and", "or", "but", "if", "of", "at", "by",
	"for", "with", "about", "into", "through", "from", "to", "in",
	"on", "off", "over", "under", "again", "then", "once", "here",
	"there", "all", "any", "both", "each", "few", "more", "most",
	"other", "some", "such", "not", "only", "own", "same", "so",
	"than", "too", "very", "can", "will", "just", "this", "that",
	"these", "those", "is", "are", "was", "were", "be", "been",
	"being", "have", "has", "had", "do", "does", "did", "it", "its",
	"they", "them", "their", "what", "which", "who", "whom", "when",
	"where", "why", "how",
)

func buildStopwords(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Tokenize lowercases text and returns its index terms in order:
// accent-aware word runs of at least minTokenLen runes, stopwords
// removed. Duplicates are kept; callers needing frequencies count them.
func Tokenize(text string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if len([]rune(tok)) < minTokenLen {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// TermFrequencies folds a token stream into term counts.
func TermFrequencies(tokens []string) map[string]int {
	freqs := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freqs[tok]++
	}
	return freqs
}
