package analyzer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tokenizer splits listing text into lowercase word tokens with optional
// diacritic folding and stopword removal.
type Tokenizer struct {
	stopwords map[string]struct{}
	fold      bool
}

// NewTokenizer creates a new Tokenizer. With fold set, "Xoài" and "xoai"
// produce the same token.
func NewTokenizer(fold bool) *Tokenizer {
	return &Tokenizer{
		stopwords: defaultStopwords(),
		fold:      fold,
	}
}

// Normalize lowercases text, collapses whitespace and folds diacritics when
// enabled.
func (t *Tokenizer) Normalize(text string) string {
	text = norm.NFC.String(strings.ToLower(strings.Join(strings.Fields(text), " ")))
	if t.fold {
		text = Fold(text)
	}
	return text
}

// Tokenize splits text into tokens.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(norm.NFC.String(strings.ToLower(text)))
	tokens := make([]string, 0, len(words))

	// Stopwords match before folding; folded forms collide with real words.
	for _, word := range words {
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		if t.fold {
			word = Fold(word)
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// Fold strips Vietnamese tone and vowel marks: "sầu riêng" becomes
// "sau rieng" and "đ" becomes "d".
func Fold(s string) string {
	tr := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(tr, s)
	if err != nil {
		return s
	}
	return strings.NewReplacer("đ", "d", "Đ", "D").Replace(out)
}

// splitWords splits text into words of letters and digits.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}

// defaultStopwords returns connectives common in listing titles.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		"và", "các", "của", "những", "với", "là",
		"the", "and", "of", "for", "with",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
