package embedding

import (
	"context"
	"hash/fnv"

	"agrirec/internal/adapter/analyzer"
)

// HashEmbedder is a deterministic offline encoder. Word tokens and character
// trigrams are hashed into signed buckets, so texts sharing words land close
// together. Diacritics are folded, so unaccented queries still match. It needs
// no network and is the default for tests and local runs.
type HashEmbedder struct {
	dimension int
	model     string
	tokenizer *analyzer.Tokenizer
}

// NewHashEmbedder creates a hashing encoder producing dimension-sized vectors.
func NewHashEmbedder(dimension int, model string) *HashEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	if model == "" {
		model = "hash-trigram"
	}
	return &HashEmbedder{dimension: dimension, model: model, tokenizer: analyzer.NewTokenizer(true)}
}

const (
	wordWeight    = 1.0
	trigramWeight = 0.5
)

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, e.dimension)

	for _, w := range e.tokenizer.Tokenize(text) {
		e.add(vec, "w:"+w, wordWeight)
	}

	// Trigrams over the padded text keep punctuation-only input non-zero.
	runes := []rune("^" + e.tokenizer.Normalize(text) + "$")
	for i := 0; i+3 <= len(runes); i++ {
		e.add(vec, "t:"+string(runes[i:i+3]), trigramWeight)
	}

	normalized, _ := Normalize(vec)
	return normalized
}

func (e *HashEmbedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()

	idx := sum % uint64(e.dimension)
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashEmbedder) ModelName() string {
	return e.model
}
