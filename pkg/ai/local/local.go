// Package local provides an offline embedder for tests, the CLI and
// single-node deployments without a model server.
package local

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const DefaultDimensions = 256

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "be": {}, "can": {}, "for": {}, "in": {},
	"is": {}, "it": {}, "of": {}, "on": {}, "or": {}, "the": {}, "to": {}, "what": {},
	"which": {}, "with": {}, "how": {}, "why": {}, "does": {}, "do": {},
}

// HashEmbedder maps text to a bag-of-words vector using signed feature
// hashing. Texts sharing terms get a positive cosine similarity. Output is
// L2 normalized and deterministic.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultDimensions
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimensions() int {
	return h.dim
}

func (h *HashEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.embed(string(input)), nil
}

func (h *HashEmbedder) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(string(in))
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, h.dim)
	for _, term := range Terms(text) {
		f := fnv.New64a()
		f.Write([]byte(term))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dim))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// Terms lower-cases text, splits it on non-alphanumerics, drops stopwords
// and strips a plural "s".
func Terms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := words[:0]
	for _, w := range words {
		if _, stop := stopwords[w]; stop {
			continue
		}
		if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			w = w[:len(w)-1]
		}
		out = append(out, w)
	}
	return out
}
