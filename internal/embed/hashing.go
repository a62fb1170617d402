package embed

import (
	"context"
	"hash/fnv"
	"strings"
)

// HashingEmbedder is a dependency-free Embedder: it hashes overlapping
// trigrams of the input into a fixed-size vector. It exists so the daemon
// has a working embedder with no external model call, and so tests can run
// without a network dependency; production deployments wire a real model
// behind the same Embedder interface.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder returns a HashingEmbedder producing vectors of size dim.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashingEmbedder{dim: dim}
}

func (h *HashingEmbedder) Dimension() int { return h.dim }

func (h *HashingEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	v := make(Vector, h.dim)
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return v, nil
	}
	runes := []rune(norm)
	n := len(runes)
	window := 3
	if n < window {
		window = n
	}
	for i := 0; i <= n-window; i++ {
		gram := string(runes[i : i+window])
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(gram))
		idx := int(hasher.Sum32()) % h.dim
		if idx < 0 {
			idx += h.dim
		}
		v[idx] += 1
	}
	return v, nil
}
