// Package embed defines the embedder capability the rest of the daemon
// depends on: fixed-dimension dense vectors for code and natural-language
// text, plus the static cosine-similarity function used to compare them.
// The daemon does not train embeddings; it calls this
// interface. A symbol without an embedding simply does not participate in
// semantic search.
package embed

import (
	"context"
	"errors"
	"math"
)

// Vector is a fixed-dimension dense embedding.
type Vector []float32

// Embedder produces an embedding for UTF-8 text. Implementations must return
// vectors of a stable dimension for the lifetime of an index; Dimension
// reports that size so callers can detect a mismatch before ever comparing
// vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dimension() int
}

// ErrDimensionMismatch is returned by CosineSimilarity when the two vectors
// have different lengths: the embedder's dimension changed, or the vectors
// come from two different embedders.
var ErrDimensionMismatch = errors.New("embed: vector dimension mismatch")

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. A dimension mismatch is reported via err rather than
// panicking; callers that want it treated as zero similarity can ignore
// err and use the returned 0.
func CosineSimilarity(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	if len(a) == 0 {
		return 0, nil
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// TopK scores every candidate against query and returns the k highest-
// scoring candidate indices, descending by score. Candidates with a
// dimension mismatch against query are skipped rather than erroring the
// whole call, so one stale embedding never fails the batch.
func TopK(query Vector, candidates []Vector, k int) []int {
	type scored struct {
		idx   int
		score float64
	}
	var scoredAll []scored
	for i, c := range candidates {
		sim, err := CosineSimilarity(query, c)
		if err != nil {
			continue
		}
		scoredAll = append(scoredAll, scored{idx: i, score: sim})
	}
	// simple insertion sort; candidate counts in this daemon's use (per-repo
	// symbol tables) are small enough that O(n^2) is not worth a heap here.
	for i := 1; i < len(scoredAll); i++ {
		j := i
		for j > 0 && scoredAll[j-1].score < scoredAll[j].score {
			scoredAll[j-1], scoredAll[j] = scoredAll[j], scoredAll[j-1]
			j--
		}
	}
	if k > len(scoredAll) {
		k = len(scoredAll)
	}
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = scoredAll[i].idx
	}
	return out
}
