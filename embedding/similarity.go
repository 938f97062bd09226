package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/datar-psa/divbench/api"
)

// SimilarityOptions configures the Similarity scorer
type SimilarityOptions struct {
	// Embedder is used to generate embeddings for text
	Embedder api.Embedder
}

// Similarity returns a scorer that measures how close a target model's output
// stayed to the base model's ground truth, as cosine similarity between the
// two embeddings normalized into [0, 1].
func Similarity(opts SimilarityOptions) api.Scorer {
	return &similarityScorer{opts: opts}
}

type similarityScorer struct {
	opts SimilarityOptions
}

func (s *similarityScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := api.Score{
		Name:     "similarity",
		Metadata: make(map[string]any),
	}

	if in.Expected == "" {
		// An empty ground-truth output is a valid value; nothing to embed,
		// only an equally empty candidate counts as a match.
		if in.Output == "" {
			result.Score = 1.0
		}
		return result
	}
	if s.opts.Embedder == nil {
		result.Error = fmt.Errorf("embedder is required")
		return result
	}

	outputEmbed, err := s.opts.Embedder.Embed(ctx, in.Output)
	if err != nil {
		result.Error = fmt.Errorf("failed to embed output: %w", err)
		return result
	}
	expectedEmbed, err := s.opts.Embedder.Embed(ctx, in.Expected)
	if err != nil {
		result.Error = fmt.Errorf("failed to embed expected: %w", err)
		return result
	}

	similarity := Cosine(outputEmbed, expectedEmbed)

	// Normalize from [-1, 1] to [0, 1]. Embeddings are usually positive so
	// the raw value already sits in [0, 1], but handle the full range.
	normalized := (similarity + 1.0) / 2.0
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	result.Score = normalized
	result.Metadata["cosine_similarity"] = similarity
	result.Metadata["embedding_dim"] = len(outputEmbed)
	return result
}

// Cosine computes the cosine similarity between two vectors
// Returns a value between -1 and 1, where 1 means identical direction
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	normA = math.Sqrt(normA)
	normB = math.Sqrt(normB)
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (normA * normB)
}
