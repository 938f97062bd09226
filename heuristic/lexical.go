package heuristic

import (
	"context"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/datar-psa/divbench/api"
)

// Lexical returns a scorer measuring character-level closeness of the target
// output to the ground truth with a longest-common-subsequence ratio. It
// needs no external service, which makes it the default similarity metric
// when no embedder is configured.
func Lexical() api.Scorer {
	return &lexicalScorer{}
}

type lexicalScorer struct{}

func (s *lexicalScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := api.Score{
		Name:     "similarity",
		Metadata: make(map[string]any),
	}

	if in.Expected == "" && in.Output == "" {
		result.Score = 1.0
		return result
	}

	matcher := difflib.NewMatcher(runes(in.Expected), runes(in.Output))
	result.Score = matcher.Ratio()
	result.Metadata["output_length"] = len(in.Output)
	result.Metadata["expected_length"] = len(in.Expected)
	return result
}

func runes(s string) []string {
	rs := []rune(s)
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}
