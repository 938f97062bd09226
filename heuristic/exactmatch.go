package heuristic

import (
	"context"
	"strings"

	"github.com/datar-psa/divbench/api"
)

// ExactMatchOptions configures the ExactMatch scorer
type ExactMatchOptions struct {
	// CaseInsensitive determines if the comparison should ignore case
	CaseInsensitive bool
	// TrimWhitespace determines if leading and trailing whitespace should be trimmed
	TrimWhitespace bool
}

// ExactMatch returns a scorer reporting 1 when the target output reproduces
// the ground truth exactly and 0 otherwise. Emitted as the exact_match
// column for text tasks.
func ExactMatch(opts ExactMatchOptions) api.Scorer {
	return &exactMatchScorer{opts: opts}
}

type exactMatchScorer struct {
	opts ExactMatchOptions
}

func (s *exactMatchScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := api.Score{
		Name:     "exact_match",
		Metadata: make(map[string]any),
	}

	// An empty ground-truth output is a valid value to match against.
	output, expected := in.Output, in.Expected
	if s.opts.TrimWhitespace {
		output = strings.TrimSpace(output)
		expected = strings.TrimSpace(expected)
	}
	if s.opts.CaseInsensitive {
		output = strings.ToLower(output)
		expected = strings.ToLower(expected)
	}

	if output == expected {
		result.Score = 1.0
	}
	result.Metadata["output_length"] = len(in.Output)
	result.Metadata["expected_length"] = len(in.Expected)
	return result
}
