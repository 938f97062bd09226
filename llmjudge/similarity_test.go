package llmjudge

import (
	"context"
	"errors"
	"testing"

	"github.com/datar-psa/divbench/api"
)

// mockLLM returns a canned response
type mockLLM struct {
	response string
	err      error
}

func (m *mockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return m.response, m.err
}

func TestSimilarityJudge(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		response  string
		llmErr    error
		output    string
		expected  string
		wantErr   bool
		wantScore float64
	}{
		{
			name:      "full equivalence",
			response:  "Both answers state Paris is the capital.\nSCORE: 10",
			output:    "Paris",
			expected:  "The capital is Paris",
			wantScore: 1.0,
		},
		{
			name:      "partial equivalence",
			response:  "Candidate drops the population detail.\nSCORE: 5",
			output:    "Paris",
			expected:  "Paris, population 2.1M",
			wantScore: 0.5,
		},
		{
			name:      "uses the last score marker",
			response:  "Intermediate SCORE: 3 considered, final verdict below.\nSCORE: 8",
			output:    "a",
			expected:  "b",
			wantScore: 0.8,
		},
		{
			name:     "no score in response",
			response: "I cannot evaluate this.",
			output:   "a",
			expected: "b",
			wantErr:  true,
		},
		{
			name:     "out of range score",
			response: "SCORE: 42",
			output:   "a",
			expected: "b",
			wantErr:  true,
		},
		{
			name:     "llm failure",
			llmErr:   errors.New("backend down"),
			output:   "a",
			expected: "b",
			wantErr:  true,
		},
		{
			name:      "empty reference mismatch",
			output:    "a",
			expected:  "",
			wantScore: 0.0,
		},
		{
			name:      "empty reference matched by empty answer",
			output:    "  ",
			expected:  "",
			wantScore: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := Similarity(SimilarityOptions{LLM: &mockLLM{response: tt.response, err: tt.llmErr}})
			result := scorer.Score(ctx, api.ScoreInputs{Input: "prompt", Output: tt.output, Expected: tt.expected})

			if tt.wantErr {
				if result.Error == nil {
					t.Fatal("Score() error = nil, want error")
				}
				return
			}
			if result.Error != nil {
				t.Fatalf("Score() error = %v", result.Error)
			}
			if result.Score != tt.wantScore {
				t.Errorf("Score() = %v, want %v", result.Score, tt.wantScore)
			}
		})
	}
}

func TestSimilarityJudge_NilLLM(t *testing.T) {
	scorer := Similarity(SimilarityOptions{})
	result := scorer.Score(context.Background(), api.ScoreInputs{Output: "a", Expected: "b"})
	if result.Error == nil {
		t.Error("Score() error = nil, want LLM required error")
	}
}
