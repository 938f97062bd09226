package llmjudge

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/datar-psa/divbench/api"
)

// SimilarityOptions configures the judge-based similarity scorer
type SimilarityOptions struct {
	// LLM is the language model generator used as the judge
	LLM api.LLMGenerator
}

// Similarity returns a scorer that asks a judge model how semantically
// equivalent the target model's answer is to the base model's answer.
// It is an alternative to the embedding-based similarity metric for runs
// where no embedding encoder is available.
func Similarity(opts SimilarityOptions) api.Scorer {
	return &similarityJudge{opts: opts}
}

type similarityJudge struct {
	opts SimilarityOptions
}

const similarityPromptTemplate = `You are comparing the answers of two language models to the same prompt.

Prompt: %s
Reference answer (original model): %s
Candidate answer (optimized model): %s

Evaluate how semantically equivalent the candidate answer is to the reference answer.
Ignore superficial wording differences; focus on whether the same information,
claims and intent are preserved.

Think step by step:
1. Identify the key claims in the reference answer
2. Check whether the candidate answer preserves each of them
3. Check whether the candidate answer adds contradicting or unrelated claims

Then provide your final answer as a score from 0 to 10, where:
- 0 = completely different or contradictory
- 5 = partially equivalent
- 10 = fully equivalent in meaning

End your response with: "SCORE: X" where X is a number from 0 to 10.`

func (s *similarityJudge) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := api.Score{
		Name:     "judge_similarity",
		Metadata: make(map[string]any),
	}

	if in.Expected == "" {
		// An empty reference answer is a valid outcome; only an equally
		// empty candidate matches it, and the judge has nothing to weigh.
		if strings.TrimSpace(in.Output) == "" {
			result.Score = 1.0
		}
		return result
	}
	if s.opts.LLM == nil {
		result.Error = fmt.Errorf("LLM generator is required")
		return result
	}

	prompt := fmt.Sprintf(similarityPromptTemplate, in.Input, in.Expected, in.Output)
	response, err := s.opts.LLM.Generate(ctx, prompt)
	if err != nil {
		result.Error = fmt.Errorf("%w: %v", api.ErrLLMGenerationFailed, err)
		return result
	}

	score, reasoning, err := extractScore(response)
	if err != nil {
		result.Error = fmt.Errorf("failed to extract score: %w", err)
		return result
	}

	result.Score = score / 10.0
	result.Metadata["raw_score"] = score
	result.Metadata["reasoning"] = reasoning
	return result
}

var scoreRe = regexp.MustCompile(`(?i)SCORE:\s*(\d+(?:\.\d+)?)`)

// extractScore pulls the trailing "SCORE: X" verdict out of a judge response
// and returns the score together with the reasoning that preceded it.
func extractScore(response string) (float64, string, error) {
	matches := scoreRe.FindAllStringSubmatchIndex(response, -1)
	if len(matches) == 0 {
		return 0, "", fmt.Errorf("no score found in response: %s", response)
	}

	last := matches[len(matches)-1]
	raw := response[last[2]:last[3]]
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid score %q: %w", raw, err)
	}
	if score < 0 || score > 10 {
		return 0, "", fmt.Errorf("score %v out of range [0, 10]", score)
	}

	reasoning := strings.TrimSpace(response[:last[0]])
	return score, reasoning, nil
}
