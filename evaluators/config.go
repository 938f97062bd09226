// Package evaluators implements the per-task evaluators that score a target
// model against base-model ground truth, and the registry that dispatches a
// task to its evaluator variant.
package evaluators

import (
	"os"

	"github.com/datar-psa/divbench/api"
	"github.com/datar-psa/divbench/divergency"
	"github.com/datar-psa/divbench/retry"
)

// Config is the per-task configuration bag an evaluator variant is
// constructed with. It is built once per run and passed by value.
type Config struct {
	// BaseModel is the ground-truth model handle. Unused when GTDataPath
	// points at an existing persisted table; exactly one of the two sources
	// must be available.
	BaseModel api.Model
	// Generate is the default generation adapter for the task.
	Generate api.GenerateFn
	// GTDataPath is a persisted ground-truth table. When the file exists it
	// is loaded and BaseModel is never touched.
	GTDataPath string
	// Prompts is the ordered prompt set.
	Prompts []api.PromptRecord
	// NumSamples truncates the prompt set before any generation. Zero keeps
	// everything.
	NumSamples int
	// Params are the task-specific generation parameters.
	Params api.GenParams
	// Retry wraps every backend-bound call.
	Retry retry.Policy
	// Scorer produces the similarity metric for text outputs.
	Scorer api.Scorer
	// ExtraScorers add further metric columns for text outputs, keyed by
	// each scorer's name.
	ExtraScorers []api.Scorer
	// Tokenizer enables the token divergency columns when set.
	Tokenizer divergency.Tokenizer
	// ImageScorer produces the similarity metric for image outputs.
	// Defaults to the pixel-space scorer.
	ImageScorer api.ImageScorer
	// WorkDir receives generated image artifacts when no output directory
	// is requested.
	WorkDir string
}

// truncated applies the NumSamples cap uniformly before any generation so
// the score-record count always equals the prompt-set size.
func (c Config) truncated() []api.PromptRecord {
	prompts := c.Prompts
	if c.NumSamples > 0 && c.NumSamples < len(prompts) {
		prompts = prompts[:c.NumSamples]
	}
	return prompts
}

// capLen applies the NumSamples cap to a loaded table's row count so a run
// sees the same sample count whether ground truth is generated or loaded.
func (c Config) capLen(n int) int {
	if c.NumSamples > 0 && c.NumSamples < n {
		return c.NumSamples
	}
	return n
}

// gtFromTable reports whether ground truth must be loaded from storage
// rather than generated with the base model.
func (c Config) gtFromTable() bool {
	if c.GTDataPath == "" {
		return false
	}
	_, err := os.Stat(c.GTDataPath)
	return err == nil
}

func (c Config) workDir() string {
	if c.WorkDir != "" {
		return c.WorkDir
	}
	return "divbench-workdir"
}
