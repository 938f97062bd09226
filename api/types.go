package api

import (
	"context"
	"fmt"
	"image"
	"strings"
)

// Task identifies the generation modality under evaluation.
// It is selected once per run and never changes afterwards.
type Task string

const (
	TaskText            Task = "text"
	TaskTextToImage     Task = "text-to-image"
	TaskVisualText      Task = "visual-text"
	TaskImageToImage    Task = "image-to-image"
	TaskImageInpainting Task = "image-inpainting"
)

// Tasks returns every supported task in declaration order.
func Tasks() []Task {
	return []Task{TaskText, TaskTextToImage, TaskVisualText, TaskImageToImage, TaskImageInpainting}
}

// ParseTask validates a task name coming from a flag or config value.
func ParseTask(s string) (Task, error) {
	for _, t := range Tasks() {
		if s == string(t) {
			return t, nil
		}
	}
	return "", NewConfigError("unsupported task %q, supported tasks: %s", s, TaskNames())
}

// TaskNames returns the supported task names as a comma-separated string.
func TaskNames() string {
	names := make([]string, 0, len(Tasks()))
	for _, t := range Tasks() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

// IsImageTask reports whether the task produces images rather than text.
func (t Task) IsImageTask() bool {
	return t == TaskTextToImage || t == TaskImageToImage || t == TaskImageInpainting
}

// PromptRecord is one entry of the prompt set. Prompt is always set; the
// image and mask are present only for tasks that consume them.
type PromptRecord struct {
	Prompt    string
	Image     image.Image
	Mask      image.Image
	ImagePath string
	MaskPath  string
}

// Output is the backend-independent result of a single generation call.
// Exactly one of Text or Image is populated, depending on the task.
type Output struct {
	Text  string
	Image image.Image
}

// GenParams carries the task-specific numeric generation parameters.
// Adapters pass every knob their backend can express and ignore the rest;
// sampling is always forced deterministic regardless of these values.
type GenParams struct {
	// MaxNewTokens bounds text generation length. Zero means backend default.
	MaxNewTokens int
	// NumInferenceSteps is the denoising step count for image tasks.
	NumInferenceSteps int
	// Seed fixes the random state of the backend generator.
	Seed int64
	// Resolution is the square image size in pixels. Zero means backend default.
	Resolution int
	// Strength controls how much of the source image is preserved for
	// image-to-image and inpainting. Fixed per run.
	Strength float64
	// SkipPrompt strips the echoed prompt prefix from text output when the
	// backend echoes its input: the returned text excludes the first
	// len(prompt) characters of the raw output.
	SkipPrompt bool
	// UseChatTemplate routes text generation through the backend's chat
	// surface instead of raw completion.
	UseChatTemplate bool
}

// Model is an opaque backend-specific model handle. Backends type-assert it
// inside their adapters.
type Model any

// GenerateFn is the normalized generation adapter signature shared by every
// backend x modality combination: given a model handle, a prompt record and
// the generation parameters it produces one output. Adapters are pure
// functions of their declared inputs plus the model's internal state.
type GenerateFn func(ctx context.Context, model Model, rec PromptRecord, params GenParams) (Output, error)

// ScoreRecord is one scored row: the prompt, both model outputs (text, or an
// image file reference for image tasks) and every metric computed for the pair.
type ScoreRecord struct {
	Prompt       string
	BaseOutput   string
	TargetOutput string
	Metrics      map[string]float64
}

// Target selects where target-model outputs come from during scoring.
// When TablePath points at a persisted prediction table the model is never
// touched; otherwise outputs are generated with Model through Generate
// (nil Generate means the evaluator's default adapter).
type Target struct {
	TablePath string
	Model     Model
	Generate  GenerateFn
}

// Evaluator is the per-task evaluation capability. An evaluator owns the
// prompt set and the ground truth for its task and scores target outputs
// against that ground truth.
type Evaluator interface {
	// DumpGroundTruth persists the ground-truth table to path.
	DumpGroundTruth(path string) error
	// Score produces per-sample records and their column-wise mean. Records
	// are ordered exactly like the prompt set. outputDir, when non-empty,
	// receives generated artifacts such as target images.
	Score(ctx context.Context, target Target, outputDir string) ([]ScoreRecord, map[string]float64, error)
	// GenerationFn returns the evaluator's default generation adapter.
	GenerationFn() GenerateFn
	// DumpPredictions persists the most recent target outputs to path.
	DumpPredictions(path string) error
	// WorstExamples returns the topK records with the lowest value of metric,
	// ascending, preserving prompt order among ties.
	WorstExamples(topK int, metric string) []ScoreRecord
}

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding vector for the given text
	// Returns a normalized vector (length = 1) suitable for cosine similarity
	Embed(ctx context.Context, text string) ([]float64, error)
}

// LLMGenerator is an interface for generating text using an LLM.
// Used by the llmjudge scorers.
type LLMGenerator interface {
	// Generate generates text based on the provided prompt
	Generate(ctx context.Context, prompt string) (string, error)
}

// Score represents the result of an evaluation
type Score struct {
	// Name identifies the scorer that produced this result
	Name string
	// Score is a value between 0 and 1, where 1 is the best possible score
	Score float64
	// Metadata contains additional information about the scoring process
	Metadata map[string]any
	// Error contains any error that occurred during scoring
	Error error
}

// ScoreInputs carries inputs for scoring across different scorers.
//
// Fields usage conventions:
// - Output:   the target model's output (required)
// - Expected: the ground-truth output from the base model
// - Input:    the original prompt given to both models
type ScoreInputs struct {
	Output   string
	Expected string
	Input    string
}

// Scorer evaluates the closeness of a target output to its ground truth
type Scorer interface {
	// Score evaluates the output and returns a score
	// in: container for output/expected/input depending on scorer needs
	Score(ctx context.Context, in ScoreInputs) Score
}

// ImageScoreInputs carries a decoded image pair for image scorers.
type ImageScoreInputs struct {
	Output   image.Image
	Expected image.Image
	Prompt   string
}

// ImageScorer evaluates the closeness of a generated image to its ground truth
type ImageScorer interface {
	Score(ctx context.Context, in ImageScoreInputs) Score
}

func (t Task) String() string { return string(t) }

var _ fmt.Stringer = TaskText
