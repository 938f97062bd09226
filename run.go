// Package divbench benchmarks how far a target model's outputs diverge from
// a base model's outputs over a shared prompt set. The base model produces
// ground truth once (or ground truth is loaded from a persisted table), the
// target model is scored against it, and per-sample metrics plus the worst
// diverging examples are reported.
package divbench

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/datar-psa/divbench/api"
	"github.com/datar-psa/divbench/dataset"
	"github.com/datar-psa/divbench/divergency"
	"github.com/datar-psa/divbench/embedding"
	"github.com/datar-psa/divbench/evaluators"
	"github.com/datar-psa/divbench/heuristic"
	"github.com/datar-psa/divbench/retry"
	"github.com/datar-psa/divbench/tabular"
)

// Backend abstracts a model provider for one run. Model lifetimes are
// serialized by the orchestrator: the base model is released before the
// target model is loaded.
type Backend interface {
	// LoadModel builds a model handle for modelID. The returned release func
	// frees whatever the handle holds; it is always called exactly once.
	LoadModel(ctx context.Context, task api.Task, modelID string, options map[string]any) (api.Model, func(), error)
	// GenerationFn returns the backend's adapter for task.
	GenerationFn(task api.Task) (api.GenerateFn, error)
}

// Options mirror the command-line surface of one benchmark run.
type Options struct {
	// Task selects the generation modality. See api.Tasks.
	Task string

	// BaseModel produces ground truth. Exactly one of BaseModel and an
	// existing table at GTData must be available.
	BaseModel string
	// TargetModel is scored against the ground truth.
	TargetModel string
	// GTData is the ground-truth table path: loaded when the file exists,
	// written after generation otherwise.
	GTData string
	// TargetData is a persisted target prediction table scored instead of
	// running the target model.
	TargetData string

	// Dataset is an optional CSV/JSON prompt source. Empty selects the
	// built-in default prompts for the task and language.
	Dataset      string
	DatasetField string
	Split        string
	ImageField   string
	MaskField    string
	// Language picks the built-in prompt language ("en" or "cn").
	Language string
	// NumSamples truncates the prompt set. Zero keeps everything.
	NumSamples int

	// Generation parameters, fixed per run.
	Seed              int64
	MaxNewTokens      int
	NumInferenceSteps int
	Resolution        int
	Strength          float64
	SkipPrompt        bool
	UseChatTemplate   bool

	// TokenizerEncoding overrides the tiktoken encoding used for the token
	// divergency columns. Empty derives an encoding from the base model name.
	TokenizerEncoding string

	// BackendOptions is a JSON file of extra backend options passed through
	// to LoadModel.
	BackendOptions string

	// OutputDir receives metrics_per_sample.csv, metrics.csv, target.csv and
	// generated images. Empty disables artifact output.
	OutputDir string

	// Retry controls backoff for backend-bound calls.
	Retry retry.Policy
}

// Deps are the pluggable scoring dependencies of a run. All fields are
// optional; text similarity falls back to the lexical scorer.
type Deps struct {
	// Embedder enables embedding-based text similarity.
	Embedder api.Embedder
	// Scorer overrides the similarity scorer entirely.
	Scorer api.Scorer
	// ExtraScorers add further metric columns for text tasks.
	ExtraScorers []api.Scorer
	// ImageScorer overrides the image similarity scorer.
	ImageScorer api.ImageScorer
}

// Result is the outcome of a run.
type Result struct {
	Records   []api.ScoreRecord
	Aggregate map[string]float64
	Evaluator api.Evaluator
}

// Check validates option consistency before any model is touched.
func (o Options) Check() error {
	if _, err := api.ParseTask(o.Task); err != nil {
		return err
	}
	if o.BaseModel == "" && o.GTData == "" {
		return api.NewConfigError("either --base-model or --gt-data is required")
	}
	if o.BaseModel == "" {
		if _, err := os.Stat(o.GTData); err != nil {
			return api.NewConfigError("no base model given and ground-truth table %s does not exist", o.GTData)
		}
	}
	if o.TargetModel != "" && o.TargetData != "" {
		return api.NewConfigError("--target-model and --target-data are mutually exclusive")
	}
	if o.NumSamples < 0 {
		return api.NewConfigError("--num-samples must not be negative")
	}
	return nil
}

// Run executes one benchmark run: resolve the prompt set, obtain ground
// truth (base model or persisted table), then score the target when one is
// given. Without a target the run only produces and persists ground truth.
func Run(ctx context.Context, opts Options, backend Backend, deps Deps) (*Result, error) {
	if err := opts.Check(); err != nil {
		return nil, err
	}
	task, err := api.ParseTask(opts.Task)
	if err != nil {
		return nil, err
	}

	prompts, err := resolvePrompts(task, opts)
	if err != nil {
		return nil, err
	}
	generate, err := backend.GenerationFn(task)
	if err != nil {
		return nil, err
	}
	backendOptions := ReadBackendOptions(opts.BackendOptions)

	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	cfg := evaluators.Config{
		Generate:     generate,
		GTDataPath:   opts.GTData,
		Prompts:      prompts,
		NumSamples:   opts.NumSamples,
		Params:       genParams(opts),
		Retry:        opts.Retry,
		Scorer:       textScorer(deps),
		ExtraScorers: extraScorers(task, deps),
		ImageScorer:  deps.ImageScorer,
		WorkDir:      opts.OutputDir,
	}
	if !task.IsImageTask() {
		cfg.Tokenizer = resolveTokenizer(opts)
	}

	// Ground-truth phase. The base model is loaded only when no persisted
	// table exists, and released before the target model is loaded.
	gtPersisted := tableExists(opts.GTData)
	releaseBase := func() {}
	if !gtPersisted {
		model, release, err := backend.LoadModel(ctx, task, opts.BaseModel, backendOptions)
		if err != nil {
			return nil, fmt.Errorf("load base model: %w", err)
		}
		cfg.BaseModel = model
		releaseBase = release
	}
	ev, err := evaluators.New(ctx, task, cfg)
	releaseBase()
	if err != nil {
		return nil, err
	}
	if opts.GTData != "" && !gtPersisted {
		if err := ev.DumpGroundTruth(opts.GTData); err != nil {
			return nil, fmt.Errorf("persist ground truth: %w", err)
		}
		log.Info().Str("path", opts.GTData).Msg("ground truth persisted")
	}

	if opts.TargetModel == "" && opts.TargetData == "" {
		log.Info().Msg("no target given, finished after the ground-truth phase")
		return &Result{Evaluator: ev}, nil
	}

	// Target phase.
	target := api.Target{TablePath: opts.TargetData}
	var releaseTarget func()
	if opts.TargetModel != "" {
		model, release, err := backend.LoadModel(ctx, task, opts.TargetModel, backendOptions)
		if err != nil {
			return nil, fmt.Errorf("load target model: %w", err)
		}
		target.Model = model
		releaseTarget = release
	}
	records, aggregate, err := ev.Score(ctx, target, opts.OutputDir)
	if releaseTarget != nil {
		releaseTarget()
	}
	if err != nil {
		return nil, err
	}

	if opts.OutputDir != "" {
		if err := writeArtifacts(opts.OutputDir, ev, records, aggregate); err != nil {
			return nil, err
		}
	}
	return &Result{Records: records, Aggregate: aggregate, Evaluator: ev}, nil
}

func resolvePrompts(task api.Task, opts Options) ([]api.PromptRecord, error) {
	if opts.Dataset != "" {
		return dataset.Load(dataset.Options{
			Path:       opts.Dataset,
			Field:      opts.DatasetField,
			Split:      opts.Split,
			ImageField: opts.ImageField,
			MaskField:  opts.MaskField,
		})
	}
	return dataset.Default(task, opts.Language), nil
}

func genParams(opts Options) api.GenParams {
	return api.GenParams{
		MaxNewTokens:      opts.MaxNewTokens,
		NumInferenceSteps: opts.NumInferenceSteps,
		Seed:              opts.Seed,
		Resolution:        opts.Resolution,
		Strength:          opts.Strength,
		SkipPrompt:        opts.SkipPrompt,
		UseChatTemplate:   opts.UseChatTemplate,
	}
}

func textScorer(deps Deps) api.Scorer {
	if deps.Scorer != nil {
		return deps.Scorer
	}
	if deps.Embedder != nil {
		return embedding.Similarity(embedding.SimilarityOptions{Embedder: deps.Embedder})
	}
	return heuristic.Lexical()
}

func extraScorers(task api.Task, deps Deps) []api.Scorer {
	if task.IsImageTask() {
		return nil
	}
	scorers := []api.Scorer{heuristic.ExactMatch(heuristic.ExactMatchOptions{TrimWhitespace: true})}
	return append(scorers, deps.ExtraScorers...)
}

// resolveTokenizer picks the tiktoken encoding for the divergency columns:
// the explicit override wins, otherwise an encoding is derived from the base
// model name with a cl100k_base fallback.
func resolveTokenizer(opts Options) divergency.Tokenizer {
	if opts.TokenizerEncoding != "" {
		tok, err := divergency.NewTiktoken(opts.TokenizerEncoding)
		if err != nil {
			log.Warn().Err(err).Msg("tokenizer encoding not usable, divergency columns disabled")
			return nil
		}
		return tok
	}
	tok, err := divergency.ForModel(filepath.Base(opts.BaseModel))
	if err != nil {
		log.Warn().Err(err).Msg("no tokenizer for model, divergency columns disabled")
		return nil
	}
	return tok
}

func tableExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// Artifact file names written into the output directory.
const (
	PerSampleFile  = "metrics_per_sample.csv"
	AggregateFile  = "metrics.csv"
	TargetDumpFile = "target.csv"
)

func writeArtifacts(dir string, ev api.Evaluator, records []api.ScoreRecord, aggregate map[string]float64) error {
	if err := tabular.Write(filepath.Join(dir, PerSampleFile), evaluators.RecordsTable(records)); err != nil {
		return err
	}
	if err := tabular.Write(filepath.Join(dir, AggregateFile), evaluators.AggregateTable(aggregate, len(records))); err != nil {
		return err
	}
	if err := ev.DumpPredictions(filepath.Join(dir, TargetDumpFile)); err != nil {
		return err
	}
	log.Info().Str("dir", dir).Msg("artifacts written")
	return nil
}
