// Command divbench compares a target model against a base model over a
// shared prompt set and reports how far the outputs diverge.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/genai"

	divbench "github.com/datar-psa/divbench"
	"github.com/datar-psa/divbench/api"
	"github.com/datar-psa/divbench/gemini"
	"github.com/datar-psa/divbench/llamacli"
	"github.com/datar-psa/divbench/llmjudge"
	"github.com/datar-psa/divbench/openaiserver"
	"github.com/datar-psa/divbench/report"
	"github.com/datar-psa/divbench/textdiff"
)

type flags struct {
	divbench.Options

	backend        string
	baseURL        string
	apiKey         string
	llamaBin       string
	embeddingModel string
	judgeModel     string
	topK           int
	verbose        bool
}

func main() {
	var f flags

	cmd := &cobra.Command{
		Use:           "divbench",
		Short:         "Benchmark output divergence between a base and a target model",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(f.verbose)
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.Task, "task", string(api.TaskText), "task to evaluate: "+api.TaskNames())
	cmd.Flags().StringVar(&f.BaseModel, "base-model", "", "model producing the ground truth")
	cmd.Flags().StringVar(&f.TargetModel, "target-model", "", "model scored against the ground truth")
	cmd.Flags().StringVar(&f.GTData, "gt-data", "", "ground-truth table: loaded when present, written after generation otherwise")
	cmd.Flags().StringVar(&f.TargetData, "target-data", "", "persisted target prediction table scored instead of a target model")
	cmd.Flags().StringVar(&f.Dataset, "dataset", "", "CSV or JSON prompt dataset (default: built-in prompts)")
	cmd.Flags().StringVar(&f.DatasetField, "dataset-field", "text", "dataset column or key holding the prompt")
	cmd.Flags().StringVar(&f.Split, "split", "", "dataset split, e.g. validation or train[:32]")
	cmd.Flags().StringVar(&f.ImageField, "image-field", "", "dataset column holding image paths")
	cmd.Flags().StringVar(&f.MaskField, "mask-field", "", "dataset column holding mask paths")
	cmd.Flags().StringVar(&f.Language, "language", "en", "built-in prompt language (en, cn)")
	cmd.Flags().IntVar(&f.NumSamples, "num-samples", 0, "truncate the prompt set (0 keeps everything)")
	cmd.Flags().Int64Var(&f.Seed, "seed", 42, "generation seed")
	cmd.Flags().IntVar(&f.MaxNewTokens, "max-new-tokens", 128, "text generation length bound")
	cmd.Flags().IntVar(&f.NumInferenceSteps, "num-inference-steps", 4, "denoising steps for image tasks")
	cmd.Flags().IntVar(&f.Resolution, "resolution", 0, "square image size in pixels (0 = backend default)")
	cmd.Flags().Float64Var(&f.Strength, "strength", 0.8, "source image preservation for image-to-image and inpainting")
	cmd.Flags().BoolVar(&f.SkipPrompt, "skip-prompt", false, "strip the echoed prompt prefix from text output")
	cmd.Flags().BoolVar(&f.UseChatTemplate, "chat-template", false, "route text generation through the chat surface")
	cmd.Flags().StringVar(&f.TokenizerEncoding, "tokenizer-encoding", "", "tiktoken encoding for divergency columns (default: derived from the base model)")
	cmd.Flags().StringVar(&f.BackendOptions, "cb-config", "", "JSON file of extra backend options")
	cmd.Flags().StringVar(&f.OutputDir, "output", "", "directory for metric tables and generated images")

	cmd.Flags().StringVar(&f.backend, "backend", "openai-server", "model provider: gemini, openai-server or llama-cli")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "http://localhost:8080/v1", "OpenAI-compatible server URL")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "API key for the server backend")
	cmd.Flags().StringVar(&f.llamaBin, "llama-bin", "", "llama.cpp CLI binary (default: llama-cli on PATH)")
	cmd.Flags().StringVar(&f.embeddingModel, "embedding-model", "", "embedding model for semantic text similarity (default: lexical similarity)")
	cmd.Flags().StringVar(&f.judgeModel, "judge-model", "", "LLM judge model adding a judge_similarity column (gemini backend only)")
	cmd.Flags().IntVar(&f.topK, "top-k", report.DefaultTopK, "number of worst examples to report")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("benchmark failed")
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

func run(ctx context.Context, f flags) error {
	backend, deps, err := buildBackend(ctx, f)
	if err != nil {
		return err
	}

	result, err := divbench.Run(ctx, f.Options, backend, deps)
	if err != nil {
		return err
	}
	if result.Records == nil {
		return nil
	}

	task, err := api.ParseTask(f.Task)
	if err != nil {
		return err
	}
	opts := report.Options{TopK: f.topK, Markers: textdiff.ANSIMarkers()}
	if task.IsImageTask() {
		return report.ImageResults(os.Stdout, result.Evaluator, result.Aggregate, opts)
	}
	return report.TextResults(os.Stdout, result.Evaluator, result.Aggregate, opts)
}

func buildBackend(ctx context.Context, f flags) (divbench.Backend, divbench.Deps, error) {
	var deps divbench.Deps
	switch f.backend {
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: f.apiKey})
		if err != nil {
			return nil, deps, fmt.Errorf("create gemini client: %w", err)
		}
		if f.embeddingModel != "" {
			deps.Embedder = gemini.NewEmbedder(client, f.embeddingModel)
		}
		if f.judgeModel != "" {
			deps.ExtraScorers = append(deps.ExtraScorers, llmjudge.Similarity(llmjudge.SimilarityOptions{
				LLM: gemini.NewGenerator(client, f.judgeModel),
			}))
		}
		return gemini.New(client), deps, nil
	case "openai-server":
		b := openaiserver.New(
			openaiserver.WithBaseURL(f.baseURL),
			openaiserver.WithAPIKey(f.apiKey),
		)
		if f.embeddingModel != "" {
			deps.Embedder = openaiserver.NewEmbedder(b, f.embeddingModel)
		}
		return b, deps, nil
	case "llama-cli":
		return llamacli.New(f.llamaBin), deps, nil
	default:
		return nil, deps, api.NewConfigError("unknown backend %q, supported backends: gemini, openai-server, llama-cli", f.backend)
	}
}
