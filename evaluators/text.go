package evaluators

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/datar-psa/divbench/api"
	"github.com/datar-psa/divbench/dataset"
	"github.com/datar-psa/divbench/divergency"
	"github.com/datar-psa/divbench/retry"
	"github.com/datar-psa/divbench/tabular"
)

// Column names of the persisted ground-truth and prediction tables.
const (
	outputColumn = "output"
	imageColumn  = "image"
)

// textEvaluator scores text outputs (plain text and visual-text tasks)
// against base-model ground truth.
type textEvaluator struct {
	cfg     Config
	prompts []api.PromptRecord
	gt      []string
	preds   []string
	records []api.ScoreRecord
}

func newText(ctx context.Context, cfg Config) (*textEvaluator, error) {
	if cfg.Scorer == nil {
		return nil, api.NewConfigError("a similarity scorer is required for text tasks")
	}

	e := &textEvaluator{cfg: cfg}
	if cfg.gtFromTable() {
		log.Info().Str("path", cfg.GTDataPath).Msg("loading ground truth from table")
		prompts, outputs, err := loadTextTable(cfg.GTDataPath)
		if err != nil {
			return nil, err
		}
		n := cfg.capLen(len(prompts))
		e.prompts, e.gt = prompts[:n], outputs[:n]
		return e, nil
	}

	if cfg.BaseModel == nil || cfg.Generate == nil {
		return nil, api.NewConfigError("either a base model or an existing ground-truth table is required")
	}
	e.prompts = cfg.truncated()
	log.Info().Int("prompts", len(e.prompts)).Msg("generating ground truth with base model")
	gt, err := generateText(ctx, cfg, cfg.BaseModel, cfg.Generate, e.prompts)
	if err != nil {
		return nil, fmt.Errorf("generate ground truth: %w", err)
	}
	e.gt = gt
	return e, nil
}

// generateText runs the adapter over every prompt in order, retrying each
// call on transient backend failures.
func generateText(ctx context.Context, cfg Config, model api.Model, fn api.GenerateFn, prompts []api.PromptRecord) ([]string, error) {
	outs := make([]string, len(prompts))
	for i, rec := range prompts {
		out, err := retry.Do(ctx, cfg.Retry, func(ctx context.Context) (api.Output, error) {
			return fn(ctx, model, rec, cfg.Params)
		})
		if err != nil {
			return nil, fmt.Errorf("prompt %d: %w", i, err)
		}
		outs[i] = out.Text
		log.Debug().Int("prompt", i).Int("chars", len(out.Text)).Msg("generated output")
	}
	return outs, nil
}

// loadTextTable reads a persisted prompt/output table, restoring prompt
// images for visual-text rows.
func loadTextTable(path string) ([]api.PromptRecord, []string, error) {
	t, err := tabular.Read(path)
	if err != nil {
		return nil, nil, err
	}
	outputs, ok := t.Values(outputColumn)
	if !ok {
		return nil, nil, api.NewConfigError("table %s has no %q column", path, outputColumn)
	}
	promptValues, _ := t.Values(tabular.PromptColumn)
	imagePaths, hasImages := t.Values(imageColumn)

	prompts := make([]api.PromptRecord, len(promptValues))
	for i, p := range promptValues {
		prompts[i] = api.PromptRecord{Prompt: p}
		if hasImages && imagePaths[i] != "" {
			img, err := dataset.LoadImage(imagePaths[i])
			if err != nil {
				return nil, nil, fmt.Errorf("row %d: %w", i, err)
			}
			prompts[i].Image = img
			prompts[i].ImagePath = imagePaths[i]
		}
	}
	return prompts, outputs, nil
}

func (e *textEvaluator) Score(ctx context.Context, target api.Target, outputDir string) ([]api.ScoreRecord, map[string]float64, error) {
	preds, err := e.targetOutputs(ctx, target)
	if err != nil {
		return nil, nil, err
	}
	if len(preds) != len(e.prompts) {
		return nil, nil, api.NewConfigError("target produced %d outputs for %d prompts", len(preds), len(e.prompts))
	}

	records := make([]api.ScoreRecord, len(e.prompts))
	for i := range e.prompts {
		in := api.ScoreInputs{
			Output:   preds[i],
			Expected: e.gt[i],
			Input:    e.prompts[i].Prompt,
		}
		metrics := make(map[string]float64)
		s, err := scoreWithRetry(ctx, e.cfg.Retry, e.cfg.Scorer, in)
		if err != nil {
			return nil, nil, fmt.Errorf("score prompt %d: %w", i, err)
		}
		metrics[s.Name] = s.Score

		for _, scorer := range e.cfg.ExtraScorers {
			s, err := scoreWithRetry(ctx, e.cfg.Retry, scorer, in)
			if err != nil {
				return nil, nil, fmt.Errorf("score prompt %d: %w", i, err)
			}
			metrics[s.Name] = s.Score
		}

		if e.cfg.Tokenizer != nil {
			div, err := divergency.Metrics(e.cfg.Tokenizer, e.gt[i], preds[i])
			if err != nil {
				return nil, nil, fmt.Errorf("divergency for prompt %d: %w", i, err)
			}
			for name, v := range div {
				metrics[name] = v
			}
		}

		records[i] = api.ScoreRecord{
			Prompt:       e.prompts[i].Prompt,
			BaseOutput:   e.gt[i],
			TargetOutput: preds[i],
			Metrics:      metrics,
		}
	}

	e.preds = preds
	e.records = records
	return records, Aggregate(records), nil
}

func (e *textEvaluator) targetOutputs(ctx context.Context, target api.Target) ([]string, error) {
	if target.TablePath != "" {
		log.Info().Str("path", target.TablePath).Msg("loading target outputs from table")
		_, outputs, err := loadTextTable(target.TablePath)
		if err != nil {
			return nil, err
		}
		return outputs[:e.cfg.capLen(len(outputs))], nil
	}
	fn := target.Generate
	if fn == nil {
		fn = e.cfg.Generate
	}
	if target.Model == nil || fn == nil {
		return nil, api.NewConfigError("target needs a model or a prediction table")
	}
	log.Info().Int("prompts", len(e.prompts)).Msg("generating target outputs")
	return generateText(ctx, e.cfg, target.Model, fn, e.prompts)
}

// scoreWithRetry runs one scorer call behind the retry policy; scorers that
// reach external services surface transient failures through Score.Error.
func scoreWithRetry(ctx context.Context, p retry.Policy, scorer api.Scorer, in api.ScoreInputs) (api.Score, error) {
	return retry.Do(ctx, p, func(ctx context.Context) (api.Score, error) {
		s := scorer.Score(ctx, in)
		return s, s.Error
	})
}

func (e *textEvaluator) GenerationFn() api.GenerateFn { return e.cfg.Generate }

func (e *textEvaluator) DumpGroundTruth(path string) error {
	return e.dumpOutputs(path, e.gt)
}

func (e *textEvaluator) DumpPredictions(path string) error {
	if e.preds == nil {
		return api.NewConfigError("no target outputs to dump, run Score first")
	}
	return e.dumpOutputs(path, e.preds)
}

func (e *textEvaluator) dumpOutputs(path string, outputs []string) error {
	t := &tabular.Table{Columns: []string{tabular.PromptColumn, outputColumn}}
	hasImages := false
	for _, p := range e.prompts {
		if p.Image != nil || p.ImagePath != "" {
			hasImages = true
			break
		}
	}
	if hasImages {
		t.Columns = append(t.Columns, imageColumn)
	}

	for i := range e.prompts {
		row := []string{e.prompts[i].Prompt, outputs[i]}
		if hasImages {
			imgPath, err := e.promptImagePath(path, i)
			if err != nil {
				return err
			}
			row = append(row, imgPath)
		}
		t.Rows = append(t.Rows, row)
	}
	return tabular.Write(path, t)
}

// promptImagePath returns the on-disk path of prompt i's image, saving
// in-memory images next to the table on first use.
func (e *textEvaluator) promptImagePath(tablePath string, i int) (string, error) {
	p := &e.prompts[i]
	if p.ImagePath != "" || p.Image == nil {
		return p.ImagePath, nil
	}
	dir := strings.TrimSuffix(tablePath, filepath.Ext(tablePath)) + "_images"
	path := filepath.Join(dir, fmt.Sprintf("%03d.png", i))
	if err := dataset.SaveImage(path, p.Image); err != nil {
		return "", err
	}
	p.ImagePath = path
	return path, nil
}

func (e *textEvaluator) WorstExamples(topK int, metric string) []api.ScoreRecord {
	return WorstExamples(e.records, topK, metric)
}
