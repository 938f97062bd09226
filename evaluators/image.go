package evaluators

import (
	"context"
	"fmt"
	"image"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/datar-psa/divbench/api"
	"github.com/datar-psa/divbench/dataset"
	"github.com/datar-psa/divbench/imagesim"
	"github.com/datar-psa/divbench/retry"
	"github.com/datar-psa/divbench/tabular"
)

// imageEvaluator scores generated images (text-to-image, image-to-image and
// inpainting tasks) against base-model ground truth. Images live on disk;
// tables reference them by path.
type imageEvaluator struct {
	cfg    Config
	scorer api.ImageScorer

	prompts  []api.PromptRecord
	gtImages []image.Image
	gtPaths  []string

	predImages []image.Image
	predPaths  []string
	records    []api.ScoreRecord
}

func newImage(ctx context.Context, cfg Config) (*imageEvaluator, error) {
	e := &imageEvaluator{cfg: cfg, scorer: cfg.ImageScorer}
	if e.scorer == nil {
		e.scorer = imagesim.Pixel()
	}

	if cfg.gtFromTable() {
		log.Info().Str("path", cfg.GTDataPath).Msg("loading ground-truth images from table")
		prompts, paths, images, err := loadImageTable(cfg.GTDataPath)
		if err != nil {
			return nil, err
		}
		n := cfg.capLen(len(prompts))
		e.prompts, e.gtPaths, e.gtImages = prompts[:n], paths[:n], images[:n]
		return e, nil
	}

	if cfg.BaseModel == nil || cfg.Generate == nil {
		return nil, api.NewConfigError("either a base model or an existing ground-truth table is required")
	}
	e.prompts = cfg.truncated()
	log.Info().Int("prompts", len(e.prompts)).Msg("generating ground-truth images with base model")
	images, paths, err := e.generateImages(ctx, cfg.BaseModel, cfg.Generate, filepath.Join(cfg.workDir(), "reference"))
	if err != nil {
		return nil, fmt.Errorf("generate ground truth: %w", err)
	}
	e.gtImages, e.gtPaths = images, paths
	return e, nil
}

// generateImages runs the adapter over every prompt and persists each image
// under dir, returning both the decoded images and their paths.
func (e *imageEvaluator) generateImages(ctx context.Context, model api.Model, fn api.GenerateFn, dir string) ([]image.Image, []string, error) {
	images := make([]image.Image, len(e.prompts))
	paths := make([]string, len(e.prompts))
	for i, rec := range e.prompts {
		out, err := retry.Do(ctx, e.cfg.Retry, func(ctx context.Context) (api.Output, error) {
			return fn(ctx, model, rec, e.cfg.Params)
		})
		if err != nil {
			return nil, nil, fmt.Errorf("prompt %d: %w", i, err)
		}
		if out.Image == nil {
			return nil, nil, fmt.Errorf("prompt %d: adapter returned no image", i)
		}
		path := filepath.Join(dir, fmt.Sprintf("%03d.png", i))
		if err := dataset.SaveImage(path, out.Image); err != nil {
			return nil, nil, err
		}
		images[i] = out.Image
		paths[i] = path
		log.Debug().Int("prompt", i).Str("path", path).Msg("generated image")
	}
	return images, paths, nil
}

// loadImageTable reads a persisted prompt/image-path table and decodes the
// referenced images.
func loadImageTable(path string) ([]api.PromptRecord, []string, []image.Image, error) {
	t, err := tabular.Read(path)
	if err != nil {
		return nil, nil, nil, err
	}
	paths, ok := t.Values(outputColumn)
	if !ok {
		return nil, nil, nil, api.NewConfigError("table %s has no %q column", path, outputColumn)
	}
	promptValues, _ := t.Values(tabular.PromptColumn)

	prompts := make([]api.PromptRecord, len(promptValues))
	images := make([]image.Image, len(paths))
	for i := range promptValues {
		prompts[i] = api.PromptRecord{Prompt: promptValues[i]}
		if images[i], err = dataset.LoadImage(paths[i]); err != nil {
			return nil, nil, nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return prompts, paths, images, nil
}

func (e *imageEvaluator) Score(ctx context.Context, target api.Target, outputDir string) ([]api.ScoreRecord, map[string]float64, error) {
	images, paths, err := e.targetImages(ctx, target, outputDir)
	if err != nil {
		return nil, nil, err
	}
	if len(images) != len(e.prompts) {
		return nil, nil, api.NewConfigError("target produced %d images for %d prompts", len(images), len(e.prompts))
	}

	records := make([]api.ScoreRecord, len(e.prompts))
	for i := range e.prompts {
		in := api.ImageScoreInputs{
			Output:   images[i],
			Expected: e.gtImages[i],
			Prompt:   e.prompts[i].Prompt,
		}
		s, err := retry.Do(ctx, e.cfg.Retry, func(ctx context.Context) (api.Score, error) {
			s := e.scorer.Score(ctx, in)
			return s, s.Error
		})
		if err != nil {
			return nil, nil, fmt.Errorf("score prompt %d: %w", i, err)
		}
		records[i] = api.ScoreRecord{
			Prompt:       e.prompts[i].Prompt,
			BaseOutput:   e.gtPaths[i],
			TargetOutput: paths[i],
			Metrics:      map[string]float64{s.Name: s.Score},
		}
	}

	e.predImages, e.predPaths = images, paths
	e.records = records
	return records, Aggregate(records), nil
}

func (e *imageEvaluator) targetImages(ctx context.Context, target api.Target, outputDir string) ([]image.Image, []string, error) {
	if target.TablePath != "" {
		log.Info().Str("path", target.TablePath).Msg("loading target images from table")
		_, paths, images, err := loadImageTable(target.TablePath)
		if err != nil {
			return nil, nil, err
		}
		n := e.cfg.capLen(len(paths))
		return images[:n], paths[:n], nil
	}
	fn := target.Generate
	if fn == nil {
		fn = e.cfg.Generate
	}
	if target.Model == nil || fn == nil {
		return nil, nil, api.NewConfigError("target needs a model or a prediction table")
	}
	dir := filepath.Join(e.cfg.workDir(), "target")
	if outputDir != "" {
		dir = filepath.Join(outputDir, "target")
	}
	log.Info().Int("prompts", len(e.prompts)).Str("dir", dir).Msg("generating target images")
	return e.generateImages(ctx, target.Model, fn, dir)
}

func (e *imageEvaluator) GenerationFn() api.GenerateFn { return e.cfg.Generate }

func (e *imageEvaluator) DumpGroundTruth(path string) error {
	return dumpImagePaths(path, e.prompts, e.gtPaths)
}

func (e *imageEvaluator) DumpPredictions(path string) error {
	if e.predPaths == nil {
		return api.NewConfigError("no target outputs to dump, run Score first")
	}
	return dumpImagePaths(path, e.prompts, e.predPaths)
}

func dumpImagePaths(path string, prompts []api.PromptRecord, imagePaths []string) error {
	t := &tabular.Table{Columns: []string{tabular.PromptColumn, outputColumn}}
	for i := range prompts {
		t.Rows = append(t.Rows, []string{prompts[i].Prompt, imagePaths[i]})
	}
	return tabular.Write(path, t)
}

func (e *imageEvaluator) WorstExamples(topK int, metric string) []api.ScoreRecord {
	return WorstExamples(e.records, topK, metric)
}
