package evaluators

import (
	"context"

	"github.com/datar-psa/divbench/api"
)

// New constructs the evaluator for task. The ground-truth phase runs inside
// the constructor: it either loads the persisted table or generates outputs
// with the base model, so by the time New returns the base model is no
// longer needed.
//
// Dispatch is an exhaustive switch over the closed task set rather than a
// mutable lookup table; adding a task without an evaluator arm fails here
// with a configuration error.
func New(ctx context.Context, task api.Task, cfg Config) (api.Evaluator, error) {
	switch task {
	case api.TaskText, api.TaskVisualText:
		return newText(ctx, cfg)
	case api.TaskTextToImage, api.TaskImageToImage, api.TaskImageInpainting:
		return newImage(ctx, cfg)
	default:
		return nil, api.NewConfigError("no evaluator for task %q, supported tasks: %s", task, api.TaskNames())
	}
}
