package divbench

import (
	"github.com/datar-psa/divbench/api"
)

type Task = api.Task
type PromptRecord = api.PromptRecord
type Output = api.Output
type GenParams = api.GenParams
type GenerateFn = api.GenerateFn
type ScoreRecord = api.ScoreRecord
type Evaluator = api.Evaluator
type Embedder = api.Embedder
type LLMGenerator = api.LLMGenerator
type Scorer = api.Scorer
type Score = api.Score
type ScoreInputs = api.ScoreInputs
type ImageScorer = api.ImageScorer

const (
	TaskText            = api.TaskText
	TaskTextToImage     = api.TaskTextToImage
	TaskVisualText      = api.TaskVisualText
	TaskImageToImage    = api.TaskImageToImage
	TaskImageInpainting = api.TaskImageInpainting
)
