// Package gemini adapts Google GenAI models to the benchmark's generation
// interfaces: text and vision generation through the Gemini API, image
// generation and editing through the Imagen API, plus an embedder for the
// similarity scorer.
package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/datar-psa/divbench/api"
)

// Backend produces Gemini-backed model handles and generation adapters.
type Backend struct {
	client *genai.Client
}

// New wraps a genai.Client.
func New(client *genai.Client) *Backend {
	return &Backend{client: client}
}

// ModelRef is the api.Model handle for a Gemini model. It carries no
// connection state of its own; the client is shared.
type ModelRef struct {
	client *genai.Client
	name   string
}

// Name returns the model identifier, e.g. "gemini-2.5-flash".
func (m *ModelRef) Name() string { return m.name }

// LoadModel builds a handle for modelID. Remote models have no load/unload
// lifecycle, so the release func is a no-op; extra backend options are not
// applicable and only logged.
func (b *Backend) LoadModel(ctx context.Context, task api.Task, modelID string, options map[string]any) (api.Model, func(), error) {
	if len(options) > 0 {
		log.Debug().Str("model", modelID).Interface("options", options).Msg("ignoring backend options for remote model")
	}
	return &ModelRef{client: b.client, name: modelID}, func() {}, nil
}

// GenerationFn returns the adapter for task.
func (b *Backend) GenerationFn(task api.Task) (api.GenerateFn, error) {
	switch task {
	case api.TaskText, api.TaskVisualText:
		return GenerateText, nil
	case api.TaskTextToImage:
		return GenerateImage, nil
	case api.TaskImageToImage, api.TaskImageInpainting:
		return EditImage, nil
	default:
		return nil, api.NewConfigError("no gemini adapter for task %q, supported tasks: %s", task, api.TaskNames())
	}
}

// GenerateText is the text and visual-text adapter. Sampling is forced
// deterministic: temperature zero plus the configured seed.
func GenerateText(ctx context.Context, model api.Model, rec api.PromptRecord, params api.GenParams) (api.Output, error) {
	ref, err := modelRef(model)
	if err != nil {
		return api.Output{}, err
	}

	parts := []*genai.Part{{Text: rec.Prompt}}
	if rec.Image != nil {
		data, err := pngBytes(rec.Image)
		if err != nil {
			return api.Output{}, err
		}
		parts = append(parts, genai.NewPartFromBytes(data, "image/png"))
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0)),
		Seed:        genai.Ptr(int32(params.Seed)),
	}
	if params.MaxNewTokens > 0 {
		config.MaxOutputTokens = int32(params.MaxNewTokens)
	}

	resp, err := ref.client.Models.GenerateContent(ctx, ref.name, contents, config)
	if err != nil {
		return api.Output{}, classify("generate content", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return api.Output{}, fmt.Errorf("model %s returned no candidates", ref.name)
	}
	return api.Output{Text: resp.Candidates[0].Content.Parts[0].Text}, nil
}

// GenerateImage is the text-to-image adapter.
func GenerateImage(ctx context.Context, model api.Model, rec api.PromptRecord, params api.GenParams) (api.Output, error) {
	ref, err := modelRef(model)
	if err != nil {
		return api.Output{}, err
	}

	config := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		Seed:           genai.Ptr(int32(params.Seed)),
	}
	resp, err := ref.client.Models.GenerateImages(ctx, ref.name, rec.Prompt, config)
	if err != nil {
		return api.Output{}, classify("generate images", err)
	}
	return decodeGenerated(ref.name, generatedBytes(resp.GeneratedImages))
}

// EditImage is the image-to-image and inpainting adapter. The prompt record's
// image is the edit source; a mask, when present, restricts the edit to the
// masked region.
func EditImage(ctx context.Context, model api.Model, rec api.PromptRecord, params api.GenParams) (api.Output, error) {
	ref, err := modelRef(model)
	if err != nil {
		return api.Output{}, err
	}
	if rec.Image == nil {
		return api.Output{}, api.NewConfigError("image editing requires a source image")
	}

	srcBytes, err := pngBytes(rec.Image)
	if err != nil {
		return api.Output{}, err
	}
	refs := []genai.ReferenceImage{
		&genai.RawReferenceImage{
			ReferenceID:    1,
			ReferenceImage: &genai.Image{ImageBytes: srcBytes, MIMEType: "image/png"},
		},
	}
	config := &genai.EditImageConfig{
		NumberOfImages: 1,
		Seed:           genai.Ptr(int32(params.Seed)),
	}
	if rec.Mask != nil {
		maskBytes, err := pngBytes(rec.Mask)
		if err != nil {
			return api.Output{}, err
		}
		refs = append(refs, &genai.MaskReferenceImage{
			ReferenceID:    2,
			ReferenceImage: &genai.Image{ImageBytes: maskBytes, MIMEType: "image/png"},
			Config: &genai.MaskReferenceConfig{
				MaskMode: genai.MaskReferenceModeMaskModeUserProvided,
			},
		})
		config.EditMode = genai.EditModeInpaintInsertion
	}

	resp, err := ref.client.Models.EditImage(ctx, ref.name, rec.Prompt, refs, config)
	if err != nil {
		return api.Output{}, classify("edit image", err)
	}
	return decodeGenerated(ref.name, generatedBytes(resp.GeneratedImages))
}

func modelRef(model api.Model) (*ModelRef, error) {
	ref, ok := model.(*ModelRef)
	if !ok {
		return nil, api.NewConfigError("model handle %T is not a gemini model", model)
	}
	return ref, nil
}

func generatedBytes(images []*genai.GeneratedImage) []byte {
	if len(images) == 0 || images[0].Image == nil {
		return nil
	}
	return images[0].Image.ImageBytes
}

func decodeGenerated(model string, data []byte) (api.Output, error) {
	if len(data) == 0 {
		return api.Output{}, fmt.Errorf("model %s returned no image", model)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return api.Output{}, fmt.Errorf("decode generated image: %w", err)
	}
	return api.Output{Image: img}, nil
}

func pngBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// classify maps an API failure to a transient BackendError when the status
// code belongs to the retriable set.
func classify(op string, err error) error {
	var aerr genai.APIError
	if errors.As(err, &aerr) {
		return api.ClassifyHTTP(op, aerr.Code, err)
	}
	return api.ClassifyNet(op, err)
}
