// Package openaiserver adapts any OpenAI-compatible inference server, such
// as llama.cpp's llama-server or vLLM, to the benchmark's generation
// interfaces. The base URL selects the server; both the chat and the legacy
// completion surfaces are supported so echo-style servers work too.
package openaiserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"

	"github.com/datar-psa/divbench/api"
)

// Backend produces model handles and generation adapters for one server.
type Backend struct {
	client openai.Client
}

// Option configures a Backend.
type Option func(*options)

type options struct {
	baseURL    string
	apiKey     string
	requestOpt []openaiopt.RequestOption
}

// WithBaseURL points the backend at an OpenAI-compatible server, e.g.
// "http://localhost:8080/v1".
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithAPIKey sets the bearer token. Local servers usually accept any value.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithRequestOptions appends raw client options, used by tests to inject a
// recording HTTP client.
func WithRequestOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) { o.requestOpt = append(o.requestOpt, opts...) }
}

// New builds a Backend.
func New(opts ...Option) *Backend {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	clientOpts := make([]openaiopt.RequestOption, 0, len(o.requestOpt)+2)
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	if o.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.apiKey))
	}
	clientOpts = append(clientOpts, o.requestOpt...)
	return &Backend{client: openai.NewClient(clientOpts...)}
}

// ModelRef is the api.Model handle for a served model.
type ModelRef struct {
	client openai.Client
	name   string
}

// Name returns the served model identifier.
func (m *ModelRef) Name() string { return m.name }

// LoadModel builds a handle for modelID. The server owns the weights, so the
// release func is a no-op and extra backend options are only logged.
func (b *Backend) LoadModel(ctx context.Context, task api.Task, modelID string, options map[string]any) (api.Model, func(), error) {
	if len(options) > 0 {
		log.Debug().Str("model", modelID).Interface("options", options).Msg("ignoring backend options for served model")
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
		return nil, api.NewConfigError("no server adapter for task %q, supported tasks: %s", task, api.TaskNames())
	}
}

// GenerateText is the text and visual-text adapter. UseChatTemplate selects
// the chat surface; otherwise the legacy completion surface is used, with
// echo enabled when the prompt prefix is to be stripped afterwards.
func GenerateText(ctx context.Context, model api.Model, rec api.PromptRecord, params api.GenParams) (api.Output, error) {
	ref, err := modelRef(model)
	if err != nil {
		return api.Output{}, err
	}
	if params.UseChatTemplate || rec.Image != nil {
		out, err := chatCompletion(ctx, ref, rec, params)
		if err == nil && params.SkipPrompt {
			// Some chat templates echo the user turn at the head of the reply.
			out.Text = StripPrompt(out.Text, rec.Prompt)
		}
		return out, err
	}
	return legacyCompletion(ctx, ref, rec, params)
}

func chatCompletion(ctx context.Context, ref *ModelRef, rec api.PromptRecord, params api.GenParams) (api.Output, error) {
	content := openai.ChatCompletionUserMessageParamContentUnion{}
	if rec.Image != nil {
		data, err := pngBytes(rec.Image)
		if err != nil {
			return api.Output{}, err
		}
		url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
		content.OfArrayOfContentParts = []openai.ChatCompletionContentPartUnionParam{
			{
				OfText: &openai.ChatCompletionContentPartTextParam{Text: rec.Prompt},
			},
			{
				OfImageURL: &openai.ChatCompletionContentPartImageParam{
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: url},
				},
			},
		}
	} else {
		content.OfString = openai.String(rec.Prompt)
	}

	req := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(ref.name),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{OfUser: &openai.ChatCompletionUserMessageParam{Content: content}},
		},
		Temperature: openai.Float(0),
		Seed:        openai.Int(params.Seed),
	}
	if params.MaxNewTokens > 0 {
		req.MaxTokens = openai.Int(int64(params.MaxNewTokens))
	}

	resp, err := ref.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return api.Output{}, classify("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return api.Output{}, fmt.Errorf("model %s returned no choices", ref.name)
	}
	return api.Output{Text: resp.Choices[0].Message.Content}, nil
}

func legacyCompletion(ctx context.Context, ref *ModelRef, rec api.PromptRecord, params api.GenParams) (api.Output, error) {
	req := openai.CompletionNewParams{
		Model: openai.CompletionNewParamsModel(ref.name),
		Prompt: openai.CompletionNewParamsPromptUnion{
			OfString: openai.String(rec.Prompt),
		},
		Temperature: openai.Float(0),
		Seed:        openai.Int(params.Seed),
	}
	if params.SkipPrompt {
		req.Echo = openai.Bool(true)
	}
	if params.MaxNewTokens > 0 {
		req.MaxTokens = openai.Int(int64(params.MaxNewTokens))
	}

	resp, err := ref.client.Completions.New(ctx, req)
	if err != nil {
		return api.Output{}, classify("completion", err)
	}
	if len(resp.Choices) == 0 {
		return api.Output{}, fmt.Errorf("model %s returned no choices", ref.name)
	}
	text := resp.Choices[0].Text
	if params.SkipPrompt {
		text = StripPrompt(text, rec.Prompt)
	}
	return api.Output{Text: text}, nil
}

// StripPrompt removes the echoed prompt prefix from raw completion text:
// the first len(prompt) characters are dropped when present.
func StripPrompt(text, prompt string) string {
	if len(text) >= len(prompt) {
		return text[len(prompt):]
	}
	return text
}

// GenerateImage is the text-to-image adapter.
func GenerateImage(ctx context.Context, model api.Model, rec api.PromptRecord, params api.GenParams) (api.Output, error) {
	ref, err := modelRef(model)
	if err != nil {
		return api.Output{}, err
	}

	req := openai.ImageGenerateParams{
		Prompt:         rec.Prompt,
		Model:          openai.ImageModel(ref.name),
		N:              openai.Int(1),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	}
	if params.Resolution > 0 {
		req.Size = openai.ImageGenerateParamsSize(fmt.Sprintf("%dx%d", params.Resolution, params.Resolution))
	}

	resp, err := ref.client.Images.Generate(ctx, req)
	if err != nil {
		return api.Output{}, classify("image generation", err)
	}
	return decodeB64Image(ref.name, resp)
}

// EditImage is the image-to-image and inpainting adapter. The record's image
// is the edit source; the mask, when present, restricts the edited region.
func EditImage(ctx context.Context, model api.Model, rec api.PromptRecord, params api.GenParams) (api.Output, error) {
	ref, err := modelRef(model)
	if err != nil {
		return api.Output{}, err
	}
	if rec.Image == nil {
		return api.Output{}, api.NewConfigError("image editing requires a source image")
	}

	src, err := pngBytes(rec.Image)
	if err != nil {
		return api.Output{}, err
	}
	req := openai.ImageEditParams{
		Prompt: rec.Prompt,
		Model:  openai.ImageModel(ref.name),
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(src), "image.png", "image/png"),
		},
		N:              openai.Int(1),
		ResponseFormat: openai.ImageEditParamsResponseFormatB64JSON,
	}
	if rec.Mask != nil {
		mask, err := pngBytes(rec.Mask)
		if err != nil {
			return api.Output{}, err
		}
		req.Mask = openai.File(bytes.NewReader(mask), "mask.png", "image/png")
	}

	resp, err := ref.client.Images.Edit(ctx, req)
	if err != nil {
		return api.Output{}, classify("image edit", err)
	}
	return decodeB64Image(ref.name, resp)
}

func decodeB64Image(model string, resp *openai.ImagesResponse) (api.Output, error) {
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return api.Output{}, fmt.Errorf("model %s returned no image data", model)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return api.Output{}, fmt.Errorf("decode image payload: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return api.Output{}, fmt.Errorf("decode generated image: %w", err)
	}
	return api.Output{Image: img}, nil
}

func modelRef(model api.Model) (*ModelRef, error) {
	ref, ok := model.(*ModelRef)
	if !ok {
		return nil, api.NewConfigError("model handle %T is not a served model", model)
	}
	return ref, nil
}

func pngBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// classify maps an SDK failure to a transient BackendError when the HTTP
// status belongs to the retriable set.
func classify(op string, err error) error {
	var aerr *openai.Error
	if errors.As(err, &aerr) {
		return api.ClassifyHTTP(op, aerr.StatusCode, err)
	}
	return api.ClassifyNet(op, err)
}
