// Package llamacli runs a local llama.cpp command-line binary for text
// generation. Every call is one subprocess invocation; failures carry the
// captured stderr so the retry layer can classify them.
package llamacli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/datar-psa/divbench/api"
)

// DefaultBinary is the llama.cpp CLI entry point looked up on PATH.
const DefaultBinary = "llama-cli"

// Backend runs generations through a llama.cpp binary.
type Backend struct {
	binary string
}

// New builds a Backend. An empty binary falls back to DefaultBinary.
func New(binary string) *Backend {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Backend{binary: binary}
}

// ModelRef is the api.Model handle for a local GGUF model file.
type ModelRef struct {
	binary    string
	modelPath string
	extraArgs []string
}

// Name returns the model file path.
func (m *ModelRef) Name() string { return m.modelPath }

// LoadModel validates that the model file exists and builds a handle.
// An "args" option holding a string slice is passed through to the binary.
func (b *Backend) LoadModel(ctx context.Context, task api.Task, modelID string, options map[string]any) (api.Model, func(), error) {
	if task != api.TaskText {
		return nil, nil, api.NewConfigError("the llama.cpp CLI backend only supports the %s task", api.TaskText)
	}
	if _, err := os.Stat(modelID); err != nil {
		return nil, nil, fmt.Errorf("model file %s: %w", modelID, err)
	}

	ref := &ModelRef{binary: b.binary, modelPath: modelID}
	for key, value := range options {
		if key == "args" {
			if args, ok := stringArgs(value); ok {
				ref.extraArgs = args
				continue
			}
		}
		log.Debug().Str("option", key).Msg("ignoring backend option for CLI model")
	}
	return ref, func() {}, nil
}

// stringArgs accepts a native string slice and the []any form that JSON
// config files decode to.
func stringArgs(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		args := make([]string, len(v))
		for i, el := range v {
			s, ok := el.(string)
			if !ok {
				return nil, false
			}
			args[i] = s
		}
		return args, true
	}
	return nil, false
}

// GenerationFn returns the text adapter; image tasks have no CLI surface.
func (b *Backend) GenerationFn(task api.Task) (api.GenerateFn, error) {
	if task != api.TaskText {
		return nil, api.NewConfigError("the llama.cpp CLI backend only supports the %s task", api.TaskText)
	}
	return GenerateText, nil
}

// GenerateText runs one generation subprocess. Sampling is forced
// deterministic with temperature zero and the configured seed.
func GenerateText(ctx context.Context, model api.Model, rec api.PromptRecord, params api.GenParams) (api.Output, error) {
	ref, ok := model.(*ModelRef)
	if !ok {
		return api.Output{}, api.NewConfigError("model handle %T is not a CLI model", model)
	}

	args := []string{
		"-m", ref.modelPath,
		"-p", rec.Prompt,
		"--temp", "0",
		"--seed", strconv.FormatInt(params.Seed, 10),
		"--no-warmup",
	}
	if params.MaxNewTokens > 0 {
		args = append(args, "-n", strconv.Itoa(params.MaxNewTokens))
	}
	if params.UseChatTemplate {
		args = append(args, "--jinja")
	}
	args = append(args, ref.extraArgs...)

	cmd := exec.CommandContext(ctx, ref.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Str("binary", ref.binary).Str("model", ref.modelPath).Msg("running generation subprocess")
	if err := cmd.Run(); err != nil {
		return api.Output{}, &api.SubprocessError{
			Cmd:    ref.binary,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	text := stdout.String()
	if params.SkipPrompt && len(text) >= len(rec.Prompt) {
		// The CLI echoes the prompt at the head of stdout.
		text = text[len(rec.Prompt):]
	}
	return api.Output{Text: text}, nil
}
