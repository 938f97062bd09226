package divbench

import "github.com/datar-psa/divbench/api"

var (
	// ErrNoExpectedValue is returned when an expected value is required but not provided
	ErrNoExpectedValue = api.ErrNoExpectedValue
	// ErrLLMGenerationFailed is returned when LLM generation fails
	ErrLLMGenerationFailed = api.ErrLLMGenerationFailed
)

type ConfigError = api.ConfigError
type BackendError = api.BackendError
type SubprocessError = api.SubprocessError
