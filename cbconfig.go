package divbench

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
)

// ReadBackendOptions loads extra backend options from a JSON object file,
// passed through to Backend.LoadModel as-is. A missing or malformed file
// degrades to no options with a warning, never a failure.
func ReadBackendOptions(path string) map[string]any {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("backend options file not readable, continuing without")
		return nil
	}
	var options map[string]any
	if err := json.Unmarshal(data, &options); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("backend options file not parseable, continuing without")
		return nil
	}
	return options
}
