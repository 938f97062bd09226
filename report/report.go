// Package report renders benchmark results for the console: the aggregated
// metric table followed by the worst-scoring examples, with a colored
// character diff for text outputs.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/datar-psa/divbench/api"
	"github.com/datar-psa/divbench/textdiff"
)

// DefaultTopK is how many of the worst examples a report shows.
const DefaultTopK = 5

// Options configure report rendering.
type Options struct {
	// TopK is the number of worst examples to show. Zero means DefaultTopK.
	TopK int
	// Metric orders the worst examples. Defaults to "similarity".
	Metric string
	// Markers wrap inserted and deleted diff spans. Zero-value markers
	// render a plain diff; ANSIMarkers colorize it.
	Markers textdiff.Markers
}

func (o Options) withDefaults() Options {
	if o.TopK == 0 {
		o.TopK = DefaultTopK
	}
	if o.Metric == "" {
		o.Metric = "similarity"
	}
	return o
}

// TextResults writes the aggregate metrics and the worst text examples with
// an aligned reference/candidate diff per example.
func TextResults(w io.Writer, ev api.Evaluator, aggregate map[string]float64, opts Options) error {
	opts = opts.withDefaults()
	if err := writeAggregate(w, aggregate); err != nil {
		return err
	}

	for i, rec := range ev.WorstExamples(opts.TopK, opts.Metric) {
		aligned := textdiff.AlignLines(rec.BaseOutput, rec.TargetOutput, opts.Markers)
		_, err := fmt.Fprintf(w, "== worst example %d (%s=%.4f) ==\nprompt: %s\nsource model:\n%starget model:\n%sdiff:\n%s",
			i+1, opts.Metric, rec.Metrics[opts.Metric], rec.Prompt,
			aligned.Reference, aligned.Candidate, aligned.Diff)
		if err != nil {
			return err
		}
	}
	return nil
}

// ImageResults writes the aggregate metrics and the worst image examples as
// prompt plus the two image paths.
func ImageResults(w io.Writer, ev api.Evaluator, aggregate map[string]float64, opts Options) error {
	opts = opts.withDefaults()
	if err := writeAggregate(w, aggregate); err != nil {
		return err
	}

	for i, rec := range ev.WorstExamples(opts.TopK, opts.Metric) {
		_, err := fmt.Fprintf(w, "== worst example %d (%s=%.4f) ==\nprompt: %s\nsource image: %s\ntarget image: %s\n",
			i+1, opts.Metric, rec.Metrics[opts.Metric], rec.Prompt, rec.BaseOutput, rec.TargetOutput)
		if err != nil {
			return err
		}
	}
	return nil
}

func writeAggregate(w io.Writer, aggregate map[string]float64) error {
	names := make([]string, 0, len(aggregate))
	for name := range aggregate {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := fmt.Fprintf(w, "%s: %.4f\n", name, aggregate[name]); err != nil {
			return err
		}
	}
	return nil
}
