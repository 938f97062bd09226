package evaluators

import (
	"sort"

	"github.com/datar-psa/divbench/api"
	"github.com/datar-psa/divbench/tabular"
)

// SimilarityMetric is the primary metric column every evaluator emits.
const SimilarityMetric = "similarity"

// WorstExamples returns the topK records with the lowest metric value in
// ascending order. Ties keep prompt order, so reruns report the same rows.
func WorstExamples(records []api.ScoreRecord, topK int, metric string) []api.ScoreRecord {
	out := make([]api.ScoreRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metrics[metric] < out[j].Metrics[metric]
	})
	if topK >= 0 && topK < len(out) {
		out = out[:topK]
	}
	return out
}

// Aggregate reduces per-sample metrics to their column-wise mean.
func Aggregate(records []api.ScoreRecord) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, rec := range records {
		for name, v := range rec.Metrics {
			sums[name] += v
			counts[name]++
		}
	}
	out := make(map[string]float64, len(sums))
	for name, sum := range sums {
		out[name] = sum / float64(counts[name])
	}
	return out
}

// metricColumns returns the metric names in report order: similarity first,
// the rest alphabetical.
func metricColumns(records []api.ScoreRecord) []string {
	seen := make(map[string]bool)
	for _, rec := range records {
		for name := range rec.Metrics {
			seen[name] = true
		}
	}
	var rest []string
	for name := range seen {
		if name != SimilarityMetric {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	var cols []string
	if seen[SimilarityMetric] {
		cols = append(cols, SimilarityMetric)
	}
	return append(cols, rest...)
}

// RecordsTable renders score records as a per-sample metrics table.
func RecordsTable(records []api.ScoreRecord) *tabular.Table {
	metrics := metricColumns(records)
	t := &tabular.Table{
		Columns: append([]string{tabular.PromptColumn, "base_output", "target_output"}, metrics...),
	}
	for _, rec := range records {
		row := []string{rec.Prompt, rec.BaseOutput, rec.TargetOutput}
		for _, name := range metrics {
			row = append(row, tabular.FormatFloat(rec.Metrics[name]))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// AggregateTable renders column-wise means as a single-row table with the
// sample count in front.
func AggregateTable(aggregate map[string]float64, samples int) *tabular.Table {
	names := make([]string, 0, len(aggregate))
	for name := range aggregate {
		names = append(names, name)
	}
	sort.Strings(names)
	sort.SliceStable(names, func(i, j int) bool {
		if names[i] == SimilarityMetric {
			return names[j] != SimilarityMetric
		}
		return false
	})

	t := &tabular.Table{Columns: append([]string{"samples"}, names...)}
	row := []string{tabular.FormatFloat(float64(samples))}
	for _, name := range names {
		row = append(row, tabular.FormatFloat(aggregate[name]))
	}
	t.Rows = append(t.Rows, row)
	return t
}
