package evaluators

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/datar-psa/divbench/api"
)

func rec(prompt string, similarity float64) api.ScoreRecord {
	return api.ScoreRecord{Prompt: prompt, Metrics: map[string]float64{"similarity": similarity}}
}

func TestWorstExamples(t *testing.T) {
	records := []api.ScoreRecord{
		rec("a", 0.9),
		rec("b", 0.2),
		rec("c", 0.2),
		rec("d", 0.5),
	}

	worst := WorstExamples(records, 3, "similarity")
	got := []string{worst[0].Prompt, worst[1].Prompt, worst[2].Prompt}
	// Ascending by score, ties keep prompt order.
	want := []string{"b", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("WorstExamples() order = %v, want %v", got, want)
	}

	if n := len(WorstExamples(records, 10, "similarity")); n != 4 {
		t.Errorf("WorstExamples(10) returned %d records, want all 4", n)
	}

	if records[0].Prompt != "a" {
		t.Error("WorstExamples() mutated its input")
	}
}

func TestAggregate(t *testing.T) {
	records := []api.ScoreRecord{
		{Metrics: map[string]float64{"similarity": 1.0, "fdt": 4}},
		{Metrics: map[string]float64{"similarity": 0.5, "fdt": 2}},
	}
	got := Aggregate(records)
	if got["similarity"] != 0.75 {
		t.Errorf("mean similarity = %v, want 0.75", got["similarity"])
	}
	if got["fdt"] != 3 {
		t.Errorf("mean fdt = %v, want 3", got["fdt"])
	}
}

func TestRecordsTable_ColumnOrder(t *testing.T) {
	records := []api.ScoreRecord{
		{
			Prompt:       "p",
			BaseOutput:   "base",
			TargetOutput: "target",
			Metrics:      map[string]float64{"sdt": 0.25, "similarity": 0.8, "fdt": 2},
		},
	}
	table := RecordsTable(records)
	want := []string{"prompt", "base_output", "target_output", "similarity", "fdt", "sdt"}
	if !reflect.DeepEqual(table.Columns, want) {
		t.Errorf("columns = %v, want %v", table.Columns, want)
	}
	if table.Rows[0][3] != "0.8" {
		t.Errorf("similarity cell = %q, want %q", table.Rows[0][3], "0.8")
	}
}

func TestNew_UnknownTask(t *testing.T) {
	_, err := New(context.Background(), api.Task("audio"), Config{})
	var cerr *api.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("New() error = %v, want ConfigError", err)
	}
	if want := `"audio"`; !strings.Contains(cerr.Msg, want) {
		t.Errorf("error %q does not name the unsupported task", cerr.Msg)
	}
	if !strings.Contains(cerr.Msg, string(api.TaskText)) || !strings.Contains(cerr.Msg, string(api.TaskImageInpainting)) {
		t.Errorf("error %q does not list supported tasks", cerr.Msg)
	}
}
