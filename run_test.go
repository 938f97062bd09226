package divbench

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/datar-psa/divbench/api"
	"github.com/datar-psa/divbench/tabular"
)

// fakeBackend serves canned text outputs per model and counts loads.
type fakeBackend struct {
	outputs  map[string]map[string]string // model -> prompt -> output
	loads    []string
	released map[string]bool
}

func newFakeBackend(outputs map[string]map[string]string) *fakeBackend {
	return &fakeBackend{outputs: outputs, released: make(map[string]bool)}
}

func (b *fakeBackend) LoadModel(ctx context.Context, task api.Task, modelID string, options map[string]any) (api.Model, func(), error) {
	b.loads = append(b.loads, modelID)
	return modelID, func() { b.released[modelID] = true }, nil
}

func (b *fakeBackend) GenerationFn(task api.Task) (api.GenerateFn, error) {
	return func(ctx context.Context, model api.Model, rec api.PromptRecord, params api.GenParams) (api.Output, error) {
		name := model.(string)
		return api.Output{Text: b.outputs[name][rec.Prompt]}, nil
	}, nil
}

func textDataset(t *testing.T, prompts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.csv")
	table := &tabular.Table{Columns: []string{"text"}}
	for _, p := range prompts {
		table.Rows = append(table.Rows, []string{p})
	}
	if err := tabular.Write(path, table); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return path
}

func TestRun_TextEndToEnd(t *testing.T) {
	backend := newFakeBackend(map[string]map[string]string{
		"base":   {"Hello": "Hi there", "World": "Earth"},
		"target": {"Hello": "Hi", "World": "Earth"},
	})
	outputDir := filepath.Join(t.TempDir(), "out")

	result, err := Run(context.Background(), Options{
		Task:        "text",
		BaseModel:   "base",
		TargetModel: "target",
		Dataset:     textDataset(t, "Hello", "World"),
		OutputDir:   outputDir,
	}, backend, Deps{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Records) != 2 {
		t.Fatalf("Run() produced %d records, want 2", len(result.Records))
	}
	if result.Records[1].Metrics["similarity"] != 1.0 {
		t.Errorf("identical outputs scored %v, want 1.0", result.Records[1].Metrics["similarity"])
	}
	worst := result.Evaluator.WorstExamples(1, "similarity")
	if worst[0].Prompt != "Hello" {
		t.Errorf("worst example prompt = %q, want %q", worst[0].Prompt, "Hello")
	}

	// Base released before target loaded, both released at the end.
	if want := []string{"base", "target"}; len(backend.loads) != 2 || backend.loads[0] != want[0] || backend.loads[1] != want[1] {
		t.Errorf("model loads = %v, want %v", backend.loads, want)
	}
	if !backend.released["base"] || !backend.released["target"] {
		t.Errorf("released = %v, want both models released", backend.released)
	}

	for _, name := range []string{PerSampleFile, AggregateFile, TargetDumpFile} {
		if _, err := os.Stat(filepath.Join(outputDir, name)); err != nil {
			t.Errorf("artifact %s missing: %v", name, err)
		}
	}
	perSample, err := tabular.Read(filepath.Join(outputDir, PerSampleFile))
	if err != nil {
		t.Fatalf("read per-sample table: %v", err)
	}
	if _, ok := perSample.Column("similarity"); !ok {
		t.Errorf("per-sample table columns = %v, want a similarity column", perSample.Columns)
	}
}

func TestRun_EmptyBaseOutputIsScoreable(t *testing.T) {
	backend := newFakeBackend(map[string]map[string]string{
		"base":   {"Hello": "", "World": "Earth"},
		"target": {"Hello": "Hi", "World": "Earth"},
	})

	result, err := Run(context.Background(), Options{
		Task:        "text",
		BaseModel:   "base",
		TargetModel: "target",
		Dataset:     textDataset(t, "Hello", "World"),
		OutputDir:   filepath.Join(t.TempDir(), "out"),
	}, backend, Deps{})
	if err != nil {
		t.Fatalf("Run() with an empty base output error = %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("Run() produced %d records, want 2", len(result.Records))
	}
	if got := result.Records[0].Metrics["exact_match"]; got != 0 {
		t.Errorf("exact_match against empty ground truth = %v, want 0", got)
	}
}

func TestRun_PersistedGroundTruthSkipsBaseModel(t *testing.T) {
	gtPath := filepath.Join(t.TempDir(), "gt.csv")
	dataset := textDataset(t, "Hello", "World")

	first := newFakeBackend(map[string]map[string]string{
		"base": {"Hello": "Hi there", "World": "Earth"},
	})
	_, err := Run(context.Background(), Options{
		Task:      "text",
		BaseModel: "base",
		GTData:    gtPath,
		Dataset:   dataset,
	}, first, Deps{})
	if err != nil {
		t.Fatalf("ground-truth run error = %v", err)
	}
	if _, err := os.Stat(gtPath); err != nil {
		t.Fatalf("ground truth not persisted: %v", err)
	}

	second := newFakeBackend(map[string]map[string]string{
		"target": {"Hello": "Hi there", "World": "Earth"},
	})
	result, err := Run(context.Background(), Options{
		Task:        "text",
		TargetModel: "target",
		GTData:      gtPath,
		Dataset:     dataset,
	}, second, Deps{})
	if err != nil {
		t.Fatalf("target run error = %v", err)
	}
	for _, id := range second.loads {
		if id == "base" || id == "" {
			t.Errorf("base model loaded despite persisted ground truth: loads = %v", second.loads)
		}
	}
	if result.Aggregate["similarity"] != 1.0 {
		t.Errorf("aggregate similarity = %v, want 1.0", result.Aggregate["similarity"])
	}
}

func TestRun_GroundTruthOnly(t *testing.T) {
	backend := newFakeBackend(map[string]map[string]string{
		"base": {"Hello": "Hi there"},
	})
	gtPath := filepath.Join(t.TempDir(), "gt.csv")
	result, err := Run(context.Background(), Options{
		Task:      "text",
		BaseModel: "base",
		GTData:    gtPath,
		Dataset:   textDataset(t, "Hello"),
	}, backend, Deps{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Records != nil {
		t.Errorf("records = %v, want none without a target", result.Records)
	}
	gt, err := tabular.Read(gtPath)
	if err != nil {
		t.Fatalf("read persisted ground truth: %v", err)
	}
	if len(gt.Rows) != 1 || gt.Rows[0][1] != "Hi there" {
		t.Errorf("persisted ground truth rows = %v", gt.Rows)
	}
}

func TestOptions_Check(t *testing.T) {
	existing := filepath.Join(t.TempDir(), "gt.csv")
	if err := os.WriteFile(existing, []byte("prompt,output\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"base model only", Options{Task: "text", BaseModel: "m"}, false},
		{"existing gt only", Options{Task: "text", GTData: existing}, false},
		{"neither source", Options{Task: "text"}, true},
		{"missing gt table without base model", Options{Task: "text", GTData: "/nonexistent.csv"}, true},
		{"unknown task", Options{Task: "audio", BaseModel: "m"}, true},
		{"target model and data", Options{Task: "text", BaseModel: "m", TargetModel: "t", TargetData: existing}, true},
		{"negative samples", Options{Task: "text", BaseModel: "m", NumSamples: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Check()
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cerr *api.ConfigError
				if !errors.As(err, &cerr) {
					t.Errorf("Check() error = %v, want ConfigError", err)
				}
			}
		})
	}
}

func TestReadBackendOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cb.json")
	if err := os.WriteFile(path, []byte(`{"cache_size": 2, "mode": "latency"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	got := ReadBackendOptions(path)
	if got["mode"] != "latency" {
		t.Errorf("options = %v, want mode=latency", got)
	}

	if got := ReadBackendOptions(filepath.Join(t.TempDir(), "missing.json")); got != nil {
		t.Errorf("missing file options = %v, want nil", got)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := ReadBackendOptions(bad); got != nil {
		t.Errorf("malformed file options = %v, want nil", got)
	}

	if got := ReadBackendOptions(""); got != nil {
		t.Errorf("empty path options = %v, want nil", got)
	}
}
