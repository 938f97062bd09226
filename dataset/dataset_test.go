package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/datar-psa/divbench/api"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_CSV(t *testing.T) {
	path := writeFile(t, "data.csv", "text,split\nfirst,validation\nskipped,train\nsecond,validation\n")

	got, err := Load(Options{Path: path})
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Load() records = %d, want 2", len(got))
	}
	if got[0].Prompt != "first" || got[1].Prompt != "second" {
		t.Errorf("Load() = %q, %q", got[0].Prompt, got[1].Prompt)
	}
}

func TestLoad_CSVWithoutSplitColumn(t *testing.T) {
	path := writeFile(t, "data.csv", "question\nq1\nq2\nq3\n")

	got, err := Load(Options{Path: path, Field: "question"})
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Load() records = %d, want all rows when no split column", len(got))
	}
}

func TestLoad_SplitSlice(t *testing.T) {
	path := writeFile(t, "data.csv", "text\na\nb\nc\nd\n")

	got, err := Load(Options{Path: path, Split: "validation[:2]"})
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Load() records = %d, want 2 after slice", len(got))
	}
}

func TestLoad_JSONStrings(t *testing.T) {
	path := writeFile(t, "data.json", `["one", "two"]`)

	got, err := Load(Options{Path: path})
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if len(got) != 2 || got[0].Prompt != "one" {
		t.Errorf("Load() = %+v", got)
	}
}

func TestLoad_JSONObjects(t *testing.T) {
	path := writeFile(t, "data.json", `[{"text": "hello"}, {"text": "world"}]`)

	got, err := Load(Options{Path: path})
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if len(got) != 2 || got[1].Prompt != "world" {
		t.Errorf("Load() = %+v", got)
	}
}

func TestLoad_MissingField(t *testing.T) {
	path := writeFile(t, "data.csv", "text\nhello\n")

	_, err := Load(Options{Path: path, Field: "question"})
	if err == nil {
		t.Fatal("Load() err = nil, want config error")
	}
	var cerr *api.ConfigError
	if !errors.As(err, &cerr) {
		t.Errorf("Load() err = %T, want *api.ConfigError", err)
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	path := writeFile(t, "data.parquet", "binary")
	if _, err := Load(Options{Path: path}); err == nil {
		t.Error("Load() err = nil, want unsupported format error")
	}
}

func TestDefault(t *testing.T) {
	for _, task := range api.Tasks() {
		for _, lang := range []string{"en", "cn", "unknown"} {
			got := Default(task, lang)
			if len(got) == 0 {
				t.Errorf("Default(%s, %s) is empty", task, lang)
			}
			for _, rec := range got {
				if rec.Prompt == "" {
					t.Errorf("Default(%s, %s) has empty prompt", task, lang)
				}
			}
		}
	}

	for _, rec := range Default(api.TaskImageInpainting, "en") {
		if rec.Image == nil || rec.Mask == nil {
			t.Error("Default(image-inpainting) must carry synthetic image and mask")
		}
	}
	for _, rec := range Default(api.TaskVisualText, "en") {
		if rec.Image == nil {
			t.Error("Default(visual-text) must carry a synthetic image")
		}
	}
}

func TestImage_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img", "sample.png")

	src := SyntheticImage(32, 0)
	if err := SaveImage(path, src); err != nil {
		t.Fatalf("SaveImage() err = %v", err)
	}
	got, err := LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage() err = %v", err)
	}
	if got.Bounds() != src.Bounds() {
		t.Errorf("LoadImage() bounds = %v, want %v", got.Bounds(), src.Bounds())
	}
}
