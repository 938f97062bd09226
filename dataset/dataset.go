// Package dataset resolves the prompt set for a run: either records loaded
// from an external CSV/JSON dataset or a built-in default list keyed by the
// model's primary language.
package dataset

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	_ "image/jpeg"
	"image/png"

	"github.com/datar-psa/divbench/api"
	"github.com/datar-psa/divbench/tabular"
)

// Options select a prompt source.
type Options struct {
	// Path is a CSV or JSON dataset file. Empty means built-in defaults.
	Path string
	// Field is the column or object key holding the prompt text.
	// Defaults to "text".
	Field string
	// Split selects a subset, e.g. "validation" or "train[:32]". The name
	// part filters on a "split" column when the dataset has one; the slice
	// suffix truncates the result.
	Split string
	// ImageField and MaskField name columns holding image file paths for
	// tasks that consume them. Paths are resolved relative to the dataset.
	ImageField string
	MaskField  string
}

var splitRe = regexp.MustCompile(`^([^\[\]]*)(?:\[:(\d+)\])?$`)

// Load reads the prompt set described by opts.
func Load(opts Options) ([]api.PromptRecord, error) {
	if opts.Field == "" {
		opts.Field = "text"
	}
	name, limit, err := parseSplit(opts.Split)
	if err != nil {
		return nil, err
	}

	var records []api.PromptRecord
	switch ext := strings.ToLower(filepath.Ext(opts.Path)); ext {
	case ".json":
		records, err = loadJSON(opts, name)
	case ".csv":
		records, err = loadCSV(opts, name)
	default:
		return nil, api.NewConfigError("unsupported dataset format %q, want .csv or .json", ext)
	}
	if err != nil {
		return nil, err
	}

	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

func parseSplit(split string) (name string, limit int, err error) {
	if split == "" {
		return "validation", 0, nil
	}
	m := splitRe.FindStringSubmatch(split)
	if m == nil {
		return "", 0, api.NewConfigError("malformed split %q", split)
	}
	name = m[1]
	if m[2] != "" {
		limit, err = strconv.Atoi(m[2])
		if err != nil {
			return "", 0, api.NewConfigError("malformed split %q", split)
		}
	}
	return name, limit, nil
}

func loadCSV(opts Options, split string) ([]api.PromptRecord, error) {
	t, err := readCSV(opts.Path)
	if err != nil {
		return nil, err
	}

	fieldIdx, ok := t.Column(opts.Field)
	if !ok {
		return nil, api.NewConfigError("dataset %s has no field %q", opts.Path, opts.Field)
	}
	splitIdx, hasSplit := t.Column("split")
	imageIdx, hasImage := t.Column(opts.ImageField)
	maskIdx, hasMask := t.Column(opts.MaskField)

	base := filepath.Dir(opts.Path)
	var out []api.PromptRecord
	for _, row := range t.Rows {
		if hasSplit && split != "" && row[splitIdx] != split {
			continue
		}
		rec := api.PromptRecord{Prompt: row[fieldIdx]}
		if hasImage && opts.ImageField != "" && row[imageIdx] != "" {
			rec.ImagePath = resolve(base, row[imageIdx])
			if rec.Image, err = LoadImage(rec.ImagePath); err != nil {
				return nil, err
			}
		}
		if hasMask && opts.MaskField != "" && row[maskIdx] != "" {
			rec.MaskPath = resolve(base, row[maskIdx])
			if rec.Mask, err = LoadImage(rec.MaskPath); err != nil {
				return nil, err
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// readCSV reads a dataset table. Unlike persisted benchmark tables, datasets
// are foreign files, so no prompt column is required here.
func readCSV(path string) (*tabular.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer f.Close()
	t, err := tabular.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return t, nil
}

func loadJSON(opts Options, split string) ([]api.PromptRecord, error) {
	data, err := os.ReadFile(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", opts.Path, err)
	}

	// Either a bare array of strings or an array of objects.
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", opts.Path, err)
	}

	base := filepath.Dir(opts.Path)
	var out []api.PromptRecord
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, api.PromptRecord{Prompt: s})
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, fmt.Errorf("parse dataset %s: %w", opts.Path, err)
		}
		if split != "" {
			if v, ok := obj["split"].(string); ok && v != split {
				continue
			}
		}
		prompt, ok := obj[opts.Field].(string)
		if !ok {
			return nil, api.NewConfigError("dataset %s record has no field %q", opts.Path, opts.Field)
		}
		rec := api.PromptRecord{Prompt: prompt}
		if p, ok := obj[opts.ImageField].(string); ok && opts.ImageField != "" && p != "" {
			rec.ImagePath = resolve(base, p)
			if rec.Image, err = LoadImage(rec.ImagePath); err != nil {
				return nil, err
			}
		}
		if p, ok := obj[opts.MaskField].(string); ok && opts.MaskField != "" && p != "" {
			rec.MaskPath = resolve(base, p)
			if rec.Mask, err = LoadImage(rec.MaskPath); err != nil {
				return nil, err
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// LoadImage decodes a PNG or JPEG image from disk.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return img, nil
}

// SaveImage writes img to path as PNG, creating parent directories.
func SaveImage(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode image %s: %w", path, err)
	}
	return nil
}
