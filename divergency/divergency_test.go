package divergency

import (
	"strings"
	"testing"
)

// wordTokenizer maps each whitespace-separated word to a stable id.
type wordTokenizer struct{}

func (wordTokenizer) Tokenize(text string) ([]uint, error) {
	words := strings.Fields(text)
	ids := make([]uint, len(words))
	for i, w := range words {
		var h uint
		for _, r := range w {
			h = h*31 + uint(r)
		}
		ids[i] = h
	}
	return ids, nil
}

func TestMetrics(t *testing.T) {
	tok := wordTokenizer{}

	tests := []struct {
		name        string
		reference   string
		candidate   string
		wantFDT     float64
		wantFDTNorm float64
		wantSDT     float64
	}{
		{
			name:        "identical",
			reference:   "the quick brown fox",
			candidate:   "the quick brown fox",
			wantFDT:     4,
			wantFDTNorm: 1,
			wantSDT:     0,
		},
		{
			name:        "diverges immediately",
			reference:   "alpha beta gamma",
			candidate:   "delta beta gamma",
			wantFDT:     0,
			wantFDTNorm: 0,
			wantSDT:     1.0 / 3.0,
		},
		{
			name:        "diverges midway",
			reference:   "one two three four",
			candidate:   "one two tres four",
			wantFDT:     2,
			wantFDTNorm: 0.5,
			wantSDT:     0.25,
		},
		{
			name:        "candidate truncated",
			reference:   "a b c d",
			candidate:   "a b",
			wantFDT:     2,
			wantFDTNorm: 0.5,
			wantSDT:     0.5,
		},
		{
			name:        "both empty",
			reference:   "",
			candidate:   "",
			wantFDT:     0,
			wantFDTNorm: 1,
			wantSDT:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Metrics(tok, tt.reference, tt.candidate)
			if err != nil {
				t.Fatalf("Metrics() err = %v", err)
			}
			if got[MetricFDT] != tt.wantFDT {
				t.Errorf("fdt = %v, want %v", got[MetricFDT], tt.wantFDT)
			}
			if got[MetricFDTNorm] != tt.wantFDTNorm {
				t.Errorf("fdt_norm = %v, want %v", got[MetricFDTNorm], tt.wantFDTNorm)
			}
			if got[MetricSDT] != tt.wantSDT {
				t.Errorf("sdt = %v, want %v", got[MetricSDT], tt.wantSDT)
			}
		})
	}
}
