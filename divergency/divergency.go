// Package divergency computes token-level divergence between a ground-truth
// text and a target model's text. A quantized model that stays close to its
// base typically diverges late (high fdt) and rarely (low sdt).
package divergency

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Tokenizer converts text into a token id sequence.
type Tokenizer interface {
	Tokenize(text string) ([]uint, error)
}

// Metric column names emitted for text tasks.
const (
	MetricFDT     = "fdt"      // index of the first divergent token
	MetricFDTNorm = "fdt_norm" // fdt normalized by the reference length
	MetricSDT     = "sdt"      // share of divergent token positions
)

type tiktokenTokenizer struct {
	codec tokenizer.Codec
}

// NewTiktoken builds a Tokenizer from a tiktoken encoding name such as
// "cl100k_base" or "o200k_base".
func NewTiktoken(encoding string) (Tokenizer, error) {
	codec, err := tokenizer.Get(tokenizer.Encoding(encoding))
	if err != nil {
		return nil, fmt.Errorf("unknown tokenizer encoding %q: %w", encoding, err)
	}
	return &tiktokenTokenizer{codec: codec}, nil
}

// ForModel builds a Tokenizer for a known model name, falling back to
// cl100k_base when the model is not in the tiktoken registry.
func ForModel(model string) (Tokenizer, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, fmt.Errorf("fallback tokenizer: %w", err)
		}
	}
	return &tiktokenTokenizer{codec: codec}, nil
}

func (t *tiktokenTokenizer) Tokenize(text string) ([]uint, error) {
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("encode text: %w", err)
	}
	return ids, nil
}

// Metrics computes the divergency columns for a reference/candidate pair.
//
// fdt is the index of the first position where the token sequences differ,
// equal to the reference length when the candidate is an exact extension of
// it. fdt_norm divides fdt by the reference length (1.0 means no early
// divergence). sdt is the fraction of positions, over the longer sequence,
// holding different tokens; missing positions count as divergent.
func Metrics(tok Tokenizer, reference, candidate string) (map[string]float64, error) {
	ref, err := tok.Tokenize(reference)
	if err != nil {
		return nil, err
	}
	cand, err := tok.Tokenize(candidate)
	if err != nil {
		return nil, err
	}

	shorter := len(ref)
	if len(cand) < shorter {
		shorter = len(cand)
	}
	longer := len(ref)
	if len(cand) > longer {
		longer = len(cand)
	}

	fdt := shorter
	divergent := longer - shorter
	for i := 0; i < shorter; i++ {
		if ref[i] != cand[i] {
			if i < fdt {
				fdt = i
			}
			divergent++
		}
	}
	// Equal sequences diverge nowhere; report the full reference length.
	if fdt == shorter && len(ref) == len(cand) {
		fdt = len(ref)
	}

	fdtNorm := 1.0
	if len(ref) > 0 {
		fdtNorm = float64(fdt) / float64(len(ref))
		if fdtNorm > 1 {
			fdtNorm = 1
		}
	}
	sdt := 0.0
	if longer > 0 {
		sdt = float64(divergent) / float64(longer)
	}

	return map[string]float64{
		MetricFDT:     float64(fdt),
		MetricFDTNorm: fdtNorm,
		MetricSDT:     sdt,
	}, nil
}
