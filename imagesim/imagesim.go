// Package imagesim scores the closeness of a generated image to its ground
// truth. The built-in scorer compares downsampled RGB content with cosine
// similarity; callers needing an embedding-based measure plug their own
// api.ImageScorer into the evaluator configuration.
package imagesim

import (
	"context"
	"fmt"
	"image"

	"github.com/datar-psa/divbench/api"
	"github.com/datar-psa/divbench/embedding"
)

// grid is the downsampling edge: images are pooled into grid x grid cells
// before comparison so the score reflects structure, not resolution.
const grid = 32

// Pixel returns the default pixel-space image scorer.
func Pixel() api.ImageScorer {
	return &pixelScorer{}
}

type pixelScorer struct{}

func (s *pixelScorer) Score(ctx context.Context, in api.ImageScoreInputs) api.Score {
	result := api.Score{
		Name:     "similarity",
		Metadata: make(map[string]any),
	}

	if in.Expected == nil {
		result.Error = api.ErrNoExpectedValue
		return result
	}
	if in.Output == nil {
		result.Error = fmt.Errorf("output image is required")
		return result
	}

	a := Vectorize(in.Expected)
	b := Vectorize(in.Output)
	similarity := embedding.Cosine(a, b)

	normalized := (similarity + 1.0) / 2.0
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	result.Score = normalized
	result.Metadata["cosine_similarity"] = similarity
	return result
}

// Vectorize pools img into a fixed-size RGB vector by averaging each cell.
func Vectorize(img image.Image) []float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([]float64, grid*grid*3)
	if w == 0 || h == 0 {
		return out
	}

	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			x0 := bounds.Min.X + gx*w/grid
			x1 := bounds.Min.X + (gx+1)*w/grid
			y0 := bounds.Min.Y + gy*h/grid
			y1 := bounds.Min.Y + (gy+1)*h/grid
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}

			var r, g, b, n float64
			for y := y0; y < y1 && y < bounds.Max.Y; y++ {
				for x := x0; x < x1 && x < bounds.Max.X; x++ {
					pr, pg, pb, _ := img.At(x, y).RGBA()
					r += float64(pr) / 65535.0
					g += float64(pg) / 65535.0
					b += float64(pb) / 65535.0
					n++
				}
			}
			if n == 0 {
				n = 1
			}
			base := (gy*grid + gx) * 3
			out[base] = r / n
			out[base+1] = g / n
			out[base+2] = b / n
		}
	}
	return out
}
