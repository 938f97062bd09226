package imagesim

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/datar-psa/divbench/api"
)

func solid(c color.RGBA, size int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPixel_IdenticalImages(t *testing.T) {
	img := solid(color.RGBA{R: 200, G: 100, B: 50, A: 255}, 64)

	got := Pixel().Score(context.Background(), api.ImageScoreInputs{Output: img, Expected: img})
	if got.Error != nil {
		t.Fatalf("Score() error = %v", got.Error)
	}
	if got.Score < 0.999 {
		t.Errorf("Score() = %v, want ~1.0 for identical images", got.Score)
	}
}

func TestPixel_DifferentImages(t *testing.T) {
	red := solid(color.RGBA{R: 255, A: 255}, 64)
	blue := solid(color.RGBA{B: 255, A: 255}, 64)

	same := Pixel().Score(context.Background(), api.ImageScoreInputs{Output: red, Expected: red})
	diff := Pixel().Score(context.Background(), api.ImageScoreInputs{Output: blue, Expected: red})
	if diff.Error != nil {
		t.Fatalf("Score() error = %v", diff.Error)
	}
	if diff.Score >= same.Score {
		t.Errorf("Score(different) = %v, want below Score(identical) = %v", diff.Score, same.Score)
	}
}

func TestPixel_ResolutionInvariant(t *testing.T) {
	small := solid(color.RGBA{R: 10, G: 20, B: 30, A: 255}, 32)
	large := solid(color.RGBA{R: 10, G: 20, B: 30, A: 255}, 256)

	got := Pixel().Score(context.Background(), api.ImageScoreInputs{Output: large, Expected: small})
	if got.Error != nil {
		t.Fatalf("Score() error = %v", got.Error)
	}
	if got.Score < 0.999 {
		t.Errorf("Score() = %v, want ~1.0 across resolutions of the same content", got.Score)
	}
}

func TestPixel_MissingInputs(t *testing.T) {
	img := solid(color.RGBA{A: 255}, 8)

	if got := Pixel().Score(context.Background(), api.ImageScoreInputs{Output: img}); got.Error == nil {
		t.Error("Score() error = nil, want missing expected error")
	}
	if got := Pixel().Score(context.Background(), api.ImageScoreInputs{Expected: img}); got.Error == nil {
		t.Error("Score() error = nil, want missing output error")
	}
}
