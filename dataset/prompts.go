package dataset

import (
	"image"
	"image/color"

	"github.com/datar-psa/divbench/api"
)

// defaultTextPrompts are used when no dataset is supplied, keyed by the
// primary language of the models under comparison.
var defaultTextPrompts = map[string][]string{
	"en": {
		"Who is Mark Twain?",
		"Who is William Shakespeare?",
		"Who is Agatha Christie?",
		"Who is Barbara Kingsolver?",
		"What is the capital of France?",
		"Explain the theory of relativity in simple terms.",
		"Write a short story about a robot learning to paint.",
		"What are the main causes of climate change?",
		"Describe the water cycle.",
		"What is the difference between a virus and a bacterium?",
	},
	"cn": {
		"马克·吐温是谁？",
		"莎士比亚是谁？",
		"法国的首都是哪里？",
		"用简单的语言解释相对论。",
		"写一个关于机器人学画画的短篇故事。",
		"气候变化的主要原因是什么？",
		"描述一下水循环。",
		"病毒和细菌有什么区别？",
	},
}

var defaultImagePrompts = map[string][]string{
	"en": {
		"a photo of an astronaut riding a horse on mars",
		"a watercolor painting of a lighthouse at sunset",
		"a close-up photo of a hummingbird drinking nectar",
		"an oil painting of a city street in the rain",
		"a cartoon fox reading a book under a tree",
	},
	"cn": {
		"一张宇航员在火星上骑马的照片",
		"一幅日落时灯塔的水彩画",
		"一张蜂鸟吸食花蜜的特写照片",
	},
}

var defaultVisualTextPrompts = map[string][]string{
	"en": {
		"What is unusual about this image?",
		"Describe this image in detail.",
		"How many objects are in this picture?",
		"What emotions does this image convey?",
	},
	"cn": {
		"这张图片有什么不寻常之处？",
		"详细描述这张图片。",
	},
}

// Default returns the built-in prompt set for task, keyed by language.
// Unknown languages fall back to English. Tasks that consume a source image
// (or mask) get a deterministic synthetic one so the pipeline stays runnable
// without an external dataset.
func Default(task api.Task, language string) []api.PromptRecord {
	var prompts []string
	switch task {
	case api.TaskText:
		prompts = pick(defaultTextPrompts, language)
	case api.TaskVisualText:
		prompts = pick(defaultVisualTextPrompts, language)
	default:
		prompts = pick(defaultImagePrompts, language)
	}

	out := make([]api.PromptRecord, 0, len(prompts))
	for i, p := range prompts {
		rec := api.PromptRecord{Prompt: p}
		switch task {
		case api.TaskVisualText, api.TaskImageToImage, api.TaskImageInpainting:
			rec.Image = SyntheticImage(512, i)
		}
		if task == api.TaskImageInpainting {
			rec.Mask = SyntheticMask(512)
		}
		out = append(out, rec)
	}
	return out
}

func pick(m map[string][]string, language string) []string {
	if prompts, ok := m[language]; ok {
		return prompts
	}
	return m["en"]
}

// SyntheticImage renders a deterministic gradient image. seed shifts the hue
// so consecutive prompts do not share an identical source.
func SyntheticImage(size, seed int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x*255/size + seed*37) % 256),
				G: uint8((y * 255 / size) % 256),
				B: uint8(((x + y) * 255 / (2 * size)) % 256),
				A: 255,
			})
		}
	}
	return img
}

// SyntheticMask renders a centered square mask covering a quarter of the area.
func SyntheticMask(size int) image.Image {
	img := image.NewGray(image.Rect(0, 0, size, size))
	lo, hi := size/4, 3*size/4
	for y := lo; y < hi; y++ {
		for x := lo; x < hi; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return img
}
