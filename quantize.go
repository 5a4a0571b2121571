package capsize

import (
	"image"
	"image/color"
	"math"
	"sort"
)

// PaletteSize is the number of colors the palette step reduces to.
const PaletteSize = 256

// maxQuantizeSamples bounds the pixels fed to the median cut.
const maxQuantizeSamples = 100000

// quantize reduces img to an adaptive palette of at most maxColors entries.
// Alpha is quantized along with color so transparent PNGs stay transparent.
func quantize(img *image.NRGBA, maxColors int) *image.Paletted {
	return applyPalette(img, medianCut(img, maxColors))
}

// ── Median cut ──────────────────────────────────────────────────────────────

type rgba [4]uint8

type colorBox struct {
	pixels   []rgba
	min, max rgba
}

func newColorBox(pixels []rgba) *colorBox {
	box := &colorBox{pixels: pixels, min: rgba{255, 255, 255, 255}}
	for _, p := range pixels {
		for c := 0; c < 4; c++ {
			if p[c] < box.min[c] {
				box.min[c] = p[c]
			}
			if p[c] > box.max[c] {
				box.max[c] = p[c]
			}
		}
	}
	return box
}

func (b *colorBox) longestAxis() int {
	axis, best := 0, -1
	for c := 0; c < 4; c++ {
		if r := int(b.max[c]) - int(b.min[c]); r > best {
			axis, best = c, r
		}
	}
	return axis
}

func (b *colorBox) volume() int {
	v := 1
	for c := 0; c < 4; c++ {
		v *= int(b.max[c]) - int(b.min[c]) + 1
	}
	return v
}

func (b *colorBox) average() color.NRGBA {
	if len(b.pixels) == 0 {
		return color.NRGBA{A: 255}
	}
	var sum [4]int64
	for _, p := range b.pixels {
		for c := 0; c < 4; c++ {
			sum[c] += int64(p[c])
		}
	}
	n := int64(len(b.pixels))
	return color.NRGBA{
		R: uint8(sum[0] / n), G: uint8(sum[1] / n), B: uint8(sum[2] / n), A: uint8(sum[3] / n),
	}
}

func samplePixels(img *image.NRGBA) []rgba {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	total := w * h
	step := 1
	if total > maxQuantizeSamples {
		step = total / maxQuantizeSamples
	}

	pixels := make([]rgba, 0, total/step+1)
	for i := 0; i < total; i += step {
		x, y := i%w, i/w
		off := y*img.Stride + x*4
		pixels = append(pixels, rgba{img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3]})
	}
	return pixels
}

// medianCut splits the sampled color space until maxColors boxes exist or no
// box can be split, and returns the mean color of each box.
func medianCut(img *image.NRGBA, maxColors int) color.Palette {
	pixels := samplePixels(img)
	if len(pixels) == 0 {
		return color.Palette{color.NRGBA{A: 255}}
	}

	boxes := []*colorBox{newColorBox(pixels)}
	for len(boxes) < maxColors {
		bestIdx, bestScore := -1, 0
		for i, box := range boxes {
			if len(box.pixels) < 2 || box.volume() == 1 {
				continue
			}
			if score := box.volume() * len(box.pixels); score > bestScore {
				bestIdx, bestScore = i, score
			}
		}
		if bestIdx == -1 {
			break
		}

		box := boxes[bestIdx]
		axis := box.longestAxis()
		sort.Slice(box.pixels, func(i, j int) bool {
			return box.pixels[i][axis] < box.pixels[j][axis]
		})

		mid := len(box.pixels) / 2
		boxes[bestIdx] = newColorBox(box.pixels[:mid])
		boxes = append(boxes, newColorBox(box.pixels[mid:]))
	}

	palette := make(color.Palette, len(boxes))
	for i, box := range boxes {
		palette[i] = box.average()
	}
	return palette
}

// applyPalette maps every pixel to its nearest palette entry in RGBA space.
func applyPalette(src *image.NRGBA, palette color.Palette) *image.Paletted {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	indexed := image.NewPaletted(image.Rect(0, 0, w, h), palette)

	entries := make([]rgba, len(palette))
	for i, c := range palette {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		entries[i] = rgba{n.R, n.G, n.B, n.A}
	}

	cache := make(map[rgba]uint8, len(palette))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*src.Stride + x*4
			px := rgba{src.Pix[off], src.Pix[off+1], src.Pix[off+2], src.Pix[off+3]}

			idx, ok := cache[px]
			if !ok {
				idx = nearest(entries, px)
				cache[px] = idx
			}
			indexed.Pix[y*indexed.Stride+x] = idx
		}
	}
	return indexed
}

func nearest(entries []rgba, px rgba) uint8 {
	best, bestDist := 0, math.MaxInt
	for i, e := range entries {
		dist := 0
		for c := 0; c < 4; c++ {
			d := int(px[c]) - int(e[c])
			dist += d * d
		}
		if dist < bestDist {
			best, bestDist = i, dist
			if dist == 0 {
				break
			}
		}
	}
	return uint8(best)
}
