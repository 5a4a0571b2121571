package capsize

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"
)

var pngEncoder = png.Encoder{CompressionLevel: png.BestCompression}

// encodeJPEG encodes img at the given quality. Alpha is ignored; callers
// hand in flattened images.
func encodeJPEG(w io.Writer, img *image.NRGBA, quality int) error {
	var src image.Image = img
	if isOpaque(img) {
		src = opaqueView(img)
	}
	return errors.Wrapf(jpeg.Encode(w, src, &jpeg.Options{Quality: quality}), "jpeg q=%d", quality)
}

// encodePNG writes img with maximum DEFLATE effort.
func encodePNG(w io.Writer, img image.Image) error {
	return errors.Wrap(pngEncoder.Encode(w, img), "png")
}

// encodeLosslessPNG picks the smallest lossless layout: 8-bit gray for opaque
// gray images, an exact palette when the image has at most 256 colors, full
// NRGBA otherwise.
func encodeLosslessPNG(w io.Writer, img *image.NRGBA) error {
	if isGrayscale(img) {
		return encodePNG(w, toGray(img))
	}
	if paletted := exactPalette(img, PaletteSize); paletted != nil {
		return encodePNG(w, paletted)
	}
	return encodePNG(w, img)
}

// encodeWebP encodes a lossy WebP at the given quality (0–100).
//
// libwebp takes straight alpha. The encoder premultiplies anything that is
// not an *image.RGBA, so the NRGBA bytes are handed over under an RGBA header.
func encodeWebP(w io.Writer, img *image.NRGBA, quality int) error {
	straight := &image.RGBA{Pix: img.Pix, Stride: img.Stride, Rect: img.Rect}
	return errors.Wrapf(webp.Encode(w, straight, &webp.Options{Quality: float32(quality)}), "webp q=%d", quality)
}

func encodeBytes(fn func(w io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// exactPalette returns img as an indexed image if it has at most maxColors
// distinct colors, or nil. Palette order is first-seen so output is stable.
func exactPalette(img *image.NRGBA, maxColors int) *image.Paletted {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()

	index := make(map[rgba]uint8, maxColors)
	palette := make(color.Palette, 0, maxColors)
	paletted := image.NewPaletted(image.Rect(0, 0, w, h), nil)

	for y := 0; y < h; y++ {
		srcOff := y * img.Stride
		dstOff := y * paletted.Stride
		for x := 0; x < w; x++ {
			i := srcOff + x*4
			key := rgba{img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]}
			idx, ok := index[key]
			if !ok {
				if len(palette) == maxColors {
					return nil
				}
				idx = uint8(len(palette))
				index[key] = idx
				palette = append(palette, color.NRGBA{key[0], key[1], key[2], key[3]})
			}
			paletted.Pix[dstOff+x] = idx
		}
	}

	paletted.Palette = palette
	return paletted
}

// resamplePaletted scales an indexed image to w×h with nearest-neighbor
// sampling, keeping its palette. No new colors are introduced.
func resamplePaletted(src *image.Paletted, w, h int) *image.Paletted {
	dst := image.NewPaletted(image.Rect(0, 0, w, h), src.Palette)
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}
