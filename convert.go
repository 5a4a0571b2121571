package capsize

import (
	"image"
	"image/color"
)

// ColorMode is the pixel layout of a decoded image.
type ColorMode int

const (
	ModeTrueColor ColorMode = iota
	ModeTrueColorAlpha
	ModeIndexed
	ModeGray
	ModeOther
)

func (m ColorMode) String() string {
	switch m {
	case ModeTrueColor:
		return "RGB"
	case ModeTrueColorAlpha:
		return "RGBA"
	case ModeIndexed:
		return "P"
	case ModeGray:
		return "L"
	default:
		return "other"
	}
}

// ModeOf reports the color mode of img from its concrete type and, for
// alpha-capable layouts, its pixel data.
func ModeOf(img image.Image) ColorMode {
	switch m := img.(type) {
	case *image.Paletted:
		return ModeIndexed
	case *image.Gray, *image.Gray16:
		return ModeGray
	case *image.YCbCr:
		return ModeTrueColor
	case *image.NRGBA:
		if isOpaque(m) {
			return ModeTrueColor
		}
		return ModeTrueColorAlpha
	case *image.RGBA:
		if m.Opaque() {
			return ModeTrueColor
		}
		return ModeTrueColorAlpha
	case *image.NRGBA64, *image.RGBA64, *image.NYCbCrA:
		if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
			return ModeTrueColor
		}
		return ModeTrueColorAlpha
	default:
		return ModeOther
	}
}

// toNRGBA converts any image.Image to a fresh *image.NRGBA anchored at the
// origin. The result never aliases the input.
func toNRGBA(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < h; y++ {
			srcOff := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+w*4], src.Pix[srcOff:srcOff+w*4])
		}
		return dst
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			off := y*dst.Stride + x*4
			dst.Pix[off] = c.R
			dst.Pix[off+1] = c.G
			dst.Pix[off+2] = c.B
			dst.Pix[off+3] = c.A
		}
	}
	return dst
}

// isOpaque checks if all pixels have full alpha.
func isOpaque(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			return false
		}
	}
	return true
}

// isGrayscale checks if all pixels are opaque with R == G == B.
func isGrayscale(img *image.NRGBA) bool {
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] != img.Pix[i+1] || img.Pix[i+1] != img.Pix[i+2] || img.Pix[i+3] != 0xff {
			return false
		}
	}
	return true
}

// toGray keeps one byte per pixel. Only valid when isGrayscale holds.
func toGray(img *image.NRGBA) *image.Gray {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	gray := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		srcOff := y * img.Stride
		dstOff := y * gray.Stride
		for x := 0; x < w; x++ {
			gray.Pix[dstOff+x] = img.Pix[srcOff+x*4]
		}
	}
	return gray
}

// opaqueView reinterprets an opaque NRGBA as RGBA without copying.
// Non-premultiplied and premultiplied layouts agree when alpha is 0xff.
func opaqueView(img *image.NRGBA) *image.RGBA {
	return &image.RGBA{Pix: img.Pix, Stride: img.Stride, Rect: img.Rect}
}

func dims(img image.Image) image.Point {
	b := img.Bounds()
	return image.Pt(b.Dx(), b.Dy())
}
