package capsize

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// NormalizedImage is an engine-owned copy of the input, capped to
// MaxDimension and paired with the format the search will encode in.
type NormalizedImage struct {
	Image *image.NRGBA

	// Format is always JPEG or PNG.
	Format Format

	// SourceFormat and SourceMode describe the input before coercion.
	SourceFormat Format
	SourceMode   ColorMode

	// Original is the input size before the dimension cap.
	Original image.Point
}

// Normalize caps pixel dimensions and coerces the color mode and format into
// the set the search engine supports. The input is never modified.
func Normalize(src DecodedImage) (*NormalizedImage, error) {
	if src.Image == nil {
		return nil, newError(KindDecode, "", errors.New("nil image"))
	}
	orig := dims(src.Image)
	if orig.X <= 0 || orig.Y <= 0 {
		return nil, newError(KindDecode, "", errors.Errorf("empty image (%dx%d)", orig.X, orig.Y))
	}

	n := &NormalizedImage{
		Format:       effectiveFormat(src.Format),
		SourceFormat: src.Format,
		SourceMode:   ModeOf(src.Image),
		Original:     orig,
	}

	img := src.Image
	if orig.X > MaxDimension || orig.Y > MaxDimension {
		img = resize.Thumbnail(MaxDimension, MaxDimension, img, resize.Lanczos3)
	}

	nrgba := toNRGBA(img)
	if n.Format == JPEG && !isOpaque(nrgba) {
		nrgba = flatten(nrgba)
	}
	n.Image = nrgba
	return n, nil
}

// effectiveFormat keeps JPEG and PNG and routes everything else through JPEG.
func effectiveFormat(f Format) Format {
	switch f {
	case JPEG, PNG:
		return f
	default:
		return JPEG
	}
}

// flatten composites img over opaque white.
func flatten(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
