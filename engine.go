package capsize

import (
	"context"
	"image"
	"io"
	"log/slog"
	"os"
)

// Quality ladders. Each is probed from highest fidelity down and never below
// its floor.
const (
	jpegTopQuality   = 95
	jpegFloorQuality = 30
	jpegQualityStep  = 5

	webpTopQuality   = 100
	webpFloorQuality = 10
	webpQualityStep  = 10
)

// ladder returns top, top-step, … down to and including floor.
func ladder(top, floor, step int) []int {
	qs := make([]int, 0, (top-floor)/step+1)
	for q := top; q >= floor; q -= step {
		qs = append(qs, q)
	}
	return qs
}

func jpegLadder() []int { return ladder(jpegTopQuality, jpegFloorQuality, jpegQualityStep) }
func webpLadder() []int { return ladder(webpTopQuality, webpFloorQuality, webpQualityStep) }

// attempt is one encoded probe. It lives only for the duration of a call.
type attempt struct {
	data    []byte
	format  Format
	quality int // 0 for PNG
	colors  int // palette size, 0 when not paletted
	dims    image.Point
}

func (a *attempt) size() int64 { return int64(len(a.data)) }

// search holds the per-call state of the budget search. Nothing in it
// outlives the call.
type search struct {
	ctx    context.Context
	img    *NormalizedImage
	budget int64
	opts   Options
	log    *slog.Logger
	probes int
}

// compress runs the fixed search on a normalized image and persists the
// chosen encoding at dst (extension adjusted to the chosen format).
//
//	FastPath → [native descent] → [WebP fallback] → done
func compress(ctx context.Context, n *NormalizedImage, dst string, opts Options) (*Result, error) {
	s := &search{
		ctx:    ctx,
		img:    n,
		budget: opts.budget(),
		opts:   opts,
		log:    opts.logger().With("dst", dst, "format", n.Format.String()),
	}
	nativePath := withFormatExt(dst, n.Format)

	// Step 0: one encode at the highest setting.
	if err := opts.reportProgress(ctx, ProgressFastPath); err != nil {
		return nil, err
	}
	first, err := s.fastPath()
	if err != nil {
		return nil, err
	}
	if s.fits(first) {
		return s.store(nativePath, first, StageFastPath)
	}

	// Step 1: format-specific descent.
	if err := opts.reportProgress(ctx, ProgressDescent); err != nil {
		return nil, err
	}
	var native *attempt
	switch n.Format {
	case PNG:
		native, err = s.pngDescent()
	default:
		native, err = s.jpegDescent()
	}
	if err != nil {
		return nil, err
	}
	res, err := s.store(nativePath, native, StageDescent)
	if err != nil || res.BudgetMet {
		return res, err
	}

	// Step 2: the stored file is still too big. Transcode to WebP.
	s.log.Info("native descent exhausted", "bytes", res.Size, "budget", s.budget)
	if err := opts.reportProgress(ctx, ProgressFallback); err != nil {
		return nil, err
	}
	alt, err := s.webpDescent()
	if err != nil {
		return nil, err
	}
	altPath := withFormatExt(dst, WebP)
	res, err = s.store(altPath, alt, StageFallback)
	if err != nil {
		return nil, err
	}
	if altPath != nativePath {
		if err := os.Remove(nativePath); err != nil && !os.IsNotExist(err) {
			s.log.Warn("could not remove superseded file", "path", nativePath, "err", err)
		}
	}
	return s.settle(res)
}

// fastPath encodes the normalized image once at full fidelity.
func (s *search) fastPath() (*attempt, error) {
	img := s.img.Image
	if s.img.Format == PNG {
		return s.encode(PNG, 0, 0, dims(img), func(w io.Writer) error {
			return encodeLosslessPNG(w, img)
		})
	}
	return s.encodeJPEG(jpegTopQuality)
}

// jpegDescent walks the JPEG ladder and returns the first attempt within
// budget, or the floor-quality attempt when none fits.
func (s *search) jpegDescent() (*attempt, error) {
	var last *attempt
	// The top rung was already probed by the fast path.
	for _, q := range jpegLadder()[1:] {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}
		a, err := s.encodeJPEG(q)
		if err != nil {
			return nil, err
		}
		if s.fits(a) {
			return a, nil
		}
		last = a
	}
	return last, nil
}

// pngDescent reduces to a 256-color palette, then halves resolution of the
// palette image until the budget is met or a dimension collapses below 1.
func (s *search) pngDescent() (*attempt, error) {
	palette := quantize(s.img.Image, PaletteSize)
	colors := len(palette.Palette)
	paletteAttempt, err := s.encode(PNG, 0, colors, dims(palette), func(w io.Writer) error {
		return encodePNG(w, palette)
	})
	if err != nil {
		return nil, err
	}
	if s.fits(paletteAttempt) {
		return paletteAttempt, nil
	}

	var lastResampled *attempt
	width, height := palette.Bounds().Dx(), palette.Bounds().Dy()
	for factor := 1; ; factor *= 2 {
		w, h := width/factor, height/factor
		if w < 1 || h < 1 {
			break
		}
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}
		resized := resamplePaletted(palette, w, h)
		a, err := s.encode(PNG, 0, colors, image.Pt(w, h), func(wr io.Writer) error {
			return encodePNG(wr, resized)
		})
		if err != nil {
			return nil, err
		}
		if s.fits(a) {
			return a, nil
		}
		lastResampled = a
	}

	if lastResampled != nil {
		return lastResampled, nil
	}
	return paletteAttempt, nil
}

// webpDescent walks the WebP ladder from the normalized image, not from any
// earlier lossy output. The floor attempt is returned when nothing fits.
func (s *search) webpDescent() (*attempt, error) {
	img := s.img.Image
	var last *attempt
	for _, q := range webpLadder() {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}
		quality := q
		a, err := s.encode(WebP, quality, 0, dims(img), func(w io.Writer) error {
			return encodeWebP(w, img, quality)
		})
		if err != nil {
			return nil, err
		}
		if s.fits(a) {
			return a, nil
		}
		last = a
	}
	return last, nil
}

func (s *search) encodeJPEG(quality int) (*attempt, error) {
	img := s.img.Image
	return s.encode(JPEG, quality, 0, dims(img), func(w io.Writer) error {
		return encodeJPEG(w, img, quality)
	})
}

func (s *search) encode(f Format, quality, colors int, size image.Point, fn func(io.Writer) error) (*attempt, error) {
	data, err := encodeBytes(fn)
	if err != nil {
		return nil, newError(KindDecode, "", err)
	}
	s.probes++
	a := &attempt{data: data, format: f, quality: quality, colors: colors, dims: size}
	s.log.Debug("probe",
		"probe", s.probes,
		"codec", f.String(),
		"quality", quality,
		"colors", colors,
		"width", size.X,
		"height", size.Y,
		"bytes", len(data),
		"fits", s.fits(a),
	)
	return a, nil
}

func (s *search) fits(a *attempt) bool { return a.size() <= s.budget }

// store persists a and builds the result from the size read back from disk.
func (s *search) store(path string, a *attempt, stage Stage) (*Result, error) {
	if err := s.opts.reportProgress(s.ctx, ProgressWriting); err != nil {
		return nil, err
	}
	size, err := persist(path, a.data)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Path:               path,
		Size:               size,
		Format:             a.format,
		Quality:            a.quality,
		Stage:              stage,
		Budget:             s.budget,
		BudgetMet:          size <= s.budget,
		LowQuality:         a.quality > 0 && a.quality < LowQualityThreshold,
		Probes:             s.probes,
		OriginalDimensions: s.img.Original,
		Dimensions:         a.dims,
	}
	if res.BudgetMet {
		s.done(res)
	}
	return res, nil
}

// settle applies the policy to the terminal result.
func (s *search) settle(res *Result) (*Result, error) {
	if res.BudgetMet {
		return res, nil
	}
	if res.LowQuality {
		s.log.Warn("quality below readability threshold",
			"path", res.Path, "quality", res.Quality, "threshold", LowQualityThreshold)
	}
	s.log.Warn("budget not met",
		"path", res.Path, "bytes", res.Size, "budget", res.Budget,
		"quality", res.Quality, "policy", s.opts.Policy.String())
	if s.opts.Policy == Strict {
		return nil, &CompressionError{
			Kind:         KindBudgetExceeded,
			Path:         res.Path,
			Budget:       res.Budget,
			AchievedSize: res.Size,
			Quality:      res.Quality,
		}
	}
	return res, nil
}

func (s *search) done(res *Result) {
	if res.LowQuality {
		s.log.Warn("quality below readability threshold",
			"path", res.Path, "quality", res.Quality, "threshold", LowQualityThreshold)
	}
	s.log.Info("compressed",
		"path", res.Path,
		"stage", string(res.Stage),
		"bytes", res.Size,
		"quality", res.Quality,
		"probes", res.Probes,
	)
}
