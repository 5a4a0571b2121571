// Package capsize re-encodes raster images so the output file fits a fixed
// byte budget while keeping as much visual quality as the budget allows.
//
// Only transformations found in standard codecs are used, tried in a fixed
// order that favors fidelity:
//
//   - Fast path: one encode at full fidelity (JPEG q95, or lossless PNG)
//   - JPEG descent: quality 95 down to 30 in steps of 5
//   - PNG descent: 256-color palette, then halving the resolution
//   - Fallback: lossy WebP from quality 100 down to 10
//
// Before any search the image is capped to 1920 px on each side and coerced
// to JPEG unless it came in as JPEG or PNG.
//
// Every call is independent: no state is shared between calls, so separate
// images may be compressed concurrently as long as their destinations differ.
package capsize

import (
	"bytes"
	"context"
	"image"
	"io"
	"os"

	"github.com/pkg/errors"
)

// CompressImage normalizes img and searches for the best encoding that fits
// opts.Budget, writing it at dst. The extension of dst is adjusted when the
// written format differs from it; Result.Path is authoritative.
func CompressImage(ctx context.Context, img DecodedImage, dst string, opts Options) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validate(dst, opts); err != nil {
		return nil, err
	}
	if err := opts.reportProgress(ctx, ProgressNormalizing); err != nil {
		return nil, err
	}

	n, err := Normalize(img)
	if err != nil {
		return nil, err
	}
	if n.Format != n.SourceFormat {
		opts.logger().Debug("coerced source format",
			"from", n.SourceFormat.String(), "to", n.Format.String(), "mode", n.SourceMode.String())
	}
	return compress(ctx, n, dst, opts)
}

// Compress decodes an image from r and compresses it to dst.
func Compress(ctx context.Context, r io.Reader, dst string, opts Options) (*Result, error) {
	img, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return CompressImage(ctx, img, dst, opts)
}

// CompressBytes decodes data and compresses it to dst.
func CompressBytes(ctx context.Context, data []byte, dst string, opts Options) (*Result, error) {
	return Compress(ctx, bytes.NewReader(data), dst, opts)
}

// CompressFile compresses the image file at src and writes the result at dst.
//
// A JPEG or PNG source that already fits the budget and the dimension cap is
// copied byte for byte without re-encoding.
func CompressFile(ctx context.Context, src, dst string, opts Options) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validate(dst, opts); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if res, ok, err := passthrough(src, dst, opts); ok || err != nil {
		return res, err
	}

	img, err := openImage(src, opts.AutoOrient)
	if err != nil {
		return nil, err
	}
	return CompressImage(ctx, img, dst, opts)
}

func validate(dst string, opts Options) error {
	if dst == "" {
		return newError(KindInvalidInput, "", errors.New("empty destination path"))
	}
	if opts.Budget < 0 {
		return newError(KindInvalidInput, dst, errors.Errorf("negative budget %d", opts.Budget))
	}
	return nil
}

// passthrough copies src unchanged when re-encoding cannot help.
func passthrough(src, dst string, opts Options) (*Result, bool, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, false, ioError(src, err, "stat")
	}
	budget := opts.budget()
	if info.Size() > budget {
		return nil, false, nil
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, false, ioError(src, err, "open")
	}
	cfg, name, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		// Let the full decode report it.
		return nil, false, nil
	}
	format := ParseFormat(name)
	if (format != JPEG && format != PNG) || cfg.Width > MaxDimension || cfg.Height > MaxDimension {
		return nil, false, nil
	}

	path := withFormatExt(dst, format)
	size, err := copyVerified(src, path)
	if err != nil {
		return nil, false, err
	}
	opts.logger().Info("already within budget, copied", "src", src, "path", path, "bytes", size)

	d := image.Pt(cfg.Width, cfg.Height)
	return &Result{
		Path:               path,
		Size:               size,
		Format:             format,
		Stage:              StagePassthrough,
		Budget:             budget,
		BudgetMet:          true,
		OriginalDimensions: d,
		Dimensions:         d,
	}, true, nil
}
