package capsize

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/dustin/go-humanize"
)

// Version is the library version.
const Version = "1.0.0"

const (
	// DefaultBudget is the reference byte ceiling (98 KiB).
	DefaultBudget int64 = 100352
	// LegacyBudget is the ceiling used by older releases (100 KiB).
	LegacyBudget int64 = 102400
	// MaxDimension caps both output dimensions before any size search.
	MaxDimension = 1920
	// LowQualityThreshold marks lossy results below which readability suffers.
	LowQualityThreshold = 50
)

// Format is the closed set of codec tags the engine dispatches on.
type Format int

const (
	// Unknown is any source format other than JPEG or PNG.
	// It is routed through the JPEG path.
	Unknown Format = iota
	// JPEG for photographs and anything coerced from an unknown source.
	JPEG
	// PNG keeps palette and transparency.
	PNG
	// WebP is only produced by the alternate-format fallback.
	WebP
)

// ParseFormat maps a codec name, as returned by image.Decode, onto a Format.
func ParseFormat(name string) Format {
	switch name {
	case "jpeg", "jpg", "JPEG":
		return JPEG
	case "png", "PNG":
		return PNG
	case "webp", "WEBP":
		return WebP
	default:
		return Unknown
	}
}

func (f Format) String() string {
	switch f {
	case JPEG:
		return "JPEG"
	case PNG:
		return "PNG"
	case WebP:
		return "WebP"
	default:
		return "Unknown"
	}
}

// Ext returns the canonical file extension for the format.
func (f Format) Ext() string {
	switch f {
	case PNG:
		return ".png"
	case WebP:
		return ".webp"
	default:
		return ".jpg"
	}
}

// Policy selects what happens when no candidate fits the budget.
// The zero value is Strict.
type Policy int

const (
	// Strict returns a *CompressionError of kind KindBudgetExceeded carrying
	// the achieved size. The over-budget file is still written.
	Strict Policy = iota
	// BestEffort returns a Result with BudgetMet set to false.
	BestEffort
)

func (p Policy) String() string {
	if p == BestEffort {
		return "best-effort"
	}
	return "strict"
}

// Stage names the step of the search that produced the final file.
type Stage string

const (
	// StagePassthrough means the source already fit and was copied unchanged.
	StagePassthrough Stage = "passthrough"
	// StageFastPath means the first full-fidelity encode fit.
	StageFastPath Stage = "fast-path"
	// StageDescent is the JPEG quality ladder or the PNG palette and halving.
	StageDescent Stage = "descent"
	// StageFallback is the lossy WebP pass.
	StageFallback Stage = "fallback"
)

// ProgressStage describes what the compressor is currently doing.
type ProgressStage string

const (
	ProgressNormalizing ProgressStage = "normalizing"
	ProgressFastPath    ProgressStage = "fast-path"
	ProgressDescent     ProgressStage = "descent"
	ProgressFallback    ProgressStage = "fallback"
	ProgressWriting     ProgressStage = "writing"
)

// ProgressFunc is called between search steps.
// Return a non-nil error to abort the operation.
type ProgressFunc func(stage ProgressStage) error

// Options configures one compression call.
type Options struct {
	// Budget is the byte ceiling. 0 means DefaultBudget.
	Budget int64

	// Policy decides the terminal outcome when the budget cannot be met.
	Policy Policy

	// AutoOrient applies EXIF orientation when opening files.
	AutoOrient bool

	// Logger receives per-probe diagnostics. Nil discards them.
	Logger *slog.Logger

	// OnProgress is optional.
	OnProgress ProgressFunc
}

// DefaultOptions returns the reference configuration.
func DefaultOptions() Options {
	return Options{
		Budget:     DefaultBudget,
		Policy:     Strict,
		AutoOrient: true,
	}
}

func (o *Options) budget() int64 {
	if o.Budget <= 0 {
		return DefaultBudget
	}
	return o.Budget
}

func (o *Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// reportProgress checks for cancellation, then invokes the callback if set.
func (o *Options) reportProgress(ctx context.Context, stage ProgressStage) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if o.OnProgress != nil {
		return o.OnProgress(stage)
	}
	return nil
}

// DecodedImage is a caller-owned raster plus the format it was decoded from.
// The engine never mutates it.
type DecodedImage struct {
	Image  image.Image
	Format Format
}

// Result describes the file the engine persisted.
type Result struct {
	// Path is where the final bytes live. It may differ from the requested
	// destination when the format changed.
	Path string

	// Size is the byte size of the file at Path.
	Size int64

	// Quality is the lossy quality used (JPEG or WebP); 0 when not applicable.
	Quality int

	// Format is the encoding of the file at Path.
	Format Format

	// Stage is the search step that produced the file.
	Stage Stage

	// Budget is the ceiling the call ran against.
	Budget int64

	// BudgetMet reports whether Size <= Budget.
	BudgetMet bool

	// LowQuality is set when Quality is below LowQualityThreshold.
	LowQuality bool

	// Probes counts the encodes performed.
	Probes int

	OriginalDimensions image.Point
	Dimensions         image.Point
}

// String returns a one-line summary of the result.
func (r *Result) String() string {
	q := ""
	if r.Quality > 0 {
		q = fmt.Sprintf(" Q=%d |", r.Quality)
	}
	status := "within budget"
	if !r.BudgetMet {
		status = "OVER BUDGET"
	}
	if r.LowQuality {
		status += ", low quality"
	}
	return fmt.Sprintf(
		"%s |%s %dx%d → %dx%d | %s / %s (%s) | %s",
		r.Format, q,
		r.OriginalDimensions.X, r.OriginalDimensions.Y,
		r.Dimensions.X, r.Dimensions.Y,
		humanize.IBytes(uint64(r.Size)), humanize.IBytes(uint64(r.Budget)),
		status, r.Stage,
	)
}
