package capsize

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// BatchItem represents one file to compress in a batch operation.
type BatchItem struct {
	// Src is the input file path.
	Src string
	// Dst is the output file path. Empty means OutputPath(Src).
	Dst string
	// Opts are the per-item options. If nil, BatchOptions.DefaultOpts is used.
	Opts *Options
}

// BatchResult holds the result for a single item in a batch.
type BatchResult struct {
	Item BatchItem
	// Result is nil if Err is non-nil.
	Result *Result
	Err    error
	// SourceSize is the input file size, 0 if it could not be read.
	SourceSize int64
	Index      int
}

// BatchOptions configures batch compression behavior.
type BatchOptions struct {
	// DefaultOpts is used for any BatchItem where Opts is nil.
	DefaultOpts Options
	// OnItem is called after each item completes.
	OnItem func(completed, total int, r BatchResult)
}

// CompressBatch compresses items one after another. A failure affects only
// its own item; the batch continues with the rest. Once ctx is cancelled the
// remaining items are reported with the context error and not started.
func CompressBatch(ctx context.Context, items []BatchItem, batchOpts BatchOptions) []BatchResult {
	if len(items) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]BatchResult, len(items))
	for idx, item := range items {
		r := BatchResult{Item: item, Index: idx}
		if err := ctx.Err(); err != nil {
			r.Err = err
			results[idx] = r
			continue
		}

		opts := batchOpts.DefaultOpts
		if item.Opts != nil {
			opts = *item.Opts
		}
		dst := item.Dst
		if dst == "" {
			dst = OutputPath(item.Src)
		}
		if info, err := os.Stat(item.Src); err == nil {
			r.SourceSize = info.Size()
		}

		r.Result, r.Err = CompressFile(ctx, item.Src, dst, opts)
		if r.Err != nil {
			opts.logger().Error("batch item failed", "src", item.Src, "err", r.Err)
		}
		results[idx] = r

		if batchOpts.OnItem != nil {
			batchOpts.OnItem(idx+1, len(items), r)
		}
	}
	return results
}

// BatchSummary provides aggregate statistics for a batch operation.
type BatchSummary struct {
	Total     int
	Succeeded int
	Failed    int
	// OverBudget counts items that ended over budget, whether reported as a
	// best-effort result or as a budget error.
	OverBudget int
	BytesIn    int64
	BytesOut   int64
}

// Summarize computes aggregate statistics from batch results.
func Summarize(results []BatchResult) BatchSummary {
	s := BatchSummary{Total: len(results)}
	for _, r := range results {
		if r.Err != nil {
			s.Failed++
			if errors.Is(r.Err, ErrBudgetExceeded) {
				s.OverBudget++
			}
			continue
		}
		s.Succeeded++
		if r.Result != nil {
			s.BytesIn += r.SourceSize
			s.BytesOut += r.Result.Size
			if !r.Result.BudgetMet {
				s.OverBudget++
			}
		}
	}
	return s
}

// String returns a human-readable batch summary.
func (s BatchSummary) String() string {
	return fmt.Sprintf(
		"Batch: %d/%d succeeded | %d over budget | %s → %s",
		s.Succeeded, s.Total, s.OverBudget,
		humanize.IBytes(uint64(s.BytesIn)), humanize.IBytes(uint64(s.BytesOut)),
	)
}
