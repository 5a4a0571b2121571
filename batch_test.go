package capsize

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressBatchContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	good := writeFixture(t, filepath.Join(dir, "good.png"), func(f *os.File) error {
		return png.Encode(f, makeFewColorImage(40, 40, sixteenColors()))
	})
	noise := writeFixture(t, filepath.Join(dir, "noise.png"), func(f *os.File) error {
		return png.Encode(f, makeNoiseImage(64, 64, 1))
	})
	missing := filepath.Join(dir, "missing.png")

	tight := DefaultOptions()
	tight.Budget = 100

	var calls []int
	results := CompressBatch(bg(), []BatchItem{
		{Src: missing},
		{Src: noise, Opts: &tight},
		{Src: good},
	}, BatchOptions{
		DefaultOpts: DefaultOptions(),
		OnItem: func(completed, total int, r BatchResult) {
			assert.Equal(t, 3, total)
			calls = append(calls, completed)
		},
	})

	require.Len(t, results, 3)
	assert.Equal(t, []int{1, 2, 3}, calls)

	assert.ErrorIs(t, results[0].Err, ErrIO)
	assert.Nil(t, results[0].Result)

	assert.ErrorIs(t, results[1].Err, ErrBudgetExceeded)
	assert.Equal(t, fileSize(t, noise), results[1].SourceSize)

	require.NoError(t, results[2].Err)
	assert.Equal(t, filepath.Join(dir, "good_compressed.png"), results[2].Result.Path)
	assert.Equal(t, 2, results[2].Index)

	s := Summarize(results)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 1, s.OverBudget)
	assert.Equal(t, results[2].SourceSize, s.BytesIn)
	assert.Equal(t, results[2].Result.Size, s.BytesOut)
	assert.Contains(t, s.String(), "1/3 succeeded")
}

func TestCompressBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(bg())
	cancel()

	results := CompressBatch(ctx, []BatchItem{{Src: "a.png"}, {Src: "b.png"}}, BatchOptions{DefaultOpts: DefaultOptions()})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestCompressBatchEmpty(t *testing.T) {
	assert.Nil(t, CompressBatch(bg(), nil, BatchOptions{}))
}

func TestSummarizeCountsBestEffortOverBudget(t *testing.T) {
	s := Summarize([]BatchResult{
		{Result: &Result{Size: 500, BudgetMet: false}, SourceSize: 1000},
		{Result: &Result{Size: 50, BudgetMet: true}, SourceSize: 80},
	})
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.OverBudget)
	assert.Equal(t, int64(1080), s.BytesIn)
	assert.Equal(t, int64(550), s.BytesOut)
}
