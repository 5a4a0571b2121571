package capsize_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/shamspias/capsize"
)

func ExampleCompressFile() {
	ctx := context.Background()
	opts := capsize.DefaultOptions() // 98 KiB, strict

	result, err := capsize.CompressFile(ctx, "photo.jpg", capsize.OutputPath("photo.jpg"), opts)
	if err != nil {
		panic(err)
	}
	fmt.Println(result)
}

func ExampleCompressImage() {
	ctx := context.Background()

	img, err := capsize.Open("scan.png")
	if err != nil {
		panic(err)
	}

	opts := capsize.DefaultOptions()
	opts.Budget = capsize.LegacyBudget
	opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	result, err := capsize.CompressImage(ctx, img, "scan_small.png", opts)
	if err != nil {
		panic(err)
	}
	fmt.Printf("%s at %s after %d probes\n", result.Format, result.Path, result.Probes)
}

func ExampleCompressBytes() {
	ctx := context.Background()

	// Common server-side pattern: bytes in, file out.
	inputData := []byte{} // ... from an upload

	opts := capsize.DefaultOptions()
	opts.Policy = capsize.BestEffort

	result, err := capsize.CompressBytes(ctx, inputData, "/tmp/upload.jpg", opts)
	if err != nil {
		panic(err)
	}
	if !result.BudgetMet {
		fmt.Println("kept over-budget output:", result.Path)
	}
}

func ExampleCompressionError() {
	_, err := capsize.CompressFile(context.Background(), "huge.png", "huge_small.png", capsize.DefaultOptions())

	var cerr *capsize.CompressionError
	switch {
	case errors.Is(err, capsize.ErrBudgetExceeded) && errors.As(err, &cerr):
		fmt.Printf("best attempt %d bytes left at %s\n", cerr.AchievedSize, cerr.Path)
	case err != nil:
		fmt.Println("failed:", err)
	}
}

func ExampleCompressBatch() {
	items := []capsize.BatchItem{
		{Src: "a.jpg"},
		{Src: "b.png", Dst: "out/b.png"},
	}

	results := capsize.CompressBatch(context.Background(), items, capsize.BatchOptions{
		DefaultOpts: capsize.DefaultOptions(),
		OnItem: func(completed, total int, r capsize.BatchResult) {
			fmt.Printf("[%d/%d] %s\n", completed, total, r.Item.Src)
		},
	})
	fmt.Println(capsize.Summarize(results))
}
