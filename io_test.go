package capsize

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistCreatesParentAndVerifies(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, makeTestImage(8, 8)))

	path := filepath.Join(t.TempDir(), "nested", "deeper", "x.png")
	size, err := persist(path, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), size)
	assert.Equal(t, size, fileSize(t, path))
}

func TestVerifyRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jpg")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a jpeg"), 0644))

	_, err := verify(path, int64(len("definitely not a jpeg")))
	assert.ErrorIs(t, err, ErrWriteVerification)

	var cerr *CompressionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, path, cerr.Path)
}

func TestVerifyRejectsSizeMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, makeTestImage(8, 8)))
	path := filepath.Join(t.TempDir(), "x.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	_, err := verify(path, int64(buf.Len())+1)
	assert.ErrorIs(t, err, ErrWriteVerification)
}

func TestPersistStorageFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := persist(filepath.Join(blocker, "out.png"), []byte("data"))
	assert.ErrorIs(t, err, ErrIO)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	pngPath := writeFixture(t, filepath.Join(dir, "a.png"), func(f *os.File) error {
		return png.Encode(f, makeTestImage(30, 20))
	})
	jpgPath := writeFixture(t, filepath.Join(dir, "b.jpg"), func(f *os.File) error {
		return jpeg.Encode(f, makeTestImage(30, 20), nil)
	})

	img, err := Open(pngPath)
	require.NoError(t, err)
	assert.Equal(t, PNG, img.Format)
	assert.Equal(t, image.Pt(30, 20), dims(img.Image))

	img, err = openImage(jpgPath, false)
	require.NoError(t, err)
	assert.Equal(t, JPEG, img.Format)
	assert.Equal(t, image.Pt(30, 20), dims(img.Image))

	_, err = Open(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, ErrIO)

	garbage := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("nope"), 0644))
	_, err = Open(garbage)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeTagsFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, makeTestImage(10, 10), nil))

	img, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, JPEG, img.Format)
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, JPEG, ParseFormat("jpeg"))
	assert.Equal(t, PNG, ParseFormat("png"))
	assert.Equal(t, WebP, ParseFormat("webp"))
	assert.Equal(t, Unknown, ParseFormat("gif"))
	assert.Equal(t, Unknown, ParseFormat("bmp"))
}

// ── Errors ──────────────────────────────────────────────────────────────────

func TestCompressionErrorMatching(t *testing.T) {
	err := &CompressionError{Kind: KindBudgetExceeded, Path: "out.webp", Budget: 100, AchievedSize: 250, Quality: 10}

	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.NotErrorIs(t, err, ErrIO)
	assert.Contains(t, err.Error(), "achieved 250 bytes, budget 100")
	assert.Contains(t, err.Error(), `"out.webp"`)

	wrapped := errors.Wrap(err, "batch item 3")
	assert.ErrorIs(t, wrapped, ErrBudgetExceeded)
	var cerr *CompressionError
	require.ErrorAs(t, wrapped, &cerr)
	assert.Equal(t, int64(250), cerr.AchievedSize)
}

func TestCompressionErrorUnwrap(t *testing.T) {
	cause := os.ErrPermission
	err := ioError("/x", cause, "write")
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, "io", err.Kind.String())
}
