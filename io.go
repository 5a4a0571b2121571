package capsize

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imageorient"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Decode reads an image from r and tags it with its source format.
func Decode(r io.Reader) (DecodedImage, error) {
	img, name, err := image.Decode(r)
	if err != nil {
		return DecodedImage{}, decodeError(err, "decode")
	}
	return DecodedImage{Image: img, Format: ParseFormat(name)}, nil
}

// Open loads an image file and applies its EXIF orientation.
func Open(path string) (DecodedImage, error) {
	return openImage(path, true)
}

func openImage(path string, autoOrient bool) (DecodedImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return DecodedImage{}, ioError(path, err, "open")
	}
	defer f.Close()

	decode := imageorient.Decode
	if !autoOrient {
		decode = image.Decode
	}

	img, name, err := decode(f)
	if err != nil {
		e := decodeError(err, "decode")
		e.Path = path
		return DecodedImage{}, e
	}
	return DecodedImage{Image: img, Format: ParseFormat(name)}, nil
}

// OutputPath derives the conventional destination for src:
// "photo.png" becomes "photo_compressed.png".
func OutputPath(src string) string {
	ext := filepath.Ext(src)
	return strings.TrimSuffix(src, ext) + "_compressed" + ext
}

// withFormatExt swaps the extension of path for the one matching f, unless
// the current extension already denotes f.
func withFormatExt(path string, f Format) string {
	ext := filepath.Ext(path)
	if ParseFormat(strings.TrimPrefix(strings.ToLower(ext), ".")) == f && f != Unknown {
		return path
	}
	return strings.TrimSuffix(path, ext) + f.Ext()
}

// persist writes data to path, creating the parent directory, then checks
// that the file has the expected size and decodes cleanly. It returns the
// size read back from storage.
func persist(path string, data []byte) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, ioError(path, err, "create parent directory")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return 0, ioError(path, err, "write")
	}
	return verify(path, int64(len(data)))
}

// verify re-reads a persisted file and decodes it.
func verify(path string, want int64) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, newError(KindWriteVerification, path, errors.Wrap(err, "stat"))
	}
	if info.Size() != want {
		return info.Size(), newError(KindWriteVerification, path,
			errors.Errorf("stored %d bytes, wrote %d", info.Size(), want))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, newError(KindWriteVerification, path, errors.Wrap(err, "read back"))
	}
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return 0, newError(KindWriteVerification, path, errors.Wrap(err, "decode back"))
	}
	return info.Size(), nil
}

// copyVerified copies src to dst byte for byte and verifies the copy.
func copyVerified(src, dst string) (int64, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, ioError(src, err, "read")
	}
	return persist(dst, data)
}
