package imaging

import (
	"bufio"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Format identifies the on-disk encoding of a saved image.
type Format int

const (
	FormatPNG Format = iota
	FormatJPEG
)

// jpegQuality is used for every JPEG artifact the pipeline writes.
const jpegQuality = 90

// String returns the canonical file extension for the format, without dot.
func (f Format) String() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return "png"
}

// FormatFromPath picks the output format from a file extension.
// Anything that is not .jpg/.jpeg encodes as PNG.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG
	default:
		return FormatPNG
	}
}

// Encode writes img to w in the given format.
//
// JPEG has no alpha channel, so the image is first flattened onto a white
// background; PNG preserves transparency as-is.
func Encode(w io.Writer, img image.Image, format Format) error {
	switch format {
	case FormatJPEG:
		return jpeg.Encode(w, FlattenToWhite(img), &jpeg.Options{Quality: jpegQuality})
	default:
		return png.Encode(w, img)
	}
}

// Save encodes img in the format implied by the path's extension and writes
// it to disk.
func Save(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := Encode(w, img, FormatFromPath(path)); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// SaveResized decodes raw image bytes, resizes them to exactly width x height
// with Lanczos resampling, and saves to path.
func SaveResized(path string, data []byte, width, height int) error {
	img, err := Decode(data)
	if err != nil {
		return err
	}
	return Save(path, imaging.Resize(img, width, height, imaging.Lanczos))
}

// ResizeExact scales img to exactly width x height with Lanczos resampling,
// ignoring aspect ratio. Used to snap generation results back onto their
// tile geometry.
func ResizeExact(img image.Image, width, height int) *image.NRGBA {
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// FlattenToWhite composites img over an opaque white background, discarding
// the alpha channel. Rounding matches (c*a + 255*(255-a) + 127) / 255 per
// channel.
func FlattenToWhite(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	src := imaging.Clone(img) // normalized NRGBA pixels

	for i := 0; i < len(src.Pix); i += 4 {
		a := uint16(src.Pix[i+3])
		inv := 255 - a
		out.Pix[i] = uint8((uint16(src.Pix[i])*a + 255*inv + 127) / 255)
		out.Pix[i+1] = uint8((uint16(src.Pix[i+1])*a + 255*inv + 127) / 255)
		out.Pix[i+2] = uint8((uint16(src.Pix[i+2])*a + 255*inv + 127) / 255)
		out.Pix[i+3] = 255
	}
	return out
}
