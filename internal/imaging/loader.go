package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// SourceImageError reports a source image that is missing or cannot be
// decoded. It is fatal to the whole run: no tile may be produced from an
// unreadable source.
type SourceImageError struct {
	Path string
	Err  error
}

func (e *SourceImageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("source image: %v", e.Err)
	}
	return fmt.Sprintf("source image %s: %v", e.Path, e.Err)
}

func (e *SourceImageError) Unwrap() error { return e.Err }

// Load reads and decodes the image at path, applying any EXIF orientation
// so that downstream geometry always works on upright pixels.
//
// Supported formats are PNG, JPEG, GIF, and WebP. A missing or undecodable
// file returns a *SourceImageError.
func Load(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SourceImageError{Path: path, Err: err}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &SourceImageError{Path: path, Err: err}
	}

	return applyOrientation(img, data), nil
}

// Decode decodes raw image bytes. Unlike Load it does not consult EXIF
// metadata; generation results arrive already upright.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &SourceImageError{Err: err}
	}
	return img, nil
}

// applyOrientation maps the eight EXIF orientation values onto the
// corresponding flip/rotate transforms. Images without EXIF data (or with
// orientation 1) are returned unchanged.
func applyOrientation(img image.Image, data []byte) image.Image {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return img
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return img
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return img
	}

	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.FlipH(imaging.Rotate270(img))
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.FlipH(imaging.Rotate90(img))
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
