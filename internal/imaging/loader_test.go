package imaging

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// createInMemoryImage builds a solid-color NRGBA image for tests.
func createInMemoryImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writeTempPNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create temp png: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode temp png: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempPNG(t, createInMemoryImage(32, 16, color.NRGBA{200, 100, 50, 255}))

	img, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 32 || b.Dy() != 16 {
		t.Errorf("dimensions: got %dx%d, want 32x16", b.Dx(), b.Dy())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.png"))
	if err == nil {
		t.Fatal("Load should fail for a missing file")
	}
	var srcErr *SourceImageError
	if !errors.As(err, &srcErr) {
		t.Errorf("error type: got %T, want *SourceImageError", err)
	}
}

func TestLoad_Undecodable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.png")
	if err := os.WriteFile(path, []byte("this is not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	var srcErr *SourceImageError
	if !errors.As(err, &srcErr) {
		t.Fatalf("error type: got %T (%v), want *SourceImageError", err, err)
	}
	if srcErr.Path != path {
		t.Errorf("error path: got %q, want %q", srcErr.Path, path)
	}
}

func TestDecode_Garbage(t *testing.T) {
	if _, err := Decode([]byte{0x00, 0x01, 0x02}); err == nil {
		t.Fatal("Decode should fail for garbage bytes")
	}
}
