package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"
)

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"out.png", FormatPNG},
		{"out.PNG", FormatPNG},
		{"out.jpg", FormatJPEG},
		{"out.JPEG", FormatJPEG},
		{"out.webp", FormatPNG},
		{"noext", FormatPNG},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := FormatFromPath(tt.path); got != tt.want {
				t.Errorf("FormatFromPath(%q): got %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	src := createInMemoryImage(20, 10, color.NRGBA{10, 200, 30, 255})

	for _, ext := range []string{"png", "jpg"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out."+ext)
			if err := Save(path, src); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			img, err := Load(path)
			if err != nil {
				t.Fatalf("Load after Save failed: %v", err)
			}
			b := img.Bounds()
			if b.Dx() != 20 || b.Dy() != 10 {
				t.Errorf("dimensions: got %dx%d, want 20x10", b.Dx(), b.Dy())
			}
		})
	}
}

func TestSave_BadDirectory(t *testing.T) {
	src := createInMemoryImage(4, 4, color.NRGBA{A: 255})
	err := Save(filepath.Join(t.TempDir(), "missing", "out.png"), src)
	if err == nil {
		t.Fatal("Save should fail when the directory does not exist")
	}
}

func TestSaveResized(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, createInMemoryImage(16, 16, color.NRGBA{1, 2, 3, 255})); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "resized.png")
	if err := SaveResized(path, buf.Bytes(), 5, 8); err != nil {
		t.Fatalf("SaveResized failed: %v", err)
	}

	img, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	b := img.Bounds()
	if b.Dx() != 5 || b.Dy() != 8 {
		t.Errorf("dimensions: got %dx%d, want 5x8", b.Dx(), b.Dy())
	}
}

func TestFlattenToWhite(t *testing.T) {
	tests := []struct {
		name string
		in   color.NRGBA
		want color.NRGBA
	}{
		{"opaque keeps color", color.NRGBA{120, 60, 30, 255}, color.NRGBA{120, 60, 30, 255}},
		{"fully transparent becomes white", color.NRGBA{120, 60, 30, 0}, color.NRGBA{255, 255, 255, 255}},
		{"half alpha blends toward white", color.NRGBA{0, 0, 0, 128}, color.NRGBA{127, 127, 127, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FlattenToWhite(createInMemoryImage(2, 2, tt.in))
			got := out.NRGBAAt(1, 1)
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResizeExact(t *testing.T) {
	out := ResizeExact(createInMemoryImage(10, 10, color.NRGBA{5, 5, 5, 255}), 33, 7)
	b := out.Bounds()
	if b.Dx() != 33 || b.Dy() != 7 {
		t.Errorf("dimensions: got %dx%d, want 33x7", b.Dx(), b.Dy())
	}
}

func TestEncode_JPEGIsOpaque(t *testing.T) {
	var buf bytes.Buffer
	src := createInMemoryImage(8, 8, color.NRGBA{50, 50, 50, 0})
	if err := Encode(&buf, src, FormatJPEG); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	img, _, err := image.Decode(&buf)
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	// Transparent input flattens onto white before the lossy encode.
	r, g, b, _ := img.At(4, 4).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Errorf("flattened pixel: got (%d,%d,%d), want near white", r>>8, g>>8, b>>8)
	}
}
