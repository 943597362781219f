// Package bundle writes the pipeline's output artifacts: the flattened
// raster and, optionally, a layered zip bundle for manual touch-up.
package bundle

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironsheep/tile-regen/internal/imaging"
	"github.com/ironsheep/tile-regen/internal/merge"
)

// ExportError aggregates per-artifact failures. Layer failures never roll
// back artifacts that were already written; callers inspect Layers to see
// what is missing from the bundle.
type ExportError struct {
	// Artifact names the write that failed fatally, empty when only
	// individual layers failed.
	Artifact string
	Err      error
	// Layers holds the non-fatal per-layer failures.
	Layers []error
}

func (e *ExportError) Error() string {
	if e.Artifact != "" {
		return fmt.Sprintf("export %s: %v", e.Artifact, e.Err)
	}
	msgs := make([]string, len(e.Layers))
	for i, err := range e.Layers {
		msgs[i] = err.Error()
	}
	return "export: " + strings.Join(msgs, "; ")
}

func (e *ExportError) Unwrap() error { return e.Err }

// Options controls what Export produces besides the flattened raster.
type Options struct {
	// Layered also writes <stem>_layers.zip next to the raster: the source,
	// the merged canvas, and one correctly positioned layer per tile.
	Layered bool
}

// Result reports what Export wrote.
type Result struct {
	MergedPath string `json:"merged_path"`
	BundlePath string `json:"bundle_path,omitempty"`
	TileCount  int    `json:"tile_count"`
	// LayerErrors are per-layer failures that did not block the raster.
	LayerErrors []string `json:"layer_errors,omitempty"`
}

// layerEntry is one positioned layer in the bundle manifest.
type layerEntry struct {
	Name   string `json:"name"`
	File   string `json:"file"`
	Row    *int   `json:"row,omitempty"`
	Col    *int   `json:"col,omitempty"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Export writes the flattened canvas to outPath (format chosen by
// extension) and, when requested, a layered bundle alongside it.
//
// The raster write is the only fatal step. Individual layer failures are
// collected into the result (and a trailing *ExportError) but the already
// written raster is never rolled back.
func Export(canvas image.Image, source image.Image, tiles []merge.Tile, outPath string, opts Options) (*Result, error) {
	if canvas == nil {
		return nil, &ExportError{Artifact: outPath, Err: fmt.Errorf("nil canvas")}
	}

	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &ExportError{Artifact: outPath, Err: err}
		}
	}
	if err := imaging.Save(outPath, canvas); err != nil {
		return nil, &ExportError{Artifact: outPath, Err: err}
	}

	res := &Result{MergedPath: outPath, TileCount: len(tiles)}
	if !opts.Layered {
		return res, nil
	}

	bundlePath := stemPath(outPath) + "_layers.zip"
	layerErrs, err := writeLayeredBundle(bundlePath, canvas, source, tiles)
	if err != nil {
		// The raster is already on disk; report the bundle failure only.
		return res, &ExportError{Artifact: bundlePath, Err: err}
	}
	res.BundlePath = bundlePath
	for _, e := range layerErrs {
		res.LayerErrors = append(res.LayerErrors, e.Error())
	}
	if len(layerErrs) > 0 {
		return res, &ExportError{Layers: layerErrs}
	}
	return res, nil
}

// writeLayeredBundle assembles the zip: merged.png and original.png as full
// canvas layers at offset (0,0), then one tile_R_C.png per tile at its
// geometry offset, described by layers.json. A failed tile layer is skipped
// and reported, not fatal.
func writeLayeredBundle(path string, canvas, source image.Image, tiles []merge.Tile) ([]error, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	zw := zip.NewWriter(f)

	b := canvas.Bounds()
	manifest := []layerEntry{}

	addImage := func(name string, img image.Image) error {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		return imaging.Encode(w, img, imaging.FormatPNG)
	}

	if err := addImage("merged.png", canvas); err != nil {
		zw.Close()
		f.Close()
		os.Remove(path)
		return nil, err
	}
	manifest = append(manifest, layerEntry{
		Name: "Merged Result", File: "merged.png",
		Width: b.Dx(), Height: b.Dy(),
	})

	var layerErrs []error
	if source != nil {
		if err := addImage("original.png", source); err != nil {
			layerErrs = append(layerErrs, fmt.Errorf("layer original.png: %w", err))
		} else {
			sb := source.Bounds()
			manifest = append(manifest, layerEntry{
				Name: "Input Source", File: "original.png",
				Width: sb.Dx(), Height: sb.Dy(),
			})
		}
	}

	for _, t := range tiles {
		g := t.Geometry
		name := fmt.Sprintf("tile_%d_%d.png", g.Row, g.Col)
		if t.Image == nil {
			layerErrs = append(layerErrs, fmt.Errorf("layer %s: no image buffer", name))
			continue
		}
		if err := addImage(name, t.Image); err != nil {
			layerErrs = append(layerErrs, fmt.Errorf("layer %s: %w", name, err))
			continue
		}
		row, col := g.Row, g.Col
		manifest = append(manifest, layerEntry{
			Name: fmt.Sprintf("Tile r%d c%d", g.Row, g.Col),
			File: name,
			Row:  &row, Col: &col,
			X: g.X, Y: g.Y, Width: g.Width, Height: g.Height,
		})
	}

	mw, err := zw.Create("layers.json")
	if err == nil {
		enc := json.NewEncoder(mw)
		enc.SetIndent("", "  ")
		err = enc.Encode(manifest)
	}
	if err != nil {
		zw.Close()
		f.Close()
		os.Remove(path)
		return nil, err
	}

	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return layerErrs, f.Close()
}

// stemPath strips the extension: "out/final.png" -> "out/final".
func stemPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}
