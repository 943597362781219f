package tiling

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	tileimg "github.com/ironsheep/tile-regen/internal/imaging"
)

// Tile is one materialized crop of the source image.
//
// Original holds the untouched crop kept in memory as the regeneration
// fallback. OriginalPath is its on-disk twin (orig_tile_R_C), Path is where
// the worker pool will persist the regenerated result (tile_R_C); the file
// at Path does not exist until a generation for this tile succeeds.
type Tile struct {
	Geometry     TileGeometry
	Original     image.Image
	Path         string
	OriginalPath string
}

// Split crops every planned tile out of img and persists the crops under dir.
//
// Alongside the per-tile files a copy of the full source is written as
// original_source.png so later passes survive replacement of the input file.
// Splitting is all-or-nothing: geometry is validated before the first write,
// and any write failure aborts with the partial files removed, so callers
// never observe a half-split directory.
func Split(img image.Image, plan GridPlan, dir string) ([]Tile, error) {
	if img == nil {
		return nil, &tileimg.SourceImageError{Err: fmt.Errorf("nil source image")}
	}

	geoms := plan.Geometries()
	if len(geoms) == 0 {
		return nil, fmt.Errorf("grid plan produced no tiles for %dx%d", plan.ImageWidth, plan.ImageHeight)
	}

	written := make([]string, 0, len(geoms)+1)
	cleanup := func() {
		for _, p := range written {
			os.Remove(p)
		}
	}

	sourceCopy := filepath.Join(dir, "original_source.png")
	if err := tileimg.Save(sourceCopy, img); err != nil {
		return nil, fmt.Errorf("failed to persist source copy: %w", err)
	}
	written = append(written, sourceCopy)

	tiles := make([]Tile, 0, len(geoms))
	for _, g := range geoms {
		crop := imaging.Crop(img, image.Rect(g.X, g.Y, g.X+g.Width, g.Y+g.Height))

		origPath := filepath.Join(dir, fmt.Sprintf("orig_tile_%d_%d.png", g.Row, g.Col))
		if err := tileimg.Save(origPath, crop); err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to persist tile (%d,%d): %w", g.Row, g.Col, err)
		}
		written = append(written, origPath)

		tiles = append(tiles, Tile{
			Geometry:     g,
			Original:     crop,
			Path:         filepath.Join(dir, fmt.Sprintf("tile_%d_%d.png", g.Row, g.Col)),
			OriginalPath: origPath,
		})
	}

	return tiles, nil
}
