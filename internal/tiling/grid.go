package tiling

import "math"

// MaxGridCount is the hard ceiling on rows and on columns. It bounds the
// total tile count (and with it temp storage and generation cost) no matter
// how extreme the requested parameters are.
const MaxGridCount = 64

// TileGeometry locates one tile in source-image pixel space.
//
// X/Y is the top-left origin, Width/Height the clipped extent. Row and Col
// are 0-based grid indices. Values are computed once per plan and never
// mutated afterward.
type TileGeometry struct {
	Row    int `json:"row"`
	Col    int `json:"col"`
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// GridPlan captures the parameters that produced a set of tile geometries.
// Recompute the plan whenever image dimensions, overlap, or the target tile
// size change; geometries from an older plan must not be mixed in.
type GridPlan struct {
	Rows         int     `json:"rows"`
	Cols         int     `json:"cols"`
	OverlapRatio float64 `json:"overlap_ratio"`
	MaxTileDim   int     `json:"max_tile_dimension"`
	ImageWidth   int     `json:"image_width"`
	ImageHeight  int     `json:"image_height"`
}

// PlanGrid computes the tile grid for a source of the given dimensions.
//
// The count per axis of size S is n = ceil(S / maxTileDim), clamped to
// [1, MaxGridCount]. The overlap ratio does not add tiles; it widens each
// tile instead, so a 2000px axis at maxTileDim 1024 and ratio 0.1 splits
// into 2 tiles of nominal width 1053. Invalid inputs are clamped, never
// rejected: a ratio at or above 1 degenerates to MaxGridCount tiles per
// axis, a negative ratio becomes 0, and non-positive dimensions become
// 1 pixel.
func PlanGrid(imageWidth, imageHeight, maxTileDim int, overlapRatio float64) GridPlan {
	if imageWidth < 1 {
		imageWidth = 1
	}
	if imageHeight < 1 {
		imageHeight = 1
	}
	if overlapRatio < 0 || math.IsNaN(overlapRatio) {
		overlapRatio = 0
	}

	return GridPlan{
		Rows:         axisCount(imageHeight, maxTileDim, overlapRatio),
		Cols:         axisCount(imageWidth, maxTileDim, overlapRatio),
		OverlapRatio: overlapRatio,
		MaxTileDim:   maxTileDim,
		ImageWidth:   imageWidth,
		ImageHeight:  imageHeight,
	}
}

// axisCount is the per-axis tile count, ceil(size / maxDim). An overlap
// ratio at or above 1 would make the tile-size denominator non-positive,
// so it degenerates to the grid ceiling instead.
func axisCount(size, maxDim int, r float64) int {
	if maxDim < 1 || r >= 1 {
		return MaxGridCount
	}
	if size <= maxDim {
		return 1
	}

	n := int(math.Ceil(float64(size) / float64(maxDim)))
	if n > MaxGridCount {
		n = MaxGridCount
	}
	return n
}

// TileSize returns the nominal (unclipped) tile dimensions,
// ceil(S / (n - (n-1)*r)) per axis.
func (p GridPlan) TileSize() (width, height int) {
	width = axisTileSize(p.ImageWidth, p.Cols, p.OverlapRatio)
	height = axisTileSize(p.ImageHeight, p.Rows, p.OverlapRatio)
	return width, height
}

func axisTileSize(size, n int, r float64) int {
	denom := float64(n) - float64(n-1)*r
	if denom <= 0 {
		return size
	}
	return int(math.Ceil(float64(size) / denom))
}

// OverlapSize returns the overlap band dimensions in pixels: the truncated
// product of the nominal tile size and the overlap ratio per axis.
func (p GridPlan) OverlapSize() (width, height int) {
	tw, th := p.TileSize()
	return int(float64(tw) * p.OverlapRatio), int(float64(th) * p.OverlapRatio)
}

// Strides returns the distance between adjacent tile origins per axis,
// never less than one pixel.
func (p GridPlan) Strides() (x, y int) {
	tw, th := p.TileSize()
	ow, oh := p.OverlapSize()
	x = tw - ow
	if x < 1 {
		x = 1
	}
	y = th - oh
	if y < 1 {
		y = 1
	}
	return x, y
}

// Geometries materializes the tile rectangles in row-major order. Origins
// advance by the stride; widths and heights are clipped to the image extent
// so edge tiles never read outside the source. Degenerate tiles that would
// start past the image are skipped.
func (p GridPlan) Geometries() []TileGeometry {
	tw, th := p.TileSize()
	strideX, strideY := p.Strides()

	geoms := make([]TileGeometry, 0, p.Rows*p.Cols)
	for row := 0; row < p.Rows; row++ {
		for col := 0; col < p.Cols; col++ {
			x := col * strideX
			if x > p.ImageWidth-1 {
				x = p.ImageWidth - 1
			}
			y := row * strideY
			if y > p.ImageHeight-1 {
				y = p.ImageHeight - 1
			}

			w := tw
			if x+w > p.ImageWidth {
				w = p.ImageWidth - x
			}
			h := th
			if y+h > p.ImageHeight {
				h = p.ImageHeight - y
			}
			if w <= 0 || h <= 0 {
				continue
			}

			geoms = append(geoms, TileGeometry{
				Row: row, Col: col,
				X: x, Y: y,
				Width: w, Height: h,
			})
		}
	}
	return geoms
}
