package merge

import (
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/parallel"
	"github.com/disintegration/imaging"

	tileimg "github.com/ironsheep/tile-regen/internal/imaging"
	"github.com/ironsheep/tile-regen/internal/tiling"
)

// Tile is one merge input: a geometry plus the buffer to composite there.
// Image is the regeneration result or, for failed tiles, the original crop.
type Tile struct {
	Geometry tiling.TileGeometry
	Image    image.Image
}

// Options controls a merge pass. A pass is a pure recomposition over the
// tile buffers: re-running with a different key spec re-keys the canvas
// without touching generation.
type Options struct {
	// OverlapRatio must match the ratio the grid was planned with; it
	// determines the feather band dimensions.
	OverlapRatio float64

	// Key designates the background color. It participates in seam
	// resolution and in the final chroma-key pass only when
	// RemoveBackground is set.
	Key              tileimg.KeySpec
	RemoveBackground bool
}

// IncompleteTileSetError reports a merge attempted while some tile has
// neither a result nor a fallback buffer.
type IncompleteTileSetError struct {
	Row, Col int
}

func (e *IncompleteTileSetError) Error() string {
	return fmt.Sprintf("incomplete tile set: tile (%d,%d) has no buffer", e.Row, e.Col)
}

// Merge composites tiles onto a width x height canvas.
//
// Each tile's contribution is weighted by a linear feather across the
// overlap bands it shares with neighbors (1.0 in the interior, down to 0.0
// at the shared edge); contributions accumulate and are normalized by total
// coverage. With RemoveBackground set, background-classified pixels lose to
// content pixels outright at seams, and a final pass keys every remaining
// background pixel to full transparency.
func Merge(tiles []Tile, width, height int, opts Options) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid canvas dimensions %dx%d", width, height)
	}
	if len(tiles) == 0 {
		return nil, &IncompleteTileSetError{}
	}
	for _, t := range tiles {
		if t.Image == nil {
			return nil, &IncompleteTileSetError{Row: t.Geometry.Row, Col: t.Geometry.Col}
		}
	}

	rows, cols := 0, 0
	for _, t := range tiles {
		if t.Geometry.Row+1 > rows {
			rows = t.Geometry.Row + 1
		}
		if t.Geometry.Col+1 > cols {
			cols = t.Geometry.Col + 1
		}
	}

	plan := tiling.GridPlan{
		Rows: rows, Cols: cols,
		OverlapRatio: opts.OverlapRatio,
		ImageWidth:   width,
		ImageHeight:  height,
	}
	tileW, tileH := plan.TileSize()
	overlapW, overlapH := plan.OverlapSize()

	prepared := prepare(tiles)

	keying := opts.RemoveBackground
	var classifier *tileimg.Classifier
	if keying {
		classifier = tileimg.NewClassifier(opts.Key)
	}

	canvas := newAccumulator(width, height)
	var bg *accumulator
	if keying {
		bg = newAccumulator(width, height)
	}

	// Row-parallel accumulation: each goroutine owns a disjoint band of
	// canvas rows, so writes in overlap bands never alias.
	parallel.Line(height, func(start, end int) {
		for i := range prepared {
			t := &prepared[i]
			g := t.geometry
			if g.Y >= end || g.Y+g.Height <= start {
				continue
			}

			yLo := max(g.Y, start)
			yHi := min(g.Y+g.Height, end)
			for gy := yLo; gy < yHi; gy++ {
				ly := gy - g.Y
				wy := axisWeight(ly, tileH, overlapH, g.Row > 0, g.Row < rows-1)
				if wy <= 0 {
					continue
				}
				srcRow := ly * t.img.Stride
				dstRow := gy * width

				for lx := 0; lx < g.Width; lx++ {
					gx := g.X + lx
					if gx >= width {
						break
					}
					wx := axisWeight(lx, tileW, overlapW, g.Col > 0, g.Col < cols-1)
					if wx <= 0 {
						continue
					}
					w := wx * wy

					si := srcRow + lx*4
					r := t.img.Pix[si]
					gc := t.img.Pix[si+1]
					b := t.img.Pix[si+2]
					a := t.img.Pix[si+3]

					dst := canvas
					if keying && classifier.IsBackground(r, gc, b, a) {
						dst = bg
					}
					di := dstRow + gx
					dst.r[di] += w * float32(r)
					dst.g[di] += w * float32(gc)
					dst.b[di] += w * float32(b)
					dst.a[di] += w * float32(a)
					dst.cov[di] += w
				}
			}
		}
	})

	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < width; x++ {
				i := y*width + x
				oi := y*out.Stride + x*4

				// Content contributions win outright over background ones;
				// the keyed background never smears into real pixels.
				src := canvas
				if keying && canvas.cov[i] <= 0 {
					src = bg
				}
				cov := src.cov[i]
				if cov <= 0 {
					continue // zero coverage stays at the transparent fill
				}
				out.Pix[oi] = clamp8(src.r[i] / cov)
				out.Pix[oi+1] = clamp8(src.g[i] / cov)
				out.Pix[oi+2] = clamp8(src.b[i] / cov)
				out.Pix[oi+3] = clamp8(src.a[i] / cov)
			}
		}
	})

	if keying {
		keyOut(out, classifier)
	}
	return out, nil
}

// keyOut is the chroma-key pass: every pixel still classified as background
// becomes fully transparent black.
func keyOut(img *image.NRGBA, classifier *tileimg.Classifier) {
	height := img.Bounds().Dy()
	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			row := y * img.Stride
			for i := row; i < row+img.Bounds().Dx()*4; i += 4 {
				if classifier.IsBackground(img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]) {
					img.Pix[i] = 0
					img.Pix[i+1] = 0
					img.Pix[i+2] = 0
					img.Pix[i+3] = 0
				}
			}
		}
	})
}

// axisWeight computes the linear feather weight at tile-local position pos.
//
// nominal is the unclipped plan tile size the stride was derived from. The
// leading band ramps up only when a previous neighbor exists; the trailing
// band (which starts at nominal-overlap) ramps down only when a following
// neighbor exists. Image-border edges keep weight 1.0. Opposing ramps at a
// seam sum to exactly 1, so a seam between identical tiles normalizes to
// the same color as the tile interior.
func axisWeight(pos, nominal, overlap int, hasPrev, hasNext bool) float32 {
	w := float32(1)
	if overlap <= 0 {
		return w
	}
	if hasPrev && pos < overlap {
		w = (float32(pos) + 0.5) / float32(overlap)
	}
	if hasNext && pos >= nominal-overlap {
		down := (float32(nominal-pos) - 0.5) / float32(overlap)
		if down < w {
			w = down
		}
	}
	if w < 0 {
		w = 0
	}
	return w
}

// prepared tile: pixels normalized to NRGBA and snapped onto the geometry.
type preparedTile struct {
	geometry tiling.TileGeometry
	img      *image.NRGBA
}

func prepare(tiles []Tile) []preparedTile {
	out := make([]preparedTile, len(tiles))
	for i, t := range tiles {
		img := imaging.Clone(t.Image)
		b := img.Bounds()
		if b.Dx() != t.Geometry.Width || b.Dy() != t.Geometry.Height {
			img = imaging.Resize(img, t.Geometry.Width, t.Geometry.Height, imaging.Lanczos)
		}
		out[i] = preparedTile{geometry: t.Geometry, img: img}
	}
	return out
}

// accumulator is the composite canvas: weighted channel sums plus the
// coverage buffer used for normalization.
type accumulator struct {
	r, g, b, a, cov []float32
}

func newAccumulator(width, height int) *accumulator {
	n := width * height
	return &accumulator{
		r:   make([]float32, n),
		g:   make([]float32, n),
		b:   make([]float32, n),
		a:   make([]float32, n),
		cov: make([]float32, n),
	}
}

func clamp8(v float32) uint8 {
	r := math.Round(float64(v))
	if r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return uint8(r)
}
