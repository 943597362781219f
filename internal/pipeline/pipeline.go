// Package pipeline orchestrates a full run: split the source into an
// overlapping tile grid, regenerate every tile through the external
// generator, merge the results into one canvas, and export the artifacts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/tile-regen/internal/bundle"
	"github.com/ironsheep/tile-regen/internal/imaging"
	"github.com/ironsheep/tile-regen/internal/merge"
	"github.com/ironsheep/tile-regen/internal/tiling"
	"github.com/ironsheep/tile-regen/internal/worker"
)

// ErrCancelled is returned when the run is cancelled before any tile
// reaches a terminal state, in which case no merge is attempted.
var ErrCancelled = errors.New("run cancelled before any tile finished")

// Config is the plain per-run configuration the caller assembles; the
// pipeline never reads or writes persistent settings itself.
type Config struct {
	InputPath  string
	OutputPath string

	MaxTileDim   int
	OverlapRatio float64

	Concurrency     int
	Subject         string
	PromptTemplate  string
	ReferenceMode   bool
	MatchOutputSize bool
	GenerateTimeout time.Duration

	// KeyColor names the background to key ("white", "#00FF00", ...).
	// The literal "auto" picks one from the source's dominant color.
	KeyColor         string
	Tolerance        int
	RemoveBackground bool

	// Layered also exports the layered zip bundle.
	Layered bool

	// WorkDir overrides the per-run scratch directory. A supplied directory
	// is never deleted; only the UUID-scoped temp directory created when
	// WorkDir is empty is removed after the run, and KeepWorkDir suppresses
	// even that.
	WorkDir     string
	KeepWorkDir bool
}

// Result reports everything a caller needs to inspect or re-drive a run.
type Result struct {
	Plan    tiling.GridPlan
	Jobs    []*worker.TileJob
	Summary worker.Summary
	Export  *bundle.Result
	WorkDir string
}

// Run executes the whole pipeline. Per-tile generation failures do not fail
// the run: failed tiles fall back to their original crops in the merge and
// stay visible in Result.Jobs so the caller can reset and re-run exactly
// those. A bad source image or an unwritable output aborts.
func Run(ctx context.Context, gen worker.Generator, cfg Config) (*Result, error) {
	src, err := imaging.Load(cfg.InputPath)
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	keyColor := cfg.KeyColor
	if keyColor == "auto" {
		suggested, err := imaging.SuggestKeyColor(src, imaging.SuggestDominant)
		if err != nil {
			return nil, fmt.Errorf("suggest key color: %w", err)
		}
		log.Printf("suggested key color: %s", suggested)
		keyColor = suggested
	}

	plan := tiling.PlanGrid(width, height, cfg.MaxTileDim, cfg.OverlapRatio)
	log.Printf("planned %dx%d grid for %dx%d source (overlap %.2f)",
		plan.Rows, plan.Cols, width, height, plan.OverlapRatio)

	workDir := cfg.WorkDir
	ownWorkDir := workDir == ""
	if ownWorkDir {
		workDir = filepath.Join(os.TempDir(), "tile-regen-"+uuid.NewString())
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	// Only the directory this run created is cleaned up; a caller-supplied
	// work dir may hold unrelated files and is left in place.
	if ownWorkDir && !cfg.KeepWorkDir {
		defer os.RemoveAll(workDir)
	}

	tiles, err := tiling.Split(src, plan, workDir)
	if err != nil {
		return nil, err
	}
	jobs := worker.NewJobs(tiles)

	pool := worker.NewPool(gen, worker.Config{
		Concurrency:      cfg.Concurrency,
		PromptTemplate:   cfg.PromptTemplate,
		Subject:          cfg.Subject,
		KeyColor:         keyColor,
		RemoveBackground: cfg.RemoveBackground,
		ReferenceMode:    cfg.ReferenceMode,
		Reference:        src,
		MatchOutputSize:  cfg.MatchOutputSize,
		GenerateTimeout:  cfg.GenerateTimeout,
		Rows:             plan.Rows,
		Cols:             plan.Cols,
		ImageWidth:       width,
		ImageHeight:      height,
	})

	run := pool.RunAll(ctx, jobs)
	for update := range run.Updates() {
		if update.Error != "" {
			log.Printf("tile (%d,%d): %s: %s", update.Row, update.Col, update.Status, update.Error)
			continue
		}
		log.Printf("tile (%d,%d): %s", update.Row, update.Col, update.Status)
	}
	summary := run.Wait()
	log.Printf("regeneration finished: %d done, %d failed, cancelled=%v",
		summary.Done, summary.Failed, summary.Cancelled)

	result := &Result{Plan: plan, Jobs: jobs, Summary: summary, WorkDir: workDir}
	if !summary.Completed() {
		return result, ErrCancelled
	}

	mergeTiles := make([]merge.Tile, len(jobs))
	for i, job := range jobs {
		mergeTiles[i] = merge.Tile{Geometry: job.Geometry, Image: job.MergeImage()}
	}

	canvas, err := merge.Merge(mergeTiles, width, height, merge.Options{
		OverlapRatio:     plan.OverlapRatio,
		Key:              imaging.KeySpec{Color: keyColor, Tolerance: cfg.Tolerance},
		RemoveBackground: cfg.RemoveBackground,
	})
	if err != nil {
		return result, err
	}

	export, err := bundle.Export(canvas, src, mergeTiles, cfg.OutputPath, bundle.Options{
		Layered: cfg.Layered,
	})
	if err != nil {
		var exportErr *bundle.ExportError
		if errors.As(err, &exportErr) && export != nil && export.MergedPath != "" {
			// The raster is on disk; bundle/layer failures only get logged.
			log.Printf("export: %v", exportErr)
		} else {
			return result, err
		}
	}
	result.Export = export
	return result, nil
}
