package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/tile-regen/internal/imaging"
	"github.com/ironsheep/tile-regen/internal/worker"
)

type stubGenerator struct {
	fn func(ctx context.Context, tile, reference image.Image, prompt string) (image.Image, error)
}

func (s *stubGenerator) Generate(ctx context.Context, tile, reference image.Image, prompt string) (image.Image, error) {
	return s.fn(ctx, tile, reference, prompt)
}

// echoGenerator returns the input tile unchanged, a lossless round trip.
func echoGenerator() *stubGenerator {
	return &stubGenerator{fn: func(ctx context.Context, tile, ref image.Image, prompt string) (image.Image, error) {
		return tile, nil
	}}
}

func writeSourcePNG(t *testing.T, w, h int, c color.NRGBA) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	path := filepath.Join(t.TempDir(), "source.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode source: %v", err)
	}
	return path
}

func TestRun_EndToEnd(t *testing.T) {
	src := writeSourcePNG(t, 60, 40, color.NRGBA{180, 40, 40, 255})
	outPath := filepath.Join(t.TempDir(), "out", "final.png")

	res, err := Run(context.Background(), echoGenerator(), Config{
		InputPath:    src,
		OutputPath:   outPath,
		MaxTileDim:   32,
		OverlapRatio: 0.1,
		Concurrency:  2,
		Subject:      "a test pattern",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Plan.Rows < 2 || res.Plan.Cols < 2 {
		t.Errorf("plan = %dx%d, want at least a 2x2 grid for 60x40 at max 32", res.Plan.Rows, res.Plan.Cols)
	}
	if want := res.Plan.Rows * res.Plan.Cols; len(res.Jobs) != want {
		t.Errorf("got %d jobs, want %d", len(res.Jobs), want)
	}
	if res.Summary.Done != len(res.Jobs) || res.Summary.Failed != 0 {
		t.Errorf("summary = %+v, want all done", res.Summary)
	}
	if res.Export == nil || res.Export.MergedPath != outPath {
		t.Fatalf("export result = %+v", res.Export)
	}

	out, err := imaging.Load(outPath)
	if err != nil {
		t.Fatalf("load merged output: %v", err)
	}
	b := out.Bounds()
	if b.Dx() != 60 || b.Dy() != 40 {
		t.Errorf("output is %dx%d, want the source dimensions 60x40", b.Dx(), b.Dy())
	}
	// An echo round trip of a uniform source must reproduce it.
	r, g, bl, a := out.At(30, 20).RGBA()
	got := color.NRGBA{uint8(r >> 8), uint8(g >> 8), uint8(bl >> 8), uint8(a >> 8)}
	if got != (color.NRGBA{180, 40, 40, 255}) {
		t.Errorf("center pixel = %+v, want the source color", got)
	}
}

func TestRun_WorkDirLifecycle(t *testing.T) {
	src := writeSourcePNG(t, 30, 30, color.NRGBA{50, 50, 50, 255})
	base := t.TempDir()

	t.Run("auto dir removed by default", func(t *testing.T) {
		res, err := Run(context.Background(), echoGenerator(), Config{
			InputPath:  src,
			OutputPath: filepath.Join(base, "a.png"),
			MaxTileDim: 32,
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if res.WorkDir == "" {
			t.Fatal("result should report the auto-created work dir")
		}
		if _, statErr := os.Stat(res.WorkDir); !os.IsNotExist(statErr) {
			t.Error("auto-created work dir should be removed after the run")
		}
	})

	t.Run("auto dir kept on request", func(t *testing.T) {
		res, err := Run(context.Background(), echoGenerator(), Config{
			InputPath:   src,
			OutputPath:  filepath.Join(base, "b.png"),
			MaxTileDim:  32,
			KeepWorkDir: true,
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		defer os.RemoveAll(res.WorkDir)
		if _, statErr := os.Stat(filepath.Join(res.WorkDir, "original_source.png")); statErr != nil {
			t.Error("kept work dir should contain the source copy")
		}
		if _, statErr := os.Stat(filepath.Join(res.WorkDir, "orig_tile_0_0.png")); statErr != nil {
			t.Error("kept work dir should contain the original tile crops")
		}
	})

	t.Run("supplied dir never deleted", func(t *testing.T) {
		workDir := filepath.Join(base, "scratch-supplied")
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			t.Fatalf("prepare work dir: %v", err)
		}
		sentinel := filepath.Join(workDir, "keep-me.txt")
		if err := os.WriteFile(sentinel, []byte("precious"), 0o644); err != nil {
			t.Fatalf("write sentinel: %v", err)
		}

		res, err := Run(context.Background(), echoGenerator(), Config{
			InputPath:  src,
			OutputPath: filepath.Join(base, "c.png"),
			MaxTileDim: 32,
			WorkDir:    workDir,
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if res.WorkDir != workDir {
			t.Errorf("WorkDir = %q, want %q", res.WorkDir, workDir)
		}
		if _, statErr := os.Stat(sentinel); statErr != nil {
			t.Error("pre-existing files in a supplied work dir must survive the run")
		}
		if _, statErr := os.Stat(filepath.Join(workDir, "original_source.png")); statErr != nil {
			t.Error("supplied work dir should contain the run artifacts")
		}
	})
}

func TestRun_FailedTilesFallBackToOriginals(t *testing.T) {
	src := writeSourcePNG(t, 60, 40, color.NRGBA{90, 140, 200, 255})
	outPath := filepath.Join(t.TempDir(), "final.png")

	var failedOne bool
	gen := &stubGenerator{fn: func(ctx context.Context, tile, ref image.Image, prompt string) (image.Image, error) {
		if !failedOne {
			failedOne = true
			return nil, errors.New("synthetic failure")
		}
		return tile, nil
	}}

	res, err := Run(context.Background(), gen, Config{
		InputPath:    src,
		OutputPath:   outPath,
		MaxTileDim:   32,
		OverlapRatio: 0.1,
		Concurrency:  1,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Summary.Failed != 1 || res.Summary.Done != len(res.Jobs)-1 {
		t.Fatalf("summary = %+v, want exactly one failure", res.Summary)
	}

	var failedJob *worker.TileJob
	for _, j := range res.Jobs {
		if j.Status() == worker.StatusError {
			failedJob = j
		}
	}
	if failedJob == nil {
		t.Fatal("no job records the failure")
	}
	if failedJob.MergeImage() != failedJob.Source {
		t.Error("failed job should merge its original crop")
	}

	// The merge still lands because the failed tile fell back to its crop,
	// and a uniform source reproduces itself either way.
	out, err := imaging.Load(outPath)
	if err != nil {
		t.Fatalf("merged output missing: %v", err)
	}
	r, g, b, a := out.At(30, 20).RGBA()
	got := color.NRGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
	if got != (color.NRGBA{90, 140, 200, 255}) {
		t.Errorf("center pixel = %+v, want the source color", got)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	src := writeSourcePNG(t, 30, 30, color.NRGBA{50, 50, 50, 255})
	outPath := filepath.Join(t.TempDir(), "final.png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, echoGenerator(), Config{
		InputPath:  src,
		OutputPath: outPath,
		MaxTileDim: 32,
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if res == nil || !res.Summary.Cancelled {
		t.Fatal("cancelled run should still return its summary")
	}
	if _, statErr := os.Stat(outPath); !os.IsNotExist(statErr) {
		t.Error("no output should be written for a run cancelled before any tile finished")
	}
}

func TestRun_AutoKeyColor(t *testing.T) {
	src := writeSourcePNG(t, 40, 40, color.NRGBA{0, 230, 0, 255})
	outPath := filepath.Join(t.TempDir(), "final.png")

	// Echo returns the green source tiles; with auto key and removal every
	// pixel classifies as background and keys out to transparency.
	res, err := Run(context.Background(), echoGenerator(), Config{
		InputPath:        src,
		OutputPath:       outPath,
		MaxTileDim:       64,
		KeyColor:         "auto",
		Tolerance:        10,
		RemoveBackground: true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Summary.Done != len(res.Jobs) {
		t.Fatalf("summary = %+v", res.Summary)
	}

	out, err := imaging.Load(outPath)
	if err != nil {
		t.Fatalf("load output: %v", err)
	}
	_, _, _, a := out.At(20, 20).RGBA()
	if a != 0 {
		t.Errorf("alpha at center = %d, want 0 after keying out the green background", a>>8)
	}
}

func TestRun_BadInputAborts(t *testing.T) {
	_, err := Run(context.Background(), echoGenerator(), Config{
		InputPath:  filepath.Join(t.TempDir(), "missing.png"),
		OutputPath: filepath.Join(t.TempDir(), "out.png"),
		MaxTileDim: 32,
	})
	var srcErr *imaging.SourceImageError
	if !errors.As(err, &srcErr) {
		t.Fatalf("want SourceImageError, got %v", err)
	}
}
