package worker

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ironsheep/tile-regen/internal/imaging"
)

// MaxConcurrency caps the number of simultaneous generation calls.
const MaxConcurrency = 8

// DefaultGenerateTimeout bounds a single generation call when the caller
// configures none. A timed-out call is an ordinary per-tile error.
const DefaultGenerateTimeout = 2 * time.Minute

// Generator is the external image-generation collaborator. reference is nil
// unless reference mode is enabled. Implementations should honor ctx
// cancellation and deadlines and return a *GenerationError for any
// non-success response.
type Generator interface {
	Generate(ctx context.Context, tile image.Image, reference image.Image, prompt string) (image.Image, error)
}

// GenerationError reports a failed generation exchange: a non-success
// response or a response with no locatable image payload.
type GenerationError struct {
	Message string
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Message
}

// Config is the per-run configuration handed to the pool by the caller.
// The pool never reads settings storage itself.
type Config struct {
	Concurrency      int
	PromptTemplate   string
	Subject          string
	KeyColor         string
	RemoveBackground bool

	// ReferenceMode attaches Reference (the full source image) to every
	// generation call for global consistency.
	ReferenceMode bool
	Reference     image.Image

	// MatchOutputSize resizes each result back onto its tile geometry.
	MatchOutputSize bool

	GenerateTimeout time.Duration

	Rows, Cols              int
	ImageWidth, ImageHeight int
}

// StatusUpdate is one per-tile state transition, streamed in the order the
// owning worker produced it. No cross-tile ordering is guaranteed.
type StatusUpdate struct {
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Summary describes a finished run.
type Summary struct {
	Done      int
	Failed    int
	Cancelled bool
}

// Completed reports whether the run produced anything for the merge engine:
// either it ran to quiescence uncancelled, or at least one tile reached a
// terminal state before the cancellation took hold.
func (s Summary) Completed() bool {
	return !s.Cancelled || s.Done+s.Failed > 0
}

// Pool fans tile jobs out to a bounded set of workers.
type Pool struct {
	gen Generator
	cfg Config
}

// NewPool builds a pool around the generation collaborator. Concurrency is
// clamped to [1, MaxConcurrency] and the timeout defaults when unset.
func NewPool(gen Generator, cfg Config) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Concurrency > MaxConcurrency {
		cfg.Concurrency = MaxConcurrency
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = DefaultGenerateTimeout
	}
	return &Pool{gen: gen, cfg: cfg}
}

// Run is a single in-flight regeneration pass.
type Run struct {
	updates chan StatusUpdate
	done    chan struct{}
	summary Summary
}

// Updates streams per-tile status transitions. The channel is buffered for
// the whole run and closed when all workers have exited, so a caller may
// also drain it after Wait returns.
func (r *Run) Updates() <-chan StatusUpdate { return r.updates }

// Wait blocks until every worker has exited (queue empty or run cancelled)
// and returns the run summary.
func (r *Run) Wait() Summary {
	<-r.done
	return r.summary
}

// RunAll starts exactly cfg.Concurrency workers draining the job list and
// returns immediately. Each pending job is dequeued by exactly one worker;
// jobs in any other state (already done, or still processing from a
// mis-shared run) are skipped. Per-tile failures are recorded on the job
// and the run continues.
func (p *Pool) RunAll(ctx context.Context, jobs []*TileJob) *Run {
	run := &Run{
		updates: make(chan StatusUpdate, 2*len(jobs)+p.cfg.Concurrency),
		done:    make(chan struct{}),
	}

	queue := newIndexQueue(len(jobs))
	var done, failed int64

	var wg sync.WaitGroup
	for w := 0; w < p.cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				// Cooperative cancel: checked before each dequeue so no new
				// tile begins once the context is done. An in-flight
				// generation below still runs to completion.
				if ctx.Err() != nil {
					return
				}
				idx, ok := queue.pop()
				if !ok {
					return
				}
				job := jobs[idx]
				if !job.claim() {
					continue
				}

				run.emit(job, "")
				if err := p.process(ctx, job); err != nil {
					job.finish(nil, err)
					atomic.AddInt64(&failed, 1)
					run.emit(job, err.Error())
					continue
				}
				atomic.AddInt64(&done, 1)
				run.emit(job, "")
			}
		}()
	}

	go func() {
		wg.Wait()
		run.summary = Summary{
			Done:      int(atomic.LoadInt64(&done)),
			Failed:    int(atomic.LoadInt64(&failed)),
			Cancelled: ctx.Err() != nil,
		}
		close(run.updates)
		close(run.done)
	}()

	return run
}

// process runs the full generate-resize-persist sequence for one claimed
// job. On success the job is marked done with its result recorded; the
// returned error, if any, becomes the job's terminal error.
func (p *Pool) process(ctx context.Context, job *TileJob) error {
	g := job.Geometry
	prompt := BuildPrompt(p.cfg.PromptTemplate, PromptData{
		Subject:     p.cfg.Subject,
		Background:  BackgroundInstruction(p.cfg.KeyColor, p.cfg.RemoveBackground),
		Row:         g.Row,
		Col:         g.Col,
		Rows:        p.cfg.Rows,
		Cols:        p.cfg.Cols,
		TileWidth:   g.Width,
		TileHeight:  g.Height,
		ImageWidth:  p.cfg.ImageWidth,
		ImageHeight: p.cfg.ImageHeight,
	})

	var reference image.Image
	if p.cfg.ReferenceMode {
		reference = p.cfg.Reference
	}

	// The generate call is the only suspension point in the pipeline; give
	// it its own deadline detached from sibling tiles.
	gctx, cancel := context.WithTimeout(context.Background(), p.cfg.GenerateTimeout)
	defer cancel()

	result, err := p.gen.Generate(gctx, job.Source, reference, prompt)
	if err != nil {
		return fmt.Errorf("tile (%d,%d): %w", g.Row, g.Col, err)
	}
	if result == nil {
		return fmt.Errorf("tile (%d,%d): %w", g.Row, g.Col, &GenerationError{Message: "empty result image"})
	}

	if p.cfg.MatchOutputSize {
		b := result.Bounds()
		if b.Dx() != g.Width || b.Dy() != g.Height {
			result = imaging.ResizeExact(result, g.Width, g.Height)
		}
	}

	if job.Path != "" {
		if err := imaging.Save(job.Path, result); err != nil {
			return fmt.Errorf("tile (%d,%d): persist result: %w", g.Row, g.Col, err)
		}
	}

	job.finish(result, nil)
	return nil
}

func (r *Run) emit(job *TileJob, errMsg string) {
	update := StatusUpdate{
		Row:    job.Geometry.Row,
		Col:    job.Geometry.Col,
		Status: job.Status(),
		Error:  errMsg,
	}
	select {
	case r.updates <- update:
	default:
		// Buffer sized for a full run; dropping here only happens if a job
		// was reset mid-run, and progress reporting is best-effort.
	}
}

// indexQueue is the shared FIFO the workers drain. pop is exclusive, which
// is what guarantees at-most-once processing per run.
type indexQueue struct {
	mu   sync.Mutex
	next int
	size int
}

func newIndexQueue(size int) *indexQueue {
	return &indexQueue{size: size}
}

func (q *indexQueue) pop() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.next >= q.size {
		return 0, false
	}
	idx := q.next
	q.next++
	return idx, true
}
