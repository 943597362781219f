package worker

import (
	"image"
	"sync"

	"github.com/ironsheep/tile-regen/internal/tiling"
)

// Status is the lifecycle state of a tile job.
type Status int

const (
	StatusPending Status = iota
	StatusProcessing
	StatusDone
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusProcessing:
		return "processing"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	default:
		return "pending"
	}
}

// TileJob is the per-tile unit of work.
//
// Geometry, Source, and the path fields are fixed at split time. Result and
// Err are written only by the single worker that owns the job while it is
// processing; the status field guards that ownership. Reading a job's
// result while a run is active is racy by construction; wait for the run
// to finish first.
type TileJob struct {
	Geometry     tiling.TileGeometry
	Source       image.Image // untouched original crop, the merge fallback
	Path         string      // where a successful result is persisted
	OriginalPath string

	Result image.Image
	Err    error

	mu     sync.Mutex
	status Status
}

// NewJobs wraps split tiles into pending jobs.
func NewJobs(tiles []tiling.Tile) []*TileJob {
	jobs := make([]*TileJob, len(tiles))
	for i, t := range tiles {
		jobs[i] = &TileJob{
			Geometry:     t.Geometry,
			Source:       t.Original,
			Path:         t.Path,
			OriginalPath: t.OriginalPath,
		}
	}
	return jobs
}

// Status returns the job's current state.
func (j *TileJob) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Reset forces the job back to pending so the next run reprocesses it.
// Any previous result and error are discarded. Resetting a job that is
// currently processing is a no-op: the owning worker's terminal transition
// wins.
func (j *TileJob) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status == StatusProcessing {
		return
	}
	j.status = StatusPending
	j.Result = nil
	j.Err = nil
}

// claim transitions pending -> processing. It returns false when the job is
// in any other state, which is how a job already done (or claimed by a
// racing worker) is skipped.
func (j *TileJob) claim() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending {
		return false
	}
	j.status = StatusProcessing
	return true
}

func (j *TileJob) finish(result image.Image, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err != nil {
		j.status = StatusError
		j.Err = err
		return
	}
	j.status = StatusDone
	j.Result = result
	j.Err = nil
}

// MergeImage returns the buffer the merge engine should composite for this
// job: the regeneration result when present, otherwise the original crop.
func (j *TileJob) MergeImage() image.Image {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status == StatusDone && j.Result != nil {
		return j.Result
	}
	return j.Source
}
