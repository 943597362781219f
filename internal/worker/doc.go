// Package worker runs the bounded-concurrency regeneration pass.
//
// Each tile becomes a TileJob with a small state machine
// (pending -> processing -> done|error). A Pool launches the configured
// number of goroutines which cooperatively drain a mutex-guarded FIFO of
// job indices, build a per-tile prompt, invoke the external Generator, and
// persist the result. A job is dequeued at most once per run; per-tile
// failures never abort sibling workers.
//
// Cancellation is cooperative: the run context is checked before every
// dequeue, so once cancelled no new tile begins processing, but an
// in-flight Generate call is allowed to complete and its result is still
// recorded.
//
// Status changes are streamed on the Run's update channel so a caller can
// surface per-tile progress and re-trigger exactly the failed tiles.
package worker
