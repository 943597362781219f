// Package tiling plans and materializes the tile grid.
//
// The planner is pure geometry: given the source dimensions, a maximum
// tile edge length, and an overlap ratio it computes how many rows and
// columns are needed and where each tile rectangle sits in source pixel
// space. The splitter then crops each rectangle out of the decoded source
// and persists both the working tile and an untouched original crop to a
// scoped directory, so that a failed regeneration can always fall back to
// unmodified pixels.
//
// # Invariants
//
//   - Adjacent tiles overlap by the configured fraction of the tile
//     dimension; the union of all tile rectangles covers the source image
//     exactly, with edge tiles clipped to the image extent.
//   - The grid count per axis is ceil(size / maxTileDim); overlap widens
//     each tile beyond maxTileDim rather than adding tiles, so the nominal
//     tile dimension is bounded by maxTileDim / (1 - overlapRatio).
//   - Geometries are computed once per split and are immutable; re-planning
//     invalidates all prior geometries.
package tiling
