// Package merge reassembles regenerated tiles into one seamless canvas.
//
// Every tile contributes its pixels weighted by a linear feather: weight
// 1.0 in the tile interior, ramping to 0.0 across each overlap band shared
// with a neighboring tile. Image-border edges do not feather. Contributions
// accumulate into a float canvas plus a coverage buffer and are normalized
// at the end, so merging the same tile set twice is pixel-identical.
//
// When background keying is active, a pixel classified as background never
// blends into a content pixel from another tile: content contributions win
// outright at the seams. A final chroma-key pass then turns every pixel
// within tolerance of the key color transparent.
//
// Accumulation parallelizes across canvas rows (bild/parallel): each row is
// written by exactly one goroutine, so overlap bands never alias.
package merge
