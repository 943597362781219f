// Package imaging is the raster codec boundary for the tile pipeline.
//
// It loads source images (PNG, JPEG, GIF, WebP) with EXIF orientation
// applied, encodes and saves results in the format implied by the output
// file extension, and provides the key-color model used by the merge
// engine's chroma-key pass.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with the origin at the top-left corner:
// X increases rightward, Y increases downward.
//
// # Error Handling
//
// A source image that is missing or cannot be decoded fails with a
// *SourceImageError; callers can detect it with errors.As. Encoding and
// file I/O errors are wrapped with context via fmt.Errorf.
package imaging
