package worker

import (
	"strconv"
	"strings"
)

// DefaultPromptTemplate is used when the caller supplies no template.
const DefaultPromptTemplate = "Regenerate this image tile. {subject} {background} " +
	"This is tile {col} of {cols} horizontally and {row} of {rows} vertically " +
	"from a {image_width}x{image_height} source image."

// PromptData carries the values substituted into a prompt template.
// Row/Col and Rows/Cols are 1-based in the rendered prompt.
type PromptData struct {
	Subject     string
	Background  string
	Row, Col    int // 0-based grid indices
	Rows, Cols  int
	TileWidth   int
	TileHeight  int
	ImageWidth  int
	ImageHeight int
}

// BuildPrompt renders template by substituting the recognized placeholders:
// {subject}, {background}, {row}, {col}, {rows}, {cols}, {tile_width},
// {tile_height}, {image_width}, {image_height}. Unrecognized braces pass
// through untouched.
func BuildPrompt(template string, data PromptData) string {
	if template == "" {
		template = DefaultPromptTemplate
	}
	r := strings.NewReplacer(
		"{subject}", data.Subject,
		"{background}", data.Background,
		"{row}", strconv.Itoa(data.Row+1),
		"{col}", strconv.Itoa(data.Col+1),
		"{rows}", strconv.Itoa(data.Rows),
		"{cols}", strconv.Itoa(data.Cols),
		"{tile_width}", strconv.Itoa(data.TileWidth),
		"{tile_height}", strconv.Itoa(data.TileHeight),
		"{image_width}", strconv.Itoa(data.ImageWidth),
		"{image_height}", strconv.Itoa(data.ImageHeight),
	)
	return strings.TrimSpace(r.Replace(template))
}

// BackgroundInstruction derives the background clause of a prompt from the
// key-color configuration. With removal requested the model is told to paint
// a flat keyable background; otherwise it is told to keep the scene.
func BackgroundInstruction(keyColor string, removeBackground bool) string {
	if !removeBackground {
		return "Keep the existing background."
	}
	if keyColor == "" {
		keyColor = "white"
	}
	return "Replace the background with a flat, uniform " + keyColor + " background."
}
