package main

import (
	"bytes"
	"context"
	"image"
	"os"
	"os/exec"
	"strings"

	"github.com/ironsheep/tile-regen/internal/imaging"
	"github.com/ironsheep/tile-regen/internal/worker"
)

// execGenerator adapts an external command to the worker.Generator
// interface. The tile is piped to the command's stdin as PNG, the prompt is
// appended as the final argument, and the regenerated image is read from
// stdout. When a reference image is supplied it is written to a temp file
// whose path is exported as TILE_REGEN_REFERENCE.
type execGenerator struct {
	command string
	args    []string
}

func newExecGenerator(commandLine string) *execGenerator {
	parts := strings.Fields(commandLine)
	if len(parts) == 0 {
		return &execGenerator{}
	}
	g := &execGenerator{command: parts[0]}
	if len(parts) > 1 {
		g.args = parts[1:]
	}
	return g
}

func (g *execGenerator) Generate(ctx context.Context, tile image.Image, reference image.Image, prompt string) (image.Image, error) {
	var stdin bytes.Buffer
	if err := imaging.Encode(&stdin, tile, imaging.FormatPNG); err != nil {
		return nil, &worker.GenerationError{Message: "encode tile: " + err.Error()}
	}

	cmd := exec.CommandContext(ctx, g.command, append(g.args, prompt)...)
	cmd.Stdin = &stdin
	cmd.Stderr = os.Stderr

	if reference != nil {
		ref, err := os.CreateTemp("", "tile-regen-ref-*.png")
		if err != nil {
			return nil, &worker.GenerationError{Message: "reference temp file: " + err.Error()}
		}
		defer os.Remove(ref.Name())
		if err := imaging.Encode(ref, reference, imaging.FormatPNG); err != nil {
			ref.Close()
			return nil, &worker.GenerationError{Message: "encode reference: " + err.Error()}
		}
		ref.Close()
		cmd.Env = append(os.Environ(), "TILE_REGEN_REFERENCE="+ref.Name())
	}

	out, err := cmd.Output()
	if err != nil {
		return nil, &worker.GenerationError{Message: err.Error()}
	}
	result, err := imaging.Decode(out)
	if err != nil {
		return nil, &worker.GenerationError{Message: "no image payload in response: " + err.Error()}
	}
	return result, nil
}
