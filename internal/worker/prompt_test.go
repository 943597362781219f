package worker

import (
	"strings"
	"testing"
)

func TestBuildPrompt_AllPlaceholders(t *testing.T) {
	template := "{subject}|{background}|{row}/{rows}|{col}/{cols}|" +
		"{tile_width}x{tile_height}|{image_width}x{image_height}"
	got := BuildPrompt(template, PromptData{
		Subject:     "a red fox",
		Background:  "Keep the existing background.",
		Row:         1,
		Col:         2,
		Rows:        3,
		Cols:        4,
		TileWidth:   512,
		TileHeight:  256,
		ImageWidth:  2048,
		ImageHeight: 1024,
	})
	want := "a red fox|Keep the existing background.|2/3|3/4|512x256|2048x1024"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildPrompt_EmptyTemplateUsesDefault(t *testing.T) {
	got := BuildPrompt("", PromptData{
		Subject: "a lighthouse", Background: "b",
		Row: 0, Col: 0, Rows: 2, Cols: 2,
		ImageWidth: 100, ImageHeight: 100,
	})
	if !strings.Contains(got, "a lighthouse") {
		t.Errorf("default template should include the subject: %q", got)
	}
	if !strings.Contains(got, "tile 1 of 2") {
		t.Errorf("default template should render 1-based grid position: %q", got)
	}
	if strings.Contains(got, "{") {
		t.Errorf("rendered prompt should have no unexpanded placeholders: %q", got)
	}
}

func TestBuildPrompt_UnknownBracesPassThrough(t *testing.T) {
	got := BuildPrompt("keep {verbatim} and {row}", PromptData{Row: 4})
	if got != "keep {verbatim} and 5" {
		t.Errorf("got %q", got)
	}
}

func TestBuildPrompt_TrimsWhitespace(t *testing.T) {
	got := BuildPrompt("  {subject}  ", PromptData{Subject: "x"})
	if got != "x" {
		t.Errorf("got %q, want %q", got, "x")
	}
}

func TestBackgroundInstruction(t *testing.T) {
	tests := []struct {
		name     string
		keyColor string
		remove   bool
		want     string
	}{
		{"no removal", "green", false, "Keep the existing background."},
		{"removal with color", "green", true, "Replace the background with a flat, uniform green background."},
		{"removal defaults to white", "", true, "Replace the background with a flat, uniform white background."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BackgroundInstruction(tt.keyColor, tt.remove); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
