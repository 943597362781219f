package imaging

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

// KeySpec designates the background color keyed out by the merge engine.
//
// Color accepts the named backgrounds the prompt templates know about
// ("white", "black", "red", "green", "blue") or an arbitrary "#RRGGBB" hex
// value. Tolerance is a 0-100 scalar; for hex colors it maps to a
// per-channel distance threshold, for named colors it widens the channel
// bands of the classifier.
type KeySpec struct {
	Color     string `json:"color"`
	Tolerance int    `json:"tolerance"`
}

// Classifier decides whether a pixel belongs to the keyed background.
// Build one per merge pass with NewClassifier; it is immutable and safe
// for concurrent use.
type Classifier struct {
	named     string
	rgb       color.NRGBA
	threshold int
	tolerance uint8
}

// fullyTransparentMax: pixels at or below this alpha always classify as
// background regardless of color.
const fullyTransparentMax = 10

// NewClassifier builds a background classifier from spec.
//
// Unknown color names fall back to "white", matching the original
// behavior of treating unrecognized keys as a light background. Tolerance
// is clamped to [0, 100].
func NewClassifier(spec KeySpec) *Classifier {
	tol := spec.Tolerance
	if tol < 0 {
		tol = 0
	}
	if tol > 100 {
		tol = 100
	}

	name := strings.ToLower(strings.TrimSpace(spec.Color))
	c := &Classifier{tolerance: uint8(tol)}

	if strings.HasPrefix(name, "#") {
		if rgb, err := ParseHexColor(name); err == nil {
			c.rgb = rgb
			// 0-100 percent of the full 255 channel range.
			c.threshold = tol * 255 / 100
			return c
		}
		name = "white"
	}

	switch name {
	case "white", "black", "red", "green", "blue":
		c.named = name
	default:
		c.named = "white"
	}
	return c
}

// IsBackground reports whether the NRGBA pixel is within tolerance of the
// key color. Pixels that are already (almost) fully transparent always
// count as background.
func (c *Classifier) IsBackground(r, g, b, a uint8) bool {
	if a < fullyTransparentMax {
		return true
	}

	if c.named == "" {
		return absDiff(r, c.rgb.R) <= c.threshold &&
			absDiff(g, c.rgb.G) <= c.threshold &&
			absDiff(b, c.rgb.B) <= c.threshold
	}

	whiteMin := saturatingSub(240, c.tolerance)
	blackMax := saturatingAdd(15, c.tolerance)
	colorMin := saturatingSub(240, c.tolerance)
	colorMax := saturatingAdd(50, c.tolerance)

	switch c.named {
	case "black":
		return r <= blackMax && g <= blackMax && b <= blackMax
	case "red":
		return r >= colorMin && g <= colorMax && b <= colorMax
	case "green":
		return r <= colorMax && g >= colorMin && b <= colorMax
	case "blue":
		return r <= colorMax && g <= colorMax && b >= colorMin
	default: // white
		return r >= whiteMin && g >= whiteMin && b >= whiteMin
	}
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func saturatingSub(a, b uint8) uint8 {
	if b > a {
		return 0
	}
	return a - b
}

func saturatingAdd(a, b uint8) uint8 {
	if int(a)+int(b) > 255 {
		return 255
	}
	return a + b
}

// ParseHexColor parses a hex color string like "#FF0000" or "FF0000".
func ParseHexColor(hex string) (color.NRGBA, error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid hex color length: %q", hex)
	}
	val, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, err
	}
	return color.NRGBA{
		R: uint8(val >> 16),
		G: uint8(val >> 8),
		B: uint8(val),
		A: 255,
	}, nil
}

// SuggestMethod selects the palette extraction used by SuggestKeyColor.
type SuggestMethod int

const (
	SuggestDominant SuggestMethod = iota
	SuggestKMeans
)

// SuggestKeyColor proposes a key color for img by extracting its most
// prominent color and snapping it to the nearest named key the classifier
// understands. It is a convenience for callers that have no configured
// background color; the merge engine never calls it implicitly.
func SuggestKeyColor(img image.Image, method SuggestMethod) (string, error) {
	var prominent colorful.Color

	switch method {
	case SuggestKMeans:
		c, err := kmeansProminent(img)
		if err != nil {
			return "", err
		}
		prominent = c
	default:
		c, ok := colorful.MakeColor(dominantcolor.Find(img))
		if !ok {
			return "", fmt.Errorf("no opaque pixels to sample")
		}
		prominent = c
	}

	names := map[string]colorful.Color{
		"white": {R: 1, G: 1, B: 1},
		"black": {R: 0, G: 0, B: 0},
		"red":   {R: 1, G: 0, B: 0},
		"green": {R: 0, G: 1, B: 0},
		"blue":  {R: 0, G: 0, B: 1},
	}

	best := "white"
	bestDist := -1.0
	for name, ref := range names {
		d := prominent.DistanceLab(ref)
		if bestDist < 0 || d < bestDist {
			best = name
			bestDist = d
		}
	}
	return best, nil
}

// kmeansSampleStride bounds the number of pixels fed to the clusterer so
// suggestion stays fast on large sources.
const kmeansSampleStride = 8

func kmeansProminent(img image.Image) (colorful.Color, error) {
	bounds := img.Bounds()

	var obs clusters.Observations
	for y := bounds.Min.Y; y < bounds.Max.Y; y += kmeansSampleStride {
		for x := bounds.Min.X; x < bounds.Max.X; x += kmeansSampleStride {
			r, g, b, a := img.At(x, y).RGBA()
			if a>>8 < fullyTransparentMax {
				continue
			}
			obs = append(obs, clusters.Coordinates{
				float64(r>>8) / 255.0,
				float64(g>>8) / 255.0,
				float64(b>>8) / 255.0,
			})
		}
	}
	if len(obs) == 0 {
		return colorful.Color{}, fmt.Errorf("no opaque pixels to sample")
	}

	k := 4
	if len(obs) < k {
		k = len(obs)
	}
	km := kmeans.New()
	cl, err := km.Partition(obs, k)
	if err != nil {
		return colorful.Color{}, fmt.Errorf("kmeans partition: %w", err)
	}

	// Largest cluster wins: the background dominates pixel count.
	var best clusters.Cluster
	for _, c := range cl {
		if len(c.Observations) > len(best.Observations) {
			best = c
		}
	}
	center := best.Center
	return colorful.Color{R: center[0], G: center[1], B: center[2]}, nil
}
