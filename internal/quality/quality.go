// Package quality scores uploaded photos for enrollment suitability.
// The factors and thresholds are empirical tuning constants; the assessment
// is advisory gating, not a correctness guarantee.
package quality

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	xdraw "golang.org/x/image/draw"
)

const (
	minResolution = 400
	// referenceArea is the resolution at which the area-ratio factor caps at 1.0.
	referenceArea = 640 * 480

	darkLimit        = 50
	brightLimit      = 200
	brightnessTarget = 128

	contrastFloor = 20
	contrastScale = 50

	blurFloor = 100
	blurScale = 500

	// maxAnalysisDim bounds the luminance / Laplacian pass on large uploads.
	maxAnalysisDim = 1024
)

// Factors breaks the overall score into its contributing components,
// each in [0, 1].
type Factors struct {
	Resolution float64 `json:"resolution"`
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Sharpness  float64 `json:"sharpness"`
}

// Stats carries the raw measurements behind the factors, for diagnostics.
type Stats struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Sharpness  float64 `json:"sharpness"`
}

// Assessment is the result of scoring one photo.
type Assessment struct {
	Score   float64  `json:"quality_score"`
	Factors Factors  `json:"quality_factors"`
	Issues  []string `json:"issues,omitempty"`
	Stats   Stats    `json:"image_stats"`
}

// AssessBytes decodes the image and scores it. An unreadable image yields
// score 0.0 with a diagnostic issue instead of an error.
func AssessBytes(data []byte) Assessment {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Assessment{
			Score:  0.0,
			Issues: []string{"Failed to load image: " + err.Error()},
		}
	}
	return Assess(img)
}

// Assess computes the four factor scores and their unweighted mean.
func Assess(img image.Image) Assessment {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	var a Assessment
	a.Stats.Width = width
	a.Stats.Height = height

	// Resolution is judged on the original dimensions.
	if width < minResolution || height < minResolution {
		a.Issues = append(a.Issues, fmt.Sprintf(
			"Image resolution too low (%dx%d). Minimum: %dx%d",
			width, height, minResolution, minResolution))
		a.Factors.Resolution = 0.3
	} else {
		a.Factors.Resolution = math.Min(1.0, float64(width*height)/referenceArea)
	}

	lum := luminance(downscale(img))

	brightness := mean(lum)
	a.Stats.Brightness = brightness
	switch {
	case brightness < darkLimit:
		a.Issues = append(a.Issues, "Image too dark")
		a.Factors.Brightness = 0.3
	case brightness > brightLimit:
		a.Issues = append(a.Issues, "Image too bright")
		a.Factors.Brightness = 0.5
	default:
		a.Factors.Brightness = 1.0 - math.Abs(brightness-brightnessTarget)/brightnessTarget
	}

	contrast := stddev(lum, brightness)
	a.Stats.Contrast = contrast
	if contrast < contrastFloor {
		a.Issues = append(a.Issues, "Low contrast")
		a.Factors.Contrast = 0.4
	} else {
		a.Factors.Contrast = math.Min(1.0, contrast/contrastScale)
	}

	sharpness := laplacianVariance(lum)
	a.Stats.Sharpness = sharpness
	if sharpness < blurFloor {
		a.Issues = append(a.Issues, "Image appears blurry")
		a.Factors.Sharpness = 0.3
	} else {
		a.Factors.Sharpness = math.Min(1.0, sharpness/blurScale)
	}

	a.Score = (a.Factors.Resolution + a.Factors.Brightness +
		a.Factors.Contrast + a.Factors.Sharpness) / 4

	return a
}

// downscale bounds the analysis cost for large uploads. Factor measurements
// below run on the scaled image; resolution is already taken from the
// original bounds.
func downscale(img image.Image) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= maxAnalysisDim && h <= maxAnalysisDim {
		return img
	}

	scale := float64(maxAnalysisDim) / float64(max(w, h))
	dstW := int(float64(w) * scale)
	dstH := int(float64(h) * scale)

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

// luminance converts the image to an 8-bit grayscale grid (ITU-R BT.601).
type lumGrid struct {
	pix  []float64
	w, h int
}

func luminance(img image.Image) lumGrid {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	g := lumGrid{pix: make([]float64, w*h), w: w, h: h}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, gr, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			g.pix[y*w+x] = 0.299*float64(r>>8) + 0.587*float64(gr>>8) + 0.114*float64(b>>8)
		}
	}
	return g
}

func mean(g lumGrid) float64 {
	if len(g.pix) == 0 {
		return 0
	}
	var sum float64
	for _, v := range g.pix {
		sum += v
	}
	return sum / float64(len(g.pix))
}

func stddev(g lumGrid, mean float64) float64 {
	if len(g.pix) == 0 {
		return 0
	}
	var sum float64
	for _, v := range g.pix {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(g.pix)))
}

// laplacianVariance applies a 4-neighbour Laplacian over the luminance grid
// and returns its variance. Low variance means few edges, i.e. a blurry image.
func laplacianVariance(g lumGrid) float64 {
	if g.w < 3 || g.h < 3 {
		return 0
	}

	n := (g.w - 2) * (g.h - 2)
	responses := make([]float64, 0, n)
	var sum float64
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			c := g.pix[y*g.w+x]
			lap := g.pix[(y-1)*g.w+x] + g.pix[(y+1)*g.w+x] +
				g.pix[y*g.w+x-1] + g.pix[y*g.w+x+1] - 4*c
			responses = append(responses, lap)
			sum += lap
		}
	}

	m := sum / float64(n)
	var varSum float64
	for _, v := range responses {
		d := v - m
		varSum += d * d
	}
	return varSum / float64(n)
}
