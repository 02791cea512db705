package vision

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func solidImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestImageToFloat32CHWShape(t *testing.T) {
	img := solidImage(64, 48, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	data := imageToFloat32CHW(img, 112, 112, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
	if got, want := len(data), 3*112*112; got != want {
		t.Fatalf("tensor length = %d, want %d", got, want)
	}
}

func TestImageToFloat32CHWNormalization(t *testing.T) {
	// Mid-gray at the mean normalizes to ~0 on every channel.
	img := solidImage(10, 10, color.RGBA{R: 127, G: 127, B: 127, A: 255})

	data := preprocessForEmbedding(img, 10, 10)
	for i, v := range data {
		if math.Abs(float64(v)) > 0.01 {
			t.Fatalf("data[%d] = %v, want ~0", i, v)
		}
	}
}

func TestImageToFloat32CHWChannelLayout(t *testing.T) {
	// Pure red: R channel saturated high, G and B low.
	img := solidImage(8, 8, color.RGBA{R: 255, A: 255})

	data := preprocessForDetection(img, 8, 8)
	plane := 8 * 8

	if data[0] <= 0 {
		t.Errorf("R plane value = %v, want > 0", data[0])
	}
	if data[plane] >= 0 {
		t.Errorf("G plane value = %v, want < 0", data[plane])
	}
	if data[2*plane] >= 0 {
		t.Errorf("B plane value = %v, want < 0", data[2*plane])
	}
}

func TestResizeImage(t *testing.T) {
	img := solidImage(100, 50, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	resized := resizeImage(img, 20, 30)
	bounds := resized.Bounds()
	if bounds.Dx() != 20 || bounds.Dy() != 30 {
		t.Fatalf("resized to %dx%d, want 20x30", bounds.Dx(), bounds.Dy())
	}

	r, g, b, _ := resized.At(10, 15).RGBA()
	if r>>8 != 200 || g>>8 != 100 || b>>8 != 50 {
		t.Errorf("resized pixel = (%d, %d, %d), want (200, 100, 50)", r>>8, g>>8, b>>8)
	}
}

func TestCropFacePadsAndClamps(t *testing.T) {
	img := solidImage(100, 100, color.RGBA{R: 128, G: 128, B: 128, A: 255})

	crop := cropFace(img, [4]float32{20, 20, 60, 60})
	if crop == nil {
		t.Fatal("crop = nil")
	}
	bounds := crop.Bounds()
	// 40px box padded by 10% on each side.
	if bounds.Dx() != 48 || bounds.Dy() != 48 {
		t.Errorf("crop size = %dx%d, want 48x48", bounds.Dx(), bounds.Dy())
	}

	// Box at the image edge cannot pad past the bounds.
	crop = cropFace(img, [4]float32{0, 0, 50, 50})
	bounds = crop.Bounds()
	if bounds.Dx() != 55 || bounds.Dy() != 55 {
		t.Errorf("edge crop size = %dx%d, want 55x55", bounds.Dx(), bounds.Dy())
	}
}

func TestCropFaceDegenerateBox(t *testing.T) {
	img := solidImage(100, 100, color.RGBA{A: 255})

	if crop := cropFace(img, [4]float32{60, 60, 40, 40}); crop != nil {
		t.Errorf("inverted box produced a crop of %v", crop.Bounds())
	}
	if crop := cropFace(img, [4]float32{200, 200, 300, 300}); crop != nil {
		t.Errorf("out-of-bounds box produced a crop of %v", crop.Bounds())
	}
}

func TestDetectionArea(t *testing.T) {
	d := Detection{BBox: [4]float32{10, 20, 50, 80}}
	if got, want := d.Area(), float32(40*60); got != want {
		t.Errorf("Area() = %v, want %v", got, want)
	}
}

func TestIOU(t *testing.T) {
	a := [4]float32{0, 0, 10, 10}

	if got := iou(a, a); math.Abs(float64(got-1.0)) > 1e-6 {
		t.Errorf("iou(a, a) = %v, want 1.0", got)
	}
	if got := iou(a, [4]float32{20, 20, 30, 30}); got != 0 {
		t.Errorf("iou disjoint = %v, want 0", got)
	}
	// Half-overlapping boxes: intersection 50, union 150.
	got := iou(a, [4]float32{5, 0, 15, 10})
	if math.Abs(float64(got)-50.0/150.0) > 1e-6 {
		t.Errorf("iou overlap = %v, want %v", got, 50.0/150.0)
	}
}

func TestLookupModel(t *testing.T) {
	spec, ok := LookupModel("arcface_r50")
	if !ok {
		t.Fatal("arcface_r50 not registered")
	}
	if spec.Dim != 512 {
		t.Errorf("dim = %d, want 512", spec.Dim)
	}

	if _, ok := LookupModel("no_such_model"); ok {
		t.Error("unknown model reported as registered")
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)

	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("normalize = %v, want [0.6 0.8]", v)
	}

	zero := []float32{0, 0}
	normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("normalize zero vector = %v, want unchanged", zero)
	}
}

func TestSupportedModels(t *testing.T) {
	names := SupportedModels()
	if len(names) == 0 {
		t.Fatal("no supported models")
	}
	found := false
	for _, n := range names {
		if n == "arcface_r50" {
			found = true
		}
	}
	if !found {
		t.Errorf("arcface_r50 missing from %v", names)
	}
}
