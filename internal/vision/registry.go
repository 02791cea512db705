package vision

import "sort"

// DetectorBackend names the face detector used for all enrollments.
const DetectorBackend = "retinaface"

// ModelSpec describes one supported embedding model: the ONNX file to load
// and the session geometry. Embeddings from different models are never
// compared, so the spec also pins the vector dimension.
type ModelSpec struct {
	File       string
	Dim        int
	InputW     int
	InputH     int
	InputName  string
	OutputName string
}

// registry is the fixed set of supported embedding models. Requests naming
// anything else are rejected before any file is touched.
var registry = map[string]ModelSpec{
	"arcface_r50": {
		File:       "w600k_r50.onnx",
		Dim:        512,
		InputW:     112,
		InputH:     112,
		InputName:  "input.1",
		OutputName: "683",
	},
	"arcface_mbf": {
		File:       "w600k_mbf.onnx",
		Dim:        512,
		InputW:     112,
		InputH:     112,
		InputName:  "input.1",
		OutputName: "516",
	},
}

// SupportedModels returns the registered model names, sorted.
func SupportedModels() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupModel returns the spec for a model name.
func LookupModel(name string) (ModelSpec, bool) {
	spec, ok := registry[name]
	return spec, ok
}
