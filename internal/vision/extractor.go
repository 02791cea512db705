package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/observability"
)

// faceCropReference is the expected face-crop area the detection confidence
// is normalized against.
const faceCropReference = 224 * 224

// ErrNoFace is wrapped into every detection failure so callers can
// distinguish "no usable face" from infrastructure errors.
var ErrNoFace = errors.New("no face detected")

// Result is a successful embedding extraction.
type Result struct {
	Embedding       []float32
	FaceConfidence  float64
	ModelName       string
	DetectorBackend string
	EmbeddingSize   int
}

// Extractor wraps the detector and the registered embedding models behind
// the two-stage strict/relaxed protocol: strict detection first, relaxed
// best-effort retry on failure, largest-face selection, and a relaxed
// full-frame fallback for embedding extraction. The fallback trades
// detection precision for enrollment success rate.
type Extractor struct {
	mu        sync.Mutex
	detector  *Detector
	embedders map[string]*Embedder

	strictThreshold  float32
	relaxedThreshold float32
	// minFaceConfidence is looser than the strict detection cutoff to reduce
	// false rejections of small but usable faces.
	minFaceConfidence float64
}

// NewExtractor loads the detector and every registered embedding model from
// cfg.ModelsDir. Models are loaded once and shared across requests; Extract
// serializes session runs internally.
func NewExtractor(cfg config.VisionConfig, minFaceConfidence float64) (*Extractor, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	embedders := make(map[string]*Embedder, len(registry))
	for name, spec := range registry {
		path := filepath.Join(cfg.ModelsDir, spec.File)
		slog.Info("loading embedding model", "model", name, "path", path)
		emb, err := NewEmbedder(path, spec)
		if err != nil {
			det.Close()
			for _, e := range embedders {
				e.Close()
			}
			return nil, fmt.Errorf("load embedder %s: %w", name, err)
		}
		embedders[name] = emb
	}

	return &Extractor{
		detector:          det,
		embedders:         embedders,
		strictThreshold:   float32(cfg.DetectionThreshold),
		relaxedThreshold:  float32(cfg.RelaxedThreshold),
		minFaceConfidence: minFaceConfidence,
	}, nil
}

// Supports reports whether modelName is a registered embedding model.
func (e *Extractor) Supports(modelName string) bool {
	_, ok := e.embedders[modelName]
	return ok
}

// Extract produces an embedding and detection confidence for the single most
// prominent face in imageData.
func (e *Extractor) Extract(imageData []byte, modelName string) (*Result, error) {
	embedder, ok := e.embedders[modelName]
	if !ok {
		return nil, fmt.Errorf("unsupported model: %s", modelName)
	}

	img, err := decodeImage(imageData)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	detInput := preprocessForDetection(img, e.detector.inputW, e.detector.inputH)
	face, err := e.detectFace(detInput, origW, origH)
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	// Confidence is an area-ratio heuristic against the expected crop size.
	confidence := float64(face.Area()) / faceCropReference
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < e.minFaceConfidence {
		return nil, fmt.Errorf("%w: face too small or unclear (confidence %.3f); use a larger, clearer image where the face occupies more of the frame",
			ErrNoFace, confidence)
	}

	start = time.Now()
	embedding, err := e.embedFace(embedder, img, face)
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	return &Result{
		Embedding:       embedding,
		FaceConfidence:  confidence,
		ModelName:       modelName,
		DetectorBackend: DetectorBackend,
		EmbeddingSize:   len(embedding),
	}, nil
}

// detectFace runs strict detection, falls back to relaxed detection, and
// picks the largest face when several are found.
func (e *Extractor) detectFace(detInput []float32, origW, origH int) (Detection, error) {
	detections, err := e.detector.Detect(detInput, origW, origH, e.strictThreshold)
	if err != nil {
		return Detection{}, fmt.Errorf("detect: %w", err)
	}

	if len(detections) == 0 {
		slog.Warn("strict face detection found nothing, retrying relaxed")
		detections, err = e.detector.Detect(detInput, origW, origH, e.relaxedThreshold)
		if err != nil {
			return Detection{}, fmt.Errorf("relaxed detect: %w", err)
		}
	}

	if len(detections) == 0 {
		return Detection{}, fmt.Errorf("%w: please ensure 1) the image contains a clear face, 2) the face is well-lit, 3) the face is not too small, 4) the image is at least 400x400 pixels",
			ErrNoFace)
	}

	largest := detections[0]
	for _, d := range detections[1:] {
		if d.Area() > largest.Area() {
			largest = d
		}
	}
	return largest, nil
}

// embedFace embeds the detected face crop; if the crop is unusable it retries
// on the full frame rather than giving up.
func (e *Extractor) embedFace(embedder *Embedder, img image.Image, face Detection) ([]float32, error) {
	inputW, inputH := embedder.InputSize()

	crop := cropFace(img, face.BBox)
	if crop != nil {
		embedding, err := embedder.Extract(preprocessForEmbedding(crop, inputW, inputH))
		if err == nil {
			return embedding, nil
		}
		slog.Warn("strict embedding extraction failed, retrying on full frame", "error", err)
	}

	embedding, err := embedder.Extract(preprocessForEmbedding(img, inputW, inputH))
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return embedding, nil
}

// Close releases all ONNX sessions.
func (e *Extractor) Close() {
	if e.detector != nil {
		e.detector.Close()
	}
	for _, emb := range e.embedders {
		emb.Close()
	}
}

func decodeImage(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}
	img, _, err = image.Decode(bytes.NewReader(data))
	return img, err
}
