package models

import (
	"time"

	"github.com/google/uuid"
)

// Angle tags which pose a multi-photo enrollment sample was captured at.
// Single-photo enrollments use AngleFront.
const (
	AngleFront = "front"
	AngleLeft  = "left_profile"
	AngleRight = "right_profile"
)

// Enrollment is one stored face sample for an identity. A single-photo
// enrollment produces one row; a multi-photo enrollment produces one row per
// angle, all sharing the same student ID.
type Enrollment struct {
	ID              uuid.UUID `json:"id" db:"id"`
	StudentID       string    `json:"student_id" db:"student_id"`
	PhotoKey        string    `json:"photo_key" db:"photo_key"`
	PhotoHash       string    `json:"photo_hash" db:"photo_hash"`
	Embedding       []float32 `json:"-" db:"embedding"`
	FaceConfidence  float64   `json:"face_confidence" db:"face_confidence"`
	QualityScore    float64   `json:"quality_score" db:"photo_quality_score"`
	ModelName       string    `json:"model_name" db:"model_name"`
	DetectorBackend string    `json:"detector_backend" db:"detector_backend"`
	Angle           string    `json:"angle,omitempty" db:"photo_angle"`
	Active          bool      `json:"active" db:"active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// StoredEmbedding is the (identity, vector, model) tuple the duplicate-face
// search iterates over. Embeddings from different models are never compared.
type StoredEmbedding struct {
	StudentID string
	Embedding []float32
	ModelName string
}
