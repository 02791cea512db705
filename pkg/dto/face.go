package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/facecheck/internal/quality"
)

// EnrollResponse is returned on successful single- or multi-photo enrollment.
type EnrollResponse struct {
	Success           bool          `json:"success"`
	Message           string        `json:"message"`
	EnrollmentIDs     []uuid.UUID   `json:"enrollment_ids"`
	StudentID         string        `json:"student_id"`
	FaceConfidence    float64       `json:"face_confidence"`
	PhotoQualityScore float64       `json:"photo_quality_score"`
	ModelName         string        `json:"model_name"`
	EmbeddingSize     int           `json:"embedding_size"`
	PhotosProcessed   int           `json:"photos_processed,omitempty"`
	AnglesEnrolled    []string      `json:"angles_enrolled,omitempty"`
	IndividualResults []AngleResult `json:"individual_results,omitempty"`
}

type AngleResult struct {
	Angle          string  `json:"angle"`
	FaceConfidence float64 `json:"face_confidence"`
	QualityScore   float64 `json:"quality_score"`
}

// ErrorResponse is the common rejection payload. Optional fields are only
// set for the failure kind that produced them.
type ErrorResponse struct {
	Success            bool                `json:"success"`
	Error              string              `json:"error"`
	ErrorCode          string              `json:"error_code,omitempty"`
	Angle              string              `json:"angle,omitempty"`
	QualityAssessment  *quality.Assessment `json:"quality_assessment,omitempty"`
	StudentID          string              `json:"student_id,omitempty"`
	ExistingEnrollment string              `json:"existing_enrollment_date,omitempty"`
	DuplicateStudentID string              `json:"duplicate_student_id,omitempty"`
	SimilarityScore    float64             `json:"similarity_score,omitempty"`
	ThresholdUsed      float64             `json:"threshold_used,omitempty"`
}

// VerifyResponse reports the verification decision. Confidence is the
// maximum similarity found regardless of outcome.
type VerifyResponse struct {
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`
	Threshold  float64 `json:"threshold"`
	StudentID  string  `json:"student_id"`
	ModelName  string  `json:"model_name"`
	Message    string  `json:"message"`
}

// EnrollmentSummary lists a stored enrollment without its embedding.
type EnrollmentSummary struct {
	ID                uuid.UUID `json:"id"`
	StudentID         string    `json:"student_id"`
	FaceConfidence    float64   `json:"face_confidence"`
	PhotoQualityScore float64   `json:"photo_quality_score"`
	ModelName         string    `json:"model_name"`
	Active            bool      `json:"is_active"`
	EnrollmentDate    string    `json:"enrollment_date"`
}
