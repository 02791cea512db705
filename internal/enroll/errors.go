package enroll

import (
	"errors"
	"fmt"
	"time"

	"github.com/your-org/facecheck/internal/quality"
)

// Sentinel errors mapped to HTTP statuses at the handler boundary.
var (
	ErrUnsupportedModel = errors.New("unsupported model")
	ErrNotImage         = errors.New("file must be an image")
	ErrNotEnrolled      = errors.New("no enrollment found")
)

// QualityError rejects a photo whose quality score fell below the enrollment
// threshold. Angle is empty for single-photo enrollment.
type QualityError struct {
	Angle      string
	Assessment quality.Assessment
	Threshold  float64
}

func (e *QualityError) Error() string {
	if e.Angle != "" {
		return fmt.Sprintf("%s photo quality too low for enrollment (%.3f < %.3f)",
			e.Angle, e.Assessment.Score, e.Threshold)
	}
	return fmt.Sprintf("photo quality too low for enrollment (%.3f < %.3f)",
		e.Assessment.Score, e.Threshold)
}

// ExtractionError rejects a photo the face model could not produce an
// embedding for. It carries the quality assessment already computed so the
// response can include the diagnostic breakdown.
type ExtractionError struct {
	Angle      string
	Assessment quality.Assessment
	Err        error
}

func (e *ExtractionError) Error() string {
	if e.Angle != "" {
		return fmt.Sprintf("failed to extract face from %s photo: %v", e.Angle, e.Err)
	}
	return e.Err.Error()
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ConflictError rejects a second enrollment for an identity that already has
// one. Existing enrollments are never silently overwritten.
type ConflictError struct {
	StudentID  string
	EnrolledAt time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("student %s is already enrolled (enrolled on %s); delete the existing enrollment first, or contact an administrator",
		e.StudentID, e.EnrolledAt.Format(time.RFC3339))
}

// DuplicateFaceError rejects an enrollment whose face matched another
// identity's stored embedding at or above the duplicate threshold. One
// physical face can only be enrolled once.
type DuplicateFaceError struct {
	StudentID  string // the identity the face already belongs to
	Similarity float64
	Threshold  float64
	Angle      string
}

func (e *DuplicateFaceError) Error() string {
	if e.Angle != "" {
		return fmt.Sprintf("face from %s photo is already enrolled for student %s (similarity %.3f)",
			e.Angle, e.StudentID, e.Similarity)
	}
	return fmt.Sprintf("this face is already enrolled for student %s (similarity %.3f); each face can only be enrolled once",
		e.StudentID, e.Similarity)
}
