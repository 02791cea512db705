package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facecheck/internal/enroll"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/pkg/dto"
)

// FaceHandler exposes the enrollment/verification surface over HTTP. All
// decision logic lives in the enroll service; this layer only parses
// multipart forms and maps typed errors to status codes.
type FaceHandler struct {
	svc          *enroll.Service
	defaultModel string
}

func NewFaceHandler(svc *enroll.Service, defaultModel string) *FaceHandler {
	return &FaceHandler{svc: svc, defaultModel: defaultModel}
}

func (h *FaceHandler) model(c *gin.Context) string {
	if m := c.PostForm("model_name"); m != "" {
		return m
	}
	return h.defaultModel
}

func readPhoto(header *multipart.FileHeader, angle string) (enroll.Photo, error) {
	file, err := header.Open()
	if err != nil {
		return enroll.Photo{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return enroll.Photo{}, err
	}

	return enroll.Photo{
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
		Angle:       angle,
	}, nil
}

// Enroll handles POST /api/face/enroll.
func (h *FaceHandler) Enroll(c *gin.Context) {
	studentID := c.PostForm("student_id")
	if studentID == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "student_id required"})
		return
	}

	header, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "photo file required"})
		return
	}
	photo, err := readPhoto(header, "")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "read photo failed"})
		return
	}

	result, err := h.svc.Enroll(c.Request.Context(), studentID, photo, h.model(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.EnrollResponse{
		Success:           true,
		Message:           "Student " + studentID + " enrolled successfully",
		EnrollmentIDs:     result.EnrollmentIDs,
		StudentID:         result.StudentID,
		FaceConfidence:    result.FaceConfidence,
		PhotoQualityScore: result.QualityScore,
		ModelName:         result.ModelName,
		EmbeddingSize:     result.EmbeddingSize,
	})
}

// EnrollMulti handles POST /api/face/enroll-multi with three angle-tagged
// photos.
func (h *FaceHandler) EnrollMulti(c *gin.Context) {
	studentID := c.PostForm("student_id")
	if studentID == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "student_id required"})
		return
	}

	fields := []struct {
		field string
		angle string
	}{
		{"front_photo", models.AngleFront},
		{"left_profile_photo", models.AngleLeft},
		{"right_profile_photo", models.AngleRight},
	}

	photos := make([]enroll.Photo, 0, len(fields))
	for _, f := range fields {
		header, err := c.FormFile(f.field)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: f.field + " file required", Angle: f.angle})
			return
		}
		photo, err := readPhoto(header, f.angle)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "read " + f.field + " failed", Angle: f.angle})
			return
		}
		photos = append(photos, photo)
	}

	result, err := h.svc.EnrollMulti(c.Request.Context(), studentID, photos, h.model(c))
	if err != nil {
		writeError(c, err)
		return
	}

	angles := make([]string, 0, len(result.Angles))
	individual := make([]dto.AngleResult, 0, len(result.Angles))
	for _, a := range result.Angles {
		angles = append(angles, a.Angle)
		individual = append(individual, dto.AngleResult{
			Angle:          a.Angle,
			FaceConfidence: a.FaceConfidence,
			QualityScore:   a.QualityScore,
		})
	}

	c.JSON(http.StatusOK, dto.EnrollResponse{
		Success:           true,
		Message:           "Student " + studentID + " enrolled successfully with 3 photos",
		EnrollmentIDs:     result.EnrollmentIDs,
		StudentID:         result.StudentID,
		FaceConfidence:    result.FaceConfidence,
		PhotoQualityScore: result.QualityScore,
		ModelName:         result.ModelName,
		EmbeddingSize:     result.EmbeddingSize,
		PhotosProcessed:   len(result.Angles),
		AnglesEnrolled:    angles,
		IndividualResults: individual,
	})
}

// List handles GET /api/face/enrollments.
func (h *FaceHandler) List(c *gin.Context) {
	enrollments, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]dto.EnrollmentSummary, 0, len(enrollments))
	for _, e := range enrollments {
		resp = append(resp, dto.EnrollmentSummary{
			ID:                e.ID,
			StudentID:         e.StudentID,
			FaceConfidence:    e.FaceConfidence,
			PhotoQualityScore: e.QualityScore,
			ModelName:         e.ModelName,
			Active:            e.Active,
			EnrollmentDate:    e.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"enrollments": resp,
		"total_count": len(resp),
	})
}

// Photo handles GET /api/face/enroll/:id/photo and serves the stored
// enrollment photo.
func (h *FaceHandler) Photo(c *gin.Context) {
	data, err := h.svc.Photo(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

// Delete handles DELETE /api/face/enroll/:id.
func (h *FaceHandler) Delete(c *gin.Context) {
	studentID := c.Param("id")

	if err := h.svc.Delete(c.Request.Context(), studentID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Enrollment for student " + studentID + " deleted successfully",
	})
}

// Verify handles POST /api/face/verify.
func (h *FaceHandler) Verify(c *gin.Context) {
	studentID := c.PostForm("student_id")
	if studentID == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "student_id required"})
		return
	}

	header, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "photo file required"})
		return
	}
	photo, err := readPhoto(header, "")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "read photo failed"})
		return
	}

	result, err := h.svc.Verify(c.Request.Context(), studentID, photo, h.model(c))
	if err != nil {
		writeError(c, err)
		return
	}

	message := "Identity verification failed"
	if result.Verified {
		message = "Identity verified successfully"
	}

	c.JSON(http.StatusOK, dto.VerifyResponse{
		Verified:   result.Verified,
		Confidence: result.Confidence,
		Threshold:  result.Threshold,
		StudentID:  result.StudentID,
		ModelName:  result.ModelName,
		Message:    message,
	})
}

// writeError maps the enroll package's typed errors to HTTP responses.
// Unexpected failures return a generic 500 and are logged with full detail.
func writeError(c *gin.Context, err error) {
	var (
		qualityErr    *enroll.QualityError
		extractionErr *enroll.ExtractionError
		conflictErr   *enroll.ConflictError
		duplicateErr  *enroll.DuplicateFaceError
	)

	switch {
	case errors.Is(err, enroll.ErrUnsupportedModel), errors.Is(err, enroll.ErrNotImage):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})

	case errors.As(err, &qualityErr):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:             qualityErr.Error(),
			Angle:             qualityErr.Angle,
			QualityAssessment: &qualityErr.Assessment,
		})

	case errors.As(err, &extractionErr):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:             extractionErr.Error(),
			Angle:             extractionErr.Angle,
			QualityAssessment: &extractionErr.Assessment,
		})

	case errors.As(err, &conflictErr):
		resp := dto.ErrorResponse{
			Error:     conflictErr.Error(),
			ErrorCode: "ALREADY_ENROLLED",
			StudentID: conflictErr.StudentID,
		}
		if !conflictErr.EnrolledAt.IsZero() {
			resp.ExistingEnrollment = conflictErr.EnrolledAt.Format(time.RFC3339)
		}
		c.JSON(http.StatusConflict, resp)

	case errors.As(err, &duplicateErr):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:              duplicateErr.Error(),
			DuplicateStudentID: duplicateErr.StudentID,
			SimilarityScore:    duplicateErr.Similarity,
			ThresholdUsed:      duplicateErr.Threshold,
			Angle:              duplicateErr.Angle,
		})

	case errors.Is(err, enroll.ErrNotEnrolled):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})

	default:
		slog.Error("request failed", "error", err, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
	}
}
