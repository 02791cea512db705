// Package enroll holds the decision logic for face enrollment and
// verification: quality gating, embedding extraction, duplicate-face search
// and threshold-based accept/reject decisions.
package enroll

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/match"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/observability"
	"github.com/your-org/facecheck/internal/quality"
	"github.com/your-org/facecheck/internal/queue"
	"github.com/your-org/facecheck/internal/storage"
	"github.com/your-org/facecheck/internal/vision"
)

// EnrollmentStore is the persistence surface the orchestrator needs.
// *storage.PostgresStore implements it.
type EnrollmentStore interface {
	FindByStudent(ctx context.Context, studentID string) (*models.Enrollment, error)
	ListActiveEmbeddings(ctx context.Context) ([]models.StoredEmbedding, error)
	ListVerificationCandidates(ctx context.Context, studentID, modelName string) ([][]float32, error)
	InsertSet(ctx context.Context, records []*models.Enrollment) error
	Delete(ctx context.Context, studentID string) (photoKeys []string, found bool, err error)
	ListSummaries(ctx context.Context) ([]models.Enrollment, error)
}

// PhotoStore is the blob store for uploaded photos. *storage.PhotoStore
// implements it.
type PhotoStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	DeleteAll(ctx context.Context, keys []string) error
}

// Extractor produces a face embedding from image bytes. *vision.Extractor
// implements it.
type Extractor interface {
	Supports(modelName string) bool
	Extract(imageData []byte, modelName string) (*vision.Result, error)
}

// Publisher emits audit events. *queue.Producer implements it; may be nil.
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// Photo is one uploaded image.
type Photo struct {
	Data        []byte
	ContentType string
	Angle       string
}

// AngleResult reports the per-photo metrics of a multi-photo enrollment.
type AngleResult struct {
	Angle          string  `json:"angle"`
	FaceConfidence float64 `json:"face_confidence"`
	QualityScore   float64 `json:"quality_score"`
}

// EnrollResult is a successful enrollment.
type EnrollResult struct {
	EnrollmentIDs  []uuid.UUID
	StudentID      string
	FaceConfidence float64 // averaged for multi-photo
	QualityScore   float64 // averaged for multi-photo
	ModelName      string
	EmbeddingSize  int
	Angles         []AngleResult // empty for single-photo
}

// VerifyResult is the outcome of a verification, terminal for both the
// verified and not-verified cases. Confidence is the maximum similarity
// across same-model candidates regardless of outcome.
type VerifyResult struct {
	StudentID  string
	Verified   bool
	Confidence float64
	Threshold  float64
	ModelName  string
}

// Service sequences quality check, extraction, duplicate-face search and
// persistence. It is stateless per request; the extractor's models are
// loaded once at startup and shared.
type Service struct {
	store     EnrollmentStore
	photos    PhotoStore
	extractor Extractor
	producer  Publisher
	cfg       config.RecognitionConfig
}

func NewService(store EnrollmentStore, photos PhotoStore, extractor Extractor, producer Publisher, cfg config.RecognitionConfig) *Service {
	return &Service{
		store:     store,
		photos:    photos,
		extractor: extractor,
		producer:  producer,
		cfg:       cfg,
	}
}

func (s *Service) validate(photo Photo, modelName string) error {
	if !s.extractor.Supports(modelName) {
		return fmt.Errorf("%w: %s", ErrUnsupportedModel, modelName)
	}
	if !strings.HasPrefix(photo.ContentType, "image/") {
		if photo.Angle != "" {
			return fmt.Errorf("%w: %s photo", ErrNotImage, photo.Angle)
		}
		return ErrNotImage
	}
	return nil
}

// photoKey builds a collision-resistant object key: identity + angle +
// timestamp + content-hash prefix, so concurrent uploads never overwrite
// each other.
func photoKey(prefix, studentID, angle, hash string) string {
	ts := time.Now().Format("20060102_150405")
	if angle != "" {
		return fmt.Sprintf("%s/%s_%s_%s_%s.jpg", prefix, studentID, angle, ts, hash[:8])
	}
	return fmt.Sprintf("%s/%s_%s_%s.jpg", prefix, studentID, ts, hash[:8])
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Enroll runs the single-photo enrollment flow. Terminal failures are typed:
// QualityError, ExtractionError, ConflictError, DuplicateFaceError, or the
// sentinels in errors.go. Any failure after the photo is saved removes it.
func (s *Service) Enroll(ctx context.Context, studentID string, photo Photo, modelName string) (*EnrollResult, error) {
	if err := s.validate(photo, modelName); err != nil {
		observability.EnrollmentsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	hash := contentHash(photo.Data)
	key := photoKey("photos", studentID, "", hash)
	if err := s.photos.Put(ctx, key, photo.Data, photo.ContentType); err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}

	record, err := s.processPhoto(ctx, photo, key, hash, modelName, s.cfg.QualityThreshold)
	if err != nil {
		s.cleanup(ctx, key)
		observability.EnrollmentsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	record.StudentID = studentID

	if err := s.rejectExisting(ctx, studentID); err != nil {
		s.cleanup(ctx, key)
		observability.EnrollmentsTotal.WithLabelValues(enrollFailureResult(err)).Inc()
		return nil, err
	}

	if err := s.rejectDuplicateFace(ctx, record.Embedding, modelName, ""); err != nil {
		s.cleanup(ctx, key)
		observability.EnrollmentsTotal.WithLabelValues("duplicate").Inc()
		return nil, err
	}

	if err := s.store.InsertSet(ctx, []*models.Enrollment{record}); err != nil {
		s.cleanup(ctx, key)
		return nil, s.mapInsertErr(ctx, studentID, err)
	}

	observability.EnrollmentsTotal.WithLabelValues("enrolled").Inc()
	slog.Info("enrolled student", "student_id", studentID, "model", modelName,
		"quality", record.QualityScore, "confidence", record.FaceConfidence)

	s.publish(ctx, queue.SubjectEnrolled, map[string]interface{}{
		"student_id": studentID,
		"model_name": modelName,
		"angles":     []string{models.AngleFront},
	})

	return &EnrollResult{
		EnrollmentIDs:  []uuid.UUID{record.ID},
		StudentID:      studentID,
		FaceConfidence: record.FaceConfidence,
		QualityScore:   record.QualityScore,
		ModelName:      modelName,
		EmbeddingSize:  len(record.Embedding),
	}, nil
}

// EnrollMulti runs the three-angle enrollment flow. Any per-photo failure
// removes every photo saved so far; the database write happens only after
// all three photos pass their own checks.
func (s *Service) EnrollMulti(ctx context.Context, studentID string, photos []Photo, modelName string) (*EnrollResult, error) {
	for _, p := range photos {
		if err := s.validate(p, modelName); err != nil {
			observability.EnrollmentsTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}
	}

	if err := s.rejectExisting(ctx, studentID); err != nil {
		observability.EnrollmentsTotal.WithLabelValues(enrollFailureResult(err)).Inc()
		return nil, err
	}

	var savedKeys []string
	fail := func(result string, err error) (*EnrollResult, error) {
		s.cleanup(ctx, savedKeys...)
		observability.EnrollmentsTotal.WithLabelValues(result).Inc()
		return nil, err
	}

	records := make([]*models.Enrollment, 0, len(photos))
	for _, p := range photos {
		hash := contentHash(p.Data)
		key := photoKey("photos", studentID, p.Angle, hash)
		if err := s.photos.Put(ctx, key, p.Data, p.ContentType); err != nil {
			return fail("error", fmt.Errorf("store %s photo: %w", p.Angle, err))
		}
		savedKeys = append(savedKeys, key)

		record, err := s.processPhoto(ctx, p, key, hash, modelName, s.cfg.MultiQualityThreshold)
		if err != nil {
			return fail("rejected", err)
		}
		record.StudentID = studentID
		records = append(records, record)
	}

	// First cross-identity match in embedding-acquisition order aborts the
	// whole enrollment.
	for _, r := range records {
		if err := s.rejectDuplicateFace(ctx, r.Embedding, modelName, r.Angle); err != nil {
			return fail("duplicate", err)
		}
	}

	if err := s.store.InsertSet(ctx, records); err != nil {
		s.cleanup(ctx, savedKeys...)
		return nil, s.mapInsertErr(ctx, studentID, err)
	}

	result := &EnrollResult{
		StudentID:     studentID,
		ModelName:     modelName,
		EmbeddingSize: len(records[0].Embedding),
	}
	var angles []string
	for _, r := range records {
		result.EnrollmentIDs = append(result.EnrollmentIDs, r.ID)
		result.FaceConfidence += r.FaceConfidence
		result.QualityScore += r.QualityScore
		result.Angles = append(result.Angles, AngleResult{
			Angle:          r.Angle,
			FaceConfidence: r.FaceConfidence,
			QualityScore:   r.QualityScore,
		})
		angles = append(angles, r.Angle)
	}
	result.FaceConfidence /= float64(len(records))
	result.QualityScore /= float64(len(records))

	observability.EnrollmentsTotal.WithLabelValues("enrolled").Inc()
	slog.Info("enrolled student (multi)", "student_id", studentID, "model", modelName,
		"photos", len(records), "avg_quality", result.QualityScore)

	s.publish(ctx, queue.SubjectEnrolled, map[string]interface{}{
		"student_id": studentID,
		"model_name": modelName,
		"angles":     angles,
	})

	return result, nil
}

// processPhoto runs the quality gate and embedding extraction for one saved
// photo and builds its enrollment record. The caller owns cleanup of the key.
func (s *Service) processPhoto(ctx context.Context, photo Photo, key, hash, modelName string, qualityThreshold float64) (*models.Enrollment, error) {
	assessment := quality.AssessBytes(photo.Data)
	observability.PhotoQualityScore.Observe(assessment.Score)
	if assessment.Score < qualityThreshold {
		return nil, &QualityError{Angle: photo.Angle, Assessment: assessment, Threshold: qualityThreshold}
	}

	res, err := s.extractor.Extract(photo.Data, modelName)
	if err != nil {
		return nil, &ExtractionError{Angle: photo.Angle, Assessment: assessment, Err: err}
	}

	return &models.Enrollment{
		PhotoKey:        key,
		PhotoHash:       hash,
		Embedding:       res.Embedding,
		FaceConfidence:  res.FaceConfidence,
		QualityScore:    assessment.Score,
		ModelName:       res.ModelName,
		DetectorBackend: res.DetectorBackend,
		Angle:           photo.Angle,
	}, nil
}

// enrollFailureResult labels a rejectExisting failure for the enrollments
// counter: an actual conflict counts as "conflict", a store outage as
// "error".
func enrollFailureResult(err error) string {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return "conflict"
	}
	return "error"
}

// rejectExisting refuses re-enrollment for an identity that already has a
// record, naming the original enrollment date.
func (s *Service) rejectExisting(ctx context.Context, studentID string) error {
	existing, err := s.store.FindByStudent(ctx, studentID)
	if err != nil {
		return fmt.Errorf("check existing enrollment: %w", err)
	}
	if existing != nil {
		return &ConflictError{StudentID: studentID, EnrolledAt: existing.CreatedAt}
	}
	return nil
}

// rejectDuplicateFace compares the new embedding pairwise against every
// active enrollment from the same model. A similarity at or above the
// duplicate threshold (boundary inclusive) rejects the enrollment, naming
// the identity the face already belongs to.
func (s *Service) rejectDuplicateFace(ctx context.Context, embedding []float32, modelName, angle string) error {
	stored, err := s.store.ListActiveEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("list active embeddings: %w", err)
	}

	for _, se := range stored {
		if se.ModelName != modelName {
			continue
		}
		sim := match.Cosine(embedding, se.Embedding)
		if sim >= s.cfg.DuplicateThreshold {
			observability.DuplicateRejections.Inc()
			return &DuplicateFaceError{
				StudentID:  se.StudentID,
				Similarity: sim,
				Threshold:  s.cfg.DuplicateThreshold,
				Angle:      angle,
			}
		}
	}
	return nil
}

// Verify checks a live photo against the claimed identity's stored
// embeddings. The temporary photo is removed on every exit path.
func (s *Service) Verify(ctx context.Context, studentID string, photo Photo, modelName string) (*VerifyResult, error) {
	if err := s.validate(photo, modelName); err != nil {
		observability.VerificationsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	hash := contentHash(photo.Data)
	key := photoKey("verify", studentID, "", hash)
	if err := s.photos.Put(ctx, key, photo.Data, photo.ContentType); err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}
	defer s.cleanup(ctx, key)

	res, err := s.extractor.Extract(photo.Data, modelName)
	if err != nil {
		observability.VerificationsTotal.WithLabelValues("rejected").Inc()
		return nil, &ExtractionError{Err: err}
	}

	candidates, err := s.store.ListVerificationCandidates(ctx, studentID, modelName)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	if len(candidates) == 0 {
		observability.VerificationsTotal.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w for student %s", ErrNotEnrolled, studentID)
	}

	_, best := match.BestMatch(res.Embedding, candidates)
	if best < 0 {
		best = 0
	}

	verified := best >= s.cfg.VerifyThreshold
	if verified {
		observability.VerificationsTotal.WithLabelValues("verified").Inc()
	} else {
		observability.VerificationsTotal.WithLabelValues("not_verified").Inc()
	}

	slog.Info("verification decision", "student_id", studentID,
		"verified", verified, "confidence", best, "model", modelName)

	s.publish(ctx, queue.SubjectVerified, models.AttendanceEvent{
		StudentID:  studentID,
		Verified:   verified,
		Confidence: best,
		Threshold:  s.cfg.VerifyThreshold,
		ModelName:  modelName,
		OccurredAt: time.Now(),
	})

	return &VerifyResult{
		StudentID:  studentID,
		Verified:   verified,
		Confidence: best,
		Threshold:  s.cfg.VerifyThreshold,
		ModelName:  modelName,
	}, nil
}

// Delete removes an identity's enrollment rows and their backing photos.
func (s *Service) Delete(ctx context.Context, studentID string) error {
	keys, found, err := s.store.Delete(ctx, studentID)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if !found {
		return fmt.Errorf("%w for student %s", ErrNotEnrolled, studentID)
	}

	if err := s.photos.DeleteAll(ctx, keys); err != nil {
		// The database rows are gone; orphaned photos are only a storage
		// leak, not a correctness problem.
		slog.Warn("delete enrollment photos", "student_id", studentID, "error", err)
	}

	slog.Info("deleted enrollment", "student_id", studentID, "photos", len(keys))

	s.publish(ctx, queue.SubjectDeleted, map[string]interface{}{
		"student_id": studentID,
	})
	return nil
}

// List returns enrollment summaries without embeddings.
func (s *Service) List(ctx context.Context) ([]models.Enrollment, error) {
	return s.store.ListSummaries(ctx)
}

// Photo returns the stored enrollment photo for a student (the front photo
// for multi-angle enrollments).
func (s *Service) Photo(ctx context.Context, studentID string) ([]byte, error) {
	enrollment, err := s.store.FindByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	if enrollment == nil {
		return nil, fmt.Errorf("%w for student %s", ErrNotEnrolled, studentID)
	}
	return s.photos.Get(ctx, enrollment.PhotoKey)
}

func (s *Service) mapInsertErr(ctx context.Context, studentID string, err error) error {
	if errors.Is(err, storage.ErrStudentExists) {
		existing, ferr := s.store.FindByStudent(ctx, studentID)
		if ferr == nil && existing != nil {
			return &ConflictError{StudentID: studentID, EnrolledAt: existing.CreatedAt}
		}
		return &ConflictError{StudentID: studentID}
	}
	return fmt.Errorf("persist enrollment: %w", err)
}

func (s *Service) cleanup(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.photos.Delete(ctx, key); err != nil {
			slog.Warn("cleanup photo", "key", key, "error", err)
		}
	}
}

func (s *Service) publish(ctx context.Context, subject string, data interface{}) {
	if s.producer == nil {
		return
	}
	if err := s.producer.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish audit event", "subject", subject, "error", err)
	}
}
