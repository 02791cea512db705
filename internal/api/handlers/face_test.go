package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/enroll"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/vision"
)

type memStore struct {
	rows []*models.Enrollment
}

func (m *memStore) FindByStudent(_ context.Context, studentID string) (*models.Enrollment, error) {
	for _, r := range m.rows {
		if r.StudentID == studentID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListActiveEmbeddings(_ context.Context) ([]models.StoredEmbedding, error) {
	var out []models.StoredEmbedding
	for _, r := range m.rows {
		out = append(out, models.StoredEmbedding{StudentID: r.StudentID, Embedding: r.Embedding, ModelName: r.ModelName})
	}
	return out, nil
}

func (m *memStore) ListVerificationCandidates(_ context.Context, studentID, modelName string) ([][]float32, error) {
	var out [][]float32
	for _, r := range m.rows {
		if r.StudentID == studentID && r.ModelName == modelName {
			out = append(out, r.Embedding)
		}
	}
	return out, nil
}

func (m *memStore) InsertSet(_ context.Context, records []*models.Enrollment) error {
	for _, r := range records {
		r.ID = uuid.New()
		r.Active = true
		r.CreatedAt = time.Now()
		cp := *r
		m.rows = append(m.rows, &cp)
	}
	return nil
}

func (m *memStore) Delete(_ context.Context, studentID string) ([]string, bool, error) {
	var keys []string
	var kept []*models.Enrollment
	for _, r := range m.rows {
		if r.StudentID == studentID {
			keys = append(keys, r.PhotoKey)
		} else {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return keys, len(keys) > 0, nil
}

func (m *memStore) ListSummaries(_ context.Context) ([]models.Enrollment, error) {
	out := make([]models.Enrollment, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, *r)
	}
	return out, nil
}

type memPhotos struct{}

func (memPhotos) Put(context.Context, string, []byte, string) error { return nil }

func (memPhotos) Get(context.Context, string) ([]byte, error) { return []byte{0xff, 0xd8}, nil }

func (memPhotos) Delete(context.Context, string) error { return nil }

func (memPhotos) DeleteAll(context.Context, []string) error { return nil }

var _ enroll.PhotoStore = memPhotos{}

type stubExtractor struct {
	embeddings [][]float32
	calls      int
}

func (s *stubExtractor) Supports(modelName string) bool { return modelName == "arcface_r50" }

func (s *stubExtractor) Extract(_ []byte, modelName string) (*vision.Result, error) {
	idx := s.calls
	if idx >= len(s.embeddings) {
		idx = len(s.embeddings) - 1
	}
	s.calls++
	emb := s.embeddings[idx]
	return &vision.Result{
		Embedding:       emb,
		FaceConfidence:  0.9,
		ModelName:       modelName,
		DetectorBackend: "retinaface",
		EmbeddingSize:   len(emb),
	}, nil
}

func testRouter(embeddings ...[]float32) *gin.Engine {
	gin.SetMode(gin.TestMode)

	svc := enroll.NewService(&memStore{}, memPhotos{}, &stubExtractor{embeddings: embeddings}, nil,
		config.RecognitionConfig{
			DuplicateThreshold:    0.92,
			VerifyThreshold:       0.6,
			MinFaceConfidence:     0.3,
			QualityThreshold:      0.5,
			MultiQualityThreshold: 0.4,
		})

	h := NewFaceHandler(svc, "arcface_r50")

	r := gin.New()
	face := r.Group("/api/face")
	face.POST("/enroll", h.Enroll)
	face.POST("/enroll-multi", h.EnrollMulti)
	face.GET("/enrollments", h.List)
	face.DELETE("/enroll/:id", h.Delete)
	face.POST("/verify", h.Verify)
	return r
}

func testImagePNG(t *testing.T, variant uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			v := 78 + variant
			if (x+y)%2 == 0 {
				v = 178 + variant
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

// multipartBody builds a form with string fields and image/png file parts.
func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for name, data := range files {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="photo.png"`, name))
		hdr.Set("Content-Type", "image/png")
		part, err := w.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func doEnroll(t *testing.T, r *gin.Engine, studentID string, photo []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t,
		map[string]string{"student_id": studentID},
		map[string][]byte{"photo": photo})

	req := httptest.NewRequest(http.MethodPost, "/api/face/enroll", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestEnrollEndpoint(t *testing.T) {
	r := testRouter([]float32{1, 0, 0})

	rec := doEnroll(t, r, "S1", testImagePNG(t, 0))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	resp := decode(t, rec)
	if resp["success"] != true {
		t.Errorf("success = %v, want true", resp["success"])
	}
	if resp["student_id"] != "S1" {
		t.Errorf("student_id = %v, want S1", resp["student_id"])
	}
	if resp["embedding_size"] != float64(3) {
		t.Errorf("embedding_size = %v, want 3", resp["embedding_size"])
	}
}

func TestEnrollEndpointMissingStudentID(t *testing.T) {
	r := testRouter([]float32{1, 0, 0})

	body, contentType := multipartBody(t, nil, map[string][]byte{"photo": testImagePNG(t, 0)})
	req := httptest.NewRequest(http.MethodPost, "/api/face/enroll", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestEnrollEndpointConflict(t *testing.T) {
	r := testRouter([]float32{1, 0, 0}, []float32{0, 1, 0})

	if rec := doEnroll(t, r, "S1", testImagePNG(t, 0)); rec.Code != http.StatusOK {
		t.Fatalf("first enroll status = %d", rec.Code)
	}

	rec := doEnroll(t, r, "S1", testImagePNG(t, 5))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	if resp["error_code"] != "ALREADY_ENROLLED" {
		t.Errorf("error_code = %v, want ALREADY_ENROLLED", resp["error_code"])
	}
	if resp["existing_enrollment_date"] == nil {
		t.Error("existing_enrollment_date missing")
	}
}

func TestEnrollEndpointDuplicateFace(t *testing.T) {
	r := testRouter([]float32{1, 0, 0}, []float32{0.99, 0.141, 0})

	if rec := doEnroll(t, r, "S1", testImagePNG(t, 0)); rec.Code != http.StatusOK {
		t.Fatalf("first enroll status = %d", rec.Code)
	}

	rec := doEnroll(t, r, "S2", testImagePNG(t, 5))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	if resp["duplicate_student_id"] != "S1" {
		t.Errorf("duplicate_student_id = %v, want S1", resp["duplicate_student_id"])
	}
	if resp["similarity_score"] == nil {
		t.Error("similarity_score missing")
	}
}

func TestEnrollEndpointLowQuality(t *testing.T) {
	r := testRouter([]float32{1, 0, 0})

	rec := doEnroll(t, r, "S1", []byte("not a real image"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decode(t, rec)
	if resp["quality_assessment"] == nil {
		t.Error("quality_assessment missing from rejection")
	}
}

func TestVerifyEndpoint(t *testing.T) {
	r := testRouter([]float32{1, 0, 0}, []float32{0.8, 0.6, 0})

	if rec := doEnroll(t, r, "S1", testImagePNG(t, 0)); rec.Code != http.StatusOK {
		t.Fatalf("enroll status = %d", rec.Code)
	}

	body, contentType := multipartBody(t,
		map[string]string{"student_id": "S1"},
		map[string][]byte{"photo": testImagePNG(t, 5)})
	req := httptest.NewRequest(http.MethodPost, "/api/face/verify", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	if resp["verified"] != true {
		t.Errorf("verified = %v, want true", resp["verified"])
	}
	if resp["threshold"] != 0.6 {
		t.Errorf("threshold = %v, want 0.6", resp["threshold"])
	}
}

func TestVerifyEndpointUnknownStudent(t *testing.T) {
	r := testRouter([]float32{1, 0, 0})

	body, contentType := multipartBody(t,
		map[string]string{"student_id": "ghost"},
		map[string][]byte{"photo": testImagePNG(t, 0)})
	req := httptest.NewRequest(http.MethodPost, "/api/face/verify", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteEndpointNotFound(t *testing.T) {
	r := testRouter([]float32{1, 0, 0})

	req := httptest.NewRequest(http.MethodDelete, "/api/face/enroll/ghost", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestEnrollmentsEndpoint(t *testing.T) {
	r := testRouter([]float32{1, 0, 0}, []float32{0, 1, 0})

	doEnroll(t, r, "S1", testImagePNG(t, 0))
	doEnroll(t, r, "S2", testImagePNG(t, 5))

	req := httptest.NewRequest(http.MethodGet, "/api/face/enrollments", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode(t, rec)
	if resp["total_count"] != float64(2) {
		t.Errorf("total_count = %v, want 2", resp["total_count"])
	}
}

func TestEnrollMultiEndpoint(t *testing.T) {
	r := testRouter([]float32{1, 0, 0}, []float32{0, 1, 0}, []float32{0, 0, 1})

	body, contentType := multipartBody(t,
		map[string]string{"student_id": "S1"},
		map[string][]byte{
			"front_photo":         testImagePNG(t, 0),
			"left_profile_photo":  testImagePNG(t, 3),
			"right_profile_photo": testImagePNG(t, 6),
		})
	req := httptest.NewRequest(http.MethodPost, "/api/face/enroll-multi", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	if resp["photos_processed"] != float64(3) {
		t.Errorf("photos_processed = %v, want 3", resp["photos_processed"])
	}
	angles, _ := resp["angles_enrolled"].([]interface{})
	if len(angles) != 3 {
		t.Errorf("angles_enrolled = %v, want 3 entries", resp["angles_enrolled"])
	}
}

func TestEnrollMultiEndpointMissingAngle(t *testing.T) {
	r := testRouter([]float32{1, 0, 0})

	body, contentType := multipartBody(t,
		map[string]string{"student_id": "S1"},
		map[string][]byte{
			"front_photo":        testImagePNG(t, 0),
			"left_profile_photo": testImagePNG(t, 3),
		})
	req := httptest.NewRequest(http.MethodPost, "/api/face/enroll-multi", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decode(t, rec)
	if resp["angle"] != models.AngleRight {
		t.Errorf("angle = %v, want %q", resp["angle"], models.AngleRight)
	}
}
