package api

import (
	"mime/multipart"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
)

func testContext(t *testing.T) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/api/face/enroll", nil)
	return c
}

func TestRequestStudentIDFromPathParam(t *testing.T) {
	c := testContext(t)
	c.Params = gin.Params{{Key: "id", Value: "S42"}}

	if got := requestStudentID(c); got != "S42" {
		t.Errorf("requestStudentID = %q, want %q", got, "S42")
	}
}

func TestRequestStudentIDFromMultipartForm(t *testing.T) {
	c := testContext(t)
	c.Request.MultipartForm = &multipart.Form{
		Value: map[string][]string{"student_id": {"S7"}},
	}

	if got := requestStudentID(c); got != "S7" {
		t.Errorf("requestStudentID = %q, want %q", got, "S7")
	}
}

func TestRequestStudentIDFromPostForm(t *testing.T) {
	c := testContext(t)
	c.Request.PostForm = url.Values{"student_id": {"S9"}}

	if got := requestStudentID(c); got != "S9" {
		t.Errorf("requestStudentID = %q, want %q", got, "S9")
	}
}

func TestRequestStudentIDAbsent(t *testing.T) {
	// A request with no parsed form and no path param must log without a
	// student_id, and must not trigger a body parse.
	c := testContext(t)

	if got := requestStudentID(c); got != "" {
		t.Errorf("requestStudentID = %q, want empty", got)
	}
}
