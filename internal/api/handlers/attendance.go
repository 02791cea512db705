package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facecheck/internal/storage"
	"github.com/your-org/facecheck/pkg/dto"
)

type AttendanceHandler struct {
	db *storage.PostgresStore
}

func NewAttendanceHandler(db *storage.PostgresStore) *AttendanceHandler {
	return &AttendanceHandler{db: db}
}

// List handles GET /api/attendance/events. Most recent events first.
func (h *AttendanceHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	events, err := h.db.ListAttendanceEvents(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]dto.AttendanceEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, dto.AttendanceEventResponse{
			ID:         ev.ID,
			StudentID:  ev.StudentID,
			Verified:   ev.Verified,
			Confidence: ev.Confidence,
			Threshold:  ev.Threshold,
			ModelName:  ev.ModelName,
			OccurredAt: ev.OccurredAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"events":      resp,
		"total_count": len(resp),
	})
}
