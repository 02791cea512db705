package dto

import "github.com/google/uuid"

// AttendanceEventResponse is one audit record from the attendance trail.
type AttendanceEventResponse struct {
	ID         uuid.UUID `json:"id"`
	StudentID  string    `json:"student_id"`
	Verified   bool      `json:"verified"`
	Confidence float64   `json:"confidence"`
	Threshold  float64   `json:"threshold"`
	ModelName  string    `json:"model_name"`
	OccurredAt string    `json:"occurred_at"`
}

// WSEvent is the envelope broadcast to WebSocket dashboard clients.
type WSEvent struct {
	Type      string      `json:"type"`
	StudentID string      `json:"student_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}
