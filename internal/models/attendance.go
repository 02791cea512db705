package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceEvent is the audit record written for every verification decision.
// The API publishes these to NATS; the auditor persists them.
type AttendanceEvent struct {
	ID         uuid.UUID `json:"id" db:"id"`
	StudentID  string    `json:"student_id" db:"student_id"`
	Verified   bool      `json:"verified" db:"verified"`
	Confidence float64   `json:"confidence" db:"confidence"`
	Threshold  float64   `json:"threshold" db:"threshold"`
	ModelName  string    `json:"model_name" db:"model_name"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
