package models

import (
	"time"

	"gorm.io/datatypes"
)

// Feedback verdict classifications derived from the submission result.
const (
	FeedbackVerdictAccepted    = "accepted"
	FeedbackVerdictWrongAnswer = "wrong_answer"
	FeedbackVerdictError       = "error"
)

// FeedbackRecord holds the best-effort tutoring feedback generated for a
// submission after grading reaches a terminal state. At most one record
// exists per submission; a record with Error set and no Feedback means
// generation was attempted and gave up, so pollers stop waiting.
type FeedbackRecord struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	SubmissionID uint              `gorm:"not null;uniqueIndex" json:"submission_id"`
	Feedback     string            `gorm:"type:text" json:"feedback"`
	Verdict      string            `gorm:"size:32;not null" json:"verdict"`
	Model        string            `gorm:"size:64" json:"model"`
	Error        string            `gorm:"type:text" json:"error,omitempty"`
	Raw          datatypes.JSONMap `gorm:"type:json" json:"raw,omitempty"`
	GeneratedAt  *time.Time        `json:"generated_at"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Succeeded reports whether feedback text was actually produced.
func (f FeedbackRecord) Succeeded() bool {
	return f.Feedback != "" && f.Error == ""
}
