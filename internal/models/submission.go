package models

import "time"

// Submission lifecycle states. A submission is terminal once it reaches
// completed or failed and is never transitioned again.
const (
	SubmissionStatusPending   = "pending"
	SubmissionStatusRunning   = "running"
	SubmissionStatusCompleted = "completed"
	SubmissionStatusFailed    = "failed"
)

// Submission result classifications.
const (
	SubmissionResultPass    = "pass"
	SubmissionResultFail    = "fail"
	SubmissionResultError   = "error"
	SubmissionResultTimeout = "timeout"
	SubmissionResultPending = "pending"
)

// Submission represents one graded attempt by a student at an activity.
type Submission struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	StudentID     uint             `gorm:"not null;index" json:"student_id"`
	ActivityID    uint             `gorm:"not null;index" json:"activity_id"`
	Source        string           `gorm:"type:text;not null" json:"source"`
	Language      string           `gorm:"size:32;not null" json:"language"`
	Status        string           `gorm:"size:20;not null;default:pending" json:"status"`
	Result        string           `gorm:"size:20;not null;default:pending" json:"result"`
	Score         int              `gorm:"not null;default:0" json:"score"`
	Output        string           `gorm:"type:text" json:"output"`
	ErrorMessage  string           `gorm:"type:text" json:"error_message"`
	ExecutionTime float64          `json:"execution_time"`
	MemoryKB      int64            `gorm:"default:0" json:"memory_kb"`
	IsFinal       bool             `gorm:"not null;default:false" json:"is_final"`
	CompletedAt   *time.Time       `json:"completed_at"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Results       []TestCaseResult `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"results"`
	Feedback      *FeedbackRecord  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"feedback,omitempty"`
}

// IsTerminal reports whether the submission has finished grading.
func (s Submission) IsTerminal() bool {
	return s.Status == SubmissionStatusCompleted || s.Status == SubmissionStatusFailed
}

// PassedCount counts the test cases that passed.
func (s Submission) PassedCount() int {
	passed := 0
	for _, result := range s.Results {
		if result.Passed {
			passed++
		}
	}
	return passed
}

// TestCaseResult is the outcome of one test case for one submission.
// Rows are written once as a set when grading completes and never mutated.
type TestCaseResult struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SubmissionID   uint      `gorm:"not null;index" json:"submission_id"`
	CaseNumber     int       `gorm:"not null" json:"case_number"`
	Passed         bool      `gorm:"not null" json:"passed"`
	Input          string    `gorm:"type:text" json:"input"`
	ExpectedOutput string    `gorm:"type:text" json:"expected_output"`
	ActualOutput   string    `gorm:"type:text" json:"actual_output"`
	Error          string    `gorm:"type:text" json:"error,omitempty"`
	TimeSeconds    float64   `json:"time_seconds"`
	MemoryKB       int64     `gorm:"default:0" json:"memory_kb"`
	CreatedAt      time.Time `json:"created_at"`
}
