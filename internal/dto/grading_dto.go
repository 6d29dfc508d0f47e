package dto

import (
	"time"

	"github.com/kodelab-id/kodelab-api/internal/models"
)

// SubmitCodeRequest is the payload for both sync and async grading.
type SubmitCodeRequest struct {
	ActivityID uint   `json:"activity_id" validate:"required,gt=0"`
	Language   string `json:"language" validate:"required"`
	Source     string `json:"source" validate:"required,min=1"`
}

// DryRunRequest executes code once without persisting anything. Stdin is
// optional; when empty the first test case input of the activity is used.
type DryRunRequest struct {
	ActivityID uint   `json:"activity_id" validate:"required,gt=0"`
	Language   string `json:"language" validate:"required"`
	Source     string `json:"source" validate:"required,min=1"`
	Stdin      string `json:"stdin"`
}

// AsyncSubmitResponse acknowledges an asynchronous grading request.
type AsyncSubmitResponse struct {
	SubmissionID uint   `json:"submission_id"`
	Status       string `json:"status"`
}

// DryRunResponse carries the raw output of a dry run.
type DryRunResponse struct {
	Output      string  `json:"output"`
	Error       string  `json:"error"`
	TimeSeconds float64 `json:"time_seconds"`
	MemoryKB    int64   `json:"memory_kb"`
	TimedOut    bool    `json:"timed_out"`
}

// TestCaseResultResponse is one graded case in a submission response.
type TestCaseResultResponse struct {
	CaseNumber     int     `json:"case_number"`
	Passed         bool    `json:"passed"`
	Input          string  `json:"input"`
	ExpectedOutput string  `json:"expected_output"`
	ActualOutput   string  `json:"actual_output"`
	Error          string  `json:"error,omitempty"`
	TimeSeconds    float64 `json:"time_seconds"`
	MemoryKB       int64   `json:"memory_kb"`
}

// SubmissionResponse represents a submission to API consumers.
type SubmissionResponse struct {
	ID            uint                     `json:"id"`
	StudentID     uint                     `json:"student_id"`
	ActivityID    uint                     `json:"activity_id"`
	Language      string                   `json:"language"`
	Status        string                   `json:"status"`
	Result        string                   `json:"result"`
	Score         int                      `json:"score"`
	Output        string                   `json:"output"`
	ErrorMessage  string                   `json:"error_message"`
	ExecutionTime float64                  `json:"execution_time"`
	MemoryKB      int64                    `json:"memory_kb"`
	IsFinal       bool                     `json:"is_final"`
	IsComplete    bool                     `json:"is_complete"`
	CompletedAt   *time.Time               `json:"completed_at"`
	CreatedAt     time.Time                `json:"created_at"`
	Results       []TestCaseResultResponse `json:"results"`
}

// FeedbackResponse reports the feedback sub-record or its absence.
type FeedbackResponse struct {
	HasFeedback bool       `json:"has_feedback"`
	Status      string     `json:"status"`
	Feedback    string     `json:"feedback,omitempty"`
	Verdict     string     `json:"verdict,omitempty"`
	Model       string     `json:"model,omitempty"`
	Error       string     `json:"error,omitempty"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}

// NewSubmissionResponse builds a response DTO from a model.
func NewSubmissionResponse(submission models.Submission) SubmissionResponse {
	results := make([]TestCaseResultResponse, 0, len(submission.Results))
	for _, result := range submission.Results {
		results = append(results, TestCaseResultResponse{
			CaseNumber:     result.CaseNumber,
			Passed:         result.Passed,
			Input:          result.Input,
			ExpectedOutput: result.ExpectedOutput,
			ActualOutput:   result.ActualOutput,
			Error:          result.Error,
			TimeSeconds:    result.TimeSeconds,
			MemoryKB:       result.MemoryKB,
		})
	}

	return SubmissionResponse{
		ID:            submission.ID,
		StudentID:     submission.StudentID,
		ActivityID:    submission.ActivityID,
		Language:      submission.Language,
		Status:        submission.Status,
		Result:        submission.Result,
		Score:         submission.Score,
		Output:        submission.Output,
		ErrorMessage:  submission.ErrorMessage,
		ExecutionTime: submission.ExecutionTime,
		MemoryKB:      submission.MemoryKB,
		IsFinal:       submission.IsFinal,
		IsComplete:    submission.IsTerminal(),
		CompletedAt:   submission.CompletedAt,
		CreatedAt:     submission.CreatedAt,
		Results:       results,
	}
}

// NewSubmissionResponseSlice converts a list of submissions.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}
	return responses
}

// NewFeedbackResponse maps a feedback record (possibly absent) into the
// polling payload. A missing record reports pending; a record with an
// error but no text reports a terminal generation error.
func NewFeedbackResponse(record *models.FeedbackRecord) FeedbackResponse {
	if record == nil {
		return FeedbackResponse{HasFeedback: false, Status: "pending"}
	}

	if record.Succeeded() {
		return FeedbackResponse{
			HasFeedback: true,
			Status:      "ready",
			Feedback:    record.Feedback,
			Verdict:     record.Verdict,
			Model:       record.Model,
			GeneratedAt: record.GeneratedAt,
		}
	}

	return FeedbackResponse{
		HasFeedback: false,
		Status:      "error",
		Verdict:     record.Verdict,
		Error:       record.Error,
	}
}
