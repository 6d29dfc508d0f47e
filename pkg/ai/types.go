package ai

import (
	"context"
	"errors"
)

// ErrProvider indicates the text-generation provider failed or returned
// an unusable response. Callers treat it as retryable.
var ErrProvider = errors.New("feedback provider error")

// FeedbackRequest carries everything needed to build a verdict-specific
// tutoring prompt for a graded submission.
type FeedbackRequest struct {
	Verdict          string
	Language         string
	ProblemStatement string
	Source           string
	ExpectedOutput   string
	ActualOutput     string
	ErrorMessage     string
}

// FeedbackResult is the generated tutoring feedback.
type FeedbackResult struct {
	Feedback string
	Model    string
	Raw      map[string]interface{}
}

// Generator produces pedagogical feedback text for graded submissions.
type Generator interface {
	Generate(ctx context.Context, req FeedbackRequest) (FeedbackResult, error)
}
