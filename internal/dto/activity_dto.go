package dto

import (
	"time"

	"github.com/kodelab-id/kodelab-api/internal/models"
)

// TestCaseInput is one ordered test case in an activity create payload.
type TestCaseInput struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output" validate:"required"`
}

// ActivityCreateRequest is the professor-facing payload for authoring an
// activity with its test cases.
type ActivityCreateRequest struct {
	Title            string          `json:"title" validate:"required,min=3,max=255"`
	ProblemStatement string          `json:"problem_statement" validate:"required"`
	Language         string          `json:"language" validate:"required"`
	StarterCode      string          `json:"starter_code"`
	ExpectedOutput   string          `json:"expected_output"`
	Deadline         *time.Time      `json:"deadline"`
	TestCases        []TestCaseInput `json:"test_cases" validate:"required,min=1,dive"`
}

// TestCaseResponse describes a test case to API consumers. Expected
// output is only included for professors.
type TestCaseResponse struct {
	Position       int    `json:"position"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output,omitempty"`
}

// ActivityResponse represents an activity to API consumers.
type ActivityResponse struct {
	ID               uint               `json:"id"`
	ProfessorID      uint               `json:"professor_id"`
	Title            string             `json:"title"`
	ProblemStatement string             `json:"problem_statement"`
	Language         string             `json:"language"`
	StarterCode      string             `json:"starter_code"`
	Deadline         *time.Time         `json:"deadline"`
	CreatedAt        time.Time          `json:"created_at"`
	TestCases        []TestCaseResponse `json:"test_cases,omitempty"`
}

// NewActivityResponse builds a response DTO from a model.
func NewActivityResponse(activity models.Activity, includeExpected bool) ActivityResponse {
	cases := make([]TestCaseResponse, 0, len(activity.TestCases))
	for _, testCase := range activity.TestCases {
		response := TestCaseResponse{
			Position: testCase.Position,
			Input:    testCase.Input,
		}
		if includeExpected {
			response.ExpectedOutput = testCase.ExpectedOutput
		}
		cases = append(cases, response)
	}

	return ActivityResponse{
		ID:               activity.ID,
		ProfessorID:      activity.ProfessorID,
		Title:            activity.Title,
		ProblemStatement: activity.ProblemStatement,
		Language:         activity.Language,
		StarterCode:      activity.StarterCode,
		Deadline:         activity.Deadline,
		CreatedAt:        activity.CreatedAt,
		TestCases:        cases,
	}
}

// NewActivityResponseSlice converts a list of activities without their
// test cases (listings stay light).
func NewActivityResponseSlice(activities []models.Activity) []ActivityResponse {
	responses := make([]ActivityResponse, 0, len(activities))
	for _, activity := range activities {
		responses = append(responses, NewActivityResponse(activity, false))
	}
	return responses
}
