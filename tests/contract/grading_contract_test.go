package contract_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/kodelab-id/kodelab-api/internal/dto"
	"github.com/kodelab-id/kodelab-api/internal/handler"
	"github.com/kodelab-id/kodelab-api/internal/models"
)

type stubGradingService struct {
	submission dto.SubmissionResponse
}

func (s stubGradingService) SubmitSync(context.Context, uint, dto.SubmitCodeRequest) (dto.SubmissionResponse, error) {
	return s.submission, nil
}

func (s stubGradingService) SubmitAsync(context.Context, uint, dto.SubmitCodeRequest) (dto.AsyncSubmitResponse, error) {
	return dto.AsyncSubmitResponse{SubmissionID: s.submission.ID, Status: models.SubmissionStatusPending}, nil
}

func (s stubGradingService) DryRun(context.Context, uint, dto.DryRunRequest) (dto.DryRunResponse, error) {
	return dto.DryRunResponse{}, nil
}

func (s stubGradingService) Get(context.Context, uint, uint, string) (dto.SubmissionResponse, error) {
	return s.submission, nil
}

func (s stubGradingService) ListForStudent(context.Context, uint, int, int) ([]dto.SubmissionResponse, int64, error) {
	return []dto.SubmissionResponse{s.submission}, 1, nil
}

func (s stubGradingService) Grade(context.Context, uint) error { return nil }

func (s stubGradingService) Start(context.Context) error { return nil }

type stubFeedbackService struct {
	feedback dto.FeedbackResponse
}

func (s stubFeedbackService) Generate(context.Context, uint) error { return nil }

func (s stubFeedbackService) Get(context.Context, uint, uint, string) (dto.FeedbackResponse, error) {
	return s.feedback, nil
}

func (s stubFeedbackService) Wait(context.Context, uint, uint, string) (dto.FeedbackResponse, error) {
	return s.feedback, nil
}

func (s stubFeedbackService) Start(context.Context) error { return nil }

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", name))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)
	return schema
}

func gradingApp(grading stubGradingService, feedback stubFeedbackService) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v1/submissions", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(7))
		c.Locals("user_role", models.RoleStudent)
		return c.Next()
	})
	handler.NewSubmissionHandler(grading, feedback, zerolog.Nop()).Register(group)
	return app
}

func fetchJSON(t *testing.T, app *fiber.App, path string) interface{} {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload
}

func TestSubmissionResponseContract(t *testing.T) {
	schema := compileSchema(t, "submission.schema.json")

	now := time.Now().UTC()
	submission := dto.SubmissionResponse{
		ID:            55,
		StudentID:     7,
		ActivityID:    3,
		Language:      "python",
		Status:        models.SubmissionStatusCompleted,
		Result:        models.SubmissionResultFail,
		Score:         50,
		Output:        "3",
		ErrorMessage:  "time limit exceeded",
		ExecutionTime: 5.1,
		MemoryKB:      20480,
		IsFinal:       true,
		IsComplete:    true,
		CompletedAt:   &now,
		CreatedAt:     now.Add(-time.Minute),
		Results: []dto.TestCaseResultResponse{
			{CaseNumber: 1, Passed: false, Input: "1 2", ExpectedOutput: "3", ActualOutput: "", Error: "time limit exceeded", TimeSeconds: 5},
			{CaseNumber: 2, Passed: true, Input: "2 2", ExpectedOutput: "4", ActualOutput: "4", TimeSeconds: 0.1, MemoryKB: 20480},
		},
	}

	app := gradingApp(stubGradingService{submission: submission}, stubFeedbackService{})
	payload := fetchJSON(t, app, "/api/v1/submissions/55")
	require.NoError(t, schema.Validate(payload))
}

func TestFeedbackResponseContract(t *testing.T) {
	schema := compileSchema(t, "feedback.schema.json")

	now := time.Now().UTC()
	ready := dto.FeedbackResponse{
		HasFeedback: true,
		Status:      "ready",
		Feedback:    "Consider what happens when the loop never terminates.",
		Verdict:     models.FeedbackVerdictWrongAnswer,
		Model:       "gpt-4o-mini",
		GeneratedAt: &now,
	}

	app := gradingApp(stubGradingService{}, stubFeedbackService{feedback: ready})
	payload := fetchJSON(t, app, "/api/v1/submissions/55/feedback")
	require.NoError(t, schema.Validate(payload))

	pending := dto.FeedbackResponse{HasFeedback: false, Status: "pending"}
	app = gradingApp(stubGradingService{}, stubFeedbackService{feedback: pending})
	payload = fetchJSON(t, app, "/api/v1/submissions/55/feedback")
	require.NoError(t, schema.Validate(payload))
}
