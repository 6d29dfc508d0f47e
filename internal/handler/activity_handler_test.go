package handler_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kodelab-id/kodelab-api/internal/dto"
	"github.com/kodelab-id/kodelab-api/internal/handler"
	"github.com/kodelab-id/kodelab-api/internal/models"
	"github.com/kodelab-id/kodelab-api/internal/service"
)

type mockActivityService struct {
	createResponse dto.ActivityResponse
	getResponse    dto.ActivityResponse
	err            error

	lastProfessorID uint
	lastRole        string
}

func (m *mockActivityService) Create(_ context.Context, professorID uint, payload dto.ActivityCreateRequest) (dto.ActivityResponse, error) {
	m.lastProfessorID = professorID
	return m.createResponse, m.err
}

func (m *mockActivityService) Get(_ context.Context, id uint, role string) (dto.ActivityResponse, error) {
	m.lastRole = role
	return m.getResponse, m.err
}

func (m *mockActivityService) List(_ context.Context, offset, limit int) ([]dto.ActivityResponse, int64, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	return []dto.ActivityResponse{m.getResponse}, 1, nil
}

func newActivityApp(svc service.ActivityService, userID uint, role string) *fiber.App {
	app := fiber.New()
	auth := func(c *fiber.Ctx) error {
		if userID != 0 {
			c.Locals("user_id", userID)
			c.Locals("user_role", role)
		}
		return c.Next()
	}
	h := handler.NewActivityHandler(svc, zerolog.New(io.Discard))
	h.Register(app.Group("/api/v1/activities", auth))
	h.RegisterAuthoring(app.Group("/api/v1/activities", auth))
	return app
}

func TestActivityHandler_CreateCreated(t *testing.T) {
	svc := &mockActivityService{createResponse: dto.ActivityResponse{ID: 3, Title: "Sum"}}
	app := newActivityApp(svc, 11, models.RoleProfessor)

	resp := postJSON(t, app, "/api/v1/activities", dto.ActivityCreateRequest{
		Title:            "Sum",
		ProblemStatement: "Add numbers",
		Language:         "python",
		TestCases:        []dto.TestCaseInput{{Input: "1 2", ExpectedOutput: "3"}},
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, uint(11), svc.lastProfessorID)
}

func TestActivityHandler_GetPassesRole(t *testing.T) {
	svc := &mockActivityService{getResponse: dto.ActivityResponse{ID: 3}}
	app := newActivityApp(svc, 7, models.RoleStudent)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/activities/3", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, models.RoleStudent, svc.lastRole)
}

func TestActivityHandler_GetNotFound(t *testing.T) {
	svc := &mockActivityService{err: service.ErrActivityNotFound}
	app := newActivityApp(svc, 7, models.RoleStudent)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/activities/99", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestActivityHandler_BadIdentifier(t *testing.T) {
	app := newActivityApp(&mockActivityService{}, 7, models.RoleStudent)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/activities/abc", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
