package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/kodelab-id/kodelab-api/internal/dto"
	"github.com/kodelab-id/kodelab-api/internal/service"
	"github.com/kodelab-id/kodelab-api/internal/utils"
)

// SubmissionHandler exposes the grading pipeline over HTTP.
type SubmissionHandler struct {
	grading  service.GradingService
	feedback service.FeedbackService
	logger   zerolog.Logger
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(grading service.GradingService, feedback service.FeedbackService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		grading:  grading,
		feedback: feedback,
		logger:   logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("", h.submitAsync)
	router.Post("/sync", h.submitSync)
	router.Post("/run", h.dryRun)
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Get("/:id/feedback", h.getFeedback)
}

func (h *SubmissionHandler) submitAsync(c *fiber.Ctx) error {
	var payload dto.SubmitCodeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	response, err := h.grading.SubmitAsync(c.Context(), studentID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "submission queued", response)
}

func (h *SubmissionHandler) submitSync(c *fiber.Ctx) error {
	var payload dto.SubmitCodeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	response, err := h.grading.SubmitSync(c.Context(), studentID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission graded", response)
}

func (h *SubmissionHandler) dryRun(c *fiber.Ctx) error {
	var payload dto.DryRunRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	response, err := h.grading.DryRun(c.Context(), studentID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "code executed", response)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	studentID := userIDFromContext(c)
	if studentID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	offset, err := parseQueryInt(c, "offset")
	if err != nil || offset < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil || limit < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	if limit == 0 || limit > 100 {
		limit = 20
	}

	submissions, total, err := h.grading.ListForStudent(c.Context(), studentID, offset, limit)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", fiber.Map{
		"submissions": submissions,
		"total":       total,
		"offset":      offset,
		"limit":       limit,
	})
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.grading.Get(c.Context(), id, userIDFromContext(c), userRoleFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission retrieved", response)
}

func (h *SubmissionHandler) getFeedback(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	viewerID := userIDFromContext(c)
	role := userRoleFromContext(c)

	var response dto.FeedbackResponse
	if c.QueryBool("wait") {
		response, err = h.feedback.Wait(c.Context(), id, viewerID, role)
	} else {
		response, err = h.feedback.Get(c.Context(), id, viewerID, role)
	}
	if err != nil {
		if errors.Is(err, service.ErrFeedbackPending) {
			return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "feedback not ready yet", response)
		}
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "feedback retrieved", response)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrUnsupportedLanguage):
		return utils.SendError(c, fiber.StatusBadRequest, "language not supported")
	case errors.Is(err, service.ErrLanguageMismatch):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNoTestCases):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrActivityNotFound), errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSubmissionForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "forbidden")
	case errors.Is(err, service.ErrDeadlinePassed):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrGradingInFlight), errors.Is(err, service.ErrSubmissionNotGraded):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrJudgeUnreachable):
		return utils.SendError(c, fiber.StatusBadGateway, "judge unavailable")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("submission operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
