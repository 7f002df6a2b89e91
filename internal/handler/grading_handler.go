package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tugas-api/internal/dto"
	"github.com/noah-isme/tugas-api/internal/service"
	"github.com/noah-isme/tugas-api/internal/utils"
)

// GradingHandler wires grading endpoints for teachers and admins.
type GradingHandler struct {
	service service.GradingService
	logger  zerolog.Logger
}

// NewGradingHandler constructs the handler.
func NewGradingHandler(service service.GradingService, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service: service,
		logger:  logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches grading endpoints to the teacher router group.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Get("/assignments/:id/submissions", h.list)
	router.Post("/submissions/:id/grade", h.grade)
}

func (h *GradingHandler) list(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	actor, err := actorFromContext(c)
	if err != nil {
		return respondError(c, h.logger, err, "list submissions")
	}

	var req dto.SubmissionListRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	result, err := h.service.List(c.UserContext(), actor, assignmentID, req)
	if err != nil {
		return respondError(c, h.logger, err, "list submissions")
	}

	return utils.OK(c, result.Items, "submissions retrieved", result.Pagination)
}

func (h *GradingHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	actor, err := actorFromContext(c)
	if err != nil {
		return respondError(c, h.logger, err, "grade submission")
	}

	var payload dto.GradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	submission, err := h.service.Grade(c.UserContext(), actor, id, payload)
	if err != nil {
		return respondError(c, h.logger, err, "grade submission")
	}

	return utils.SendSuccess(c, "submission graded", submission)
}
