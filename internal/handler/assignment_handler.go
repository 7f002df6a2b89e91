package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tugas-api/internal/dto"
	"github.com/noah-isme/tugas-api/internal/service"
	"github.com/noah-isme/tugas-api/internal/utils"
)

// AssignmentHandler exposes assignment configuration endpoints.
type AssignmentHandler struct {
	service service.AssignmentService
	logger  zerolog.Logger
}

// NewAssignmentHandler creates a new handler instance.
func NewAssignmentHandler(service service.AssignmentService, logger zerolog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		service: service,
		logger:  logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// Register attaches the read routes visible to every authenticated user.
func (h *AssignmentHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
}

// RegisterManagement attaches the teacher routes.
func (h *AssignmentHandler) RegisterManagement(router fiber.Router) {
	router.Post("", h.create)
	router.Patch("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Post("/:id/attachments", h.addAttachment)
}

func (h *AssignmentHandler) list(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return respondError(c, h.logger, err, "list assignments")
	}

	var req dto.AssignmentListRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	result, err := h.service.List(c.UserContext(), actor, req)
	if err != nil {
		return respondError(c, h.logger, err, "list assignments")
	}

	return utils.OK(c, result.Items, "assignments retrieved", result.Pagination)
}

func (h *AssignmentHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	actor, err := actorFromContext(c)
	if err != nil {
		return respondError(c, h.logger, err, "load assignment")
	}

	assignment, err := h.service.Get(c.UserContext(), actor, id)
	if err != nil {
		return respondError(c, h.logger, err, "load assignment")
	}

	return utils.SendSuccess(c, "assignment retrieved", assignment)
}

func (h *AssignmentHandler) create(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return respondError(c, h.logger, err, "create assignment")
	}

	var payload dto.AssignmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	assignment, err := h.service.Create(c.UserContext(), actor, payload)
	if err != nil {
		return respondError(c, h.logger, err, "create assignment")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assignment created", assignment)
}

func (h *AssignmentHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	actor, err := actorFromContext(c)
	if err != nil {
		return respondError(c, h.logger, err, "update assignment")
	}

	var payload dto.AssignmentUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	assignment, err := h.service.Update(c.UserContext(), actor, id, payload)
	if err != nil {
		return respondError(c, h.logger, err, "update assignment")
	}

	return utils.SendSuccess(c, "assignment updated", assignment)
}

func (h *AssignmentHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	actor, err := actorFromContext(c)
	if err != nil {
		return respondError(c, h.logger, err, "delete assignment")
	}

	if err := h.service.Delete(c.UserContext(), actor, id); err != nil {
		return respondError(c, h.logger, err, "delete assignment")
	}

	return utils.SendSuccess(c, "assignment deleted", nil)
}

func (h *AssignmentHandler) addAttachment(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	actor, err := actorFromContext(c)
	if err != nil {
		return respondError(c, h.logger, err, "upload attachment")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	assignment, err := h.service.AddAttachment(c.UserContext(), actor, id, file)
	if err != nil {
		return respondError(c, h.logger, err, "upload attachment")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "attachment uploaded", assignment)
}
