package handler

import (
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tugas-api/internal/dto"
	"github.com/noah-isme/tugas-api/internal/service"
	"github.com/noah-isme/tugas-api/internal/utils"
)

// SubmissionHandler exposes the student side of the submission lifecycle.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to an /assignments/:id/submission group.
// Mutating routes pass through limit first.
func (h *SubmissionHandler) Register(router fiber.Router, limit fiber.Handler) {
	if limit == nil {
		limit = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Get("", h.view)
	router.Put("/draft", limit, h.saveDraft)
	router.Post("/submit", limit, h.submit)
	router.Post("/cancel", limit, h.cancel)
}

func (h *SubmissionHandler) view(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	actor, err := actorFromContext(c)
	if err != nil {
		return respondError(c, h.logger, err, "load submission")
	}

	submission, err := h.service.View(c.UserContext(), actor, assignmentID)
	if err != nil {
		return respondError(c, h.logger, err, "load submission")
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) saveDraft(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	actor, err := actorFromContext(c)
	if err != nil {
		return respondError(c, h.logger, err, "save draft")
	}

	payload, files, err := parseSubmissionForm(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.SaveDraft(c.UserContext(), actor, assignmentID, payload, files)
	if err != nil {
		return respondError(c, h.logger, err, "save draft")
	}

	return utils.SendSuccess(c, resultMessage("draft saved", result), result)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	actor, err := actorFromContext(c)
	if err != nil {
		return respondError(c, h.logger, err, "submit")
	}

	payload, files, err := parseSubmissionForm(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Submit(c.UserContext(), actor, assignmentID, payload, files)
	if err != nil {
		return respondError(c, h.logger, err, "submit")
	}

	return utils.SendSuccess(c, resultMessage("submission received", result), result)
}

func (h *SubmissionHandler) cancel(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	actor, err := actorFromContext(c)
	if err != nil {
		return respondError(c, h.logger, err, "cancel submission")
	}

	result, err := h.service.Cancel(c.UserContext(), actor, assignmentID)
	if err != nil {
		return respondError(c, h.logger, err, "cancel submission")
	}

	return utils.SendSuccess(c, "submission cancelled", result)
}

// parseSubmissionForm reads text_answer, removed_file_ids and files from a
// multipart or urlencoded body. Removed ids may repeat or be comma separated.
func parseSubmissionForm(c *fiber.Ctx) (dto.SubmissionSaveRequest, []*multipart.FileHeader, error) {
	var payload dto.SubmissionSaveRequest
	if len(c.Body()) == 0 {
		return payload, nil, nil
	}

	if err := c.BodyParser(&payload); err != nil {
		return payload, nil, err
	}

	removed := make([]string, 0, len(payload.RemovedFileIDs))
	for _, value := range payload.RemovedFileIDs {
		removed = append(removed, splitAndTrim(value)...)
	}
	payload.RemovedFileIDs = removed

	if !strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm) {
		return payload, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return payload, nil, err
	}

	return payload, form.File["files"], nil
}

func resultMessage(base string, result dto.SubmissionResultResponse) string {
	if len(result.RejectedFiles) == 0 {
		return base
	}
	names := make([]string, 0, len(result.RejectedFiles))
	for _, file := range result.RejectedFiles {
		names = append(names, file.Name)
	}
	return base + "; file type not allowed: " + strings.Join(names, ", ")
}
