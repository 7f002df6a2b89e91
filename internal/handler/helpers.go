package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tugas-api/internal/dto"
	"github.com/noah-isme/tugas-api/internal/lifecycle"
	"github.com/noah-isme/tugas-api/internal/middleware"
	"github.com/noah-isme/tugas-api/internal/service"
	"github.com/noah-isme/tugas-api/internal/utils"
)

var errUnauthenticated = errors.New("authentication required")

func splitAndTrim(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	value := strings.TrimSpace(c.Params(name))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid identifier")
	}
	return uint(parsed), nil
}

func actorFromContext(c *fiber.Ctx) (lifecycle.Actor, error) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		return lifecycle.Actor{}, errUnauthenticated
	}
	return actor, nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// respondError maps service and lifecycle failures onto HTTP responses.
// action names the operation in the generic 500 message.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, action string) error {
	var lerr *lifecycle.Error
	switch {
	case errors.As(err, &lerr):
		return respondLifecycleError(c, logger, lerr, action)
	case errors.Is(err, errUnauthenticated):
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAssignmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrSubmissionBusy), errors.Is(err, service.ErrSubmissionConflict):
		return utils.SendError(c, fiber.StatusConflict, "submission is being changed by another request, please retry")
	case errors.Is(err, service.ErrAssignmentInUse):
		return utils.SendError(c, fiber.StatusConflict, "assignment already has submissions and cannot be deleted")
	case errors.Is(err, service.ErrInvalidAssignment), errors.Is(err, service.ErrUnknownClass):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUploadTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrTooManyFiles), errors.Is(err, service.ErrUploadScanFailed):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(logger, c).Error().Err(err).Str("action", action).Msg("request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to "+action)
	}
}

func respondLifecycleError(c *fiber.Ctx, logger zerolog.Logger, err *lifecycle.Error, action string) error {
	var details interface{}
	if len(err.Rejected) > 0 {
		details = fiber.Map{"rejected_files": dto.NewRejectedFileResponses(err.Rejected)}
	}

	switch err.Kind {
	case lifecycle.KindNotOpenYet:
		return utils.Fail(c, fiber.StatusForbidden, "assignment is not open for submission yet", details)
	case lifecycle.KindEmptyAnswer:
		return utils.Fail(c, fiber.StatusBadRequest, emptyAnswerMessage(err), details)
	case lifecycle.KindInvalidFileType:
		return utils.Fail(c, fiber.StatusBadRequest, rejectedMessage(err.Rejected), details)
	case lifecycle.KindNoContent:
		return utils.Fail(c, fiber.StatusBadRequest, "nothing to save", details)
	case lifecycle.KindLocked:
		return utils.Fail(c, fiber.StatusConflict, "submission has been graded and can no longer be changed", details)
	case lifecycle.KindCancelNotAllowed:
		return utils.Fail(c, fiber.StatusConflict, "cancelling a submission is not allowed for this assignment", details)
	case lifecycle.KindWindowClosed:
		return utils.Fail(c, fiber.StatusConflict, "the submission window has closed", details)
	case lifecycle.KindWrongState:
		return utils.Fail(c, fiber.StatusConflict, "submission is not in a state that allows this action", details)
	case lifecycle.KindScoreOutOfRange:
		return utils.Fail(c, fiber.StatusBadRequest, "score must be between 0 and the assignment's maximum score", details)
	case lifecycle.KindForbidden:
		return utils.Fail(c, fiber.StatusForbidden, "you are not allowed to access this assignment", details)
	case lifecycle.KindStorageFailure:
		requestLogger(logger, c).Error().Err(err).Str("action", action).Msg("storage failure")
		return utils.Fail(c, fiber.StatusBadGateway, "failed to store files, nothing was changed; please retry", details)
	default:
		requestLogger(logger, c).Error().Err(err).Str("action", action).Msg("unhandled lifecycle error")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to "+action)
	}
}

func emptyAnswerMessage(err *lifecycle.Error) string {
	var message string
	switch err.Mode {
	case lifecycle.AnswerModeText:
		message = "a text answer is required"
	case lifecycle.AnswerModeFile:
		message = "at least one file is required"
	default:
		message = "a text answer or at least one file is required"
	}
	if len(err.Rejected) > 0 {
		message += "; " + rejectedMessage(err.Rejected)
	}
	return message
}

func rejectedMessage(rejected []lifecycle.RejectedFile) string {
	names := make([]string, 0, len(rejected))
	for _, file := range rejected {
		names = append(names, file.Name)
	}
	return "file type not allowed: " + strings.Join(names, ", ")
}
