package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/noah-isme/tugas-api/internal/dto"
	"github.com/noah-isme/tugas-api/internal/lifecycle"
	"github.com/noah-isme/tugas-api/internal/models"
	"github.com/noah-isme/tugas-api/internal/repository"
)

// GradingService encapsulates grading workflows for teachers and administrators.
type GradingService interface {
	Grade(ctx context.Context, actor lifecycle.Actor, submissionID uint, payload dto.GradeRequest) (dto.SubmissionResponse, error)
	List(ctx context.Context, actor lifecycle.Actor, assignmentID uint, req dto.SubmissionListRequest) (dto.SubmissionListResponse, error)
}

// NewGradingService constructs the grading service.
func NewGradingService(deps SubmissionDependencies) GradingService {
	return newSubmissionService(deps, "grading_service")
}

func (s *submissionService) Grade(ctx context.Context, actor lifecycle.Actor, submissionID uint, payload dto.GradeRequest) (dto.SubmissionResponse, error) {
	ctx, span := startSpan(ctx, "submission."+opGrade, actor, 0)
	span.SetAttributes(attribute.Int64("submission.id", int64(submissionID)))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		traceFailure(span, err, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			traceFailure(span, err, "submission_not_found")
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		traceFailure(span, err, "submission_lookup_failed")
		return dto.SubmissionResponse{}, err
	}

	assignment, err := s.assignmentForTeacher(ctx, actor, submission.AssignmentID)
	if err != nil {
		s.countOutcome(opGrade, err)
		traceFailure(span, err, "assignment_unavailable")
		return dto.SubmissionResponse{}, err
	}

	release, err := s.acquire(ctx, submission.AssignmentID, submission.StudentID)
	if err != nil {
		s.countOutcome(opGrade, err)
		traceFailure(span, err, "lock_unavailable")
		return dto.SubmissionResponse{}, err
	}
	defer release()

	current, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		traceFailure(span, err, "submission_lookup_failed")
		return dto.SubmissionResponse{}, err
	}

	score := *payload.Score
	feedback := s.plainText(payload.Feedback)

	if isSameGrade(current, actor, score, feedback) {
		span.SetAttributes(attribute.Bool("grading.idempotent", true))
		return dto.NewSubmissionResponse(assignment, current), nil
	}

	transition, err := lifecycle.Grade(assignment, &current, lifecycle.GradeInput{
		Actor:    actor,
		Score:    score,
		Feedback: feedback,
		Now:      s.now(),
	})
	if err != nil {
		s.countOutcome(opGrade, err)
		traceFailure(span, err, string(lifecycle.KindOf(err)))
		return dto.SubmissionResponse{}, err
	}

	next := transition.Submission
	history := models.SubmissionGradeHistory{
		Score:    score,
		Feedback: feedback,
		GradedBy: actor.ID,
		GradedAt: *next.GradedAt,
	}
	if err := s.submissions.SaveGrade(ctx, &next, &history); err != nil {
		if errors.Is(err, repository.ErrStaleSubmission) {
			err = ErrSubmissionConflict
		} else {
			err = lifecycle.StorageFailure(err)
		}
		s.countOutcome(opGrade, err)
		traceFailure(span, err, "submission_update_failed")
		return dto.SubmissionResponse{}, err
	}
	next.History = append(next.History, history)

	s.afterCommit(ctx, opGrade, actor, next, nil)
	s.countOutcome(opGrade, nil)

	span.SetAttributes(
		attribute.Float64("grading.score", score),
		attribute.String("submission.status", string(next.Status)),
	)

	return dto.NewSubmissionResponse(assignment, next), nil
}

func (s *submissionService) List(ctx context.Context, actor lifecycle.Actor, assignmentID uint, req dto.SubmissionListRequest) (dto.SubmissionListResponse, error) {
	ctx, span := startSpan(ctx, "submission.list", actor, assignmentID)
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		traceFailure(span, err, "validation_failed")
		return dto.SubmissionListResponse{}, err
	}

	assignment, err := s.assignmentForTeacher(ctx, actor, assignmentID)
	if err != nil {
		traceFailure(span, err, "assignment_unavailable")
		return dto.SubmissionListResponse{}, err
	}

	page, pageSize := dto.NormalizePage(req.Page, req.PageSize, 20, 100)
	filter := repository.SubmissionFilter{
		AssignmentID: &assignmentID,
		Page:         page,
		PageSize:     pageSize,
	}
	if req.Status != "" {
		status := models.SubmissionStatus(req.Status)
		filter.Status = &status
	}

	submissions, total, err := s.submissions.List(ctx, filter)
	if err != nil {
		traceFailure(span, err, "submission_list_failed")
		return dto.SubmissionListResponse{}, err
	}

	span.SetAttributes(attribute.Int64("submission.total", total))
	return dto.SubmissionListResponse{
		Items:      dto.NewSubmissionResponseSlice(assignment, submissions),
		Pagination: dto.NewPaginationMeta(page, pageSize, total),
	}, nil
}

// assignmentForTeacher loads an assignment the actor may grade. Teachers only
// see their own assignments; administrators see every assignment.
func (s *submissionService) assignmentForTeacher(ctx context.Context, actor lifecycle.Actor, assignmentID uint) (models.Assignment, error) {
	if actor.Role != lifecycle.RoleTeacher && actor.Role != lifecycle.RoleAdmin {
		return models.Assignment{}, lifecycle.ErrForbidden
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}

	if actor.Role == lifecycle.RoleTeacher && assignment.TeacherID != actor.ID {
		return models.Assignment{}, lifecycle.ErrForbidden
	}

	return assignment, nil
}

func isSameGrade(current models.Submission, actor lifecycle.Actor, score float64, feedback string) bool {
	if !current.IsGraded() || current.Score == nil || current.GradedBy == nil {
		return false
	}
	currentFeedback := ""
	if current.Feedback != nil {
		currentFeedback = strings.TrimSpace(*current.Feedback)
	}
	return math.Abs(*current.Score-score) < 1e-6 && currentFeedback == feedback && *current.GradedBy == actor.ID
}
