package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/tugas-api/internal/dto"
	"github.com/noah-isme/tugas-api/internal/lifecycle"
	"github.com/noah-isme/tugas-api/internal/models"
	"github.com/noah-isme/tugas-api/internal/observability"
	"github.com/noah-isme/tugas-api/internal/repository"
)

const (
	tracerAssignment = "github.com/noah-isme/tugas-api/internal/service/assignment"
	entityAssignment = "assignment"
)

var (
	// ErrAssignmentNotFound indicates the assignment does not exist.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrAssignmentInUse indicates the assignment already has submissions.
	ErrAssignmentInUse = errors.New("assignment already has submissions")
	// ErrInvalidAssignment indicates an inconsistent assignment configuration.
	ErrInvalidAssignment = errors.New("invalid assignment configuration")
	// ErrUnknownClass indicates a target class id does not exist.
	ErrUnknownClass = errors.New("unknown target class")
)

// AssignmentService manages the assignment configuration that drives the
// submission lifecycle.
type AssignmentService interface {
	List(ctx context.Context, actor lifecycle.Actor, req dto.AssignmentListRequest) (dto.AssignmentListResponse, error)
	Get(ctx context.Context, actor lifecycle.Actor, id uint) (dto.AssignmentResponse, error)
	Create(ctx context.Context, actor lifecycle.Actor, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error)
	Update(ctx context.Context, actor lifecycle.Actor, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error)
	Delete(ctx context.Context, actor lifecycle.Actor, id uint) error
	AddAttachment(ctx context.Context, actor lifecycle.Actor, id uint, file *multipart.FileHeader) (dto.AssignmentResponse, error)
}

// AssignmentDependencies wires the assignment service.
type AssignmentDependencies struct {
	Assignments repository.AssignmentRepository
	Classes     repository.ClassRepository
	Students    repository.StudentRepository
	Storage     FileStorage
	Activity    ActivityRecorder
	Validator   *validator.Validate
	Uploads     UploadLimits
	Logger      zerolog.Logger
}

type assignmentService struct {
	repo      repository.AssignmentRepository
	classes   repository.ClassRepository
	students  repository.StudentRepository
	storage   FileStorage
	activity  ActivityRecorder
	validator *validator.Validate
	uploads   UploadLimits
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAssignmentService constructs the assignment service.
func NewAssignmentService(deps AssignmentDependencies) AssignmentService {
	validate := deps.Validator
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return &assignmentService{
		repo:      deps.Assignments,
		classes:   deps.Classes,
		students:  deps.Students,
		storage:   deps.Storage,
		activity:  deps.Activity,
		validator: validate,
		uploads:   deps.Uploads.withDefaults(),
		logger:    deps.Logger.With().Str("component", "assignment_service").Logger(),
		now:       time.Now,
	}
}

func (s *assignmentService) List(ctx context.Context, actor lifecycle.Actor, req dto.AssignmentListRequest) (dto.AssignmentListResponse, error) {
	ctx, span := otel.Tracer(tracerAssignment).Start(ctx, "assignment.list")
	defer span.End()

	page, pageSize := dto.NormalizePage(req.Page, req.PageSize, 10, 100)
	filter := repository.AssignmentFilter{
		Search:   strings.TrimSpace(req.Search),
		Sort:     req.Sort,
		Page:     page,
		PageSize: pageSize,
	}

	switch actor.Role {
	case lifecycle.RoleStudent:
		student, err := s.students.GetByID(ctx, actor.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.AssignmentListResponse{}, lifecycle.ErrForbidden
			}
			return dto.AssignmentListResponse{}, err
		}
		// Class 0 never exists, so a student without a class sees only
		// untargeted assignments.
		classID := uint(0)
		if student.ClassID != nil {
			classID = *student.ClassID
		}
		filter.ClassID = &classID
	case lifecycle.RoleTeacher:
		teacherID := actor.ID
		filter.TeacherID = &teacherID
	case lifecycle.RoleAdmin:
	default:
		return dto.AssignmentListResponse{}, lifecycle.ErrForbidden
	}

	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		traceFailure(span, err, "assignment_list_failed")
		return dto.AssignmentListResponse{}, err
	}

	span.SetAttributes(attribute.Int64("assignment.total", total))
	return dto.AssignmentListResponse{
		Items:      dto.NewAssignmentResponseSlice(assignments, s.now()),
		Pagination: dto.NewPaginationMeta(page, pageSize, total),
	}, nil
}

func (s *assignmentService) Get(ctx context.Context, actor lifecycle.Actor, id uint) (dto.AssignmentResponse, error) {
	assignment, err := s.load(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	switch actor.Role {
	case lifecycle.RoleStudent:
		student, err := s.students.GetByID(ctx, actor.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.AssignmentResponse{}, lifecycle.ErrForbidden
			}
			return dto.AssignmentResponse{}, err
		}
		if !assignment.TargetsClass(student.ClassID) {
			return dto.AssignmentResponse{}, lifecycle.ErrForbidden
		}
	default:
		if err := authorizeOwner(actor, assignment); err != nil {
			return dto.AssignmentResponse{}, err
		}
	}

	return dto.NewAssignmentResponse(assignment, s.now()), nil
}

func (s *assignmentService) Create(ctx context.Context, actor lifecycle.Actor, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error) {
	ctx, span := otel.Tracer(tracerAssignment).Start(ctx, "assignment.create")
	defer span.End()

	if actor.Role != lifecycle.RoleTeacher && actor.Role != lifecycle.RoleAdmin {
		return dto.AssignmentResponse{}, lifecycle.ErrForbidden
	}
	if err := s.validator.Struct(payload); err != nil {
		traceFailure(span, err, "validation_failed")
		return dto.AssignmentResponse{}, err
	}

	openAt, err := time.Parse(time.RFC3339, payload.OpenAt)
	if err != nil {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: open_at: %v", ErrInvalidAssignment, err)
	}
	closeAt, err := time.Parse(time.RFC3339, payload.CloseAt)
	if err != nil {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: close_at: %v", ErrInvalidAssignment, err)
	}

	assignment := models.Assignment{
		TeacherID:         actor.ID,
		Title:             strings.TrimSpace(payload.Title),
		Description:       strings.TrimSpace(payload.Description),
		OpenAt:            openAt.UTC(),
		CloseAt:           closeAt.UTC(),
		MaxScore:          100,
		PassingGrade:      payload.PassingGrade,
		AllowTextAnswer:   payload.AllowTextAnswer,
		AllowFileUpload:   payload.AllowFileUpload,
		AllowedFileTypes:  datatypes.JSONSlice[string](models.NormalizeExtensions(payload.AllowedFileTypes)),
		AllowCancelSubmit: payload.AllowCancelSubmit,
	}
	if payload.MaxScore != nil {
		assignment.MaxScore = *payload.MaxScore
	}

	if err := checkAssignment(assignment); err != nil {
		traceFailure(span, err, "invalid_assignment")
		return dto.AssignmentResponse{}, err
	}

	classes, err := s.resolveClasses(ctx, payload.ClassIDs)
	if err != nil {
		traceFailure(span, err, "class_lookup_failed")
		return dto.AssignmentResponse{}, err
	}
	assignment.Classes = classes

	if err := s.repo.Create(ctx, &assignment); err != nil {
		traceFailure(span, err, "assignment_create_failed")
		return dto.AssignmentResponse{}, err
	}

	s.record(ctx, actor, models.ActionAssignmentCreated, assignment.ID, map[string]interface{}{
		"title":    assignment.Title,
		"close_at": assignment.CloseAt,
		"classes":  len(assignment.Classes),
	})

	span.SetAttributes(attribute.Int64("assignment.id", int64(assignment.ID)))
	return dto.NewAssignmentResponse(assignment, s.now()), nil
}

func (s *assignmentService) Update(ctx context.Context, actor lifecycle.Actor, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error) {
	ctx, span := otel.Tracer(tracerAssignment).Start(ctx, "assignment.update")
	span.SetAttributes(attribute.Int64("assignment.id", int64(id)))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		traceFailure(span, err, "validation_failed")
		return dto.AssignmentResponse{}, err
	}

	assignment, err := s.load(ctx, id)
	if err != nil {
		traceFailure(span, err, "assignment_lookup_failed")
		return dto.AssignmentResponse{}, err
	}
	if err := authorizeOwner(actor, assignment); err != nil {
		traceFailure(span, err, "forbidden")
		return dto.AssignmentResponse{}, err
	}

	changes := make([]string, 0, 4)
	if payload.Title != nil {
		assignment.Title = strings.TrimSpace(*payload.Title)
		changes = append(changes, "title")
	}
	if payload.Description != nil {
		assignment.Description = strings.TrimSpace(*payload.Description)
		changes = append(changes, "description")
	}
	if payload.OpenAt != nil {
		openAt, err := time.Parse(time.RFC3339, *payload.OpenAt)
		if err != nil {
			return dto.AssignmentResponse{}, fmt.Errorf("%w: open_at: %v", ErrInvalidAssignment, err)
		}
		assignment.OpenAt = openAt.UTC()
		changes = append(changes, "open_at")
	}
	if payload.CloseAt != nil {
		closeAt, err := time.Parse(time.RFC3339, *payload.CloseAt)
		if err != nil {
			return dto.AssignmentResponse{}, fmt.Errorf("%w: close_at: %v", ErrInvalidAssignment, err)
		}
		assignment.CloseAt = closeAt.UTC()
		changes = append(changes, "close_at")
	}
	if payload.MaxScore != nil {
		assignment.MaxScore = *payload.MaxScore
		changes = append(changes, "max_score")
	}
	if payload.PassingGrade != nil {
		assignment.PassingGrade = payload.PassingGrade
		changes = append(changes, "passing_grade")
	}
	if payload.AllowTextAnswer != nil {
		assignment.AllowTextAnswer = *payload.AllowTextAnswer
		changes = append(changes, "allow_text_answer")
	}
	if payload.AllowFileUpload != nil {
		assignment.AllowFileUpload = *payload.AllowFileUpload
		changes = append(changes, "allow_file_upload")
	}
	if payload.AllowedFileTypes != nil {
		assignment.AllowedFileTypes = datatypes.JSONSlice[string](models.NormalizeExtensions(*payload.AllowedFileTypes))
		changes = append(changes, "allowed_file_types")
	}
	if payload.AllowCancelSubmit != nil {
		assignment.AllowCancelSubmit = *payload.AllowCancelSubmit
		changes = append(changes, "allow_cancel_submit")
	}
	if payload.ClassIDs != nil {
		classes, err := s.resolveClasses(ctx, *payload.ClassIDs)
		if err != nil {
			traceFailure(span, err, "class_lookup_failed")
			return dto.AssignmentResponse{}, err
		}
		assignment.Classes = classes
		changes = append(changes, "class_ids")
	}

	if err := checkAssignment(assignment); err != nil {
		traceFailure(span, err, "invalid_assignment")
		return dto.AssignmentResponse{}, err
	}

	if err := s.repo.Update(ctx, &assignment); err != nil {
		traceFailure(span, err, "assignment_update_failed")
		return dto.AssignmentResponse{}, err
	}

	s.record(ctx, actor, models.ActionAssignmentUpdated, assignment.ID, map[string]interface{}{
		"changes": changes,
	})

	return dto.NewAssignmentResponse(assignment, s.now()), nil
}

func (s *assignmentService) Delete(ctx context.Context, actor lifecycle.Actor, id uint) error {
	ctx, span := otel.Tracer(tracerAssignment).Start(ctx, "assignment.delete")
	span.SetAttributes(attribute.Int64("assignment.id", int64(id)))
	defer span.End()

	assignment, err := s.load(ctx, id)
	if err != nil {
		traceFailure(span, err, "assignment_lookup_failed")
		return err
	}
	if err := authorizeOwner(actor, assignment); err != nil {
		traceFailure(span, err, "forbidden")
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrAssignmentInUse):
			err = ErrAssignmentInUse
		case errors.Is(err, gorm.ErrRecordNotFound):
			err = ErrAssignmentNotFound
		}
		traceFailure(span, err, "assignment_delete_failed")
		return err
	}

	for _, attachment := range assignment.Attachments {
		s.deleteObject(ctx, attachment.StoragePath)
	}

	s.record(ctx, actor, models.ActionAssignmentDeleted, id, map[string]interface{}{
		"title": assignment.Title,
	})

	return nil
}

func (s *assignmentService) AddAttachment(ctx context.Context, actor lifecycle.Actor, id uint, file *multipart.FileHeader) (dto.AssignmentResponse, error) {
	ctx, span := otel.Tracer(tracerAssignment).Start(ctx, "assignment.attachment")
	span.SetAttributes(attribute.Int64("assignment.id", int64(id)))
	defer span.End()

	if file == nil {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: file is required", ErrInvalidAssignment)
	}

	assignment, err := s.load(ctx, id)
	if err != nil {
		traceFailure(span, err, "assignment_lookup_failed")
		return dto.AssignmentResponse{}, err
	}
	if err := authorizeOwner(actor, assignment); err != nil {
		traceFailure(span, err, "forbidden")
		return dto.AssignmentResponse{}, err
	}
	if s.storage == nil {
		err := lifecycle.StorageFailure(errors.New("file storage is not configured"))
		traceFailure(span, err, "storage_unavailable")
		return dto.AssignmentResponse{}, err
	}

	raws, err := readUploads([]*multipart.FileHeader{file}, s.uploads)
	if err != nil {
		traceFailure(span, err, "invalid_upload")
		return dto.AssignmentResponse{}, err
	}
	raw := raws[0]

	key := fmt.Sprintf("assignments/%d/%s%s", assignment.ID, uuid.NewString(), strings.ToLower(filepath.Ext(raw.Name)))
	url, err := s.storage.Upload(ctx, key, bytes.NewReader(raw.Content), int64(len(raw.Content)), raw.ContentType)
	if err != nil {
		observability.StorageOperations().WithLabelValues("upload", "error").Inc()
		err = lifecycle.StorageFailure(err)
		traceFailure(span, err, "upload_failed")
		return dto.AssignmentResponse{}, err
	}
	observability.StorageOperations().WithLabelValues("upload", "ok").Inc()

	attachment := models.AssignmentAttachment{
		AssignmentID: assignment.ID,
		Name:         filepath.Base(raw.Name),
		URL:          url,
		StoragePath:  key,
	}
	if err := s.repo.AddAttachment(ctx, &attachment); err != nil {
		s.deleteObject(ctx, key)
		err = lifecycle.StorageFailure(err)
		traceFailure(span, err, "attachment_persist_failed")
		return dto.AssignmentResponse{}, err
	}
	assignment.Attachments = append(assignment.Attachments, attachment)

	s.record(ctx, actor, models.ActionAssignmentUpdated, assignment.ID, map[string]interface{}{
		"attachment": attachment.Name,
	})

	return dto.NewAssignmentResponse(assignment, s.now()), nil
}

func (s *assignmentService) load(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (s *assignmentService) resolveClasses(ctx context.Context, ids []uint) ([]models.Class, error) {
	unique := make([]uint, 0, len(ids))
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return []models.Class{}, nil
	}

	classes, err := s.classes.FindByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	if len(classes) != len(unique) {
		return nil, ErrUnknownClass
	}
	return classes, nil
}

func (s *assignmentService) deleteObject(ctx context.Context, key string) {
	if s.storage == nil || key == "" {
		return
	}
	if err := s.storage.Delete(ctx, key); err != nil {
		observability.StorageOperations().WithLabelValues("delete", "error").Inc()
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to delete attachment object")
		return
	}
	observability.StorageOperations().WithLabelValues("delete", "ok").Inc()
}

func (s *assignmentService) record(ctx context.Context, actor lifecycle.Actor, action string, id uint, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}
	entityID := id
	if err := s.activity.Record(ctx, ActivityEntry{
		Actor:      actor,
		Action:     action,
		EntityType: entityAssignment,
		EntityID:   &entityID,
		Metadata:   metadata,
	}); err != nil {
		s.logger.Warn().Err(err).Uint("assignment_id", id).Str("action", action).Msg("failed to record assignment activity")
	}
}

// authorizeOwner lets administrators act on every assignment and teachers on
// their own.
func authorizeOwner(actor lifecycle.Actor, assignment models.Assignment) error {
	switch actor.Role {
	case lifecycle.RoleAdmin:
		return nil
	case lifecycle.RoleTeacher:
		if assignment.TeacherID == actor.ID {
			return nil
		}
	}
	return lifecycle.ErrForbidden
}

// checkAssignment enforces the cross-field rules of an assignment.
func checkAssignment(assignment models.Assignment) error {
	if !assignment.CloseAt.After(assignment.OpenAt) {
		return fmt.Errorf("%w: close_at must be after open_at", ErrInvalidAssignment)
	}
	if !assignment.AllowTextAnswer && !assignment.AllowFileUpload {
		return fmt.Errorf("%w: at least one answer mode must be allowed", ErrInvalidAssignment)
	}
	if assignment.AllowFileUpload && len(assignment.FileTypes()) == 0 {
		return fmt.Errorf("%w: allowed_file_types is required when file upload is allowed", ErrInvalidAssignment)
	}
	if assignment.PassingGrade != nil && *assignment.PassingGrade > assignment.EffectiveMaxScore() {
		return fmt.Errorf("%w: passing_grade exceeds max_score", ErrInvalidAssignment)
	}
	return nil
}
