package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/tugas-api/internal/dto"
	"github.com/noah-isme/tugas-api/internal/events"
	"github.com/noah-isme/tugas-api/internal/lifecycle"
	"github.com/noah-isme/tugas-api/internal/lock"
	"github.com/noah-isme/tugas-api/internal/models"
	"github.com/noah-isme/tugas-api/internal/observability"
	"github.com/noah-isme/tugas-api/internal/repository"
)

const (
	tracerSubmission = "github.com/noah-isme/tugas-api/internal/service/submission"
	entitySubmission = "submission"

	opSaveDraft = "save_draft"
	opSubmit    = "submit"
	opCancel    = "cancel"
	opGrade     = "grade"
)

var (
	// ErrSubmissionNotFound indicates the submission was not located.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrSubmissionBusy indicates another request holds the submission lock.
	ErrSubmissionBusy = errors.New("submission is being updated by another request")
	// ErrSubmissionConflict indicates the row changed between read and write.
	ErrSubmissionConflict = errors.New("submission was modified concurrently")
)

// SubmissionService drives the student side of the submission lifecycle.
type SubmissionService interface {
	View(ctx context.Context, actor lifecycle.Actor, assignmentID uint) (dto.SubmissionResponse, error)
	SaveDraft(ctx context.Context, actor lifecycle.Actor, assignmentID uint, payload dto.SubmissionSaveRequest, files []*multipart.FileHeader) (dto.SubmissionResultResponse, error)
	Submit(ctx context.Context, actor lifecycle.Actor, assignmentID uint, payload dto.SubmissionSaveRequest, files []*multipart.FileHeader) (dto.SubmissionResultResponse, error)
	Cancel(ctx context.Context, actor lifecycle.Actor, assignmentID uint) (dto.SubmissionResultResponse, error)
}

// SubmissionDependencies wires the submission and grading services.
type SubmissionDependencies struct {
	Submissions repository.SubmissionRepository
	Assignments repository.AssignmentRepository
	Students    repository.StudentRepository
	Storage     FileStorage
	Locker      lock.Locker
	Activity    ActivityRecorder
	Events      events.Publisher
	Validator   *validator.Validate
	Uploads     UploadLimits
	LockWait    time.Duration
	Logger      zerolog.Logger
}

type submissionService struct {
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	students    repository.StudentRepository
	storage     FileStorage
	locker      lock.Locker
	activity    ActivityRecorder
	events      events.Publisher
	validator   *validator.Validate
	uploads     UploadLimits
	lockWait    time.Duration
	policy      *bluemonday.Policy
	logger      zerolog.Logger
	now         func() time.Time
}

// decideFunc runs one engine operation against the locked state.
type decideFunc func(assignment models.Assignment, current *models.Submission, delta lifecycle.FileDelta, now time.Time) (lifecycle.Transition, error)

// submissionForm is a validated draft or submit request whose files have not
// been read yet.
type submissionForm struct {
	text    string
	removed []string
	files   []*multipart.FileHeader
}

// NewSubmissionService constructs the student submission service.
func NewSubmissionService(deps SubmissionDependencies) SubmissionService {
	return newSubmissionService(deps, "submission_service")
}

func newSubmissionService(deps SubmissionDependencies, component string) *submissionService {
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewLocal()
	}
	publisher := deps.Events
	if publisher == nil {
		publisher = events.Nop{}
	}
	validate := deps.Validator
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	lockWait := deps.LockWait
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}

	return &submissionService{
		submissions: deps.Submissions,
		assignments: deps.Assignments,
		students:    deps.Students,
		storage:     deps.Storage,
		locker:      locker,
		activity:    deps.Activity,
		events:      publisher,
		validator:   validate,
		uploads:     deps.Uploads.withDefaults(),
		lockWait:    lockWait,
		policy:      bluemonday.StrictPolicy(),
		logger:      deps.Logger.With().Str("component", component).Logger(),
		now:         time.Now,
	}
}

func (s *submissionService) View(ctx context.Context, actor lifecycle.Actor, assignmentID uint) (dto.SubmissionResponse, error) {
	ctx, span := startSpan(ctx, "submission.view", actor, assignmentID)
	defer span.End()

	assignment, err := s.assignmentForStudent(ctx, actor, assignmentID)
	if err != nil {
		traceFailure(span, err, "assignment_unavailable")
		return dto.SubmissionResponse{}, err
	}

	current, err := s.current(ctx, assignmentID, actor.ID)
	if err != nil {
		traceFailure(span, err, "submission_lookup_failed")
		return dto.SubmissionResponse{}, err
	}
	if current == nil {
		span.SetAttributes(attribute.String("submission.status", string(models.SubmissionStatusPending)))
		return dto.NewSubmissionResponse(assignment, models.Submission{
			AssignmentID: assignment.ID,
			StudentID:    actor.ID,
			Status:       models.SubmissionStatusPending,
		}), nil
	}

	span.SetAttributes(attribute.String("submission.status", string(current.Status)))
	return dto.NewSubmissionResponse(assignment, *current), nil
}

func (s *submissionService) SaveDraft(ctx context.Context, actor lifecycle.Actor, assignmentID uint, payload dto.SubmissionSaveRequest, files []*multipart.FileHeader) (dto.SubmissionResultResponse, error) {
	ctx, span := startSpan(ctx, "submission."+opSaveDraft, actor, assignmentID)
	defer span.End()

	form, err := s.prepare(payload, files)
	if err != nil {
		traceFailure(span, err, "invalid_payload")
		return dto.SubmissionResultResponse{}, err
	}

	return s.mutate(ctx, span, opSaveDraft, actor, assignmentID, form, func(assignment models.Assignment, current *models.Submission, delta lifecycle.FileDelta, _ time.Time) (lifecycle.Transition, error) {
		return lifecycle.SaveDraft(assignment, current, lifecycle.SaveDraftInput{Actor: actor, TextAnswer: form.text, Delta: delta})
	})
}

func (s *submissionService) Submit(ctx context.Context, actor lifecycle.Actor, assignmentID uint, payload dto.SubmissionSaveRequest, files []*multipart.FileHeader) (dto.SubmissionResultResponse, error) {
	ctx, span := startSpan(ctx, "submission."+opSubmit, actor, assignmentID)
	defer span.End()

	form, err := s.prepare(payload, files)
	if err != nil {
		traceFailure(span, err, "invalid_payload")
		return dto.SubmissionResultResponse{}, err
	}

	return s.mutate(ctx, span, opSubmit, actor, assignmentID, form, func(assignment models.Assignment, current *models.Submission, delta lifecycle.FileDelta, now time.Time) (lifecycle.Transition, error) {
		return lifecycle.Submit(assignment, current, lifecycle.SubmitInput{Actor: actor, TextAnswer: form.text, Delta: delta, Now: now})
	})
}

func (s *submissionService) Cancel(ctx context.Context, actor lifecycle.Actor, assignmentID uint) (dto.SubmissionResultResponse, error) {
	ctx, span := startSpan(ctx, "submission."+opCancel, actor, assignmentID)
	defer span.End()

	return s.mutate(ctx, span, opCancel, actor, assignmentID, nil, func(assignment models.Assignment, current *models.Submission, _ lifecycle.FileDelta, now time.Time) (lifecycle.Transition, error) {
		return lifecycle.Cancel(assignment, current, lifecycle.CancelInput{Actor: actor, Now: now})
	})
}

// prepare validates the form and strips markup from the text answer. Files
// are read later, once the assignment's allow-list is known.
func (s *submissionService) prepare(payload dto.SubmissionSaveRequest, files []*multipart.FileHeader) (*submissionForm, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, err
	}
	if len(files) > s.uploads.MaxFiles {
		return nil, ErrTooManyFiles
	}

	return &submissionForm{
		text:    s.plainText(payload.TextAnswer),
		removed: payload.RemovedFileIDs,
		files:   files,
	}, nil
}

// plainText removes markup and keeps the text as typed, so quotes,
// ampersands and angle brackets are stored unescaped.
func (s *submissionService) plainText(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(value)))
}

// delta reads the uploaded files of form. Files the assignment does not
// accept are passed on by name only, so reconciliation reports them without
// their content hitting the size limit or archive scan.
func (s *submissionService) delta(assignment models.Assignment, form *submissionForm) (lifecycle.FileDelta, error) {
	if form == nil {
		return lifecycle.FileDelta{}, nil
	}

	allowed := lifecycle.UploadAllowList(assignment)
	raws, err := readAcceptedUploads(form.files, func(name string) bool {
		return lifecycle.AcceptsFile(allowed, name)
	}, s.uploads)
	if err != nil {
		return lifecycle.FileDelta{}, err
	}

	return lifecycle.NewFileDelta(raws, form.removed...), nil
}

// mutate runs read-decide-write for one student's submission under its lock.
// Uploads happen before the row is written and are deleted again when the
// write fails, so a failed operation leaves the stored state untouched.
func (s *submissionService) mutate(ctx context.Context, span trace.Span, op string, actor lifecycle.Actor, assignmentID uint, form *submissionForm, decide decideFunc) (dto.SubmissionResultResponse, error) {
	assignment, err := s.assignmentForStudent(ctx, actor, assignmentID)
	if err != nil {
		s.countOutcome(op, err)
		traceFailure(span, err, "assignment_unavailable")
		return dto.SubmissionResultResponse{}, err
	}

	delta, err := s.delta(assignment, form)
	if err != nil {
		s.countOutcome(op, err)
		traceFailure(span, err, "invalid_upload")
		return dto.SubmissionResultResponse{}, err
	}

	release, err := s.acquire(ctx, assignmentID, actor.ID)
	if err != nil {
		s.countOutcome(op, err)
		traceFailure(span, err, "lock_unavailable")
		return dto.SubmissionResultResponse{}, err
	}
	defer release()

	// Read after the lock so time spent queued counts against the window.
	now := s.now()

	current, err := s.current(ctx, assignmentID, actor.ID)
	if err != nil {
		s.countOutcome(op, err)
		traceFailure(span, err, "submission_lookup_failed")
		return dto.SubmissionResultResponse{}, err
	}

	transition, err := decide(assignment, current, delta, now)
	if err != nil {
		var lerr *lifecycle.Error
		if errors.As(err, &lerr) {
			countRejected(lerr.Rejected)
		}
		s.countOutcome(op, err)
		traceFailure(span, err, string(lifecycle.KindOf(err)))
		return dto.SubmissionResultResponse{}, err
	}
	countRejected(transition.Rejected())

	next := transition.Submission
	uploaded, err := s.storeUploads(ctx, &next, transition.Reconciliation.Uploads)
	if err != nil {
		s.compensate(ctx, uploaded)
		err = lifecycle.StorageFailure(err)
		s.countOutcome(op, err)
		traceFailure(span, err, "upload_failed")
		return dto.SubmissionResultResponse{}, err
	}

	if transition.Created {
		err = s.submissions.Create(ctx, &next)
	} else {
		err = s.submissions.Save(ctx, &next)
	}
	if err != nil {
		s.compensate(ctx, uploaded)
		if errors.Is(err, repository.ErrStaleSubmission) {
			err = ErrSubmissionConflict
		} else {
			err = lifecycle.StorageFailure(err)
		}
		s.countOutcome(op, err)
		traceFailure(span, err, "submission_persist_failed")
		return dto.SubmissionResultResponse{}, err
	}

	s.purge(ctx, transition.Reconciliation.Removed)
	s.afterCommit(ctx, op, actor, next, transition.Rejected())
	s.countOutcome(op, nil)

	span.SetAttributes(
		attribute.Int64("submission.id", int64(next.ID)),
		attribute.String("submission.status", string(next.Status)),
		attribute.Int("submission.rejected_files", len(transition.Rejected())),
	)

	return dto.SubmissionResultResponse{
		Submission:    dto.NewSubmissionResponse(assignment, next),
		RejectedFiles: dto.NewRejectedFileResponses(transition.Rejected()),
	}, nil
}

// assignmentForStudent loads the assignment and checks that the actor is a
// student of a targeted class.
func (s *submissionService) assignmentForStudent(ctx context.Context, actor lifecycle.Actor, assignmentID uint) (models.Assignment, error) {
	if actor.Role != lifecycle.RoleStudent || actor.ID == 0 {
		return models.Assignment{}, lifecycle.ErrForbidden
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}

	student, err := s.students.GetByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, lifecycle.ErrForbidden
		}
		return models.Assignment{}, err
	}
	if !assignment.TargetsClass(student.ClassID) {
		return models.Assignment{}, lifecycle.ErrForbidden
	}

	return assignment, nil
}

func (s *submissionService) acquire(ctx context.Context, assignmentID, studentID uint) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	started := time.Now()
	release, err := s.locker.Acquire(lockCtx, submissionLockKey(assignmentID, studentID))
	observability.LockWait().Observe(time.Since(started).Seconds())
	if err != nil {
		s.logger.Warn().Err(err).Uint("assignment_id", assignmentID).Uint("student_id", studentID).Msg("submission lock not acquired")
		return nil, ErrSubmissionBusy
	}

	return release, nil
}

func (s *submissionService) current(ctx context.Context, assignmentID, studentID uint) (*models.Submission, error) {
	submission, err := s.submissions.GetByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &submission, nil
}

// storeUploads stores every pending upload under the submission's prefix and
// points the matching file of next at the stored object. It returns the keys
// stored so far, also on failure.
func (s *submissionService) storeUploads(ctx context.Context, next *models.Submission, uploads []lifecycle.PendingUpload) ([]string, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	if s.storage == nil {
		return nil, errors.New("file storage is not configured")
	}

	index := make(map[string]int, len(next.Files))
	for i, file := range next.Files {
		index[file.ID] = i
	}

	prefix := storagePrefix(next.AssignmentID, next.StudentID)
	stored := make([]string, 0, len(uploads))
	for _, upload := range uploads {
		key := prefix + upload.File.StoragePath
		url, err := s.storage.Upload(ctx, key, bytes.NewReader(upload.Content), int64(len(upload.Content)), upload.File.ContentType)
		if err != nil {
			observability.StorageOperations().WithLabelValues("upload", "error").Inc()
			s.logger.Error().Err(err).Str("key", key).Msg("failed to upload submission file")
			return stored, fmt.Errorf("upload %s: %w", upload.File.Name, err)
		}
		observability.StorageOperations().WithLabelValues("upload", "ok").Inc()
		stored = append(stored, key)

		if i, ok := index[upload.File.ID]; ok {
			next.Files[i].StoragePath = key
			next.Files[i].URL = url
		}
	}

	return stored, nil
}

func (s *submissionService) compensate(ctx context.Context, keys []string) {
	for _, key := range keys {
		s.deleteObject(ctx, key)
	}
}

// purge deletes the objects of files dropped by a committed operation.
func (s *submissionService) purge(ctx context.Context, removed []models.SubmissionFile) {
	for _, file := range removed {
		s.deleteObject(ctx, file.StoragePath)
	}
}

func (s *submissionService) deleteObject(ctx context.Context, key string) {
	if s.storage == nil || key == "" {
		return
	}
	if err := s.storage.Delete(ctx, key); err != nil {
		observability.StorageOperations().WithLabelValues("delete", "error").Inc()
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to delete stored object")
		return
	}
	observability.StorageOperations().WithLabelValues("delete", "ok").Inc()
}

// afterCommit records the audit entry and publishes the event. Both are best
// effort: the transition is already stored.
func (s *submissionService) afterCommit(ctx context.Context, op string, actor lifecycle.Actor, submission models.Submission, rejected []lifecycle.RejectedFile) {
	action, eventType := operationNames(op)

	if s.activity != nil {
		metadata := map[string]interface{}{
			"assignment_id": submission.AssignmentID,
			"student_id":    submission.StudentID,
			"status":        string(submission.Status),
			"files":         len(submission.Files),
		}
		if len(rejected) > 0 {
			metadata["rejected_files"] = rejectedNames(rejected)
		}
		if submission.Score != nil {
			metadata["score"] = *submission.Score
		}
		submissionID := submission.ID
		if err := s.activity.Record(ctx, ActivityEntry{
			Actor:      actor,
			Action:     action,
			EntityType: entitySubmission,
			EntityID:   &submissionID,
			Metadata:   metadata,
		}); err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to record submission activity")
		}
	}

	event := events.Event{
		Type:          eventType,
		AssignmentID:  submission.AssignmentID,
		StudentID:     submission.StudentID,
		SubmissionID:  submission.ID,
		Status:        string(submission.Status),
		ActorID:       actor.ID,
		ActorRole:     string(actor.Role),
		RejectedFiles: rejectedNames(rejected),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		observability.EventPublishFailures().Inc()
		s.logger.Warn().Err(err).Str("event", eventType).Uint("submission_id", submission.ID).Msg("failed to publish submission event")
	}
}

func (s *submissionService) countOutcome(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if kind := lifecycle.KindOf(err); kind != "" {
			outcome = string(kind)
		}
	}
	observability.SubmissionTransitions().WithLabelValues(op, outcome).Inc()
}

func countRejected(rejected []lifecycle.RejectedFile) {
	for _, file := range rejected {
		observability.RejectedFiles().WithLabelValues(file.Reason).Inc()
	}
}

func operationNames(op string) (string, string) {
	switch op {
	case opSubmit:
		return models.ActionSubmitted, events.TypeSubmitted
	case opCancel:
		return models.ActionCancelled, events.TypeCancelled
	case opGrade:
		return models.ActionGraded, events.TypeGraded
	default:
		return models.ActionDraftSaved, events.TypeDraftSaved
	}
}

func rejectedNames(rejected []lifecycle.RejectedFile) []string {
	if len(rejected) == 0 {
		return nil
	}
	names := make([]string, 0, len(rejected))
	for _, file := range rejected {
		names = append(names, file.Name)
	}
	return names
}

func submissionLockKey(assignmentID, studentID uint) string {
	return fmt.Sprintf("submission:%d:%d", assignmentID, studentID)
}

func storagePrefix(assignmentID, studentID uint) string {
	return fmt.Sprintf("submissions/%d/%d/", assignmentID, studentID)
}

func startSpan(ctx context.Context, name string, actor lifecycle.Actor, assignmentID uint) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerSubmission).Start(ctx, name)
	span.SetAttributes(
		attribute.Int64("submission.assignment_id", int64(assignmentID)),
		attribute.Int64("submission.actor_id", int64(actor.ID)),
		attribute.String("submission.actor_role", string(actor.Role)),
	)
	return ctx, span
}

func traceFailure(span trace.Span, err error, status string) {
	if status == "" {
		status = "error"
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, status)
}
