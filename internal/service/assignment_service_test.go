package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tugas-api/internal/dto"
	"github.com/noah-isme/tugas-api/internal/lifecycle"
	"github.com/noah-isme/tugas-api/internal/models"
	"github.com/noah-isme/tugas-api/internal/repository"
)

func newAssignmentService(h *harness) AssignmentService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewAssignmentService(AssignmentDependencies{
		Assignments: repository.NewAssignmentRepository(h.db),
		Classes:     repository.NewClassRepository(h.db),
		Students:    repository.NewStudentRepository(h.db),
		Storage:     h.storage,
		Activity:    NewActivityService(repository.NewActivityLogRepository(h.db), validate, testLogger()),
		Validator:   validate,
		Logger:      testLogger(),
	})
}

func validCreateRequest(classIDs ...uint) dto.AssignmentCreateRequest {
	return dto.AssignmentCreateRequest{
		Title:             "Esai Sejarah",
		Description:       "Tulis esai tentang proklamasi",
		OpenAt:            "2025-04-01T07:00:00Z",
		CloseAt:           "2025-04-10T23:59:00+07:00",
		AllowTextAnswer:   true,
		AllowFileUpload:   true,
		AllowedFileTypes:  []string{".PDF", "pdf", " Docx "},
		AllowCancelSubmit: true,
		ClassIDs:          classIDs,
	}
}

func TestAssignmentServiceCreateNormalizesConfiguration(t *testing.T) {
	h := newHarness(t)
	svc := newAssignmentService(h)

	created, err := svc.Create(context.Background(), h.teacherActor(), validCreateRequest(h.class.ID))
	require.NoError(t, err)
	require.Equal(t, []string{"pdf", "docx"}, created.AllowedFileTypes)
	require.Equal(t, 100.0, created.MaxScore)
	require.Len(t, created.Classes, 1)
	require.Equal(t, h.class.Name, created.Classes[0].Name)
	require.Equal(t, h.assignment.TeacherID, created.TeacherID)
	require.Equal(t, "2025-04-10T16:59:00Z", created.CloseAt.Format("2006-01-02T15:04:05Z07:00"))
}

func TestAssignmentServiceCreateRules(t *testing.T) {
	h := newHarness(t)
	svc := newAssignmentService(h)
	ctx := context.Background()

	reversed := validCreateRequest()
	reversed.OpenAt, reversed.CloseAt = reversed.CloseAt, reversed.OpenAt
	_, err := svc.Create(ctx, h.teacherActor(), reversed)
	require.ErrorIs(t, err, ErrInvalidAssignment)

	noMode := validCreateRequest()
	noMode.AllowTextAnswer = false
	noMode.AllowFileUpload = false
	_, err = svc.Create(ctx, h.teacherActor(), noMode)
	require.ErrorIs(t, err, ErrInvalidAssignment)

	noTypes := validCreateRequest()
	noTypes.AllowedFileTypes = nil
	_, err = svc.Create(ctx, h.teacherActor(), noTypes)
	require.ErrorIs(t, err, ErrInvalidAssignment)

	passing := 150.0
	tooHigh := validCreateRequest()
	tooHigh.PassingGrade = &passing
	_, err = svc.Create(ctx, h.teacherActor(), tooHigh)
	require.ErrorIs(t, err, ErrInvalidAssignment)

	_, err = svc.Create(ctx, h.teacherActor(), validCreateRequest(h.class.ID+50))
	require.ErrorIs(t, err, ErrUnknownClass)

	_, err = svc.Create(ctx, h.studentActor(), validCreateRequest())
	require.ErrorIs(t, err, lifecycle.ErrForbidden)

	missingTitle := validCreateRequest()
	missingTitle.Title = ""
	_, err = svc.Create(ctx, h.teacherActor(), missingTitle)
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
}

func TestAssignmentServiceUpdateChecksOwnership(t *testing.T) {
	h := newHarness(t)
	svc := newAssignmentService(h)
	ctx := context.Background()

	title := "Laporan Praktikum Kimia"
	_, err := svc.Update(ctx, lifecycle.Actor{ID: 77, Role: lifecycle.RoleTeacher}, h.assignment.ID, dto.AssignmentUpdateRequest{Title: &title})
	require.ErrorIs(t, err, lifecycle.ErrForbidden)

	noClasses := []uint{}
	updated, err := svc.Update(ctx, h.teacherActor(), h.assignment.ID, dto.AssignmentUpdateRequest{Title: &title, ClassIDs: &noClasses})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)
	require.Empty(t, updated.Classes)

	reloaded, err := repository.NewAssignmentRepository(h.db).GetByID(ctx, h.assignment.ID)
	require.NoError(t, err)
	require.Empty(t, reloaded.Classes)

	disableUploads := false
	disableText := false
	_, err = svc.Update(ctx, h.teacherActor(), h.assignment.ID, dto.AssignmentUpdateRequest{AllowFileUpload: &disableUploads, AllowTextAnswer: &disableText})
	require.ErrorIs(t, err, ErrInvalidAssignment)
}

func TestAssignmentServiceDeleteBlockedBySubmissions(t *testing.T) {
	h := newHarness(t)
	svc := newAssignmentService(h)
	ctx := context.Background()

	submitFinal(t, h)
	err := svc.Delete(ctx, h.teacherActor(), h.assignment.ID)
	require.ErrorIs(t, err, ErrAssignmentInUse)

	created, err := svc.Create(ctx, h.teacherActor(), validCreateRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, h.teacherActor(), created.ID))

	_, err = svc.Get(ctx, h.teacherActor(), created.ID)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestAssignmentServiceAttachmentUsesStorage(t *testing.T) {
	h := newHarness(t)
	svc := newAssignmentService(h)
	ctx := context.Background()

	files := formFiles(t, upload{name: "rubrik.pdf", content: "%PDF-1.4 rubrik"})
	updated, err := svc.AddAttachment(ctx, h.teacherActor(), h.assignment.ID, files[0])
	require.NoError(t, err)
	require.Len(t, updated.Attachments, 1)
	require.Equal(t, "rubrik.pdf", updated.Attachments[0].Name)
	require.Contains(t, updated.Attachments[0].URL, "assignments/")
	require.Len(t, h.storage.keys(), 1)

	require.NoError(t, svc.Delete(ctx, h.teacherActor(), h.assignment.ID))
	require.Empty(t, h.storage.keys())
}

func TestAssignmentServiceListVisibility(t *testing.T) {
	h := newHarness(t)
	svc := newAssignmentService(h)
	ctx := context.Background()

	other := models.Class{Name: "XII-IPS-1"}
	require.NoError(t, h.db.Create(&other).Error)

	_, err := svc.Create(ctx, h.teacherActor(), validCreateRequest(other.ID))
	require.NoError(t, err)
	untargeted, err := svc.Create(ctx, lifecycle.Actor{ID: 8, Role: lifecycle.RoleTeacher}, validCreateRequest())
	require.NoError(t, err)

	studentView, err := svc.List(ctx, h.studentActor(), dto.AssignmentListRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(2), studentView.Pagination.TotalItems)
	ids := []uint{studentView.Items[0].ID, studentView.Items[1].ID}
	require.ElementsMatch(t, []uint{h.assignment.ID, untargeted.ID}, ids)

	teacherView, err := svc.List(ctx, h.teacherActor(), dto.AssignmentListRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(2), teacherView.Pagination.TotalItems)

	adminView, err := svc.List(ctx, lifecycle.Actor{ID: 1, Role: lifecycle.RoleAdmin}, dto.AssignmentListRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(3), adminView.Pagination.TotalItems)

	hidden, err := svc.List(ctx, h.studentActor(), dto.AssignmentListRequest{Search: "esai"})
	require.NoError(t, err)
	require.Len(t, hidden.Items, 1)
	require.Equal(t, untargeted.ID, hidden.Items[0].ID)
}
