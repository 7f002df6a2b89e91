package service

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tugas-api/internal/dto"
	"github.com/noah-isme/tugas-api/internal/events"
	"github.com/noah-isme/tugas-api/internal/lifecycle"
	"github.com/noah-isme/tugas-api/internal/models"
)

func TestSubmissionServiceViewPendingWithoutRow(t *testing.T) {
	h := newHarness(t)

	view, err := h.svc.View(context.Background(), h.studentActor(), h.assignment.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusPending, view.Status)
	require.Zero(t, view.ID)
	require.Empty(t, view.Files)
	require.Zero(t, h.count(t, &models.Submission{}))
}

func TestSubmissionServiceSaveDraftStoresFiles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.svc.SaveDraft(ctx, h.studentActor(), h.assignment.ID,
		dto.SubmissionSaveRequest{TextAnswer: "Pendahuluan percobaan"},
		formFiles(t, upload{name: "laporan.pdf", content: "%PDF-1.4 laporan"}))
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusDraft, result.Submission.Status)
	require.Empty(t, result.RejectedFiles)
	require.Len(t, result.Submission.Files, 1)
	require.Equal(t, uint(1), result.Submission.Version)

	stored := h.storedSubmission(t)
	require.Len(t, stored.Files, 1)
	require.Contains(t, stored.Files[0].StoragePath, "submissions/")
	require.Equal(t, "https://files.test/"+stored.Files[0].StoragePath, stored.Files[0].URL)
	require.Equal(t, []string{stored.Files[0].StoragePath}, h.storage.keys())

	require.Equal(t, []string{events.TypeDraftSaved}, h.publisher.types())
	require.Equal(t, int64(1), h.count(t, &models.ActivityLog{}))
}

func TestSubmissionServiceSaveDraftWithoutContent(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.SaveDraft(context.Background(), h.studentActor(), h.assignment.ID, dto.SubmissionSaveRequest{TextAnswer: "   "}, nil)
	require.ErrorIs(t, err, lifecycle.ErrNoContent)
	require.Zero(t, h.count(t, &models.Submission{}))
	require.Empty(t, h.publisher.types())
}

func TestSubmissionServiceSubmitAcceptsAllowedFilesAndReportsRejected(t *testing.T) {
	h := newHarness(t)

	result, err := h.svc.Submit(context.Background(), h.studentActor(), h.assignment.ID,
		dto.SubmissionSaveRequest{},
		formFiles(t,
			upload{name: "laporan.pdf", content: "%PDF-1.4 laporan"},
			upload{name: "setup.exe", content: "MZ binary"},
			upload{name: "run.bat", content: "echo hi"},
		))
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusSubmitted, result.Submission.Status)
	require.NotNil(t, result.Submission.SubmittedAt)
	require.Len(t, result.Submission.Files, 1)
	require.Len(t, result.RejectedFiles, 2)
	require.Equal(t, "setup.exe", result.RejectedFiles[0].Name)
	require.Equal(t, "run.bat", result.RejectedFiles[1].Name)
	require.Equal(t, lifecycle.RejectReasonExtension, result.RejectedFiles[0].Reason)
	require.Len(t, h.storage.keys(), 1)
}

func TestSubmissionServiceDisallowedFilesSkipUploadGuards(t *testing.T) {
	h := newHarness(t)
	h.svc.uploads = UploadLimits{MaxBytes: 64, MaxFiles: 5}

	result, err := h.svc.Submit(context.Background(), h.studentActor(), h.assignment.ID,
		dto.SubmissionSaveRequest{},
		formFiles(t,
			upload{name: "report.pdf", content: "%PDF-1.4 report"},
			upload{name: "extra.zip", content: "PK\x03\x04 not really a zip"},
			upload{name: "video.mp4", content: strings.Repeat("x", 1024)},
		))
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusSubmitted, result.Submission.Status)
	require.Len(t, result.Submission.Files, 1)
	require.Equal(t, "report.pdf", result.Submission.Files[0].Name)
	require.Len(t, result.RejectedFiles, 2)
	require.Equal(t, "extra.zip", result.RejectedFiles[0].Name)
	require.Equal(t, "video.mp4", result.RejectedFiles[1].Name)
	require.Equal(t, lifecycle.RejectReasonExtension, result.RejectedFiles[0].Reason)
	require.Len(t, h.storage.keys(), 1)
}

func TestSubmissionServiceUploadsDisabledSkipsUploadGuards(t *testing.T) {
	h := newHarness(t, func(a *models.Assignment) {
		a.AllowFileUpload = false
		a.AllowedFileTypes = nil
	})
	h.svc.uploads = UploadLimits{MaxBytes: 4, MaxFiles: 5}

	result, err := h.svc.Submit(context.Background(), h.studentActor(), h.assignment.ID,
		dto.SubmissionSaveRequest{TextAnswer: "Jawaban teks"},
		formFiles(t, upload{name: "lampiran.pdf", content: "%PDF-1.4 lampiran besar"}))
	require.NoError(t, err)
	require.Empty(t, result.Submission.Files)
	require.Len(t, result.RejectedFiles, 1)
	require.Equal(t, lifecycle.RejectReasonUploadsDisabled, result.RejectedFiles[0].Reason)
	require.Empty(t, h.storage.keys())
}

func TestSubmissionServiceKeepsTextAnswerAsTyped(t *testing.T) {
	h := newHarness(t)
	answer := `Don't forget: x < 3 && y > 1, "quoted"`

	result, err := h.svc.Submit(context.Background(), h.studentActor(), h.assignment.ID,
		dto.SubmissionSaveRequest{TextAnswer: answer}, nil)
	require.NoError(t, err)
	require.Equal(t, answer, *result.Submission.TextAnswer)
	require.Equal(t, answer, *h.storedSubmission(t).TextAnswer)
}

func TestSubmissionServiceStripsMarkupFromTextAnswer(t *testing.T) {
	h := newHarness(t)

	result, err := h.svc.SaveDraft(context.Background(), h.studentActor(), h.assignment.ID,
		dto.SubmissionSaveRequest{TextAnswer: "<b>Halo</b> <i>dunia</i>"}, nil)
	require.NoError(t, err)
	require.Equal(t, "Halo dunia", *result.Submission.TextAnswer)
}

func TestSubmissionServiceTimesSubmitAfterWaitingForLock(t *testing.T) {
	h := newHarness(t)

	var released atomic.Bool
	h.svc.now = func() time.Time {
		if released.Load() {
			return windowClose.Add(time.Second)
		}
		return windowClose.Add(-time.Second)
	}

	release, err := h.locker.Acquire(context.Background(), submissionLockKey(h.assignment.ID, h.student.ID))
	require.NoError(t, err)

	type outcome struct {
		result dto.SubmissionResultResponse
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := h.svc.Submit(context.Background(), h.studentActor(), h.assignment.ID,
			dto.SubmissionSaveRequest{TextAnswer: "Antre di belakang"}, nil)
		done <- outcome{result: result, err: err}
	}()

	time.Sleep(50 * time.Millisecond)
	released.Store(true)
	release()

	got := <-done
	require.NoError(t, got.err)
	require.Equal(t, models.SubmissionStatusLate, got.result.Submission.Status)
	require.True(t, got.result.Submission.SubmittedAt.Equal(windowClose.Add(time.Second)))
}

func TestSubmissionServiceSubmitAfterCloseIsLate(t *testing.T) {
	h := newHarness(t)
	h.now = windowClose.Add(72 * time.Hour)

	result, err := h.svc.Submit(context.Background(), h.studentActor(), h.assignment.ID,
		dto.SubmissionSaveRequest{TextAnswer: "Terlambat tapi lengkap"}, nil)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusLate, result.Submission.Status)
	require.True(t, result.Submission.SubmittedAt.Equal(h.now))
}

func TestSubmissionServiceSubmitBeforeOpen(t *testing.T) {
	h := newHarness(t)
	h.now = windowOpen.Add(-time.Minute)

	_, err := h.svc.Submit(context.Background(), h.studentActor(), h.assignment.ID,
		dto.SubmissionSaveRequest{TextAnswer: "Terlalu cepat"},
		formFiles(t, upload{name: "laporan.pdf", content: "%PDF-1.4"}))
	require.ErrorIs(t, err, lifecycle.ErrNotOpenYet)
	require.Zero(t, h.count(t, &models.Submission{}))
	require.Empty(t, h.storage.keys())
}

func TestSubmissionServiceSubmitEmptyAnswerReportsMode(t *testing.T) {
	h := newHarness(t, func(a *models.Assignment) {
		a.AllowTextAnswer = false
	})

	_, err := h.svc.Submit(context.Background(), h.studentActor(), h.assignment.ID,
		dto.SubmissionSaveRequest{TextAnswer: "text is ignored here"},
		formFiles(t, upload{name: "foto.png", content: "\x89PNG"}))
	require.ErrorIs(t, err, lifecycle.ErrEmptyAnswer)

	var lerr *lifecycle.Error
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, lifecycle.AnswerModeFile, lerr.Mode)
	require.Len(t, lerr.Rejected, 1)
	require.Zero(t, h.count(t, &models.Submission{}))
}

func TestSubmissionServiceStorageFailureKeepsPriorState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.SaveDraft(ctx, h.studentActor(), h.assignment.ID, dto.SubmissionSaveRequest{TextAnswer: "versi pertama"}, nil)
	require.NoError(t, err)

	h.storage.failOn = 2
	_, err = h.svc.Submit(ctx, h.studentActor(), h.assignment.ID,
		dto.SubmissionSaveRequest{TextAnswer: "versi kedua"},
		formFiles(t,
			upload{name: "bab1.pdf", content: "%PDF-1.4 bab 1"},
			upload{name: "bab2.pdf", content: "%PDF-1.4 bab 2"},
		))
	require.ErrorIs(t, err, lifecycle.ErrStorageFailure)

	stored := h.storedSubmission(t)
	require.Equal(t, models.SubmissionStatusDraft, stored.Status)
	require.Equal(t, "versi pertama", *stored.TextAnswer)
	require.Empty(t, stored.Files)
	require.Equal(t, uint(1), stored.Version)
	require.Empty(t, h.storage.keys(), "uploaded objects are compensated")
	require.Len(t, h.storage.deleted, 1)
	require.Equal(t, []string{events.TypeDraftSaved}, h.publisher.types())
}

func TestSubmissionServiceRemovedFileIsDeletedAfterCommit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.SaveDraft(ctx, h.studentActor(), h.assignment.ID,
		dto.SubmissionSaveRequest{TextAnswer: "Draf awal"},
		formFiles(t,
			upload{name: "lama.pdf", content: "%PDF-1.4 lama"},
			upload{name: "tetap.docx", content: "docx body"},
		))
	require.NoError(t, err)
	require.Len(t, first.Submission.Files, 2)
	removed := first.Submission.Files[0]
	var removedPath string
	for _, file := range h.storedSubmission(t).Files {
		if file.ID == removed.ID {
			removedPath = file.StoragePath
		}
	}
	require.NotEmpty(t, removedPath)

	second, err := h.svc.SaveDraft(ctx, h.studentActor(), h.assignment.ID,
		dto.SubmissionSaveRequest{TextAnswer: "Draf awal", RemovedFileIDs: []string{removed.ID}}, nil)
	require.NoError(t, err)
	require.Len(t, second.Submission.Files, 1)
	require.Equal(t, "tetap.docx", second.Submission.Files[0].Name)
	require.Equal(t, 0, second.Submission.Files[0].Position)
	require.Equal(t, uint(2), second.Submission.Version)

	require.Equal(t, []string{removedPath}, h.storage.deleted)
	require.Len(t, h.storage.keys(), 1)
}

func TestSubmissionServiceCancelRevertsToDraft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, h.studentActor(), h.assignment.ID,
		dto.SubmissionSaveRequest{TextAnswer: "Jawaban final"},
		formFiles(t, upload{name: "laporan.pdf", content: "%PDF-1.4"}))
	require.NoError(t, err)

	result, err := h.svc.Cancel(ctx, h.studentActor(), h.assignment.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusDraft, result.Submission.Status)
	require.Nil(t, result.Submission.SubmittedAt)
	require.Len(t, result.Submission.Files, 1)
	require.Equal(t, "Jawaban final", *result.Submission.TextAnswer)

	h.now = windowClose.Add(time.Hour)
	_, err = h.svc.Submit(ctx, h.studentActor(), h.assignment.ID, dto.SubmissionSaveRequest{TextAnswer: "Jawaban final"}, nil)
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, h.studentActor(), h.assignment.ID)
	require.ErrorIs(t, err, lifecycle.ErrWindowClosed)

	require.Equal(t, []string{events.TypeSubmitted, events.TypeCancelled, events.TypeSubmitted}, h.publisher.types())
}

func TestSubmissionServiceCancelNotAllowed(t *testing.T) {
	h := newHarness(t, func(a *models.Assignment) {
		a.AllowCancelSubmit = false
	})
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, h.studentActor(), h.assignment.ID, dto.SubmissionSaveRequest{TextAnswer: "Final"}, nil)
	require.NoError(t, err)

	_, err = h.svc.Cancel(ctx, h.studentActor(), h.assignment.ID)
	require.ErrorIs(t, err, lifecycle.ErrCancelNotAllowed)
	require.Equal(t, models.SubmissionStatusSubmitted, h.storedSubmission(t).Status)
}

func TestSubmissionServiceGradedSubmissionIsLocked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	submitted, err := h.svc.Submit(ctx, h.studentActor(), h.assignment.ID, dto.SubmissionSaveRequest{TextAnswer: "Final"}, nil)
	require.NoError(t, err)

	score := 88.0
	graded, err := h.svc.Grade(ctx, h.teacherActor(), submitted.Submission.ID, dto.GradeRequest{Score: &score, Feedback: "Bagus"})
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGraded, graded.Status)
	require.NotNil(t, graded.Passed)
	require.True(t, *graded.Passed)

	_, err = h.svc.Cancel(ctx, h.studentActor(), h.assignment.ID)
	require.ErrorIs(t, err, lifecycle.ErrLocked)
	_, err = h.svc.SaveDraft(ctx, h.studentActor(), h.assignment.ID, dto.SubmissionSaveRequest{TextAnswer: "Revisi"}, nil)
	require.ErrorIs(t, err, lifecycle.ErrLocked)
	_, err = h.svc.Submit(ctx, h.studentActor(), h.assignment.ID, dto.SubmissionSaveRequest{TextAnswer: "Revisi"}, nil)
	require.ErrorIs(t, err, lifecycle.ErrLocked)
}

func TestSubmissionServiceStudentOutsideTargetClass(t *testing.T) {
	h := newHarness(t)

	other := models.Class{Name: "XI-IPS-2"}
	require.NoError(t, h.db.Create(&other).Error)
	outsider := models.Student{Name: "Budi", Email: "budi@example.com", ClassID: &other.ID}
	require.NoError(t, h.db.Create(&outsider).Error)
	actor := lifecycle.Actor{ID: outsider.ID, Role: lifecycle.RoleStudent}

	_, err := h.svc.View(context.Background(), actor, h.assignment.ID)
	require.ErrorIs(t, err, lifecycle.ErrForbidden)
	_, err = h.svc.SaveDraft(context.Background(), actor, h.assignment.ID, dto.SubmissionSaveRequest{TextAnswer: "Halo"}, nil)
	require.ErrorIs(t, err, lifecycle.ErrForbidden)
	_, err = h.svc.SaveDraft(context.Background(), h.teacherActor(), h.assignment.ID, dto.SubmissionSaveRequest{TextAnswer: "Halo"}, nil)
	require.ErrorIs(t, err, lifecycle.ErrForbidden)
}

func TestSubmissionServiceUnknownAssignment(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.View(context.Background(), h.studentActor(), h.assignment.ID+99)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestSubmissionServiceBusyWhileLockHeld(t *testing.T) {
	h := newHarness(t)
	h.svc.lockWait = 20 * time.Millisecond

	release, err := h.locker.Acquire(context.Background(), submissionLockKey(h.assignment.ID, h.student.ID))
	require.NoError(t, err)
	defer release()

	_, err = h.svc.SaveDraft(context.Background(), h.studentActor(), h.assignment.ID, dto.SubmissionSaveRequest{TextAnswer: "Menunggu"}, nil)
	require.ErrorIs(t, err, ErrSubmissionBusy)
	require.Zero(t, h.count(t, &models.Submission{}))
}

func TestSubmissionServiceRejectsOversizedUpload(t *testing.T) {
	h := newHarness(t)
	h.svc.uploads = UploadLimits{MaxBytes: 4, MaxFiles: 1}

	_, err := h.svc.SaveDraft(context.Background(), h.studentActor(), h.assignment.ID,
		dto.SubmissionSaveRequest{},
		formFiles(t, upload{name: "besar.pdf", content: "%PDF-1.4 besar"}))
	require.ErrorIs(t, err, ErrUploadTooLarge)

	_, err = h.svc.SaveDraft(context.Background(), h.studentActor(), h.assignment.ID,
		dto.SubmissionSaveRequest{},
		formFiles(t, upload{name: "a.pdf", content: "a"}, upload{name: "b.pdf", content: "b"}))
	require.ErrorIs(t, err, ErrTooManyFiles)
}
