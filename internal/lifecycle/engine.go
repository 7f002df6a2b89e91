// Package lifecycle implements the assignment submission state machine and
// the reconciliation of submission attachments.
//
// All functions are pure: they read the assignment configuration, the current
// submission (nil while pending) and an explicit clock value and actor, and
// return the next state together with the file work the caller must perform.
// Nothing here touches storage.
package lifecycle

import (
	"strings"
	"time"

	"github.com/noah-isme/tugas-api/internal/models"
)

// Role is the role of the actor performing an operation.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Actor identifies who performs an operation.
type Actor struct {
	ID   uint
	Role Role
}

// SaveDraftInput carries a draft save.
type SaveDraftInput struct {
	Actor      Actor
	TextAnswer string
	Delta      FileDelta
}

// SubmitInput carries a final submission.
type SubmitInput struct {
	Actor      Actor
	TextAnswer string
	Delta      FileDelta
	Now        time.Time
}

// CancelInput carries the cancellation of a final submission.
type CancelInput struct {
	Actor Actor
	Now   time.Time
}

// GradeInput carries a teacher's grade.
type GradeInput struct {
	Actor    Actor
	Score    float64
	Feedback string
	Now      time.Time
}

// Transition is the outcome of a successful operation.
type Transition struct {
	// Submission is the next state. Files of pending uploads have no URL yet.
	Submission     models.Submission
	Reconciliation Reconciliation
	// Created is true when no row existed before.
	Created bool
}

// Rejected returns the files excluded by reconciliation.
func (t Transition) Rejected() []RejectedFile {
	return t.Reconciliation.Rejected
}

// SaveDraft stores work in progress. Drafts are not gated by the window.
func SaveDraft(assignment models.Assignment, current *models.Submission, in SaveDraftInput) (Transition, error) {
	if err := authorizeStudent(current, in.Actor); err != nil {
		return Transition{}, err
	}
	if current != nil {
		if current.IsGraded() {
			return Transition{}, fail(KindLocked)
		}
		if current.IsFinal() {
			return Transition{}, fail(KindWrongState)
		}
	}

	next, created := startFrom(assignment, current, in.Actor)
	rec := Reconcile(next.Files, in.Delta, UploadAllowList(assignment))
	text := answerText(assignment, in.TextAnswer)

	textChanged := !sameText(next.TextAnswer, text)
	next.TextAnswer = text
	next.Files = rec.Files
	next.Status = models.SubmissionStatusDraft
	next.SubmittedAt = nil

	priorContent := current != nil && current.HasContent()
	unchanged := current != nil && !textChanged && !rec.Changed()
	if (!next.HasContent() && !priorContent) || unchanged {
		return Transition{}, noChange(rec)
	}

	return Transition{Submission: next, Reconciliation: rec, Created: created}, nil
}

// Submit hands the submission in. After the close timestamp it is accepted
// and tagged late; there is no upper bound on lateness.
func Submit(assignment models.Assignment, current *models.Submission, in SubmitInput) (Transition, error) {
	if err := authorizeStudent(current, in.Actor); err != nil {
		return Transition{}, err
	}
	if current != nil {
		if current.IsGraded() {
			return Transition{}, fail(KindLocked)
		}
		if current.IsFinal() {
			return Transition{}, fail(KindWrongState)
		}
	}
	if !assignment.HasOpened(in.Now) {
		return Transition{}, fail(KindNotOpenYet)
	}

	next, created := startFrom(assignment, current, in.Actor)
	rec := Reconcile(next.Files, in.Delta, UploadAllowList(assignment))
	next.TextAnswer = answerText(assignment, in.TextAnswer)
	next.Files = rec.Files

	if mode, ok := answerSatisfied(assignment, next); !ok {
		return Transition{}, &Error{Kind: KindEmptyAnswer, Mode: mode, Rejected: rec.Rejected}
	}

	submittedAt := in.Now
	next.SubmittedAt = &submittedAt
	if assignment.IsPastDue(in.Now) {
		next.Status = models.SubmissionStatusLate
	} else {
		next.Status = models.SubmissionStatusSubmitted
	}
	next.Score = nil
	next.Feedback = nil
	next.GradedBy = nil
	next.GradedAt = nil

	return Transition{Submission: next, Reconciliation: rec, Created: created}, nil
}

// Cancel reverts a final submission to draft while the window is open and the
// teacher allows it. Text and files are kept.
func Cancel(assignment models.Assignment, current *models.Submission, in CancelInput) (Transition, error) {
	if err := authorizeStudent(current, in.Actor); err != nil {
		return Transition{}, err
	}
	if current != nil && current.IsGraded() {
		return Transition{}, fail(KindLocked)
	}
	if !assignment.AllowCancelSubmit {
		return Transition{}, fail(KindCancelNotAllowed)
	}
	if current == nil || !current.IsFinal() {
		return Transition{}, fail(KindWrongState)
	}
	if assignment.IsPastDue(in.Now) {
		return Transition{}, fail(KindWindowClosed)
	}

	next := cloneSubmission(*current)
	next.Status = models.SubmissionStatusDraft
	next.SubmittedAt = nil

	return Transition{
		Submission:     next,
		Reconciliation: Reconciliation{Files: next.Files},
	}, nil
}

// Grade attaches a score and feedback to a submitted or late submission.
func Grade(assignment models.Assignment, current *models.Submission, in GradeInput) (Transition, error) {
	if in.Actor.Role != RoleTeacher && in.Actor.Role != RoleAdmin {
		return Transition{}, fail(KindForbidden)
	}
	if current == nil {
		return Transition{}, fail(KindWrongState)
	}
	if current.IsGraded() {
		return Transition{}, fail(KindLocked)
	}
	if !current.IsFinal() {
		return Transition{}, fail(KindWrongState)
	}
	if in.Score < 0 || in.Score > assignment.EffectiveMaxScore() {
		return Transition{}, fail(KindScoreOutOfRange)
	}

	next := cloneSubmission(*current)
	score := in.Score
	next.Score = &score
	feedback := strings.TrimSpace(in.Feedback)
	next.Feedback = &feedback
	gradedBy := in.Actor.ID
	next.GradedBy = &gradedBy
	gradedAt := in.Now
	next.GradedAt = &gradedAt
	next.Status = models.SubmissionStatusGraded

	return Transition{
		Submission:     next,
		Reconciliation: Reconciliation{Files: next.Files},
	}, nil
}

// Passed reports whether a graded submission meets the passing grade. It is
// nil when the assignment has no passing grade or the submission is ungraded.
func Passed(assignment models.Assignment, submission models.Submission) *bool {
	if assignment.PassingGrade == nil || submission.Score == nil || !submission.IsGraded() {
		return nil
	}
	passed := *submission.Score >= *assignment.PassingGrade
	return &passed
}

// noChange reports a draft save that would store nothing new. When only
// rejected files were offered the rejection is the more useful answer.
func noChange(rec Reconciliation) error {
	if len(rec.Rejected) > 0 {
		return &Error{Kind: KindInvalidFileType, Rejected: rec.Rejected}
	}
	return fail(KindNoContent)
}

func authorizeStudent(current *models.Submission, actor Actor) error {
	if actor.Role != RoleStudent || actor.ID == 0 {
		return fail(KindForbidden)
	}
	if current != nil && current.StudentID != actor.ID {
		return fail(KindForbidden)
	}
	return nil
}

func startFrom(assignment models.Assignment, current *models.Submission, actor Actor) (models.Submission, bool) {
	if current == nil {
		return models.Submission{
			AssignmentID: assignment.ID,
			StudentID:    actor.ID,
			Status:       models.SubmissionStatusPending,
		}, true
	}
	return cloneSubmission(*current), false
}

func cloneSubmission(s models.Submission) models.Submission {
	if s.Files != nil {
		files := make([]models.SubmissionFile, len(s.Files))
		copy(files, s.Files)
		s.Files = files
	}
	return s
}

// UploadAllowList returns nil when uploads are disabled so that every new
// file is rejected.
func UploadAllowList(assignment models.Assignment) []string {
	if !assignment.AllowFileUpload {
		return nil
	}
	return assignment.FileTypes()
}

// answerText drops text for assignments that do not accept a text answer.
func answerText(assignment models.Assignment, text string) *string {
	if !assignment.AllowTextAnswer {
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return &text
}

func sameText(a, b *string) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return *a == *b
	}
}

func answerSatisfied(assignment models.Assignment, next models.Submission) (AnswerMode, bool) {
	hasText := next.HasText()
	hasFiles := len(next.Files) > 0

	switch {
	case assignment.AllowTextAnswer && !assignment.AllowFileUpload:
		return AnswerModeText, hasText
	case assignment.AllowFileUpload && !assignment.AllowTextAnswer:
		return AnswerModeFile, hasFiles
	default:
		return AnswerModeTextOrFile, hasText || hasFiles
	}
}
