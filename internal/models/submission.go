package models

import (
	"strings"
	"time"
)

// SubmissionStatus is the lifecycle state of a student's submission.
type SubmissionStatus string

const (
	// SubmissionStatusPending is never stored; it describes the absence of a row.
	SubmissionStatusPending   SubmissionStatus = "pending"
	SubmissionStatusDraft     SubmissionStatus = "draft"
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	SubmissionStatusLate      SubmissionStatus = "late"
	SubmissionStatusGraded    SubmissionStatus = "graded"
)

// Submission is one student's answer to one assignment.
type Submission struct {
	ID           uint                     `gorm:"primaryKey" json:"id"`
	AssignmentID uint                     `gorm:"not null;uniqueIndex:idx_submission_assignment_student" json:"assignment_id"`
	StudentID    uint                     `gorm:"not null;uniqueIndex:idx_submission_assignment_student" json:"student_id"`
	Status       SubmissionStatus         `gorm:"size:16;not null;index" json:"status"`
	TextAnswer   *string                  `gorm:"type:text" json:"text_answer"`
	Files        []SubmissionFile         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"files"`
	SubmittedAt  *time.Time               `json:"submitted_at"`
	Score        *float64                 `json:"score"`
	Feedback     *string                  `gorm:"type:text" json:"feedback"`
	GradedBy     *uint                    `json:"graded_by"`
	GradedAt     *time.Time               `json:"graded_at"`
	Version      uint                     `gorm:"not null" json:"version"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
	Assignment   Assignment               `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
	Student      Student                  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
	History      []SubmissionGradeHistory `json:"history"`
}

// SubmissionFile is a stored attachment of a submission. File ids are unique
// within their submission only.
type SubmissionFile struct {
	SubmissionID uint      `gorm:"primaryKey;autoIncrement:false" json:"submission_id"`
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	URL          string    `gorm:"size:1024" json:"url"`
	StoragePath  string    `gorm:"size:512;not null" json:"storage_path"`
	ContentType  string    `gorm:"size:128" json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	Position     int       `gorm:"not null" json:"position"`
	CreatedAt    time.Time `json:"created_at"`
}

// SubmissionGradeHistory keeps every grade a submission received.
type SubmissionGradeHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"index;not null" json:"submission_id"`
	Score        float64   `gorm:"not null" json:"score"`
	Feedback     string    `gorm:"type:text" json:"feedback"`
	GradedBy     uint      `gorm:"not null" json:"graded_by"`
	GradedAt     time.Time `gorm:"not null" json:"graded_at"`
}

// IsGraded reports whether the submission has a final grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// IsFinal reports whether the submission is handed in and awaiting a grade.
func (s Submission) IsFinal() bool {
	return s.Status == SubmissionStatusSubmitted || s.Status == SubmissionStatusLate
}

// HasText reports whether a non-blank text answer is stored.
func (s Submission) HasText() bool {
	return s.TextAnswer != nil && strings.TrimSpace(*s.TextAnswer) != ""
}

// HasContent reports whether any text or file is stored.
func (s Submission) HasContent() bool {
	return s.HasText() || len(s.Files) > 0
}
