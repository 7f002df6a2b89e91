package dto

import (
	"time"

	"github.com/noah-isme/tugas-api/internal/lifecycle"
	"github.com/noah-isme/tugas-api/internal/models"
)

// SubmissionSaveRequest is the non-file part of a draft or submit form.
type SubmissionSaveRequest struct {
	TextAnswer     string   `form:"text_answer" validate:"max=20000"`
	RemovedFileIDs []string `form:"removed_file_ids" validate:"omitempty,max=50,dive,uuid"`
}

// GradeRequest carries a teacher's grade.
type GradeRequest struct {
	Score    *float64 `json:"score" validate:"required"`
	Feedback string   `json:"feedback" validate:"max=5000"`
}

// SubmissionListRequest describes query filters for teacher listings.
type SubmissionListRequest struct {
	Status   string `query:"status" validate:"omitempty,oneof=draft submitted late graded"`
	Page     int    `query:"page"`
	PageSize int    `query:"page_size"`
}

// SubmissionFileResponse serializes one stored file.
type SubmissionFileResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	Position    int    `json:"position"`
}

// SubmissionGradeHistoryResponse serializes grading history entries.
type SubmissionGradeHistoryResponse struct {
	Score    float64   `json:"score"`
	Feedback string    `json:"feedback"`
	GradedBy uint      `json:"graded_by"`
	GradedAt time.Time `json:"graded_at"`
}

// StudentLite summarizes a student without exposing full profile data.
type StudentLite struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SubmissionResponse is the current snapshot of a submission. A pending
// snapshot has no id.
type SubmissionResponse struct {
	ID           uint                             `json:"id,omitempty"`
	AssignmentID uint                             `json:"assignment_id"`
	StudentID    uint                             `json:"student_id"`
	Status       models.SubmissionStatus          `json:"status"`
	TextAnswer   *string                          `json:"text_answer"`
	Files        []SubmissionFileResponse         `json:"files"`
	SubmittedAt  *time.Time                       `json:"submitted_at"`
	Score        *float64                         `json:"score"`
	Feedback     *string                          `json:"feedback"`
	GradedBy     *uint                            `json:"graded_by"`
	GradedAt     *time.Time                       `json:"graded_at"`
	Passed       *bool                            `json:"passed"`
	Version      uint                             `json:"version"`
	History      []SubmissionGradeHistoryResponse `json:"history,omitempty"`
	Student      *StudentLite                     `json:"student,omitempty"`
	UpdatedAt    *time.Time                       `json:"updated_at,omitempty"`
}

// RejectedFileResponse reports one excluded file.
type RejectedFileResponse struct {
	Name      string `json:"name"`
	Extension string `json:"extension"`
	Reason    string `json:"reason"`
}

// SubmissionResultResponse is returned by every mutating operation.
type SubmissionResultResponse struct {
	Submission    SubmissionResponse     `json:"submission"`
	RejectedFiles []RejectedFileResponse `json:"rejected_files"`
}

// SubmissionListResponse wraps a paginated submission listing.
type SubmissionListResponse struct {
	Items      []SubmissionResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(assignment models.Assignment, model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		StudentID:    model.StudentID,
		Status:       model.Status,
		TextAnswer:   model.TextAnswer,
		Files:        make([]SubmissionFileResponse, 0, len(model.Files)),
		SubmittedAt:  model.SubmittedAt,
		Score:        model.Score,
		Feedback:     model.Feedback,
		GradedBy:     model.GradedBy,
		GradedAt:     model.GradedAt,
		Passed:       lifecycle.Passed(assignment, model),
		Version:      model.Version,
	}

	if !model.UpdatedAt.IsZero() {
		updatedAt := model.UpdatedAt
		response.UpdatedAt = &updatedAt
	}

	for _, file := range model.Files {
		response.Files = append(response.Files, SubmissionFileResponse{
			ID:          file.ID,
			Name:        file.Name,
			URL:         file.URL,
			ContentType: file.ContentType,
			SizeBytes:   file.SizeBytes,
			Position:    file.Position,
		})
	}

	if model.Student.ID != 0 {
		response.Student = &StudentLite{
			ID:    model.Student.ID,
			Name:  model.Student.Name,
			Email: model.Student.Email,
		}
	}

	if len(model.History) > 0 {
		history := make([]SubmissionGradeHistoryResponse, 0, len(model.History))
		for _, entry := range model.History {
			history = append(history, SubmissionGradeHistoryResponse{
				Score:    entry.Score,
				Feedback: entry.Feedback,
				GradedBy: entry.GradedBy,
				GradedAt: entry.GradedAt,
			})
		}
		response.History = history
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(assignment models.Assignment, submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(assignment, submission))
	}

	return responses
}

// NewRejectedFileResponses converts reconciliation rejections.
func NewRejectedFileResponses(rejected []lifecycle.RejectedFile) []RejectedFileResponse {
	responses := make([]RejectedFileResponse, 0, len(rejected))
	for _, file := range rejected {
		responses = append(responses, RejectedFileResponse{
			Name:      file.Name,
			Extension: file.Extension,
			Reason:    file.Reason,
		})
	}
	return responses
}
