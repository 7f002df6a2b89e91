package dto

import (
	"time"

	"github.com/noah-isme/tugas-api/internal/models"
)

// Window states reported to clients.
const (
	WindowUpcoming = "upcoming"
	WindowOpen     = "open"
	WindowClosed   = "closed"
)

// AssignmentCreateRequest describes the payload for creating a new assignment.
type AssignmentCreateRequest struct {
	Title             string   `json:"title" validate:"required,min=3,max=255"`
	Description       string   `json:"description" validate:"omitempty,max=10000"`
	OpenAt            string   `json:"open_at" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	CloseAt           string   `json:"close_at" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	MaxScore          *float64 `json:"max_score" validate:"omitempty,gt=0,lte=1000"`
	PassingGrade      *float64 `json:"passing_grade" validate:"omitempty,gte=0"`
	AllowTextAnswer   bool     `json:"allow_text_answer"`
	AllowFileUpload   bool     `json:"allow_file_upload"`
	AllowedFileTypes  []string `json:"allowed_file_types" validate:"omitempty,max=20,dive,required,max=16"`
	AllowCancelSubmit bool     `json:"allow_cancel_submit"`
	ClassIDs          []uint   `json:"class_ids" validate:"omitempty,max=50,dive,gt=0"`
}

// AssignmentUpdateRequest describes the payload for updating an assignment.
type AssignmentUpdateRequest struct {
	Title             *string   `json:"title" validate:"omitempty,min=3,max=255"`
	Description       *string   `json:"description" validate:"omitempty,max=10000"`
	OpenAt            *string   `json:"open_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	CloseAt           *string   `json:"close_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	MaxScore          *float64  `json:"max_score" validate:"omitempty,gt=0,lte=1000"`
	PassingGrade      *float64  `json:"passing_grade" validate:"omitempty,gte=0"`
	AllowTextAnswer   *bool     `json:"allow_text_answer"`
	AllowFileUpload   *bool     `json:"allow_file_upload"`
	AllowedFileTypes  *[]string `json:"allowed_file_types" validate:"omitempty,max=20,dive,required,max=16"`
	AllowCancelSubmit *bool     `json:"allow_cancel_submit"`
	ClassIDs          *[]uint   `json:"class_ids" validate:"omitempty,max=50,dive,gt=0"`
}

// AssignmentListRequest carries query filters for assignment listings.
type AssignmentListRequest struct {
	Search   string `query:"search"`
	Sort     string `query:"sort"`
	Page     int    `query:"page"`
	PageSize int    `query:"page_size"`
}

// ClassResponse is a target class.
type ClassResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// AttachmentResponse is a teacher-supplied reference file.
type AttachmentResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID                uint                 `json:"id"`
	TeacherID         uint                 `json:"teacher_id"`
	Title             string               `json:"title"`
	Description       string               `json:"description"`
	OpenAt            time.Time            `json:"open_at"`
	CloseAt           time.Time            `json:"close_at"`
	Window            string               `json:"window"`
	MaxScore          float64              `json:"max_score"`
	PassingGrade      *float64             `json:"passing_grade"`
	AllowTextAnswer   bool                 `json:"allow_text_answer"`
	AllowFileUpload   bool                 `json:"allow_file_upload"`
	AllowedFileTypes  []string             `json:"allowed_file_types"`
	AllowCancelSubmit bool                 `json:"allow_cancel_submit"`
	Classes           []ClassResponse      `json:"classes"`
	Attachments       []AttachmentResponse `json:"attachments"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// AssignmentListResponse wraps a paginated assignment listing.
type AssignmentListResponse struct {
	Items      []AssignmentResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// WindowState classifies now against the submission window.
func WindowState(model models.Assignment, now time.Time) string {
	switch {
	case !model.HasOpened(now):
		return WindowUpcoming
	case model.IsPastDue(now):
		return WindowClosed
	default:
		return WindowOpen
	}
}

// NewAssignmentResponse converts a model into a DTO as seen at now.
func NewAssignmentResponse(model models.Assignment, now time.Time) AssignmentResponse {
	response := AssignmentResponse{
		ID:                model.ID,
		TeacherID:         model.TeacherID,
		Title:             model.Title,
		Description:       model.Description,
		OpenAt:            model.OpenAt,
		CloseAt:           model.CloseAt,
		Window:            WindowState(model, now),
		MaxScore:          model.EffectiveMaxScore(),
		PassingGrade:      model.PassingGrade,
		AllowTextAnswer:   model.AllowTextAnswer,
		AllowFileUpload:   model.AllowFileUpload,
		AllowedFileTypes:  model.FileTypes(),
		AllowCancelSubmit: model.AllowCancelSubmit,
		Classes:           make([]ClassResponse, 0, len(model.Classes)),
		Attachments:       make([]AttachmentResponse, 0, len(model.Attachments)),
		CreatedAt:         model.CreatedAt,
		UpdatedAt:         model.UpdatedAt,
	}

	for _, class := range model.Classes {
		response.Classes = append(response.Classes, ClassResponse{ID: class.ID, Name: class.Name})
	}
	for _, attachment := range model.Attachments {
		response.Attachments = append(response.Attachments, AttachmentResponse{
			ID:   attachment.ID,
			Name: attachment.Name,
			URL:  attachment.URL,
		})
	}

	return response
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment, now time.Time) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment, now))
	}

	return responses
}
