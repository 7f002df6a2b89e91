package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Assignment is a teacher-authored task (tugas) with a submission window and
// answer-mode configuration.
type Assignment struct {
	ID                uint                        `gorm:"primaryKey" json:"id"`
	TeacherID         uint                        `gorm:"index;not null" json:"teacher_id"`
	Title             string                      `gorm:"size:255;not null" json:"title"`
	Description       string                      `gorm:"type:text" json:"description"`
	OpenAt            time.Time                   `gorm:"not null" json:"open_at"`
	CloseAt           time.Time                   `gorm:"not null;index" json:"close_at"`
	MaxScore          float64                     `gorm:"not null" json:"max_score"`
	PassingGrade      *float64                    `json:"passing_grade"`
	AllowTextAnswer   bool                        `gorm:"not null" json:"allow_text_answer"`
	AllowFileUpload   bool                        `gorm:"not null" json:"allow_file_upload"`
	AllowedFileTypes  datatypes.JSONSlice[string] `gorm:"type:json" json:"allowed_file_types"`
	AllowCancelSubmit bool                        `gorm:"not null" json:"allow_cancel_submit"`
	Classes           []Class                     `gorm:"many2many:assignment_classes" json:"classes"`
	Attachments       []AssignmentAttachment      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"attachments"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
	Submissions       []Submission                `json:"-"`
}

// AssignmentAttachment is a teacher-supplied reference file.
type AssignmentAttachment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AssignmentID uint      `gorm:"index;not null" json:"assignment_id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	URL          string    `gorm:"size:512;not null" json:"url"`
	StoragePath  string    `gorm:"size:512;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasOpened reports whether the window has started at reference.
func (a Assignment) HasOpened(reference time.Time) bool {
	return !reference.Before(a.OpenAt)
}

// IsPastDue returns true when the close timestamp has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return reference.After(a.CloseAt)
}

// EffectiveMaxScore falls back to 100 when no maximum was configured.
func (a Assignment) EffectiveMaxScore() float64 {
	if a.MaxScore <= 0 {
		return 100
	}
	return a.MaxScore
}

// FileTypes returns the normalised extension allow-list.
func (a Assignment) FileTypes() []string {
	return NormalizeExtensions(a.AllowedFileTypes)
}

// TargetsClass reports whether a student of classID may work on the assignment.
// Assignments without target classes are open to every class.
func (a Assignment) TargetsClass(classID *uint) bool {
	if len(a.Classes) == 0 {
		return true
	}
	if classID == nil {
		return false
	}
	for _, class := range a.Classes {
		if class.ID == *classID {
			return true
		}
	}
	return false
}

// NormalizeExtensions lower-cases, strips leading dots and de-duplicates.
func NormalizeExtensions(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		ext := strings.ToLower(strings.TrimLeft(strings.TrimSpace(value), "."))
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		result = append(result, ext)
	}
	return result
}
