package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/tugas-api/internal/models"
)

// AssignmentFilter describes pagination & search options.
type AssignmentFilter struct {
	Search    string
	Sort      string
	TeacherID *uint
	// ClassID limits results to assignments visible to that class.
	ClassID  *uint
	Page     int
	PageSize int
}

// AssignmentRepository defines persistence operations for assignments.
type AssignmentRepository interface {
	List(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, int64, error)
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id uint) error
	AddAttachment(ctx context.Context, attachment *models.AssignmentAttachment) error
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates a GORM-backed repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) List(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Assignment{})

	if filter.Search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	if filter.TeacherID != nil {
		query = query.Where("teacher_id = ?", *filter.TeacherID)
	}

	if filter.ClassID != nil {
		targeted := r.db.Table("assignment_classes").Select("1").
			Where("assignment_classes.assignment_id = assignments.id")
		ofClass := r.db.Table("assignment_classes").Select("1").
			Where("assignment_classes.assignment_id = assignments.id AND assignment_classes.class_id = ?", *filter.ClassID)
		query = query.Where("NOT EXISTS (?) OR EXISTS (?)", targeted, ofClass)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order(normalizeAssignmentSort(filter.Sort))

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var assignments []models.Assignment
	if err := query.Preload("Classes").Preload("Attachments").Find(&assignments).Error; err != nil {
		return nil, 0, err
	}

	return assignments, total, nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.WithContext(ctx).
		Preload("Classes").
		Preload("Attachments").
		First(&assignment, id).Error; err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

// Update saves scalar fields and replaces the target classes. Attachments
// are appended, never dropped here.
func (r *assignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Classes").Save(assignment).Error; err != nil {
			return err
		}
		return tx.Model(assignment).Association("Classes").Replace(assignment.Classes)
	})
}

func (r *assignmentRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var submissions int64
		if err := tx.Model(&models.Submission{}).Where("assignment_id = ?", id).Count(&submissions).Error; err != nil {
			return err
		}
		if submissions > 0 {
			return ErrAssignmentInUse
		}

		if err := tx.Where("assignment_id = ?", id).Delete(&models.AssignmentAttachment{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM assignment_classes WHERE assignment_id = ?", id).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Assignment{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *assignmentRepository) AddAttachment(ctx context.Context, attachment *models.AssignmentAttachment) error {
	return r.db.WithContext(ctx).Create(attachment).Error
}

func normalizeAssignmentSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "close_at", "close_at:asc", "close_at.asc":
		return "close_at ASC"
	case "-close_at", "close_at:desc", "close_at.desc":
		return "close_at DESC"
	case "open_at", "open_at:asc", "open_at.asc":
		return "open_at ASC"
	case "-open_at", "open_at:desc", "open_at.desc":
		return "open_at DESC"
	case "title", "title:asc", "title.asc":
		return "title ASC"
	case "-title", "title:desc", "title.desc":
		return "title DESC"
	default:
		return "close_at ASC"
	}
}
