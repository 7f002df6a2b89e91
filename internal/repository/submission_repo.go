package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/tugas-api/internal/models"
)

// ErrStaleSubmission signals that the row changed (or was created) since it
// was read, so the caller must reload and re-evaluate.
var ErrStaleSubmission = errors.New("submission was modified concurrently")

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	AssignmentID *uint
	StudentID    *uint
	Status       *models.SubmissionStatus
	Page         int
	PageSize     int
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error)
	// Create inserts a new submission with its files.
	Create(ctx context.Context, submission *models.Submission) error
	// Save replaces the stored state of submission if its Version still
	// matches, then bumps Version.
	Save(ctx context.Context, submission *models.Submission) error
	// SaveGrade saves a graded submission and appends its history entry in
	// one transaction.
	SaveGrade(ctx context.Context, submission *models.Submission, entry *models.SubmissionGradeHistory) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Files", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("graded_at ASC")
		}).
		Preload("Student")
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error) {
	query := r.baseQuery(ctx)

	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var submissions []models.Submission
	if err := query.Order("updated_at DESC").Order("id DESC").Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("student_id = ?", studentID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	submission.Version = 1

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(submission).Error; err != nil {
			return err
		}
		return replaceFiles(tx, submission.ID, submission.Files)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrStaleSubmission
	}

	return err
}

func (r *submissionRepository) Save(ctx context.Context, submission *models.Submission) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveVersioned(tx, submission)
	})
	if err != nil {
		return err
	}

	submission.Version++
	return nil
}

func (r *submissionRepository) SaveGrade(ctx context.Context, submission *models.Submission, entry *models.SubmissionGradeHistory) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveVersioned(tx, submission); err != nil {
			return err
		}
		entry.SubmissionID = submission.ID
		return tx.Create(entry).Error
	})
	if err != nil {
		return err
	}

	submission.Version++
	return nil
}

// saveVersioned writes submission if its Version still matches the row and
// bumps the stored version. The caller bumps submission.Version on commit.
func saveVersioned(tx *gorm.DB, submission *models.Submission) error {
	result := tx.Model(&models.Submission{}).
		Where("id = ? AND version = ?", submission.ID, submission.Version).
		Updates(map[string]any{
			"status":       submission.Status,
			"text_answer":  submission.TextAnswer,
			"submitted_at": submission.SubmittedAt,
			"score":        submission.Score,
			"feedback":     submission.Feedback,
			"graded_by":    submission.GradedBy,
			"graded_at":    submission.GradedAt,
			"version":      submission.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleSubmission
	}

	return replaceFiles(tx, submission.ID, submission.Files)
}

// replaceFiles makes the stored file rows of a submission equal to files.
func replaceFiles(tx *gorm.DB, submissionID uint, files []models.SubmissionFile) error {
	ids := make([]string, 0, len(files))
	for i := range files {
		files[i].SubmissionID = submissionID
		ids = append(ids, files[i].ID)
	}

	stale := tx.Where("submission_id = ?", submissionID)
	if len(ids) > 0 {
		stale = stale.Where("id NOT IN ?", ids)
	}
	if err := stale.Delete(&models.SubmissionFile{}).Error; err != nil {
		return err
	}

	if len(files) == 0 {
		return nil
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "submission_id"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "url", "storage_path", "content_type", "size_bytes", "position"}),
	}).Create(&files).Error
}
